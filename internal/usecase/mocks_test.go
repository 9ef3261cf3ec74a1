package usecase

import (
	"context"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/fleetwatch/fleetwatch/internal/ports"
	"github.com/stretchr/testify/mock"
)

type MockAssetRepository struct {
	mock.Mock
}

func (m *MockAssetRepository) Create(ctx context.Context, asset *domain.Asset) error {
	args := m.Called(ctx, asset)
	return args.Error(0)
}

func (m *MockAssetRepository) FindByID(ctx context.Context, kind domain.AssetKind, id string) (*domain.Asset, error) {
	args := m.Called(ctx, kind, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Asset), args.Error(1)
}

func (m *MockAssetRepository) List(ctx context.Context, kind domain.AssetKind, filter domain.AssetFilter) ([]*domain.Asset, error) {
	args := m.Called(ctx, kind, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Asset), args.Error(1)
}

func (m *MockAssetRepository) Count(ctx context.Context, kind domain.AssetKind, filter domain.AssetFilter) (int, error) {
	args := m.Called(ctx, kind, filter)
	return args.Int(0), args.Error(1)
}

func (m *MockAssetRepository) UpdateWithHistory(ctx context.Context, asset *domain.Asset, expectedUpdatedAt time.Time, changes []domain.ChangeRecord) error {
	args := m.Called(ctx, asset, expectedUpdatedAt, changes)
	return args.Error(0)
}

func (m *MockAssetRepository) Verify(ctx context.Context, kind domain.AssetKind, id, actor string, at time.Time) error {
	args := m.Called(ctx, kind, id, actor, at)
	return args.Error(0)
}

func (m *MockAssetRepository) Delete(ctx context.Context, kind domain.AssetKind, id string) error {
	args := m.Called(ctx, kind, id)
	return args.Error(0)
}

type MockHistoryRepository struct {
	mock.Mock
}

func (m *MockHistoryRepository) ListByAsset(ctx context.Context, assetID string) ([]domain.ChangeRecord, error) {
	args := m.Called(ctx, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ChangeRecord), args.Error(1)
}

func (m *MockHistoryRepository) LatestChangeAt(ctx context.Context, assetIDs []string) (map[string]time.Time, error) {
	args := m.Called(ctx, assetIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]time.Time), args.Error(1)
}

type MockOperatorDirectory struct {
	mock.Mock
}

func (m *MockOperatorDirectory) ResolveNames(ctx context.Context, ids []string) (domain.ReferenceNames, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.ReferenceNames), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, event ports.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type MockLocker struct {
	mock.Mock
	released int
}

func (m *MockLocker) Acquire(ctx context.Context, key string) (func(), error) {
	args := m.Called(ctx, key)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return func() { m.released++ }, nil
}
