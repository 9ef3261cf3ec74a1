package ports

import (
	"context"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
)

// AssetRepository defines the interface for asset persistence
type AssetRepository interface {
	// Create saves a new asset
	Create(ctx context.Context, asset *domain.Asset) error

	// FindByID retrieves an asset of the given kind by its ID
	FindByID(ctx context.Context, kind domain.AssetKind, id string) (*domain.Asset, error)

	// List retrieves assets of a kind; a non-positive limit returns every match.
	// The Verified filter is derived state and is ignored here.
	List(ctx context.Context, kind domain.AssetKind, filter domain.AssetFilter) ([]*domain.Asset, error)

	// Count returns the number of assets matching the filter
	Count(ctx context.Context, kind domain.AssetKind, filter domain.AssetFilter) (int, error)

	// UpdateWithHistory stores the asset fields and updated_at and appends the
	// change records in one transaction. It fails with domain.ErrConcurrentUpdate
	// when the stored updated_at no longer equals expectedUpdatedAt.
	UpdateWithHistory(ctx context.Context, asset *domain.Asset, expectedUpdatedAt time.Time, changes []domain.ChangeRecord) error

	// Verify records a verification without touching updated_at
	Verify(ctx context.Context, kind domain.AssetKind, id, actor string, at time.Time) error

	// Delete removes an asset together with its change records
	Delete(ctx context.Context, kind domain.AssetKind, id string) error
}

// HistoryRepository reads the append-only change log
type HistoryRepository interface {
	// ListByAsset returns records newest first; records of one edit keep insertion order
	ListByAsset(ctx context.Context, assetID string) ([]domain.ChangeRecord, error)

	// LatestChangeAt returns the newest changed_at per asset id; ids without history are absent
	LatestChangeAt(ctx context.Context, assetIDs []string) (map[string]time.Time, error)
}

// OperatorRepository defines the interface for operator persistence
type OperatorRepository interface {
	Create(ctx context.Context, operator *domain.Operator) error

	// NamesByIDs maps employee ids to display names; unknown ids are absent
	NamesByIDs(ctx context.Context, employeeIDs []string) (map[string]string, error)
}

// OperatorDirectory resolves operator ids for history rendering
type OperatorDirectory interface {
	ResolveNames(ctx context.Context, employeeIDs []string) (domain.ReferenceNames, error)
}
