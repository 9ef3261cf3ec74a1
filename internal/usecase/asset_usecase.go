package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/fleetwatch/fleetwatch/internal/logger"
	"github.com/fleetwatch/fleetwatch/internal/ports"
)

// Pagination bounds for List
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

const defaultMaxRetries = 3

// VerificationView is the derived verification badge shown with an asset
type VerificationView struct {
	IsVerified   bool                      `json:"is_verified"`
	Reason       domain.VerificationReason `json:"reason"`
	Description  string                    `json:"description"`
	LastChangeAt *time.Time                `json:"last_change_at,omitempty"`
}

// AssetView is an asset together with its verification state at read time
type AssetView struct {
	*domain.Asset
	Verification VerificationView `json:"verification"`
}

// ListResult is one page of assets
type ListResult struct {
	Assets []AssetView `json:"assets"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// HistoryEntry is a change record rendered for display
type HistoryEntry struct {
	ID         string    `json:"id"`
	FieldName  string    `json:"field_name"`
	Label      string    `json:"label"`
	OldValue   *string   `json:"old_value"`
	NewValue   *string   `json:"new_value"`
	OldDisplay string    `json:"old_display"`
	NewDisplay string    `json:"new_display"`
	ChangedAt  time.Time `json:"changed_at"`
	ChangedBy  string    `json:"changed_by"`
}

// Overview summarizes verification across every asset of a kind
type Overview struct {
	Kind      domain.AssetKind                  `json:"kind"`
	Total     int                               `json:"total"`
	Verified  int                               `json:"verified"`
	ByReason  map[domain.VerificationReason]int `json:"by_reason"`
	ByStatus  map[string]int                    `json:"by_status"`
	LastReset time.Time                         `json:"last_reset"`
}

// AssetUseCase handles tracked asset business logic for one asset kind
type AssetUseCase struct {
	kind        domain.AssetKind
	table       *domain.FieldTable
	assetRepo   ports.AssetRepository
	historyRepo ports.HistoryRepository
	operators   ports.OperatorDirectory
	locker      ports.AssetLocker
	publisher   ports.EventPublisher
	engine      *domain.VerificationEngine
	differ      *domain.HistoryDiffer
	formatter   *domain.FieldFormatter
	logger      logger.Logger
	clock       func() time.Time
	maxRetries  int
}

// Option configures an AssetUseCase
type Option func(*AssetUseCase)

// WithClock replaces time.Now
func WithClock(clock func() time.Time) Option {
	return func(uc *AssetUseCase) { uc.clock = clock }
}

// WithLocker serializes writers per asset
func WithLocker(l ports.AssetLocker) Option {
	return func(uc *AssetUseCase) { uc.locker = l }
}

// WithPublisher publishes asset events after successful writes
func WithPublisher(p ports.EventPublisher) Option {
	return func(uc *AssetUseCase) { uc.publisher = p }
}

// WithOperatorDirectory resolves operator ids in history
func WithOperatorDirectory(d ports.OperatorDirectory) Option {
	return func(uc *AssetUseCase) { uc.operators = d }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(uc *AssetUseCase) { uc.logger = l }
}

// WithMaxRetries bounds the attempts made on a concurrent update conflict
func WithMaxRetries(n int) Option {
	return func(uc *AssetUseCase) {
		if n > 0 {
			uc.maxRetries = n
		}
	}
}

// NewAssetUseCase creates the tracked asset use case for kind
func NewAssetUseCase(
	kind domain.AssetKind,
	assetRepo ports.AssetRepository,
	historyRepo ports.HistoryRepository,
	engine *domain.VerificationEngine,
	differ *domain.HistoryDiffer,
	opts ...Option,
) (*AssetUseCase, error) {
	table, err := domain.FieldsFor(kind)
	if err != nil {
		return nil, err
	}

	uc := &AssetUseCase{
		kind:        kind,
		table:       table,
		assetRepo:   assetRepo,
		historyRepo: historyRepo,
		engine:      engine,
		differ:      differ,
		formatter:   domain.NewFieldFormatter(table, differ.Location()),
		logger:      logger.NewNop(),
		clock:       time.Now,
		maxRetries:  defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc, nil
}

// Kind returns the asset kind served
func (uc *AssetUseCase) Kind() domain.AssetKind {
	return uc.kind
}

// Fields returns the tracked field specs
func (uc *AssetUseCase) Fields() []domain.FieldSpec {
	return uc.table.Specs()
}

// Create stores a new, unverified asset. No change records are written.
func (uc *AssetUseCase) Create(ctx context.Context, actor string, fields domain.Snapshot) (*AssetView, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, domain.ErrInvalidActor
	}
	canonical, err := uc.canonicalize(fields)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	asset := domain.NewAsset(uc.kind, canonical, now)
	if err := uc.assetRepo.Create(ctx, asset); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", uc.kind, err)
	}

	uc.logger.Info(ctx, "asset created", map[string]interface{}{
		"kind":     uc.kind,
		"asset_id": asset.ID,
		"actor":    actor,
	})
	uc.publish(ctx, ports.EventTypeAssetCreated, asset.ID, actor, map[string]interface{}{
		"fields": asset.Fields,
	}, now)

	view := uc.view(asset, nil, now)
	return &view, nil
}

// Get retrieves an asset with its current verification state
func (uc *AssetUseCase) Get(ctx context.Context, id string) (*AssetView, error) {
	if id == "" {
		return nil, domain.ErrAssetNotFound
	}

	asset, err := uc.assetRepo.FindByID(ctx, uc.kind, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", uc.kind, err)
	}

	views, err := uc.views(ctx, []*domain.Asset{asset}, uc.now())
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// List retrieves assets based on filter criteria
func (uc *AssetUseCase) List(ctx context.Context, filter domain.AssetFilter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	now := uc.now()

	if filter.Verified == nil {
		assets, err := uc.assetRepo.List(ctx, uc.kind, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", uc.kind.Plural(), err)
		}
		total, err := uc.assetRepo.Count(ctx, uc.kind, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", uc.kind.Plural(), err)
		}
		views, err := uc.views(ctx, assets, now)
		if err != nil {
			return nil, err
		}
		return &ListResult{Assets: views, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
	}

	// verification is derived, so the verified filter is applied after evaluation
	all := filter
	all.Limit, all.Offset = 0, 0
	assets, err := uc.assetRepo.List(ctx, uc.kind, all)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", uc.kind.Plural(), err)
	}
	views, err := uc.views(ctx, assets, now)
	if err != nil {
		return nil, err
	}

	matched := views[:0]
	for _, v := range views {
		if v.Verification.IsVerified == *filter.Verified {
			matched = append(matched, v)
		}
	}

	result := &ListResult{Total: len(matched), Limit: filter.Limit, Offset: filter.Offset, Assets: []AssetView{}}
	if filter.Offset < len(matched) {
		end := filter.Offset + filter.Limit
		if end > len(matched) {
			end = len(matched)
		}
		result.Assets = matched[filter.Offset:end]
	}
	return result, nil
}

// Update applies a field patch under the asset's write lock. The diff is taken
// against a fresh read and recomputed when a concurrent write wins the race.
// A patch that changes nothing returns the asset without writing.
func (uc *AssetUseCase) Update(ctx context.Context, id, actor string, patch domain.Snapshot) (*AssetView, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, domain.ErrInvalidActor
	}
	canonical, err := uc.canonicalize(patch)
	if err != nil {
		return nil, err
	}

	release, err := uc.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	for attempt := 1; ; attempt++ {
		before, err := uc.assetRepo.FindByID(ctx, uc.kind, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s: %w", uc.kind, err)
		}

		now := before.EditTime(uc.now())
		after := before.WithPatch(canonical)
		changes := uc.differ.Diff(uc.table.Specs(), before.ID, before.Snapshot(), after.Snapshot(), actor, now)
		if len(changes) == 0 {
			views, err := uc.views(ctx, []*domain.Asset{before}, now)
			if err != nil {
				return nil, err
			}
			return &views[0], nil
		}

		after.Touch(now)
		err = uc.assetRepo.UpdateWithHistory(ctx, after, before.UpdatedAt, changes)
		if err == nil {
			uc.logger.Info(ctx, "asset updated", map[string]interface{}{
				"kind":     uc.kind,
				"asset_id": id,
				"actor":    actor,
				"changes":  len(changes),
				"attempt":  attempt,
			})
			uc.publish(ctx, ports.EventTypeAssetUpdated, id, actor, map[string]interface{}{
				"fields": changedFields(changes),
			}, now)

			view := uc.view(after, &now, now)
			return &view, nil
		}

		if !errors.Is(err, domain.ErrConcurrentUpdate) || attempt >= uc.maxRetries {
			return nil, fmt.Errorf("failed to update %s: %w", uc.kind, err)
		}
		uc.logger.Warn(ctx, "concurrent asset update, retrying", map[string]interface{}{
			"kind":     uc.kind,
			"asset_id": id,
			"attempt":  attempt,
		})
	}
}

// Verify records an explicit verification by actor. It is not an edit: the
// asset's updated_at is left alone and no change records are written.
func (uc *AssetUseCase) Verify(ctx context.Context, id, actor string) (*AssetView, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, domain.ErrInvalidActor
	}

	release, err := uc.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	now := uc.now()
	if err := uc.assetRepo.Verify(ctx, uc.kind, id, actor, now); err != nil {
		return nil, fmt.Errorf("failed to verify %s: %w", uc.kind, err)
	}

	uc.logger.Info(ctx, "asset verified", map[string]interface{}{
		"kind":     uc.kind,
		"asset_id": id,
		"actor":    actor,
	})
	uc.publish(ctx, ports.EventTypeAssetVerified, id, actor, nil, now)

	return uc.Get(ctx, id)
}

// Delete removes an asset and its history
func (uc *AssetUseCase) Delete(ctx context.Context, id, actor string) error {
	if strings.TrimSpace(actor) == "" {
		return domain.ErrInvalidActor
	}

	release, err := uc.lock(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	if err := uc.assetRepo.Delete(ctx, uc.kind, id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", uc.kind, err)
	}

	uc.logger.Info(ctx, "asset deleted", map[string]interface{}{
		"kind":     uc.kind,
		"asset_id": id,
		"actor":    actor,
	})
	uc.publish(ctx, ports.EventTypeAssetDeleted, id, actor, nil, uc.now())
	return nil
}

// History returns the asset's change log, newest first, formatted for display
func (uc *AssetUseCase) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	if _, err := uc.assetRepo.FindByID(ctx, uc.kind, id); err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", uc.kind, err)
	}

	records, err := uc.historyRepo.ListByAsset(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	formatter := uc.formatter.WithResolver(uc.resolveReferences(ctx, records))

	entries := make([]HistoryEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, HistoryEntry{
			ID:         r.ID,
			FieldName:  r.FieldName,
			Label:      formatter.Label(r.FieldName),
			OldValue:   r.OldValue,
			NewValue:   r.NewValue,
			OldDisplay: formatter.Format(r.FieldName, r.OldValue),
			NewDisplay: formatter.Format(r.FieldName, r.NewValue),
			ChangedAt:  r.ChangedAt,
			ChangedBy:  r.ChangedBy,
		})
	}
	return entries, nil
}

// Overview counts assets per verification reason and per status
func (uc *AssetUseCase) Overview(ctx context.Context) (*Overview, error) {
	assets, err := uc.assetRepo.List(ctx, uc.kind, domain.AssetFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", uc.kind.Plural(), err)
	}

	now := uc.now()
	views, err := uc.views(ctx, assets, now)
	if err != nil {
		return nil, err
	}

	o := &Overview{
		Kind:      uc.kind,
		Total:     len(views),
		ByReason:  map[domain.VerificationReason]int{},
		ByStatus:  map[string]int{},
		LastReset: uc.engine.Boundary().MostRecentBefore(now),
	}
	for _, v := range views {
		o.ByReason[v.Verification.Reason]++
		if v.Verification.IsVerified {
			o.Verified++
		}
		status := v.Field("status")
		if status == "" {
			status = domain.PlaceholderAbsent
		}
		o.ByStatus[status]++
	}
	return o, nil
}

func (uc *AssetUseCase) now() time.Time {
	// postgres keeps microseconds; the optimistic check compares stored values
	return uc.clock().UTC().Truncate(time.Microsecond)
}

func (uc *AssetUseCase) canonicalize(fields domain.Snapshot) (domain.Snapshot, error) {
	for name, v := range fields {
		switch v.(type) {
		case map[string]interface{}, []interface{}:
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidFieldValue, name)
		}
	}
	return uc.differ.Canonicalize(uc.table, fields)
}

func (uc *AssetUseCase) lock(ctx context.Context, id string) (func(), error) {
	if uc.locker == nil {
		return func() {}, nil
	}
	release, err := uc.locker.Acquire(ctx, fmt.Sprintf("asset:%s:%s", uc.kind, id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s %s: %w", uc.kind, id, err)
	}
	return release, nil
}

func (uc *AssetUseCase) views(ctx context.Context, assets []*domain.Asset, now time.Time) ([]AssetView, error) {
	ids := make([]string, 0, len(assets))
	for _, a := range assets {
		ids = append(ids, a.ID)
	}

	latest := map[string]time.Time{}
	if len(ids) > 0 {
		var err error
		latest, err = uc.historyRepo.LatestChangeAt(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load latest changes: %w", err)
		}
	}

	views := make([]AssetView, 0, len(assets))
	for _, a := range assets {
		var last *time.Time
		if t, ok := latest[a.ID]; ok {
			last = &t
		}
		views = append(views, uc.view(a, last, now))
	}
	return views, nil
}

func (uc *AssetUseCase) view(a *domain.Asset, latestChangeAt *time.Time, now time.Time) AssetView {
	state := uc.engine.IsVerified(a.VerificationInput(latestChangeAt), now)
	return AssetView{
		Asset: a,
		Verification: VerificationView{
			IsVerified:   state.IsVerified,
			Reason:       state.Reason,
			Description:  state.Reason.Description(),
			LastChangeAt: latestChangeAt,
		},
	}
}

func (uc *AssetUseCase) resolveReferences(ctx context.Context, records []domain.ChangeRecord) domain.ReferenceNames {
	if uc.operators == nil {
		return domain.ReferenceNames{}
	}

	seen := map[string]bool{}
	var ids []string
	add := func(v *string) {
		if v == nil || *v == domain.ReferenceUnassigned || seen[*v] {
			return
		}
		seen[*v] = true
		ids = append(ids, *v)
	}
	for _, r := range records {
		if spec, ok := uc.table.Lookup(r.FieldName); ok && spec.Kind == domain.FieldKindReference {
			add(r.OldValue)
			add(r.NewValue)
		}
	}
	if len(ids) == 0 {
		return domain.ReferenceNames{}
	}

	names, err := uc.operators.ResolveNames(ctx, ids)
	if err != nil {
		uc.logger.Warn(ctx, "operator lookup failed, rendering ids", map[string]interface{}{
			"kind":  uc.kind,
			"error": err.Error(),
		})
		return domain.ReferenceNames{}
	}
	return names
}

func (uc *AssetUseCase) publish(ctx context.Context, eventType, id, actor string, data map[string]interface{}, at time.Time) {
	if uc.publisher == nil {
		return
	}
	event := ports.NewEvent(eventType, string(uc.kind), id, actor, data, at)
	if err := uc.publisher.Publish(ctx, event); err != nil {
		uc.logger.Warn(ctx, "failed to publish event", map[string]interface{}{
			"event_type": eventType,
			"asset_id":   id,
			"error":      err.Error(),
		})
	}
}

func changedFields(changes []domain.ChangeRecord) []string {
	fields := make([]string, 0, len(changes))
	for _, c := range changes {
		fields = append(fields, c.FieldName)
	}
	return fields
}
