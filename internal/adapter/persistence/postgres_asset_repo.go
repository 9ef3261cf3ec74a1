package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/fleetwatch/fleetwatch/internal/ports"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresAssetRepository implements AssetRepository and HistoryRepository using PostgreSQL
type PostgresAssetRepository struct {
	db           *sql.DB
	queryTimeout time.Duration
}

var (
	_ ports.AssetRepository   = (*PostgresAssetRepository)(nil)
	_ ports.HistoryRepository = (*PostgresAssetRepository)(nil)
)

// NewPostgresAssetRepository creates a new PostgreSQL asset repository. Every
// call runs under queryTimeout when it is positive.
func NewPostgresAssetRepository(db *sql.DB, queryTimeout time.Duration) *PostgresAssetRepository {
	return &PostgresAssetRepository{db: db, queryTimeout: queryTimeout}
}

const assetColumns = `id, kind, fields, created_at, updated_at, updated_last, updated_by`

// Create saves a new asset
func (r *PostgresAssetRepository) Create(ctx context.Context, asset *domain.Asset) error {
	ctx, cancel := withQueryTimeout(ctx, r.queryTimeout)
	defer cancel()

	query := `
		INSERT INTO assets (id, kind, fields, created_at, updated_at, updated_last, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	fields, err := json.Marshal(asset.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		asset.ID,
		string(asset.Kind),
		fields,
		asset.CreatedAt,
		asset.UpdatedAt,
		asset.UpdatedLast,
		asset.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to create asset: %w", err)
	}

	return nil
}

// FindByID retrieves an asset by its ID
func (r *PostgresAssetRepository) FindByID(ctx context.Context, kind domain.AssetKind, id string) (*domain.Asset, error) {
	ctx, cancel := withQueryTimeout(ctx, r.queryTimeout)
	defer cancel()

	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrAssetNotFound
	}

	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1 AND kind = $2`

	asset, err := scanAsset(r.db.QueryRowContext(ctx, query, id, string(kind)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAssetNotFound
		}
		return nil, fmt.Errorf("failed to find asset: %w", err)
	}

	return asset, nil
}

// List retrieves assets based on filter criteria
func (r *PostgresAssetRepository) List(ctx context.Context, kind domain.AssetKind, filter domain.AssetFilter) ([]*domain.Asset, error) {
	ctx, cancel := withQueryTimeout(ctx, r.queryTimeout)
	defer cancel()

	where, args := buildAssetWhere(kind, filter)
	query := `SELECT ` + assetColumns + ` FROM assets WHERE ` + where + ` ORDER BY created_at DESC, id`

	argIndex := len(args) + 1
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
		argIndex++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	assets := []*domain.Asset{}
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, asset)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}

	return assets, nil
}

// Count returns the number of assets matching the filter
func (r *PostgresAssetRepository) Count(ctx context.Context, kind domain.AssetKind, filter domain.AssetFilter) (int, error) {
	ctx, cancel := withQueryTimeout(ctx, r.queryTimeout)
	defer cancel()

	where, args := buildAssetWhere(kind, filter)

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets WHERE `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count assets: %w", err)
	}

	return count, nil
}

// UpdateWithHistory writes the asset and its change records in one transaction,
// guarded by the updated_at value the diff was computed against.
func (r *PostgresAssetRepository) UpdateWithHistory(ctx context.Context, asset *domain.Asset, expectedUpdatedAt time.Time, changes []domain.ChangeRecord) error {
	ctx, cancel := withQueryTimeout(ctx, r.queryTimeout)
	defer cancel()

	fields, err := json.Marshal(asset.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE assets
			SET fields = $3, updated_at = $4
			WHERE id = $1 AND kind = $2 AND updated_at = $5
		`, asset.ID, string(asset.Kind), fields, asset.UpdatedAt, expectedUpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update asset: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return r.missingOrConflict(ctx, tx, asset.Kind, asset.ID)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO asset_changes (id, asset_id, field_name, old_value, new_value, changed_at, changed_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare change insert: %w", err)
		}
		defer stmt.Close()

		for i := range changes {
			if changes[i].ID == "" {
				changes[i].ID = uuid.NewString()
			}
			c := changes[i]
			if _, err := stmt.ExecContext(ctx, c.ID, asset.ID, c.FieldName, c.OldValue, c.NewValue, c.ChangedAt, c.ChangedBy); err != nil {
				return fmt.Errorf("failed to insert change record: %w", err)
			}
		}

		return nil
	})
}

// Verify records a verification without touching updated_at
func (r *PostgresAssetRepository) Verify(ctx context.Context, kind domain.AssetKind, id, actor string, at time.Time) error {
	ctx, cancel := withQueryTimeout(ctx, r.queryTimeout)
	defer cancel()

	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrAssetNotFound
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE assets SET updated_last = $3, updated_by = $4 WHERE id = $1 AND kind = $2`,
		id, string(kind), at, actor)
	if err != nil {
		return fmt.Errorf("failed to verify asset: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrAssetNotFound
	}

	return nil
}

// Delete removes an asset and its change records
func (r *PostgresAssetRepository) Delete(ctx context.Context, kind domain.AssetKind, id string) error {
	ctx, cancel := withQueryTimeout(ctx, r.queryTimeout)
	defer cancel()

	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrAssetNotFound
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM asset_changes WHERE asset_id = (SELECT id FROM assets WHERE id = $1 AND kind = $2)`,
			id, string(kind)); err != nil {
			return fmt.Errorf("failed to delete change records: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE id = $1 AND kind = $2`, id, string(kind))
		if err != nil {
			return fmt.Errorf("failed to delete asset: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return domain.ErrAssetNotFound
		}
		return nil
	})
}

// ListByAsset returns change records newest first; one edit's records keep insertion order
func (r *PostgresAssetRepository) ListByAsset(ctx context.Context, assetID string) ([]domain.ChangeRecord, error) {
	ctx, cancel := withQueryTimeout(ctx, r.queryTimeout)
	defer cancel()

	records := []domain.ChangeRecord{}
	if _, err := uuid.Parse(assetID); err != nil {
		return records, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, asset_id, field_name, old_value, new_value, changed_at, changed_by
		FROM asset_changes
		WHERE asset_id = $1
		ORDER BY changed_at DESC, seq ASC
	`, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query change records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.ChangeRecord
		var oldValue, newValue sql.NullString
		if err := rows.Scan(&c.ID, &c.EntityID, &c.FieldName, &oldValue, &newValue, &c.ChangedAt, &c.ChangedBy); err != nil {
			return nil, fmt.Errorf("failed to scan change record: %w", err)
		}
		c.OldValue = mapStringPtr(oldValue)
		c.NewValue = mapStringPtr(newValue)
		records = append(records, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating change records: %w", err)
	}

	return records, nil
}

// LatestChangeAt returns the newest changed_at per asset in a single query
func (r *PostgresAssetRepository) LatestChangeAt(ctx context.Context, assetIDs []string) (map[string]time.Time, error) {
	ctx, cancel := withQueryTimeout(ctx, r.queryTimeout)
	defer cancel()

	latest := make(map[string]time.Time, len(assetIDs))

	ids := make([]string, 0, len(assetIDs))
	for _, id := range assetIDs {
		if _, err := uuid.Parse(id); err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return latest, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT asset_id, MAX(changed_at)
		FROM asset_changes
		WHERE asset_id = ANY($1::uuid[])
		GROUP BY asset_id
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query latest changes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("failed to scan latest change: %w", err)
		}
		latest[id] = at
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating latest changes: %w", err)
	}

	return latest, nil
}

func (r *PostgresAssetRepository) missingOrConflict(ctx context.Context, tx *sql.Tx, kind domain.AssetKind, id string) error {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM assets WHERE id = $1 AND kind = $2)`, id, string(kind)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check asset: %w", err)
	}
	if !exists {
		return domain.ErrAssetNotFound
	}
	return domain.ErrConcurrentUpdate
}

func (r *PostgresAssetRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAsset(row rowScanner) (*domain.Asset, error) {
	var asset domain.Asset
	var kind string
	var fields []byte
	var updatedLast sql.NullTime
	var updatedBy sql.NullString

	if err := row.Scan(&asset.ID, &kind, &fields, &asset.CreatedAt, &asset.UpdatedAt, &updatedLast, &updatedBy); err != nil {
		return nil, err
	}

	asset.Kind = domain.AssetKind(kind)
	asset.Fields = map[string]string{}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &asset.Fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
		}
	}
	if updatedLast.Valid {
		t := updatedLast.Time
		asset.UpdatedLast = &t
	}
	asset.UpdatedBy = mapStringPtr(updatedBy)

	return &asset, nil
}

// buildAssetWhere returns the WHERE clause shared by List and Count
func buildAssetWhere(kind domain.AssetKind, filter domain.AssetFilter) (string, []interface{}) {
	conditions := []string{"kind = $1"}
	args := []interface{}{string(kind)}
	argIndex := 2

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("fields->>'status' = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	if filter.AssignedPlant != nil {
		conditions = append(conditions, fmt.Sprintf("fields->>'assigned_plant' = $%d", argIndex))
		args = append(args, *filter.AssignedPlant)
	}

	return strings.Join(conditions, " AND "), args
}

// Helper method to map SQL null types
func mapStringPtr(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}
