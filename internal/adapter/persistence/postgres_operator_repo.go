package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/fleetwatch/fleetwatch/internal/ports"
	"github.com/lib/pq"
)

// PostgresOperatorRepository implements OperatorRepository using PostgreSQL
type PostgresOperatorRepository struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// NewPostgresOperatorRepository creates a new PostgreSQL operator repository
func NewPostgresOperatorRepository(db *sql.DB, queryTimeout time.Duration) ports.OperatorRepository {
	return &PostgresOperatorRepository{db: db, queryTimeout: queryTimeout}
}

// Create inserts an operator or refreshes an existing one
func (r *PostgresOperatorRepository) Create(ctx context.Context, operator *domain.Operator) error {
	ctx, cancel := withQueryTimeout(ctx, r.queryTimeout)
	defer cancel()

	query := `
		INSERT INTO operators (employee_id, name, plant, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (employee_id) DO UPDATE
		SET name = EXCLUDED.name, plant = EXCLUDED.plant, status = EXCLUDED.status
	`

	_, err := r.db.ExecContext(ctx, query,
		operator.EmployeeID,
		operator.Name,
		operator.Plant,
		operator.Status,
		operator.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create operator: %w", err)
	}

	return nil
}

// NamesByIDs maps employee ids to names in one query
func (r *PostgresOperatorRepository) NamesByIDs(ctx context.Context, employeeIDs []string) (map[string]string, error) {
	ctx, cancel := withQueryTimeout(ctx, r.queryTimeout)
	defer cancel()

	names := make(map[string]string, len(employeeIDs))
	if len(employeeIDs) == 0 {
		return names, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT employee_id, name FROM operators WHERE employee_id = ANY($1)`,
		pq.Array(employeeIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query operators: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan operator: %w", err)
		}
		names[id] = name
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operators: %w", err)
	}

	return names, nil
}
