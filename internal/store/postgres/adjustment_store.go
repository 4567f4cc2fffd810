package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/yieldengine/internal/domain"
)

// AdjustmentStore implements domain.AdjustmentStore using PostgreSQL.
type AdjustmentStore struct {
	pool *pgxpool.Pool
}

// NewAdjustmentStore creates a new AdjustmentStore backed by the given connection pool.
func NewAdjustmentStore(pool *pgxpool.Pool) *AdjustmentStore {
	return &AdjustmentStore{pool: pool}
}

var _ domain.AdjustmentStore = (*AdjustmentStore)(nil)

// List returns every duration adjustment ordered by duration.
func (s *AdjustmentStore) List(ctx context.Context) ([]domain.DurationAdjustment, error) {
	const query = `
		SELECT duration_days, adjustment_pct, description, updated_at, updated_by
		FROM duration_adjustments
		ORDER BY duration_days`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list duration adjustments: %w", err)
	}
	defer rows.Close()

	var out []domain.DurationAdjustment
	for rows.Next() {
		var a domain.DurationAdjustment
		if err := rows.Scan(&a.DurationDays, &a.AdjustmentPct, &a.Description, &a.UpdatedAt, &a.UpdatedBy); err != nil {
			return nil, fmt.Errorf("postgres: scan duration adjustment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate duration adjustments: %w", err)
	}
	return out, nil
}

// Upsert creates or replaces the adjustment for a duration bucket.
func (s *AdjustmentStore) Upsert(ctx context.Context, a domain.DurationAdjustment) error {
	const query = `
		INSERT INTO duration_adjustments (duration_days, adjustment_pct, description, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (duration_days) DO UPDATE SET
			adjustment_pct = EXCLUDED.adjustment_pct,
			description    = EXCLUDED.description,
			updated_by     = EXCLUDED.updated_by,
			updated_at     = NOW()`

	_, err := s.pool.Exec(ctx, query, a.DurationDays, a.AdjustmentPct, a.Description, a.UpdatedBy)
	if err != nil {
		return fmt.Errorf("postgres: upsert adjustment for %d days: %w", a.DurationDays, err)
	}
	return nil
}
