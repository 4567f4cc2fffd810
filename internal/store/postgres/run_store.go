package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/yieldengine/internal/domain"
)

// RunStore implements domain.DistributionRunStore using PostgreSQL.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a new RunStore backed by the given connection pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

var _ domain.DistributionRunStore = (*RunStore)(nil)

const runSelectCols = `id::text, run_date, executed_by, dry_run, success, average_apr,
	positions_updated, positions_failed, total_distributed, error_message,
	result, started_at, finished_at`

func scanRun(row pgx.Row) (domain.DistributionRun, error) {
	var r domain.DistributionRun
	err := row.Scan(
		&r.ID, &r.RunDate, &r.ExecutedBy, &r.DryRun, &r.Success, &r.AverageAPR,
		&r.PositionsUpdated, &r.PositionsFailed, &r.TotalDistributed, &r.ErrorMessage,
		&r.Result, &r.StartedAt, &r.FinishedAt,
	)
	return r, err
}

// Insert records a finished run.
func (s *RunStore) Insert(ctx context.Context, r domain.DistributionRun) error {
	const query = `
		INSERT INTO distribution_runs (
			id, run_date, executed_by, dry_run, success, average_apr,
			positions_updated, positions_failed, total_distributed, error_message,
			result, started_at, finished_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13
		)`

	id, err := uuid.Parse(r.ID)
	if err != nil {
		return fmt.Errorf("postgres: distribution run id %q: %w", r.ID, err)
	}

	var result any
	if len(r.Result) > 0 {
		result = r.Result
	}

	_, err = s.pool.Exec(ctx, query,
		id, r.RunDate, r.ExecutedBy, r.DryRun, r.Success, r.AverageAPR,
		r.PositionsUpdated, r.PositionsFailed, r.TotalDistributed, r.ErrorMessage,
		result, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert distribution run %s: %w", r.ID, err)
	}
	return nil
}

// GetByID returns a single run.
func (s *RunStore) GetByID(ctx context.Context, id string) (domain.DistributionRun, error) {
	query := `SELECT ` + runSelectCols + ` FROM distribution_runs WHERE id::text = $1`

	r, err := scanRun(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DistributionRun{}, fmt.Errorf("postgres: distribution run %s: %w", id, domain.ErrNotFound)
		}
		return domain.DistributionRun{}, fmt.Errorf("postgres: get distribution run %s: %w", id, err)
	}
	return r, nil
}

// ListRecent returns runs newest first.
func (s *RunStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.DistributionRun, error) {
	query := `SELECT ` + runSelectCols + ` FROM distribution_runs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND started_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND started_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY started_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 30
	}
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)
	argIdx++

	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list distribution runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.DistributionRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan distribution run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate distribution runs: %w", err)
	}
	return runs, nil
}
