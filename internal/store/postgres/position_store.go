package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/yieldengine/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

var _ domain.PositionStore = (*PositionStore)(nil)

const positionSelectCols = `id, wallet_address, pool_address, capital, duration_days,
	status, fee_balance, current_apr, last_distribution_at, created_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var status string

	err := row.Scan(
		&p.ID, &p.Wallet, &p.PoolAddress, &p.Capital, &p.DurationDays,
		&status, &p.FeeBalance, &p.CurrentAPR, &p.LastDistributionAt, &p.CreatedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func collectPositions(rows pgx.Rows) ([]domain.Position, error) {
	defer rows.Close()
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// ListActive returns every active position ordered by id. The distribution
// engine processes them in this order.
func (s *PositionStore) ListActive(ctx context.Context) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE status = $1 ORDER BY id`

	rows, err := s.pool.Query(ctx, query, string(domain.PositionStatusActive))
	if err != nil {
		return nil, fmt.Errorf("postgres: list active positions: %w", err)
	}
	positions, err := collectPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan active positions: %w", err)
	}
	return positions, nil
}

// GetByID returns a single position.
func (s *PositionStore) GetByID(ctx context.Context, id int64) (domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE id = $1`

	p, err := scanPosition(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, fmt.Errorf("postgres: position %d: %w", id, domain.ErrNotFound)
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %d: %w", id, err)
	}
	return p, nil
}

// ApplyDistribution writes a run's outcome for one position. The balance is
// stored at six decimal places; the GREATEST guard mirrors the domain floor.
func (s *PositionStore) ApplyDistribution(ctx context.Context, u domain.DistributionUpdate) error {
	const query = `
		UPDATE positions SET
			fee_balance          = GREATEST(ROUND($2::numeric, 6), 0),
			current_apr          = $3,
			last_distribution_at = $4,
			updated_at           = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		u.PositionID, u.FeeBalance.StringFixed(domain.YieldPrecision), u.AdjustedAPR, u.AsOf,
	)
	if err != nil {
		return fmt.Errorf("postgres: apply distribution to position %d: %w", u.PositionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: position %d: %w", u.PositionID, domain.ErrNotFound)
	}
	return nil
}
