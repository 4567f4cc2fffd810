package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/yieldengine/internal/domain"
)

// PoolStore implements domain.PoolRegistry using PostgreSQL.
type PoolStore struct {
	pool *pgxpool.Pool
}

// NewPoolStore creates a new PoolStore backed by the given connection pool.
func NewPoolStore(pool *pgxpool.Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

var _ domain.PoolRegistry = (*PoolStore)(nil)

// ListActive returns the active pools in registration order.
func (s *PoolStore) ListActive(ctx context.Context) ([]domain.Pool, error) {
	const query = `
		SELECT id, address, name, network, active, created_at
		FROM pools
		WHERE active = TRUE
		ORDER BY id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active pools: %w", err)
	}
	defer rows.Close()

	var pools []domain.Pool
	for rows.Next() {
		var p domain.Pool
		if err := rows.Scan(&p.ID, &p.Address, &p.Name, &p.Network, &p.Active, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan pool: %w", err)
		}
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate pools: %w", err)
	}
	return pools, nil
}

// Upsert registers a pool or refreshes its metadata.
func (s *PoolStore) Upsert(ctx context.Context, p domain.Pool) error {
	const query = `
		INSERT INTO pools (address, name, network, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE SET
			name    = EXCLUDED.name,
			network = EXCLUDED.network,
			active  = EXCLUDED.active`

	_, err := s.pool.Exec(ctx, query, strings.ToLower(p.Address), p.Name, p.Network, p.Active)
	if err != nil {
		return fmt.Errorf("postgres: upsert pool %s: %w", p.Address, err)
	}
	return nil
}

// SetActive toggles whether a pool participates in aggregation and returns
// the updated row.
func (s *PoolStore) SetActive(ctx context.Context, address string, active bool) (domain.Pool, error) {
	const query = `
		UPDATE pools SET active = $2
		WHERE address = $1
		RETURNING id, address, name, network, active, created_at`

	var p domain.Pool
	err := s.pool.QueryRow(ctx, query, strings.ToLower(address), active).
		Scan(&p.ID, &p.Address, &p.Name, &p.Network, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Pool{}, fmt.Errorf("postgres: pool %s: %w", address, domain.ErrNotFound)
		}
		return domain.Pool{}, fmt.Errorf("postgres: set pool %s active: %w", address, err)
	}
	return p, nil
}
