package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/yieldengine/internal/domain"
)

// WBCConfigStore implements domain.WBCConfigStore over the wbc_config
// key/value table.
type WBCConfigStore struct {
	pool *pgxpool.Pool
}

// NewWBCConfigStore creates a new WBCConfigStore backed by the given connection pool.
func NewWBCConfigStore(pool *pgxpool.Pool) *WBCConfigStore {
	return &WBCConfigStore{pool: pool}
}

var _ domain.WBCConfigStore = (*WBCConfigStore)(nil)

// GetAll returns every key/value pair.
func (s *WBCConfigStore) GetAll(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM wbc_config`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load wbc config: %w", err)
	}
	defer rows.Close()

	kv := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("postgres: scan wbc config: %w", err)
		}
		kv[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate wbc config: %w", err)
	}
	return kv, nil
}

// Set writes a single key.
func (s *WBCConfigStore) Set(ctx context.Context, key, value string) error {
	const query = `
		INSERT INTO wbc_config (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value      = EXCLUDED.value,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("postgres: set wbc config %s: %w", key, err)
	}
	return nil
}
