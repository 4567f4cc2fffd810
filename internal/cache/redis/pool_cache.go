package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/yieldengine/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PoolSnapshotCache implements domain.PoolSnapshotCache by storing each pool's
// market snapshot as JSON under a TTL key.
type PoolSnapshotCache struct {
	rdb *redis.Client
}

// NewPoolSnapshotCache creates a PoolSnapshotCache backed by the given Client.
func NewPoolSnapshotCache(c *Client) *PoolSnapshotCache {
	return &PoolSnapshotCache{rdb: c.Underlying()}
}

func poolKey(network, address string) string {
	return "pool:" + strings.ToLower(network) + ":" + strings.ToLower(address)
}

// Set stores snap for ttl.
func (c *PoolSnapshotCache) Set(ctx context.Context, snap domain.PoolSnapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal pool snapshot %s: %w", snap.Address, err)
	}
	if err := c.rdb.Set(ctx, poolKey(snap.Network, snap.Address), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set pool snapshot %s: %w", snap.Address, err)
	}
	return nil
}

// Get returns the cached snapshot or domain.ErrNotFound on a miss.
func (c *PoolSnapshotCache) Get(ctx context.Context, network, address string) (domain.PoolSnapshot, error) {
	data, err := c.rdb.Get(ctx, poolKey(network, address)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PoolSnapshot{}, domain.ErrNotFound
		}
		return domain.PoolSnapshot{}, fmt.Errorf("redis: get pool snapshot %s: %w", address, err)
	}

	var snap domain.PoolSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.PoolSnapshot{}, fmt.Errorf("redis: unmarshal pool snapshot %s: %w", address, err)
	}
	return snap, nil
}

// Invalidate drops a cached snapshot.
func (c *PoolSnapshotCache) Invalidate(ctx context.Context, network, address string) error {
	if err := c.rdb.Del(ctx, poolKey(network, address)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate pool snapshot %s: %w", address, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PoolSnapshotCache = (*PoolSnapshotCache)(nil)
