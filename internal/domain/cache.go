package domain

import (
	"context"
	"time"
)

// PoolSnapshotCache keeps recent market data so repeated aggregations within
// the TTL do not hit the upstream API.
type PoolSnapshotCache interface {
	Set(ctx context.Context, snap PoolSnapshot, ttl time.Duration) error
	Get(ctx context.Context, network, address string) (PoolSnapshot, error)
	Invalidate(ctx context.Context, network, address string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
	StreamRecent(ctx context.Context, stream string, count int) ([]StreamMessage, error)
}
