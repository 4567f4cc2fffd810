package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// DistributionUpdate is the write a run applies to one position.
type DistributionUpdate struct {
	PositionID  int64
	FeeBalance  decimal.Decimal
	AdjustedAPR decimal.Decimal
	AsOf        time.Time
}

// PositionStore persists positions.
type PositionStore interface {
	ListActive(ctx context.Context) ([]Position, error)
	GetByID(ctx context.Context, id int64) (Position, error)
	ApplyDistribution(ctx context.Context, u DistributionUpdate) error
}

// PoolRegistry lists the pools that take part in aggregation.
type PoolRegistry interface {
	ListActive(ctx context.Context) ([]Pool, error)
	Upsert(ctx context.Context, p Pool) error
	SetActive(ctx context.Context, address string, active bool) (Pool, error)
}

// AdjustmentStore persists the duration adjustment table.
type AdjustmentStore interface {
	List(ctx context.Context) ([]DurationAdjustment, error)
	Upsert(ctx context.Context, adj DurationAdjustment) error
}

// WBCConfigStore persists the reward token key/value configuration.
type WBCConfigStore interface {
	GetAll(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
}

// WBCTransactionStore persists reward token transfers keyed by hash.
type WBCTransactionStore interface {
	Upsert(ctx context.Context, tx WBCTransaction) error
	GetByHash(ctx context.Context, hash string) (WBCTransaction, error)
	List(ctx context.Context, filter TxFilter) ([]WBCTransaction, error)
}

// DistributionRunStore persists run history.
type DistributionRunStore interface {
	Insert(ctx context.Context, run DistributionRun) error
	GetByID(ctx context.Context, id string) (DistributionRun, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]DistributionRun, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
