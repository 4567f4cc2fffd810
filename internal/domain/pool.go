package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pool is a registered liquidity venue whose yield feeds the daily average.
type Pool struct {
	ID        int64     `json:"id"`
	Address   string    `json:"address"`
	Name      string    `json:"name"`
	Network   string    `json:"network"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// PoolSnapshot is the market data fetched for one pool.
type PoolSnapshot struct {
	Address   string          `json:"address"`
	Network   string          `json:"network"`
	APR       decimal.Decimal `json:"apr"`
	TVL       decimal.Decimal `json:"tvl"`
	Volume24h decimal.Decimal `json:"volume_24h"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// PoolYield is one pool's contribution to an aggregation. When the fetch
// failed, APR and TVL are zero and Error holds the cause.
type PoolYield struct {
	Name    string          `json:"name"`
	Address string          `json:"address"`
	Network string          `json:"network"`
	APR     decimal.Decimal `json:"apr"`
	TVL     decimal.Decimal `json:"tvl"`
	Error   string          `json:"error,omitempty"`
}

// Aggregate is the pool-wide yield picture for a run.
type Aggregate struct {
	AverageAPR decimal.Decimal `json:"average_apr"`
	Pools      []PoolYield     `json:"pools"`
}

// Empty reports whether there was nothing to aggregate.
func (a Aggregate) Empty() bool { return len(a.Pools) == 0 }
