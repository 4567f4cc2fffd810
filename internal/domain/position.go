package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionStatusPending   PositionStatus = "pending"
	PositionStatusActive    PositionStatus = "active"
	PositionStatusFinalized PositionStatus = "finalized"
	PositionStatusClosed    PositionStatus = "closed"
)

// Valid reports whether s is a known lifecycle state.
func (s PositionStatus) Valid() bool {
	switch s {
	case PositionStatusPending, PositionStatusActive, PositionStatusFinalized, PositionStatusClosed:
		return true
	}
	return false
}

// Position is a user's capital commitment to the managed pools. Only Active
// positions take part in the daily distribution.
type Position struct {
	ID                 int64           `json:"id"`
	Wallet             string          `json:"wallet"`
	PoolAddress        string          `json:"pool_address"`
	Capital            decimal.Decimal `json:"capital"`
	DurationDays       int             `json:"duration_days"`
	Status             PositionStatus  `json:"status"`
	FeeBalance         decimal.Decimal `json:"fee_balance"`
	CurrentAPR         decimal.Decimal `json:"current_apr"`
	LastDistributionAt *time.Time      `json:"last_distribution_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// NormalizeWallet lowercases and trims an address so that lookups and
// comparisons are case-insensitive.
func NormalizeWallet(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
