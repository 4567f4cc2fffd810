package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultAdjustmentsVersion identifies the built-in fallback schedule.
const DefaultAdjustmentsVersion = "2024-01"

// DurationAdjustment is a signed percentage added to the pool average for
// positions with the given commitment length.
type DurationAdjustment struct {
	DurationDays  int             `json:"duration_days"`
	AdjustmentPct decimal.Decimal `json:"adjustment_pct"`
	Description   string          `json:"description,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
	UpdatedBy     string          `json:"updated_by,omitempty"`
}

// AdjustmentMap maps a duration bucket in days to its adjustment.
type AdjustmentMap map[int]decimal.Decimal

// For returns the adjustment for days. Missing buckets adjust by zero.
func (m AdjustmentMap) For(days int) decimal.Decimal {
	if adj, ok := m[days]; ok {
		return adj
	}
	return decimal.Zero
}

// NewAdjustmentMap builds a map from stored rows. A row with a non-positive
// duration is a configuration error.
func NewAdjustmentMap(rows []DurationAdjustment) (AdjustmentMap, error) {
	m := make(AdjustmentMap, len(rows))
	for _, r := range rows {
		if r.DurationDays <= 0 {
			return nil, fmt.Errorf("%w: %d days", ErrInvalidDuration, r.DurationDays)
		}
		m[r.DurationDays] = r.AdjustmentPct
	}
	return m, nil
}

// DefaultAdjustments returns a fresh copy of the built-in schedule.
func DefaultAdjustments() AdjustmentMap {
	return AdjustmentMap{
		30:  decimal.RequireFromString("-24.56"),
		90:  decimal.RequireFromString("-17.37"),
		365: decimal.RequireFromString("-4.52"),
	}
}
