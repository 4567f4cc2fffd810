package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/yieldengine/internal/domain"
)

// AdjustmentTable loads the per-duration APR adjustments.
type AdjustmentTable struct {
	store  domain.AdjustmentStore
	logger *slog.Logger
}

// NewAdjustmentTable creates an AdjustmentTable backed by store.
func NewAdjustmentTable(store domain.AdjustmentStore, logger *slog.Logger) *AdjustmentTable {
	return &AdjustmentTable{
		store:  store,
		logger: logger.With(slog.String("component", "adjustments")),
	}
}

// Load reads the adjustment map fresh from the store. If the store cannot be
// read it falls back to domain.DefaultAdjustments and reports usedDefaults.
// A stored bucket with a non-positive duration is returned as an error.
func (t *AdjustmentTable) Load(ctx context.Context) (m domain.AdjustmentMap, usedDefaults bool, err error) {
	rows, err := t.store.List(ctx)
	if err != nil {
		t.logger.WarnContext(ctx, "adjustments unavailable, using defaults",
			slog.String("version", domain.DefaultAdjustmentsVersion),
			slog.String("error", err.Error()),
		)
		return domain.DefaultAdjustments(), true, nil
	}

	m, err = domain.NewAdjustmentMap(rows)
	if err != nil {
		return nil, false, fmt.Errorf("adjustments: %w", err)
	}
	t.logger.DebugContext(ctx, "adjustments loaded", slog.Int("buckets", len(m)))
	return m, false, nil
}

// Set writes a single bucket's adjustment.
func (t *AdjustmentTable) Set(ctx context.Context, days int, pct decimal.Decimal, description, actor string) error {
	if days <= 0 {
		return fmt.Errorf("adjustments: %w: %d days", domain.ErrInvalidDuration, days)
	}
	adj := domain.DurationAdjustment{
		DurationDays:  days,
		AdjustmentPct: pct,
		Description:   description,
		UpdatedAt:     time.Now().UTC(),
		UpdatedBy:     actor,
	}
	if err := t.store.Upsert(ctx, adj); err != nil {
		return fmt.Errorf("adjustments: set %d days: %w", days, err)
	}
	t.logger.InfoContext(ctx, "adjustment updated",
		slog.Int("duration_days", days),
		slog.String("adjustment_pct", pct.String()),
		slog.String("actor", actor),
	)
	return nil
}

// sortedDurations returns the buckets of m in ascending order.
func sortedDurations(m domain.AdjustmentMap) []int {
	out := make([]int, 0, len(m))
	for d := range m {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}
