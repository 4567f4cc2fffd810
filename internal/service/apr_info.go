package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/yieldengine/internal/domain"
)

// AprInfo reports the inputs the next distribution would use.
type AprInfo struct {
	pools       Aggregator
	adjustments AdjustmentLoader
	positions   domain.PositionStore
}

// NewAprInfo creates an AprInfo.
func NewAprInfo(pools Aggregator, adjustments AdjustmentLoader, positions domain.PositionStore) *AprInfo {
	return &AprInfo{pools: pools, adjustments: adjustments, positions: positions}
}

// Snapshot aggregates pools, loads adjustments and totals active capital.
func (a *AprInfo) Snapshot(ctx context.Context) (domain.AprSystemInfo, error) {
	agg, err := a.pools.Aggregate(ctx)
	if err != nil {
		return domain.AprSystemInfo{}, fmt.Errorf("apr_info: %w", err)
	}
	adj, usedDefaults, err := a.adjustments.Load(ctx)
	if err != nil {
		return domain.AprSystemInfo{}, fmt.Errorf("apr_info: %w", err)
	}
	positions, err := a.positions.ListActive(ctx)
	if err != nil {
		return domain.AprSystemInfo{}, fmt.Errorf("apr_info: list positions: %w", err)
	}

	info := domain.AprSystemInfo{
		AveragePoolAPR:          agg.AverageAPR,
		Pools:                   agg.Pools,
		Adjustments:             make([]domain.AdjustmentInfo, 0, len(adj)),
		ActivePositions:         len(positions),
		TotalActiveCapital:      decimal.Zero,
		UsingDefaultAdjustments: usedDefaults,
	}
	for _, d := range sortedDurations(adj) {
		info.Adjustments = append(info.Adjustments, domain.AdjustmentInfo{
			DurationDays: d,
			Adjustment:   adj[d],
			AdjustedAPR:  domain.AdjustedAPR(agg.AverageAPR, adj[d]),
		})
	}
	for _, p := range positions {
		info.TotalActiveCapital = info.TotalActiveCapital.Add(p.Capital)
	}
	return info, nil
}
