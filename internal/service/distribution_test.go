package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/yieldengine/internal/domain"
)

var asOf = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func twoPoolAggregate() *staticAggregator {
	return &staticAggregator{agg: domain.Aggregate{
		AverageAPR: domain.AverageAPR([]decimal.Decimal{d("60"), d("63.28")}),
		Pools: []domain.PoolYield{
			{Name: "a", APR: d("60")},
			{Name: "b", APR: d("63.28")},
		},
	}}
}

func activePosition(id int64, capital string, days int, fee string) domain.Position {
	return domain.Position{
		ID:           id,
		Wallet:       "0x00000000000000000000000000000000000000b1",
		Capital:      d(capital),
		DurationDays: days,
		Status:       domain.PositionStatusActive,
		FeeBalance:   d(fee),
	}
}

func newEngine(agg Aggregator, adj AdjustmentLoader, pos domain.PositionStore, rewards RewardSender) *DistributionEngine {
	return NewDistributionEngine(agg, adj, pos, rewards, EngineOptions{SendRewards: true, KeepLineItems: true}, testLogger())
}

func TestRunAppliesWorkedExample(t *testing.T) {
	positions := &fakePositions{active: []domain.Position{activePosition(1, "10000", 365, "100")}}
	rewards := &fakeRewards{result: domain.TransferResult{Success: true}}
	e := newEngine(twoPoolAggregate(), staticAdjustments{m: domain.DefaultAdjustments()}, positions, rewards)

	res := e.Run(context.Background(), asOf, false)

	require.True(t, res.Success, res.Error)
	assert.True(t, d("61.64").Equal(res.AveragePoolAPR), res.AveragePoolAPR.String())
	assert.Equal(t, 1, res.PositionsUpdated)

	require.Len(t, positions.applied, 1)
	u := positions.applied[0]
	assert.True(t, d("57.12").Equal(u.AdjustedAPR), u.AdjustedAPR.String())
	assert.True(t, d("115.649315").Equal(u.FeeBalance), u.FeeBalance.String())
	assert.Equal(t, asOf, u.AsOf)

	assert.True(t, d("15.649315").Equal(res.TotalDistributed))
	require.Len(t, res.ByDuration, 1)
	assert.Equal(t, 365, res.ByDuration[0].DurationDays)
	assert.True(t, d("-4.52").Equal(res.ByDuration[0].Adjustment))

	require.Len(t, rewards.sent, 1)
	assert.True(t, d("15.649315").Equal(rewards.sent[0]))
	assert.Equal(t, 1, res.Rewards.Sent)
}

func TestRunClampsNegativeYield(t *testing.T) {
	// avg 1 with -24.56 for 30 days gives -23.56%; 3100 capital loses ~2.0 a day.
	agg := &staticAggregator{agg: domain.Aggregate{AverageAPR: d("1"), Pools: []domain.PoolYield{{APR: d("1")}}}}
	positions := &fakePositions{active: []domain.Position{activePosition(7, "3100", 30, "1.5")}}
	rewards := &fakeRewards{}
	e := newEngine(agg, staticAdjustments{m: domain.DefaultAdjustments()}, positions, rewards)

	res := e.Run(context.Background(), asOf, false)

	require.True(t, res.Success)
	require.Len(t, positions.applied, 1)
	assert.True(t, positions.applied[0].FeeBalance.IsZero(), positions.applied[0].FeeBalance.String())
	assert.True(t, res.TotalDistributed.IsNegative())
	assert.Empty(t, rewards.sent, "no reward for a negative day")
}

func TestRunDryRunWritesNothing(t *testing.T) {
	mk := func() *fakePositions {
		return &fakePositions{active: []domain.Position{
			activePosition(1, "10000", 365, "0"),
			activePosition(2, "5000", 90, "3"),
		}}
	}

	dryPositions, dryRewards := mk(), &fakeRewards{result: domain.TransferResult{Success: true}}
	dry := newEngine(twoPoolAggregate(), staticAdjustments{m: domain.DefaultAdjustments()}, dryPositions, dryRewards).
		Run(context.Background(), asOf, true)

	realPositions, realRewards := mk(), &fakeRewards{result: domain.TransferResult{Success: true}}
	real := newEngine(twoPoolAggregate(), staticAdjustments{m: domain.DefaultAdjustments()}, realPositions, realRewards).
		Run(context.Background(), asOf, false)

	assert.Empty(t, dryPositions.applied)
	assert.Empty(t, dryRewards.sent)
	assert.True(t, dry.DryRun)

	assert.Equal(t, real.PositionsUpdated, dry.PositionsUpdated)
	assert.True(t, real.TotalDistributed.Equal(dry.TotalDistributed))
	assert.Equal(t, len(real.ByDuration), len(dry.ByDuration))
	assert.Len(t, realPositions.applied, 2)
}

func TestRunIsolatesPositionFailures(t *testing.T) {
	bad := activePosition(2, "5000", 0, "0")
	positions := &fakePositions{
		active:  []domain.Position{activePosition(1, "10000", 365, "0"), bad, activePosition(3, "1000", 90, "0")},
		failIDs: map[int64]bool{3: true},
	}
	rewards := &fakeRewards{result: domain.TransferResult{Success: true}}
	res := newEngine(twoPoolAggregate(), staticAdjustments{m: domain.DefaultAdjustments()}, positions, rewards).
		Run(context.Background(), asOf, false)

	require.True(t, res.Success)
	assert.Equal(t, 1, res.PositionsUpdated)
	assert.Equal(t, 2, res.PositionsFailed)
	assert.Len(t, rewards.sent, 1, "failed writes send no reward")
	require.Len(t, res.Positions, 3)
	assert.NotEmpty(t, res.Positions[1].Error)
	assert.NotEmpty(t, res.Positions[2].Error)
}

func TestRunRewardFailureKeepsBalance(t *testing.T) {
	positions := &fakePositions{active: []domain.Position{activePosition(1, "10000", 365, "0")}}
	rewards := &fakeRewards{result: domain.TransferResult{Error: "rpc down"}}
	res := newEngine(twoPoolAggregate(), staticAdjustments{m: domain.AdjustmentMap{}}, positions, rewards).
		Run(context.Background(), asOf, false)

	require.True(t, res.Success)
	assert.Len(t, positions.applied, 1)
	assert.Equal(t, 1, res.PositionsUpdated)
	assert.Equal(t, 1, res.Rewards.Failed)
}

func TestRunMissingAdjustmentIsZero(t *testing.T) {
	positions := &fakePositions{active: []domain.Position{activePosition(1, "3650", 180, "0")}}
	res := newEngine(twoPoolAggregate(), staticAdjustments{m: domain.DefaultAdjustments()}, positions, nil).
		Run(context.Background(), asOf, false)

	require.Len(t, positions.applied, 1)
	assert.True(t, d("61.64").Equal(positions.applied[0].AdjustedAPR))
	// 3650 * 61.64 / 100 / 365 = 6.164
	assert.True(t, d("6.164").Equal(res.TotalDistributed), res.TotalDistributed.String())
}

func TestRunEmptyRegistry(t *testing.T) {
	positions := &fakePositions{active: []domain.Position{activePosition(1, "10000", 365, "0")}}
	agg := &staticAggregator{agg: domain.Aggregate{AverageAPR: decimal.Zero, Pools: []domain.PoolYield{}}}
	res := newEngine(agg, staticAdjustments{}, positions, nil).Run(context.Background(), asOf, false)

	assert.True(t, res.Success)
	assert.Empty(t, res.Error)
	assert.Contains(t, res.Message, "nothing to distribute")
	assert.Zero(t, res.PositionsUpdated)
	assert.Empty(t, positions.applied)
}

func TestRunAbortsOnFatalErrors(t *testing.T) {
	positions := &fakePositions{active: []domain.Position{activePosition(1, "10000", 365, "0")}}

	res := newEngine(&staticAggregator{err: errBoom}, staticAdjustments{}, positions, nil).
		Run(context.Background(), asOf, false)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "pool aggregation failed")

	res = newEngine(twoPoolAggregate(), staticAdjustments{err: domain.ErrInvalidDuration}, positions, nil).
		Run(context.Background(), asOf, false)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "adjustments")

	res = newEngine(twoPoolAggregate(), staticAdjustments{m: domain.AdjustmentMap{}}, &fakePositions{listErr: errBoom}, nil).
		Run(context.Background(), asOf, false)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "active positions")
	assert.False(t, res.FinishedAt.IsZero())
}

func TestRunReportsDefaultAdjustments(t *testing.T) {
	positions := &fakePositions{active: []domain.Position{activePosition(1, "10000", 365, "0")}}
	res := newEngine(twoPoolAggregate(), staticAdjustments{m: domain.DefaultAdjustments(), defaults: true}, positions, nil).
		Run(context.Background(), asOf, false)
	assert.True(t, res.Success)
	assert.Contains(t, res.Message, domain.DefaultAdjustmentsVersion)
}
