package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/yieldengine/internal/domain"
	"github.com/alanyoungcy/yieldengine/internal/metrics"
)

// Aggregator produces the pool-wide average APR.
type Aggregator interface {
	Aggregate(ctx context.Context) (domain.Aggregate, error)
}

// AdjustmentLoader loads the per-duration adjustment map.
type AdjustmentLoader interface {
	Load(ctx context.Context) (domain.AdjustmentMap, bool, error)
}

// RewardSender is the best-effort reward channel used after a position's
// fee balance has been written.
type RewardSender interface {
	SendToUser(ctx context.Context, positionID int64, recipient string, amount decimal.Decimal, kind domain.TxKind) domain.TransferResult
}

// EngineOptions tunes a DistributionEngine.
type EngineOptions struct {
	// SendRewards enables the daily reward transfer for positive yields.
	SendRewards bool
	// KeepLineItems keeps per-position detail in the result.
	KeepLineItems bool
}

// DistributionEngine applies one day of risk-adjusted yield to every active
// position. It does not deduplicate by date: calling Run twice for the same
// day applies the yield twice. Scheduler is the guarded entrypoint.
type DistributionEngine struct {
	pools       Aggregator
	adjustments AdjustmentLoader
	positions   domain.PositionStore
	rewards     RewardSender
	opts        EngineOptions
	logger      *slog.Logger
	now         func() time.Time
}

// NewDistributionEngine creates a DistributionEngine. rewards may be nil.
func NewDistributionEngine(
	pools Aggregator,
	adjustments AdjustmentLoader,
	positions domain.PositionStore,
	rewards RewardSender,
	opts EngineOptions,
	logger *slog.Logger,
) *DistributionEngine {
	return &DistributionEngine{
		pools:       pools,
		adjustments: adjustments,
		positions:   positions,
		rewards:     rewards,
		opts:        opts,
		logger:      logger.With(slog.String("component", "distribution")),
		now:         time.Now,
	}
}

// Run executes one distribution pass as of asOf. With dryRun it computes
// the same result without writing balances or sending rewards. A run that
// aborts as a whole comes back with Success false and Error set; failures of
// single pools or positions are isolated and reported in the result.
func (e *DistributionEngine) Run(ctx context.Context, asOf time.Time, dryRun bool) (res domain.DistributionResult) {
	started := e.now().UTC()
	res = domain.DistributionResult{
		RunID:            uuid.NewString(),
		AsOf:             asOf.UTC(),
		DryRun:           dryRun,
		AveragePoolAPR:   decimal.Zero,
		Pools:            []domain.PoolYield{},
		ByDuration:       []domain.DurationSummary{},
		TotalDistributed: decimal.Zero,
		StartedAt:        started,
	}
	log := e.logger.With(slog.String("run_id", res.RunID), slog.Bool("dry_run", dryRun))
	log.InfoContext(ctx, "distribution started", slog.Time("as_of", res.AsOf))

	defer func() {
		res.FinishedAt = e.now().UTC()
		metrics.DistributionDuration.Observe(res.FinishedAt.Sub(started).Seconds())
		metrics.DistributionRuns.WithLabelValues(runOutcome(res)).Inc()
	}()

	agg, err := e.pools.Aggregate(ctx)
	if err != nil {
		return e.abort(ctx, log, res, "pool aggregation failed", err)
	}
	res.AveragePoolAPR = agg.AverageAPR
	res.Pools = agg.Pools
	if agg.Empty() {
		res.Success = true
		res.Message = "nothing to distribute: no active pools"
		log.WarnContext(ctx, res.Message)
		return res
	}

	adj, usedDefaults, err := e.adjustments.Load(ctx)
	if err != nil {
		return e.abort(ctx, log, res, "load duration adjustments", err)
	}
	if usedDefaults {
		res.Message = "duration adjustments unavailable, defaults " + domain.DefaultAdjustmentsVersion + " applied"
	}

	positions, err := e.positions.ListActive(ctx)
	if err != nil {
		return e.abort(ctx, log, res, "load active positions", err)
	}
	if len(positions) == 0 {
		res.Success = true
		res.Message = joinMessage(res.Message, "no active positions")
		log.InfoContext(ctx, "no active positions")
		return res
	}

	buckets := make(map[int]*domain.DurationSummary)
	lines := make([]domain.PositionDistribution, 0, len(positions))

	for _, p := range positions {
		line := e.applyPosition(ctx, log, p, res.AveragePoolAPR, adj, res.AsOf, dryRun)

		if line.Error != "" {
			res.PositionsFailed++
			metrics.PositionsProcessed.WithLabelValues(metrics.OutcomeFailed).Inc()
			lines = append(lines, line)
			continue
		}
		res.PositionsUpdated++
		res.TotalDistributed = res.TotalDistributed.Add(line.DailyYield)
		metrics.PositionsProcessed.WithLabelValues(metrics.OutcomeSuccess).Inc()

		b, ok := buckets[p.DurationDays]
		if !ok {
			b = &domain.DurationSummary{
				DurationDays:     p.DurationDays,
				Adjustment:       adj.For(p.DurationDays),
				AdjustedAPR:      line.AdjustedAPR,
				TotalDistributed: decimal.Zero,
			}
			buckets[p.DurationDays] = b
		}
		b.PositionsUpdated++
		b.TotalDistributed = b.TotalDistributed.Add(line.DailyYield)

		if line.Reward != nil {
			switch {
			case line.Reward.Success:
				res.Rewards.Sent++
			case line.Reward.Skipped:
				res.Rewards.Skipped++
			default:
				res.Rewards.Failed++
			}
		}
		lines = append(lines, line)
	}

	for _, d := range sortedBucketKeys(buckets) {
		res.ByDuration = append(res.ByDuration, *buckets[d])
	}
	if e.opts.KeepLineItems {
		res.Positions = lines
	}
	if !dryRun && res.TotalDistributed.IsPositive() {
		metrics.YieldDistributed.Add(res.TotalDistributed.InexactFloat64())
	}

	res.Success = true
	log.InfoContext(ctx, "distribution completed",
		slog.String("average_apr", res.AveragePoolAPR.String()),
		slog.Int("positions_updated", res.PositionsUpdated),
		slog.Int("positions_failed", res.PositionsFailed),
		slog.String("total_distributed", res.TotalDistributed.String()),
		slog.Int("rewards_sent", res.Rewards.Sent),
		slog.Int("rewards_failed", res.Rewards.Failed),
	)
	return res
}

// applyPosition computes and, unless dryRun, persists one position's daily
// yield. Errors are reported on the returned line.
func (e *DistributionEngine) applyPosition(
	ctx context.Context,
	log *slog.Logger,
	p domain.Position,
	average decimal.Decimal,
	adj domain.AdjustmentMap,
	asOf time.Time,
	dryRun bool,
) domain.PositionDistribution {
	line := domain.PositionDistribution{
		PositionID:   p.ID,
		Wallet:       p.Wallet,
		DurationDays: p.DurationDays,
		Capital:      p.Capital,
		OldBalance:   p.FeeBalance,
	}

	if err := checkPosition(p); err != nil {
		line.Error = err.Error()
		log.WarnContext(ctx, "position skipped", slog.Int64("position_id", p.ID), slog.String("error", line.Error))
		return line
	}

	line.AdjustedAPR = domain.AdjustedAPR(average, adj.For(p.DurationDays))
	line.DailyYield = domain.DailyYield(p.Capital, line.AdjustedAPR)
	line.NewBalance = domain.ApplyDailyYield(p.FeeBalance, line.DailyYield)

	log.DebugContext(ctx, "position computed",
		slog.Int64("position_id", p.ID),
		slog.Int("duration_days", p.DurationDays),
		slog.String("adjusted_apr", line.AdjustedAPR.String()),
		slog.String("daily_yield", line.DailyYield.String()),
		slog.String("old_balance", line.OldBalance.String()),
		slog.String("new_balance", line.NewBalance.String()),
	)

	if dryRun {
		return line
	}

	err := e.positions.ApplyDistribution(ctx, domain.DistributionUpdate{
		PositionID:  p.ID,
		FeeBalance:  line.NewBalance,
		AdjustedAPR: line.AdjustedAPR,
		AsOf:        asOf,
	})
	if err != nil {
		line.Error = fmt.Sprintf("persist distribution: %v", err)
		log.ErrorContext(ctx, "position update failed",
			slog.Int64("position_id", p.ID),
			slog.String("error", err.Error()),
		)
		return line
	}

	if e.opts.SendRewards && e.rewards != nil && line.DailyYield.IsPositive() {
		r := e.rewards.SendToUser(ctx, p.ID, p.Wallet, line.DailyYield, domain.TxKindDailyFeeReward)
		line.Reward = &r
		if !r.Success && !r.Skipped {
			log.WarnContext(ctx, "daily reward not sent",
				slog.Int64("position_id", p.ID),
				slog.String("error", r.Error),
			)
		}
	}
	return line
}

func (e *DistributionEngine) abort(ctx context.Context, log *slog.Logger, res domain.DistributionResult, what string, err error) domain.DistributionResult {
	res.Success = false
	res.Error = fmt.Sprintf("%s: %v", what, err)
	log.ErrorContext(ctx, "distribution aborted", slog.String("error", res.Error))
	return res
}

func checkPosition(p domain.Position) error {
	switch {
	case p.Status != domain.PositionStatusActive:
		return fmt.Errorf("position %d is %s, not active", p.ID, p.Status)
	case p.DurationDays <= 0:
		return fmt.Errorf("position %d: %w: %d days", p.ID, domain.ErrInvalidDuration, p.DurationDays)
	case p.Capital.IsNegative():
		return fmt.Errorf("position %d: %w: capital %s", p.ID, domain.ErrInvalidAmount, p.Capital)
	case p.FeeBalance.IsNegative():
		return fmt.Errorf("position %d: %w: fee balance %s", p.ID, domain.ErrInvalidAmount, p.FeeBalance)
	}
	return nil
}

func sortedBucketKeys(m map[int]*domain.DurationSummary) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func joinMessage(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}

func runOutcome(r domain.DistributionResult) string {
	switch {
	case !r.Success:
		return metrics.OutcomeFailed
	case r.DryRun:
		return metrics.OutcomePreview
	case r.PositionsUpdated == 0:
		return metrics.OutcomeEmpty
	default:
		return metrics.OutcomeSuccess
	}
}
