package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DurationSummary aggregates one duration bucket's share of a run.
type DurationSummary struct {
	DurationDays     int             `json:"duration_days"`
	Adjustment       decimal.Decimal `json:"adjustment"`
	AdjustedAPR      decimal.Decimal `json:"adjusted_apr"`
	PositionsUpdated int             `json:"positions_updated"`
	TotalDistributed decimal.Decimal `json:"total_distributed"`
}

// PositionDistribution is the per-position line item of a run.
type PositionDistribution struct {
	PositionID   int64           `json:"position_id"`
	Wallet       string          `json:"wallet"`
	DurationDays int             `json:"duration_days"`
	Capital      decimal.Decimal `json:"capital"`
	AdjustedAPR  decimal.Decimal `json:"adjusted_apr"`
	DailyYield   decimal.Decimal `json:"daily_yield"`
	OldBalance   decimal.Decimal `json:"old_balance"`
	NewBalance   decimal.Decimal `json:"new_balance"`
	Error        string          `json:"error,omitempty"`
	Reward       *TransferResult `json:"reward,omitempty"`
}

// RewardCounters tallies the best-effort reward sends of a run.
type RewardCounters struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// DistributionResult summarises one engine invocation. Error is set only when
// the run aborted as a whole.
type DistributionResult struct {
	RunID            string                 `json:"run_id"`
	AsOf             time.Time              `json:"as_of"`
	DryRun           bool                   `json:"dry_run"`
	Success          bool                   `json:"success"`
	Message          string                 `json:"message,omitempty"`
	Error            string                 `json:"error,omitempty"`
	AveragePoolAPR   decimal.Decimal        `json:"average_pool_apr"`
	Pools            []PoolYield            `json:"pools"`
	ByDuration       []DurationSummary      `json:"by_duration"`
	Positions        []PositionDistribution `json:"positions,omitempty"`
	PositionsUpdated int                    `json:"positions_updated"`
	PositionsFailed  int                    `json:"positions_failed"`
	TotalDistributed decimal.Decimal        `json:"total_distributed"`
	Rewards          RewardCounters         `json:"rewards"`
	StartedAt        time.Time              `json:"started_at"`
	FinishedAt       time.Time              `json:"finished_at"`
}

// LastRunInfo is the scheduler's memory of its most recent run.
type LastRunInfo struct {
	RunID            string          `json:"run_id"`
	ExecutedBy       string          `json:"executed_by"`
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       time.Time       `json:"finished_at"`
	Success          bool            `json:"success"`
	PositionsUpdated int             `json:"positions_updated"`
	TotalDistributed decimal.Decimal `json:"total_distributed"`
	AveragePoolAPR   decimal.Decimal `json:"average_pool_apr"`
	Error            string          `json:"error,omitempty"`
}

// SchedulerStatus is the observable state of the daily scheduler.
type SchedulerStatus struct {
	Enabled          bool          `json:"enabled"`
	Scheduled        bool          `json:"scheduled"`
	IsRunning        bool          `json:"is_running"`
	LastRun          *LastRunInfo  `json:"last_run,omitempty"`
	NextRunAt        *time.Time    `json:"next_run_at,omitempty"`
	TimeUntilNextRun time.Duration `json:"time_until_next_run"`
	NextRunIn        string        `json:"next_run_in,omitempty"`
}

// AdjustmentInfo pairs a bucket's adjustment with the APR it currently yields.
type AdjustmentInfo struct {
	DurationDays int             `json:"duration_days"`
	Adjustment   decimal.Decimal `json:"adjustment"`
	AdjustedAPR  decimal.Decimal `json:"adjusted_apr"`
}

// AprSystemInfo is a read-only snapshot of the inputs to the next run.
type AprSystemInfo struct {
	AveragePoolAPR          decimal.Decimal  `json:"average_pool_apr"`
	Pools                   []PoolYield      `json:"pools"`
	Adjustments             []AdjustmentInfo `json:"adjustments"`
	ActivePositions         int              `json:"active_positions"`
	TotalActiveCapital      decimal.Decimal  `json:"total_active_capital"`
	UsingDefaultAdjustments bool             `json:"using_default_adjustments"`
}

// DistributionRun is a persisted run history row.
type DistributionRun struct {
	ID               string          `json:"id"`
	RunDate          time.Time       `json:"run_date"`
	ExecutedBy       string          `json:"executed_by"`
	DryRun           bool            `json:"dry_run"`
	Success          bool            `json:"success"`
	AverageAPR       decimal.Decimal `json:"average_apr"`
	PositionsUpdated int             `json:"positions_updated"`
	PositionsFailed  int             `json:"positions_failed"`
	TotalDistributed decimal.Decimal `json:"total_distributed"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	Result           []byte          `json:"-"`
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       time.Time       `json:"finished_at"`
}
