package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/yieldengine/internal/domain"
)

// Signal bus channels and streams carrying run events.
const (
	ChannelDistribution = "distribution"
	StreamDistribution  = "stream:distribution"
)

// Notification event types.
const (
	EventDistributionCompleted = "distribution_completed"
	EventDistributionFailed    = "distribution_failed"
	EventWBCStatusChanged      = "wbc_status_changed"
)

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// RunEvent is the message published on ChannelDistribution.
type RunEvent struct {
	Type             string          `json:"type"`
	RunID            string          `json:"run_id,omitempty"`
	Actor            string          `json:"actor,omitempty"`
	Success          bool            `json:"success"`
	PositionsUpdated int             `json:"positions_updated"`
	PositionsFailed  int             `json:"positions_failed"`
	TotalDistributed decimal.Decimal `json:"total_distributed"`
	AveragePoolAPR   decimal.Decimal `json:"average_pool_apr"`
	Error            string          `json:"error,omitempty"`
	State            string          `json:"state,omitempty"`
	At               time.Time       `json:"at"`
}

// RunReporter fans a finished run out to history, audit, archive, the signal
// bus and operator notifications. Every sink is optional and a failing sink
// is logged without affecting the others.
type RunReporter struct {
	runs     domain.DistributionRunStore
	audit    domain.AuditStore
	archiver domain.RunArchiver
	bus      domain.SignalBus
	notifier Notifier
	logger   *slog.Logger
}

// NewRunReporter creates a RunReporter. Any argument may be nil.
func NewRunReporter(
	runs domain.DistributionRunStore,
	audit domain.AuditStore,
	archiver domain.RunArchiver,
	bus domain.SignalBus,
	notifier Notifier,
	logger *slog.Logger,
) *RunReporter {
	return &RunReporter{
		runs:     runs,
		audit:    audit,
		archiver: archiver,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "run_reporter")),
	}
}

// Record implements RunRecorder.
func (r *RunReporter) Record(ctx context.Context, res domain.DistributionResult, actor string) {
	log := r.logger.With(slog.String("run_id", res.RunID))

	if r.runs != nil {
		if err := r.runs.Insert(ctx, toRun(res, actor)); err != nil {
			log.ErrorContext(ctx, "persist run failed", slog.String("error", err.Error()))
		}
	}

	if r.audit != nil {
		detail := map[string]any{
			"run_id":            res.RunID,
			"actor":             actor,
			"success":           res.Success,
			"positions_updated": res.PositionsUpdated,
			"positions_failed":  res.PositionsFailed,
			"total_distributed": res.TotalDistributed.String(),
			"average_pool_apr":  res.AveragePoolAPR.String(),
		}
		if res.Error != "" {
			detail["error"] = res.Error
		}
		if err := r.audit.Log(ctx, "distribution_run", detail); err != nil {
			log.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	if r.archiver != nil {
		if path, err := r.archiver.ArchiveRun(ctx, res); err != nil {
			log.WarnContext(ctx, "archive run failed", slog.String("error", err.Error()))
		} else {
			log.DebugContext(ctx, "run archived", slog.String("path", path))
		}
	}

	evt := RunEvent{
		Type:             EventDistributionCompleted,
		RunID:            res.RunID,
		Actor:            actor,
		Success:          res.Success,
		PositionsUpdated: res.PositionsUpdated,
		PositionsFailed:  res.PositionsFailed,
		TotalDistributed: res.TotalDistributed,
		AveragePoolAPR:   res.AveragePoolAPR,
		Error:            res.Error,
		At:               res.FinishedAt,
	}
	if !res.Success {
		evt.Type = EventDistributionFailed
	}
	r.publish(ctx, evt)

	if r.notifier != nil {
		title, msg := describeRun(res, actor)
		if err := r.notifier.Notify(ctx, evt.Type, title, msg); err != nil {
			log.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
}

// GatewayStateChanged announces a token gateway readiness change.
func (r *RunReporter) GatewayStateChanged(ctx context.Context, from, to domain.GatewayState) {
	r.publish(ctx, RunEvent{Type: EventWBCStatusChanged, State: to.String(), Success: to.Status == domain.GatewayReady, At: time.Now().UTC()})
	if r.notifier != nil {
		msg := fmt.Sprintf("WBC gateway %s -> %s", from, to)
		if err := r.notifier.Notify(ctx, EventWBCStatusChanged, "WBC status changed", msg); err != nil {
			r.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
}

func (r *RunReporter) publish(ctx context.Context, evt RunEvent) {
	if r.bus == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		r.logger.ErrorContext(ctx, "marshal event failed", slog.String("error", err.Error()))
		return
	}
	if err := r.bus.Publish(ctx, ChannelDistribution, payload); err != nil {
		r.logger.WarnContext(ctx, "publish event failed", slog.String("error", err.Error()))
	}
	if err := r.bus.StreamAppend(ctx, StreamDistribution, payload); err != nil {
		r.logger.WarnContext(ctx, "stream append failed", slog.String("error", err.Error()))
	}
}

func toRun(res domain.DistributionResult, actor string) domain.DistributionRun {
	payload, _ := json.Marshal(res)
	return domain.DistributionRun{
		ID:               res.RunID,
		RunDate:          res.AsOf,
		ExecutedBy:       actor,
		DryRun:           res.DryRun,
		Success:          res.Success,
		AverageAPR:       res.AveragePoolAPR,
		PositionsUpdated: res.PositionsUpdated,
		PositionsFailed:  res.PositionsFailed,
		TotalDistributed: res.TotalDistributed,
		ErrorMessage:     res.Error,
		Result:           payload,
		StartedAt:        res.StartedAt,
		FinishedAt:       res.FinishedAt,
	}
}

func describeRun(res domain.DistributionResult, actor string) (string, string) {
	if !res.Success {
		return "Daily distribution failed",
			fmt.Sprintf("Run %s (%s) aborted: %s", res.RunID, actor, res.Error)
	}
	msg := fmt.Sprintf("Run %s (%s)\nAverage pool APR: %s%%\nPositions updated: %d (failed %d)\nTotal distributed: %s\nRewards sent %d, skipped %d, failed %d",
		res.RunID, actor,
		res.AveragePoolAPR.StringFixed(2),
		res.PositionsUpdated, res.PositionsFailed,
		res.TotalDistributed.StringFixed(domain.YieldPrecision),
		res.Rewards.Sent, res.Rewards.Skipped, res.Rewards.Failed,
	)
	if res.Message != "" {
		msg += "\n" + res.Message
	}
	return "Daily distribution completed", msg
}
