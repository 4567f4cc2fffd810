package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/yieldengine/internal/domain"
)

// DistributionLockKey is the distributed lock taken around every guarded run.
const DistributionLockKey = "distribution:daily"

// RunEngine executes a distribution pass.
type RunEngine interface {
	Run(ctx context.Context, asOf time.Time, dryRun bool) domain.DistributionResult
}

// RunRecorder persists and announces a finished run.
type RunRecorder interface {
	Record(ctx context.Context, res domain.DistributionResult, actor string)
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	Enabled        bool
	LockTTL        time.Duration
	ScheduledActor string
}

// Scheduler runs the distribution once a day at UTC midnight and guards
// every non-preview run so that two never overlap, locally or across
// replicas. A trigger that arrives while a run is in flight is rejected with
// domain.ErrRunInProgress rather than queued.
type Scheduler struct {
	engine   RunEngine
	locks    domain.LockManager
	recorder RunRecorder
	clock    Clock
	opts     SchedulerOptions
	logger   *slog.Logger

	mu        sync.Mutex
	runCtx    context.Context
	timer     Timer
	gen       uint64
	scheduled bool
	running   bool
	nextRun   time.Time
	lastRun   *domain.LastRunInfo
}

// NewScheduler creates a Scheduler. locks and recorder may be nil.
func NewScheduler(
	engine RunEngine,
	locks domain.LockManager,
	recorder RunRecorder,
	clock Clock,
	opts SchedulerOptions,
	logger *slog.Logger,
) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Minute
	}
	if opts.ScheduledActor == "" {
		opts.ScheduledActor = "scheduler"
	}
	return &Scheduler{
		engine:   engine,
		locks:    locks,
		recorder: recorder,
		clock:    clock,
		opts:     opts,
		logger:   logger.With(slog.String("component", "scheduler")),
	}
}

// Start arms the timer for the next UTC midnight. It does nothing when the
// scheduler is disabled or already armed. Scheduled runs use ctx's values
// but are not cancelled with it.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.opts.Enabled {
		s.logger.WarnContext(ctx, "daily distribution disabled by configuration")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduled {
		return
	}
	s.runCtx = context.WithoutCancel(ctx)
	s.armLocked()
}

// Stop disarms the timer. A run already in flight completes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
	if s.scheduled {
		s.logger.Info("daily distribution stopped")
	}
	s.scheduled = false
	s.nextRun = time.Time{}
}

// disarmLocked stops the pending timer and invalidates any callback of it
// that has already started.
func (s *Scheduler) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

func (s *Scheduler) armLocked() {
	s.disarmLocked()
	gen := s.gen
	now := s.clock.Now()
	next := NextUTCMidnight(now)
	s.nextRun = next
	s.scheduled = true
	s.timer = s.clock.AfterFunc(next.Sub(now), func() { s.fire(gen) })
	s.logger.Info("next distribution scheduled",
		slog.Time("at", next),
		slog.String("in", FormatUntil(next.Sub(now))),
	)
}

// fire runs the distribution for the timer armed as gen. A timer superseded
// by Stop or a later arm neither runs nor re-arms.
func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.scheduled {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.execute(ctx, s.opts.ScheduledActor); err != nil {
		s.logger.ErrorContext(ctx, "scheduled distribution not run", slog.String("error", err.Error()))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduled && gen == s.gen {
		s.armLocked()
	}
}

// RunManually runs the distribution now on behalf of actor, through the same
// guard and bookkeeping as the scheduled path. It returns
// domain.ErrRunInProgress if a run is already in flight.
func (s *Scheduler) RunManually(ctx context.Context, actor string) (domain.DistributionResult, error) {
	if actor == "" {
		actor = "manual"
	}
	return s.execute(context.WithoutCancel(ctx), actor)
}

// Preview computes a dry run. It is not guarded and changes nothing.
func (s *Scheduler) Preview(ctx context.Context) domain.DistributionResult {
	return s.engine.Run(ctx, s.clock.Now().UTC(), true)
}

func (s *Scheduler) execute(ctx context.Context, actor string) (domain.DistributionResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.WarnContext(ctx, "distribution trigger rejected, run in progress", slog.String("actor", actor))
		return domain.DistributionResult{}, domain.ErrRunInProgress
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, DistributionLockKey, s.opts.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.WarnContext(ctx, "distribution lock held by another replica", slog.String("actor", actor))
			return domain.DistributionResult{}, fmt.Errorf("scheduler: %w", domain.ErrRunInProgress)
		}
		if err != nil {
			return domain.DistributionResult{}, fmt.Errorf("scheduler: acquire lock: %w", err)
		}
		defer unlock()
	}

	s.logger.InfoContext(ctx, "distribution triggered", slog.String("actor", actor))
	res := s.engine.Run(ctx, s.clock.Now().UTC(), false)

	s.mu.Lock()
	s.lastRun = &domain.LastRunInfo{
		RunID:            res.RunID,
		ExecutedBy:       actor,
		StartedAt:        res.StartedAt,
		FinishedAt:       res.FinishedAt,
		Success:          res.Success,
		PositionsUpdated: res.PositionsUpdated,
		TotalDistributed: res.TotalDistributed,
		AveragePoolAPR:   res.AveragePoolAPR,
		Error:            res.Error,
	}
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.Record(ctx, res, actor)
	}
	return res, nil
}

// Status reports the scheduler's state.
func (s *Scheduler) Status() domain.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := domain.SchedulerStatus{
		Enabled:   s.opts.Enabled,
		Scheduled: s.scheduled,
		IsRunning: s.running,
	}
	if s.lastRun != nil {
		lr := *s.lastRun
		st.LastRun = &lr
	}
	if s.scheduled {
		next := s.nextRun
		st.NextRunAt = &next
		st.TimeUntilNextRun = next.Sub(s.clock.Now())
		if st.TimeUntilNextRun < 0 {
			st.TimeUntilNextRun = 0
		}
		st.NextRunIn = FormatUntil(st.TimeUntilNextRun)
	}
	return st
}

// NextUTCMidnight returns the first UTC midnight strictly after t.
func NextUTCMidnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// FormatUntil renders d as "Xh Ym".
func FormatUntil(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %dm", h, m)
}
