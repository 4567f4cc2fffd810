package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/yieldengine/internal/domain"
)

// DistributionScheduler is the scheduler surface the API drives.
type DistributionScheduler interface {
	Start(ctx context.Context)
	Stop()
	Status() domain.SchedulerStatus
	RunManually(ctx context.Context, actor string) (domain.DistributionResult, error)
	Preview(ctx context.Context) domain.DistributionResult
}

// AprInfoSource reports the current APR inputs.
type AprInfoSource interface {
	Snapshot(ctx context.Context) (domain.AprSystemInfo, error)
}

// AdjustmentWriter edits the duration adjustment table.
type AdjustmentWriter interface {
	Set(ctx context.Context, days int, pct decimal.Decimal, description, actor string) error
}

// PoolAdmin edits the pool registry.
type PoolAdmin interface {
	RegisterPool(ctx context.Context, p domain.Pool) (domain.Pool, error)
	SetPoolActive(ctx context.Context, address string, active bool) (domain.Pool, error)
}

// DistributionHandler serves the daily distribution endpoints.
type DistributionHandler struct {
	scheduler   DistributionScheduler
	info        AprInfoSource
	runs        domain.DistributionRunStore
	adjustments AdjustmentWriter
	pools       PoolAdmin
	logger      *slog.Logger
}

// NewDistributionHandler creates a DistributionHandler.
func NewDistributionHandler(
	scheduler DistributionScheduler,
	info AprInfoSource,
	runs domain.DistributionRunStore,
	adjustments AdjustmentWriter,
	logger *slog.Logger,
) *DistributionHandler {
	return &DistributionHandler{
		scheduler:   scheduler,
		info:        info,
		runs:        runs,
		adjustments: adjustments,
		logger:      logHandler(logger, "distribution"),
	}
}

// WithPoolAdmin enables the pool registry routes.
func (h *DistributionHandler) WithPoolAdmin(pools PoolAdmin) *DistributionHandler {
	h.pools = pools
	return h
}

type statusResponse struct {
	Scheduler domain.SchedulerStatus `json:"scheduler"`
	System    *domain.AprSystemInfo  `json:"system,omitempty"`
	Error     string                 `json:"system_error,omitempty"`
}

// Status returns the scheduler state and the APR inputs. A failing APR
// snapshot does not hide the scheduler state.
// GET /api/distribution/status
func (h *DistributionHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Scheduler: h.scheduler.Status()}
	info, err := h.info.Snapshot(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "apr snapshot failed", slog.String("error", err.Error()))
		resp.Error = "apr information unavailable"
	} else {
		resp.System = &info
	}
	writeJSON(w, http.StatusOK, resp)
}

// Preview computes today's distribution without writing anything.
// GET /api/distribution/preview
func (h *DistributionHandler) Preview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.Preview(r.Context()))
}

type executeRequest struct {
	Actor string `json:"actor"`
}

// Execute runs the distribution now. A run already in flight gives 409.
// An aborted run is still a 200 with success=false in the body.
// POST /api/distribution/execute
func (h *DistributionHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor := actorFrom(r, req.Actor)

	res, err := h.scheduler.RunManually(r.Context(), actor)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "distribution run failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Pools lists the pool APRs feeding the average.
// GET /api/distribution/pools
func (h *DistributionHandler) Pools(w http.ResponseWriter, r *http.Request) {
	info, err := h.info.Snapshot(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load pools")
		return
	}
	pools := info.Pools
	if pools == nil {
		pools = []domain.PoolYield{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"average_pool_apr": info.AveragePoolAPR,
		"pools":            pools,
	})
}

// Runs lists recent run history, newest first.
// GET /api/distribution/runs
func (h *DistributionHandler) Runs(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.ListRecent(r.Context(), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []domain.DistributionRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// Run returns one run with its stored result.
// GET /api/distribution/runs/{id}
func (h *DistributionHandler) Run(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Cron starts or stops the daily timer.
// POST /api/distribution/cron/{action}
func (h *DistributionHandler) Cron(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")
	switch action {
	case "start":
		h.scheduler.Start(r.Context())
	case "stop":
		h.scheduler.Stop()
	default:
		writeError(w, http.StatusBadRequest, "action must be start or stop")
		return
	}
	h.logger.InfoContext(r.Context(), "scheduler toggled",
		slog.String("action", action),
		slog.String("actor", actorFrom(r, "")),
	)
	writeJSON(w, http.StatusOK, h.scheduler.Status())
}

type adjustmentRequest struct {
	AdjustmentPct decimal.Decimal `json:"adjustment_pct"`
	Description   string          `json:"description"`
	Actor         string          `json:"actor"`
}

// SetAdjustment writes the adjustment for one duration bucket.
// PUT /api/distribution/adjustments/{days}
func (h *DistributionHandler) SetAdjustment(w http.ResponseWriter, r *http.Request) {
	days, err := strconv.Atoi(r.PathValue("days"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "days must be an integer")
		return
	}
	var req adjustmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.adjustments.Set(r.Context(), days, req.AdjustmentPct, req.Description, actorFrom(r, req.Actor)); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to set adjustment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"duration_days":  days,
		"adjustment_pct": req.AdjustmentPct,
	})
}

type poolRequest struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Network string `json:"network"`
	Active  *bool  `json:"active"`
}

// RegisterPool adds a pool to the registry or refreshes its metadata.
// POST /api/distribution/pools
func (h *DistributionHandler) RegisterPool(w http.ResponseWriter, r *http.Request) {
	if h.pools == nil {
		writeError(w, http.StatusNotImplemented, "pool registry is not configured")
		return
	}
	var req poolRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	active := req.Active == nil || *req.Active

	p, err := h.pools.RegisterPool(r.Context(), domain.Pool{
		Address: req.Address,
		Name:    req.Name,
		Network: req.Network,
		Active:  active,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to register pool")
		return
	}
	h.logger.InfoContext(r.Context(), "pool registered",
		slog.String("pool", p.Address),
		slog.String("actor", actorFrom(r, "")),
	)
	writeJSON(w, http.StatusOK, p)
}

// SetPoolActive includes or excludes a pool from aggregation.
// PUT /api/distribution/pools/{address}
func (h *DistributionHandler) SetPoolActive(w http.ResponseWriter, r *http.Request) {
	if h.pools == nil {
		writeError(w, http.StatusNotImplemented, "pool registry is not configured")
		return
	}
	var req poolRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, "active is required")
		return
	}

	p, err := h.pools.SetPoolActive(r.Context(), r.PathValue("address"), *req.Active)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to update pool")
		return
	}
	h.logger.InfoContext(r.Context(), "pool toggled",
		slog.String("pool", p.Address),
		slog.Bool("active", p.Active),
		slog.String("actor", actorFrom(r, "")),
	)
	writeJSON(w, http.StatusOK, p)
}
