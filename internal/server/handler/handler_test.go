package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/yieldengine/internal/domain"
	"github.com/alanyoungcy/yieldengine/internal/service"
)

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

// ── fakes ──

type fakeScheduler struct {
	runErr  error
	actor   string
	started bool
	stopped bool
}

func (f *fakeScheduler) Start(context.Context) { f.started = true }
func (f *fakeScheduler) Stop()                 { f.stopped = true }
func (f *fakeScheduler) Status() domain.SchedulerStatus {
	return domain.SchedulerStatus{Enabled: true, Scheduled: f.started && !f.stopped}
}

func (f *fakeScheduler) RunManually(_ context.Context, actor string) (domain.DistributionResult, error) {
	f.actor = actor
	if f.runErr != nil {
		return domain.DistributionResult{}, f.runErr
	}
	return domain.DistributionResult{RunID: "r-1", Success: true, PositionsUpdated: 2}, nil
}

func (f *fakeScheduler) Preview(context.Context) domain.DistributionResult {
	return domain.DistributionResult{RunID: "p-1", DryRun: true, Success: true}
}

type fakeInfo struct{ err error }

func (f fakeInfo) Snapshot(context.Context) (domain.AprSystemInfo, error) {
	if f.err != nil {
		return domain.AprSystemInfo{}, f.err
	}
	return domain.AprSystemInfo{
		AveragePoolAPR: decimal.RequireFromString("61.64"),
		Pools:          []domain.PoolYield{{Name: "a", APR: decimal.RequireFromString("60")}},
	}, nil
}

type fakeRuns struct{}

func (fakeRuns) Insert(context.Context, domain.DistributionRun) error { return nil }
func (fakeRuns) GetByID(_ context.Context, id string) (domain.DistributionRun, error) {
	if id == "known" {
		return domain.DistributionRun{ID: id, Success: true}, nil
	}
	return domain.DistributionRun{}, fmt.Errorf("postgres: run %s: %w", id, domain.ErrNotFound)
}
func (fakeRuns) ListRecent(context.Context, domain.ListOpts) ([]domain.DistributionRun, error) {
	return nil, nil
}

type fakeAdjustments struct {
	days  int
	pct   decimal.Decimal
	actor string
}

func (f *fakeAdjustments) Set(_ context.Context, days int, pct decimal.Decimal, _, actor string) error {
	if days <= 0 {
		return domain.ErrInvalidDuration
	}
	f.days, f.pct, f.actor = days, pct, actor
	return nil
}

type fakeGateway struct {
	balanceErr error
	lastKey    string
	lastActor  string
	lastFilter domain.TxFilter
	returnReq  service.ReturnRequest
}

func (f *fakeGateway) Config(context.Context) (domain.WBCConfig, domain.GatewayState) {
	return domain.DefaultWBCConfig(), domain.GatewayState{Status: domain.GatewayDisabled, Reason: "WBC system not active"}
}

func (f *fakeGateway) UpdateConfig(_ context.Context, key, _, actor string) (domain.GatewayState, error) {
	if !domain.IsWBCConfigKey(key) {
		return domain.GatewayState{}, domain.ErrUnknownConfigKey
	}
	f.lastKey, f.lastActor = key, actor
	return domain.GatewayState{Status: domain.GatewayReady}, nil
}

func (f *fakeGateway) Activate(_ context.Context, actor string) (domain.GatewayState, error) {
	f.lastActor = actor
	return domain.GatewayState{Status: domain.GatewayReady}, nil
}

func (f *fakeGateway) Deactivate(_ context.Context, actor string) (domain.GatewayState, error) {
	f.lastActor = actor
	return domain.GatewayState{Status: domain.GatewayDisabled}, nil
}

func (f *fakeGateway) SetContractAddress(_ context.Context, address, _, _ string) (domain.GatewayState, error) {
	if !strings.HasPrefix(address, "0x") {
		return domain.GatewayState{}, domain.ErrInvalidAddress
	}
	return domain.GatewayState{Status: domain.GatewayReady}, nil
}

func (f *fakeGateway) Balance(context.Context, string) (decimal.Decimal, error) {
	return decimal.RequireFromString("2.5"), f.balanceErr
}

func (f *fakeGateway) HasEnoughBalance(_ context.Context, _ string, amount decimal.Decimal) (bool, error) {
	return decimal.RequireFromString("2.5").GreaterThanOrEqual(amount), f.balanceErr
}

func (f *fakeGateway) Stats(context.Context) (domain.TokenStats, error) {
	return domain.TokenStats{}, domain.ErrGatewayNotReady
}

func (f *fakeGateway) Transactions(_ context.Context, filter domain.TxFilter) ([]domain.WBCTransaction, error) {
	f.lastFilter = filter
	return nil, nil
}

func (f *fakeGateway) SendActivationReward(_ context.Context, _ int64, _ string, amount decimal.Decimal) domain.TransferResult {
	return domain.TransferResult{Skipped: true, Amount: amount, Reason: "WBC system not active"}
}

func (f *fakeGateway) RecordVerifiedReturn(_ context.Context, req service.ReturnRequest) (domain.TransferResult, error) {
	f.returnReq = req
	if !req.Kind.IsReturn() {
		return domain.TransferResult{}, domain.ErrInvalidTxKind
	}
	return domain.TransferResult{Success: true, TxHash: req.TxHash}, nil
}

type fakeGate struct{ err error }

func (f fakeGate) CollectFees(_ context.Context, req service.GateRequest) (domain.ValidationResult, error) {
	if f.err != nil {
		return domain.ValidationResult{}, f.err
	}
	return domain.ValidationResult{CanProceed: false, Required: *req.Amount, Reason: "Insufficient WBC: has 1, needs 2"}, nil
}

func (f fakeGate) ClosePosition(context.Context, service.GateRequest) (domain.ValidationResult, error) {
	return domain.ValidationResult{}, f.err
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

// ── helpers ──

func do(t *testing.T, h http.HandlerFunc, method, pattern, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(method+" "+pattern, h)

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func newDistribution(s *fakeScheduler, info fakeInfo, adj *fakeAdjustments) *DistributionHandler {
	return NewDistributionHandler(s, info, fakeRuns{}, adj, testLogger())
}

// ── tests ──

func TestStatusForMapsSentinels(t *testing.T) {
	cases := map[error]int{
		domain.ErrNotFound:                            http.StatusNotFound,
		fmt.Errorf("x: %w", domain.ErrRunInProgress):  http.StatusConflict,
		domain.ErrUnauthorized:                        http.StatusForbidden,
		domain.ErrGatewayNotReady:                     http.StatusServiceUnavailable,
		domain.ErrInvalidAmount:                       http.StatusBadRequest,
		fmt.Errorf("y: %w", domain.ErrInvalidAddress): http.StatusBadRequest,
		domain.ErrInvalidConfigValue:                  http.StatusBadRequest,
		domain.ErrInvalidTxHash:                       http.StatusBadRequest,
		errors.New("db down"):                         http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler("full", map[string]Pinger{"postgres": pinger{}, "redis": nil}, testLogger())
	rec := do(t, h.HealthCheck, "GET", "/api/health", "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, map[string]any{"postgres": "up"}, body["checks"])

	h = NewHealthHandler("full", map[string]Pinger{"postgres": pinger{err: errors.New("down")}}, testLogger())
	rec = do(t, h.HealthCheck, "GET", "/api/health", "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode(t, rec)["status"])
}

func TestExecuteUsesActorHeader(t *testing.T) {
	s := &fakeScheduler{}
	h := newDistribution(s, fakeInfo{}, &fakeAdjustments{})

	rec := do(t, h.Execute, "POST", "/api/distribution/execute", "/api/distribution/execute", `{"actor":"body"}`, "X-Actor", "ops@example.com")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ops@example.com", s.actor)
	assert.Equal(t, "r-1", decode(t, rec)["run_id"])

	rec = do(t, h.Execute, "POST", "/api/distribution/execute", "/api/distribution/execute", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", s.actor)
}

func TestExecuteConflictWhileRunning(t *testing.T) {
	s := &fakeScheduler{runErr: fmt.Errorf("scheduler: %w", domain.ErrRunInProgress)}
	h := newDistribution(s, fakeInfo{}, &fakeAdjustments{})

	rec := do(t, h.Execute, "POST", "/api/distribution/execute", "/api/distribution/execute", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "already running")
}

func TestExecuteRejectsUnknownFields(t *testing.T) {
	h := newDistribution(&fakeScheduler{}, fakeInfo{}, &fakeAdjustments{})
	rec := do(t, h.Execute, "POST", "/api/distribution/execute", "/api/distribution/execute", `{"nope":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusSurvivesSnapshotFailure(t *testing.T) {
	h := newDistribution(&fakeScheduler{}, fakeInfo{err: errors.New("rpc")}, &fakeAdjustments{})
	rec := do(t, h.Status, "GET", "/api/distribution/status", "/api/distribution/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.NotNil(t, body["scheduler"])
	assert.Nil(t, body["system"])
	assert.Equal(t, "apr information unavailable", body["system_error"])
}

func TestPoolsAndPreview(t *testing.T) {
	h := newDistribution(&fakeScheduler{}, fakeInfo{}, &fakeAdjustments{})

	rec := do(t, h.Pools, "GET", "/api/distribution/pools", "/api/distribution/pools", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "61.64", body["average_pool_apr"])
	assert.Len(t, body["pools"], 1)

	rec = do(t, h.Preview, "GET", "/api/distribution/preview", "/api/distribution/preview", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["dry_run"])
}

func TestRunsAndRunLookup(t *testing.T) {
	h := newDistribution(&fakeScheduler{}, fakeInfo{}, &fakeAdjustments{})

	rec := do(t, h.Runs, "GET", "/api/distribution/runs", "/api/distribution/runs?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decode(t, rec)["runs"])

	rec = do(t, h.Run, "GET", "/api/distribution/runs/{id}", "/api/distribution/runs/known", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h.Run, "GET", "/api/distribution/runs/{id}", "/api/distribution/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCron(t *testing.T) {
	s := &fakeScheduler{}
	h := newDistribution(s, fakeInfo{}, &fakeAdjustments{})

	rec := do(t, h.Cron, "POST", "/api/distribution/cron/{action}", "/api/distribution/cron/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.started)
	assert.Equal(t, true, decode(t, rec)["scheduled"])

	rec = do(t, h.Cron, "POST", "/api/distribution/cron/{action}", "/api/distribution/cron/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.stopped)

	rec = do(t, h.Cron, "POST", "/api/distribution/cron/{action}", "/api/distribution/cron/pause", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetAdjustment(t *testing.T) {
	adj := &fakeAdjustments{}
	h := newDistribution(&fakeScheduler{}, fakeInfo{}, adj)

	rec := do(t, h.SetAdjustment, "PUT", "/api/distribution/adjustments/{days}", "/api/distribution/adjustments/90",
		`{"adjustment_pct":"-17.37","description":"quarter","actor":"ops"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 90, adj.days)
	assert.True(t, decimal.RequireFromString("-17.37").Equal(adj.pct))
	assert.Equal(t, "ops", adj.actor)

	rec = do(t, h.SetAdjustment, "PUT", "/api/distribution/adjustments/{days}", "/api/distribution/adjustments/0", `{"adjustment_pct":"1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.SetAdjustment, "PUT", "/api/distribution/adjustments/{days}", "/api/distribution/adjustments/abc", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakePools struct {
	registered []domain.Pool
}

func (f *fakePools) RegisterPool(_ context.Context, p domain.Pool) (domain.Pool, error) {
	if p.Address == "bad" {
		return domain.Pool{}, fmt.Errorf("pool_aggregator: %w", domain.ErrInvalidAddress)
	}
	f.registered = append(f.registered, p)
	return p, nil
}

func (f *fakePools) SetPoolActive(_ context.Context, address string, active bool) (domain.Pool, error) {
	if address != "0xa" {
		return domain.Pool{}, domain.ErrNotFound
	}
	return domain.Pool{Address: address, Active: active}, nil
}

func TestPoolAdmin(t *testing.T) {
	pools := &fakePools{}
	h := newDistribution(&fakeScheduler{}, fakeInfo{}, &fakeAdjustments{}).WithPoolAdmin(pools)

	rec := do(t, h.RegisterPool, "POST", "/api/distribution/pools", "/api/distribution/pools", `{"address":"0xa","name":"A"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, pools.registered, 1)
	assert.True(t, pools.registered[0].Active, "new pools default to active")

	rec = do(t, h.RegisterPool, "POST", "/api/distribution/pools", "/api/distribution/pools", `{"address":"bad"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.SetPoolActive, "PUT", "/api/distribution/pools/{address}", "/api/distribution/pools/0xa", `{"active":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["active"])

	rec = do(t, h.SetPoolActive, "PUT", "/api/distribution/pools/{address}", "/api/distribution/pools/0xa", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.SetPoolActive, "PUT", "/api/distribution/pools/{address}", "/api/distribution/pools/0xz", `{"active":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPoolAdminNotConfigured(t *testing.T) {
	h := newDistribution(&fakeScheduler{}, fakeInfo{}, &fakeAdjustments{})
	rec := do(t, h.RegisterPool, "POST", "/api/distribution/pools", "/api/distribution/pools", `{"address":"0xa"}`)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestWBCConfigEndpoints(t *testing.T) {
	gw := &fakeGateway{}
	h := NewWBCHandler(gw, fakeGate{}, testLogger())

	rec := do(t, h.GetConfig, "GET", "/api/wbc/config", "/api/wbc/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "disabled", body["state"].(map[string]any)["status"])

	rec = do(t, h.UpdateConfig, "PUT", "/api/wbc/config", "/api/wbc/config", `{"key":"decimals","value":"6"}`, "X-Actor", "ops")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "decimals", gw.lastKey)
	assert.Equal(t, "ops", gw.lastActor)

	rec = do(t, h.UpdateConfig, "PUT", "/api/wbc/config", "/api/wbc/config", `{"key":"bogus","value":"1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.UpdateConfig, "PUT", "/api/wbc/config", "/api/wbc/config", `{"value":"1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.Activate, "POST", "/api/wbc/activate", "/api/wbc/activate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode(t, rec)["state"].(map[string]any)["status"])

	rec = do(t, h.SetContract, "POST", "/api/wbc/contract", "/api/wbc/contract", `{"contract_address":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWBCBalanceAndStats(t *testing.T) {
	gw := &fakeGateway{}
	h := NewWBCHandler(gw, fakeGate{}, testLogger())

	rec := do(t, h.Balance, "GET", "/api/wbc/balance/{wallet}", "/api/wbc/balance/0x00000000000000000000000000000000000000b1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2.5", decode(t, rec)["balance"])

	rec = do(t, h.Balance, "GET", "/api/wbc/balance/{wallet}", "/api/wbc/balance/0x00000000000000000000000000000000000000b1?min=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["sufficient"])

	rec = do(t, h.Balance, "GET", "/api/wbc/balance/{wallet}", "/api/wbc/balance/0x00000000000000000000000000000000000000b1?min=2.5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["sufficient"])

	rec = do(t, h.Balance, "GET", "/api/wbc/balance/{wallet}", "/api/wbc/balance/0x00000000000000000000000000000000000000b1?min=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.Balance, "GET", "/api/wbc/balance/{wallet}", "/api/wbc/balance/not-a-wallet", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	gw.balanceErr = fmt.Errorf("token_gateway: %w", domain.ErrGatewayNotReady)
	rec = do(t, h.Balance, "GET", "/api/wbc/balance/{wallet}", "/api/wbc/balance/0x00000000000000000000000000000000000000b1", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, h.Stats, "GET", "/api/wbc/stats", "/api/wbc/stats", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWBCTransactionsFilter(t *testing.T) {
	gw := &fakeGateway{}
	h := NewWBCHandler(gw, fakeGate{}, testLogger())

	rec := do(t, h.Transactions, "GET", "/api/wbc/transactions", "/api/wbc/transactions?kind=daily_fee_reward&position_id=7&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.TxKindDailyFeeReward, gw.lastFilter.Kind)
	require.NotNil(t, gw.lastFilter.PositionID)
	assert.Equal(t, int64(7), *gw.lastFilter.PositionID)
	assert.Equal(t, 10, gw.lastFilter.Limit)
	assert.Equal(t, []any{}, decode(t, rec)["transactions"])

	rec = do(t, h.Transactions, "GET", "/api/wbc/transactions", "/api/wbc/transactions?kind=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.Transactions, "GET", "/api/wbc/transactions", "/api/wbc/transactions?position_id=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWBCValidate(t *testing.T) {
	h := NewWBCHandler(&fakeGateway{}, fakeGate{}, testLogger())
	rec := do(t, h.ValidateCollectFees, "POST", "/api/wbc/validate/collect-fees", "/api/wbc/validate/collect-fees",
		`{"wallet":"0x00000000000000000000000000000000000000b1","amount":"2"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, false, body["can_proceed"])
	assert.Equal(t, "Insufficient WBC: has 1, needs 2", body["reason"])

	h = NewWBCHandler(&fakeGateway{}, fakeGate{err: fmt.Errorf("gating: %w", domain.ErrUnauthorized)}, testLogger())
	rec = do(t, h.ValidateClosePosition, "POST", "/api/wbc/validate/close-position", "/api/wbc/validate/close-position",
		`{"wallet":"0x00000000000000000000000000000000000000c2","position_id":5}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWBCRecordReturn(t *testing.T) {
	gw := &fakeGateway{}
	h := NewWBCHandler(gw, fakeGate{}, testLogger())

	rec := do(t, h.RecordReturn, "POST", "/api/wbc/returns", "/api/wbc/returns",
		`{"tx_hash":"0xabc","position_id":3,"wallet":"0x00000000000000000000000000000000000000b1","amount":"1.5","kind":"fee_collection_return"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(3), gw.returnReq.PositionID)
	assert.True(t, decimal.RequireFromString("1.5").Equal(gw.returnReq.Amount))

	rec = do(t, h.RecordReturn, "POST", "/api/wbc/returns", "/api/wbc/returns", `{"tx_hash":"0xabc","kind":"daily_fee_reward"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWBCActivationReward(t *testing.T) {
	h := NewWBCHandler(&fakeGateway{}, fakeGate{}, testLogger())

	rec := do(t, h.ActivationReward, "POST", "/api/wbc/rewards/activation", "/api/wbc/rewards/activation",
		`{"position_id":9,"wallet":"0x00000000000000000000000000000000000000b1","amount":"10"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["skipped"])
	assert.Equal(t, "WBC system not active", body["reason"])

	rec = do(t, h.ActivationReward, "POST", "/api/wbc/rewards/activation", "/api/wbc/rewards/activation", `{"amount":"10"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
