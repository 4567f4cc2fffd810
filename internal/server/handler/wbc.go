package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/yieldengine/internal/domain"
	"github.com/alanyoungcy/yieldengine/internal/service"
)

// TokenGateway is the reward token surface the API drives.
type TokenGateway interface {
	Config(ctx context.Context) (domain.WBCConfig, domain.GatewayState)
	UpdateConfig(ctx context.Context, key, value, actor string) (domain.GatewayState, error)
	Activate(ctx context.Context, actor string) (domain.GatewayState, error)
	Deactivate(ctx context.Context, actor string) (domain.GatewayState, error)
	SetContractAddress(ctx context.Context, address, deployTxHash, actor string) (domain.GatewayState, error)
	Balance(ctx context.Context, wallet string) (decimal.Decimal, error)
	HasEnoughBalance(ctx context.Context, wallet string, amount decimal.Decimal) (bool, error)
	Stats(ctx context.Context) (domain.TokenStats, error)
	Transactions(ctx context.Context, filter domain.TxFilter) ([]domain.WBCTransaction, error)
	SendActivationReward(ctx context.Context, positionID int64, wallet string, amount decimal.Decimal) domain.TransferResult
	RecordVerifiedReturn(ctx context.Context, req service.ReturnRequest) (domain.TransferResult, error)
}

// WithdrawalGate answers balance-gated withdrawal checks.
type WithdrawalGate interface {
	CollectFees(ctx context.Context, req service.GateRequest) (domain.ValidationResult, error)
	ClosePosition(ctx context.Context, req service.GateRequest) (domain.ValidationResult, error)
}

// WBCHandler serves the reward token endpoints.
type WBCHandler struct {
	gateway TokenGateway
	gate    WithdrawalGate
	logger  *slog.Logger
}

// NewWBCHandler creates a WBCHandler.
func NewWBCHandler(gateway TokenGateway, gate WithdrawalGate, logger *slog.Logger) *WBCHandler {
	return &WBCHandler{gateway: gateway, gate: gate, logger: logHandler(logger, "wbc")}
}

type configResponse struct {
	Config domain.WBCConfig    `json:"config"`
	State  domain.GatewayState `json:"state"`
}

// GetConfig returns the token configuration and gateway readiness.
// GET /api/wbc/config
func (h *WBCHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, state := h.gateway.Config(r.Context())
	writeJSON(w, http.StatusOK, configResponse{Config: cfg, State: state})
}

type updateConfigRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Actor string `json:"actor"`
}

// UpdateConfig sets one configuration key and reloads the gateway.
// PUT /api/wbc/config
func (h *WBCHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	state, err := h.gateway.UpdateConfig(r.Context(), req.Key, req.Value, actorFrom(r, req.Actor))
	h.respondState(w, r, state, err, "failed to update config")
}

// Activate turns the token integration on.
// POST /api/wbc/activate
func (h *WBCHandler) Activate(w http.ResponseWriter, r *http.Request) {
	state, err := h.gateway.Activate(r.Context(), actorFrom(r, ""))
	h.respondState(w, r, state, err, "failed to activate")
}

// Deactivate turns the token integration off.
// POST /api/wbc/deactivate
func (h *WBCHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	state, err := h.gateway.Deactivate(r.Context(), actorFrom(r, ""))
	h.respondState(w, r, state, err, "failed to deactivate")
}

type contractRequest struct {
	Address      string `json:"contract_address"`
	DeployTxHash string `json:"deploy_tx_hash"`
	Actor        string `json:"actor"`
}

// SetContract records a newly deployed token contract.
// POST /api/wbc/contract
func (h *WBCHandler) SetContract(w http.ResponseWriter, r *http.Request) {
	var req contractRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state, err := h.gateway.SetContractAddress(r.Context(), req.Address, req.DeployTxHash, actorFrom(r, req.Actor))
	h.respondState(w, r, state, err, "failed to set contract")
}

func (h *WBCHandler) respondState(w http.ResponseWriter, r *http.Request, state domain.GatewayState, err error, msg string) {
	if err != nil {
		writeServiceError(w, r, h.logger, err, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": state})
}

// Balance returns a wallet's token balance. With ?min= it answers whether
// the wallet holds at least that amount instead.
// GET /api/wbc/balance/{wallet}
func (h *WBCHandler) Balance(w http.ResponseWriter, r *http.Request) {
	wallet := r.PathValue("wallet")
	if !common.IsHexAddress(wallet) {
		writeError(w, http.StatusBadRequest, "wallet must be a hex address")
		return
	}
	if raw := r.URL.Query().Get("min"); raw != "" {
		threshold, err := decimal.NewFromString(raw)
		if err != nil || threshold.IsNegative() {
			writeError(w, http.StatusBadRequest, "min must be a non-negative decimal")
			return
		}
		ok, err := h.gateway.HasEnoughBalance(r.Context(), wallet, threshold)
		if err != nil {
			writeServiceError(w, r, h.logger, err, "failed to read balance")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"wallet": wallet, "min": threshold, "sufficient": ok})
		return
	}
	bal, err := h.gateway.Balance(r.Context(), wallet)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to read balance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"wallet": wallet, "balance": bal})
}

// Stats returns the contract's distribution counters.
// GET /api/wbc/stats
func (h *WBCHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.gateway.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to read stats")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Transactions lists recorded transfers. Filters: wallet, kind, status,
// position_id, plus the standard paging parameters.
// GET /api/wbc/transactions
func (h *WBCHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.TxFilter{
		Wallet:   q.Get("wallet"),
		Kind:     domain.TxKind(q.Get("kind")),
		Status:   domain.TxStatus(q.Get("status")),
		ListOpts: parseListOpts(r),
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown kind")
		return
	}
	if v := q.Get("position_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "position_id must be an integer")
			return
		}
		filter.PositionID = &id
	}

	txs, err := h.gateway.Transactions(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list transactions")
		return
	}
	if txs == nil {
		txs = []domain.WBCTransaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

// ValidateCollectFees checks whether a wallet may collect fees.
// POST /api/wbc/validate/collect-fees
func (h *WBCHandler) ValidateCollectFees(w http.ResponseWriter, r *http.Request) {
	h.validate(w, r, h.gate.CollectFees)
}

// ValidateClosePosition checks whether a wallet may close a position.
// POST /api/wbc/validate/close-position
func (h *WBCHandler) ValidateClosePosition(w http.ResponseWriter, r *http.Request) {
	h.validate(w, r, h.gate.ClosePosition)
}

func (h *WBCHandler) validate(
	w http.ResponseWriter,
	r *http.Request,
	check func(context.Context, service.GateRequest) (domain.ValidationResult, error),
) {
	var req service.GateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := check(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "validation failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RecordReturn records a user's verified transfer back to the treasury.
// POST /api/wbc/returns
func (h *WBCHandler) RecordReturn(w http.ResponseWriter, r *http.Request) {
	var req service.ReturnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.gateway.RecordVerifiedReturn(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to record return")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type activationRequest struct {
	PositionID int64           `json:"position_id"`
	Wallet     string          `json:"wallet"`
	Amount     decimal.Decimal `json:"amount"`
}

// ActivationReward sends the one-off reward for an activated position. The
// outcome, including skipped or failed sends, is in the body.
// POST /api/wbc/rewards/activation
func (h *WBCHandler) ActivationReward(w http.ResponseWriter, r *http.Request) {
	var req activationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PositionID <= 0 {
		writeError(w, http.StatusBadRequest, "position_id is required")
		return
	}
	res := h.gateway.SendActivationReward(r.Context(), req.PositionID, req.Wallet, req.Amount)
	h.logger.InfoContext(r.Context(), "activation reward requested",
		slog.Int64("position_id", req.PositionID),
		slog.Bool("success", res.Success),
		slog.Bool("skipped", res.Skipped),
	)
	writeJSON(w, http.StatusOK, res)
}
