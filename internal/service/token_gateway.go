package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/yieldengine/internal/domain"
	"github.com/alanyoungcy/yieldengine/internal/metrics"
)

// Reasons reported on skipped operations.
const (
	reasonNotActive  = "WBC system not active"
	reasonNotReady   = "WBC service not ready"
	reasonNoSigner   = "treasury signer not configured"
	reasonNoContract = "contract address not configured"
)

// TokenChain is the chain client the gateway drives.
type TokenChain interface {
	BalanceOf(ctx context.Context, wallet string) (decimal.Decimal, error)
	Stats(ctx context.Context) (domain.TokenStats, error)
	SendToUser(ctx context.Context, to string, amount decimal.Decimal, positionID int64, reason string) (domain.TxReceipt, error)
	Receipt(ctx context.Context, txHash string) (domain.TxReceipt, error)
	TreasuryAddress() string
	Close()
}

// ChainDialer builds a TokenChain for the given token configuration.
type ChainDialer func(cfg domain.WBCConfig) (TokenChain, error)

// Pacer spaces out chain submissions.
type Pacer interface {
	Wait(ctx context.Context) error
}

// ReturnRequest describes a user-initiated transfer back to the treasury.
type ReturnRequest struct {
	TxHash     string          `json:"tx_hash"`
	PositionID int64           `json:"position_id"`
	Wallet     string          `json:"wallet"`
	Amount     decimal.Decimal `json:"amount"`
	Kind       domain.TxKind   `json:"kind"`
}

// TokenGateway owns the reward token: treasury sends, balance queries and
// balance-gated validation. It never blocks yield accounting or withdrawals;
// when the token is disabled or unreachable, sends are skipped and
// validations pass.
type TokenGateway struct {
	configs  domain.WBCConfigStore
	txs      domain.WBCTransactionStore
	audit    domain.AuditStore
	dial     ChainDialer
	pacer    Pacer
	treasury string
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	state   domain.GatewayState
	cfg     domain.WBCConfig
	chain   TokenChain
	initAt  time.Time
	onState func(ctx context.Context, from, to domain.GatewayState)
}

// NewTokenGateway creates a gateway in the uninitialized state. treasury is
// the signer's address, or "" when no key is configured. audit may be nil.
func NewTokenGateway(
	configs domain.WBCConfigStore,
	txs domain.WBCTransactionStore,
	audit domain.AuditStore,
	dial ChainDialer,
	pacer Pacer,
	treasury string,
	logger *slog.Logger,
) *TokenGateway {
	return &TokenGateway{
		configs:  configs,
		txs:      txs,
		audit:    audit,
		dial:     dial,
		pacer:    pacer,
		treasury: treasury,
		logger:   logger.With(slog.String("component", "token_gateway")),
		now:      time.Now,
		state:    domain.GatewayState{Status: domain.GatewayUninitialized},
		cfg:      domain.DefaultWBCConfig(),
	}
}

// Initialize (re)loads the token configuration and connects the chain
// client. The resulting state is returned; the error is informational and
// the gateway stays usable in its degraded state.
func (g *TokenGateway) Initialize(ctx context.Context) (domain.GatewayState, error) {
	g.mu.Lock()
	prev := g.state
	state, err := g.initLocked(ctx)
	g.state = state
	g.initAt = g.now()
	hook := g.onState
	g.mu.Unlock()

	if prev.Status != state.Status {
		g.logger.InfoContext(ctx, "gateway state changed",
			slog.String("from", prev.String()),
			slog.String("to", state.String()),
		)
		if hook != nil && prev.Status != domain.GatewayUninitialized {
			hook(ctx, prev, state)
		}
	}
	return state, err
}

// OnStateChange registers f to be called after the readiness tag changes.
// The first initialization is not reported.
func (g *TokenGateway) OnStateChange(f func(ctx context.Context, from, to domain.GatewayState)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onState = f
}

func (g *TokenGateway) initLocked(ctx context.Context) (domain.GatewayState, error) {
	if g.chain != nil {
		g.chain.Close()
		g.chain = nil
	}

	kv, err := g.configs.GetAll(ctx)
	if err != nil {
		return domain.GatewayState{Status: domain.GatewayError, Reason: "load config: " + err.Error()},
			fmt.Errorf("token_gateway: load config: %w", err)
	}
	cfg, err := domain.ParseWBCConfig(kv)
	if err != nil {
		return domain.GatewayState{Status: domain.GatewayError, Reason: err.Error()},
			fmt.Errorf("token_gateway: %w", err)
	}
	g.cfg = cfg

	if !cfg.IsActive {
		return domain.GatewayState{Status: domain.GatewayDisabled, Reason: reasonNotActive}, nil
	}
	if strings.TrimSpace(cfg.ContractAddress) == "" {
		return domain.GatewayState{Status: domain.GatewayDisabled, Reason: reasonNoContract}, nil
	}

	chain, err := g.dial(cfg)
	if err != nil {
		return domain.GatewayState{Status: domain.GatewayError, Reason: err.Error()},
			fmt.Errorf("token_gateway: connect chain: %w", err)
	}
	g.chain = chain
	return domain.GatewayState{Status: domain.GatewayReady}, nil
}

// Shutdown closes the chain client and returns the gateway to uninitialized.
func (g *TokenGateway) Shutdown() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.chain != nil {
		g.chain.Close()
		g.chain = nil
	}
	g.state = domain.GatewayState{Status: domain.GatewayUninitialized}
}

// State returns the current readiness tag without initializing.
func (g *TokenGateway) State() domain.GatewayState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

type gatewaySnapshot struct {
	state domain.GatewayState
	cfg   domain.WBCConfig
	chain TokenChain
}

// errorRetryInterval is how long the gateway stays in GatewayError before
// the next call tries to initialize again.
const errorRetryInterval = 30 * time.Second

// snapshot initializes on first use, and again after errorRetryInterval in
// the error state, and returns a consistent view.
func (g *TokenGateway) snapshot(ctx context.Context) gatewaySnapshot {
	g.mu.RLock()
	s := gatewaySnapshot{state: g.state, cfg: g.cfg, chain: g.chain}
	retry := s.state.Status == domain.GatewayError && g.now().Sub(g.initAt) >= errorRetryInterval
	g.mu.RUnlock()
	if s.state.Status != domain.GatewayUninitialized && !retry {
		return s
	}

	if _, err := g.Initialize(ctx); err != nil {
		g.logger.WarnContext(ctx, "gateway initialization failed", slog.String("error", err.Error()))
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return gatewaySnapshot{state: g.state, cfg: g.cfg, chain: g.chain}
}

// Active reports whether the gateway is ready to talk to the chain.
func (g *TokenGateway) Active(ctx context.Context) bool {
	return g.snapshot(ctx).state.Status == domain.GatewayReady
}

// SendActivationReward sends the reward for a newly activated position.
func (g *TokenGateway) SendActivationReward(ctx context.Context, positionID int64, wallet string, amount decimal.Decimal) domain.TransferResult {
	return g.SendToUser(ctx, positionID, wallet, amount, domain.TxKindActivationReward)
}

// SendToUser transfers amount from the treasury to recipient and records
// the transaction. It never retries. Degraded outcomes are reported in the
// result: skipped when the gateway is not ready, a failure without any chain
// call when the treasury balance is short.
func (g *TokenGateway) SendToUser(ctx context.Context, positionID int64, recipient string, amount decimal.Decimal, kind domain.TxKind) domain.TransferResult {
	res := g.sendToUser(ctx, positionID, recipient, amount, kind)
	metrics.WBCSends.WithLabelValues(string(kind), transferOutcome(res)).Inc()
	return res
}

func (g *TokenGateway) sendToUser(ctx context.Context, positionID int64, recipient string, amount decimal.Decimal, kind domain.TxKind) domain.TransferResult {
	res := domain.TransferResult{Amount: amount}

	if !amount.IsPositive() {
		res.Error = fmt.Sprintf("%s: amount must be positive, got %s", domain.ErrInvalidAmount, amount)
		return res
	}
	if kind.IsReturn() || !kind.Valid() {
		res.Error = fmt.Sprintf("%s: %q is not a send kind", domain.ErrInvalidTxKind, kind)
		return res
	}

	s := g.snapshot(ctx)
	switch s.state.Status {
	case domain.GatewayReady:
	case domain.GatewayDisabled:
		res.Skipped = true
		res.Reason = reasonNotActive
		g.logger.DebugContext(ctx, "send skipped", slog.Int64("position_id", positionID), slog.String("reason", s.state.Reason))
		return res
	default:
		res.Skipped = true
		res.Reason = reasonNotReady
		g.logger.InfoContext(ctx, "send skipped, gateway not ready",
			slog.Int64("position_id", positionID),
			slog.String("state", s.state.String()),
			slog.String("amount", amount.String()),
		)
		return res
	}

	treasury := s.chain.TreasuryAddress()
	if treasury == "" {
		res.Skipped = true
		res.Reason = reasonNoSigner
		return res
	}
	if !common.IsHexAddress(recipient) {
		res.Error = fmt.Sprintf("%s: recipient %q", domain.ErrInvalidAddress, recipient)
		return res
	}

	balance, err := s.chain.BalanceOf(ctx, treasury)
	if err != nil {
		return g.recordFailedSend(ctx, res, "", treasury, recipient, positionID, kind, fmt.Errorf("treasury balance: %w", err))
	}
	if balance.LessThan(amount) {
		g.logger.WarnContext(ctx, "treasury balance too low",
			slog.Int64("position_id", positionID),
			slog.String("balance", balance.String()),
			slog.String("amount", amount.String()),
		)
		return g.recordFailedSend(ctx, res, "", treasury, recipient, positionID, kind,
			fmt.Errorf("Insufficient owner balance. Has: %s, Needs: %s", balance, amount))
	}

	if g.pacer != nil {
		if err := g.pacer.Wait(ctx); err != nil {
			res.Error = "send pacing interrupted: " + err.Error()
			return res
		}
	}

	g.logger.InfoContext(ctx, "sending reward",
		slog.Int64("position_id", positionID),
		slog.String("to", recipient),
		slog.String("amount", amount.String()),
		slog.String("kind", string(kind)),
	)
	rcpt, err := s.chain.SendToUser(ctx, recipient, amount, positionID, chainReason(kind))
	if err != nil {
		res.BlockNumber = rcpt.BlockNumber
		return g.recordFailedSend(ctx, res, rcpt.TxHash, treasury, recipient, positionID, kind, err)
	}

	now := g.now().UTC()
	pid := positionID
	block, gas := rcpt.BlockNumber, rcpt.GasUsed
	g.record(ctx, domain.WBCTransaction{
		TxHash:      rcpt.TxHash,
		FromAddress: treasury,
		ToAddress:   recipient,
		Amount:      amount,
		PositionID:  &pid,
		Kind:        kind,
		Status:      domain.TxStatusConfirmed,
		BlockNumber: &block,
		GasUsed:     &gas,
		CreatedAt:   now,
		ConfirmedAt: &now,
	})

	g.logger.InfoContext(ctx, "reward confirmed",
		slog.Int64("position_id", positionID),
		slog.String("tx_hash", rcpt.TxHash),
		slog.Uint64("block", rcpt.BlockNumber),
	)
	res.Success = true
	res.TxHash = rcpt.TxHash
	res.BlockNumber = rcpt.BlockNumber
	return res
}

func (g *TokenGateway) recordFailedSend(
	ctx context.Context,
	res domain.TransferResult,
	txHash, from, to string,
	positionID int64,
	kind domain.TxKind,
	cause error,
) domain.TransferResult {
	if txHash == "" {
		txHash = "failed_" + uuid.NewString()
	}
	pid := positionID
	tx := domain.WBCTransaction{
		TxHash:       txHash,
		FromAddress:  from,
		ToAddress:    to,
		Amount:       res.Amount,
		PositionID:   &pid,
		Kind:         kind,
		Status:       domain.TxStatusFailed,
		ErrorMessage: cause.Error(),
		CreatedAt:    g.now().UTC(),
	}
	if res.BlockNumber > 0 {
		block := res.BlockNumber
		tx.BlockNumber = &block
	}
	g.record(ctx, tx)

	g.logger.WarnContext(ctx, "reward send failed",
		slog.Int64("position_id", positionID),
		slog.String("tx_hash", txHash),
		slog.String("error", cause.Error()),
	)
	res.TxHash = txHash
	res.Error = cause.Error()
	return res
}

func (g *TokenGateway) record(ctx context.Context, tx domain.WBCTransaction) {
	if err := g.txs.Upsert(ctx, tx); err != nil {
		g.logger.ErrorContext(ctx, "record transaction failed",
			slog.String("tx_hash", tx.TxHash),
			slog.String("error", err.Error()),
		)
	}
}

// ValidateCollectFees reports whether wallet holds at least required tokens.
// When the gateway is not ready, or the balance cannot be read, the
// validation passes.
func (g *TokenGateway) ValidateCollectFees(ctx context.Context, wallet string, required decimal.Decimal) domain.ValidationResult {
	return g.validate(ctx, "collect_fees", wallet, required)
}

// ValidateClosePosition applies the same check against the total due at
// closure.
func (g *TokenGateway) ValidateClosePosition(ctx context.Context, wallet string, total decimal.Decimal) domain.ValidationResult {
	return g.validate(ctx, "close_position", wallet, total)
}

func (g *TokenGateway) validate(ctx context.Context, op, wallet string, required decimal.Decimal) domain.ValidationResult {
	if required.IsNegative() {
		required = decimal.Zero
	}
	res := domain.ValidationResult{Required: required, Balance: decimal.Zero, Shortfall: decimal.Zero}

	s := g.snapshot(ctx)
	if s.state.Status != domain.GatewayReady {
		res.CanProceed = true
		res.Skipped = true
		res.Reason = reasonNotActive
		if s.state.Status != domain.GatewayDisabled {
			res.Reason = reasonNotReady
		}
		metrics.WBCValidations.WithLabelValues(op, metrics.OutcomeFailOpen).Inc()
		return res
	}

	balance, err := s.chain.BalanceOf(ctx, wallet)
	if err != nil {
		g.logger.WarnContext(ctx, "validation balance read failed, allowing",
			slog.String("operation", op),
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		res.CanProceed = true
		res.Reason = "Validation error: " + err.Error()
		metrics.WBCValidations.WithLabelValues(op, metrics.OutcomeFailOpen).Inc()
		return res
	}

	res.Balance = balance
	if balance.GreaterThanOrEqual(required) {
		res.CanProceed = true
		metrics.WBCValidations.WithLabelValues(op, metrics.OutcomeAllowed).Inc()
		return res
	}
	res.Shortfall = required.Sub(balance)
	res.Reason = fmt.Sprintf("Insufficient WBC: has %s, needs %s (short %s)", balance, required, res.Shortfall)
	metrics.WBCValidations.WithLabelValues(op, metrics.OutcomeDenied).Inc()
	return res
}

// RecordVerifiedReturn logs a transfer the user made back to the treasury.
// When the gateway can read the chain, the hash is checked: a successful
// receipt is recorded as confirmed and a reverted one as failed. Otherwise
// the return is recorded as pending. A hash already confirmed is not checked
// again. Malformed requests, including a hash that is not 32 bytes of hex,
// and storage failures are returned as errors.
func (g *TokenGateway) RecordVerifiedReturn(ctx context.Context, req ReturnRequest) (domain.TransferResult, error) {
	req.TxHash = strings.TrimSpace(req.TxHash)
	if raw, err := hexutil.Decode(req.TxHash); err != nil || len(raw) != common.HashLength {
		return domain.TransferResult{}, fmt.Errorf("token_gateway: %w: %q", domain.ErrInvalidTxHash, req.TxHash)
	}
	if !req.Kind.IsReturn() {
		return domain.TransferResult{}, fmt.Errorf("token_gateway: %w: %q is not a return kind", domain.ErrInvalidTxKind, req.Kind)
	}
	if !req.Amount.IsPositive() {
		return domain.TransferResult{}, fmt.Errorf("token_gateway: %w: %s", domain.ErrInvalidAmount, req.Amount)
	}
	if !common.IsHexAddress(req.Wallet) {
		return domain.TransferResult{}, fmt.Errorf("token_gateway: %w: %q", domain.ErrInvalidAddress, req.Wallet)
	}

	res := domain.TransferResult{Amount: req.Amount, TxHash: req.TxHash}

	prev, err := g.txs.GetByHash(ctx, req.TxHash)
	switch {
	case err == nil && !prev.Kind.IsReturn():
		return domain.TransferResult{}, fmt.Errorf("token_gateway: %w: %s is a %s", domain.ErrInvalidTxKind, req.TxHash, prev.Kind)
	case err == nil && prev.Status == domain.TxStatusConfirmed:
		res.Success = true
		res.Reason = "already recorded"
		if prev.BlockNumber != nil {
			res.BlockNumber = *prev.BlockNumber
		}
		return res, nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return domain.TransferResult{}, fmt.Errorf("token_gateway: look up return %s: %w", req.TxHash, err)
	}

	s := g.snapshot(ctx)
	if s.state.Status == domain.GatewayDisabled {
		res.Skipped = true
		res.Reason = reasonNotActive
		return res, nil
	}

	to := s.cfg.OwnerWallet
	if s.chain != nil && s.chain.TreasuryAddress() != "" {
		to = s.chain.TreasuryAddress()
	}
	if to == "" {
		to = g.treasury
	}

	pid := req.PositionID
	tx := domain.WBCTransaction{
		TxHash:      req.TxHash,
		FromAddress: req.Wallet,
		ToAddress:   to,
		Amount:      req.Amount,
		PositionID:  &pid,
		Kind:        req.Kind,
		Status:      domain.TxStatusPending,
		CreatedAt:   g.now().UTC(),
	}

	if s.state.Status == domain.GatewayReady {
		rcpt, err := s.chain.Receipt(ctx, req.TxHash)
		switch {
		case err == nil && rcpt.Success:
			now := g.now().UTC()
			block, gas := rcpt.BlockNumber, rcpt.GasUsed
			tx.Status = domain.TxStatusConfirmed
			tx.BlockNumber = &block
			tx.GasUsed = &gas
			tx.ConfirmedAt = &now
			res.BlockNumber = rcpt.BlockNumber
		case err == nil:
			block := rcpt.BlockNumber
			tx.Status = domain.TxStatusFailed
			tx.BlockNumber = &block
			tx.ErrorMessage = "transaction reverted"
			res.BlockNumber = rcpt.BlockNumber
		default:
			g.logger.InfoContext(ctx, "return not verifiable yet, recording as pending",
				slog.String("tx_hash", req.TxHash),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := g.txs.Upsert(ctx, tx); err != nil {
		return domain.TransferResult{}, fmt.Errorf("token_gateway: record return %s: %w", req.TxHash, err)
	}

	g.logger.InfoContext(ctx, "return recorded",
		slog.String("tx_hash", req.TxHash),
		slog.Int64("position_id", req.PositionID),
		slog.String("status", string(tx.Status)),
		slog.String("amount", req.Amount.String()),
	)

	res.Success = tx.Status != domain.TxStatusFailed
	if tx.Status == domain.TxStatusPending {
		res.Reason = "pending confirmation"
	}
	if tx.Status == domain.TxStatusFailed {
		res.Error = tx.ErrorMessage
	}
	return res, nil
}

// Config returns the current token configuration and readiness.
func (g *TokenGateway) Config(ctx context.Context) (domain.WBCConfig, domain.GatewayState) {
	s := g.snapshot(ctx)
	return s.cfg, s.state
}

// UpdateConfig writes one configuration key and reinitializes.
func (g *TokenGateway) UpdateConfig(ctx context.Context, key, value, actor string) (domain.GatewayState, error) {
	if !domain.IsWBCConfigKey(key) {
		return g.State(), fmt.Errorf("token_gateway: %w: %q", domain.ErrUnknownConfigKey, key)
	}
	if _, err := domain.ParseWBCConfig(map[string]string{key: value}); err != nil {
		return g.State(), fmt.Errorf("token_gateway: %w", err)
	}
	if key == domain.WBCKeyContractAddress && value != "" && !common.IsHexAddress(value) {
		return g.State(), fmt.Errorf("token_gateway: %w: %q", domain.ErrInvalidAddress, value)
	}
	return g.setKeys(ctx, actor, map[string]string{key: value})
}

// Activate turns the token integration on.
func (g *TokenGateway) Activate(ctx context.Context, actor string) (domain.GatewayState, error) {
	return g.setKeys(ctx, actor, map[string]string{domain.WBCKeyIsActive: "true"})
}

// Deactivate turns the token integration off. Sends are skipped and
// validations pass until it is activated again.
func (g *TokenGateway) Deactivate(ctx context.Context, actor string) (domain.GatewayState, error) {
	return g.setKeys(ctx, actor, map[string]string{domain.WBCKeyIsActive: "false"})
}

// SetContractAddress records a newly deployed token contract.
func (g *TokenGateway) SetContractAddress(ctx context.Context, address, deployTxHash, actor string) (domain.GatewayState, error) {
	if !common.IsHexAddress(address) {
		return g.State(), fmt.Errorf("token_gateway: %w: %q", domain.ErrInvalidAddress, address)
	}
	kv := map[string]string{
		domain.WBCKeyContractAddress: common.HexToAddress(address).Hex(),
		domain.WBCKeyDeployTxHash:    deployTxHash,
		domain.WBCKeyDeployDate:      g.now().UTC().Format(time.RFC3339),
	}
	if g.treasury != "" {
		kv[domain.WBCKeyOwnerWallet] = g.treasury
	}
	return g.setKeys(ctx, actor, kv)
}

func (g *TokenGateway) setKeys(ctx context.Context, actor string, kv map[string]string) (domain.GatewayState, error) {
	for k, v := range kv {
		if err := g.configs.Set(ctx, k, v); err != nil {
			return g.State(), fmt.Errorf("token_gateway: set %s: %w", k, err)
		}
	}

	if g.audit != nil {
		detail := make(map[string]any, len(kv)+1)
		for k, v := range kv {
			detail[k] = v
		}
		detail["actor"] = actor
		if err := g.audit.Log(ctx, "wbc_config_updated", detail); err != nil {
			g.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	state, err := g.Initialize(ctx)
	if err != nil {
		g.logger.WarnContext(ctx, "reinitialize after config change failed", slog.String("error", err.Error()))
	}
	return state, nil
}

func (g *TokenGateway) readyChain(ctx context.Context) (TokenChain, error) {
	s := g.snapshot(ctx)
	if s.state.Status != domain.GatewayReady {
		return nil, fmt.Errorf("token_gateway: %s: %w", s.state, domain.ErrGatewayNotReady)
	}
	return s.chain, nil
}

// Balance returns wallet's token balance.
func (g *TokenGateway) Balance(ctx context.Context, wallet string) (decimal.Decimal, error) {
	chain, err := g.readyChain(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	bal, err := chain.BalanceOf(ctx, wallet)
	if err != nil {
		return decimal.Zero, fmt.Errorf("token_gateway: balance: %w", err)
	}
	return bal, nil
}

// HasEnoughBalance reports whether wallet holds at least amount.
func (g *TokenGateway) HasEnoughBalance(ctx context.Context, wallet string, amount decimal.Decimal) (bool, error) {
	bal, err := g.Balance(ctx, wallet)
	if err != nil {
		return false, err
	}
	return bal.GreaterThanOrEqual(amount), nil
}

// Stats returns the contract's distribution counters.
func (g *TokenGateway) Stats(ctx context.Context) (domain.TokenStats, error) {
	chain, err := g.readyChain(ctx)
	if err != nil {
		return domain.TokenStats{}, err
	}
	st, err := chain.Stats(ctx)
	if err != nil {
		return domain.TokenStats{}, fmt.Errorf("token_gateway: stats: %w", err)
	}
	return st, nil
}

// Transactions lists recorded transfers.
func (g *TokenGateway) Transactions(ctx context.Context, filter domain.TxFilter) ([]domain.WBCTransaction, error) {
	txs, err := g.txs.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("token_gateway: list transactions: %w", err)
	}
	return txs, nil
}

func chainReason(kind domain.TxKind) string {
	switch kind {
	case domain.TxKindActivationReward:
		return "activation"
	case domain.TxKindDailyFeeReward:
		return "daily_fee"
	default:
		return string(kind)
	}
}

func transferOutcome(r domain.TransferResult) string {
	switch {
	case r.Success:
		return metrics.OutcomeSuccess
	case r.Skipped:
		return metrics.OutcomeSkipped
	default:
		return metrics.OutcomeFailed
	}
}
