package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/yieldengine/internal/domain"
)

// GatingPolicy turns a withdrawal amount into the token balance required
// to perform it.
type GatingPolicy struct {
	CollectFeesRatio   decimal.Decimal
	ClosePositionRatio decimal.Decimal
}

// NewGatingPolicy builds a policy from configured ratios. Non-positive
// ratios fall back to 1.
func NewGatingPolicy(collectFeesRatio, closePositionRatio float64) GatingPolicy {
	ratio := func(f float64) decimal.Decimal {
		if f <= 0 {
			return decimal.NewFromInt(1)
		}
		return decimal.NewFromFloat(f)
	}
	return GatingPolicy{
		CollectFeesRatio:   ratio(collectFeesRatio),
		ClosePositionRatio: ratio(closePositionRatio),
	}
}

// CollectFeesRequirement is the balance needed to withdraw base in fees.
func (p GatingPolicy) CollectFeesRequirement(base decimal.Decimal) decimal.Decimal {
	return base.Mul(p.CollectFeesRatio).Round(domain.YieldPrecision)
}

// ClosePositionRequirement is the balance needed to close a position whose
// total payout is base.
func (p GatingPolicy) ClosePositionRequirement(base decimal.Decimal) decimal.Decimal {
	return base.Mul(p.ClosePositionRatio).Round(domain.YieldPrecision)
}

// Validator is the gateway's balance check.
type Validator interface {
	ValidateCollectFees(ctx context.Context, wallet string, required decimal.Decimal) domain.ValidationResult
	ValidateClosePosition(ctx context.Context, wallet string, total decimal.Decimal) domain.ValidationResult
}

// GateRequest asks whether a withdrawal may proceed. Either Amount or
// PositionID must be set; an explicit Amount wins.
type GateRequest struct {
	Wallet     string           `json:"wallet"`
	PositionID *int64           `json:"position_id,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
}

// WithdrawalGate resolves the required amount for a withdrawal and asks the
// gateway whether the wallet holds it.
type WithdrawalGate struct {
	positions domain.PositionStore
	validator Validator
	policy    GatingPolicy
}

// NewWithdrawalGate creates a WithdrawalGate.
func NewWithdrawalGate(positions domain.PositionStore, validator Validator, policy GatingPolicy) *WithdrawalGate {
	return &WithdrawalGate{positions: positions, validator: validator, policy: policy}
}

// CollectFees checks a fee collection. Without an explicit amount the
// position's fee balance is the base.
func (w *WithdrawalGate) CollectFees(ctx context.Context, req GateRequest) (domain.ValidationResult, error) {
	base, wallet, err := w.resolve(ctx, req, func(p domain.Position) decimal.Decimal { return p.FeeBalance })
	if err != nil {
		return domain.ValidationResult{}, err
	}
	return w.validator.ValidateCollectFees(ctx, wallet, w.policy.CollectFeesRequirement(base)), nil
}

// ClosePosition checks a position closure. Without an explicit amount the
// base is capital plus fee balance.
func (w *WithdrawalGate) ClosePosition(ctx context.Context, req GateRequest) (domain.ValidationResult, error) {
	base, wallet, err := w.resolve(ctx, req, func(p domain.Position) decimal.Decimal { return p.Capital.Add(p.FeeBalance) })
	if err != nil {
		return domain.ValidationResult{}, err
	}
	return w.validator.ValidateClosePosition(ctx, wallet, w.policy.ClosePositionRequirement(base)), nil
}

func (w *WithdrawalGate) resolve(ctx context.Context, req GateRequest, baseOf func(domain.Position) decimal.Decimal) (decimal.Decimal, string, error) {
	wallet := domain.NormalizeWallet(req.Wallet)

	if req.Amount != nil {
		if req.Amount.IsNegative() {
			return decimal.Zero, "", fmt.Errorf("gating: %w: %s", domain.ErrInvalidAmount, req.Amount)
		}
		if wallet == "" {
			return decimal.Zero, "", fmt.Errorf("gating: %w: wallet is required", domain.ErrInvalidAddress)
		}
		return *req.Amount, wallet, nil
	}
	if req.PositionID == nil {
		return decimal.Zero, "", fmt.Errorf("gating: %w: amount or position_id is required", domain.ErrInvalidAmount)
	}

	pos, err := w.positions.GetByID(ctx, *req.PositionID)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("gating: position %d: %w", *req.PositionID, err)
	}
	if wallet == "" {
		wallet = pos.Wallet
	}
	if !strings.EqualFold(wallet, pos.Wallet) {
		return decimal.Zero, "", fmt.Errorf("gating: position %d: %w", *req.PositionID, domain.ErrUnauthorized)
	}
	return baseOf(pos), wallet, nil
}
