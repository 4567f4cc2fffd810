package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/yieldengine/internal/domain"
)

type recordingValidator struct {
	op       string
	wallet   string
	required decimal.Decimal
}

func (v *recordingValidator) ValidateCollectFees(_ context.Context, wallet string, required decimal.Decimal) domain.ValidationResult {
	v.op, v.wallet, v.required = "collect", wallet, required
	return domain.ValidationResult{CanProceed: true, Required: required}
}

func (v *recordingValidator) ValidateClosePosition(_ context.Context, wallet string, total decimal.Decimal) domain.ValidationResult {
	v.op, v.wallet, v.required = "close", wallet, total
	return domain.ValidationResult{CanProceed: true, Required: total}
}

const ownerWallet = "0x00000000000000000000000000000000000000b1"

func gateFixture(policy GatingPolicy) (*WithdrawalGate, *recordingValidator) {
	positions := &fakePositions{byID: map[int64]domain.Position{
		5: activePosition(5, "1000", 90, "12.5"),
	}}
	v := &recordingValidator{}
	return NewWithdrawalGate(positions, v, policy), v
}

func TestNewGatingPolicyDefaults(t *testing.T) {
	p := NewGatingPolicy(0.5, 0)
	assert.True(t, d("0.5").Equal(p.CollectFeesRatio))
	assert.True(t, d("1").Equal(p.ClosePositionRatio))
	assert.True(t, d("5").Equal(p.CollectFeesRequirement(d("10"))))
	assert.True(t, d("10").Equal(p.ClosePositionRequirement(d("10"))))
}

func TestGateExplicitAmount(t *testing.T) {
	gate, v := gateFixture(NewGatingPolicy(2, 1))
	amount := d("3.25")

	res, err := gate.CollectFees(context.Background(), GateRequest{Wallet: ownerWallet, Amount: &amount})
	require.NoError(t, err)
	assert.True(t, res.CanProceed)
	assert.Equal(t, "collect", v.op)
	assert.Equal(t, ownerWallet, v.wallet)
	assert.True(t, d("6.5").Equal(v.required), v.required.String())
}

func TestGateResolvesPosition(t *testing.T) {
	gate, v := gateFixture(NewGatingPolicy(1, 1))
	id := int64(5)

	_, err := gate.CollectFees(context.Background(), GateRequest{PositionID: &id})
	require.NoError(t, err)
	assert.True(t, d("12.5").Equal(v.required))
	assert.Equal(t, ownerWallet, v.wallet, "wallet defaults to the position owner")

	_, err = gate.ClosePosition(context.Background(), GateRequest{Wallet: ownerWallet, PositionID: &id})
	require.NoError(t, err)
	assert.Equal(t, "close", v.op)
	assert.True(t, d("1012.5").Equal(v.required), v.required.String())
}

func TestGateRejectsBadRequests(t *testing.T) {
	gate, _ := gateFixture(NewGatingPolicy(1, 1))
	ctx := context.Background()
	id, missing := int64(5), int64(99)
	neg := d("-1")
	pos := d("1")

	_, err := gate.CollectFees(ctx, GateRequest{Wallet: ownerWallet, Amount: &neg})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = gate.CollectFees(ctx, GateRequest{Amount: &pos})
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	_, err = gate.CollectFees(ctx, GateRequest{Wallet: ownerWallet})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = gate.ClosePosition(ctx, GateRequest{PositionID: &missing})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = gate.ClosePosition(ctx, GateRequest{Wallet: "0x00000000000000000000000000000000000000c2", PositionID: &id})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
