package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TxKind classifies a reward token movement.
type TxKind string

const (
	TxKindActivationReward    TxKind = "activation_reward"
	TxKindDailyFeeReward      TxKind = "daily_fee_reward"
	TxKindFeeCollectionReturn TxKind = "fee_collection_return"
	TxKindPositionCloseReturn TxKind = "position_close_return"
)

// Valid reports whether k is a known kind.
func (k TxKind) Valid() bool {
	switch k {
	case TxKindActivationReward, TxKindDailyFeeReward, TxKindFeeCollectionReturn, TxKindPositionCloseReturn:
		return true
	}
	return false
}

// IsReturn reports whether k moves tokens from a user back to the treasury.
func (k TxKind) IsReturn() bool {
	return k == TxKindFeeCollectionReturn || k == TxKindPositionCloseReturn
}

// TxStatus is the confirmation state of a recorded transaction.
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
)

// WBCTransaction is a locally recorded reward token transfer. TxHash is the
// upsert key.
type WBCTransaction struct {
	ID           int64           `json:"id"`
	TxHash       string          `json:"tx_hash"`
	FromAddress  string          `json:"from_address"`
	ToAddress    string          `json:"to_address"`
	Amount       decimal.Decimal `json:"amount"`
	PositionID   *int64          `json:"position_id,omitempty"`
	Kind         TxKind          `json:"kind"`
	Status       TxStatus        `json:"status"`
	BlockNumber  *uint64         `json:"block_number,omitempty"`
	GasUsed      *uint64         `json:"gas_used,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	ConfirmedAt  *time.Time      `json:"confirmed_at,omitempty"`
}

// TxFilter narrows a transaction listing.
type TxFilter struct {
	Wallet     string
	Kind       TxKind
	Status     TxStatus
	PositionID *int64
	ListOpts
}

// Keys of the wbc_config key/value table.
const (
	WBCKeyContractAddress = "contract_address"
	WBCKeyOwnerWallet     = "owner_wallet"
	WBCKeyNetwork         = "network"
	WBCKeyChainID         = "chain_id"
	WBCKeyDecimals        = "decimals"
	WBCKeyInitialSupply   = "initial_supply"
	WBCKeyDeployTxHash    = "deploy_tx_hash"
	WBCKeyDeployDate      = "deploy_date"
	WBCKeyIsActive        = "is_active"
)

// IsWBCConfigKey reports whether key is a recognised wbc_config key.
func IsWBCConfigKey(key string) bool {
	switch key {
	case WBCKeyContractAddress, WBCKeyOwnerWallet, WBCKeyNetwork, WBCKeyChainID,
		WBCKeyDecimals, WBCKeyInitialSupply, WBCKeyDeployTxHash, WBCKeyDeployDate, WBCKeyIsActive:
		return true
	}
	return false
}

// WBCConfig is the typed view of the wbc_config table.
type WBCConfig struct {
	ContractAddress string `json:"contract_address"`
	OwnerWallet     string `json:"owner_wallet"`
	Network         string `json:"network"`
	ChainID         int64  `json:"chain_id"`
	Decimals        int32  `json:"decimals"`
	InitialSupply   string `json:"initial_supply"`
	DeployTxHash    string `json:"deploy_tx_hash"`
	DeployDate      string `json:"deploy_date"`
	IsActive        bool   `json:"is_active"`
}

// DefaultWBCConfig is used for keys missing from the store.
func DefaultWBCConfig() WBCConfig {
	return WBCConfig{
		Network:       "polygon",
		ChainID:       137,
		Decimals:      6,
		InitialSupply: "0",
	}
}

// Enabled reports whether the gateway may talk to the chain at all.
func (c WBCConfig) Enabled() bool {
	return c.IsActive && strings.TrimSpace(c.ContractAddress) != ""
}

// ParseWBCConfig converts raw key/value rows into a WBCConfig, starting from
// the defaults. Unknown keys are ignored.
func ParseWBCConfig(kv map[string]string) (WBCConfig, error) {
	cfg := DefaultWBCConfig()
	for k, v := range kv {
		v = strings.TrimSpace(v)
		switch k {
		case WBCKeyContractAddress:
			cfg.ContractAddress = v
		case WBCKeyOwnerWallet:
			cfg.OwnerWallet = v
		case WBCKeyNetwork:
			if v != "" {
				cfg.Network = v
			}
		case WBCKeyChainID:
			if v == "" {
				continue
			}
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n <= 0 {
				return cfg, fmt.Errorf("wbc config: %w: chain_id %q is not a positive integer", ErrInvalidConfigValue, v)
			}
			cfg.ChainID = n
		case WBCKeyDecimals:
			if v == "" {
				continue
			}
			n, err := strconv.ParseInt(v, 10, 32)
			if err != nil || n < 0 || n > 36 {
				return cfg, fmt.Errorf("wbc config: %w: decimals %q out of range", ErrInvalidConfigValue, v)
			}
			cfg.Decimals = int32(n)
		case WBCKeyInitialSupply:
			cfg.InitialSupply = v
		case WBCKeyDeployTxHash:
			cfg.DeployTxHash = v
		case WBCKeyDeployDate:
			cfg.DeployDate = v
		case WBCKeyIsActive:
			cfg.IsActive = strings.EqualFold(v, "true")
		}
	}
	return cfg, nil
}

// GatewayStatus is the readiness tag of the token gateway.
type GatewayStatus string

const (
	GatewayUninitialized GatewayStatus = "uninitialized"
	GatewayDisabled      GatewayStatus = "disabled"
	GatewayReady         GatewayStatus = "ready"
	GatewayError         GatewayStatus = "error"
)

// GatewayState is the gateway's current tag plus, for GatewayError and
// GatewayDisabled, the reason.
type GatewayState struct {
	Status GatewayStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
}

func (s GatewayState) String() string {
	if s.Reason == "" {
		return string(s.Status)
	}
	return string(s.Status) + ": " + s.Reason
}

// TransferResult is the outcome of a treasury send. Degraded outcomes are
// reported here rather than as errors.
type TransferResult struct {
	Success     bool            `json:"success"`
	Skipped     bool            `json:"skipped"`
	TxHash      string          `json:"tx_hash,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	BlockNumber uint64          `json:"block_number,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// ValidationResult answers whether a gated operation may proceed.
type ValidationResult struct {
	CanProceed bool            `json:"can_proceed"`
	Balance    decimal.Decimal `json:"balance"`
	Required   decimal.Decimal `json:"required"`
	Shortfall  decimal.Decimal `json:"shortfall"`
	Reason     string          `json:"reason,omitempty"`
	Skipped    bool            `json:"skipped"`
}

// TokenStats mirrors the contract's getStats view, scaled to token units.
type TokenStats struct {
	TotalSupply  decimal.Decimal `json:"total_supply"`
	OwnerBalance decimal.Decimal `json:"owner_balance"`
	Distributed  decimal.Decimal `json:"distributed"`
	Returned     decimal.Decimal `json:"returned"`
	Net          decimal.Decimal `json:"net"`
}

// TxReceipt is the chain's verdict on a submitted or supplied transaction.
type TxReceipt struct {
	TxHash      string `json:"tx_hash"`
	Success     bool   `json:"success"`
	BlockNumber uint64 `json:"block_number"`
	GasUsed     uint64 `json:"gas_used"`
}
