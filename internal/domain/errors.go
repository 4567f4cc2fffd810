package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrLockHeld           = errors.New("lock already held")
	ErrRunInProgress      = errors.New("distribution already running")
	ErrGatewayNotReady    = errors.New("token gateway not ready")
	ErrInvalidDuration    = errors.New("invalid duration bucket")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidAddress     = errors.New("invalid address")
	ErrInvalidTxKind      = errors.New("invalid transaction kind")
	ErrInvalidTxHash      = errors.New("invalid transaction hash")
	ErrUnknownConfigKey   = errors.New("unknown config key")
	ErrInvalidConfigValue = errors.New("invalid config value")
)
