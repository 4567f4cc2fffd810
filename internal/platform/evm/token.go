// Package evm talks to the WBC reward token contract over JSON-RPC.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/yieldengine/internal/crypto"
	"github.com/alanyoungcy/yieldengine/internal/domain"
)

const tokenABIJSON = `[
{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"getStats","outputs":[{"name":"totalSupply","type":"uint256"},{"name":"ownerBalance","type":"uint256"},{"name":"distributed","type":"uint256"},{"name":"returned","type":"uint256"},{"name":"net","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"},{"name":"positionId","type":"uint256"},{"name":"reason","type":"string"}],"name":"sendToUser","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

var tokenABI = mustParseABI(tokenABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("evm: parse token abi: %v", err))
	}
	return parsed
}

// Backend is the part of ethclient.Client the token client uses.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Options configures a TokenClient.
type Options struct {
	RPCURL          string
	ContractAddress string
	ChainID         int64
	Decimals        int32
	GasLimit        uint64
	ConfirmTimeout  time.Duration
	PollInterval    time.Duration
	DialRetries     int
	CallTimeout     time.Duration
}

// TokenClient reads and sends the reward token. Without a signer it is
// read-only and SendToUser returns domain.ErrGatewayNotReady.
type TokenClient struct {
	contract       common.Address
	chainID        *big.Int
	decimals       int32
	gasLimit       uint64
	confirmTimeout time.Duration
	pollInterval   time.Duration
	retries        int
	callTimeout    time.Duration
	signer         *crypto.TxSigner

	dial func(ctx context.Context) (Backend, error)

	mu      sync.Mutex
	backend Backend
	// sendMu serialises nonce allocation across concurrent sends.
	sendMu sync.Mutex
}

// NewTokenClient validates opts and returns a client that dials lazily.
func NewTokenClient(opts Options, signer *crypto.TxSigner) (*TokenClient, error) {
	if !common.IsHexAddress(opts.ContractAddress) {
		return nil, fmt.Errorf("evm: contract %q: %w", opts.ContractAddress, domain.ErrInvalidAddress)
	}
	if opts.ChainID <= 0 {
		return nil, fmt.Errorf("evm: chain id must be positive, got %d", opts.ChainID)
	}
	rpcURL := strings.TrimSpace(opts.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("evm: rpc url not configured")
	}
	if opts.GasLimit == 0 {
		opts.GasLimit = 200_000
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 2 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.DialRetries < 0 {
		opts.DialRetries = 0
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}

	return &TokenClient{
		contract:       common.HexToAddress(opts.ContractAddress),
		chainID:        big.NewInt(opts.ChainID),
		decimals:       opts.Decimals,
		gasLimit:       opts.GasLimit,
		confirmTimeout: opts.ConfirmTimeout,
		pollInterval:   opts.PollInterval,
		retries:        opts.DialRetries,
		callTimeout:    opts.CallTimeout,
		signer:         signer,
		dial: func(ctx context.Context) (Backend, error) {
			return ethclient.DialContext(ctx, rpcURL)
		},
	}, nil
}

// TreasuryAddress returns the signer's address, or "" for a read-only client.
func (c *TokenClient) TreasuryAddress() string {
	if c.signer == nil {
		return ""
	}
	return c.signer.Address().Hex()
}

// ContractAddress returns the token contract address.
func (c *TokenClient) ContractAddress() string {
	return c.contract.Hex()
}

// BalanceOf returns wallet's token balance in token units.
func (c *TokenClient) BalanceOf(ctx context.Context, wallet string) (decimal.Decimal, error) {
	if !common.IsHexAddress(wallet) {
		return decimal.Zero, fmt.Errorf("evm: balance of %q: %w", wallet, domain.ErrInvalidAddress)
	}
	data, err := tokenABI.Pack("balanceOf", common.HexToAddress(wallet))
	if err != nil {
		return decimal.Zero, fmt.Errorf("evm: pack balanceOf: %w", err)
	}
	out, err := c.call(ctx, data)
	if err != nil {
		return decimal.Zero, fmt.Errorf("evm: balance of %s: %w", wallet, err)
	}
	vals, err := tokenABI.Unpack("balanceOf", out)
	if err != nil || len(vals) != 1 {
		return decimal.Zero, fmt.Errorf("evm: unpack balanceOf: %v", err)
	}
	raw, ok := vals[0].(*big.Int)
	if !ok {
		return decimal.Zero, errors.New("evm: unpack balanceOf: unexpected type")
	}
	return FromBaseUnits(raw, c.decimals), nil
}

// Stats returns the contract's distribution counters.
func (c *TokenClient) Stats(ctx context.Context) (domain.TokenStats, error) {
	data, err := tokenABI.Pack("getStats")
	if err != nil {
		return domain.TokenStats{}, fmt.Errorf("evm: pack getStats: %w", err)
	}
	out, err := c.call(ctx, data)
	if err != nil {
		return domain.TokenStats{}, fmt.Errorf("evm: get stats: %w", err)
	}
	vals, err := tokenABI.Unpack("getStats", out)
	if err != nil {
		return domain.TokenStats{}, fmt.Errorf("evm: unpack getStats: %w", err)
	}
	if len(vals) != 5 {
		return domain.TokenStats{}, fmt.Errorf("evm: unpack getStats: got %d values", len(vals))
	}
	scaled := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		raw, ok := v.(*big.Int)
		if !ok {
			return domain.TokenStats{}, fmt.Errorf("evm: unpack getStats: value %d has type %T", i, v)
		}
		scaled[i] = FromBaseUnits(raw, c.decimals)
	}
	return domain.TokenStats{
		TotalSupply:  scaled[0],
		OwnerBalance: scaled[1],
		Distributed:  scaled[2],
		Returned:     scaled[3],
		Net:          scaled[4],
	}, nil
}

// SendToUser calls sendToUser on the contract from the treasury and waits
// for the receipt. Once the transaction is submitted the returned receipt
// carries its hash even when err is non-nil.
func (c *TokenClient) SendToUser(ctx context.Context, to string, amount decimal.Decimal, positionID int64, reason string) (domain.TxReceipt, error) {
	if c.signer == nil {
		return domain.TxReceipt{}, fmt.Errorf("evm: no treasury signer: %w", domain.ErrGatewayNotReady)
	}
	if !common.IsHexAddress(to) {
		return domain.TxReceipt{}, fmt.Errorf("evm: send to %q: %w", to, domain.ErrInvalidAddress)
	}
	units, err := ToBaseUnits(amount, c.decimals)
	if err != nil {
		return domain.TxReceipt{}, err
	}
	if positionID < 0 {
		positionID = 0
	}
	data, err := tokenABI.Pack("sendToUser", common.HexToAddress(to), units, big.NewInt(positionID), reason)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("evm: pack sendToUser: %w", err)
	}

	backend, err := c.client(ctx)
	if err != nil {
		return domain.TxReceipt{}, err
	}

	signed, err := c.submit(ctx, backend, data)
	if err != nil {
		return domain.TxReceipt{}, err
	}
	hash := signed.Hash().Hex()

	rcpt, err := c.waitMined(ctx, backend, signed.Hash())
	if err != nil {
		return domain.TxReceipt{TxHash: hash}, err
	}
	if !rcpt.Success {
		return rcpt, fmt.Errorf("evm: transaction %s reverted in block %d", hash, rcpt.BlockNumber)
	}
	return rcpt, nil
}

func (c *TokenClient) submit(ctx context.Context, backend Backend, data []byte) (*types.Transaction, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	nonce, err := backend.PendingNonceAt(ctx, c.signer.Address())
	if err != nil {
		return nil, fmt.Errorf("evm: pending nonce: %w", err)
	}
	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("evm: suggest gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      c.gasLimit,
		To:       &c.contract,
		Value:    big.NewInt(0),
		Data:     data,
	})
	signed, err := c.signer.SignTx(tx, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("evm: %w", err)
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("evm: send transaction: %w", err)
	}
	return signed, nil
}

func (c *TokenClient) waitMined(ctx context.Context, backend Backend, hash common.Hash) (domain.TxReceipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		r, err := backend.TransactionReceipt(ctx, hash)
		if err == nil && r != nil {
			return toReceipt(r), nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return domain.TxReceipt{}, fmt.Errorf("evm: receipt %s: %w", hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return domain.TxReceipt{}, fmt.Errorf("evm: waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Receipt looks up a mined transaction. A hash the chain does not know
// returns domain.ErrNotFound.
func (c *TokenClient) Receipt(ctx context.Context, txHash string) (domain.TxReceipt, error) {
	if !isTxHash(txHash) {
		return domain.TxReceipt{}, fmt.Errorf("evm: receipt: malformed hash %q", txHash)
	}
	backend, err := c.client(ctx)
	if err != nil {
		return domain.TxReceipt{}, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	r, err := backend.TransactionReceipt(callCtx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) || (err == nil && r == nil) {
		return domain.TxReceipt{}, fmt.Errorf("evm: receipt %s: %w", txHash, domain.ErrNotFound)
	}
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("evm: receipt %s: %w", txHash, err)
	}
	return toReceipt(r), nil
}

// Close releases the RPC connection, if one was opened.
func (c *TokenClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend != nil {
		c.backend.Close()
		c.backend = nil
	}
}

func (c *TokenClient) call(ctx context.Context, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &c.contract, Data: data}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		backend, err := c.client(attemptCtx)
		if err != nil {
			cancel()
			lastErr = err
			if !shouldRetry(ctx, attempt, c.retries) {
				break
			}
			continue
		}
		out, err := backend.CallContract(attemptCtx, msg, nil)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("rpc call failed: %w", err)
			if !shouldRetry(ctx, attempt, c.retries) {
				break
			}
			continue
		}
		return out, nil
	}
	return nil, lastErr
}

func (c *TokenClient) client(ctx context.Context) (Backend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend != nil {
		return c.backend, nil
	}
	b, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("evm: connect rpc: %w", err)
	}
	c.backend = b
	return c.backend, nil
}

func shouldRetry(ctx context.Context, attempt, max int) bool {
	if attempt >= max {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
		return true
	}
}

func toReceipt(r *types.Receipt) domain.TxReceipt {
	out := domain.TxReceipt{
		TxHash:  r.TxHash.Hex(),
		Success: r.Status == types.ReceiptStatusSuccessful,
		GasUsed: r.GasUsed,
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	return out
}

func isTxHash(s string) bool {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

// ToBaseUnits converts a token amount to the contract's integer units,
// truncating any precision beyond decimals.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("evm: amount %s: %w", amount, domain.ErrInvalidAmount)
	}
	return amount.Shift(decimals).Truncate(0).BigInt(), nil
}

// FromBaseUnits converts integer contract units to a token amount.
func FromBaseUnits(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}
