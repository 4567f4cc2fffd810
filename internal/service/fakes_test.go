package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/yieldengine/internal/domain"
)

var errBoom = errors.New("boom")

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ── positions ──

type fakePositions struct {
	mu      sync.Mutex
	active  []domain.Position
	listErr error
	failIDs map[int64]bool
	applied []domain.DistributionUpdate
	byID    map[int64]domain.Position
}

func (f *fakePositions) ListActive(context.Context) ([]domain.Position, error) {
	return f.active, f.listErr
}

func (f *fakePositions) GetByID(_ context.Context, id int64) (domain.Position, error) {
	if p, ok := f.byID[id]; ok {
		return p, nil
	}
	return domain.Position{}, domain.ErrNotFound
}

func (f *fakePositions) ApplyDistribution(_ context.Context, u domain.DistributionUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[u.PositionID] {
		return errBoom
	}
	f.applied = append(f.applied, u)
	return nil
}

// ── pools ──

type fakeRegistry struct {
	pools    []domain.Pool
	err      error
	upserted []domain.Pool
}

func (f *fakeRegistry) ListActive(context.Context) ([]domain.Pool, error) { return f.pools, f.err }

func (f *fakeRegistry) Upsert(_ context.Context, p domain.Pool) error {
	f.upserted = append(f.upserted, p)
	return nil
}

func (f *fakeRegistry) SetActive(_ context.Context, address string, active bool) (domain.Pool, error) {
	for i := range f.pools {
		if f.pools[i].Address == address {
			f.pools[i].Active = active
			return f.pools[i], nil
		}
	}
	return domain.Pool{}, domain.ErrNotFound
}

type fakeSource struct {
	mu    sync.Mutex
	aprs  map[string]decimal.Decimal
	calls int
}

func (f *fakeSource) FetchPool(_ context.Context, network, address string) (domain.PoolSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	apr, ok := f.aprs[address]
	if !ok {
		return domain.PoolSnapshot{}, errBoom
	}
	return domain.PoolSnapshot{Address: address, Network: network, APR: apr, TVL: decimal.NewFromInt(1000)}, nil
}

type fakeSnapshotCache struct {
	mu    sync.Mutex
	snaps map[string]domain.PoolSnapshot
}

func (f *fakeSnapshotCache) Set(_ context.Context, s domain.PoolSnapshot, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snaps == nil {
		f.snaps = map[string]domain.PoolSnapshot{}
	}
	f.snaps[s.Network+":"+s.Address] = s
	return nil
}

func (f *fakeSnapshotCache) Get(_ context.Context, network, address string) (domain.PoolSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.snaps[network+":"+address]; ok {
		return s, nil
	}
	return domain.PoolSnapshot{}, domain.ErrNotFound
}

func (f *fakeSnapshotCache) Invalidate(_ context.Context, network, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.snaps, network+":"+address)
	return nil
}

// ── adjustments ──

type fakeAdjustments struct {
	rows     []domain.DurationAdjustment
	err      error
	upserted []domain.DurationAdjustment
}

func (f *fakeAdjustments) List(context.Context) ([]domain.DurationAdjustment, error) {
	return f.rows, f.err
}

func (f *fakeAdjustments) Upsert(_ context.Context, a domain.DurationAdjustment) error {
	f.upserted = append(f.upserted, a)
	return nil
}

// staticAggregator returns a fixed aggregate.
type staticAggregator struct {
	agg   domain.Aggregate
	err   error
	calls int
}

func (s *staticAggregator) Aggregate(context.Context) (domain.Aggregate, error) {
	s.calls++
	return s.agg, s.err
}

type staticAdjustments struct {
	m        domain.AdjustmentMap
	defaults bool
	err      error
}

func (s staticAdjustments) Load(context.Context) (domain.AdjustmentMap, bool, error) {
	return s.m, s.defaults, s.err
}

// ── rewards ──

type fakeRewards struct {
	mu     sync.Mutex
	sent   []decimal.Decimal
	result domain.TransferResult
}

func (f *fakeRewards) SendToUser(_ context.Context, _ int64, _ string, amount decimal.Decimal, _ domain.TxKind) domain.TransferResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, amount)
	return f.result
}

// ── wbc ──

type fakeConfigStore struct {
	mu     sync.Mutex
	kv     map[string]string
	getErr error
}

func (f *fakeConfigStore) GetAll(context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	out := make(map[string]string, len(f.kv))
	for k, v := range f.kv {
		out[k] = v
	}
	return out, nil
}

func (f *fakeConfigStore) Set(_ context.Context, k, v string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.kv == nil {
		f.kv = map[string]string{}
	}
	f.kv[k] = v
	return nil
}

type fakeTxStore struct {
	mu  sync.Mutex
	txs map[string]domain.WBCTransaction
}

func (f *fakeTxStore) Upsert(_ context.Context, tx domain.WBCTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.txs == nil {
		f.txs = map[string]domain.WBCTransaction{}
	}
	f.txs[tx.TxHash] = tx
	return nil
}

func (f *fakeTxStore) GetByHash(_ context.Context, h string) (domain.WBCTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx, ok := f.txs[h]; ok {
		return tx, nil
	}
	return domain.WBCTransaction{}, domain.ErrNotFound
}

func (f *fakeTxStore) List(context.Context, domain.TxFilter) ([]domain.WBCTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.WBCTransaction, 0, len(f.txs))
	for _, tx := range f.txs {
		out = append(out, tx)
	}
	return out, nil
}

type fakeChain struct {
	mu         sync.Mutex
	treasury   string
	balances   map[string]decimal.Decimal
	balanceErr error
	sendRcpt   domain.TxReceipt
	sendErr    error
	sends      int
	receipts   map[string]domain.TxReceipt
	receiptErr error
	closed     bool
}

func (f *fakeChain) BalanceOf(_ context.Context, wallet string) (decimal.Decimal, error) {
	if f.balanceErr != nil {
		return decimal.Zero, f.balanceErr
	}
	return f.balances[wallet], nil
}

func (f *fakeChain) Stats(context.Context) (domain.TokenStats, error) {
	return domain.TokenStats{TotalSupply: decimal.NewFromInt(1000)}, nil
}

func (f *fakeChain) SendToUser(context.Context, string, decimal.Decimal, int64, string) (domain.TxReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	return f.sendRcpt, f.sendErr
}

func (f *fakeChain) Receipt(_ context.Context, h string) (domain.TxReceipt, error) {
	if f.receiptErr != nil {
		return domain.TxReceipt{}, f.receiptErr
	}
	if r, ok := f.receipts[h]; ok {
		return r, nil
	}
	return domain.TxReceipt{}, domain.ErrNotFound
}

func (f *fakeChain) TreasuryAddress() string { return f.treasury }
func (f *fakeChain) Close()                  { f.closed = true }

type countingPacer struct{ waits int }

func (p *countingPacer) Wait(context.Context) error {
	p.waits++
	return nil
}

// ── locks, clock ──

type fakeLocks struct {
	held     bool
	acquired []string
	released int
}

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	f.acquired = append(f.acquired, key)
	return func() { f.released++ }, nil
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	waits  []time.Duration
	timers []*fakeTimer
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}
