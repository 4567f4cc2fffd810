package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/yieldengine/internal/domain"
	"github.com/alanyoungcy/yieldengine/internal/metrics"
)

// PoolSource fetches live market data for one pool.
type PoolSource interface {
	FetchPool(ctx context.Context, network, address string) (domain.PoolSnapshot, error)
}

// defaultPoolNetwork is assumed for pools registered without a network.
const defaultPoolNetwork = "polygon"

// PoolAggregator averages the APR of every active pool in the registry.
type PoolAggregator struct {
	registry    domain.PoolRegistry
	source      PoolSource
	cache       domain.PoolSnapshotCache
	cacheTTL    time.Duration
	concurrency int
	logger      *slog.Logger
}

// NewPoolAggregator creates a PoolAggregator. cache may be nil.
func NewPoolAggregator(
	registry domain.PoolRegistry,
	source PoolSource,
	cache domain.PoolSnapshotCache,
	cacheTTL time.Duration,
	concurrency int,
	logger *slog.Logger,
) *PoolAggregator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &PoolAggregator{
		registry:    registry,
		source:      source,
		cache:       cache,
		cacheTTL:    cacheTTL,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "pool_aggregator")),
	}
}

// Aggregate fetches every active pool and averages their APRs. A pool whose
// fetch fails contributes zero APR and zero TVL. Only a registry failure is
// returned as an error; an empty registry gives an empty Aggregate.
func (a *PoolAggregator) Aggregate(ctx context.Context) (domain.Aggregate, error) {
	pools, err := a.registry.ListActive(ctx)
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("pool_aggregator: list pools: %w", err)
	}
	if len(pools) == 0 {
		a.logger.WarnContext(ctx, "no active pools registered")
		return domain.Aggregate{AverageAPR: decimal.Zero, Pools: []domain.PoolYield{}}, nil
	}

	yields := make([]domain.PoolYield, len(pools))
	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, p := range pools {
		g.Go(func() error {
			yields[i] = a.poolYield(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	aprs := make([]decimal.Decimal, len(yields))
	for i, y := range yields {
		aprs[i] = y.APR
	}
	avg := domain.AverageAPR(aprs)

	a.logger.InfoContext(ctx, "pools aggregated",
		slog.Int("pools", len(yields)),
		slog.String("average_apr", avg.String()),
	)
	return domain.Aggregate{AverageAPR: avg, Pools: yields}, nil
}

func (a *PoolAggregator) poolYield(ctx context.Context, p domain.Pool) domain.PoolYield {
	y := domain.PoolYield{
		Name:    p.Name,
		Address: p.Address,
		Network: p.Network,
		APR:     decimal.Zero,
		TVL:     decimal.Zero,
	}
	if y.Name == "" {
		y.Name = p.Address
	}

	snap, err := a.snapshot(ctx, p)
	if err != nil {
		metrics.PoolFetchFailures.Inc()
		a.logger.WarnContext(ctx, "pool fetch failed, assuming zero yield",
			slog.String("pool", p.Address),
			slog.String("network", p.Network),
			slog.String("error", err.Error()),
		)
		y.Error = err.Error()
		return y
	}
	y.APR = snap.APR
	y.TVL = snap.TVL
	return y
}

func (a *PoolAggregator) snapshot(ctx context.Context, p domain.Pool) (domain.PoolSnapshot, error) {
	if a.cache != nil {
		snap, err := a.cache.Get(ctx, p.Network, p.Address)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			a.logger.DebugContext(ctx, "pool cache read failed",
				slog.String("pool", p.Address),
				slog.String("error", err.Error()),
			)
		}
	}

	snap, err := a.source.FetchPool(ctx, p.Network, p.Address)
	if err != nil {
		return domain.PoolSnapshot{}, err
	}
	// Cache under the registry's identity so Get and Invalidate find it.
	snap.Network, snap.Address = p.Network, p.Address

	if a.cache != nil && a.cacheTTL > 0 {
		if err := a.cache.Set(ctx, snap, a.cacheTTL); err != nil {
			a.logger.DebugContext(ctx, "pool cache write failed",
				slog.String("pool", p.Address),
				slog.String("error", err.Error()),
			)
		}
	}
	return snap, nil
}

// RegisterPool adds a pool to the registry, or refreshes its name and
// network. New pools start active unless p says otherwise.
func (a *PoolAggregator) RegisterPool(ctx context.Context, p domain.Pool) (domain.Pool, error) {
	p.Address = strings.ToLower(strings.TrimSpace(p.Address))
	if !common.IsHexAddress(p.Address) {
		return domain.Pool{}, fmt.Errorf("pool_aggregator: %w: %q", domain.ErrInvalidAddress, p.Address)
	}
	p.Network = strings.ToLower(strings.TrimSpace(p.Network))
	if p.Network == "" {
		p.Network = defaultPoolNetwork
	}
	if err := a.registry.Upsert(ctx, p); err != nil {
		return domain.Pool{}, fmt.Errorf("pool_aggregator: register %s: %w", p.Address, err)
	}
	a.logger.InfoContext(ctx, "pool registered",
		slog.String("pool", p.Address),
		slog.String("network", p.Network),
		slog.Bool("active", p.Active),
	)
	return p, nil
}

// SetPoolActive includes or excludes a pool from aggregation and drops its
// cached snapshot.
func (a *PoolAggregator) SetPoolActive(ctx context.Context, address string, active bool) (domain.Pool, error) {
	p, err := a.registry.SetActive(ctx, strings.TrimSpace(address), active)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("pool_aggregator: set %s active: %w", address, err)
	}
	if a.cache != nil {
		if err := a.cache.Invalidate(ctx, p.Network, p.Address); err != nil {
			a.logger.DebugContext(ctx, "pool cache invalidate failed",
				slog.String("pool", p.Address),
				slog.String("error", err.Error()),
			)
		}
	}
	a.logger.InfoContext(ctx, "pool toggled",
		slog.String("pool", p.Address),
		slog.Bool("active", active),
	)
	return p, nil
}
