package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/yieldengine/internal/blob/s3"
	"github.com/alanyoungcy/yieldengine/internal/cache/redis"
	"github.com/alanyoungcy/yieldengine/internal/config"
	"github.com/alanyoungcy/yieldengine/internal/crypto"
	"github.com/alanyoungcy/yieldengine/internal/domain"
	"github.com/alanyoungcy/yieldengine/internal/notify"
	"github.com/alanyoungcy/yieldengine/internal/platform/dexscreener"
	"github.com/alanyoungcy/yieldengine/internal/platform/evm"
	"github.com/alanyoungcy/yieldengine/internal/service"
	"github.com/alanyoungcy/yieldengine/internal/store/postgres"
)

// Dependencies bundles the stores, caches and services that the operating
// modes need. It is constructed by Wire and torn down by the returned cleanup
// function. Optional infrastructure is left nil when disabled.
type Dependencies struct {
	// Stores
	PositionStore   domain.PositionStore
	PoolRegistry    domain.PoolRegistry
	AdjustmentStore domain.AdjustmentStore
	WBCConfigStore  domain.WBCConfigStore
	WBCTxStore      domain.WBCTransactionStore
	RunStore        domain.DistributionRunStore
	AuditStore      domain.AuditStore

	// Caches (Redis)
	PoolCache   domain.PoolSnapshotCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	Archiver domain.RunArchiver

	// Notifications
	Notifier *notify.Notifier

	// Services
	Pools       *service.PoolAggregator
	Adjustments *service.AdjustmentTable
	Gateway     *service.TokenGateway
	Engine      *service.DistributionEngine
	Reporter    *service.RunReporter
	Scheduler   *service.Scheduler
	AprInfo     *service.AprInfo
	Gate        *service.WithdrawalGate

	// Health probes keyed by dependency name.
	Probes map[string]pingFunc
}

// pingFunc adapts a connectivity check to the health handler's Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// schedulesDaily reports whether the mode arms the midnight timer.
func schedulesDaily(mode string) bool {
	switch mode {
	case "full", "scheduler":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Probes: make(map[string]pingFunc)}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.Probes["postgres"] = pgClient.Ping

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.PoolRegistry = postgres.NewPoolStore(pool)
	deps.AdjustmentStore = postgres.NewAdjustmentStore(pool)
	deps.WBCConfigStore = postgres.NewWBCConfigStore(pool)
	deps.WBCTxStore = postgres.NewWBCTransactionStore(pool)
	deps.RunStore = postgres.NewRunStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Probes["redis"] = redisClient.Ping

		deps.PoolCache = redis.NewPoolSnapshotCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	} else {
		logger.WarnContext(ctx, "redis disabled: no cross-process run lock, pool cache or event feed")
	}

	// --- S3 run archive (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Probes["s3"] = s3Client.Health
		deps.Archiver = s3blob.NewRunArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), cfg.S3.Prefix)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Treasury signer (optional) ---
	signer, err := crypto.LoadTxSigner(crypto.KeyConfig{
		RawPrivateKey:    cfg.Treasury.PrivateKey,
		EncryptedKeyPath: cfg.Treasury.EncryptedKeyPath,
		KeyPassword:      cfg.Treasury.KeyPassword,
	})
	var treasury string
	switch {
	case errors.Is(err, crypto.ErrNoKeySource):
		signer = nil
		logger.WarnContext(ctx, "no treasury key configured: reward sends will be skipped")
	case err != nil:
		cleanup()
		return nil, nil, fmt.Errorf("wire: treasury key: %w", err)
	default:
		treasury = signer.Address().Hex()
		logger.InfoContext(ctx, "treasury signer loaded", slog.String("treasury", treasury))
	}

	// --- Services ---
	source := dexscreener.NewClient(cfg.Market.DexScreenerHost, cfg.Market.FeePct, cfg.Market.Timeout.Duration)
	deps.Pools = service.NewPoolAggregator(
		deps.PoolRegistry, source, deps.PoolCache,
		cfg.Market.CacheTTL.Duration, cfg.Market.FetchConcurrency, logger,
	)
	deps.Adjustments = service.NewAdjustmentTable(deps.AdjustmentStore, logger)

	dial := chainDialer(cfg.Chain, signer)
	deps.Gateway = service.NewTokenGateway(
		deps.WBCConfigStore, deps.WBCTxStore, deps.AuditStore,
		dial, service.NewSendPacer(service.SendInterval, nil), treasury, logger,
	)
	closers = append(closers, deps.Gateway.Shutdown)

	deps.Engine = service.NewDistributionEngine(
		deps.Pools, deps.Adjustments, deps.PositionStore, deps.Gateway,
		service.EngineOptions{
			SendRewards:   cfg.Distribution.SendRewards,
			KeepLineItems: cfg.Distribution.KeepLineItems,
		},
		logger,
	)

	// Nil infrastructure must reach the reporter as untyped nil so its
	// nil checks see it.
	var archiver domain.RunArchiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}
	var notifier service.Notifier
	if deps.Notifier.Enabled() {
		notifier = deps.Notifier
	}
	deps.Reporter = service.NewRunReporter(deps.RunStore, deps.AuditStore, archiver, deps.SignalBus, notifier, logger)
	deps.Gateway.OnStateChange(deps.Reporter.GatewayStateChanged)

	deps.Scheduler = service.NewScheduler(
		deps.Engine, deps.LockManager, deps.Reporter, service.SystemClock{},
		service.SchedulerOptions{
			Enabled:        cfg.Distribution.Enabled && schedulesDaily(cfg.Mode),
			LockTTL:        cfg.Distribution.LockTTL.Duration,
			ScheduledActor: cfg.Distribution.ScheduledActor,
		},
		logger,
	)

	deps.AprInfo = service.NewAprInfo(deps.Pools, deps.Adjustments, deps.PositionStore)
	deps.Gate = service.NewWithdrawalGate(
		deps.PositionStore, deps.Gateway,
		service.NewGatingPolicy(cfg.Gating.CollectFeesRatio, cfg.Gating.ClosePositionRatio),
	)

	return deps, cleanup, nil
}

// chainDialer connects the reward token client for the contract named in
// the token configuration.
func chainDialer(chain config.ChainConfig, signer *crypto.TxSigner) service.ChainDialer {
	return func(wbc domain.WBCConfig) (service.TokenChain, error) {
		client, err := evm.NewTokenClient(evm.Options{
			RPCURL:          chain.RPCURL,
			ContractAddress: wbc.ContractAddress,
			ChainID:         wbc.ChainID,
			Decimals:        wbc.Decimals,
			GasLimit:        chain.GasLimit,
			ConfirmTimeout:  chain.ConfirmTimeout.Duration,
			PollInterval:    chain.PollInterval.Duration,
			DialRetries:     chain.DialRetries,
		}, signer)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}
