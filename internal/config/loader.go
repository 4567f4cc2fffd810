package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies YIELDENGINE_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known YIELDENGINE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). A few unprefixed names are honoured for deployments that predate
// the prefix; the prefixed name wins when both are set.
func applyEnvOverrides(cfg *Config) {
	// ── Treasury ──
	setStr(&cfg.Treasury.PrivateKey, "DEPLOYER_PRIVATE_KEY") // compatibility alias
	setStr(&cfg.Treasury.PrivateKey, "YIELDENGINE_TREASURY_PRIVATE_KEY")
	setStr(&cfg.Treasury.EncryptedKeyPath, "YIELDENGINE_TREASURY_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Treasury.KeyPassword, "YIELDENGINE_TREASURY_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "POLYGON_RPC_URL") // compatibility alias
	setStr(&cfg.Chain.RPCURL, "YIELDENGINE_CHAIN_RPC_URL")
	setUint64(&cfg.Chain.GasLimit, "YIELDENGINE_CHAIN_GAS_LIMIT")
	setDuration(&cfg.Chain.ConfirmTimeout, "YIELDENGINE_CHAIN_CONFIRM_TIMEOUT")
	setDuration(&cfg.Chain.PollInterval, "YIELDENGINE_CHAIN_POLL_INTERVAL")
	setInt(&cfg.Chain.DialRetries, "YIELDENGINE_CHAIN_DIAL_RETRIES")

	// ── Database ──
	setStr(&cfg.Database.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.DSN, "YIELDENGINE_DATABASE_DSN")
	setStr(&cfg.Database.Host, "YIELDENGINE_DATABASE_HOST")
	setInt(&cfg.Database.Port, "YIELDENGINE_DATABASE_PORT")
	setStr(&cfg.Database.Database, "YIELDENGINE_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "YIELDENGINE_DATABASE_USER")
	setStr(&cfg.Database.Password, "YIELDENGINE_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "YIELDENGINE_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "YIELDENGINE_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "YIELDENGINE_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "YIELDENGINE_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "YIELDENGINE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "YIELDENGINE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "YIELDENGINE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "YIELDENGINE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "YIELDENGINE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "YIELDENGINE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "YIELDENGINE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "YIELDENGINE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "YIELDENGINE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "YIELDENGINE_S3_REGION")
	setStr(&cfg.S3.Bucket, "YIELDENGINE_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "YIELDENGINE_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "YIELDENGINE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "YIELDENGINE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "YIELDENGINE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "YIELDENGINE_S3_FORCE_PATH_STYLE")

	// ── Market ──
	setStr(&cfg.Market.DexScreenerHost, "YIELDENGINE_MARKET_DEXSCREENER_HOST")
	setFloat64(&cfg.Market.FeePct, "YIELDENGINE_MARKET_FEE_PCT")
	setDuration(&cfg.Market.CacheTTL, "YIELDENGINE_MARKET_CACHE_TTL")
	setDuration(&cfg.Market.Timeout, "YIELDENGINE_MARKET_TIMEOUT")
	setInt(&cfg.Market.FetchConcurrency, "YIELDENGINE_MARKET_FETCH_CONCURRENCY")

	// ── Distribution ──
	setBool(&cfg.Distribution.Enabled, "DAILY_APR_DISTRIBUTION_ENABLED") // compatibility alias
	setBool(&cfg.Distribution.Enabled, "YIELDENGINE_DISTRIBUTION_ENABLED")
	setDuration(&cfg.Distribution.LockTTL, "YIELDENGINE_DISTRIBUTION_LOCK_TTL")
	setBool(&cfg.Distribution.SendRewards, "YIELDENGINE_DISTRIBUTION_SEND_REWARDS")
	setBool(&cfg.Distribution.KeepLineItems, "YIELDENGINE_DISTRIBUTION_KEEP_LINE_ITEMS")
	setStr(&cfg.Distribution.ScheduledActor, "YIELDENGINE_DISTRIBUTION_SCHEDULED_ACTOR")

	// ── Gating ──
	setFloat64(&cfg.Gating.CollectFeesRatio, "YIELDENGINE_GATING_COLLECT_FEES_RATIO")
	setFloat64(&cfg.Gating.ClosePositionRatio, "YIELDENGINE_GATING_CLOSE_POSITION_RATIO")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "YIELDENGINE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "YIELDENGINE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "YIELDENGINE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "YIELDENGINE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "YIELDENGINE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "YIELDENGINE_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "YIELDENGINE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "YIELDENGINE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "YIELDENGINE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "YIELDENGINE_NOTIFY_EVENTS")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "YIELDENGINE_METRICS_ENABLED")
	setStr(&cfg.Metrics.Path, "YIELDENGINE_METRICS_PATH")

	// ── Top-level ──
	setStr(&cfg.Mode, "YIELDENGINE_MODE")
	setStr(&cfg.LogLevel, "YIELDENGINE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
