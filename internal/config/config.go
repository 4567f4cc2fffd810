// Package config defines the top-level configuration for the yield engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by YIELDENGINE_* environment variables.
type Config struct {
	Treasury     TreasuryConfig     `toml:"treasury"`
	Chain        ChainConfig        `toml:"chain"`
	Database     DatabaseConfig     `toml:"database"`
	Redis        RedisConfig        `toml:"redis"`
	S3           S3Config           `toml:"s3"`
	Market       MarketConfig       `toml:"market"`
	Distribution DistributionConfig `toml:"distribution"`
	Gating       GatingConfig       `toml:"gating"`
	Server       ServerConfig       `toml:"server"`
	Notify       NotifyConfig       `toml:"notify"`
	Metrics      MetricsConfig      `toml:"metrics"`
	Mode         string             `toml:"mode"`
	LogLevel     string             `toml:"log_level"`
}

// TreasuryConfig holds the signing credential of the treasury wallet that
// sends reward tokens.
type TreasuryConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds the RPC endpoint and transaction parameters for the
// reward token's chain. The contract itself is configured in the database.
type ChainConfig struct {
	RPCURL         string   `toml:"rpc_url"`
	GasLimit       uint64   `toml:"gas_limit"`
	ConfirmTimeout duration `toml:"confirm_timeout"`
	PollInterval   duration `toml:"poll_interval"`
	DialRetries    int      `toml:"dial_retries"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters used to archive
// distribution reports.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// MarketConfig holds the pool market-data source.
type MarketConfig struct {
	DexScreenerHost  string   `toml:"dexscreener_host"`
	FeePct           float64  `toml:"fee_pct"`
	CacheTTL         duration `toml:"cache_ttl"`
	Timeout          duration `toml:"timeout"`
	FetchConcurrency int      `toml:"fetch_concurrency"`
}

// DistributionConfig controls the daily scheduler.
type DistributionConfig struct {
	Enabled        bool     `toml:"enabled"`
	LockTTL        duration `toml:"lock_ttl"`
	SendRewards    bool     `toml:"send_rewards"`
	KeepLineItems  bool     `toml:"keep_line_items"`
	ScheduledActor string   `toml:"scheduled_actor"`
}

// GatingConfig sets how much reward token a withdrawal requires, as a ratio
// of the amount being withdrawn.
type GatingConfig struct {
	CollectFeesRatio   float64 `toml:"collect_fees_ratio"`
	ClosePositionRatio float64 `toml:"close_position_ratio"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:         "https://polygon-rpc.com",
			GasLimit:       200_000,
			ConfirmTimeout: duration{2 * time.Minute},
			PollInterval:   duration{2 * time.Second},
			DialRetries:    3,
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "yieldengine",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "yieldengine-reports",
			Prefix:         "distributions",
			ForcePathStyle: true,
		},
		Market: MarketConfig{
			DexScreenerHost:  "https://api.dexscreener.com",
			FeePct:           0.3,
			CacheTTL:         duration{5 * time.Minute},
			Timeout:          duration{10 * time.Second},
			FetchConcurrency: 4,
		},
		Distribution: DistributionConfig{
			Enabled:        true,
			LockTTL:        duration{30 * time.Minute},
			SendRewards:    true,
			KeepLineItems:  true,
			ScheduledActor: "scheduler",
		},
		Gating: GatingConfig{
			CollectFeesRatio:   1.0,
			ClosePositionRatio: 1.0,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"distribution_completed", "distribution_failed", "wbc_status_changed"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":      true,
	"server":    true,
	"scheduler": true,
	"run":       true,
	"preview":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, server, scheduler, run, preview)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Treasury: the key is optional (without it sends are skipped), but an
	// encrypted key file needs its password.
	if c.Treasury.EncryptedKeyPath != "" && c.Treasury.KeyPassword == "" {
		errs = append(errs, "treasury: key_password is required when encrypted_key_path is set")
	}

	// Chain
	if c.Chain.ConfirmTimeout.Duration <= 0 {
		errs = append(errs, "chain: confirm_timeout must be > 0")
	}
	if c.Chain.PollInterval.Duration <= 0 {
		errs = append(errs, "chain: poll_interval must be > 0")
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Market
	if c.Market.DexScreenerHost == "" {
		errs = append(errs, "market: dexscreener_host must not be empty")
	}
	if c.Market.FeePct < 0 || c.Market.FeePct > 100 {
		errs = append(errs, fmt.Sprintf("market: fee_pct must be 0-100, got %g", c.Market.FeePct))
	}
	if c.Market.FetchConcurrency < 1 {
		errs = append(errs, "market: fetch_concurrency must be >= 1")
	}

	// Distribution
	if c.Distribution.LockTTL.Duration <= 0 {
		errs = append(errs, "distribution: lock_ttl must be > 0")
	}

	// Gating
	if c.Gating.CollectFeesRatio < 0 {
		errs = append(errs, "gating: collect_fees_ratio must be >= 0")
	}
	if c.Gating.ClosePositionRatio < 0 {
		errs = append(errs, "gating: close_position_ratio must be >= 0")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	// Metrics
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, "metrics: path must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
