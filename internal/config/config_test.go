package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Distribution.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Market.CacheTTL.Duration)
	assert.Equal(t, 1.0, cfg.Gating.CollectFeesRatio)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Treasury.EncryptedKeyPath = "/keys/treasury.enc"
	cfg.Market.FetchConcurrency = 0

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, `unknown log_level "loud"`)
	assert.Contains(t, msg, "key_password is required")
	assert.Contains(t, msg, "fetch_concurrency")
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "server"

[market]
cache_ttl = "90s"

[gating]
close_position_ratio = 0.5
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("YIELDENGINE_SERVER_PORT", "9090")
	t.Setenv("DAILY_APR_DISTRIBUTION_ENABLED", "false")
	t.Setenv("POLYGON_RPC_URL", "https://rpc.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, 90*time.Second, cfg.Market.CacheTTL.Duration)
	assert.Equal(t, 0.5, cfg.Gating.ClosePositionRatio)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.Distribution.Enabled)
	assert.Equal(t, "https://rpc.example", cfg.Chain.RPCURL)
}

func TestPrefixedEnvWinsOverAlias(t *testing.T) {
	t.Setenv("DAILY_APR_DISTRIBUTION_ENABLED", "false")
	t.Setenv("YIELDENGINE_DISTRIBUTION_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Distribution.Enabled)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Treasury.PrivateKey = "deadbeef"
	cfg.Database.Password = "pw"
	cfg.Server.APIKey = "k"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Treasury.PrivateKey)
	assert.Equal(t, "***", out.Database.Password)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Empty(t, out.Redis.Password)
	assert.Equal(t, "deadbeef", cfg.Treasury.PrivateKey)

	out.Server.CORSOrigins[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Server.CORSOrigins[0])
}
