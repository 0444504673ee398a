package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 10, cfg.Scheduler.BatchSize)
	assert.Equal(t, 5, cfg.Scheduler.MaxConcurrent)
	assert.Equal(t, 3, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, 50, cfg.Scheduler.PerfWindow)
	assert.Equal(t, 500*time.Millisecond, cfg.Scheduler.GetBatchDelay())
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.GetRateLimitCooldown())
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.GetBlacklistCooldown())
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigMergesFiles(t *testing.T) {
	dir := t.TempDir()

	base := filepath.Join(dir, "base.toml")
	require.NoError(t, os.WriteFile(base, []byte(`
environment = "staging"

[scheduler]
batch_size = 20
rate_limit_cooldown = "10m"

[providers.tiingo]
api_key = "abc"
priority = 1
rate_limit = 8

[storage]
driver = "surrealdb"
dsn = "ws://localhost:8000/rpc"
namespace = "marketsync"
database = "markets"
`), 0o644))

	override := filepath.Join(dir, "override.toml")
	require.NoError(t, os.WriteFile(override, []byte(`
[scheduler]
batch_size = 5
`), 0o644))

	cfg, err := LoadConfig(base, override, filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, 5, cfg.Scheduler.BatchSize, "later file wins")
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.GetRateLimitCooldown())
	assert.Equal(t, "surrealdb", cfg.Storage.Driver)

	tiingo := cfg.Providers["tiingo"]
	assert.Equal(t, "abc", tiingo.APIKey)
	assert.Equal(t, 8, tiingo.RateLimit)
	assert.Equal(t, 30*time.Second, tiingo.GetTimeout(), "unset timeout falls back")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MARKETSYNC_ENV", "production")
	t.Setenv("MARKETSYNC_STORAGE_DRIVER", "postgres")
	t.Setenv("MARKETSYNC_BATCH_SIZE", "25")
	t.Setenv("MARKETSYNC_TIINGO_API_KEY", "from-env")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, 25, cfg.Scheduler.BatchSize)
	assert.Equal(t, "from-env", cfg.Providers["tiingo"].APIKey)
}

func TestInvalidDurationFallsBackToDefault(t *testing.T) {
	sc := SchedulerConfig{BatchDelay: "soon", RateLimitCooldown: "whenever"}
	assert.Equal(t, 500*time.Millisecond, sc.GetBatchDelay())
	assert.Equal(t, 5*time.Minute, sc.GetRateLimitCooldown())
}
