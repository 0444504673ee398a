// Package common provides shared utilities for marketsync
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for marketsync
type Config struct {
	Environment string                    `toml:"environment"`
	Scheduler   SchedulerConfig           `toml:"scheduler"`
	Providers   map[string]ProviderConfig `toml:"providers"`
	Storage     StorageConfig             `toml:"storage"`
	Logging     LoggingConfig             `toml:"logging"`
}

// SchedulerConfig holds tuning knobs for fetch jobs and the fallback manager.
type SchedulerConfig struct {
	BatchSize         int               `toml:"batch_size"`          // entities per fetch batch
	BatchDelay        string            `toml:"batch_delay"`         // pause between batches
	MaxConcurrent     int               `toml:"max_concurrent"`      // in-flight provider calls
	RateLimitCooldown string            `toml:"rate_limit_cooldown"` // provider cooldown after a 429
	BlacklistCooldown string            `toml:"blacklist_cooldown"`  // extended cooldown for subscription errors
	MaxAttempts       int               `toml:"max_attempts"`        // retry ceiling per entity per data type
	PerfWindow        int               `toml:"perf_window"`         // rolling attempts per provider stats window
	FetchModes        map[string]string `toml:"fetch_modes"`         // data type -> "fallback" | "sweep"
	QualityScores     map[string]int    `toml:"quality_scores"`      // provider -> conflict-resolution score override
}

// GetBatchDelay parses and returns the inter-batch delay
func (c *SchedulerConfig) GetBatchDelay() time.Duration {
	d, err := time.ParseDuration(c.BatchDelay)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// GetRateLimitCooldown parses and returns the rate-limit cooldown
func (c *SchedulerConfig) GetRateLimitCooldown() time.Duration {
	d, err := time.ParseDuration(c.RateLimitCooldown)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// GetBlacklistCooldown parses and returns the blacklist cooldown
func (c *SchedulerConfig) GetBlacklistCooldown() time.Duration {
	d, err := time.ParseDuration(c.BlacklistCooldown)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// ProviderConfig holds per-provider settings
type ProviderConfig struct {
	APIKey    string `toml:"api_key"`
	Priority  int    `toml:"priority"`   // lower = tried first in the fallback chain
	RateLimit int    `toml:"rate_limit"` // requests per second
	Burst     int    `toml:"burst"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the per-call timeout
func (c *ProviderConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// StorageConfig selects and configures the storage gateway backend.
type StorageConfig struct {
	Driver string `toml:"driver"` // "memory", "postgres", "surrealdb"
	DSN    string `toml:"dsn"`
	// SurrealDB-specific settings, unused by other drivers
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Scheduler: SchedulerConfig{
			BatchSize:         10,
			BatchDelay:        "500ms",
			MaxConcurrent:     5,
			RateLimitCooldown: "5m",
			BlacklistCooldown: "24h",
			MaxAttempts:       3,
			PerfWindow:        50,
		},
		Providers: map[string]ProviderConfig{},
		Storage: StorageConfig{
			Driver: "memory",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// Later files override earlier ones; missing files are skipped.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("MARKETSYNC_ENV"); env != "" {
		config.Environment = env
	}

	if level := os.Getenv("MARKETSYNC_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if driver := os.Getenv("MARKETSYNC_STORAGE_DRIVER"); driver != "" {
		config.Storage.Driver = driver
	}

	if dsn := os.Getenv("MARKETSYNC_STORAGE_DSN"); dsn != "" {
		config.Storage.DSN = dsn
	}

	if v := os.Getenv("MARKETSYNC_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Scheduler.BatchSize = n
		}
	}

	if v := os.Getenv("MARKETSYNC_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Scheduler.MaxConcurrent = n
		}
	}

	if v := os.Getenv("MARKETSYNC_RATE_LIMIT_COOLDOWN"); v != "" {
		config.Scheduler.RateLimitCooldown = v
	}

	if v := os.Getenv("MARKETSYNC_BLACKLIST_COOLDOWN"); v != "" {
		config.Scheduler.BlacklistCooldown = v
	}

	// MARKETSYNC_<PROVIDER>_API_KEY overrides (or introduces) a provider key
	for _, name := range []string{"alphavantage", "tiingo", "polygon", "fmp", "finnhub"} {
		envKey := "MARKETSYNC_" + strings.ToUpper(name) + "_API_KEY"
		if v := os.Getenv(envKey); v != "" {
			pc := config.Providers[name]
			pc.APIKey = v
			config.Providers[name] = pc
		}
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
