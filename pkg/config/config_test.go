package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizradar/bizradar/pkg/config"
)

func TestLoad(t *testing.T) {
	t.Run("Should load defaults without environment overrides", func(t *testing.T) {
		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, "openai", cfg.AI.DefaultProvider)
		assert.Equal(t, 100, cfg.AI.RateLimit.RequestsPerMinute)
		assert.Equal(t, 90000, cfg.AI.RateLimit.TokensPerMinute)
		assert.Equal(t, 5, cfg.Worker.Concurrency)
		assert.Equal(t, 3, cfg.Worker.MaxRetries)
		assert.Equal(t, time.Second, cfg.Worker.BackoffBase)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
		assert.Equal(t, "info", cfg.Log.Level)
	})
	t.Run("Should overlay environment variables onto defaults", func(t *testing.T) {
		t.Setenv("AI_PROVIDER", "anthropic")
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
		t.Setenv("DATABASE_URL", "postgres://db.internal:5432/radar")
		t.Setenv("WORKER_CONCURRENCY", "12")
		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, "anthropic", cfg.AI.DefaultProvider)
		assert.Equal(t, "sk-ant-test", cfg.AI.Providers["anthropic"].APIKey)
		assert.Equal(t, "postgres://db.internal:5432/radar", cfg.Database.DSN)
		assert.Equal(t, 12, cfg.Worker.Concurrency)
	})
	t.Run("Should ignore unmapped environment variables", func(t *testing.T) {
		t.Setenv("SOME_UNRELATED_VAR", "value")
		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, "openai", cfg.AI.DefaultProvider)
	})
	t.Run("Should reject invalid worker concurrency", func(t *testing.T) {
		t.Setenv("WORKER_CONCURRENCY", "0")
		_, err := config.Load()
		assert.ErrorContains(t, err, "worker.concurrency must be positive")
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Run("Should accept default configuration", func(t *testing.T) {
		assert.NoError(t, config.Default().Validate())
	})
	t.Run("Should reject empty default provider", func(t *testing.T) {
		cfg := config.Default()
		cfg.AI.DefaultProvider = ""
		assert.ErrorContains(t, cfg.Validate(), "ai.default_provider")
	})
	t.Run("Should reject non-positive rate limits", func(t *testing.T) {
		cfg := config.Default()
		cfg.AI.RateLimit.TokensPerMinute = 0
		assert.ErrorContains(t, cfg.Validate(), "tokens_per_minute")
	})
	t.Run("Should reject negative max retries", func(t *testing.T) {
		cfg := config.Default()
		cfg.Worker.MaxRetries = -1
		assert.ErrorContains(t, cfg.Validate(), "max_retries")
	})
}
