package config

import (
	"fmt"
	"time"

	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config is the application configuration, loaded from defaults and
// environment variables.
type Config struct {
	AI       AIConfig       `koanf:"ai"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Worker   WorkerConfig   `koanf:"worker"`
	Log      LogConfig      `koanf:"log"`
}

// AIConfig configures the provider registry.
type AIConfig struct {
	DefaultProvider string                    `koanf:"default_provider"`
	Providers       map[string]ProviderConfig `koanf:"providers"`
	RateLimit       RateLimitConfig           `koanf:"rate_limit"`
	Guardrails      GuardrailsConfig          `koanf:"guardrails"`
}

// ProviderConfig holds per-provider credentials and defaults.
type ProviderConfig struct {
	APIKey  string        `koanf:"api_key"`
	Model   string        `koanf:"model"`
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `koanf:"requests_per_minute"`
	TokensPerMinute   int `koanf:"tokens_per_minute"`
	Concurrency       int `koanf:"concurrency"`
}

type GuardrailsConfig struct {
	MaxContentLength  int      `koanf:"max_content_length"`
	AllowedModels     []string `koanf:"allowed_models"`
	AllowedFilters    []string `koanf:"allowed_filters"`
	EnforceJSONSchema bool     `koanf:"enforce_json_schema"`
}

type DatabaseConfig struct {
	DSN string `koanf:"dsn"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type WorkerConfig struct {
	Concurrency    int           `koanf:"concurrency"`
	MaxRetries     int           `koanf:"max_retries"`
	BackoffBase    time.Duration `koanf:"backoff_base"`
	BackfillBatch  int           `koanf:"backfill_batch"`
	DequeueTimeout time.Duration `koanf:"dequeue_timeout"`
}

type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

func Default() *Config {
	return &Config{
		AI: AIConfig{
			DefaultProvider: "openai",
			Providers:       map[string]ProviderConfig{},
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 100,
				TokensPerMinute:   90000,
				Concurrency:       10,
			},
			Guardrails: GuardrailsConfig{
				MaxContentLength:  1000000,
				EnforceJSONSchema: true,
			},
		},
		Database: DatabaseConfig{
			DSN: "postgres://localhost:5432/bizradar?sslmode=disable",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Worker: WorkerConfig{
			Concurrency:    5,
			MaxRetries:     3,
			BackoffBase:    time.Second,
			BackfillBatch:  100,
			DequeueTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// envMappings routes well-known environment variables into config paths.
// Provider keys keep their conventional names (OPENAI_API_KEY etc.).
var envMappings = map[string]string{
	"AI_PROVIDER":           "ai.default_provider",
	"OPENAI_API_KEY":        "ai.providers.openai.api_key",
	"OPENAI_MODEL":          "ai.providers.openai.model",
	"OPENAI_BASE_URL":       "ai.providers.openai.base_url",
	"ANTHROPIC_API_KEY":     "ai.providers.anthropic.api_key",
	"ANTHROPIC_MODEL":       "ai.providers.anthropic.model",
	"ANTHROPIC_BASE_URL":    "ai.providers.anthropic.base_url",
	"AI_RATE_LIMIT_RPM":     "ai.rate_limit.requests_per_minute",
	"AI_RATE_LIMIT_TPM":     "ai.rate_limit.tokens_per_minute",
	"AI_RATE_LIMIT_CONC":    "ai.rate_limit.concurrency",
	"AI_MAX_CONTENT_LENGTH": "ai.guardrails.max_content_length",
	"DATABASE_URL":          "database.dsn",
	"REDIS_ADDR":            "redis.addr",
	"REDIS_PASSWORD":        "redis.password",
	"WORKER_CONCURRENCY":    "worker.concurrency",
	"WORKER_MAX_RETRIES":    "worker.max_retries",
	"BACKFILL_BATCH_SIZE":   "worker.backfill_batch",
	"LOG_LEVEL":             "log.level",
	"LOG_JSON":              "log.json",
}

// Load builds the configuration from defaults overlaid with environment
// variables.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load config defaults: %w", err)
	}
	envProvider := env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			path, ok := envMappings[key]
			if !ok {
				return "", nil
			}
			return path, value
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot produce a working registry.
func (c *Config) Validate() error {
	if c.AI.DefaultProvider == "" {
		return fmt.Errorf("ai.default_provider must not be empty")
	}
	if c.AI.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("ai.rate_limit.requests_per_minute must be positive")
	}
	if c.AI.RateLimit.TokensPerMinute <= 0 {
		return fmt.Errorf("ai.rate_limit.tokens_per_minute must be positive")
	}
	if c.AI.RateLimit.Concurrency <= 0 {
		return fmt.Errorf("ai.rate_limit.concurrency must be positive")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be positive")
	}
	if c.Worker.MaxRetries < 0 {
		return fmt.Errorf("worker.max_retries must not be negative")
	}
	return nil
}
