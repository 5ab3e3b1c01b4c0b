package llm

import (
	"sync"

	"github.com/bizradar/bizradar/engine/core"
	"github.com/bizradar/bizradar/engine/llm/ratelimit"
	"github.com/bizradar/bizradar/pkg/config"
)

var (
	singletonMu sync.Mutex
	singleton   *Registry
)

// FromAppConfig maps the application configuration onto a registry config.
func FromAppConfig(cfg *config.Config) Config {
	providers := make(map[core.ProviderName]core.ProviderConfig, len(cfg.AI.Providers))
	for name, pc := range cfg.AI.Providers {
		providers[core.ProviderName(name)] = core.ProviderConfig{
			Provider: core.ProviderName(name),
			Model:    pc.Model,
			APIKey:   pc.APIKey,
			APIURL:   pc.BaseURL,
			Timeout:  pc.Timeout,
		}
	}
	return Config{
		DefaultProvider: core.ProviderName(cfg.AI.DefaultProvider),
		Providers:       providers,
		RateLimit: ratelimit.Config{
			RequestsPerMinute: cfg.AI.RateLimit.RequestsPerMinute,
			TokensPerMinute:   cfg.AI.RateLimit.TokensPerMinute,
			Concurrency:       cfg.AI.RateLimit.Concurrency,
		},
		Guardrails: GuardrailsConfig{
			MaxContentLength:  cfg.AI.Guardrails.MaxContentLength,
			AllowedModels:     cfg.AI.Guardrails.AllowedModels,
			AllowedFilters:    cfg.AI.Guardrails.AllowedFilters,
			EnforceJSONSchema: cfg.AI.Guardrails.EnforceJSONSchema,
		},
	}
}

// Init replaces the process-wide registry. Call sites that can take a
// *Registry directly should; the singleton exists for entry points that
// cannot thread one through.
func Init(cfg Config) *Registry {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	singleton = NewRegistry(cfg)
	return singleton
}

// Default returns the process-wide registry, building one from the
// environment on first use.
func Default() (*Registry, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singleton != nil {
		return singleton, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	singleton = NewRegistry(FromAppConfig(cfg))
	return singleton, nil
}

// Reset drops the process-wide registry. Test isolation only.
func Reset() {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	singleton = nil
}
