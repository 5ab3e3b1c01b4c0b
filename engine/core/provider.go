package core

import (
	"errors"
	"time"

	"dario.cat/mergo"
)

// ProviderName identifies a supported model backend. Dispatch is closed over
// this set; unknown names are configuration errors, not runtime fallbacks.
type ProviderName string

const (
	ProviderOpenAI    ProviderName = "openai"
	ProviderAnthropic ProviderName = "anthropic"
	ProviderMock      ProviderName = "mock" // Mock provider for testing
)

func (p ProviderName) String() string {
	return string(p)
}

// KnownProviders lists every provider the factory can construct.
func KnownProviders() []ProviderName {
	return []ProviderName{ProviderOpenAI, ProviderAnthropic, ProviderMock}
}

// ErrMissingAPIKey is returned when a provider is constructed without a
// credential. Always a configuration error, never retryable.
var ErrMissingAPIKey = errors.New("api key is required")

const DefaultProviderTimeout = 30 * time.Second

// ProviderConfig represents provider-specific configuration options
type ProviderConfig struct {
	Provider     ProviderName   `json:"provider"               yaml:"provider"               mapstructure:"provider"`
	Model        string         `json:"model"                  yaml:"model"                  mapstructure:"model"`
	APIKey       string         `json:"api_key"                yaml:"api_key"                mapstructure:"api_key"`
	APIURL       string         `json:"api_url,omitempty"      yaml:"api_url,omitempty"      mapstructure:"api_url"`
	Timeout      time.Duration  `json:"timeout,omitempty"      yaml:"timeout,omitempty"      mapstructure:"timeout"`
	Organization string         `json:"organization,omitempty" yaml:"organization,omitempty" mapstructure:"organization"`
	Options      map[string]any `json:"options,omitempty"      yaml:"options,omitempty"      mapstructure:"options"`
}

func NewProviderConfig(provider ProviderName, model string, apiKey string) *ProviderConfig {
	return &ProviderConfig{
		Provider: provider,
		Model:    model,
		APIKey:   apiKey,
	}
}

// Validate fails fast when the credential is absent.
func (p *ProviderConfig) Validate() error {
	if p.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// EffectiveTimeout returns the configured timeout or the default.
func (p *ProviderConfig) EffectiveTimeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return DefaultProviderTimeout
}

// Merge overlays non-zero fields from other onto p.
func (p *ProviderConfig) Merge(other *ProviderConfig) error {
	if other == nil {
		return nil
	}
	return mergo.Merge(p, other, mergo.WithOverride)
}
