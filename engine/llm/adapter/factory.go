package llmadapter

import (
	"fmt"

	"github.com/bizradar/bizradar/engine/core"
)

// Factory builds providers from configuration. The provider set is closed:
// unknown names fail fast instead of falling through to a default client.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) CreateProvider(config *core.ProviderConfig) (Provider, error) {
	if config == nil {
		return nil, NewConfigError("", "provider config is required", nil)
	}
	switch config.Provider {
	case core.ProviderOpenAI, core.ProviderAnthropic:
		return NewLangChainProvider(config)
	case core.ProviderMock:
		return NewMockProvider(config, MockOptions{})
	default:
		return nil, NewConfigError(
			config.Provider,
			fmt.Sprintf("unknown provider %q (known: %v)", config.Provider, core.KnownProviders()),
			nil,
		)
	}
}
