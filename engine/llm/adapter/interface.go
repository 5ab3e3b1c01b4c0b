package llmadapter

import (
	"context"
	"strings"

	"github.com/bizradar/bizradar/engine/core"
)

// Role constants for conversation messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CallOptions tune a single generate or stream call.
type CallOptions struct {
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerateResult is the provider-independent response shape.
type GenerateResult struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// EmbedResult carries one embedding vector and its dimension.
type EmbedResult struct {
	Embedding []float32 `json:"embedding"`
	Dimension int       `json:"dimension"`
}

// StreamEvent is one element of a streamed response. Err is non-nil on the
// terminal event of a failed stream.
type StreamEvent struct {
	Chunk string
	Err   error
}

// Provider is the capability contract every model backend implements.
// Stream returns a finite, single-pass channel; the producer stops when the
// caller cancels ctx, so abandoning iteration never leaks the request.
type Provider interface {
	Name() core.ProviderName
	Model() string
	GenerateContent(ctx context.Context, messages []Message, opts *CallOptions) (*GenerateResult, error)
	Stream(ctx context.Context, messages []Message, opts *CallOptions) (<-chan StreamEvent, error)
	EmbedText(ctx context.Context, content string) (*EmbedResult, error)
	ValidateSchema(data map[string]any, schema map[string]any) bool
	Sanitize(content string) string
}

// Content limits applied by Sanitize. The larger limit applies once a model
// is configured, mirroring provider-specific context sizes.
const (
	sanitizeMaxLength        = 10000
	sanitizeMaxLengthModeled = 50000
)

// baseProvider carries the config-derived behavior shared by all adapters.
type baseProvider struct {
	config core.ProviderConfig
}

func newBaseProvider(config *core.ProviderConfig) (baseProvider, error) {
	if config == nil {
		return baseProvider{}, NewConfigError("", "provider config must not be nil", nil)
	}
	if err := config.Validate(); err != nil {
		return baseProvider{}, NewConfigError(config.Provider, "provider requires an api key", err)
	}
	return baseProvider{config: *config}, nil
}

func (b *baseProvider) Model() string {
	if b.config.Model == "" {
		return "default"
	}
	return b.config.Model
}

// checkAPIKey guards generate/stream against running without a credential.
func (b *baseProvider) checkAPIKey() error {
	if b.config.APIKey == "" {
		return NewConfigError(b.config.Provider, "api key not configured", core.ErrMissingAPIKey)
	}
	return nil
}

// ValidateSchema is structural: every schema key must be present in data.
func (b *baseProvider) ValidateSchema(data map[string]any, schema map[string]any) bool {
	if data == nil {
		return false
	}
	for key := range schema {
		if _, ok := data[key]; !ok {
			return false
		}
	}
	return true
}

// Sanitize trims, collapses whitespace runs, and truncates to the provider's
// maximum content length.
func (b *baseProvider) Sanitize(content string) string {
	collapsed := strings.Join(strings.Fields(content), " ")
	limit := sanitizeMaxLength
	if b.config.Model != "" {
		limit = sanitizeMaxLengthModeled
	}
	if len(collapsed) > limit {
		return collapsed[:limit]
	}
	return collapsed
}

// JoinContents flattens a conversation for guardrail checks.
func JoinContents(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n")
}
