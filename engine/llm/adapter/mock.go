package llmadapter

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bizradar/bizradar/engine/core"
)

// MockOptions configure failure injection and canned responses for tests.
type MockOptions struct {
	Delay            time.Duration
	ShouldFail       bool
	FailureMessage   string
	ResponseOverride string
	// EmbeddingDimension sets the size of deterministic mock vectors.
	EmbeddingDimension int
	// EmbeddingOverride wins over the derived vector when non-nil.
	EmbeddingOverride []float32
}

// MockProvider is an in-process Provider used in tests and local runs.
type MockProvider struct {
	baseProvider
	options MockOptions
}

const defaultMockDimension = 8

func NewMockProvider(config *core.ProviderConfig, options MockOptions) (*MockProvider, error) {
	cfg := core.ProviderConfig{
		Provider: core.ProviderMock,
		Model:    "mock-model",
		APIKey:   "mock-key",
	}
	if config != nil {
		if err := cfg.Merge(config); err != nil {
			return nil, err
		}
		cfg.Provider = core.ProviderMock
	}
	base, err := newBaseProvider(&cfg)
	if err != nil {
		return nil, err
	}
	return &MockProvider{baseProvider: base, options: options}, nil
}

func (p *MockProvider) Name() core.ProviderName {
	return core.ProviderMock
}

func (p *MockProvider) GenerateContent(
	ctx context.Context,
	messages []Message,
	_ *CallOptions,
) (*GenerateResult, error) {
	if err := p.simulateDelay(ctx); err != nil {
		return nil, err
	}
	if p.options.ShouldFail {
		return nil, errors.New(p.failureMessage("Mock provider failed"))
	}
	response := p.options.ResponseOverride
	if response == "" {
		response = mockResponse(messages)
	}
	prompt := EstimateTokens(JoinContents(messages))
	completion := EstimateTokens(response)
	return &GenerateResult{
		Content:      response,
		FinishReason: "stop",
		Usage: Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}, nil
}

func (p *MockProvider) Stream(
	ctx context.Context,
	messages []Message,
	_ *CallOptions,
) (<-chan StreamEvent, error) {
	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		if err := p.simulateDelay(ctx); err != nil {
			events <- StreamEvent{Err: err}
			return
		}
		if p.options.ShouldFail {
			events <- StreamEvent{Err: errors.New(p.failureMessage("Mock provider stream failed"))}
			return
		}
		response := p.options.ResponseOverride
		if response == "" {
			response = mockResponse(messages)
		}
		for _, word := range strings.SplitAfter(response, " ") {
			select {
			case events <- StreamEvent{Chunk: word}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

// EmbedText returns a deterministic unit-length vector derived from the
// content so equal inputs embed identically across calls.
func (p *MockProvider) EmbedText(ctx context.Context, content string) (*EmbedResult, error) {
	if err := p.simulateDelay(ctx); err != nil {
		return nil, err
	}
	if p.options.ShouldFail {
		return nil, errors.New(p.failureMessage("Mock provider embedding failed"))
	}
	if p.options.EmbeddingOverride != nil {
		vec := make([]float32, len(p.options.EmbeddingOverride))
		copy(vec, p.options.EmbeddingOverride)
		return &EmbedResult{Embedding: vec, Dimension: len(vec)}, nil
	}
	dimension := p.options.EmbeddingDimension
	if dimension <= 0 {
		dimension = defaultMockDimension
	}
	sum := sha256.Sum256([]byte(content))
	vec := make([]float32, dimension)
	for i := range vec {
		vec[i] = float32(sum[i%len(sum)])/255.0 - 0.5
	}
	return &EmbedResult{Embedding: vec, Dimension: dimension}, nil
}

func (p *MockProvider) failureMessage(fallback string) string {
	if p.options.FailureMessage != "" {
		return p.options.FailureMessage
	}
	return fallback
}

func (p *MockProvider) simulateDelay(ctx context.Context) error {
	if p.options.Delay <= 0 {
		return nil
	}
	timer := time.NewTimer(p.options.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// mockResponse picks a canned reply keyed off the last message's intent.
func mockResponse(messages []Message) string {
	if len(messages) == 0 {
		return "Mock response with no input"
	}
	last := messages[len(messages)-1]
	content := strings.ToLower(last.Content)
	switch {
	case strings.Contains(content, "classify") || strings.Contains(content, "category"):
		return "Category A"
	case strings.Contains(content, "summarize") || strings.Contains(content, "summary"):
		return "This is a brief summary of the provided text."
	case strings.Contains(content, "extract") || strings.Contains(content, "information"):
		return "Extracted information: Key details found in the text."
	case strings.Contains(content, "generate") || strings.Contains(content, "create"):
		return "Generated content as requested."
	case strings.Contains(content, "json"):
		return `{"result": "success", "data": "mock data"}`
	}
	preview := last.Content
	if len(preview) > 50 {
		preview = preview[:50]
	}
	return fmt.Sprintf("Mock response to: %q", preview)
}
