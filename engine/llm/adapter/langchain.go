package llmadapter

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/bizradar/bizradar/engine/core"
)

// LangChainProvider adapts a langchaingo model to the Provider contract.
type LangChainProvider struct {
	baseProvider
	name  core.ProviderName
	model llms.Model
	// embedClient is non-nil for backends that support embeddings.
	embedClient embeddings.EmbedderClient
}

// NewLangChainProvider constructs an adapter for the given provider config.
// Construction fails fast when the credential is missing.
func NewLangChainProvider(config *core.ProviderConfig) (*LangChainProvider, error) {
	base, err := newBaseProvider(config)
	if err != nil {
		return nil, err
	}
	model, embedClient, err := createModel(config)
	if err != nil {
		return nil, NewConfigError(config.Provider, fmt.Sprintf("failed to create model client: %v", err), err)
	}
	return &LangChainProvider{
		baseProvider: base,
		name:         config.Provider,
		model:        model,
		embedClient:  embedClient,
	}, nil
}

func createModel(config *core.ProviderConfig) (llms.Model, embeddings.EmbedderClient, error) {
	switch config.Provider {
	case core.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(config.APIKey),
		}
		if config.Model != "" {
			opts = append(opts, openai.WithModel(config.Model), openai.WithEmbeddingModel(config.Model))
		}
		if config.APIURL != "" {
			opts = append(opts, openai.WithBaseURL(config.APIURL))
		}
		if config.Organization != "" {
			opts = append(opts, openai.WithOrganization(config.Organization))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	case core.ProviderAnthropic:
		opts := []anthropic.Option{
			anthropic.WithToken(config.APIKey),
		}
		if config.Model != "" {
			opts = append(opts, anthropic.WithModel(config.Model))
		}
		if config.APIURL != "" {
			opts = append(opts, anthropic.WithBaseURL(config.APIURL))
		}
		client, err := anthropic.New(opts...)
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported provider: %s", config.Provider)
	}
}

func (p *LangChainProvider) Name() core.ProviderName {
	return p.name
}

func (p *LangChainProvider) GenerateContent(
	ctx context.Context,
	messages []Message,
	opts *CallOptions,
) (*GenerateResult, error) {
	if err := p.checkAPIKey(); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, p.config.EffectiveTimeout())
	defer cancel()
	resp, err := p.model.GenerateContent(callCtx, convertMessages(messages), buildCallOptions(opts)...)
	if err != nil {
		return nil, err
	}
	return convertResponse(messages, resp)
}

// Stream starts the generation and forwards text fragments on the returned
// channel. The channel is closed when the stream ends; canceling ctx aborts
// the underlying request.
func (p *LangChainProvider) Stream(
	ctx context.Context,
	messages []Message,
	opts *CallOptions,
) (<-chan StreamEvent, error) {
	if err := p.checkAPIKey(); err != nil {
		return nil, err
	}
	events := make(chan StreamEvent)
	callOpts := buildCallOptions(opts)
	callOpts = append(callOpts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		select {
		case events <- StreamEvent{Chunk: string(chunk)}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}))
	go func() {
		defer close(events)
		if _, err := p.model.GenerateContent(ctx, convertMessages(messages), callOpts...); err != nil {
			select {
			case events <- StreamEvent{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return events, nil
}

func (p *LangChainProvider) EmbedText(ctx context.Context, content string) (*EmbedResult, error) {
	if err := p.checkAPIKey(); err != nil {
		return nil, err
	}
	if p.embedClient == nil {
		return nil, NewConfigError(p.name, fmt.Sprintf("provider %q does not support embeddings", p.name), nil)
	}
	embedder, err := embeddings.NewEmbedder(p.embedClient)
	if err != nil {
		return nil, fmt.Errorf("failed to construct embedder: %w", err)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.config.EffectiveTimeout())
	defer cancel()
	vector, err := embedder.EmbedQuery(callCtx, content)
	if err != nil {
		return nil, err
	}
	return &EmbedResult{Embedding: vector, Dimension: len(vector)}, nil
}

func convertMessages(messages []Message) []llms.MessageContent {
	converted := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		converted = append(converted, llms.TextParts(mapMessageRole(msg.Role), msg.Content))
	}
	return converted
}

func mapMessageRole(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func buildCallOptions(opts *CallOptions) []llms.CallOption {
	if opts == nil {
		return nil
	}
	var options []llms.CallOption
	if opts.Temperature > 0 {
		options = append(options, llms.WithTemperature(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		options = append(options, llms.WithMaxTokens(opts.MaxTokens))
	}
	if opts.TopP > 0 {
		options = append(options, llms.WithTopP(opts.TopP))
	}
	if opts.FrequencyPenalty != 0 {
		options = append(options, llms.WithFrequencyPenalty(opts.FrequencyPenalty))
	}
	if opts.PresencePenalty != 0 {
		options = append(options, llms.WithPresencePenalty(opts.PresencePenalty))
	}
	return options
}

func convertResponse(messages []Message, resp *llms.ContentResponse) (*GenerateResult, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from model")
	}
	choice := resp.Choices[0]
	result := &GenerateResult{
		Content:      choice.Content,
		FinishReason: choice.StopReason,
		Usage:        extractUsage(messages, choice),
	}
	return result, nil
}

// extractUsage reads token counts from GenerationInfo when the backend
// reports them, estimating otherwise.
func extractUsage(messages []Message, choice *llms.ContentChoice) Usage {
	usage := Usage{}
	if choice.GenerationInfo != nil {
		usage.PromptTokens = intFromInfo(choice.GenerationInfo, "PromptTokens")
		usage.CompletionTokens = intFromInfo(choice.GenerationInfo, "CompletionTokens")
		usage.TotalTokens = intFromInfo(choice.GenerationInfo, "TotalTokens")
	}
	if usage.TotalTokens == 0 {
		usage.PromptTokens = EstimateTokens(JoinContents(messages))
		usage.CompletionTokens = EstimateTokens(choice.Content)
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return usage
}

func intFromInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
