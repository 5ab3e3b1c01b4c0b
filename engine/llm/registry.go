package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bizradar/bizradar/engine/core"
	llmadapter "github.com/bizradar/bizradar/engine/llm/adapter"
	"github.com/bizradar/bizradar/engine/llm/ratelimit"
)

// Config assembles everything the registry needs to serve calls.
type Config struct {
	DefaultProvider core.ProviderName
	Providers       map[core.ProviderName]core.ProviderConfig
	RateLimit       ratelimit.Config
	Guardrails      GuardrailsConfig
}

// RequestOptions select the provider and tune the underlying call. A zero
// Provider falls back to the registry default.
type RequestOptions struct {
	Provider core.ProviderName
	Call     *llmadapter.CallOptions
}

func (o *RequestOptions) provider(fallback core.ProviderName) core.ProviderName {
	if o != nil && o.Provider != "" {
		return o.Provider
	}
	return fallback
}

func (o *RequestOptions) call() *llmadapter.CallOptions {
	if o == nil {
		return nil
	}
	return o.Call
}

// Registry routes calls to providers behind shared guardrails, rate
// limiting, and tracing. Providers are constructed lazily and memoized per
// name.
type Registry struct {
	config     Config
	factory    *llmadapter.Factory
	limiter    *ratelimit.Limiter
	guardrails *Guardrails
	tracing    *TracingManager
	normalizer *llmadapter.Normalizer

	mu        sync.Mutex
	providers map[core.ProviderName]llmadapter.Provider
}

func NewRegistry(config Config) *Registry {
	if config.DefaultProvider == "" {
		config.DefaultProvider = core.ProviderOpenAI
	}
	return &Registry{
		config:     config,
		factory:    llmadapter.NewFactory(),
		limiter:    ratelimit.New(config.RateLimit),
		guardrails: NewGuardrails(config.Guardrails),
		tracing:    NewTracingManager(),
		normalizer: llmadapter.NewNormalizer(nil),
		providers:  make(map[core.ProviderName]llmadapter.Provider),
	}
}

// Provider returns the cached provider for name, constructing it on first
// use. An empty name selects the registry default.
func (r *Registry) Provider(name core.ProviderName) (llmadapter.Provider, error) {
	if name == "" {
		name = r.config.DefaultProvider
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if provider, ok := r.providers[name]; ok {
		return provider, nil
	}
	providerConfig, ok := r.config.Providers[name]
	if !ok {
		return nil, llmadapter.NewConfigError(name, fmt.Sprintf("provider %q not configured", name), nil)
	}
	providerConfig.Provider = name
	provider, err := r.factory.CreateProvider(&providerConfig)
	if err != nil {
		return nil, err
	}
	r.providers[name] = provider
	return provider, nil
}

// RegisterProvider installs a pre-built provider, replacing any cached one.
func (r *Registry) RegisterProvider(name core.ProviderName, provider llmadapter.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = provider
}

// ListProviders reports the names of providers constructed so far.
func (r *Registry) ListProviders() []core.ProviderName {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]core.ProviderName, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Generate runs the full call pipeline: trace start, guardrails, rate limit,
// provider call, trace end. Failures are normalized exactly once.
func (r *Registry) Generate(
	ctx context.Context,
	messages []llmadapter.Message,
	opts *RequestOptions,
) (*llmadapter.GenerateResult, error) {
	provider, err := r.Provider(opts.provider(r.config.DefaultProvider))
	if err != nil {
		return nil, err
	}
	trace := r.tracing.CreateContext(provider.Name(), "generate", nil)
	r.tracing.OnRequestStart(trace)

	result, err := func() (*llmadapter.GenerateResult, error) {
		content := llmadapter.JoinContents(messages)
		if err := r.checkContent(provider.Name(), content); err != nil {
			return nil, err
		}
		if err := r.acquire(ctx, provider.Name(), content); err != nil {
			return nil, err
		}
		return provider.GenerateContent(ctx, messages, opts.call())
	}()
	if err != nil {
		normalized := r.normalizer.Normalize(err, provider.Name())
		r.tracing.OnRequestError(trace, normalized)
		return nil, normalized
	}
	r.tracing.OnRequestEnd(trace, result)
	return result, nil
}

// Stream starts a streamed generation. Chunks are re-emitted through the
// tracing manager; the stream ends with a traced completion or a terminal
// normalized error event.
func (r *Registry) Stream(
	ctx context.Context,
	messages []llmadapter.Message,
	opts *RequestOptions,
) (<-chan llmadapter.StreamEvent, error) {
	provider, err := r.Provider(opts.provider(r.config.DefaultProvider))
	if err != nil {
		return nil, err
	}
	trace := r.tracing.CreateContext(provider.Name(), "stream", nil)
	r.tracing.OnRequestStart(trace)

	events, err := func() (<-chan llmadapter.StreamEvent, error) {
		content := llmadapter.JoinContents(messages)
		if err := r.checkContent(provider.Name(), content); err != nil {
			return nil, err
		}
		if err := r.acquire(ctx, provider.Name(), content); err != nil {
			return nil, err
		}
		return provider.Stream(ctx, messages, opts.call())
	}()
	if err != nil {
		normalized := r.normalizer.Normalize(err, provider.Name())
		r.tracing.OnRequestError(trace, normalized)
		return nil, normalized
	}

	out := make(chan llmadapter.StreamEvent)
	go func() {
		defer close(out)
		failed := false
		for event := range events {
			if event.Err != nil {
				normalized := r.normalizer.Normalize(event.Err, provider.Name())
				r.tracing.OnRequestError(trace, normalized)
				failed = true
				event = llmadapter.StreamEvent{Err: normalized}
			} else {
				r.tracing.OnStreamChunk(trace, event.Chunk)
			}
			select {
			case out <- event:
			case <-ctx.Done():
				if !failed {
					r.tracing.OnRequestError(trace, ctx.Err())
				}
				return
			}
		}
		if !failed {
			r.tracing.OnRequestEnd(trace, &llmadapter.GenerateResult{
				Content:      "stream",
				FinishReason: "stop",
			})
		}
	}()
	return out, nil
}

// EmbedText embeds content through the same pipeline as Generate.
func (r *Registry) EmbedText(
	ctx context.Context,
	content string,
	opts *RequestOptions,
) (*llmadapter.EmbedResult, error) {
	provider, err := r.Provider(opts.provider(r.config.DefaultProvider))
	if err != nil {
		return nil, err
	}
	trace := r.tracing.CreateContext(provider.Name(), "embed_text", nil)
	r.tracing.OnRequestStart(trace)

	result, err := func() (*llmadapter.EmbedResult, error) {
		if err := r.checkContent(provider.Name(), content); err != nil {
			return nil, err
		}
		if err := r.acquire(ctx, provider.Name(), content); err != nil {
			return nil, err
		}
		return provider.EmbedText(ctx, content)
	}()
	if err != nil {
		normalized := r.normalizer.Normalize(err, provider.Name())
		r.tracing.OnRequestError(trace, normalized)
		return nil, normalized
	}
	r.tracing.OnRequestEnd(trace, &llmadapter.GenerateResult{
		Content:      fmt.Sprintf("embedding[%d]", result.Dimension),
		FinishReason: "stop",
	})
	return result, nil
}

func (r *Registry) checkContent(provider core.ProviderName, content string) error {
	if validation := r.guardrails.ValidateContent(content); !validation.Valid {
		return llmadapter.NewGuardrailError(
			provider,
			fmt.Sprintf("Guardrail validation failed: %s", validation.Error()),
		)
	}
	return nil
}

func (r *Registry) acquire(ctx context.Context, provider core.ProviderName, content string) error {
	if err := r.limiter.Acquire(ctx, llmadapter.EstimateTokens(content)); err != nil {
		retryable := !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		return &llmadapter.NormalizedError{
			Provider:  provider,
			Code:      llmadapter.ErrCodeRateLimit,
			Message:   err.Error(),
			Retryable: retryable,
			Err:       err,
		}
	}
	return nil
}

// RateLimiter exposes the shared limiter for inspection and draining.
func (r *Registry) RateLimiter() *ratelimit.Limiter {
	return r.limiter
}

// Guardrails exposes the shared validator set.
func (r *Registry) Guardrails() *Guardrails {
	return r.guardrails
}

// Tracing exposes the hook manager for registering sinks.
func (r *Registry) Tracing() *TracingManager {
	return r.tracing
}

// Drain waits for in-flight rate limiter acquisitions to finish.
func (r *Registry) Drain(ctx context.Context) error {
	return r.limiter.Drain(ctx)
}
