package llm

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bizradar/bizradar/engine/core"
	llmadapter "github.com/bizradar/bizradar/engine/llm/adapter"
	"github.com/bizradar/bizradar/pkg/logger"
)

// TracingContext identifies one in-flight provider call.
type TracingContext struct {
	RequestID string
	Provider  core.ProviderName
	Operation string
	Timestamp time.Time
	Metadata  map[string]any
}

// TracingHook observes the request lifecycle. Implementations must be safe
// for concurrent use.
type TracingHook interface {
	OnRequestStart(ctx TracingContext)
	OnRequestEnd(ctx TracingContext, result *llmadapter.GenerateResult)
	OnRequestError(ctx TracingContext, err error)
	OnStreamChunk(ctx TracingContext, chunk string)
}

// TracingManager fans lifecycle events out to registered hooks and tracks
// which requests are still active.
type TracingManager struct {
	mu     sync.RWMutex
	hooks  []TracingHook
	active map[string]TracingContext
}

func NewTracingManager() *TracingManager {
	return &TracingManager{active: make(map[string]TracingContext)}
}

func (m *TracingManager) Register(hook TracingHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

func (m *TracingManager) CreateContext(
	provider core.ProviderName,
	operation string,
	metadata map[string]any,
) TracingContext {
	ctx := TracingContext{
		RequestID: uuid.NewString(),
		Provider:  provider,
		Operation: operation,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
	m.mu.Lock()
	m.active[ctx.RequestID] = ctx
	m.mu.Unlock()
	return ctx
}

func (m *TracingManager) OnRequestStart(ctx TracingContext) {
	for _, hook := range m.snapshot() {
		hook.OnRequestStart(ctx)
	}
}

func (m *TracingManager) OnRequestEnd(ctx TracingContext, result *llmadapter.GenerateResult) {
	for _, hook := range m.snapshot() {
		hook.OnRequestEnd(ctx, result)
	}
	m.remove(ctx.RequestID)
}

func (m *TracingManager) OnRequestError(ctx TracingContext, err error) {
	for _, hook := range m.snapshot() {
		hook.OnRequestError(ctx, err)
	}
	m.remove(ctx.RequestID)
}

func (m *TracingManager) OnStreamChunk(ctx TracingContext, chunk string) {
	for _, hook := range m.snapshot() {
		hook.OnStreamChunk(ctx, chunk)
	}
}

func (m *TracingManager) ActiveRequests() []TracingContext {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TracingContext, 0, len(m.active))
	for _, ctx := range m.active {
		out = append(out, ctx)
	}
	return out
}

func (m *TracingManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = nil
	m.active = make(map[string]TracingContext)
}

func (m *TracingManager) snapshot() []TracingHook {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hooks := make([]TracingHook, len(m.hooks))
	copy(hooks, m.hooks)
	return hooks
}

func (m *TracingManager) remove(requestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, requestID)
}

// LoggingHook writes one structured log line per lifecycle event.
type LoggingHook struct {
	log logger.Logger
}

func NewLoggingHook(log logger.Logger) *LoggingHook {
	return &LoggingHook{log: log}
}

func (h *LoggingHook) OnRequestStart(ctx TracingContext) {
	h.log.Info("request started",
		"request_id", ctx.RequestID,
		"provider", ctx.Provider,
		"operation", ctx.Operation,
	)
}

func (h *LoggingHook) OnRequestEnd(ctx TracingContext, result *llmadapter.GenerateResult) {
	var tokens int
	if result != nil {
		tokens = result.Usage.TotalTokens
	}
	h.log.Info("request completed",
		"request_id", ctx.RequestID,
		"duration", time.Since(ctx.Timestamp),
		"tokens", tokens,
	)
}

func (h *LoggingHook) OnRequestError(ctx TracingContext, err error) {
	h.log.Error("request failed",
		"request_id", ctx.RequestID,
		"duration", time.Since(ctx.Timestamp),
		"error", err,
	)
}

func (h *LoggingHook) OnStreamChunk(ctx TracingContext, chunk string) {
	h.log.Debug("stream chunk",
		"request_id", ctx.RequestID,
		"length", len(chunk),
	)
}

// Metrics is a point-in-time snapshot of hook counters.
type Metrics struct {
	RequestCount    int
	TotalTokens     int
	ErrorCount      int
	AverageDuration time.Duration
}

// MetricsHook aggregates request counters in memory.
type MetricsHook struct {
	mu            sync.Mutex
	requestCount  int
	totalTokens   int
	errorCount    int
	totalDuration time.Duration
}

func NewMetricsHook() *MetricsHook {
	return &MetricsHook{}
}

func (h *MetricsHook) OnRequestStart(TracingContext) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requestCount++
}

func (h *MetricsHook) OnRequestEnd(ctx TracingContext, result *llmadapter.GenerateResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.totalDuration += time.Since(ctx.Timestamp)
	if result != nil {
		h.totalTokens += result.Usage.TotalTokens
	}
}

func (h *MetricsHook) OnRequestError(TracingContext, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errorCount++
}

func (h *MetricsHook) OnStreamChunk(TracingContext, string) {}

func (h *MetricsHook) Metrics() Metrics {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := Metrics{
		RequestCount: h.requestCount,
		TotalTokens:  h.totalTokens,
		ErrorCount:   h.errorCount,
	}
	if h.requestCount > 0 {
		m.AverageDuration = h.totalDuration / time.Duration(h.requestCount)
	}
	return m
}

func (h *MetricsHook) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requestCount = 0
	h.totalTokens = 0
	h.errorCount = 0
	h.totalDuration = 0
}
