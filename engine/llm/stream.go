package llm

import (
	"context"
	"strings"
	"sync"
	"time"

	llmadapter "github.com/bizradar/bizradar/engine/llm/adapter"
)

// StreamBuffer accumulates chunks from a stream. Safe for one producer and
// concurrent readers; pushes after Close are dropped.
type StreamBuffer struct {
	mu     sync.Mutex
	chunks []string
	closed bool
}

func NewStreamBuffer() *StreamBuffer {
	return &StreamBuffer{}
}

func (b *StreamBuffer) Push(chunk string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.chunks = append(b.chunks, chunk)
	}
}

func (b *StreamBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.chunks, "")
}

func (b *StreamBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = nil
}

func (b *StreamBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

func (b *StreamBuffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// CollectStream drains events into a single string. It stops at the first
// error event or when ctx is canceled, returning whatever was collected so
// far along with the error.
func CollectStream(ctx context.Context, events <-chan llmadapter.StreamEvent) (string, error) {
	var out strings.Builder
	for {
		select {
		case <-ctx.Done():
			return out.String(), ctx.Err()
		case event, ok := <-events:
			if !ok {
				return out.String(), nil
			}
			if event.Err != nil {
				return out.String(), event.Err
			}
			out.WriteString(event.Chunk)
		}
	}
}

// CombineStreams concatenates streams sequentially: the second stream is
// consumed only after the first closes.
func CombineStreams(ctx context.Context, streams ...<-chan llmadapter.StreamEvent) <-chan llmadapter.StreamEvent {
	out := make(chan llmadapter.StreamEvent)
	go func() {
		defer close(out)
		for _, events := range streams {
			if !forward(ctx, events, out, func(event llmadapter.StreamEvent) []llmadapter.StreamEvent {
				return []llmadapter.StreamEvent{event}
			}) {
				return
			}
		}
	}()
	return out
}

// FilterStream drops chunks the predicate rejects. Error events always pass
// through.
func FilterStream(
	ctx context.Context,
	events <-chan llmadapter.StreamEvent,
	predicate func(chunk string) bool,
) <-chan llmadapter.StreamEvent {
	return transform(ctx, events, func(event llmadapter.StreamEvent) []llmadapter.StreamEvent {
		if event.Err == nil && !predicate(event.Chunk) {
			return nil
		}
		return []llmadapter.StreamEvent{event}
	})
}

// MapStream rewrites each chunk through mapper. Error events pass through
// unchanged.
func MapStream(
	ctx context.Context,
	events <-chan llmadapter.StreamEvent,
	mapper func(chunk string) string,
) <-chan llmadapter.StreamEvent {
	return transform(ctx, events, func(event llmadapter.StreamEvent) []llmadapter.StreamEvent {
		if event.Err == nil {
			event.Chunk = mapper(event.Chunk)
		}
		return []llmadapter.StreamEvent{event}
	})
}

// ThrottleStream delays after each forwarded chunk.
func ThrottleStream(
	ctx context.Context,
	events <-chan llmadapter.StreamEvent,
	delay time.Duration,
) <-chan llmadapter.StreamEvent {
	out := make(chan llmadapter.StreamEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return
				}
			}
		}
	}()
	return out
}

// BatchStream re-chunks the stream into pieces of exactly size bytes, with a
// final short piece for any remainder. An error event flushes the buffer
// first so no collected text is lost.
func BatchStream(
	ctx context.Context,
	events <-chan llmadapter.StreamEvent,
	size int,
) <-chan llmadapter.StreamEvent {
	if size < 1 {
		size = 1
	}
	out := make(chan llmadapter.StreamEvent)
	go func() {
		defer close(out)
		var buffer string
		emit := func(event llmadapter.StreamEvent) bool {
			select {
			case out <- event:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					if buffer != "" {
						emit(llmadapter.StreamEvent{Chunk: buffer})
					}
					return
				}
				if event.Err != nil {
					if buffer != "" {
						if !emit(llmadapter.StreamEvent{Chunk: buffer}) {
							return
						}
						buffer = ""
					}
					if !emit(event) {
						return
					}
					continue
				}
				buffer += event.Chunk
				for len(buffer) >= size {
					if !emit(llmadapter.StreamEvent{Chunk: buffer[:size]}) {
						return
					}
					buffer = buffer[size:]
				}
			}
		}
	}()
	return out
}

func transform(
	ctx context.Context,
	events <-chan llmadapter.StreamEvent,
	fn func(llmadapter.StreamEvent) []llmadapter.StreamEvent,
) <-chan llmadapter.StreamEvent {
	out := make(chan llmadapter.StreamEvent)
	go func() {
		defer close(out)
		forward(ctx, events, out, fn)
	}()
	return out
}

// forward pumps events through fn into out until the source closes. Returns
// false when ctx ends the pump early.
func forward(
	ctx context.Context,
	events <-chan llmadapter.StreamEvent,
	out chan<- llmadapter.StreamEvent,
	fn func(llmadapter.StreamEvent) []llmadapter.StreamEvent,
) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-events:
			if !ok {
				return true
			}
			for _, mapped := range fn(event) {
				select {
				case out <- mapped:
				case <-ctx.Done():
					return false
				}
			}
		}
	}
}
