package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	// window is the budget accounting interval.
	window = time.Minute
	// pollInterval caps how long a waiter sleeps before re-checking budgets.
	pollInterval = 100 * time.Millisecond

	DefaultRequestsPerMinute = 100
	DefaultTokensPerMinute   = 90000
	DefaultConcurrency       = 10
)

// ErrCleared is returned to waiters discarded by Clear.
var ErrCleared = errors.New("rate limiter cleared")

// Config bounds request and token throughput over a rolling minute window,
// plus how many acquisitions may be in flight at once.
type Config struct {
	RequestsPerMinute int
	TokensPerMinute   int
	Concurrency       int
}

func (c Config) withDefaults() Config {
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if c.TokensPerMinute <= 0 {
		c.TokensPerMinute = DefaultTokensPerMinute
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return c
}

// State is a snapshot of the current window's consumption. Counters only move
// backward through a full window reset.
type State struct {
	RequestsThisMinute int
	TokensThisMinute   int
	WindowStart        time.Time
}

// Limiter serializes budget check-and-increment so concurrent acquirers can
// never race past the configured limits.
type Limiter struct {
	cfg Config
	sem *semaphore.Weighted

	mu       sync.Mutex
	state    State
	clearSeq uint64

	inflight sync.WaitGroup

	// now is swappable for tests.
	now func() time.Time
}

func New(cfg Config) *Limiter {
	cfg = cfg.withDefaults()
	return &Limiter{
		cfg: cfg,
		sem: semaphore.NewWeighted(int64(cfg.Concurrency)),
		state: State{
			WindowStart: time.Now(),
		},
		now: time.Now,
	}
}

// Acquire blocks until both the request and token budgets have headroom for
// tokenCost, then commits both counters. The concurrency slot is held until
// the commit completes. A tokenCost below one counts as one token.
func (l *Limiter) Acquire(ctx context.Context, tokenCost int) error {
	if tokenCost < 1 {
		tokenCost = 1
	}
	l.inflight.Add(1)
	defer l.inflight.Done()
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)
	return l.waitForSlot(ctx, tokenCost)
}

func (l *Limiter) waitForSlot(ctx context.Context, tokenCost int) error {
	l.mu.Lock()
	seq := l.clearSeq
	l.mu.Unlock()
	for {
		l.mu.Lock()
		if l.clearSeq != seq {
			l.mu.Unlock()
			return ErrCleared
		}
		now := l.now()
		l.resetLocked(now)
		if l.state.RequestsThisMinute < l.cfg.RequestsPerMinute &&
			l.state.TokensThisMinute+tokenCost <= l.cfg.TokensPerMinute {
			l.state.RequestsThisMinute++
			l.state.TokensThisMinute += tokenCost
			l.mu.Unlock()
			return nil
		}
		wait := window - now.Sub(l.state.WindowStart)
		l.mu.Unlock()
		if wait > pollInterval || wait <= 0 {
			wait = pollInterval
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// resetLocked lazily resets the window; there is no background timer, so an
// idle limiter costs nothing.
func (l *Limiter) resetLocked(now time.Time) {
	if now.Sub(l.state.WindowStart) >= window {
		l.state.RequestsThisMinute = 0
		l.state.TokensThisMinute = 0
		l.state.WindowStart = now
	}
}

// State returns a snapshot after applying any due window reset.
func (l *Limiter) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked(l.now())
	return l.state
}

// Drain waits until every in-flight acquisition has settled.
func (l *Limiter) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.inflight.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Clear discards waiting acquirers and resets state unconditionally. Meant
// for test isolation, not production traffic shedding.
func (l *Limiter) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clearSeq++
	l.state = State{WindowStart: l.now()}
}
