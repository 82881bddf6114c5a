// Package resilience guards remote providers with a circuit breaker and
// chains analyzers so a failing primary is bypassed.
//
// Soph only talks to one remote service per request (the sentiment
// provider), so the breaker is deliberately small: it counts consecutive
// failures, rejects calls for a cooldown once tripped, then lets a few trial
// calls through before closing again.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the cooldown elapses.
	StateOpen

	// StateHalfOpen lets a limited number of trial calls through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take defaults.
type BreakerConfig struct {
	// Name labels log lines.
	Name string

	// MaxFailures consecutive failures trip the breaker. Default: 5.
	MaxFailures int

	// Cooldown is how long a tripped breaker rejects calls. Default: 30s.
	Cooldown time.Duration

	// Trials successful half-open calls close the breaker. Default: 2.
	Trials int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.Trials <= 0 {
		c.Trials = 2
	}
	return c
}

// Breaker is a three-state circuit breaker. It is safe for concurrent use.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inflight int // trials started in half-open
	passed   int // trials succeeded in half-open
}

// BreakerOption configures a [Breaker].
type BreakerOption func(*Breaker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// NewBreaker returns a closed breaker.
func NewBreaker(cfg BreakerConfig, opts ...BreakerOption) *Breaker {
	b := &Breaker{cfg: cfg.withDefaults(), now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Do runs fn unless the breaker is open. A cancelled ctx is not counted as a
// provider failure.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	trial, err := b.acquire()
	if err != nil {
		return err
	}

	err = fn(ctx)

	switch {
	case err == nil:
		b.success(trial)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		b.release(trial)
	default:
		b.failure(trial)
	}
	return err
}

func (b *Breaker) acquire() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false, ErrOpen
		}
		b.state = StateHalfOpen
		b.inflight, b.passed = 0, 0
		slog.Info("circuit half-open", "name", b.cfg.Name)
	}
	if b.state == StateHalfOpen {
		if b.inflight >= b.cfg.Trials {
			return false, ErrOpen
		}
		b.inflight++
		return true, nil
	}
	return false, nil
}

func (b *Breaker) release(trial bool) {
	if !trial {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.inflight > 0 {
		b.inflight--
	}
}

func (b *Breaker) success(trial bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if !trial || b.state != StateHalfOpen {
		return
	}
	b.passed++
	if b.passed >= b.cfg.Trials {
		b.state = StateClosed
		slog.Info("circuit closed", "name", b.cfg.Name)
	}
}

func (b *Breaker) failure(trial bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if trial || b.failures >= b.cfg.MaxFailures {
		if b.state != StateOpen {
			slog.Warn("circuit opened", "name", b.cfg.Name, "failures", b.failures)
		}
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

// State reports the breaker's mode. An open breaker whose cooldown has
// elapsed reports [StateHalfOpen].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures, b.inflight, b.passed = 0, 0, 0
}
