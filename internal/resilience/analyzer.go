package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/PennyNeko/Soph/internal/sentiment"
)

// ErrAllFailed is returned when every analyzer in a [Failover] failed or was
// skipped by its breaker.
var ErrAllFailed = errors.New("resilience: all analyzers failed")

type entry struct {
	name     string
	analyzer sentiment.Analyzer
	breaker  *Breaker
}

// Failover is a [sentiment.Analyzer] that tries its analyzers in order, each
// behind its own [Breaker]. Register analyzers before first use.
type Failover struct {
	cfg     BreakerConfig
	opts    []BreakerOption
	entries []entry
}

var _ sentiment.Analyzer = (*Failover)(nil)

// NewFailover returns a Failover whose first analyzer is primary.
func NewFailover(name string, primary sentiment.Analyzer, cfg BreakerConfig, opts ...BreakerOption) *Failover {
	f := &Failover{cfg: cfg, opts: opts}
	f.Add(name, primary)
	return f
}

// Add appends a fallback analyzer.
func (f *Failover) Add(name string, a sentiment.Analyzer) {
	cfg := f.cfg
	cfg.Name = "sentiment/" + name
	f.entries = append(f.entries, entry{name: name, analyzer: a, breaker: NewBreaker(cfg, f.opts...)})
}

// Breaker returns the breaker guarding the named analyzer, or nil.
func (f *Failover) Breaker(name string) *Breaker {
	for _, e := range f.entries {
		if e.name == name {
			return e.breaker
		}
	}
	return nil
}

// Analyze implements [sentiment.Analyzer]. A result whose length differs from
// texts counts as a failure of that analyzer.
func (f *Failover) Analyze(ctx context.Context, texts []string) ([]sentiment.Score, error) {
	var lastErr error
	for _, e := range f.entries {
		var scores []sentiment.Score
		err := e.breaker.Do(ctx, func(ctx context.Context) error {
			out, err := e.analyzer.Analyze(ctx, texts)
			if err != nil {
				return err
			}
			if len(out) != len(texts) {
				return fmt.Errorf("%s returned %d scores for %d texts", e.name, len(out), len(texts))
			}
			scores = out
			return nil
		})
		if err == nil {
			return scores, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("sentiment analyzer skipped", "analyzer", e.name)
		} else {
			slog.Warn("sentiment analyzer failed, trying next", "analyzer", e.name, "err", err)
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
