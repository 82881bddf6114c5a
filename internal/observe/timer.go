package observe

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Timer measures one named step of a request and its nested sub-steps. Each
// Timer is backed by an OTel span.
//
// A nil *Timer is valid: every method is a no-op. Code that instruments a
// step calls [Sub] unconditionally; when the request carries no timer the
// call costs a single context lookup.
type Timer struct {
	name  string
	start time.Time
	span  trace.Span

	mu       sync.Mutex
	elapsed  time.Duration
	stopped  bool
	children []*Timer
}

type timerKey struct{}

// StartTimer begins a root timer named name and returns a context carrying
// it.
func StartTimer(ctx context.Context, name string) (context.Context, *Timer) {
	ctx, span := StartSpan(ctx, name)
	t := &Timer{name: name, start: time.Now(), span: span}
	return WithTimer(ctx, t), t
}

// WithTimer returns a copy of ctx carrying t.
func WithTimer(ctx context.Context, t *Timer) context.Context {
	return context.WithValue(ctx, timerKey{}, t)
}

// TimerFrom returns the timer carried by ctx, or nil.
func TimerFrom(ctx context.Context) *Timer {
	t, _ := ctx.Value(timerKey{}).(*Timer)
	return t
}

// Sub starts a child of the timer carried by ctx. Without a timer it returns
// ctx unchanged and a nil timer.
func Sub(ctx context.Context, name string) (context.Context, *Timer) {
	parent := TimerFrom(ctx)
	if parent == nil {
		return ctx, nil
	}
	ctx, span := StartSpan(ctx, name)
	child := &Timer{name: name, start: time.Now(), span: span}

	parent.mu.Lock()
	parent.children = append(parent.children, child)
	parent.mu.Unlock()

	return WithTimer(ctx, child), child
}

// Stop ends the timer and its span. Only the first call has an effect.
func (t *Timer) Stop() time.Duration {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.stopped {
		t.stopped = true
		t.elapsed = time.Since(t.start)
		t.span.End()
	}
	return t.elapsed
}

// Elapsed returns the measured duration, or the running time when the timer
// has not been stopped yet.
func (t *Timer) Elapsed() time.Duration {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return t.elapsed
	}
	return time.Since(t.start)
}

// Name returns the step name.
func (t *Timer) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}

// String renders the timer tree, one indented line per step.
func (t *Timer) String() string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	t.write(&b, 0)
	return strings.TrimRight(b.String(), "\n")
}

func (t *Timer) write(b *strings.Builder, depth int) {
	fmt.Fprintf(b, "%s%s: %.3fs\n", strings.Repeat("  ", depth), t.name, t.Elapsed().Seconds())
	t.mu.Lock()
	children := append([]*Timer(nil), t.children...)
	t.mu.Unlock()
	for _, c := range children {
		c.write(b, depth+1)
	}
}
