package observe

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestSub_NoTimerIsNoop(t *testing.T) {
	ctx := context.Background()

	got, timer := Sub(ctx, "lookup")
	if timer != nil {
		t.Fatal("Sub without a timer returned a non-nil timer")
	}
	if got != ctx {
		t.Error("Sub without a timer should return the context unchanged")
	}

	// Every method must tolerate the nil receiver.
	if d := timer.Stop(); d != 0 {
		t.Errorf("nil Stop = %v, want 0", d)
	}
	if d := timer.Elapsed(); d != 0 {
		t.Errorf("nil Elapsed = %v, want 0", d)
	}
	if timer.String() != "" || timer.Name() != "" {
		t.Error("nil timer should render empty")
	}
}

func TestTimer_TreeAndSpans(t *testing.T) {
	exp := useTracer(t)

	ctx, root := StartTimer(context.Background(), "consume")
	if TimerFrom(ctx) != root {
		t.Fatal("TimerFrom did not return the root timer")
	}

	subCtx, child := Sub(ctx, "query")
	if TimerFrom(subCtx) != child {
		t.Fatal("Sub did not install the child timer")
	}
	time.Sleep(time.Millisecond)
	child.Stop()
	first := root.Stop()

	if again := root.Stop(); again != first {
		t.Errorf("second Stop = %v, want %v", again, first)
	}
	if child.Elapsed() > root.Elapsed() {
		t.Errorf("child %v outlasted root %v", child.Elapsed(), root.Elapsed())
	}

	out := root.String()
	if !strings.HasPrefix(out, "consume: ") || !strings.Contains(out, "\n  query: ") {
		t.Errorf("String() = %q", out)
	}

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	if spans[0].Name != "query" || spans[1].Name != "consume" {
		t.Errorf("span names = %q, %q", spans[0].Name, spans[1].Name)
	}
	if spans[0].Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Error("query span is not a child of consume")
	}
}
