package anyllm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/PennyNeko/Soph/internal/sentiment"
)

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := New("openai", "", nil); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("fakecloud", "m", []anyllmlib.Option{anyllmlib.WithAPIKey("dummy")}); err == nil {
		t.Error("expected error for unknown backend")
	}
	a, err := New("Anthropic", "claude-3-5-haiku-latest", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.name != "anthropic" || a.model != "claude-3-5-haiku-latest" {
		t.Errorf("analyzer = %q/%q", a.name, a.model)
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()
	a := &Analyzer{model: "m"}
	p := a.buildParams([]string{"good", "bad"})

	if p.Model != "m" || len(p.Messages) != 2 {
		t.Fatalf("params = %+v", p)
	}
	if p.Messages[0].Role != anyllmlib.RoleSystem || p.Messages[0].ContentString() != sentiment.Prompt {
		t.Errorf("system message = %+v", p.Messages[0])
	}
	if got := p.Messages[1].ContentString(); got != "1. good\n2. bad\n" {
		t.Errorf("user message = %q", got)
	}
	if p.Temperature == nil || *p.Temperature != 0 {
		t.Errorf("temperature = %v, want 0", p.Temperature)
	}
}

func TestAnalyze_OpenAICompatible(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "m",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": `{"scores": [0.8, -0.7]}`},
			}},
		})
	}))
	t.Cleanup(srv.Close)

	a, err := New("openai", "m", []anyllmlib.Option{
		anyllmlib.WithAPIKey("sk-test"),
		anyllmlib.WithBaseURL(srv.URL + "/v1"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	scores, err := a.Analyze(context.Background(), []string{"love it", "hate it"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(scores) != 2 || scores[0].Label != sentiment.Positive || scores[1].Label != sentiment.Negative {
		t.Errorf("scores = %+v", scores)
	}

	if got, err := a.Analyze(context.Background(), nil); got != nil || err != nil {
		t.Errorf("Analyze(nil) = %v, %v", got, err)
	}
}
