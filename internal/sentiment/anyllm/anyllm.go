// Package anyllm provides a sentiment analyzer backed by
// github.com/mozilla-ai/any-llm-go, which speaks to Anthropic, Gemini,
// Ollama, DeepSeek, Mistral, Groq, llama.cpp and llamafile through one
// interface.
package anyllm

import (
	"context"
	"fmt"
	"strings"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/PennyNeko/Soph/internal/observe"
	"github.com/PennyNeko/Soph/internal/sentiment"
)

// Providers lists the backend names [New] accepts.
var Providers = []string{"anthropic", "deepseek", "gemini", "groq", "llamacpp", "llamafile", "mistral", "ollama", "openai"}

// Analyzer implements [sentiment.Analyzer].
type Analyzer struct {
	name    string
	backend anyllmlib.Provider
	model   string
	timeout time.Duration
	metrics *observe.Metrics
}

var _ sentiment.Analyzer = (*Analyzer)(nil)

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithTimeout bounds each scoring request.
func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) { a.timeout = d }
}

// WithMetrics records call latency and provider errors.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// New creates an Analyzer for the named backend. libOpts are passed to
// any-llm-go (anyllmlib.WithAPIKey, anyllmlib.WithBaseURL); without an API
// key option the backend reads its usual environment variable.
func New(name, model string, libOpts []anyllmlib.Option, opts ...Option) (*Analyzer, error) {
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}
	backend, err := createBackend(name, libOpts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", name, err)
	}
	a := &Analyzer{name: strings.ToLower(name), backend: backend, model: model}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

func createBackend(name string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(name) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported backend %q; supported: %s", name, strings.Join(Providers, ", "))
	}
}

// Analyze implements [sentiment.Analyzer]. All texts are scored in one
// completion.
func (a *Analyzer) Analyze(ctx context.Context, texts []string) ([]sentiment.Score, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, span := observe.StartSpan(ctx, "sentiment.anyllm.analyze")
	defer span.End()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	scores, err := a.analyze(ctx, texts)
	if a.metrics != nil {
		a.metrics.SentimentDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			a.metrics.RecordProviderError(ctx, a.name, "sentiment")
		}
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return scores, nil
}

func (a *Analyzer) analyze(ctx context.Context, texts []string) ([]sentiment.Score, error) {
	resp, err := a.backend.Completion(ctx, a.buildParams(texts))
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: empty choices in response")
	}
	scores, err := sentiment.ParseReply(resp.Choices[0].Message.ContentString(), len(texts))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %w", err)
	}
	return scores, nil
}

func (a *Analyzer) buildParams(texts []string) anyllmlib.CompletionParams {
	temperature := 0.0
	return anyllmlib.CompletionParams{
		Model: a.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: sentiment.Prompt},
			{Role: "user", Content: sentiment.FormatBatch(texts)},
		},
		Temperature: &temperature,
	}
}
