// Package openai provides a sentiment analyzer backed by the OpenAI chat
// completions API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/PennyNeko/Soph/internal/observe"
	"github.com/PennyNeko/Soph/internal/sentiment"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// Analyzer implements [sentiment.Analyzer].
type Analyzer struct {
	client  oai.Client
	model   string
	metrics *observe.Metrics
}

var _ sentiment.Analyzer = (*Analyzer)(nil)

type config struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int
	metrics    *observe.Metrics
}

// Option is a functional option for Analyzer.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxRetries sets how often a failed request is retried. Default: 2.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithMetrics records call latency and provider errors.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// New constructs an Analyzer. An empty model uses [DefaultModel].
func New(apiKey, model string, opts ...Option) (*Analyzer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{maxRetries: 2}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Analyzer{
		client:  oai.NewClient(reqOpts...),
		model:   model,
		metrics: cfg.metrics,
	}, nil
}

// Analyze implements [sentiment.Analyzer]. All texts are scored in one
// request.
func (a *Analyzer) Analyze(ctx context.Context, texts []string) ([]sentiment.Score, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, span := observe.StartSpan(ctx, "sentiment.openai.analyze")
	defer span.End()

	start := time.Now()
	scores, err := a.analyze(ctx, texts)
	if a.metrics != nil {
		a.metrics.SentimentDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			a.metrics.RecordProviderError(ctx, "openai", "sentiment")
		}
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return scores, nil
}

func (a *Analyzer) analyze(ctx context.Context, texts []string) ([]sentiment.Score, error) {
	resp, err := a.client.Chat.Completions.New(ctx, a.buildParams(texts))
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}

	scores, err := sentiment.ParseReply(resp.Choices[0].Message.Content, len(texts))
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return scores, nil
}

func (a *Analyzer) buildParams(texts []string) oai.ChatCompletionNewParams {
	return oai.ChatCompletionNewParams{
		Model: shared.ChatModel(a.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(sentiment.Prompt),
			oai.UserMessage(sentiment.FormatBatch(texts)),
		},
		Temperature: param.NewOpt(0.0),
	}
}
