// Package observe provides observability primitives for Soph: OpenTelemetry
// metrics and tracing, trace-aware logging, per-request timers, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed for
// scraping through the Prometheus exporter installed by [InitProvider]. A
// package-level [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Soph metrics.
const meterName = "github.com/PennyNeko/Soph"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// QueryDuration tracks index lookups. Use with attribute:
	//   attribute.String("kind", "query"|"long"|"stats"|"last")
	QueryDuration metric.Float64Histogram

	// GenerationDuration tracks Markov generation requests. Use with attribute:
	//   attribute.String("op", "impersonate"|"converse")
	GenerationDuration metric.Float64Histogram

	// CorpusLoadDuration tracks loading a community's model directory.
	CorpusLoadDuration metric.Float64Histogram

	// SentimentDuration tracks sentiment scoring calls.
	SentimentDuration metric.Float64Histogram

	// ToolExecutionDuration tracks MCP tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// CacheLookups counts combined-model cache lookups. Use with attribute:
	//   attribute.String("result", "hit"|"miss")
	CacheLookups metric.Int64Counter

	// GenerationAttempts counts individual sentence attempts. Use with attributes:
	//   attribute.String("op", ...), attribute.String("outcome", "accepted"|"rejected")
	GenerationAttempts metric.Int64Counter

	// MessagesHandled counts consumed chat messages. Use with attribute:
	//   attribute.String("status", "replied"|"ignored"|"fallback")
	MessagesHandled metric.Int64Counter

	// DocumentsIndexed counts documents appended to an index. Use with attribute:
	//   attribute.String("community", ...)
	DocumentsIndexed metric.Int64Counter

	// ToolCalls counts MCP tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// ProviderErrors counts collaborator failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveCommunities tracks the number of opened communities.
	ActiveCommunities metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Index
// lookups sit at the low end, remote sentiment calls at the high end.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	if met.QueryDuration, err = histogram("soph.index.query.duration",
		"Latency of index lookups by kind."); err != nil {
		return nil, err
	}
	if met.GenerationDuration, err = histogram("soph.corpus.generation.duration",
		"Latency of Markov text generation by operation."); err != nil {
		return nil, err
	}
	if met.CorpusLoadDuration, err = histogram("soph.corpus.load.duration",
		"Latency of loading a community corpus."); err != nil {
		return nil, err
	}
	if met.SentimentDuration, err = histogram("soph.sentiment.duration",
		"Latency of sentiment scoring."); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = histogram("soph.tool_execution.duration",
		"Latency of MCP tool execution."); err != nil {
		return nil, err
	}

	if met.CacheLookups, err = m.Int64Counter("soph.corpus.cache.lookups",
		metric.WithDescription("Combined-model cache lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.GenerationAttempts, err = m.Int64Counter("soph.corpus.generation.attempts",
		metric.WithDescription("Sentence generation attempts by operation and outcome."),
	); err != nil {
		return nil, err
	}
	if met.MessagesHandled, err = m.Int64Counter("soph.messages.handled",
		metric.WithDescription("Chat messages consumed by status."),
	); err != nil {
		return nil, err
	}
	if met.DocumentsIndexed, err = m.Int64Counter("soph.index.documents",
		metric.WithDescription("Documents appended to a community index."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("soph.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("soph.provider.errors",
		metric.WithDescription("Collaborator errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveCommunities, err = m.Int64UpDownCounter("soph.active_communities",
		metric.WithDescription("Number of communities with an open corpus and index."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("soph.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// ObserveQuery records the duration of one index lookup.
func (m *Metrics) ObserveQuery(ctx context.Context, kind string, d time.Duration) {
	m.QueryDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordCacheLookup records a combined-model cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordGenerationAttempt records one sentence attempt for op.
func (m *Metrics) RecordGenerationAttempt(ctx context.Context, op string, accepted bool) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	m.GenerationAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordMessage records a consumed chat message.
func (m *Metrics) RecordMessage(ctx context.Context, status string) {
	m.MessagesHandled.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordDocumentIndexed records one document appended to a community index.
func (m *Metrics) RecordDocumentIndexed(ctx context.Context, community string) {
	m.DocumentsIndexed.Add(ctx, 1, metric.WithAttributes(attribute.String("community", community)))
}

// RecordToolCall records a tool call counter increment with the standard
// attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// ObserveToolExecution records the latency of one tool call.
func (m *Metrics) ObserveToolExecution(ctx context.Context, tool string, d time.Duration) {
	m.ToolExecutionDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("tool", tool)),
	)
}

// RecordProviderError records a collaborator error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
