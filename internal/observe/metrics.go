// Package observe provides application-wide observability primitives for
// scriptvox: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [Setup] bridges
// them into a Prometheus registry served at /metrics. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics is the set of instruments the service records. Attribute keys
// are noted per field; values come from the Record helpers below.
type Metrics struct {
	// Stage latency in seconds.
	TTSDuration  metric.Float64Histogram
	STTDuration  metric.Float64Histogram // dial to final transcript
	TurnDuration metric.Float64Histogram

	ProviderRequests   metric.Int64Counter // provider, kind, status
	ProviderErrors     metric.Int64Counter // provider, kind
	Classifications    metric.Int64Counter // classification
	Transitions        metric.Int64Counter // outcome: advanced, ended, held, exhausted
	ProgressConflicts  metric.Int64Counter
	BlockedTurns       metric.Int64Counter // reason: archived, inactive
	BreakerTransitions metric.Int64Counter // breaker, state

	// ActiveTurns counts turns in flight, including those queued for the
	// audio slot.
	ActiveTurns metric.Int64UpDownCounter

	HTTPRequestDuration metric.Float64Histogram // method, route, status
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Remote
// synthesis and recognition sit in the 0.1 s to 10 s range.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 20, 30,
}

// NewMetrics creates every instrument on a meter from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := builder{m: mp.Meter(scope)}
	met := &Metrics{
		TTSDuration:  b.latency("scriptvox.tts.duration", "Latency of text-to-speech synthesis."),
		STTDuration:  b.latency("scriptvox.stt.duration", "Latency of streaming speech recognition."),
		TurnDuration: b.latency("scriptvox.turn.duration", "Latency of a full speak-and-listen turn."),

		ProviderRequests:   b.counter("scriptvox.provider.requests", "Provider calls by provider, kind and status."),
		ProviderErrors:     b.counter("scriptvox.provider.errors", "Provider failures by provider and kind."),
		Classifications:    b.counter("scriptvox.classifications", "Classified utterances by classification."),
		Transitions:        b.counter("scriptvox.transitions", "Script transitions by outcome."),
		ProgressConflicts:  b.counter("scriptvox.progress.conflicts", "Progress writes rejected by compare-and-set."),
		BlockedTurns:       b.counter("scriptvox.turns.blocked", "Turns refused before synthesis by reason."),
		BreakerTransitions: b.counter("scriptvox.breaker.transitions", "Circuit breaker state changes by breaker and state."),

		ActiveTurns: b.updown("scriptvox.active_turns", "Speak-and-listen turns in flight."),
	}
	if b.err == nil {
		met.HTTPRequestDuration, b.err = b.m.Float64Histogram("scriptvox.http.request.duration",
			metric.WithDescription("HTTP request latency by method, route and status."),
			metric.WithUnit("s"))
	}
	if b.err != nil {
		return nil, b.err
	}
	return met, nil
}

// builder keeps the first instrument error; later calls become no-ops that
// return nil instruments.
type builder struct {
	m   metric.Meter
	err error
}

func (b *builder) latency(name, desc string) metric.Float64Histogram {
	if b.err != nil {
		return nil
	}
	h, err := b.m.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...))
	b.err = err
	return h
}

func (b *builder) counter(name, desc string) metric.Int64Counter {
	if b.err != nil {
		return nil
	}
	c, err := b.m.Int64Counter(name, metric.WithDescription(desc))
	b.err = err
	return c
}

func (b *builder) updown(name, desc string) metric.Int64UpDownCounter {
	if b.err != nil {
		return nil
	}
	c, err := b.m.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.err = err
	return c
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics lazily builds a [Metrics] on [otel.GetMeterProvider]. It
// panics if an instrument cannot be created.
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

// RecordProviderRequest counts one provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError counts one provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordClassification records one classified utterance.
func (m *Metrics) RecordClassification(ctx context.Context, classification string) {
	m.Classifications.Add(ctx, 1, metric.WithAttributes(attribute.String("classification", classification)))
}

// RecordTransition records one script transition outcome.
func (m *Metrics) RecordTransition(ctx context.Context, outcome string) {
	m.Transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordBreakerTransition records breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, state string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", breaker),
		attribute.String("state", state),
	))
}

// RecordBlocked records a turn refused for reason.
func (m *Metrics) RecordBlocked(ctx context.Context, reason string) {
	m.BlockedTurns.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
