// Package observe provides application-wide observability primitives for
// EVA: OpenTelemetry metrics for the capture, trigger, exchange, and
// playback stages of the voice pipeline.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all EVA metrics.
const meterName = "github.com/evoxlab/eva"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// SegmentDuration tracks the audio length of closed speech segments.
	SegmentDuration metric.Float64Histogram

	// ExchangeDuration tracks remote exchange round-trip latency. Use with
	// attribute: attribute.String("path", "voice"|"text")
	ExchangeDuration metric.Float64Histogram

	// PlaybackDuration tracks reply playback wall time.
	PlaybackDuration metric.Float64Histogram

	// --- Counters ---

	// SegmentsClosed counts speech segments emitted by the segmenter.
	SegmentsClosed metric.Int64Counter

	// TriggerDecisions counts trigger evaluations. Use with attribute:
	//   attribute.String("decision", "accepted"|"too_short"|"too_long"|"cooldown")
	TriggerDecisions metric.Int64Counter

	// PhaseTransitions counts conversation phase changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	PhaseTransitions metric.Int64Counter

	// CommandsDropped counts machine commands lost to a full queue.
	CommandsDropped metric.Int64Counter

	// --- Error counters ---

	// ExchangeErrors counts failed remote exchanges. Use with attribute:
	//   attribute.String("kind", ...)
	ExchangeErrors metric.Int64Counter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SegmentDuration, err = m.Float64Histogram("eva.segment.duration",
		metric.WithDescription("Audio length of closed speech segments."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExchangeDuration, err = m.Float64Histogram("eva.exchange.duration",
		metric.WithDescription("Remote exchange round-trip latency by path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("eva.playback.duration",
		metric.WithDescription("Reply playback wall time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SegmentsClosed, err = m.Int64Counter("eva.segments.closed",
		metric.WithDescription("Total speech segments emitted by the segmenter."),
	); err != nil {
		return nil, err
	}
	if met.TriggerDecisions, err = m.Int64Counter("eva.trigger.decisions",
		metric.WithDescription("Total trigger evaluations by decision."),
	); err != nil {
		return nil, err
	}
	if met.PhaseTransitions, err = m.Int64Counter("eva.phase.transitions",
		metric.WithDescription("Total conversation phase changes by from and to phase."),
	); err != nil {
		return nil, err
	}
	if met.CommandsDropped, err = m.Int64Counter("eva.commands.dropped",
		metric.WithDescription("Total machine commands lost to a full queue."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ExchangeErrors, err = m.Int64Counter("eva.exchange.errors",
		metric.WithDescription("Total failed remote exchanges by error kind."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSegment records a closed speech segment and its audio length.
func (m *Metrics) RecordSegment(ctx context.Context, d time.Duration) {
	m.SegmentsClosed.Add(ctx, 1)
	m.SegmentDuration.Record(ctx, d.Seconds())
}

// RecordTriggerDecision records one trigger evaluation outcome.
func (m *Metrics) RecordTriggerDecision(ctx context.Context, decision string) {
	m.TriggerDecisions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("decision", decision)),
	)
}

// RecordExchange records a completed remote exchange round trip.
func (m *Metrics) RecordExchange(ctx context.Context, path string, d time.Duration) {
	m.ExchangeDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("path", path)),
	)
}

// RecordExchangeError records a failed remote exchange by error kind.
func (m *Metrics) RecordExchangeError(ctx context.Context, kind string) {
	m.ExchangeErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordPhaseTransition records one conversation phase change.
func (m *Metrics) RecordPhaseTransition(ctx context.Context, from, to string) {
	m.PhaseTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}
