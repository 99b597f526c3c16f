// Package observe provides application-wide observability primitives for
// StudyMate: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Chunk statuses for [Metrics.RecordChunk].
const (
	ChunkCaptured  = "captured"
	ChunkSent      = "sent"
	ChunkDropped   = "dropped"
	ChunkSendError = "send_error"
)

// Playback unit statuses for [Metrics.RecordPlaybackUnit].
const (
	UnitScheduled     = "scheduled"
	UnitDecodeError   = "decode_error"
	UnitScheduleError = "schedule_error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// GenerationDuration tracks end-to-end study guide generation latency,
	// retries included.
	GenerationDuration metric.Float64Histogram

	// ChatDuration tracks follow-up chat reply latency.
	ChatDuration metric.Float64Histogram

	// VoiceStartDuration tracks the time from Start to an open live session.
	VoiceStartDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// Retries counts retried attempts. Use with attribute:
	//   attribute.String("operation", ...)
	Retries metric.Int64Counter

	// VoiceChunks counts microphone chunks by status (captured, sent,
	// dropped, send_error).
	VoiceChunks metric.Int64Counter

	// PlaybackUnits counts output audio payloads by status (scheduled,
	// decode_error, schedule_error).
	PlaybackUnits metric.Int64Counter

	// TranscriptTurns counts committed voice turns by speaker.
	TranscriptTurns metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Generation
// with backoff can take tens of seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(scopeName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.GenerationDuration, err = m.Float64Histogram("studymate.generation.duration",
		metric.WithDescription("Latency of study guide generation including retries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChatDuration, err = m.Float64Histogram("studymate.chat.duration",
		metric.WithDescription("Latency of a follow-up chat reply."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.VoiceStartDuration, err = m.Float64Histogram("studymate.voice.start.duration",
		metric.WithDescription("Time from voice start request to an open live session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("studymate.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("studymate.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.Retries, err = m.Int64Counter("studymate.retries",
		metric.WithDescription("Total retried attempts by operation."),
	); err != nil {
		return nil, err
	}
	if met.VoiceChunks, err = m.Int64Counter("studymate.voice.chunks",
		metric.WithDescription("Microphone chunks by status."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackUnits, err = m.Int64Counter("studymate.voice.playback_units",
		metric.WithDescription("Output audio payloads by status."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptTurns, err = m.Int64Counter("studymate.voice.turns",
		metric.WithDescription("Committed voice transcript turns by speaker."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("studymate.voice.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("studymate.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordRetry records one retried attempt of operation.
func (m *Metrics) RecordRetry(ctx context.Context, operation string) {
	m.Retries.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordChunk records one microphone chunk with the given status.
func (m *Metrics) RecordChunk(ctx context.Context, status string) {
	m.VoiceChunks.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordPlaybackUnit records one output payload with the given status.
func (m *Metrics) RecordPlaybackUnit(ctx context.Context, status string) {
	m.PlaybackUnits.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordTurn records one committed transcript turn.
func (m *Metrics) RecordTurn(ctx context.Context, speaker string) {
	m.TranscriptTurns.Add(ctx, 1, metric.WithAttributes(attribute.String("speaker", speaker)))
}
