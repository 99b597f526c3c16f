package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// counterValue returns the value of the int64 sum data point of name whose
// attribute key equals value. ok is false when no such point exists.
func counterValue(rm metricdata.ResourceMetrics, name, key, value string) (v int64, ok bool) {
	met := findMetric(rm, name)
	if met == nil {
		return 0, false
	}
	sum, isSum := met.Data.(metricdata.Sum[int64])
	if !isSum {
		return 0, false
	}
	for _, dp := range sum.DataPoints {
		if got, found := dp.Attributes.Value(attribute.Key(key)); found && got.AsString() == value {
			return dp.Value, true
		}
	}
	return 0, false
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"studymate.generation.duration", m.GenerationDuration},
		{"studymate.chat.duration", m.ChatDuration},
		{"studymate.voice.start.duration", m.VoiceStartDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 12.5)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordProviderRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "gemini", "generation", "ok")
	m.RecordProviderRequest(ctx, "gemini", "generation", "ok")
	m.RecordProviderRequest(ctx, "gemini", "generation", "error")

	rm := collect(t, reader)
	if got, ok := counterValue(rm, "studymate.provider.requests", "status", "ok"); !ok || got != 2 {
		t.Errorf("status=ok counter = %d (found %v), want 2", got, ok)
	}
	if got, ok := counterValue(rm, "studymate.provider.requests", "status", "error"); !ok || got != 1 {
		t.Errorf("status=error counter = %d (found %v), want 1", got, ok)
	}
}

func TestRecordProviderError(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordProviderError(context.Background(), "gemini", "live")

	rm := collect(t, reader)
	if got, ok := counterValue(rm, "studymate.provider.errors", "kind", "live"); !ok || got != 1 {
		t.Errorf("counter = %d (found %v), want 1", got, ok)
	}
}

func TestVoiceCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordChunk(ctx, ChunkCaptured)
	m.RecordChunk(ctx, ChunkCaptured)
	m.RecordChunk(ctx, ChunkDropped)
	m.RecordPlaybackUnit(ctx, UnitScheduled)
	m.RecordPlaybackUnit(ctx, UnitDecodeError)
	m.RecordTurn(ctx, "user")
	m.RecordRetry(ctx, "generate")

	rm := collect(t, reader)

	tests := []struct {
		name, key, value string
		want             int64
	}{
		{"studymate.voice.chunks", "status", ChunkCaptured, 2},
		{"studymate.voice.chunks", "status", ChunkDropped, 1},
		{"studymate.voice.playback_units", "status", UnitScheduled, 1},
		{"studymate.voice.playback_units", "status", UnitDecodeError, 1},
		{"studymate.voice.turns", "speaker", "user", 1},
		{"studymate.retries", "operation", "generate", 1},
	}
	for _, tc := range tests {
		t.Run(tc.name+"/"+tc.value, func(t *testing.T) {
			got, ok := counterValue(rm, tc.name, tc.key, tc.value)
			if !ok {
				t.Fatalf("data point %s=%s not found", tc.key, tc.value)
			}
			if got != tc.want {
				t.Errorf("counter value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "studymate.voice.active_sessions")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if len(sum.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("gauge value = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
