package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ServiceName is reported as service.name on every metric and span.
const ServiceName = "studymate"

type providerConfig struct {
	version    string
	spans      sdktrace.SpanExporter
	registerer prometheus.Registerer
}

// ProviderOption configures [InitProvider].
type ProviderOption func(*providerConfig)

// WithServiceVersion sets service.version.
func WithServiceVersion(v string) ProviderOption {
	return func(c *providerConfig) { c.version = v }
}

// WithSpanExporter batches finished spans to exp. Without it spans are
// sampled for log correlation but never exported.
func WithSpanExporter(exp sdktrace.SpanExporter) ProviderOption {
	return func(c *providerConfig) { c.spans = exp }
}

// WithRegisterer registers the Prometheus collector with r instead of
// [prometheus.DefaultRegisterer], which promhttp.Handler serves.
func WithRegisterer(r prometheus.Registerer) ProviderOption {
	return func(c *providerConfig) { c.registerer = r }
}

// Telemetry owns the SDK providers installed by [InitProvider].
type Telemetry struct {
	meters  *sdkmetric.MeterProvider
	tracers *sdktrace.TracerProvider

	once sync.Once
	err  error
}

// InitProvider installs global OpenTelemetry meter and tracer providers.
// Metrics are bridged to a Prometheus collector for the /metrics endpoint and
// W3C trace context becomes the global propagator.
func InitProvider(ctx context.Context, opts ...ProviderOption) (*Telemetry, error) {
	cfg := providerConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(ServiceName)}
	if cfg.version != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.version))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	var promOpts []promexporter.Option
	if cfg.registerer != nil {
		promOpts = append(promOpts, promexporter.WithRegisterer(cfg.registerer))
	}
	reader, err := promexporter.New(promOpts...)
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.spans != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.spans))
	}

	t := &Telemetry{
		meters:  sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader)),
		tracers: sdktrace.NewTracerProvider(tpOpts...),
	}
	otel.SetMeterProvider(t.meters)
	otel.SetTracerProvider(t.tracers)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return t, nil
}

// Shutdown flushes pending spans and stops both providers. Only the first
// call does any work; later calls return its result.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	t.once.Do(func() {
		t.err = errors.Join(t.tracers.Shutdown(ctx), t.meters.Shutdown(ctx))
	})
	return t.err
}
