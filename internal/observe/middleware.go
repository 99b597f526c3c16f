package observe

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader carries the trace ID of every instrumented response.
const CorrelationHeader = "X-Correlation-ID"

// recorder remembers the status written by the wrapped handler.
type recorder struct {
	http.ResponseWriter
	status int
}

func (r *recorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *recorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// Middleware instruments the health and metrics endpoints. Each request
// continues the caller's W3C trace (or starts one), gets its trace ID echoed
// in [CorrelationHeader] and is timed into [Metrics.HTTPRequestDuration].
// Server errors log at warn; everything else at debug so scrapes stay quiet.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	tc := propagation.TraceContext{}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			ctx := tc.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(semconv.HTTPRequestMethodKey.String(r.Method), semconv.URLPath(r.URL.Path)),
			)
			defer span.End()

			if id := CorrelationID(ctx); id != "" {
				w.Header().Set(CorrelationHeader, id)
			}
			tc.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			rec := &recorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))

			elapsed := time.Since(began)
			status := rec.code()
			span.SetAttributes(semconv.HTTPResponseStatusCode(status))
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
				Attr("method", r.Method),
				Attr("path", r.URL.Path),
				Attr("code", strconv.Itoa(status)),
			))

			level := slog.LevelDebug
			if status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			WithSpan(ctx, nil).Log(ctx, level, "observe: http request",
				"method", r.Method, "path", r.URL.Path, "status", status, "duration", elapsed)
		})
	}
}
