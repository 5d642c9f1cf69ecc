package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"blogapi/internal/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const requestLoggerKey ctxKey = iota

// RequestLogger returns the trace-scoped logger Observability stored for
// this request, or fallback when the request never passed through it.
func RequestLogger(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(requestLoggerKey).(*slog.Logger); ok {
		return l
	}
	return fallback
}

// Observability opens a server span per request, hands the client a trace
// ID it can quote back, and records request metrics. Metric and span
// attributes use the matched route pattern, not the raw URL, so query
// strings and unmatched paths cannot blow up cardinality.
func Observability(tracer trace.Tracer, metrics *telemetry.Metrics, logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := uuid.Must(uuid.NewV7()).String()

			ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.user_agent", r.Header.Get("User-Agent")),
					attribute.String("trace.id", traceID),
				),
			)
			defer span.End()

			w.Header().Set("X-Trace-ID", traceID)

			reqLogger := logger.With(
				"trace_id", traceID,
				"span_id", span.SpanContext().SpanID().String(),
			)
			ctx = context.WithValue(ctx, requestLoggerKey, reqLogger)

			metrics.HTTPActiveRequests.Add(ctx, 1)
			defer metrics.HTTPActiveRequests.Add(ctx, -1)

			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			r = r.WithContext(ctx)
			next.ServeHTTP(wrapped, r)

			// the mux fills in Pattern during dispatch; requests nothing
			// matched keep the raw path
			route := r.Pattern
			if route == "" {
				route = r.URL.Path
			}

			durationMs := float64(time.Since(start).Milliseconds())

			span.SetName(route)
			if wrapped.status >= 400 {
				span.SetStatus(codes.Error, http.StatusText(wrapped.status))
			} else {
				span.SetStatus(codes.Ok, "OK")
			}
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.status_code", wrapped.status),
				attribute.Float64("http.duration_ms", durationMs),
			)

			attrs := metric.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.Int("http.status_code", wrapped.status),
			)
			metrics.HTTPRequestsTotal.Add(ctx, 1, attrs)
			metrics.HTTPRequestDuration.Record(ctx, durationMs, attrs)

			reqLogger.Info("request completed",
				"method", r.Method,
				"route", route,
				"status", wrapped.status,
				"duration_ms", durationMs,
			)
		})
	}
}

// statusRecorder remembers the first status code written so the
// middleware can attach it to span and metrics after the handler ran.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
