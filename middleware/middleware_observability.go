package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// ObservabilityConfig wires the tracer, meter instruments and logger used
// by the observability middleware. Nil instruments are skipped.
type ObservabilityConfig struct {
	ServiceName     string
	Logger          *slog.Logger
	Tracer          trace.Tracer
	Meter           metric.Meter
	RequestCounter  metric.Int64Counter
	RequestDuration metric.Float64Histogram
	ErrorCounter    metric.Int64Counter
	ActiveRequests  metric.Int64UpDownCounter
	SampleRate      float64
}

// newObservabilityMiddleware traces each request, records request metrics
// keyed by a normalized route pattern, and logs start/completion lines.
func newObservabilityMiddleware(config *ObservabilityConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := getOrCreateRequestContext(r.Context())

			ctx, span := config.Tracer.Start(r.Context(),
				fmt.Sprintf("%s %s", r.Method, r.URL.Path),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPMethodKey.String(r.Method),
					semconv.HTTPTargetKey.String(r.URL.Path),
					attribute.String("http.host", r.Host),
					attribute.String("http.user_agent", r.UserAgent()),
					attribute.Int64("http.request_content_length", r.ContentLength),
				),
			)
			defer span.End()

			if spanCtx := span.SpanContext(); spanCtx.IsValid() {
				rc.TraceID = spanCtx.TraceID().String()
			}

			wrapped := newResponseWriter(w)

			if config.ActiveRequests != nil {
				config.ActiveRequests.Add(ctx, 1)
				defer config.ActiveRequests.Add(ctx, -1)
			}

			logged := config.Logger != nil && config.SampleRate > 0
			if logged {
				config.Logger.InfoContext(ctx, "request_started",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
					slog.String("request_id", rc.RequestID),
					slog.String("trace_id", rc.TraceID),
				)
			}

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			duration := time.Since(rc.StartTime)
			status := wrapped.Status()

			attrs := []attribute.KeyValue{
				attribute.String("method", r.Method),
				attribute.String("route", routePattern(r.URL.Path)),
				attribute.Int("status_code", status),
				attribute.String("status_class", fmt.Sprintf("%dxx", status/100)),
			}
			if config.RequestCounter != nil {
				config.RequestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
			}
			if config.RequestDuration != nil {
				config.RequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
			}
			if status >= 400 && config.ErrorCounter != nil {
				errorAttrs := append(attrs, attribute.String("error_type", errorType(status)))
				config.ErrorCounter.Add(ctx, 1, metric.WithAttributes(errorAttrs...))
			}

			span.SetAttributes(
				semconv.HTTPStatusCodeKey.Int(status),
				attribute.Int64("http.response_content_length", wrapped.BytesWritten()),
			)
			if status >= 400 {
				span.SetStatus(codes.Error, http.StatusText(status))
			} else {
				span.SetStatus(codes.Ok, "")
			}

			if logged {
				level := slog.LevelInfo
				switch {
				case status >= 500:
					level = slog.LevelError
				case status >= 400:
					level = slog.LevelWarn
				}
				config.Logger.LogAttrs(ctx, level, "request_completed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("request_id", rc.RequestID),
					slog.String("trace_id", rc.TraceID),
					slog.Int("status", status),
					slog.Int64("bytes_written", wrapped.BytesWritten()),
					slog.Duration("duration", duration),
				)
			}
		})
	}
}

// routePattern collapses path ids into placeholders so metric label
// cardinality stays bounded.
func routePattern(path string) string {
	prefixes := []struct {
		prefix  string
		pattern string
	}{
		{"/api/topics/", "/api/topics/{id}"},
		{"/api/posts/", "/api/posts/{id}"},
		{"/api/titles/movie/", "/api/titles/movie/{id}"},
		{"/api/titles/tv/", "/api/titles/tv/{id}"},
	}
	for _, p := range prefixes {
		if !strings.HasPrefix(path, p.prefix) {
			continue
		}
		rest := path[len(p.prefix):]
		if idx := strings.Index(rest, "/"); idx > 0 {
			return p.pattern + rest[idx:]
		}
		return p.pattern
	}
	return path
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	case http.StatusBadGateway:
		return "bad_gateway"
	}
	if status < 500 {
		return "client_error"
	}
	return "server_error"
}

// loggingMiddleware attaches a request-scoped logger to the context and
// writes one completion line per request.
func loggingMiddleware(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := getOrCreateRequestContext(r.Context())
			wrapped := newResponseWriter(w)

			requestLogger := logger.With(
				slog.String("request_id", rc.RequestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			ctx := context.WithValue(r.Context(), contextKey("logger"), requestLogger)

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			requestLogger.InfoContext(ctx, "request_completed",
				slog.Int("status", wrapped.Status()),
				slog.Duration("duration", time.Since(rc.StartTime)),
				slog.Int64("bytes", wrapped.BytesWritten()),
			)
		})
	}
}

// getLogger returns the request-scoped logger, falling back to the
// process default outside a request.
func getLogger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey("logger")).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
