package main

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

type TelemetryConfig struct {
	LogHandler slog.Handler
	Meter      metric.Meter
	Tracer     trace.Tracer
	Metrics    struct {
		ErrorCounter    metric.Int64Counter
		RequestCounter  metric.Int64Counter
		VersionGauge    metric.Int64Gauge
		RequestDuration metric.Float64Histogram
		DBQueryDuration metric.Float64Histogram
	}
}

// setupTelemetry wires metrics, traces and logs. Metrics go to the
// Prometheus exporter unless OTLP is enabled, in which case all three
// signals ship over OTLP/HTTP.
func setupTelemetry(ctx context.Context, config *Config) (*TelemetryConfig, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNamespace("cinedis"),
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OTEL resource: %w", err)
	}

	meterProvider, err := setupMeterProvider(ctx, config, res)
	if err != nil {
		return nil, nil, err
	}
	logProvider, logHandler, err := setupLogProvider(ctx, config, res)
	if err != nil {
		return nil, nil, err
	}
	traceProvider, err := setupTraceProvider(ctx, config, res)
	if err != nil {
		return nil, nil, err
	}

	otel.SetMeterProvider(meterProvider)
	otel.SetTracerProvider(traceProvider)

	tc := &TelemetryConfig{
		LogHandler: logHandler,
		Meter:      meterProvider.Meter(config.ServiceName),
		Tracer:     traceProvider.Tracer(config.ServiceName),
	}
	initializeMetrics(tc.Meter, tc)

	cleanup := func(ctx context.Context) error {
		if err := meterProvider.Shutdown(ctx); err != nil {
			return err
		}
		if err := traceProvider.Shutdown(ctx); err != nil {
			return err
		}
		return logProvider.Shutdown(ctx)
	}
	return tc, cleanup, nil
}

func setupMeterProvider(ctx context.Context, config *Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	if !config.OTLP {
		exporter, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}
		return sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		), nil
	}

	exporter, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("failed to create OTEL metrics exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	), nil
}

func setupLogProvider(ctx context.Context, config *Config, res *resource.Resource) (*sdklog.LoggerProvider, slog.Handler, error) {
	exporter, err := otlploghttp.New(ctx,
		otlploghttp.WithCompression(otlploghttp.GzipCompression),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create log exporter: %w", err)
	}

	severity := minsev.SeverityInfo
	if config.LogDebug {
		severity = minsev.SeverityDebug
	}
	processor := minsev.NewLogProcessor(
		sdklog.NewBatchProcessor(exporter, sdklog.WithExportBufferSize(512)),
		severity,
	)

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(processor),
	)
	handler := otelslog.NewHandler(
		config.ServiceName,
		otelslog.WithLoggerProvider(provider),
	)
	return provider, handler, nil
}

func setupTraceProvider(ctx context.Context, config *Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case config.TraceSampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case config.TraceSampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		// Sampled parents stay sampled so traces don't lose spans
		// mid-request.
		sampler = sdktrace.ParentBased(
			sdktrace.TraceIDRatioBased(config.TraceSampleRate),
			sdktrace.WithRemoteParentSampled(sdktrace.AlwaysSample()),
			sdktrace.WithRemoteParentNotSampled(sdktrace.TraceIDRatioBased(config.TraceSampleRate)),
			sdktrace.WithLocalParentSampled(sdktrace.AlwaysSample()),
			sdktrace.WithLocalParentNotSampled(sdktrace.TraceIDRatioBased(config.TraceSampleRate)),
		)
	}

	config.Logger.Info("configured tracer with sampling",
		slog.Float64("rate", config.TraceSampleRate))

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(config.TraceMaxBatchSize),
		),
		sdktrace.WithSampler(sampler),
	), nil
}

func initializeMetrics(meter metric.Meter, tc *TelemetryConfig) {
	tc.Metrics.RequestCounter, _ = meter.Int64Counter(
		"http.server.request_count",
		metric.WithDescription("Number of HTTP requests received"),
	)
	tc.Metrics.ErrorCounter, _ = meter.Int64Counter(
		"http.server.error_count",
		metric.WithDescription("Number of HTTP requests that resulted in an error status"),
	)
	tc.Metrics.VersionGauge, _ = meter.Int64Gauge(
		"service.build_info",
		metric.WithDescription("Build information for the running binary"),
	)
	tc.Metrics.RequestDuration, _ = meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("Duration of HTTP requests"),
		metric.WithUnit("s"),
	)
	tc.Metrics.DBQueryDuration, _ = meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Duration of database queries"),
		metric.WithUnit("s"),
	)
}
