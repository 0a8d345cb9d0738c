package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/config"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore/oteladapters"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore/promadapters"
)

const instrumentationName = "bankdemo"

// observability holds the metrics and tracing adapters and the provider bridged log records go to.
// When disabled all fields are nil and every component skips metrics and tracing.
type observability struct {
	metrics     eventstore.MetricsCollector
	tracing     eventstore.TracingCollector
	logProvider log.LoggerProvider

	reader         *sdkmetric.ManualReader
	registry       *prometheus.Registry
	spans          *tracetest.InMemoryExporter
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
}

func newObservability(cfg config.ObservabilityConfig, logger *slog.Logger) *observability {
	if !cfg.Enabled {
		return &observability{}
	}

	spans := tracetest.NewInMemoryExporter()
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans))
	otel.SetTracerProvider(tracerProvider)

	obs := &observability{
		tracing:        oteladapters.NewTracingCollector(tracerProvider.Tracer(instrumentationName)),
		logProvider:    global.GetLoggerProvider(),
		spans:          spans,
		tracerProvider: tracerProvider,
	}

	if cfg.Metrics == config.MetricsPrometheus {
		obs.registry = prometheus.NewRegistry()
		obs.metrics = promadapters.NewMetricsCollector(obs.registry,
			promadapters.WithNamespace(instrumentationName),
			promadapters.WithLogger(logger),
		)

		return obs
	}

	obs.reader = sdkmetric.NewManualReader()
	obs.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(obs.reader))
	otel.SetMeterProvider(obs.meterProvider)
	obs.metrics = oteladapters.NewMetricsCollector(obs.meterProvider.Meter(instrumentationName))

	return obs
}

// contextualLogger returns logger, plus the OpenTelemetry slog bridge when observability is enabled.
func (o *observability) contextualLogger(logger *slog.Logger) eventstore.ContextualLogger {
	if o.logProvider == nil {
		return logger
	}

	bridge := oteladapters.NewSlogBridgeLogger(instrumentationName, otelslog.WithLoggerProvider(o.logProvider))

	return teeLogger{logger, bridge}
}

// teeLogger writes every record to all of its loggers.
type teeLogger []eventstore.ContextualLogger

func (t teeLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	for _, l := range t {
		l.DebugContext(ctx, msg, args...)
	}
}

func (t teeLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	for _, l := range t {
		l.InfoContext(ctx, msg, args...)
	}
}

func (t teeLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	for _, l := range t {
		l.WarnContext(ctx, msg, args...)
	}
}

func (t teeLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	for _, l := range t {
		l.ErrorContext(ctx, msg, args...)
	}
}

// metricNames returns the names of everything recorded so far.
func (o *observability) metricNames(ctx context.Context) ([]string, error) {
	var names []string

	switch {
	case o.registry != nil:
		families, err := o.registry.Gather()
		if err != nil {
			return nil, err
		}

		for _, family := range families {
			names = append(names, family.GetName())
		}
	case o.reader != nil:
		var collected metricdata.ResourceMetrics
		if err := o.reader.Collect(ctx, &collected); err != nil {
			return nil, err
		}

		for _, scope := range collected.ScopeMetrics {
			for _, m := range scope.Metrics {
				names = append(names, m.Name)
			}
		}
	}

	return names, nil
}

// shutdown logs a summary of what was recorded and shuts the providers down.
func (o *observability) shutdown(ctx context.Context, logger *slog.Logger) {
	if o.tracerProvider == nil {
		return
	}

	names, err := o.metricNames(ctx)
	if err != nil {
		logger.WarnContext(ctx, "collecting metrics failed", slog.String("error", err.Error()))
	}

	logger.InfoContext(ctx, "observability summary",
		slog.Int("spans", len(o.spans.GetSpans())),
		slog.Any("metrics", names),
	)

	if err := o.tracerProvider.Shutdown(ctx); err != nil {
		logger.WarnContext(ctx, "tracer provider shutdown failed", slog.String("error", err.Error()))
	}

	if o.meterProvider != nil {
		if err := o.meterProvider.Shutdown(ctx); err != nil {
			logger.WarnContext(ctx, "meter provider shutdown failed", slog.String("error", err.Error()))
		}
	}
}
