// Package oteladapters connects the dependency-free observability interfaces of the eventstore package
// to OpenTelemetry.
//
// Wire them into the repository, the command bus and the stores through their WithMetrics, WithTracing
// and WithContextualLogger options:
//
//	metrics := oteladapters.NewMetricsCollector(otel.Meter("bank"))
//	tracing := oteladapters.NewTracingCollector(otel.Tracer("bank"))
//	logger := oteladapters.NewSlogBridgeLogger("bank")
//
// The slog bridge logger correlates log records with the active span of the context.
package oteladapters
