// Package promadapters implements eventstore.ContextualMetricsCollector with the Prometheus client.
//
// Vectors are created and registered on first use of a metric name:
//
//	registry := prometheus.NewRegistry()
//	metrics := promadapters.NewMetricsCollector(registry, promadapters.WithNamespace("bank"))
//	repo, err := repository.NewRepository(store, registry, factory, repository.WithMetrics(metrics))
//
// Durations become histograms in seconds, IncrementCounter a counter and RecordValue a gauge, or a
// counter for names ending in "_total". Observations made with a context that carries a sampled
// OpenTelemetry span are stored with the trace id as exemplar.
package promadapters
