package oteladapters

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

const (
	unitSeconds        = "s"
	totalSuffix        = "_total"
	defaultDescription = "eventsourced aggregates measurement"
)

// descriptions of the metrics the repository, the command bus, the event bus and the stores record.
var descriptions = map[string]string{
	"repository_load_duration_seconds":          "Duration of loading an aggregate",
	"repository_save_duration_seconds":          "Duration of saving an aggregate",
	"repository_events_replayed":                "Events replayed by one load",
	"repository_events_saved":                   "Events appended by one save",
	"repository_concurrency_conflicts_total":    "Saves rejected because of a concurrency conflict",
	"repository_snapshots_saved_total":          "Snapshots taken after a save",
	"repository_snapshot_failures_total":        "Snapshots that could not be taken",
	"commandbus_send_duration_seconds":          "Duration of dispatching a command",
	"commandbus_retries_total":                  "Command handler retries after a concurrency conflict",
	"eventstore_events_appended_total":          "Events appended to the event store",
	"eventstore_concurrency_conflicts_total":    "Appends rejected by the event store",
	"eventbus_delivery_duration_seconds":        "Duration of delivering one event to one handler",
	"eventstore_snapshot_save_duration_seconds": "Duration of storing a snapshot",
}

// MetricsCollector records the metrics of this module with OpenTelemetry instruments, created on first use:
//   - RecordDuration records seconds into a Float64Histogram
//   - IncrementCounter adds one to an Int64Counter
//   - RecordValue adds to a Float64Counter when the name ends with "_total" and records a Float64Gauge otherwise
//
// It is safe for concurrent use.
type MetricsCollector struct {
	meter metric.Meter

	mu         sync.Mutex
	histograms map[string]metric.Float64Histogram
	counters   map[string]metric.Int64Counter
	sums       map[string]metric.Float64Counter
	gauges     map[string]metric.Float64Gauge
}

// NewMetricsCollector creates a MetricsCollector that creates its instruments with meter.
func NewMetricsCollector(meter metric.Meter) *MetricsCollector {
	return &MetricsCollector{
		meter:      meter,
		histograms: make(map[string]metric.Float64Histogram),
		counters:   make(map[string]metric.Int64Counter),
		sums:       make(map[string]metric.Float64Counter),
		gauges:     make(map[string]metric.Float64Gauge),
	}
}

func (m *MetricsCollector) RecordDuration(metricName string, duration time.Duration, labels map[string]string) {
	m.RecordDurationContext(context.Background(), metricName, duration, labels)
}

func (m *MetricsCollector) IncrementCounter(metricName string, labels map[string]string) {
	m.IncrementCounterContext(context.Background(), metricName, labels)
}

func (m *MetricsCollector) RecordValue(metricName string, value float64, labels map[string]string) {
	m.RecordValueContext(context.Background(), metricName, value, labels)
}

// RecordDurationContext records duration in seconds. Exemplars link it to the span in ctx.
func (m *MetricsCollector) RecordDurationContext(ctx context.Context, metricName string, duration time.Duration, labels map[string]string) {
	histogram, ok := instrument(m, m.histograms, metricName, func(name string) (metric.Float64Histogram, error) {
		return m.meter.Float64Histogram(name, metric.WithDescription(describe(name)), metric.WithUnit(unitSeconds))
	})
	if !ok {
		return
	}

	histogram.Record(ctx, duration.Seconds(), withAttributes(labels))
}

func (m *MetricsCollector) IncrementCounterContext(ctx context.Context, metricName string, labels map[string]string) {
	counter, ok := instrument(m, m.counters, metricName, func(name string) (metric.Int64Counter, error) {
		return m.meter.Int64Counter(name, metric.WithDescription(describe(name)))
	})
	if !ok {
		return
	}

	counter.Add(ctx, 1, withAttributes(labels))
}

func (m *MetricsCollector) RecordValueContext(ctx context.Context, metricName string, value float64, labels map[string]string) {
	if strings.HasSuffix(metricName, totalSuffix) {
		sum, ok := instrument(m, m.sums, metricName, func(name string) (metric.Float64Counter, error) {
			return m.meter.Float64Counter(name, metric.WithDescription(describe(name)))
		})
		if ok && value >= 0 {
			sum.Add(ctx, value, withAttributes(labels))
		}

		return
	}

	gauge, ok := instrument(m, m.gauges, metricName, func(name string) (metric.Float64Gauge, error) {
		return m.meter.Float64Gauge(name, metric.WithDescription(describe(name)))
	})
	if !ok {
		return
	}

	gauge.Record(ctx, value, withAttributes(labels))
}

// instrument returns the cached instrument for name or creates it. A meter that fails to create an
// instrument disables the metric; it is retried on the next call.
func instrument[I any](m *MetricsCollector, cache map[string]I, name string, create func(string) (I, error)) (I, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, found := cache[name]; found {
		return existing, true
	}

	var empty I

	if m.meter == nil {
		return empty, false
	}

	created, err := create(name)
	if err != nil {
		return empty, false
	}

	cache[name] = created

	return created, true
}

func describe(name string) string {
	if description, found := descriptions[name]; found {
		return description
	}

	return defaultDescription
}

func withAttributes(labels map[string]string) metric.MeasurementOption {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for key, value := range labels {
		attrs = append(attrs, attribute.String(key, value))
	}

	return metric.WithAttributes(attrs...)
}

var (
	_ eventstore.MetricsCollector           = (*MetricsCollector)(nil)
	_ eventstore.ContextualMetricsCollector = (*MetricsCollector)(nil)
)
