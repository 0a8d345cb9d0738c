package promadapters_test

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore/promadapters"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/testutil/helper"
)

func Test_RecordDuration_ShouldObserve_AHistogramInSeconds(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	collector := promadapters.NewMetricsCollector(registry, promadapters.WithNamespace("bank"), promadapters.WithBuckets(0.3, 1))
	labels := map[string]string{"operation": "load", "status": "success"}

	// act
	collector.RecordDuration("repository_load_duration_seconds", 250*time.Millisecond, labels)
	collector.RecordDuration("repository_load_duration_seconds", 500*time.Millisecond, labels)

	// assert
	expected := `
# HELP bank_repository_load_duration_seconds Duration in seconds of repository_load.
# TYPE bank_repository_load_duration_seconds histogram
bank_repository_load_duration_seconds_bucket{operation="load",status="success",le="0.3"} 1
bank_repository_load_duration_seconds_bucket{operation="load",status="success",le="1"} 2
bank_repository_load_duration_seconds_bucket{operation="load",status="success",le="+Inf"} 2
bank_repository_load_duration_seconds_sum{operation="load",status="success"} 0.75
bank_repository_load_duration_seconds_count{operation="load",status="success"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "bank_repository_load_duration_seconds"))
}

func Test_IncrementCounter_And_RecordValue(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	collector := promadapters.NewMetricsCollector(registry)

	// act
	collector.IncrementCounter("repository_errors_total", map[string]string{"operation": "load", "error_type": "decode"})
	collector.IncrementCounter("repository_errors_total", map[string]string{"operation": "load", "error_type": "decode"})
	collector.RecordValue("repository_errors_total", 3, map[string]string{"operation": "save", "error_type": "encode"})
	collector.RecordValue("repository_events_saved", 4, map[string]string{"operation": "save", "status": "success"})
	collector.RecordValue("repository_events_saved", 2, map[string]string{"operation": "save", "status": "success"})

	// assert
	expected := `
# HELP repository_errors_total Count of repository_errors.
# TYPE repository_errors_total counter
repository_errors_total{error_type="decode",operation="load"} 2
repository_errors_total{error_type="encode",operation="save"} 3
# HELP repository_events_saved Last recorded value of repository_events_saved.
# TYPE repository_events_saved gauge
repository_events_saved{operation="save",status="success"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "repository_errors_total", "repository_events_saved"))
}

func Test_IncrementCounter_When_ALabelIsMissing(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	collector := promadapters.NewMetricsCollector(registry)

	// act
	collector.IncrementCounter("commandbus_send_total", map[string]string{"command_type": "OpenAccount", "status": "success"})
	collector.IncrementCounter("commandbus_send_total", map[string]string{"command_type": "OpenAccount", "extra": "dropped"})

	// assert
	expected := `
# HELP commandbus_send_total Count of commandbus_send.
# TYPE commandbus_send_total counter
commandbus_send_total{command_type="OpenAccount",status="success"} 1
commandbus_send_total{command_type="OpenAccount",status=""} 1
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "commandbus_send_total"))
}

func Test_Record_When_TheMetricWasFirstRecordedAsAnotherKind(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	logHandler := helper.NewLogHandlerSpy(false)
	collector := promadapters.NewMetricsCollector(registry, promadapters.WithLogger(slog.New(logHandler)))
	collector.IncrementCounter("eventbus_handled_total", nil)

	// act
	collector.RecordDuration("eventbus_handled_total", time.Second, nil)
	collector.RecordValue("eventbus_lag", -1, nil)
	collector.RecordValue("eventbus_dropped_total", -1, nil)

	// assert
	count, err := testutil.GatherAndCount(registry, "eventbus_handled_total", "eventbus_lag", "eventbus_dropped_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, logHandler.GetRecordCount())
	assert.True(t, logHandler.HasWarnLogWithMessage("prometheus adapter: observation dropped").
		WithAttributeValue("metric", "eventbus_handled_total").Assert())
	assert.True(t, logHandler.HasWarnLogWithMessage("prometheus adapter: observation dropped").
		WithAttributeValue("metric", "eventbus_dropped_total").Assert())
}

func Test_Collectors_SharingARegistry_ShouldUse_TheSameVectors(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	first := promadapters.NewMetricsCollector(registry)
	second := promadapters.NewMetricsCollector(registry)
	labels := map[string]string{"aggregate_type": "BankAccount"}

	// act
	first.IncrementCounter("repository_snapshots_saved_total", labels)
	second.IncrementCounter("repository_snapshots_saved_total", labels)

	// assert
	expected := `
# HELP repository_snapshots_saved_total Count of repository_snapshots_saved.
# TYPE repository_snapshots_saved_total counter
repository_snapshots_saved_total{aggregate_type="BankAccount"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "repository_snapshots_saved_total"))
}

func Test_IncrementCounterContext_ShouldAttach_TheTraceIDAsExemplar(t *testing.T) {
	// setup
	registry := prometheus.NewRegistry()
	collector := promadapters.NewMetricsCollector(registry)
	traceID := trace.TraceID{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x10}
	spanContext := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     trace.SpanID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanContext)

	// act
	collector.IncrementCounterContext(ctx, "repository_concurrency_conflicts_total", map[string]string{"operation": "save"})

	// assert
	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Len(t, families[0].GetMetric(), 1)

	exemplar := families[0].GetMetric()[0].GetCounter().GetExemplar()
	require.NotNil(t, exemplar)
	require.Len(t, exemplar.GetLabel(), 1)
	assert.Equal(t, "trace_id", exemplar.GetLabel()[0].GetName())
	assert.Equal(t, traceID.String(), exemplar.GetLabel()[0].GetValue())
}

func Test_Collector_Satisfies_TheContextualInterface(t *testing.T) {
	var collector eventstore.ContextualMetricsCollector = promadapters.NewMetricsCollector(prometheus.NewRegistry())

	assert.NotNil(t, collector)
}
