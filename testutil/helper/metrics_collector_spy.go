package helper

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// SpyMetricKind tells which collector method produced a SpyMetricRecord.
type SpyMetricKind int

const (
	SpyDuration SpyMetricKind = iota
	SpyCounter
	SpyValue
)

// SpyMetricRecord is one captured collector call. Duration and Value are only set for their kind.
type SpyMetricRecord struct {
	Kind     SpyMetricKind
	Metric   string
	Duration time.Duration
	Value    float64
	Labels   map[string]string
}

// MetricsCollectorSpy captures the calls of the repository, the stores and the command bus.
// It implements eventstore.ContextualMetricsCollector.
type MetricsCollectorSpy struct {
	mu      sync.Mutex
	records []SpyMetricRecord
}

func NewMetricsCollectorSpy() *MetricsCollectorSpy {
	return &MetricsCollectorSpy{}
}

func (s *MetricsCollectorSpy) capture(record SpyMetricRecord) {
	record.Labels = maps.Clone(record.Labels)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record)
}

func (s *MetricsCollectorSpy) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	s.capture(SpyMetricRecord{Kind: SpyDuration, Metric: metric, Duration: duration, Labels: labels})
}

func (s *MetricsCollectorSpy) IncrementCounter(metric string, labels map[string]string) {
	s.capture(SpyMetricRecord{Kind: SpyCounter, Metric: metric, Labels: labels})
}

func (s *MetricsCollectorSpy) RecordValue(metric string, value float64, labels map[string]string) {
	s.capture(SpyMetricRecord{Kind: SpyValue, Metric: metric, Value: value, Labels: labels})
}

func (s *MetricsCollectorSpy) RecordDurationContext(_ context.Context, metric string, duration time.Duration, labels map[string]string) {
	s.RecordDuration(metric, duration, labels)
}

func (s *MetricsCollectorSpy) IncrementCounterContext(_ context.Context, metric string, labels map[string]string) {
	s.IncrementCounter(metric, labels)
}

func (s *MetricsCollectorSpy) RecordValueContext(_ context.Context, metric string, value float64, labels map[string]string) {
	s.RecordValue(metric, value, labels)
}

// Records returns the captured calls of the given kind in call order.
func (s *MetricsCollectorSpy) Records(kind SpyMetricKind) []SpyMetricRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []SpyMetricRecord
	for _, record := range s.records {
		if record.Kind == kind {
			out = append(out, record)
		}
	}

	return out
}

func (s *MetricsCollectorSpy) GetDurationRecords() []SpyMetricRecord {
	return s.Records(SpyDuration)
}

// HasDurationRecord reports whether metric was recorded with the given "status" label.
func (s *MetricsCollectorSpy) HasDurationRecord(metric, status string) bool {
	return slices.ContainsFunc(s.Records(SpyDuration), func(r SpyMetricRecord) bool {
		return r.Metric == metric && r.Labels["status"] == status
	})
}

// CounterCount returns how often metric was incremented.
func (s *MetricsCollectorSpy) CounterCount(metric string) int {
	n := 0
	for _, r := range s.Records(SpyCounter) {
		if r.Metric == metric {
			n++
		}
	}

	return n
}

func (s *MetricsCollectorSpy) HasValueRecord(metric string, value float64) bool {
	return slices.ContainsFunc(s.Records(SpyValue), func(r SpyMetricRecord) bool {
		return r.Metric == metric && r.Value == value
	})
}

func (s *MetricsCollectorSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
}
