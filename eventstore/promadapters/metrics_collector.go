package promadapters

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

const (
	logMsgMetricDropped = "prometheus adapter: observation dropped"
	logAttrMetric       = "metric"
	logAttrError        = "error"

	exemplarTraceID = "trace_id"
)

var (
	// ErrKindMismatch is logged when a metric name is used with another kind than on first use.
	ErrKindMismatch = errors.New("metric was first recorded as a different kind")

	// ErrNegativeCounterValue is logged when RecordValue adds a negative value to a "_total" counter.
	ErrNegativeCounterValue = errors.New("counter values must not be negative")
)

// DefaultBuckets are latency buckets in seconds.
var DefaultBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}

type kind int

const (
	kindHistogram kind = iota
	kindCounter
	kindGauge
)

func (k kind) String() string {
	return [...]string{"histogram", "counter", "gauge"}[k]
}

// vector is one registered metric. Its label names are fixed by the first observation.
type vector struct {
	kind      kind
	labels    []string
	histogram *prometheus.HistogramVec
	counter   *prometheus.CounterVec
	gauge     *prometheus.GaugeVec
}

func (v *vector) values(labels map[string]string) []string {
	values := make([]string, len(v.labels))
	for i, name := range v.labels {
		values[i] = labels[name]
	}

	return values
}

// MetricsCollector is safe for concurrent use.
type MetricsCollector struct {
	registerer prometheus.Registerer
	namespace  string
	buckets    []float64
	logger     eventstore.Logger

	mu      sync.Mutex
	vectors map[string]*vector
}

// Option configures a MetricsCollector.
type Option func(*MetricsCollector)

// WithNamespace prefixes every metric name with namespace and an underscore.
func WithNamespace(namespace string) Option {
	return func(c *MetricsCollector) { c.namespace = namespace }
}

// WithBuckets replaces DefaultBuckets for all histograms.
func WithBuckets(buckets ...float64) Option {
	return func(c *MetricsCollector) { c.buckets = slices.Clone(buckets) }
}

// WithLogger reports dropped observations, e.g. registration failures, at warn level.
func WithLogger(logger eventstore.Logger) Option {
	return func(c *MetricsCollector) { c.logger = logger }
}

// NewMetricsCollector registers its vectors in registerer, prometheus.DefaultRegisterer if nil.
func NewMetricsCollector(registerer prometheus.Registerer, options ...Option) *MetricsCollector {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	c := &MetricsCollector{
		registerer: registerer,
		buckets:    DefaultBuckets,
		vectors:    make(map[string]*vector),
	}

	for _, option := range options {
		option(c)
	}

	return c
}

func (c *MetricsCollector) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	c.RecordDurationContext(context.Background(), metric, duration, labels)
}

func (c *MetricsCollector) IncrementCounter(metric string, labels map[string]string) {
	c.IncrementCounterContext(context.Background(), metric, labels)
}

func (c *MetricsCollector) RecordValue(metric string, value float64, labels map[string]string) {
	c.RecordValueContext(context.Background(), metric, value, labels)
}

func (c *MetricsCollector) RecordDurationContext(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	v, ok := c.vector(metric, kindHistogram, labels)
	if !ok {
		return
	}

	observer, err := v.histogram.GetMetricWithLabelValues(v.values(labels)...)
	if err != nil {
		c.warn(metric, err)
		return
	}

	if exemplar, found := exemplarFrom(ctx); found {
		if eo, supported := observer.(prometheus.ExemplarObserver); supported {
			eo.ObserveWithExemplar(duration.Seconds(), exemplar)
			return
		}
	}

	observer.Observe(duration.Seconds())
}

func (c *MetricsCollector) IncrementCounterContext(ctx context.Context, metric string, labels map[string]string) {
	c.addToCounter(ctx, metric, 1, labels)
}

// RecordValueContext sets a gauge, or adds value to a counter if metric ends in "_total".
func (c *MetricsCollector) RecordValueContext(ctx context.Context, metric string, value float64, labels map[string]string) {
	if strings.HasSuffix(metric, "_total") {
		c.addToCounter(ctx, metric, value, labels)
		return
	}

	v, ok := c.vector(metric, kindGauge, labels)
	if !ok {
		return
	}

	gauge, err := v.gauge.GetMetricWithLabelValues(v.values(labels)...)
	if err != nil {
		c.warn(metric, err)
		return
	}

	gauge.Set(value)
}

func (c *MetricsCollector) addToCounter(ctx context.Context, metric string, value float64, labels map[string]string) {
	if value < 0 {
		c.warn(metric, ErrNegativeCounterValue)
		return
	}

	v, ok := c.vector(metric, kindCounter, labels)
	if !ok {
		return
	}

	counter, err := v.counter.GetMetricWithLabelValues(v.values(labels)...)
	if err != nil {
		c.warn(metric, err)
		return
	}

	add(ctx, counter, value)
}

func add(ctx context.Context, counter prometheus.Counter, value float64) {
	if exemplar, found := exemplarFrom(ctx); found {
		if ea, supported := counter.(prometheus.ExemplarAdder); supported {
			ea.AddWithExemplar(value, exemplar)
			return
		}
	}

	counter.Add(value)
}

func exemplarFrom(ctx context.Context) (prometheus.Labels, bool) {
	spanContext := trace.SpanContextFromContext(ctx)
	if !spanContext.IsValid() || !spanContext.IsSampled() {
		return nil, false
	}

	return prometheus.Labels{exemplarTraceID: spanContext.TraceID().String()}, true
}

// vector returns the vector registered for metric, creating it if needed. ok is false if the
// observation has to be dropped.
func (c *MetricsCollector) vector(metric string, k kind, labels map[string]string) (*vector, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, found := c.vectors[metric]; found {
		if v.kind != k {
			c.warn(metric, fmt.Errorf("%w: %s, not %s", ErrKindMismatch, v.kind, k))
			return nil, false
		}

		return v, true
	}

	v := &vector{kind: k, labels: slices.Sorted(maps.Keys(labels))}

	var collector prometheus.Collector

	switch k {
	case kindHistogram:
		v.histogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: c.namespace,
			Name:      metric,
			Help:      "Duration in seconds of " + strings.TrimSuffix(metric, "_duration_seconds") + ".",
			Buckets:   c.buckets,
		}, v.labels)
		collector = v.histogram
	case kindCounter:
		v.counter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      metric,
			Help:      "Count of " + strings.TrimSuffix(metric, "_total") + ".",
		}, v.labels)
		collector = v.counter
	case kindGauge:
		v.gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      metric,
			Help:      "Last recorded value of " + metric + ".",
		}, v.labels)
		collector = v.gauge
	}

	if err := c.registerer.Register(collector); err != nil {
		if !c.adoptExisting(v, err) {
			c.warn(metric, err)
			return nil, false
		}
	}

	c.vectors[metric] = v

	return v, true
}

// adoptExisting reuses a vector that was registered before, e.g. by another collector sharing the
// registerer.
func (c *MetricsCollector) adoptExisting(v *vector, err error) bool {
	var already prometheus.AlreadyRegisteredError
	if !errors.As(err, &already) {
		return false
	}

	var ok bool

	switch v.kind {
	case kindHistogram:
		v.histogram, ok = already.ExistingCollector.(*prometheus.HistogramVec)
	case kindCounter:
		v.counter, ok = already.ExistingCollector.(*prometheus.CounterVec)
	case kindGauge:
		v.gauge, ok = already.ExistingCollector.(*prometheus.GaugeVec)
	}

	return ok
}

func (c *MetricsCollector) warn(metric string, err error) {
	if c.logger != nil {
		c.logger.Warn(logMsgMetricDropped, logAttrMetric, metric, logAttrError, err.Error())
	}
}
