package repository

import (
	"errors"
	"time"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

var (
	// ErrNilEventStore is returned when no event store is supplied.
	ErrNilEventStore = errors.New("event store must not be nil")

	// ErrNilEventRegistry is returned when no event registry is supplied.
	ErrNilEventRegistry = errors.New("event registry must not be nil")

	// ErrNilFactory is returned when no aggregate factory is supplied.
	ErrNilFactory = errors.New("aggregate factory must not be nil")

	// ErrNilSnapshotStore is returned when WithSnapshots gets a nil snapshot store.
	ErrNilSnapshotStore = errors.New("snapshot store must not be nil")

	// ErrNilSnapshotPolicy is returned when WithSnapshots gets a nil policy.
	ErrNilSnapshotPolicy = errors.New("snapshot policy must not be nil")

	// ErrNilPublisher is returned when WithPublisher gets a nil publisher.
	ErrNilPublisher = errors.New("publisher must not be nil")

	// ErrAggregateNotSnapshottable is returned when snapshots are configured for an aggregate
	// that does not implement aggregate.Snapshotter.
	ErrAggregateNotSnapshottable = errors.New("aggregate does not implement aggregate.Snapshotter")
)

// Option defines a functional option for configuring a Repository.
type Option func(*config) error

type config struct {
	snapshotStore    eventstore.SnapshotStore
	snapshotPolicy   SnapshotPolicy
	publisher        Publisher
	now              func() time.Time
	logger           eventstore.Logger
	contextualLogger eventstore.ContextualLogger
	metricsCollector eventstore.MetricsCollector
	tracingCollector eventstore.TracingCollector
}

// WithSnapshots enables snapshots: Load starts from the latest snapshot in store, and Save takes
// a new one whenever policy asks for it.
func WithSnapshots(store eventstore.SnapshotStore, policy SnapshotPolicy) Option {
	return func(c *config) error {
		if store == nil {
			return ErrNilSnapshotStore
		}

		if policy == nil {
			return ErrNilSnapshotPolicy
		}

		c.snapshotStore = store
		c.snapshotPolicy = policy

		return nil
	}
}

// WithPublisher sets the publisher that receives the events of every successful save.
func WithPublisher(publisher Publisher) Option {
	return func(c *config) error {
		if publisher == nil {
			return ErrNilPublisher
		}

		c.publisher = publisher

		return nil
	}
}

// WithClock sets the clock for the creation date of snapshots.
func WithClock(now func() time.Time) Option {
	return func(c *config) error {
		c.now = now
		return nil
	}
}

// WithLogger sets the logger for the Repository.
//
// Debug level: replay details
// Info level: loaded and saved aggregates with versions and durations
// Warn level: snapshot failures, which do not fail the save
// Error level: failures returned to the caller.
func WithLogger(logger eventstore.Logger) Option {
	return func(c *config) error {
		c.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Repository.
func WithContextualLogger(logger eventstore.ContextualLogger) Option {
	return func(c *config) error {
		c.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Repository.
func WithMetrics(collector eventstore.MetricsCollector) Option {
	return func(c *config) error {
		c.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Repository.
func WithTracing(collector eventstore.TracingCollector) Option {
	return func(c *config) error {
		c.tracingCollector = collector
		return nil
	}
}
