package postgresengine

import (
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

// Option defines a functional option for configuring the EventStore and the SnapshotStore.
type Option func(*settings) error

type settings struct {
	eventTableName    string
	snapshotTableName string
	logger            eventstore.Logger
	contextualLogger  eventstore.ContextualLogger
	metricsCollector  eventstore.MetricsCollector
	tracingCollector  eventstore.TracingCollector
}

func newSettings(options []Option) (settings, error) {
	s := settings{
		eventTableName:    defaultEventTableName,
		snapshotTableName: defaultSnapshotTableName,
	}

	for _, option := range options {
		if err := option(&s); err != nil {
			return settings{}, err
		}
	}

	return s, nil
}

// WithTableName sets the name of the events table.
func WithTableName(tableName string) Option {
	return func(s *settings) error {
		if tableName == "" {
			return eventstore.ErrEmptyEventsTableName
		}

		s.eventTableName = tableName

		return nil
	}
}

// WithSnapshotTableName sets the name of the snapshots table.
func WithSnapshotTableName(tableName string) Option {
	return func(s *settings) error {
		if tableName == "" {
			return eventstore.ErrEmptySnapshotsTableName
		}

		s.snapshotTableName = tableName

		return nil
	}
}

// WithLogger sets the logger.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL queries with execution timing (development use)
// Info level: Event counts, durations, concurrency conflicts (production-safe)
// Warn level: Non-critical issues like cleanup failures
// Error level: Critical failures that cause operation failures.
func WithLogger(logger eventstore.Logger) Option {
	return func(s *settings) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger.
// The contextual logger will receive log messages with context information including
// automatic trace/span correlation when tracing is enabled.
func WithContextualLogger(logger eventstore.ContextualLogger) Option {
	return func(s *settings) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector.
// It receives read/append/snapshot durations, event counts, concurrency conflicts, and database errors.
func WithMetrics(collector eventstore.MetricsCollector) Option {
	return func(s *settings) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector.
// It receives one span per read, append, snapshot save and snapshot load.
func WithTracing(collector eventstore.TracingCollector) Option {
	return func(s *settings) error {
		s.tracingCollector = collector
		return nil
	}
}
