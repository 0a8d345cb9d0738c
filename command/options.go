package command

import (
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/identifier"
)

// Option defines a functional option for configuring a Bus.
type Option func(*config) error

type config struct {
	retryOptions     []RetryOption
	idGenerator      identifier.Generator
	logger           eventstore.Logger
	contextualLogger eventstore.ContextualLogger
	metricsCollector eventstore.MetricsCollector
	tracingCollector eventstore.TracingCollector
}

// WithRetry makes Send rerun a handler that failed with eventstore.ErrConcurrencyConflict.
// Without options the defaults of RetryWithExponentialBackoff apply.
func WithRetry(options ...RetryOption) Option {
	return func(c *config) error {
		if _, err := newBackoff(options); err != nil {
			return err
		}

		c.retryOptions = append([]RetryOption{}, options...)

		return nil
	}
}

// WithMessageIDGenerator sets the generator for the message ids of sent commands.
func WithMessageIDGenerator(generator identifier.Generator) Option {
	return func(c *config) error {
		c.idGenerator = generator
		return nil
	}
}

// WithLogger sets the logger for the Bus.
//
// Debug level: dispatched commands
// Info level: handled commands with duration and attempts
// Warn level: replaced handlers and commands without a handler
// Error level: handler failures.
func WithLogger(logger eventstore.Logger) Option {
	return func(c *config) error {
		c.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Bus.
func WithContextualLogger(logger eventstore.ContextualLogger) Option {
	return func(c *config) error {
		c.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Bus and its retries.
func WithMetrics(collector eventstore.MetricsCollector) Option {
	return func(c *config) error {
		c.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Bus.
func WithTracing(collector eventstore.TracingCollector) Option {
	return func(c *config) error {
		c.tracingCollector = collector
		return nil
	}
}
