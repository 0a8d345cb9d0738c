package eventbus

import (
	"context"
	"time"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/aggregate"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

const (
	logMsgEventDelivered = "event bus: event delivered"
	logMsgHandlerFailed  = "event bus: event handler failed"
	logAttrError         = "error"
	logAttrEventType     = "event_type"
	logAttrAggregateID   = "aggregate_id"
	logAttrSequence      = "sequence"
	logAttrDurationMS    = "duration_ms"

	metricDeliveryDuration = "eventbus_delivery_duration_seconds"
	metricHandlerErrors    = "eventbus_handler_errors_total"

	labelEventType = "event_type"
	labelStatus    = "status"

	statusSuccess = "success"
	statusError   = "error"
)

// Option defines a functional option for configuring a Bus.
type Option func(*config) error

type config struct {
	middlewares      []Middleware
	logger           eventstore.Logger
	contextualLogger eventstore.ContextualLogger
	metricsCollector eventstore.MetricsCollector
}

// WithMiddleware wraps every handler subscribed afterwards. The first middleware is the outermost.
func WithMiddleware(middlewares ...Middleware) Option {
	return func(c *config) error {
		for _, mw := range middlewares {
			if mw == nil {
				return ErrNilMiddleware
			}
		}

		c.middlewares = append(c.middlewares, middlewares...)

		return nil
	}
}

// WithLogger sets the logger for the Bus.
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

// WithMetrics sets the metrics collector for the Bus.
func WithMetrics(collector eventstore.MetricsCollector) Option {
	return func(c *config) error {
		c.metricsCollector = collector
		return nil
	}
}

func (c *config) recordDelivery(ctx context.Context, event aggregate.DomainEvent, err error, duration time.Duration) {
	header := event.Header()
	args := []any{
		logAttrEventType, event.EventType(),
		logAttrAggregateID, header.AggregateID.String(),
		logAttrSequence, header.Sequence,
		logAttrDurationMS, float64(duration.Microseconds()) / 1000,
	}

	status := statusSuccess
	if err != nil {
		status = statusError
		args = append([]any{logAttrError, err.Error()}, args...)
	}

	if c.logger != nil {
		if err != nil {
			c.logger.Error(logMsgHandlerFailed, args...)
		} else {
			c.logger.Debug(logMsgEventDelivered, args...)
		}
	}

	if c.contextualLogger != nil {
		if err != nil {
			c.contextualLogger.ErrorContext(ctx, logMsgHandlerFailed, args...)
		} else {
			c.contextualLogger.DebugContext(ctx, logMsgEventDelivered, args...)
		}
	}

	if c.metricsCollector == nil {
		return
	}

	labels := map[string]string{labelEventType: event.EventType(), labelStatus: status}

	if contextual, ok := c.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metricDeliveryDuration, duration, labels)
		if err != nil {
			contextual.IncrementCounterContext(ctx, metricHandlerErrors, labels)
		}

		return
	}

	c.metricsCollector.RecordDuration(metricDeliveryDuration, duration, labels)
	if err != nil {
		c.metricsCollector.IncrementCounter(metricHandlerErrors, labels)
	}
}
