package command

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

const (
	logMsgCommandStarted  = "command bus: command dispatched"
	logMsgCommandHandled  = "command bus: command handled"
	logMsgCommandFailed   = "command bus: command handler failed"
	logMsgHandlerNotFound = "command bus: no handler registered"
	logMsgHandlerReplaced = "command bus: handler replaced"
	logAttrError          = "error"
	logAttrErrorType      = "error_type"
	logAttrCommandType    = "command_type"
	logAttrCommandGoType  = "command_go_type"
	logAttrAggregateID    = "aggregate_id"
	logAttrAttempts       = "attempts"
	logAttrDurationMS     = "duration_ms"

	metricSendDuration      = "commandbus_send_duration_seconds"
	metricSendCalls         = "commandbus_send_calls_total"
	metricRetries           = "commandbus_retries_total"
	metricRetryDelay        = "commandbus_retry_delay_seconds"
	metricMaxRetriesReached = "commandbus_max_retries_reached_total"

	spanNameSend = "commandbus.send"

	labelCommandType    = "command_type"
	labelStatus         = "status"
	labelErrorType      = "error_type"
	labelAttemptNumber  = "attempt_number"
	labelFinalErrorType = "final_error_type"

	spanAttrCommandType = "command.type"
	spanAttrAggregateID = "aggregate.id"
	spanAttrAttempts    = "attempts"
	spanAttrErrorType   = "error_type"
	spanAttrRetryDelay  = "retry_delay_ms"

	statusSuccess = "success"
	statusError   = "error"

	errorTypeNone                = "none"
	errorTypeConcurrencyConflict = "concurrency_conflict"
	errorTypeHandlerNotFound     = "handler_not_found"
	errorTypeCanceled            = "context_canceled"
	errorTypeDeadlineExceeded    = "context_deadline_exceeded"
	errorTypeOther               = "other"
)

func (c *config) logDebug(ctx context.Context, msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}

	if c.contextualLogger != nil {
		c.contextualLogger.DebugContext(ctx, msg, args...)
	}
}

func (c *config) logOperation(ctx context.Context, msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}

	if c.contextualLogger != nil {
		c.contextualLogger.InfoContext(ctx, msg, args...)
	}
}

func (c *config) logWarn(ctx context.Context, msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}

	if c.contextualLogger != nil {
		c.contextualLogger.WarnContext(ctx, msg, args...)
	}
}

func (c *config) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if c.logger != nil {
		c.logger.Error(msg, allArgs...)
	}

	if c.contextualLogger != nil {
		c.contextualLogger.ErrorContext(ctx, msg, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

func (c *config) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if c.metricsCollector == nil {
		return
	}

	if contextual, ok := c.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	c.metricsCollector.RecordDuration(metric, duration, labels)
}

func (c *config) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if c.metricsCollector == nil {
		return
	}

	if contextual, ok := c.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	c.metricsCollector.IncrementCounter(metric, labels)
}

func (c *config) startSendSpan(ctx context.Context, cmd Command) (context.Context, eventstore.SpanContext) {
	if c.tracingCollector == nil {
		return ctx, nil
	}

	return c.tracingCollector.StartSpan(ctx, spanNameSend, map[string]string{
		spanAttrCommandType: cmd.CommandType(),
		spanAttrAggregateID: cmd.AggregateID().String(),
	})
}

func (c *config) finishSendSpan(span eventstore.SpanContext, status string, attrs map[string]string) {
	if span == nil {
		return
	}

	span.SetStatus(status)
	for key, value := range attrs {
		span.AddAttribute(key, value)
	}

	c.tracingCollector.FinishSpan(span, status, attrs)
}

func (c *config) recordSent(
	ctx context.Context,
	span eventstore.SpanContext,
	cmd Command,
	meta RetryMetadata,
	err error,
	duration time.Duration,
) {
	status := statusSuccess
	if err != nil {
		status = statusError
	}

	labels := map[string]string{labelCommandType: cmd.CommandType(), labelStatus: status}
	c.recordDuration(ctx, metricSendDuration, duration, labels)
	c.incrementCounter(ctx, metricSendCalls, labels)

	c.finishSendSpan(span, status, map[string]string{
		spanAttrAttempts:   strconv.Itoa(meta.Attempts),
		spanAttrErrorType:  meta.LastErrorType,
		spanAttrRetryDelay: strconv.FormatFloat(toMilliseconds(meta.TotalDelay), 'f', 3, 64),
	})

	if err != nil {
		c.logError(ctx, logMsgCommandFailed, err,
			logAttrCommandType, cmd.CommandType(),
			logAttrAggregateID, cmd.AggregateID().String(),
			logAttrErrorType, meta.LastErrorType,
			logAttrAttempts, meta.Attempts,
		)

		return
	}

	c.logOperation(ctx, logMsgCommandHandled,
		logAttrCommandType, cmd.CommandType(),
		logAttrAggregateID, cmd.AggregateID().String(),
		logAttrAttempts, meta.Attempts,
		logAttrDurationMS, toMilliseconds(duration),
	)
}

func (c *config) recordNotFound(ctx context.Context, cmd Command) {
	c.incrementCounter(ctx, metricSendCalls, map[string]string{labelCommandType: cmd.CommandType(), labelStatus: statusError})
	c.logWarn(ctx, logMsgHandlerNotFound, logAttrCommandType, cmd.CommandType())
}
