package repository

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/aggregate"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

const (
	logMsgAggregateLoaded     = "repository operation: aggregate loaded"
	logMsgAggregateSaved      = "repository operation: aggregate saved"
	logMsgLoadFailed          = "repository operation: loading the aggregate failed"
	logMsgSaveFailed          = "repository operation: saving the aggregate failed"
	logMsgConcurrencyConflict = "repository operation: concurrency conflict detected"
	logMsgSnapshotFailed      = "repository operation: taking a snapshot failed"
	logMsgSnapshotRestored    = "repository operation: aggregate restored from snapshot"
	logMsgPublishingFailed    = "repository operation: publishing committed events failed"
	logMsgUnknownEventType    = "repository operation: unknown event type replayed"
	logAttrError              = "error"
	logAttrErrorType          = "error_type"
	logAttrAggregateID        = "aggregate_id"
	logAttrAggregateType      = "aggregate_type"
	logAttrVersion            = "version"
	logAttrExpectedVersion    = "expected_version"
	logAttrSnapshotVersion    = "snapshot_version"
	logAttrSnapshotTaken      = "snapshot_taken"
	logAttrEventsReplayed     = "events_replayed"
	logAttrEventCount         = "event_count"
	logAttrEventType          = "event_type"
	logAttrSequence           = "sequence"
	logAttrDurationMS         = "duration_ms"

	metricLoadDuration         = "repository_load_duration_seconds"
	metricSaveDuration         = "repository_save_duration_seconds"
	metricEventsReplayed       = "repository_events_replayed"
	metricEventsSaved          = "repository_events_saved"
	metricErrors               = "repository_errors_total"
	metricConcurrencyConflicts = "repository_concurrency_conflicts_total"
	metricSnapshotsSaved       = "repository_snapshots_saved_total"
	metricSnapshotFailures     = "repository_snapshot_failures_total"

	spanNameLoad = "repository.load"
	spanNameSave = "repository.save"

	labelOperation     = "operation"
	labelStatus        = "status"
	labelErrorType     = "error_type"
	labelAggregateType = "aggregate_type"

	spanAttrAggregateID     = "aggregate.id"
	spanAttrAggregateType   = "aggregate.type"
	spanAttrVersion         = "aggregate.version"
	spanAttrExpectedVersion = "aggregate.expected_version"
	spanAttrEventCount      = "event_count"
	spanAttrFromSnapshot    = "from_snapshot"
	spanAttrSnapshotTaken   = "snapshot_taken"
	spanAttrErrorType       = "error_type"

	operationLoad = "load"
	operationSave = "save"

	statusSuccess = "success"
	statusError   = "error"

	errorTypeNotFound            = "aggregate_not_found"
	errorTypeSnapshotLoad        = "snapshot_load"
	errorTypeEventStore          = "event_store"
	errorTypeDecode              = "decode"
	errorTypeReplay              = "replay"
	errorTypeEncode              = "encode"
	errorTypeConcurrencyConflict = "concurrency_conflict"
)

// === Logging ===

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

func (c *config) logWarn(ctx context.Context, msg string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if c.logger != nil {
		c.logger.Warn(msg, allArgs...)
	}

	if c.contextualLogger != nil {
		c.contextualLogger.WarnContext(ctx, msg, allArgs...)
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

// === Metrics ===

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

func (c *config) recordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if c.metricsCollector == nil {
		return
	}

	if contextual, ok := c.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.RecordValueContext(ctx, metric, value, labels)
		return
	}

	c.metricsCollector.RecordValue(metric, value, labels)
}

// metricsObserver records the metrics of one load or save.
type metricsObserver struct {
	c         *config
	ctx       context.Context
	operation string
}

func (c *config) startMetrics(ctx context.Context, operation string) *metricsObserver {
	return &metricsObserver{c: c, ctx: ctx, operation: operation}
}

func (mo *metricsObserver) durationMetric() string {
	if mo.operation == operationLoad {
		return metricLoadDuration
	}

	return metricSaveDuration
}

func (mo *metricsObserver) recordLoadSuccess(eventsReplayed int, duration time.Duration) {
	labels := map[string]string{labelOperation: mo.operation, labelStatus: statusSuccess}
	mo.c.recordDuration(mo.ctx, metricLoadDuration, duration, labels)
	mo.c.recordValue(mo.ctx, metricEventsReplayed, float64(eventsReplayed), labels)
}

func (mo *metricsObserver) recordSaveSuccess(eventCount int, duration time.Duration) {
	labels := map[string]string{labelOperation: mo.operation, labelStatus: statusSuccess}
	mo.c.recordDuration(mo.ctx, metricSaveDuration, duration, labels)
	mo.c.recordValue(mo.ctx, metricEventsSaved, float64(eventCount), labels)
}

func (mo *metricsObserver) recordError(errorType string, duration time.Duration) {
	mo.c.recordDuration(mo.ctx, mo.durationMetric(), duration, map[string]string{labelOperation: mo.operation, labelStatus: statusError})
	mo.c.incrementCounter(mo.ctx, metricErrors, map[string]string{labelOperation: mo.operation, labelErrorType: errorType})
}

func (mo *metricsObserver) recordConcurrencyConflict(duration time.Duration) {
	mo.c.recordDuration(mo.ctx, mo.durationMetric(), duration, map[string]string{labelOperation: mo.operation, labelStatus: statusError})
	mo.c.incrementCounter(mo.ctx, metricConcurrencyConflicts, map[string]string{labelOperation: mo.operation})
}

// === Tracing ===

// tracingObserver encapsulates the span lifecycle of one load or save.
type tracingObserver struct {
	c    *config
	span eventstore.SpanContext
}

func (c *config) startTraceSpan(ctx context.Context, name string, attrs map[string]string) (*tracingObserver, context.Context) {
	if c.tracingCollector == nil {
		return &tracingObserver{c: c}, ctx
	}

	newCtx, span := c.tracingCollector.StartSpan(ctx, name, attrs)

	return &tracingObserver{c: c, span: span}, newCtx
}

func (c *config) startLoadTracing(ctx context.Context, id uuid.UUID) (*tracingObserver, context.Context) {
	return c.startTraceSpan(ctx, spanNameLoad, map[string]string{
		spanAttrAggregateID: id.String(),
	})
}

func (c *config) startSaveTracing(ctx context.Context, agg aggregate.Aggregate, expectedVersion uint64, eventCount int) (*tracingObserver, context.Context) {
	return c.startTraceSpan(ctx, spanNameSave, map[string]string{
		spanAttrAggregateID:     agg.ID().String(),
		spanAttrAggregateType:   agg.AggregateType(),
		spanAttrExpectedVersion: strconv.FormatUint(expectedVersion, 10),
		spanAttrEventCount:      strconv.Itoa(eventCount),
	})
}

func (to *tracingObserver) finish(status string, attrs map[string]string) {
	if to.span == nil {
		return
	}

	to.span.SetStatus(status)
	for key, value := range attrs {
		to.span.AddAttribute(key, value)
	}

	to.c.tracingCollector.FinishSpan(to.span, status, attrs)
}

func (to *tracingObserver) finishLoadSuccess(version uint64, eventsReplayed int, fromSnapshot bool) {
	to.finish(statusSuccess, map[string]string{
		spanAttrVersion:      strconv.FormatUint(version, 10),
		spanAttrEventCount:   strconv.Itoa(eventsReplayed),
		spanAttrFromSnapshot: strconv.FormatBool(fromSnapshot),
	})
}

func (to *tracingObserver) finishSaveSuccess(version uint64, snapshotTaken bool) {
	to.finish(statusSuccess, map[string]string{
		spanAttrVersion:       strconv.FormatUint(version, 10),
		spanAttrSnapshotTaken: strconv.FormatBool(snapshotTaken),
	})
}

func (to *tracingObserver) finishError(errorType string) {
	to.finish(statusError, map[string]string{spanAttrErrorType: errorType})
}

// === Combined failure paths ===

func (c *config) observeLoadError(
	ctx context.Context,
	tracer *tracingObserver,
	metrics *metricsObserver,
	id uuid.UUID,
	errorType string,
	err error,
	duration time.Duration,
) {
	tracer.finishError(errorType)
	metrics.recordError(errorType, duration)
	c.logError(ctx, logMsgLoadFailed, err, logAttrAggregateID, id.String(), logAttrErrorType, errorType)
}

func (c *config) observeSaveError(
	ctx context.Context,
	tracer *tracingObserver,
	metrics *metricsObserver,
	agg aggregate.Aggregate,
	errorType string,
	err error,
	duration time.Duration,
) {
	tracer.finishError(errorType)
	metrics.recordError(errorType, duration)
	c.logError(ctx, logMsgSaveFailed, err,
		logAttrAggregateID, agg.ID().String(),
		logAttrAggregateType, agg.AggregateType(),
		logAttrErrorType, errorType,
	)
}

func (c *config) observeConflict(
	ctx context.Context,
	tracer *tracingObserver,
	metrics *metricsObserver,
	agg aggregate.Aggregate,
	expectedVersion uint64,
	duration time.Duration,
) {
	tracer.finishError(errorTypeConcurrencyConflict)
	metrics.recordConcurrencyConflict(duration)
	c.logOperation(ctx, logMsgConcurrencyConflict,
		logAttrAggregateID, agg.ID().String(),
		logAttrAggregateType, agg.AggregateType(),
		logAttrExpectedVersion, expectedVersion,
	)
}

func (c *config) observeSnapshotFailure(ctx context.Context, agg aggregate.Aggregate, err error) {
	c.incrementCounter(ctx, metricSnapshotFailures, map[string]string{labelAggregateType: agg.AggregateType()})
	c.logWarn(ctx, logMsgSnapshotFailed, err,
		logAttrAggregateID, agg.ID().String(),
		logAttrAggregateType, agg.AggregateType(),
		logAttrVersion, agg.Version(),
	)
}
