package postgresengine

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

const (
	logMsgBuildSelectQueryFailed   = "failed to build select query"
	logMsgDBQueryFailed            = "database query execution failed"
	logMsgCloseRowsFailed          = "failed to close database rows"
	logMsgScanRowFailed            = "failed to scan database row"
	logMsgBuildStorableEventFailed = "failed to build storable event from database row"
	logMsgBuildInsertQueryFailed   = "failed to build insert query"
	logMsgDBExecFailed             = "database execution failed"
	logMsgRowsAffectedFailed       = "failed to get rows affected count"
	logMsgCreateSchemaFailed       = "failed to create the schema"
	logMsgSchemaCreated            = "schema created"
	logMsgEventsRead               = "eventstore operation: events read"
	logMsgEventsAppended           = "eventstore operation: events appended"
	logMsgConcurrencyConflict      = "eventstore operation: concurrency conflict detected"
	logMsgSnapshotSaved            = "snapshot store operation: snapshot saved"
	logMsgSnapshotLoaded           = "snapshot store operation: snapshot loaded"
	logMsgStaleSnapshotIgnored     = "snapshot store operation: newer snapshot already stored"
	logMsgSQLExecuted              = "executed sql for: "
	logAttrError                   = "error"
	logAttrQuery                   = "query"
	logAttrTable                   = "table"
	logAttrEventType               = "event_type"
	logAttrEventCount              = "event_count"
	logAttrDurationMS              = "duration_ms"
	logAttrAggregateID             = "aggregate_id"
	logAttrVersion                 = "version"
	logAttrExpectedVersion         = "expected_version"
	logAttrRowsAffected            = "rows_affected"
	logActionRead                  = "read"
	logActionAppend                = "append"
	logActionSnapshotSave          = "snapshot save"
	logActionSnapshotLoad          = "snapshot load"

	metricReadDuration         = "eventstore_read_duration_seconds"
	metricAppendDuration       = "eventstore_append_duration_seconds"
	metricEventsRead           = "eventstore_events_read_total"
	metricEventsAppended       = "eventstore_events_appended_total"
	metricConcurrencyConflicts = "eventstore_concurrency_conflicts_total"
	metricDatabaseErrors       = "eventstore_database_errors_total"
	metricSnapshotSaveDuration = "eventstore_snapshot_save_duration_seconds"
	metricSnapshotLoadDuration = "eventstore_snapshot_load_duration_seconds"

	spanNameRead         = "eventstore.read"
	spanNameAppend       = "eventstore.append"
	spanNameSnapshotSave = "eventstore.snapshot_save"
	spanNameSnapshotLoad = "eventstore.snapshot_load"

	spanAttrOperation       = "operation"
	spanAttrAggregateID     = "aggregate.id"
	spanAttrAfterVersion    = "after_version"
	spanAttrExpectedVersion = "expected_version"
	spanAttrEventCount      = "event_count"
	spanAttrRowsAffected    = "rows_affected"
	spanAttrErrorType       = "error_type"
	spanAttrFound           = "found"

	labelOperation    = "operation"
	labelStatus       = "status"
	labelErrorType    = "error_type"
	labelConflictType = "conflict_type"

	operationRead         = "read"
	operationAppend       = "append"
	operationSnapshotSave = "snapshot_save"
	operationSnapshotLoad = "snapshot_load"

	statusSuccess = "success"
	statusError   = "error"

	errorTypeBuildQuery          = "build_query"
	errorTypeDatabaseQuery       = "database_query"
	errorTypeDatabaseExec        = "database_exec"
	errorTypeRowScan             = "row_scan"
	errorTypeRowsAffected        = "rows_affected"
	errorTypeConcurrencyConflict = "concurrency_conflict"
)

// === Logging ===

// logQueryWithDuration logs SQL queries with execution time at debug level.
func (s *settings) logQueryWithDuration(ctx context.Context, sqlQuery string, action string, duration time.Duration) {
	s.logDebug(ctx, logMsgSQLExecuted+action, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
}

func (s *settings) logDebug(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, msg, args...)
	}
}

// logOperation logs operational information at info level.
func (s *settings) logOperation(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, msg, args...)
	}
}

func (s *settings) logWarn(ctx context.Context, msg string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if s.logger != nil {
		s.logger.Warn(msg, allArgs...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.WarnContext(ctx, msg, allArgs...)
	}
}

func (s *settings) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if s.logger != nil {
		s.logger.Error(msg, allArgs...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, msg, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// === Metrics ===

func (s *settings) recordDuration(ctx context.Context, metric string, duration time.Duration, operation, status string) {
	if s.metricsCollector == nil {
		return
	}

	labels := map[string]string{labelOperation: operation, labelStatus: status}

	if contextual, ok := s.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	s.metricsCollector.RecordDuration(metric, duration, labels)
}

func (s *settings) recordValue(ctx context.Context, metric string, value float64, operation string) {
	if s.metricsCollector == nil {
		return
	}

	labels := map[string]string{labelOperation: operation, labelStatus: statusSuccess}

	if contextual, ok := s.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.RecordValueContext(ctx, metric, value, labels)
		return
	}

	s.metricsCollector.RecordValue(metric, value, labels)
}

func (s *settings) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextual, ok := s.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	s.metricsCollector.IncrementCounter(metric, labels)
}

func (s *settings) recordDatabaseError(ctx context.Context, operation, errorType string) {
	s.incrementCounter(ctx, metricDatabaseErrors, map[string]string{
		labelOperation: operation,
		labelStatus:    statusError,
		labelErrorType: errorType,
	})
}

// metricsObserver records the metrics of one read or append.
type metricsObserver struct {
	s         *settings
	ctx       context.Context
	operation string
}

func (s *settings) startReadMetrics(ctx context.Context) *metricsObserver {
	return &metricsObserver{s: s, ctx: ctx, operation: operationRead}
}

func (s *settings) startAppendMetrics(ctx context.Context) *metricsObserver {
	return &metricsObserver{s: s, ctx: ctx, operation: operationAppend}
}

func (mo *metricsObserver) durationMetric() string {
	if mo.operation == operationRead {
		return metricReadDuration
	}

	return metricAppendDuration
}

func (mo *metricsObserver) recordSuccess(eventCount int, duration time.Duration) {
	mo.s.recordDuration(mo.ctx, mo.durationMetric(), duration, mo.operation, statusSuccess)

	if mo.operation == operationRead {
		mo.s.recordValue(mo.ctx, metricEventsRead, float64(eventCount), mo.operation)
		return
	}

	mo.s.recordValue(mo.ctx, metricEventsAppended, float64(eventCount), mo.operation)
}

func (mo *metricsObserver) recordError(errorType string, duration time.Duration) {
	mo.s.recordDuration(mo.ctx, mo.durationMetric(), duration, mo.operation, statusError)
	mo.s.recordDatabaseError(mo.ctx, mo.operation, errorType)
}

func (mo *metricsObserver) recordConcurrencyConflict() {
	mo.s.incrementCounter(mo.ctx, metricConcurrencyConflicts, map[string]string{
		labelOperation:    mo.operation,
		labelConflictType: "concurrency",
	})
}

// === Tracing ===

func (s *settings) startTraceSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, eventstore.SpanContext) {
	if s.tracingCollector == nil {
		return ctx, nil
	}

	return s.tracingCollector.StartSpan(ctx, name, attrs)
}

func (s *settings) finishTraceSpan(span eventstore.SpanContext, status string, attrs map[string]string) {
	if s.tracingCollector == nil || span == nil {
		return
	}

	span.SetStatus(status)
	for key, value := range attrs {
		span.AddAttribute(key, value)
	}

	s.tracingCollector.FinishSpan(span, status, attrs)
}

// tracingObserver encapsulates the span lifecycle of one read or append.
type tracingObserver struct {
	s    *settings
	span eventstore.SpanContext
}

func (s *settings) startReadTracing(ctx context.Context, aggregateID uuid.UUID, afterVersion uint64) (*tracingObserver, context.Context) {
	newCtx, span := s.startTraceSpan(ctx, spanNameRead, map[string]string{
		spanAttrOperation:    operationRead,
		spanAttrAggregateID:  aggregateID.String(),
		spanAttrAfterVersion: strconv.FormatUint(afterVersion, 10),
	})

	return &tracingObserver{s: s, span: span}, newCtx
}

func (s *settings) startAppendTracing(
	ctx context.Context,
	aggregateID uuid.UUID,
	expectedVersion uint64,
	eventCount int,
) (*tracingObserver, context.Context) {

	newCtx, span := s.startTraceSpan(ctx, spanNameAppend, map[string]string{
		spanAttrOperation:       operationAppend,
		spanAttrAggregateID:     aggregateID.String(),
		spanAttrExpectedVersion: strconv.FormatUint(expectedVersion, 10),
		spanAttrEventCount:      strconv.Itoa(eventCount),
	})

	return &tracingObserver{s: s, span: span}, newCtx
}

func (to *tracingObserver) finishSuccess(eventCount int) {
	to.s.finishTraceSpan(to.span, statusSuccess, map[string]string{spanAttrEventCount: strconv.Itoa(eventCount)})
}

func (to *tracingObserver) finishError(errorType string) {
	to.s.finishTraceSpan(to.span, statusError, map[string]string{spanAttrErrorType: errorType})
}

// === Combined paths ===

func (s *settings) observeConflict(
	ctx context.Context,
	tracer *tracingObserver,
	metrics *metricsObserver,
	aggregateID uuid.UUID,
	expectedVersion uint64,
	eventCount int,
	rowsAffected int64,
) {
	s.logOperation(ctx, logMsgConcurrencyConflict,
		logAttrAggregateID, aggregateID.String(),
		logAttrExpectedVersion, expectedVersion,
		logAttrEventCount, eventCount,
		logAttrRowsAffected, rowsAffected,
	)
	tracer.s.finishTraceSpan(tracer.span, statusError, map[string]string{
		spanAttrErrorType:    errorTypeConcurrencyConflict,
		spanAttrRowsAffected: strconv.FormatInt(rowsAffected, 10),
	})
	metrics.recordConcurrencyConflict()
}
