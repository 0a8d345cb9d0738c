package redisengine

import (
	"context"
	"math"
	"time"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

const (
	logMsgSnapshotSaved        = "snapshot store operation: snapshot saved"
	logMsgSnapshotLoaded       = "snapshot store operation: snapshot loaded"
	logMsgStaleSnapshotIgnored = "snapshot store operation: newer snapshot already stored"
	logMsgSaveFailed           = "snapshot store operation: saving the snapshot failed"
	logMsgLoadFailed           = "snapshot store operation: loading the snapshot failed"
	logAttrError               = "error"
	logAttrAggregateID         = "aggregate_id"
	logAttrVersion             = "version"
	logAttrDurationMS          = "duration_ms"

	metricSaveDuration = "redis_snapshot_save_duration_seconds"
	metricLoadDuration = "redis_snapshot_load_duration_seconds"

	labelStatus   = "status"
	statusSuccess = "success"
	statusError   = "error"
)

func (s *settings) logDebug(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, msg, args...)
	}
}

func (s *settings) logOperation(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, msg, args...)
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

func (s *settings) recordDuration(ctx context.Context, metric string, duration time.Duration, status string) {
	if s.metricsCollector == nil {
		return
	}

	labels := map[string]string{labelStatus: status}

	if contextual, ok := s.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	s.metricsCollector.RecordDuration(metric, duration, labels)
}

func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
