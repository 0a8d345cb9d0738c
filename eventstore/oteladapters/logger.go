package oteladapters

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

const badKey = "!BADKEY"

// SlogBridgeLogger writes through the OpenTelemetry slog bridge, so every record carries the trace and
// span id of its context.
type SlogBridgeLogger struct {
	logger *slog.Logger
}

// NewSlogBridgeLogger creates a logger on the global LoggerProvider, unless an otelslog.WithLoggerProvider
// option says otherwise.
func NewSlogBridgeLogger(name string, options ...otelslog.Option) *SlogBridgeLogger {
	return &SlogBridgeLogger{logger: otelslog.NewLogger(name, options...)}
}

// Slog returns the underlying *slog.Logger.
func (l *SlogBridgeLogger) Slog() *slog.Logger {
	return l.logger
}

func (l *SlogBridgeLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *SlogBridgeLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *SlogBridgeLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *SlogBridgeLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *SlogBridgeLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.logger.DebugContext(ctx, msg, args...)
}

func (l *SlogBridgeLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.logger.InfoContext(ctx, msg, args...)
}

func (l *SlogBridgeLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.logger.WarnContext(ctx, msg, args...)
}

func (l *SlogBridgeLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.logger.ErrorContext(ctx, msg, args...)
}

var (
	_ eventstore.Logger           = (*SlogBridgeLogger)(nil)
	_ eventstore.ContextualLogger = (*SlogBridgeLogger)(nil)
)

// OTelLogger emits records with the OpenTelemetry log API directly. Arguments are read as slog-style
// key/value pairs or slog.Attr values and keep their type where the log API has one.
type OTelLogger struct {
	logger log.Logger
}

// NewOTelLogger creates an OTelLogger that emits to logger.
func NewOTelLogger(logger log.Logger) *OTelLogger {
	return &OTelLogger{logger: logger}
}

func (l *OTelLogger) Debug(msg string, args ...any) {
	l.emit(context.Background(), log.SeverityDebug, msg, args)
}

func (l *OTelLogger) Info(msg string, args ...any) {
	l.emit(context.Background(), log.SeverityInfo, msg, args)
}

func (l *OTelLogger) Warn(msg string, args ...any) {
	l.emit(context.Background(), log.SeverityWarn, msg, args)
}

func (l *OTelLogger) Error(msg string, args ...any) {
	l.emit(context.Background(), log.SeverityError, msg, args)
}

func (l *OTelLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityDebug, msg, args)
}

func (l *OTelLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityInfo, msg, args)
}

func (l *OTelLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityWarn, msg, args)
}

func (l *OTelLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityError, msg, args)
}

func (l *OTelLogger) emit(ctx context.Context, severity log.Severity, msg string, args []any) {
	var record log.Record
	record.SetTimestamp(time.Now())
	record.SetSeverity(severity)
	record.SetSeverityText(severity.String())
	record.SetBody(log.StringValue(msg))
	record.AddAttributes(keyValues(args)...)

	l.logger.Emit(ctx, record)
}

// keyValues follows the argument rules of slog: a slog.Attr stands for itself, a string key takes the
// next argument as its value and anything else is reported under !BADKEY.
func keyValues(args []any) []log.KeyValue {
	kvs := make([]log.KeyValue, 0, len(args)/2+1)

	for len(args) > 0 {
		switch head := args[0].(type) {
		case slog.Attr:
			kvs = append(kvs, log.KeyValue{Key: head.Key, Value: toLogValue(head.Value.Any())})
			args = args[1:]
		case string:
			if len(args) == 1 {
				kvs = append(kvs, log.String(badKey, head))
				return kvs
			}

			kvs = append(kvs, log.KeyValue{Key: head, Value: toLogValue(args[1])})
			args = args[2:]
		default:
			kvs = append(kvs, log.KeyValue{Key: badKey, Value: toLogValue(head)})
			args = args[1:]
		}
	}

	return kvs
}

func toLogValue(v any) log.Value {
	switch value := v.(type) {
	case string:
		return log.StringValue(value)
	case int:
		return log.IntValue(value)
	case int64:
		return log.Int64Value(value)
	case uint64:
		if value > math.MaxInt64 {
			return log.StringValue(fmt.Sprint(value))
		}

		return log.Int64Value(int64(value))
	case float64:
		return log.Float64Value(value)
	case bool:
		return log.BoolValue(value)
	case time.Duration:
		return log.StringValue(value.String())
	case error:
		return log.StringValue(value.Error())
	case nil:
		return log.Value{}
	default:
		return log.StringValue(slog.AnyValue(v).String())
	}
}

var (
	_ eventstore.Logger           = (*OTelLogger)(nil)
	_ eventstore.ContextualLogger = (*OTelLogger)(nil)
)
