package helper

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"sync"
)

// LogHandlerSpy is a slog.Handler that keeps every record. With echo set, records are also
// written to stdout as JSON, which helps when debugging a failing test.
type LogHandlerSpy struct {
	mu      sync.Mutex
	records []slog.Record
	echo    slog.Handler
}

func NewLogHandlerSpy(echo bool) *LogHandlerSpy {
	spy := &LogHandlerSpy{}
	if echo {
		spy.echo = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}

	return spy
}

func (s *LogHandlerSpy) Handle(ctx context.Context, record slog.Record) error {
	s.mu.Lock()
	s.records = append(s.records, record.Clone())
	s.mu.Unlock()

	if s.echo != nil {
		return s.echo.Handle(ctx, record)
	}

	return nil
}

func (s *LogHandlerSpy) Enabled(context.Context, slog.Level) bool { return true }
func (s *LogHandlerSpy) WithAttrs([]slog.Attr) slog.Handler       { return s }
func (s *LogHandlerSpy) WithGroup(string) slog.Handler            { return s }

func (s *LogHandlerSpy) GetRecordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}

func (s *LogHandlerSpy) GetRecords() []slog.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.records)
}

func (s *LogHandlerSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
}

func (s *LogHandlerSpy) HasDebugLogWithMessage(msg string) *SpyLogRecordMatcher {
	return s.match(slog.LevelDebug, msg)
}

func (s *LogHandlerSpy) HasInfoLogWithMessage(msg string) *SpyLogRecordMatcher {
	return s.match(slog.LevelInfo, msg)
}

func (s *LogHandlerSpy) HasWarnLogWithMessage(msg string) *SpyLogRecordMatcher {
	return s.match(slog.LevelWarn, msg)
}

func (s *LogHandlerSpy) HasErrorLogWithMessage(msg string) *SpyLogRecordMatcher {
	return s.match(slog.LevelError, msg)
}

func (s *LogHandlerSpy) match(level slog.Level, msg string) *SpyLogRecordMatcher {
	var candidates []slog.Record
	for _, record := range s.GetRecords() {
		if record.Level == level && record.Message == msg {
			candidates = append(candidates, record)
		}
	}

	return &SpyLogRecordMatcher{candidates: candidates}
}

// SpyLogRecordMatcher narrows the records with the level and message it was created for.
// Assert is true if at least one record satisfies every condition of the chain.
type SpyLogRecordMatcher struct {
	candidates []slog.Record
}

func (m *SpyLogRecordMatcher) where(cond func(slog.Attr) bool) *SpyLogRecordMatcher {
	m.candidates = slices.DeleteFunc(m.candidates, func(record slog.Record) bool {
		matched := false
		record.Attrs(func(attr slog.Attr) bool {
			matched = cond(attr)
			return !matched
		})

		return !matched
	})

	return m
}

func (m *SpyLogRecordMatcher) WithAttribute(key string) *SpyLogRecordMatcher {
	return m.where(func(attr slog.Attr) bool { return attr.Key == key })
}

// WithAttributeValue compares against the attribute's string form, so 4 matches "4".
func (m *SpyLogRecordMatcher) WithAttributeValue(key, value string) *SpyLogRecordMatcher {
	return m.where(func(attr slog.Attr) bool { return attr.Key == key && attr.Value.String() == value })
}

// WithDurationMS requires a non-negative numeric duration_ms.
func (m *SpyLogRecordMatcher) WithDurationMS() *SpyLogRecordMatcher {
	return m.where(func(attr slog.Attr) bool {
		if attr.Key != "duration_ms" {
			return false
		}

		switch attr.Value.Kind() {
		case slog.KindFloat64:
			return attr.Value.Float64() >= 0
		case slog.KindInt64:
			return attr.Value.Int64() >= 0
		default:
			return false
		}
	})
}

func (m *SpyLogRecordMatcher) WithEventCount() *SpyLogRecordMatcher {
	return m.WithAttribute("event_count")
}

func (m *SpyLogRecordMatcher) Assert() bool {
	return len(m.candidates) > 0
}
