package helper

import (
	"context"
	"sync"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

// ContextualLoggerSpy captures the calls of components configured with WithContextualLogger,
// including the context each call was made with.
type ContextualLoggerSpy struct {
	mu      sync.Mutex
	records []SpyContextualLogRecord
}

// SpyContextualLogRecord is one captured call.
type SpyContextualLogRecord struct {
	Level   string
	Message string
	Args    []any
	Context context.Context
}

// Arg returns the value logged for key.
func (r SpyContextualLogRecord) Arg(key string) (any, bool) {
	for i := 0; i+1 < len(r.Args); i += 2 {
		if k, ok := r.Args[i].(string); ok && k == key {
			return r.Args[i+1], true
		}
	}

	return nil, false
}

// NewContextualLoggerSpy creates an empty spy.
func NewContextualLoggerSpy() *ContextualLoggerSpy {
	return &ContextualLoggerSpy{}
}

func (s *ContextualLoggerSpy) DebugContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "debug", msg, args)
}

func (s *ContextualLoggerSpy) InfoContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "info", msg, args)
}

func (s *ContextualLoggerSpy) WarnContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "warn", msg, args)
}

func (s *ContextualLoggerSpy) ErrorContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "error", msg, args)
}

func (s *ContextualLoggerSpy) record(ctx context.Context, level, msg string, args []any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, SpyContextualLogRecord{Level: level, Message: msg, Args: args, Context: ctx})
}

// Find returns the first record with the given level and message.
func (s *ContextualLoggerSpy) Find(level, message string) (SpyContextualLogRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.records {
		if record.Level == level && record.Message == message {
			return record, true
		}
	}

	return SpyContextualLogRecord{}, false
}

// Records returns a copy of all records.
func (s *ContextualLoggerSpy) Records() []SpyContextualLogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]SpyContextualLogRecord(nil), s.records...)
}

// Reset clears all records.
func (s *ContextualLoggerSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = s.records[:0]
}

var _ eventstore.ContextualLogger = (*ContextualLoggerSpy)(nil)
