package redisengine

import (
	"errors"
	"time"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

const defaultKeyPrefix = "snapshot"

var (
	// ErrNilRedisClient is returned when the client passed to NewSnapshotStore is nil.
	ErrNilRedisClient = errors.New("redis client must not be nil")

	// ErrEmptyKeyPrefix is returned by WithKeyPrefix for an empty prefix.
	ErrEmptyKeyPrefix = errors.New("key prefix must not be empty")

	// ErrNegativeTTL is returned by WithTTL for a negative duration.
	ErrNegativeTTL = errors.New("snapshot ttl must not be negative")
)

// Option defines a functional option for configuring the SnapshotStore.
type Option func(*settings) error

type settings struct {
	keyPrefix        string
	ttl              time.Duration
	logger           eventstore.Logger
	contextualLogger eventstore.ContextualLogger
	metricsCollector eventstore.MetricsCollector
}

// WithKeyPrefix sets the prefix of the snapshot keys, "snapshot" by default.
func WithKeyPrefix(prefix string) Option {
	return func(s *settings) error {
		if prefix == "" {
			return ErrEmptyKeyPrefix
		}

		s.keyPrefix = prefix

		return nil
	}
}

// WithTTL lets snapshots expire ttl after they were last written. Zero, the default, keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) error {
		if ttl < 0 {
			return ErrNegativeTTL
		}

		s.ttl = ttl

		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger eventstore.Logger) Option {
	return func(s *settings) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger.
func WithContextualLogger(logger eventstore.ContextualLogger) Option {
	return func(s *settings) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector. It receives save and load durations.
func WithMetrics(collector eventstore.MetricsCollector) Option {
	return func(s *settings) error {
		s.metricsCollector = collector
		return nil
	}
}
