package command

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

// Validation errors of the retry options.
var (
	ErrInvalidMaxAttempts  = errors.New("max attempts must be positive")
	ErrNegativeBaseDelay   = errors.New("base delay must not be negative")
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

// RetryableFunc is one attempt of a retried call.
type RetryableFunc func(ctx context.Context) error

// RetryMetadata describes how a retried call went.
type RetryMetadata struct {
	Attempts      int
	TotalDelay    time.Duration
	LastErrorType string
}

// RetryOption configures RetryWithExponentialBackoff.
type RetryOption func(*backoff) error

// backoff is the retry schedule: no delay before the first attempt, then base, 2*base, 4*base and
// so on, each stretched by a random share of up to jitter.
type backoff struct {
	attempts int
	base     time.Duration
	jitter   float64

	commandType string
	metrics     *config
}

func newBackoff(options []RetryOption) (*backoff, error) {
	b := &backoff{attempts: 6, base: 10 * time.Millisecond, jitter: 0.3, metrics: &config{}}

	for _, option := range options {
		if err := option(b); err != nil {
			return nil, err
		}
	}

	return b, nil
}

func (b *backoff) delayBefore(attempt int) time.Duration {
	if attempt == 0 {
		return 0
	}

	delay := b.base << (attempt - 1)

	return delay + time.Duration(rand.Float64()*b.jitter*float64(delay)) //nolint:gosec // jitter needs no crypto rand
}

// RetryWithExponentialBackoff calls fn until it succeeds, fails with something other than
// eventstore.ErrConcurrencyConflict, or the attempts are used up. With the defaults fn runs up to
// six times, after waits of 10, 20, 40, 80 and 160 ms plus up to 30% jitter.
//
// A canceled or expired ctx ends the waiting and is returned as is.
func RetryWithExponentialBackoff(ctx context.Context, fn RetryableFunc, options ...RetryOption) (RetryMetadata, error) {
	b, err := newBackoff(options)
	if err != nil {
		return RetryMetadata{}, err
	}

	meta := RetryMetadata{LastErrorType: errorTypeNone}

	for attempt := range b.attempts {
		if delay := b.delayBefore(attempt); delay > 0 {
			b.metrics.recordDuration(ctx, metricRetryDelay, delay, b.labels(labelAttemptNumber, strconv.Itoa(attempt)))

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
				meta.TotalDelay += delay
			case <-ctx.Done():
				timer.Stop()
				meta.LastErrorType = errorTypeOf(ctx.Err())

				return meta, ctx.Err()
			}
		}

		meta.Attempts++
		err = fn(ctx)
		meta.LastErrorType = errorTypeOf(err)

		if !errors.Is(err, eventstore.ErrConcurrencyConflict) {
			return meta, err
		}

		if attempt+1 < b.attempts {
			b.metrics.incrementCounter(ctx, metricRetries,
				b.labels(labelAttemptNumber, strconv.Itoa(attempt+1), labelErrorType, meta.LastErrorType))
		}
	}

	b.metrics.incrementCounter(ctx, metricMaxRetriesReached, b.labels(labelFinalErrorType, meta.LastErrorType))

	return meta, err
}

func (b *backoff) labels(pairs ...string) map[string]string {
	labels := map[string]string{labelCommandType: b.commandType}
	for i := 0; i+1 < len(pairs); i += 2 {
		labels[pairs[i]] = pairs[i+1]
	}

	return labels
}

func errorTypeOf(err error) string {
	switch {
	case err == nil:
		return errorTypeNone
	case errors.Is(err, eventstore.ErrConcurrencyConflict):
		return errorTypeConcurrencyConflict
	case errors.Is(err, ErrHandlerNotFound):
		return errorTypeHandlerNotFound
	case errors.Is(err, context.Canceled):
		return errorTypeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return errorTypeDeadlineExceeded
	default:
		return errorTypeOther
	}
}

// WithMaxAttempts sets how often fn runs at most, the first call included.
func WithMaxAttempts(attempts int) RetryOption {
	return func(b *backoff) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}

		b.attempts = attempts

		return nil
	}
}

// WithBaseDelay sets the wait before the second attempt. Every further wait doubles.
func WithBaseDelay(delay time.Duration) RetryOption {
	return func(b *backoff) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}

		b.base = delay

		return nil
	}
}

// WithJitterFactor sets the random extra wait as a share of each delay, from 0.0 to 1.0.
func WithJitterFactor(factor float64) RetryOption {
	return func(b *backoff) error {
		if factor < 0 || factor > 1 {
			return ErrInvalidJitterFactor
		}

		b.jitter = factor

		return nil
	}
}

// WithRetryMetrics records the retry metrics in collector, labeled with commandType.
func WithRetryMetrics(collector eventstore.MetricsCollector, commandType string) RetryOption {
	return func(b *backoff) error {
		b.metrics = &config{metricsCollector: collector}
		b.commandType = commandType

		return nil
	}
}
