package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/aggregate"
)

var (
	// ErrNilHandler is returned when subscribing a nil handler.
	ErrNilHandler = errors.New("event handler must not be nil")

	// ErrNilMiddleware is returned by WithMiddleware for a nil middleware.
	ErrNilMiddleware = errors.New("middleware must not be nil")

	// ErrEmptyEventType is returned when subscribing to an empty event type.
	ErrEmptyEventType = errors.New("event type must not be empty")

	// ErrDeliveryFailed is returned by Publish, joined with the handler errors, when at least one handler failed.
	ErrDeliveryFailed = errors.New("delivering events to subscribers failed")
)

// Handler reacts to one published event.
type Handler interface {
	Handle(ctx context.Context, event aggregate.DomainEvent) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event aggregate.DomainEvent) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, event aggregate.DomainEvent) error { return f(ctx, event) }

// Middleware wraps a Handler.
type Middleware func(next Handler) Handler

// Bus is a synchronous in-process publish/subscribe hub. It is safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	byType map[string][]Handler
	all    []Handler
	config
}

// NewBus creates a Bus without subscribers.
func NewBus(options ...Option) (*Bus, error) {
	b := &Bus{byType: make(map[string][]Handler)}

	for _, option := range options {
		if err := option(&b.config); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Subscribe registers handler for events of eventType.
func (b *Bus) Subscribe(eventType string, handler Handler) error {
	if eventType == "" {
		return ErrEmptyEventType
	}

	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.byType[eventType] = append(b.byType[eventType], b.wrap(handler))

	return nil
}

// SubscribeAll registers handler for every event.
func (b *Bus) SubscribeAll(handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.all = append(b.all, b.wrap(handler))

	return nil
}

// Publish hands the events, in order, to the handlers subscribed to their type and then to the
// catch-all handlers. A failing handler does not stop the delivery to the others; all failures are
// returned joined with ErrDeliveryFailed.
func (b *Bus) Publish(ctx context.Context, events []aggregate.DomainEvent) error {
	var errs []error

	for _, event := range events {
		if event == nil {
			continue
		}

		if err := ctx.Err(); err != nil {
			return errors.Join(ErrDeliveryFailed, err)
		}

		for _, handler := range b.handlersFor(event.EventType()) {
			start := time.Now()
			err := handler.Handle(ctx, event)
			b.recordDelivery(ctx, event, err, time.Since(start))

			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrDeliveryFailed}, errs...)...)
	}

	return nil
}

func (b *Bus) handlersFor(eventType string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	handlers := make([]Handler, 0, len(b.byType[eventType])+len(b.all))
	handlers = append(handlers, b.byType[eventType]...)
	handlers = append(handlers, b.all...)

	return handlers
}

func (b *Bus) wrap(handler Handler) Handler {
	for i := len(b.middlewares) - 1; i >= 0; i-- {
		handler = b.middlewares[i](handler)
	}

	return handler
}
