package command

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/identifier"
)

var (
	// ErrHandlerNotFound is returned by Send when no handler is registered for the command type.
	ErrHandlerNotFound = errors.New("no handler registered for command")

	// ErrNilCommand is returned by Send for a nil command.
	ErrNilCommand = errors.New("command must not be nil")

	// ErrNilHandler is returned by Register for a nil handler.
	ErrNilHandler = errors.New("command handler must not be nil")
)

// Command is a request to change one aggregate.
type Command interface {
	CommandType() string
	AggregateID() uuid.UUID
}

// Handler handles commands of type C.
type Handler[C Command] interface {
	Handle(ctx context.Context, cmd C) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc[C Command] func(ctx context.Context, cmd C) error

// Handle calls f.
func (f HandlerFunc[C]) Handle(ctx context.Context, cmd C) error {
	return f(ctx, cmd)
}

type dispatchFunc func(ctx context.Context, cmd Command) error

// Bus routes commands to their handlers. It is safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type]dispatchFunc
	newID    identifier.Generator
	config
}

// NewBus creates a Bus without handlers.
func NewBus(options ...Option) (*Bus, error) {
	b := &Bus{
		handlers: make(map[reflect.Type]dispatchFunc),
		newID:    identifier.Default,
	}

	for _, option := range options {
		if err := option(&b.config); err != nil {
			return nil, err
		}
	}

	if b.idGenerator != nil {
		b.newID = b.idGenerator
	}

	return b, nil
}

// Register registers handler for commands of type C. A handler registered earlier for C is replaced.
func Register[C Command](bus *Bus, handler Handler[C]) error {
	if handler == nil {
		return ErrNilHandler
	}

	commandType := reflect.TypeFor[C]()

	bus.mu.Lock()
	_, replaced := bus.handlers[commandType]
	bus.handlers[commandType] = func(ctx context.Context, cmd Command) error {
		return handler.Handle(ctx, cmd.(C)) //nolint:forcetypeassert // the map is keyed by the dynamic type
	}
	bus.mu.Unlock()

	if replaced {
		bus.logWarn(context.Background(), logMsgHandlerReplaced, logAttrCommandGoType, commandType.String())
	}

	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister[C Command](bus *Bus, handler Handler[C]) {
	if err := Register(bus, handler); err != nil {
		panic(err)
	}
}

// HasHandler reports whether a handler is registered for the dynamic type of cmd.
func (b *Bus) HasHandler(cmd Command) bool {
	if cmd == nil {
		return false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.handlers[reflect.TypeOf(cmd)]

	return ok
}

// Send dispatches cmd to the handler registered for its dynamic type and returns the handler's error.
func (b *Bus) Send(ctx context.Context, cmd Command) error {
	if cmd == nil {
		return ErrNilCommand
	}

	b.mu.RLock()
	dispatch, ok := b.handlers[reflect.TypeOf(cmd)]
	b.mu.RUnlock()

	if !ok {
		b.recordNotFound(ctx, cmd)
		return errors.Join(ErrHandlerNotFound, errors.New(cmd.CommandType()))
	}

	ctx = b.withMessageIDs(ctx)

	start := time.Now()
	ctx, span := b.startSendSpan(ctx, cmd)
	b.logDebug(ctx, logMsgCommandStarted, logAttrCommandType, cmd.CommandType(), logAttrAggregateID, cmd.AggregateID().String())

	var err error
	var retryMeta RetryMetadata

	if b.retryOptions != nil {
		options := append([]RetryOption{WithRetryMetrics(b.metricsCollector, cmd.CommandType())}, b.retryOptions...)
		retryMeta, err = RetryWithExponentialBackoff(ctx, func(ctx context.Context) error {
			return dispatch(ctx, cmd)
		}, options...)
	} else {
		err = dispatch(ctx, cmd)
		retryMeta = RetryMetadata{Attempts: 1, LastErrorType: errorTypeOf(err)}
	}

	b.recordSent(ctx, span, cmd, retryMeta, err, time.Since(start))

	return err
}

// withMessageIDs gives the command a fresh message id. An incoming causation id becomes the
// correlation id if none is set yet, so chains of commands stay correlated.
func (b *Bus) withMessageIDs(ctx context.Context) context.Context {
	if _, hasCorrelation := eventstore.CorrelationIDFrom(ctx); !hasCorrelation {
		if causationID, hasCausation := eventstore.CausationIDFrom(ctx); hasCausation {
			ctx = eventstore.WithCorrelationID(ctx, causationID)
		}
	}

	return eventstore.WithCausationID(ctx, b.newID())
}
