package repository

import (
	"context"
	"errors"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/aggregate"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

var (
	// ErrDuplicateEventType is returned when an event type is registered twice.
	ErrDuplicateEventType = errors.New("event type is already registered")

	// ErrNilEventFactory is returned when a nil factory is registered or a factory returns nil.
	ErrNilEventFactory = errors.New("event factory must not be nil and must not return nil")

	// ErrMarshalingEventFailed wraps failures while serializing an event.
	ErrMarshalingEventFailed = errors.New("marshaling the event failed")

	// ErrUnmarshalingEventFailed wraps failures while deserializing an event.
	ErrUnmarshalingEventFailed = errors.New("unmarshaling the event failed")
)

// EventFactory returns a new, empty instance of one event type to unmarshal a payload into.
type EventFactory func() aggregate.DomainEvent

// EventRegistry maps event type names to factories and converts between domain events and storable events.
// It is safe for concurrent use.
type EventRegistry struct {
	mu        sync.RWMutex
	factories map[string]EventFactory
}

// NewEventRegistry creates an empty registry.
func NewEventRegistry() *EventRegistry {
	return &EventRegistry{factories: make(map[string]EventFactory)}
}

// Register adds the factory under the event type of the events it creates.
func (r *EventRegistry) Register(factory EventFactory) error {
	if factory == nil {
		return ErrNilEventFactory
	}

	sample := factory()
	if sample == nil {
		return ErrNilEventFactory
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[sample.EventType()]; exists {
		return errors.Join(ErrDuplicateEventType, errors.New(sample.EventType()))
	}

	r.factories[sample.EventType()] = factory

	return nil
}

// MustRegister registers all factories and panics on the first error. Meant for package initialization.
func (r *EventRegistry) MustRegister(factories ...EventFactory) {
	for _, factory := range factories {
		if err := r.Register(factory); err != nil {
			panic(err)
		}
	}
}

// IsRegistered reports whether a factory exists for eventType.
func (r *EventRegistry) IsRegistered(eventType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories[eventType]

	return ok
}

// Encode converts a stamped domain event into a StorableEvent of aggregateType.
// The metadata is built from the causation and correlation ids carried by ctx.
func (r *EventRegistry) Encode(ctx context.Context, aggregateType string, event aggregate.DomainEvent) (eventstore.StorableEvent, error) {
	payloadJSON, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(event)
	if err != nil {
		return eventstore.StorableEvent{}, errors.Join(ErrMarshalingEventFailed, err)
	}

	header := event.Header()

	metadataJSON, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(eventstore.BuildEventMetadata(ctx, header.EventID))
	if err != nil {
		return eventstore.StorableEvent{}, errors.Join(ErrMarshalingEventFailed, err)
	}

	return eventstore.BuildStorableEvent(
		header.EventID,
		header.AggregateID,
		aggregateType,
		header.Sequence,
		event.EventType(),
		header.EventDate,
		payloadJSON,
		metadataJSON,
	)
}

// Decode converts a StorableEvent back into its domain event. The header columns of the storable
// event win over the header fields in the payload.
//
// Events of unregistered types decode into *UnknownEvent, which no aggregate applies, so that a
// stream written by a newer release still loads.
func (r *EventRegistry) Decode(stored eventstore.StorableEvent) (aggregate.DomainEvent, error) {
	r.mu.RLock()
	factory, ok := r.factories[stored.EventType]
	r.mu.RUnlock()

	var event aggregate.DomainEvent

	if ok {
		event = factory()
		if err := jsoniter.ConfigFastest.Unmarshal(stored.PayloadJSON, event); err != nil {
			return nil, errors.Join(ErrUnmarshalingEventFailed, err)
		}
	} else {
		event = &UnknownEvent{Type: stored.EventType, Payload: stored.PayloadJSON}
	}

	header := event.Header()
	header.EventID = stored.EventID
	header.AggregateID = stored.AggregateID
	header.Sequence = stored.Sequence
	header.EventDate = stored.OccurredAt

	return event, nil
}

// UnknownEvent holds a stored event whose type is not registered.
type UnknownEvent struct {
	aggregate.EventHeader
	Type    string
	Payload []byte
}

// EventType returns the stored event type.
func (e *UnknownEvent) EventType() string {
	return e.Type
}
