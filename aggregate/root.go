package aggregate

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/identifier"
)

var (
	// ErrApplyNotSupported is returned by an Applier for events it does not handle.
	// Root swallows it, so that unknown events in an old stream do not break loading.
	ErrApplyNotSupported = errors.New("event is not supported by this applier")

	// ErrNilEvent is returned when a nil event is applied.
	ErrNilEvent = errors.New("event must not be nil")

	// ErrDetachedEntity is returned when an entity without an owning aggregate applies an event.
	ErrDetachedEntity = errors.New("entity is not associated with an aggregate")

	// ErrRestoreOnUsedRoot is returned when RestoreVersion is called on a root that already applied events.
	ErrRestoreOnUsedRoot = errors.New("version can only be restored on a root without applied events")
)

// Applier mutates state for one domain event.
//
// It returns ErrApplyNotSupported for events it does not know. Any other error aborts the
// application, which leaves the version and the uncommitted events unchanged.
type Applier interface {
	Apply(event DomainEvent) error
}

// ApplierFunc adapts a function to the Applier interface.
type ApplierFunc func(event DomainEvent) error

// Apply calls f(event).
func (f ApplierFunc) Apply(event DomainEvent) error {
	return f(event)
}

// Aggregate is what the repository needs from a concrete aggregate. Embedding Root provides all of it.
type Aggregate interface {
	ID() uuid.UUID
	AggregateType() string
	Version() uint64
	CommittedVersion() uint64
	UncommittedEvents() []DomainEvent
	MarkCommitted()
	ReplayEvents(events []DomainEvent) error
	RestoreVersion(version uint64) error
}

// Snapshotter is implemented by aggregates that can serialize and restore their state.
type Snapshotter interface {
	Snapshot() ([]byte, error)
	RestoreSnapshot(data []byte) error
}

// Root is the generic aggregate core: identity, version, uncommitted events and associated entities.
//
// Root is not safe for concurrent use. An aggregate instance belongs to one command handling at a time,
// concurrent handlings load their own instances and are serialized by the event store.
type Root struct {
	id            uuid.UUID
	aggregateType string
	version       uint64
	uncommitted   []DomainEvent
	entities      map[uuid.UUID]Entity
	applier       Applier
	now           func() time.Time
	newID         identifier.Generator
}

// Option configures a Root.
type Option func(*Root)

// WithClock sets the clock used to stamp the event date of new events.
func WithClock(now func() time.Time) Option {
	return func(r *Root) {
		r.now = now
	}
}

// WithIDGenerator sets the generator for the ids of new events.
func WithIDGenerator(generate identifier.Generator) Option {
	return func(r *Root) {
		r.newID = generate
	}
}

// NewRoot creates a root at version 0 which dispatches aggregate-scoped events to applier.
func NewRoot(id uuid.UUID, aggregateType string, applier Applier, options ...Option) Root {
	root := Root{
		id:            id,
		aggregateType: aggregateType,
		entities:      make(map[uuid.UUID]Entity),
		applier:       applier,
		now:           time.Now,
		newID:         identifier.New,
	}

	for _, option := range options {
		option(&root)
	}

	return root
}

// ID returns the aggregate id.
func (r *Root) ID() uuid.UUID {
	return r.id
}

// AggregateType returns the type name the aggregate is stored under.
func (r *Root) AggregateType() string {
	return r.aggregateType
}

// Version returns the number of events applied so far, replayed and new.
func (r *Root) Version() uint64 {
	return r.version
}

// CommittedVersion returns the version without the uncommitted events, which is the
// expected version to save the uncommitted events with.
func (r *Root) CommittedVersion() uint64 {
	return r.version - uint64(len(r.uncommitted))
}

// UncommittedEvents returns the events applied since loading or the last save, in application order.
func (r *Root) UncommittedEvents() []DomainEvent {
	events := make([]DomainEvent, len(r.uncommitted))
	copy(events, r.uncommitted)

	return events
}

// MarkCommitted clears the uncommitted events after they were persisted.
func (r *Root) MarkCommitted() {
	r.uncommitted = nil
}

// RestoreVersion sets the version of a pristine root, which is needed when the state was
// restored from a snapshot instead of being replayed.
func (r *Root) RestoreVersion(version uint64) error {
	if r.version != 0 || len(r.uncommitted) != 0 {
		return ErrRestoreOnUsedRoot
	}

	r.version = version

	return nil
}

// Associate registers an entity so that entity-scoped events addressed to its id reach it.
// Associating an entity whose id is already registered changes nothing.
func (r *Root) Associate(entity Entity) {
	if entity == nil {
		return
	}

	if r.entities == nil {
		r.entities = make(map[uuid.UUID]Entity)
	}

	if _, exists := r.entities[entity.EntityID()]; exists {
		return
	}

	r.entities[entity.EntityID()] = entity
}

// Entity returns the associated entity with the given id.
func (r *Root) Entity(id uuid.UUID) (Entity, bool) {
	entity, ok := r.entities[id]
	return entity, ok
}

// ApplyEvent applies a new event: the version is incremented, the event is stamped with the aggregate id,
// the new version as sequence and the current time, dispatched and buffered as uncommitted.
func (r *Root) ApplyEvent(event DomainEvent) error {
	return r.applyEvent(event, true)
}

// ReplayEvents applies already persisted events in order. They keep their stored sequence
// and date and are not buffered. Replaying no events is a no-op.
func (r *Root) ReplayEvents(events []DomainEvent) error {
	for _, event := range events {
		if err := r.applyEvent(event, false); err != nil {
			return err
		}
	}

	return nil
}

func (r *Root) applyEvent(event DomainEvent, isNew bool) error {
	if event == nil {
		return ErrNilEvent
	}

	r.version++

	if isNew {
		r.stamp(event.Header())
	}

	if err := r.dispatch(event); err != nil && !errors.Is(err, ErrApplyNotSupported) {
		r.version--
		return err
	}

	if isNew {
		r.uncommitted = append(r.uncommitted, event)
	}

	return nil
}

func (r *Root) stamp(header *EventHeader) {
	if header.EventID == uuid.Nil {
		header.EventID = r.generateID()
	}

	header.AggregateID = r.id
	header.Sequence = r.version
	header.EventDate = r.clock().UTC()
}

// dispatch routes entity-scoped events to their entity and all others to the applier.
// Events for entities that are not associated are dropped.
func (r *Root) dispatch(event DomainEvent) error {
	if entityEvent, ok := event.(EntityEvent); ok {
		entity, found := r.entities[entityEvent.EntityHeader().EntityID]
		if !found {
			return nil
		}

		return entity.Apply(event)
	}

	if r.applier == nil {
		return ErrApplyNotSupported
	}

	return r.applier.Apply(event)
}

func (r *Root) clock() time.Time {
	if r.now == nil {
		return time.Now()
	}

	return r.now()
}

func (r *Root) generateID() uuid.UUID {
	if r.newID == nil {
		return identifier.New()
	}

	return r.newID()
}
