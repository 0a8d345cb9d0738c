package aggregate

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact that happened to an aggregate.
//
// Concrete events are pointer types embedding EventHeader (or EntityEventHeader) which supplies Header.
type DomainEvent interface {
	EventType() string
	Header() *EventHeader
}

// EntityEvent is a DomainEvent that targets one entity inside an aggregate.
type EntityEvent interface {
	DomainEvent
	EntityHeader() *EntityEventHeader
}

// EventHeader carries the envelope fields every domain event has.
// Root fills it for new events; replayed events keep what was stored.
type EventHeader struct {
	EventID     uuid.UUID `json:"eventId"`
	AggregateID uuid.UUID `json:"aggregateId"`
	Sequence    uint64    `json:"sequence"`
	EventDate   time.Time `json:"eventDate"`
}

// Header returns the header for stamping and routing.
func (h *EventHeader) Header() *EventHeader {
	return h
}

// EntityEventHeader is the header of entity-scoped events.
type EntityEventHeader struct {
	EventHeader
	EntityID uuid.UUID `json:"entityId"`
}

// EntityHeader returns the header for stamping and routing.
func (h *EntityEventHeader) EntityHeader() *EntityEventHeader {
	return h
}
