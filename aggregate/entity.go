package aggregate

import (
	"github.com/google/uuid"
)

// Entity is an object inside an aggregate that has its own identity and applies
// the entity-scoped events addressed to it.
type Entity interface {
	EntityID() uuid.UUID
	Applier
}

// EntityBase is embedded by concrete entities. It keeps the entity id and the owning
// aggregate, which is only used to route the entity's new events through the aggregate.
type EntityBase struct {
	id    uuid.UUID
	owner *Root
}

// NewEntityBase creates the base for an entity owned by the given aggregate root.
func NewEntityBase(id uuid.UUID, owner *Root) EntityBase {
	return EntityBase{id: id, owner: owner}
}

// EntityID returns the entity id.
func (e *EntityBase) EntityID() uuid.UUID {
	return e.id
}

// ApplyEvent addresses event to this entity and applies it as a new event of the owning aggregate.
func (e *EntityBase) ApplyEvent(event EntityEvent) error {
	if e.owner == nil {
		return ErrDetachedEntity
	}

	event.EntityHeader().EntityID = e.id

	return e.owner.ApplyEvent(event)
}
