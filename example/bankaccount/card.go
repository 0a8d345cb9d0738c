package bankaccount

import (
	"github.com/AntonStoeckl/eventsourced-aggregates-go/aggregate"
)

// Card is an entity of the Account aggregate.
type Card struct {
	aggregate.EntityBase
	limit   int64
	blocked bool
}

// Limit returns the current card limit.
func (c *Card) Limit() int64 { return c.limit }

// IsBlocked reports whether the card has been blocked. Blocking is final.
func (c *Card) IsBlocked() bool { return c.blocked }

// ChangeLimit changes the card limit. Blocked cards keep their limit.
func (c *Card) ChangeLimit(limit int64) error {
	if c.blocked {
		return ErrCardBlocked
	}

	if limit < 0 {
		return ErrNegativeLimit
	}

	return c.ApplyEvent(&CardLimitChanged{Limit: limit})
}

// Block blocks the card.
func (c *Card) Block(reason string) error {
	if c.blocked {
		return nil
	}

	return c.ApplyEvent(&CardBlocked{Reason: reason})
}

// Apply implements aggregate.Applier for the events addressed to this card.
func (c *Card) Apply(event aggregate.DomainEvent) error {
	switch e := event.(type) {
	case *CardLimitChanged:
		c.limit = e.Limit
	case *CardBlocked:
		c.blocked = true
	default:
		return aggregate.ErrApplyNotSupported
	}

	return nil
}
