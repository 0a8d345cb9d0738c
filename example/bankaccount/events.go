package bankaccount

import (
	"github.com/google/uuid"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/aggregate"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/repository"
)

// Event types.
const (
	AccountOpenedEventType    = "AccountOpened"
	AccountDebitedEventType   = "AccountDebited"
	AccountCreditedEventType  = "AccountCredited"
	CardIssuedEventType       = "CardIssued"
	CardLimitChangedEventType = "CardLimitChanged"
	CardBlockedEventType      = "CardBlocked"
)

// AccountOpened is the first event of every account.
type AccountOpened struct {
	aggregate.EventHeader
	Owner          string `json:"owner"`
	OpeningBalance int64  `json:"openingBalance"`
}

// EventType implements aggregate.DomainEvent.
func (e *AccountOpened) EventType() string { return AccountOpenedEventType }

// AccountDebited reduces the balance by Amount.
type AccountDebited struct {
	aggregate.EventHeader
	Amount int64 `json:"amount"`
}

// EventType implements aggregate.DomainEvent.
func (e *AccountDebited) EventType() string { return AccountDebitedEventType }

// AccountCredited raises the balance by Amount.
type AccountCredited struct {
	aggregate.EventHeader
	Amount int64 `json:"amount"`
}

// EventType implements aggregate.DomainEvent.
func (e *AccountCredited) EventType() string { return AccountCreditedEventType }

// CardIssued creates a card entity inside the account.
type CardIssued struct {
	aggregate.EventHeader
	CardID uuid.UUID `json:"cardId"`
	Limit  int64     `json:"limit"`
}

// EventType implements aggregate.DomainEvent.
func (e *CardIssued) EventType() string { return CardIssuedEventType }

// CardLimitChanged is addressed to one card.
type CardLimitChanged struct {
	aggregate.EntityEventHeader
	Limit int64 `json:"limit"`
}

// EventType implements aggregate.DomainEvent.
func (e *CardLimitChanged) EventType() string { return CardLimitChangedEventType }

// CardBlocked is addressed to one card.
type CardBlocked struct {
	aggregate.EntityEventHeader
	Reason string `json:"reason"`
}

// EventType implements aggregate.DomainEvent.
func (e *CardBlocked) EventType() string { return CardBlockedEventType }

// NewEventRegistry returns a registry that knows every event of the account aggregate.
func NewEventRegistry() *repository.EventRegistry {
	registry := repository.NewEventRegistry()
	registry.MustRegister(
		func() aggregate.DomainEvent { return &AccountOpened{} },
		func() aggregate.DomainEvent { return &AccountDebited{} },
		func() aggregate.DomainEvent { return &AccountCredited{} },
		func() aggregate.DomainEvent { return &CardIssued{} },
		func() aggregate.DomainEvent { return &CardLimitChanged{} },
		func() aggregate.DomainEvent { return &CardBlocked{} },
	)

	return registry
}
