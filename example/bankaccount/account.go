package bankaccount

import (
	"errors"
	"sort"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/aggregate"
)

// AggregateType is stored with every account event and snapshot.
const AggregateType = "BankAccount"

// Business rule violations returned by Account and Card.
var (
	ErrAlreadyOpened     = errors.New("account is already opened")
	ErrNotOpened         = errors.New("account is not opened")
	ErrEmptyOwner        = errors.New("owner must not be empty")
	ErrNegativeBalance   = errors.New("opening balance must not be negative")
	ErrNonPositiveAmount = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrCardAlreadyIssued = errors.New("card is already issued")
	ErrCardNotFound      = errors.New("card not found")
	ErrNegativeLimit     = errors.New("card limit must not be negative")
	ErrCardBlocked       = errors.New("card is blocked")
)

// Account is the bank account aggregate.
type Account struct {
	aggregate.Root
	opened  bool
	owner   string
	balance int64
	cards   map[uuid.UUID]*Card
}

// NewAccount creates an account that is not opened yet, at version 0.
func NewAccount(id uuid.UUID, options ...aggregate.Option) *Account {
	a := &Account{cards: make(map[uuid.UUID]*Card)}
	a.Root = aggregate.NewRoot(id, AggregateType, a, options...)

	return a
}

// IsOpened reports whether AccountOpened has been applied.
func (a *Account) IsOpened() bool { return a.opened }

// Owner returns the owner named when the account was opened.
func (a *Account) Owner() string { return a.owner }

// Balance returns the current balance.
func (a *Account) Balance() int64 { return a.balance }

// Card returns the card with the given id.
func (a *Account) Card(id uuid.UUID) (*Card, bool) {
	card, ok := a.cards[id]
	return card, ok
}

// CardCount returns the number of issued cards, blocked ones included.
func (a *Account) CardCount() int {
	return len(a.cards)
}

// Cards returns the issued cards ordered by id.
func (a *Account) Cards() []*Card {
	cards := make([]*Card, 0, len(a.cards))
	for _, card := range a.cards {
		cards = append(cards, card)
	}

	sort.Slice(cards, func(i, j int) bool {
		return cards[i].EntityID().String() < cards[j].EntityID().String()
	})

	return cards
}

// Open opens the account.
func (a *Account) Open(owner string, openingBalance int64) error {
	if a.opened {
		return ErrAlreadyOpened
	}

	if owner == "" {
		return ErrEmptyOwner
	}

	if openingBalance < 0 {
		return ErrNegativeBalance
	}

	return a.ApplyEvent(&AccountOpened{Owner: owner, OpeningBalance: openingBalance})
}

// Debit takes amount from the balance. The balance never becomes negative.
func (a *Account) Debit(amount int64) error {
	if err := a.checkAmount(amount); err != nil {
		return err
	}

	if amount > a.balance {
		return ErrInsufficientFunds
	}

	return a.ApplyEvent(&AccountDebited{Amount: amount})
}

// Credit adds amount to the balance.
func (a *Account) Credit(amount int64) error {
	if err := a.checkAmount(amount); err != nil {
		return err
	}

	return a.ApplyEvent(&AccountCredited{Amount: amount})
}

// IssueCard issues a new card with the given limit.
func (a *Account) IssueCard(cardID uuid.UUID, limit int64) error {
	if !a.opened {
		return ErrNotOpened
	}

	if _, exists := a.cards[cardID]; exists {
		return ErrCardAlreadyIssued
	}

	if limit < 0 {
		return ErrNegativeLimit
	}

	return a.ApplyEvent(&CardIssued{CardID: cardID, Limit: limit})
}

// ChangeCardLimit changes the limit of an issued card.
func (a *Account) ChangeCardLimit(cardID uuid.UUID, limit int64) error {
	card, found := a.cards[cardID]
	if !found {
		return ErrCardNotFound
	}

	return card.ChangeLimit(limit)
}

// BlockCard blocks an issued card. Blocking a blocked card changes nothing.
func (a *Account) BlockCard(cardID uuid.UUID, reason string) error {
	card, found := a.cards[cardID]
	if !found {
		return ErrCardNotFound
	}

	return card.Block(reason)
}

func (a *Account) checkAmount(amount int64) error {
	if !a.opened {
		return ErrNotOpened
	}

	if amount <= 0 {
		return ErrNonPositiveAmount
	}

	return nil
}

// Apply implements aggregate.Applier.
func (a *Account) Apply(event aggregate.DomainEvent) error {
	switch e := event.(type) {
	case *AccountOpened:
		a.opened = true
		a.owner = e.Owner
		a.balance = e.OpeningBalance
	case *AccountDebited:
		a.balance -= e.Amount
	case *AccountCredited:
		a.balance += e.Amount
	case *CardIssued:
		a.addCard(e.CardID, e.Limit, false)
	default:
		return aggregate.ErrApplyNotSupported
	}

	return nil
}

func (a *Account) addCard(cardID uuid.UUID, limit int64, blocked bool) {
	card := &Card{EntityBase: aggregate.NewEntityBase(cardID, &a.Root), limit: limit, blocked: blocked}
	a.cards[cardID] = card
	a.Associate(card)
}

type accountState struct {
	Opened  bool        `json:"opened"`
	Owner   string      `json:"owner"`
	Balance int64       `json:"balance"`
	Cards   []cardState `json:"cards,omitempty"`
}

type cardState struct {
	ID      uuid.UUID `json:"id"`
	Limit   int64     `json:"limit"`
	Blocked bool      `json:"blocked"`
}

// Snapshot implements aggregate.Snapshotter.
func (a *Account) Snapshot() ([]byte, error) {
	state := accountState{Opened: a.opened, Owner: a.owner, Balance: a.balance}

	for _, card := range a.Cards() {
		state.Cards = append(state.Cards, cardState{ID: card.EntityID(), Limit: card.limit, Blocked: card.blocked})
	}

	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(state)
}

// RestoreSnapshot implements aggregate.Snapshotter.
func (a *Account) RestoreSnapshot(data []byte) error {
	var state accountState
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &state); err != nil {
		return err
	}

	a.opened = state.Opened
	a.owner = state.Owner
	a.balance = state.Balance

	for _, card := range state.Cards {
		a.addCard(card.ID, card.Limit, card.Blocked)
	}

	return nil
}
