package bankaccount

import (
	"github.com/google/uuid"
)

// OpenAccount opens a new account.
type OpenAccount struct {
	AccountID      uuid.UUID
	Owner          string
	OpeningBalance int64
}

func (c OpenAccount) CommandType() string    { return "OpenAccount" }
func (c OpenAccount) AggregateID() uuid.UUID { return c.AccountID }

// DebitAccount takes money from an account.
type DebitAccount struct {
	AccountID uuid.UUID
	Amount    int64
}

func (c DebitAccount) CommandType() string    { return "DebitAccount" }
func (c DebitAccount) AggregateID() uuid.UUID { return c.AccountID }

// CreditAccount adds money to an account.
type CreditAccount struct {
	AccountID uuid.UUID
	Amount    int64
}

func (c CreditAccount) CommandType() string    { return "CreditAccount" }
func (c CreditAccount) AggregateID() uuid.UUID { return c.AccountID }

// IssueCard issues a card for an account.
type IssueCard struct {
	AccountID uuid.UUID
	CardID    uuid.UUID
	Limit     int64
}

func (c IssueCard) CommandType() string    { return "IssueCard" }
func (c IssueCard) AggregateID() uuid.UUID { return c.AccountID }

// ChangeCardLimit changes the limit of a card.
type ChangeCardLimit struct {
	AccountID uuid.UUID
	CardID    uuid.UUID
	Limit     int64
}

func (c ChangeCardLimit) CommandType() string    { return "ChangeCardLimit" }
func (c ChangeCardLimit) AggregateID() uuid.UUID { return c.AccountID }

// BlockCard blocks a card.
type BlockCard struct {
	AccountID uuid.UUID
	CardID    uuid.UUID
	Reason    string
}

func (c BlockCard) CommandType() string    { return "BlockCard" }
func (c BlockCard) AggregateID() uuid.UUID { return c.AccountID }
