package bankaccount

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/command"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/repository"
)

// Repository defines what the command handlers need from a repository.Repository[*Account].
type Repository interface {
	Load(ctx context.Context, id uuid.UUID) (*Account, error)
	Save(ctx context.Context, account *Account, expectedVersion uint64) error
}

// CommandHandlers handles every account command with one Load, Decide, Save cycle.
type CommandHandlers struct {
	repository Repository
}

// NewCommandHandlers creates the handlers.
func NewCommandHandlers(repository Repository) CommandHandlers {
	return CommandHandlers{repository: repository}
}

// RegisterHandlers registers a handler for every account command on bus.
func RegisterHandlers(bus *command.Bus, repository Repository) error {
	h := NewCommandHandlers(repository)

	return errors.Join(
		command.Register(bus, command.HandlerFunc[OpenAccount](h.HandleOpenAccount)),
		command.Register(bus, command.HandlerFunc[DebitAccount](h.HandleDebitAccount)),
		command.Register(bus, command.HandlerFunc[CreditAccount](h.HandleCreditAccount)),
		command.Register(bus, command.HandlerFunc[IssueCard](h.HandleIssueCard)),
		command.Register(bus, command.HandlerFunc[ChangeCardLimit](h.HandleChangeCardLimit)),
		command.Register(bus, command.HandlerFunc[BlockCard](h.HandleBlockCard)),
	)
}

// HandleOpenAccount opens a new account. Opening an account that exists fails with ErrAlreadyOpened.
func (h CommandHandlers) HandleOpenAccount(ctx context.Context, cmd OpenAccount) error {
	ctx = eventstore.WithStrongConsistency(ctx)

	account, err := h.repository.Load(ctx, cmd.AccountID)
	switch {
	case errors.Is(err, repository.ErrAggregateNotFound):
		account = NewAccount(cmd.AccountID)
	case err != nil:
		return err
	}

	if err := account.Open(cmd.Owner, cmd.OpeningBalance); err != nil {
		return err
	}

	return h.repository.Save(ctx, account, account.CommittedVersion())
}

// HandleDebitAccount withdraws money from an opened account.
func (h CommandHandlers) HandleDebitAccount(ctx context.Context, cmd DebitAccount) error {
	return h.change(ctx, cmd.AccountID, func(account *Account) error {
		return account.Debit(cmd.Amount)
	})
}

// HandleCreditAccount deposits money to an opened account.
func (h CommandHandlers) HandleCreditAccount(ctx context.Context, cmd CreditAccount) error {
	return h.change(ctx, cmd.AccountID, func(account *Account) error {
		return account.Credit(cmd.Amount)
	})
}

// HandleIssueCard adds a card entity to the account.
func (h CommandHandlers) HandleIssueCard(ctx context.Context, cmd IssueCard) error {
	return h.change(ctx, cmd.AccountID, func(account *Account) error {
		return account.IssueCard(cmd.CardID, cmd.Limit)
	})
}

// HandleChangeCardLimit changes the limit of a card that is not blocked.
func (h CommandHandlers) HandleChangeCardLimit(ctx context.Context, cmd ChangeCardLimit) error {
	return h.change(ctx, cmd.AccountID, func(account *Account) error {
		return account.ChangeCardLimit(cmd.CardID, cmd.Limit)
	})
}

// HandleBlockCard blocks a card of the account.
func (h CommandHandlers) HandleBlockCard(ctx context.Context, cmd BlockCard) error {
	return h.change(ctx, cmd.AccountID, func(account *Account) error {
		return account.BlockCard(cmd.CardID, cmd.Reason)
	})
}

// change loads the account, lets decide record new events and saves them. Saving without new events is a no-op.
func (h CommandHandlers) change(ctx context.Context, id uuid.UUID, decide func(account *Account) error) error {
	// command handlers must see their own writes, never a lagging replica
	ctx = eventstore.WithStrongConsistency(ctx)

	account, err := h.repository.Load(ctx, id)
	if err != nil {
		return err
	}

	if err := decide(account); err != nil {
		return err
	}

	return h.repository.Save(ctx, account, account.CommittedVersion())
}
