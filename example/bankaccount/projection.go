package bankaccount

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/aggregate"
)

// BalanceProjection is a read model of account balances, fed by an eventbus.Bus.
type BalanceProjection struct {
	mu       sync.RWMutex
	balances map[uuid.UUID]int64
	seen     map[uuid.UUID]uint64
}

// NewBalanceProjection creates an empty projection.
func NewBalanceProjection() *BalanceProjection {
	return &BalanceProjection{
		balances: make(map[uuid.UUID]int64),
		seen:     make(map[uuid.UUID]uint64),
	}
}

// Handle implements eventbus.Handler. Events at or below the last projected sequence of an account are ignored.
func (p *BalanceProjection) Handle(_ context.Context, event aggregate.DomainEvent) error {
	header := event.Header()

	p.mu.Lock()
	defer p.mu.Unlock()

	if header.Sequence <= p.seen[header.AggregateID] {
		return nil
	}

	switch e := event.(type) {
	case *AccountOpened:
		p.balances[header.AggregateID] = e.OpeningBalance
	case *AccountDebited:
		p.balances[header.AggregateID] -= e.Amount
	case *AccountCredited:
		p.balances[header.AggregateID] += e.Amount
	}

	p.seen[header.AggregateID] = header.Sequence

	return nil
}

// Balance returns the projected balance of an account.
func (p *BalanceProjection) Balance(accountID uuid.UUID) (int64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	balance, ok := p.balances[accountID]

	return balance, ok
}
