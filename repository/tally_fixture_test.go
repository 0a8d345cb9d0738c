package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/aggregate"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/repository"
)

const tallyAggregateType = "Tally"

type tallyStarted struct {
	aggregate.EventHeader
	Label string `json:"label"`
}

func (e *tallyStarted) EventType() string { return "TallyStarted" }

type tallyCounted struct {
	aggregate.EventHeader
	By int `json:"by"`
}

func (e *tallyCounted) EventType() string { return "TallyCounted" }

// tally is a minimal snapshottable aggregate.
type tally struct {
	aggregate.Root
	label string
	total int
}

type tallyState struct {
	Label string `json:"label"`
	Total int    `json:"total"`
}

func newTally(id uuid.UUID) *tally {
	t := &tally{}
	t.Root = aggregate.NewRoot(id, tallyAggregateType, t)

	return t
}

func (t *tally) Apply(event aggregate.DomainEvent) error {
	switch e := event.(type) {
	case *tallyStarted:
		t.label = e.Label
	case *tallyCounted:
		t.total += e.By
	default:
		return aggregate.ErrApplyNotSupported
	}

	return nil
}

func (t *tally) Snapshot() ([]byte, error) {
	return json.Marshal(tallyState{Label: t.label, Total: t.total})
}

func (t *tally) RestoreSnapshot(data []byte) error {
	var state tallyState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}

	t.label = state.Label
	t.total = state.Total

	return nil
}

func (t *tally) count(by ...int) error {
	for _, b := range by {
		if err := t.ApplyEvent(&tallyCounted{By: b}); err != nil {
			return err
		}
	}

	return nil
}

// plain is an aggregate without snapshot support.
type plain struct {
	aggregate.Root
}

func newPlain(id uuid.UUID) *plain {
	p := &plain{}
	p.Root = aggregate.NewRoot(id, "Plain", nil)

	return p
}

func tallyRegistry() *repository.EventRegistry {
	registry := repository.NewEventRegistry()
	registry.MustRegister(
		func() aggregate.DomainEvent { return &tallyStarted{} },
		func() aggregate.DomainEvent { return &tallyCounted{} },
	)

	return registry
}

var errStoreDown = errors.New("store is down")

// failingSnapshotStore fails every call.
type failingSnapshotStore struct{}

func (failingSnapshotStore) Save(context.Context, eventstore.Snapshot) error {
	return errors.Join(eventstore.ErrSavingSnapshotFailed, errStoreDown)
}

func (failingSnapshotStore) Load(context.Context, uuid.UUID) (*eventstore.Snapshot, error) {
	return nil, errors.Join(eventstore.ErrLoadingSnapshotFailed, errStoreDown)
}

// stubEventStore returns fixed events from ReadFrom and records appends.
type stubEventStore struct {
	events eventstore.StorableEvents
}

func (s *stubEventStore) Append(context.Context, uuid.UUID, uint64, eventstore.StorableEvents) error {
	return nil
}

func (s *stubEventStore) ReadFrom(context.Context, uuid.UUID, uint64) (eventstore.StorableEvents, error) {
	return s.events, nil
}

// publisherSpy records published events and optionally fails.
type publisherSpy struct {
	mu        sync.Mutex
	published []aggregate.DomainEvent
	err       error
}

func (p *publisherSpy) Publish(_ context.Context, events []aggregate.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.published = append(p.published, events...)

	return p.err
}
