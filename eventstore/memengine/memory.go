// Package memengine provides in-process implementations of eventstore.EventStore and
// eventstore.SnapshotStore backed by maps.
//
// They are meant for tests, demos and single-process tools. Both are safe for concurrent use
// and implement the same contracts as the database engines, including the expected-version check.
package memengine

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

const (
	logMsgEventsAppended      = "eventstore operation: events appended"
	logMsgConcurrencyConflict = "eventstore operation: concurrency conflict detected"
	logMsgSnapshotSaved       = "snapshot store operation: snapshot saved"
	logMsgStaleSnapshot       = "snapshot store operation: stale snapshot ignored"
	logAttrAggregateID        = "aggregate_id"
	logAttrEventCount         = "event_count"
	logAttrExpectedVersion    = "expected_version"
	logAttrActualVersion      = "actual_version"
	logAttrVersion            = "version"
)

// EventStore keeps all event streams in memory.
type EventStore struct {
	mu      sync.RWMutex
	streams map[uuid.UUID]eventstore.StorableEvents
	logger  eventstore.Logger
}

// Option defines a functional option for configuring the in-memory stores.
type Option func(*options)

type options struct {
	logger eventstore.Logger
}

// WithLogger sets the logger for operational messages.
func WithLogger(logger eventstore.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// NewEventStore creates an empty in-memory event store.
func NewEventStore(opts ...Option) *EventStore {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	return &EventStore{
		streams: make(map[uuid.UUID]eventstore.StorableEvents),
		logger:  o.logger,
	}
}

// Append appends events to the stream of aggregateID if its latest sequence equals expectedVersion.
func (s *EventStore) Append(
	ctx context.Context,
	aggregateID uuid.UUID,
	expectedVersion uint64,
	events eventstore.StorableEvents,
) error {

	if err := ctx.Err(); err != nil {
		return errors.Join(eventstore.ErrAppendingEventFailed, err)
	}

	if len(events) == 0 {
		return nil
	}

	if err := eventstore.ValidateAppend(aggregateID, expectedVersion, events); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[aggregateID]

	actualVersion := uint64(0)
	if len(stream) > 0 {
		actualVersion = stream[len(stream)-1].Sequence
	}

	if actualVersion != expectedVersion {
		s.logInfo(
			logMsgConcurrencyConflict,
			logAttrAggregateID, aggregateID.String(),
			logAttrExpectedVersion, expectedVersion,
			logAttrActualVersion, actualVersion,
		)

		return eventstore.ErrConcurrencyConflict
	}

	s.streams[aggregateID] = append(stream, cloneEvents(events)...)

	s.logInfo(logMsgEventsAppended, logAttrAggregateID, aggregateID.String(), logAttrEventCount, len(events))

	return nil
}

// ReadFrom returns the events of aggregateID with sequence > afterVersion in ascending order.
func (s *EventStore) ReadFrom(
	ctx context.Context,
	aggregateID uuid.UUID,
	afterVersion uint64,
) (eventstore.StorableEvents, error) {

	if err := ctx.Err(); err != nil {
		return nil, errors.Join(eventstore.ErrQueryingEventsFailed, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[aggregateID]

	// sequences are gapless and start at 1, so the event with sequence afterVersion+1 sits at index afterVersion
	if afterVersion >= uint64(len(stream)) {
		return eventstore.StorableEvents{}, nil
	}

	return cloneEvents(stream[afterVersion:]), nil
}

func (s *EventStore) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

// SnapshotStore keeps the latest snapshot per aggregate in memory.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[uuid.UUID]eventstore.Snapshot
	logger    eventstore.Logger
}

// NewSnapshotStore creates an empty in-memory snapshot store.
func NewSnapshotStore(opts ...Option) *SnapshotStore {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	return &SnapshotStore{
		snapshots: make(map[uuid.UUID]eventstore.Snapshot),
		logger:    o.logger,
	}
}

// Save stores the snapshot unless a snapshot with a higher version is already stored.
func (s *SnapshotStore) Save(ctx context.Context, snapshot eventstore.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(eventstore.ErrSavingSnapshotFailed, err)
	}

	if err := snapshot.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.snapshots[snapshot.AggregateID]; ok && existing.Version > snapshot.Version {
		if s.logger != nil {
			s.logger.Debug(logMsgStaleSnapshot, logAttrAggregateID, snapshot.AggregateID.String(), logAttrVersion, snapshot.Version)
		}

		return nil
	}

	snapshot.Data = slices.Clone(snapshot.Data)
	s.snapshots[snapshot.AggregateID] = snapshot

	if s.logger != nil {
		s.logger.Info(logMsgSnapshotSaved, logAttrAggregateID, snapshot.AggregateID.String(), logAttrVersion, snapshot.Version)
	}

	return nil
}

// Load returns the stored snapshot of aggregateID, or nil if there is none.
func (s *SnapshotStore) Load(ctx context.Context, aggregateID uuid.UUID) (*eventstore.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(eventstore.ErrLoadingSnapshotFailed, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[aggregateID]
	if !ok {
		return nil, nil //nolint:nilnil // no snapshot is a regular result
	}

	snapshot.Data = slices.Clone(snapshot.Data)

	return &snapshot, nil
}

func cloneEvents(events eventstore.StorableEvents) eventstore.StorableEvents {
	cloned := make(eventstore.StorableEvents, len(events))
	for i, event := range events {
		event.PayloadJSON = slices.Clone(event.PayloadJSON)
		event.MetadataJSON = slices.Clone(event.MetadataJSON)
		cloned[i] = event
	}

	return cloned
}
