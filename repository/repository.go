package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/aggregate"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

var (
	// ErrAggregateNotFound is returned by Load when neither a snapshot nor events exist for the id.
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrCorruptEventStream is returned by Load when the stored sequences do not continue the version gaplessly.
	ErrCorruptEventStream = errors.New("stored event sequences are not contiguous")

	// ErrExpectedVersionMismatch is returned by Save, joined with eventstore.ErrConcurrencyConflict, when
	// the expected version does not match the version the aggregate's uncommitted events build on.
	ErrExpectedVersionMismatch = errors.New("expected version does not match the committed version of the aggregate")

	// ErrRestoringSnapshotFailed wraps failures while restoring an aggregate from its snapshot.
	ErrRestoringSnapshotFailed = errors.New("restoring the aggregate from its snapshot failed")

	// ErrPublishingFailed is returned by Save when the publisher failed after the events were committed.
	// The events are persisted, so the command must not be retried.
	ErrPublishingFailed = errors.New("publishing committed events failed")
)

// Factory creates a new aggregate at version 0.
type Factory[A aggregate.Aggregate] func(id uuid.UUID) A

// Publisher receives the events of every successful save, in order.
type Publisher interface {
	Publish(ctx context.Context, events []aggregate.DomainEvent) error
}

// Repository loads and saves aggregates of type A. It holds no aggregate state, so it is safe for
// concurrent use as long as its stores are.
type Repository[A aggregate.Aggregate] struct {
	eventStore eventstore.EventStore
	registry   *EventRegistry
	factory    Factory[A]
	config
}

// NewRepository creates a Repository that reads and writes events of A through eventStore.
func NewRepository[A aggregate.Aggregate](
	eventStore eventstore.EventStore,
	registry *EventRegistry,
	factory Factory[A],
	options ...Option,
) (*Repository[A], error) {

	if eventStore == nil {
		return nil, ErrNilEventStore
	}

	if registry == nil {
		return nil, ErrNilEventRegistry
	}

	if factory == nil {
		return nil, ErrNilFactory
	}

	r := &Repository[A]{
		eventStore: eventStore,
		registry:   registry,
		factory:    factory,
		config: config{
			snapshotPolicy: NeverSnapshot(),
			now:            time.Now,
		},
	}

	for _, option := range options {
		if err := option(&r.config); err != nil {
			return nil, err
		}
	}

	if r.snapshotStore != nil {
		var sample A
		if _, ok := any(sample).(aggregate.Snapshotter); !ok {
			return nil, ErrAggregateNotSnapshottable
		}
	}

	return r, nil
}

// Load rebuilds the aggregate with the given id from its latest snapshot, if snapshots are enabled,
// and the events stored after it. It returns ErrAggregateNotFound if nothing is stored for the id.
func (r *Repository[A]) Load(ctx context.Context, id uuid.UUID) (A, error) {
	var empty A

	tracer, ctx := r.startLoadTracing(ctx, id)
	metrics := r.startMetrics(ctx, operationLoad)
	start := time.Now()

	agg, fromVersion, snapshotErr := r.restoreFromSnapshot(ctx, id)
	if snapshotErr != nil {
		r.observeLoadError(ctx, tracer, metrics, id, errorTypeSnapshotLoad, snapshotErr, time.Since(start))
		return empty, snapshotErr
	}

	stored, readErr := r.eventStore.ReadFrom(ctx, id, fromVersion)
	if readErr != nil {
		r.observeLoadError(ctx, tracer, metrics, id, errorTypeEventStore, readErr, time.Since(start))
		return empty, readErr
	}

	if fromVersion == 0 && len(stored) == 0 {
		tracer.finishError(errorTypeNotFound)
		metrics.recordError(errorTypeNotFound, time.Since(start))
		return empty, ErrAggregateNotFound
	}

	events, decodeErr := r.decode(ctx, stored, fromVersion)
	if decodeErr != nil {
		r.observeLoadError(ctx, tracer, metrics, id, errorTypeDecode, decodeErr, time.Since(start))
		return empty, decodeErr
	}

	if replayErr := agg.ReplayEvents(events); replayErr != nil {
		r.observeLoadError(ctx, tracer, metrics, id, errorTypeReplay, replayErr, time.Since(start))
		return empty, replayErr
	}

	duration := time.Since(start)
	tracer.finishLoadSuccess(agg.Version(), len(events), fromVersion > 0)
	metrics.recordLoadSuccess(len(events), duration)
	r.logOperation(ctx, logMsgAggregateLoaded,
		logAttrAggregateID, id.String(),
		logAttrAggregateType, agg.AggregateType(),
		logAttrVersion, agg.Version(),
		logAttrSnapshotVersion, fromVersion,
		logAttrEventsReplayed, len(events),
		logAttrDurationMS, toMilliseconds(duration),
	)

	return agg, nil
}

// Save appends the uncommitted events of agg to the event store if the stored version of the aggregate
// still equals expectedVersion, which is normally agg.CommittedVersion().
//
// Errors of the event store, eventstore.ErrConcurrencyConflict included, are returned unchanged and
// leave agg untouched. After a successful append the uncommitted events are cleared, a snapshot is taken
// if the snapshot policy asks for one and the events are published. Snapshot failures are only logged.
// Saving an aggregate without uncommitted events is a no-op.
func (r *Repository[A]) Save(ctx context.Context, agg A, expectedVersion uint64) error {
	events := agg.UncommittedEvents()
	if len(events) == 0 {
		return nil
	}

	tracer, ctx := r.startSaveTracing(ctx, agg, expectedVersion, len(events))
	metrics := r.startMetrics(ctx, operationSave)
	start := time.Now()

	if expectedVersion != agg.CommittedVersion() {
		err := errors.Join(eventstore.ErrConcurrencyConflict, ErrExpectedVersionMismatch)
		r.observeConflict(ctx, tracer, metrics, agg, expectedVersion, time.Since(start))
		return err
	}

	stored := make(eventstore.StorableEvents, 0, len(events))
	for _, event := range events {
		storable, encodeErr := r.registry.Encode(ctx, agg.AggregateType(), event)
		if encodeErr != nil {
			r.observeSaveError(ctx, tracer, metrics, agg, errorTypeEncode, encodeErr, time.Since(start))
			return encodeErr
		}

		stored = append(stored, storable)
	}

	if appendErr := r.eventStore.Append(ctx, agg.ID(), expectedVersion, stored); appendErr != nil {
		if errors.Is(appendErr, eventstore.ErrConcurrencyConflict) {
			r.observeConflict(ctx, tracer, metrics, agg, expectedVersion, time.Since(start))
			return appendErr
		}

		r.observeSaveError(ctx, tracer, metrics, agg, errorTypeEventStore, appendErr, time.Since(start))
		return appendErr
	}

	agg.MarkCommitted()

	snapshotTaken := r.snapshotIfDue(ctx, agg, expectedVersion)

	duration := time.Since(start)
	tracer.finishSaveSuccess(agg.Version(), snapshotTaken)
	metrics.recordSaveSuccess(len(events), duration)
	r.logOperation(ctx, logMsgAggregateSaved,
		logAttrAggregateID, agg.ID().String(),
		logAttrAggregateType, agg.AggregateType(),
		logAttrVersion, agg.Version(),
		logAttrEventCount, len(events),
		logAttrSnapshotTaken, snapshotTaken,
		logAttrDurationMS, toMilliseconds(duration),
	)

	if r.publisher != nil {
		if publishErr := r.publisher.Publish(ctx, events); publishErr != nil {
			r.logError(ctx, logMsgPublishingFailed, publishErr, logAttrAggregateID, agg.ID().String())
			return errors.Join(ErrPublishingFailed, publishErr)
		}
	}

	return nil
}

// restoreFromSnapshot creates the aggregate, restored from its latest snapshot if there is one,
// and returns the version it starts from.
func (r *Repository[A]) restoreFromSnapshot(ctx context.Context, id uuid.UUID) (A, uint64, error) {
	var empty A

	agg := r.factory(id)

	if r.snapshotStore == nil {
		return agg, 0, nil
	}

	snapshot, loadErr := r.snapshotStore.Load(ctx, id)
	if loadErr != nil {
		return empty, 0, loadErr
	}

	if snapshot == nil {
		return agg, 0, nil
	}

	snapshotter, _ := any(agg).(aggregate.Snapshotter) // checked in NewRepository

	if err := snapshotter.RestoreSnapshot(snapshot.Data); err != nil {
		return empty, 0, errors.Join(ErrRestoringSnapshotFailed, err)
	}

	if err := agg.RestoreVersion(snapshot.Version); err != nil {
		return empty, 0, errors.Join(ErrRestoringSnapshotFailed, err)
	}

	r.logDebug(ctx, logMsgSnapshotRestored, logAttrAggregateID, id.String(), logAttrSnapshotVersion, snapshot.Version)

	return agg, snapshot.Version, nil
}

// decode converts the stored events and checks that they continue fromVersion without gaps.
func (r *Repository[A]) decode(ctx context.Context, stored eventstore.StorableEvents, fromVersion uint64) ([]aggregate.DomainEvent, error) {
	events := make([]aggregate.DomainEvent, 0, len(stored))

	for i, storable := range stored {
		if storable.Sequence != fromVersion+uint64(i)+1 { //nolint:gosec // i is never negative
			return nil, ErrCorruptEventStream
		}

		event, err := r.registry.Decode(storable)
		if err != nil {
			return nil, err
		}

		if _, unknown := event.(*UnknownEvent); unknown {
			r.logDebug(ctx, logMsgUnknownEventType, logAttrEventType, storable.EventType, logAttrSequence, storable.Sequence)
		}

		events = append(events, event)
	}

	return events, nil
}

// snapshotIfDue takes a snapshot if the policy asks for one and reports whether it was stored.
func (r *Repository[A]) snapshotIfDue(ctx context.Context, agg A, previousVersion uint64) bool {
	if r.snapshotStore == nil || !r.snapshotPolicy.ShouldSnapshot(previousVersion, agg.Version()) {
		return false
	}

	snapshotter, _ := any(agg).(aggregate.Snapshotter) // checked in NewRepository

	data, serializeErr := snapshotter.Snapshot()
	if serializeErr != nil {
		r.observeSnapshotFailure(ctx, agg, serializeErr)
		return false
	}

	snapshot, buildErr := eventstore.BuildSnapshot(agg.ID(), agg.AggregateType(), agg.Version(), data, r.now())
	if buildErr != nil {
		r.observeSnapshotFailure(ctx, agg, buildErr)
		return false
	}

	if saveErr := r.snapshotStore.Save(ctx, snapshot); saveErr != nil {
		r.observeSnapshotFailure(ctx, agg, saveErr)
		return false
	}

	r.incrementCounter(ctx, metricSnapshotsSaved, map[string]string{labelAggregateType: agg.AggregateType()})

	return true
}
