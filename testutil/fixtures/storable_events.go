package fixtures

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

// FixtureAggregateType is the aggregate type of all fixture events.
const FixtureAggregateType = "FixtureAggregate"

// FixtureEventType is the event type of all fixture events.
const FixtureEventType = "SomethingHasHappened"

// FixtureOccurredAt is the fixed date fixture events occurred at. Postgres stores microseconds, so it has none below.
var FixtureOccurredAt = time.Date(2026, time.January, 2, 3, 4, 5, 6000, time.UTC)

// StorableEvents builds count contiguous events for aggregateID, starting with sequence fromSequence.
func StorableEvents(t testing.TB, aggregateID uuid.UUID, fromSequence uint64, count int) eventstore.StorableEvents {
	t.Helper()

	events := make(eventstore.StorableEvents, 0, count)
	for i := range count {
		sequence := fromSequence + uint64(i) //nolint:gosec // i is never negative
		events = append(events, StorableEvent(t, aggregateID, sequence))
	}

	return events
}

// StorableEvent builds one fixture event with the given sequence.
func StorableEvent(t testing.TB, aggregateID uuid.UUID, sequence uint64) eventstore.StorableEvent {
	t.Helper()

	event, err := eventstore.BuildStorableEvent(
		uuid.New(),
		aggregateID,
		FixtureAggregateType,
		sequence,
		FixtureEventType,
		FixtureOccurredAt,
		[]byte(fmt.Sprintf(`{"Message":"event %d"}`, sequence)),
		[]byte(fmt.Sprintf(`{"MessageID":"%s"}`, uuid.New())),
	)
	require.NoError(t, err)

	return event
}

// Snapshot builds a fixture snapshot of aggregateID at version.
func Snapshot(t testing.TB, aggregateID uuid.UUID, version uint64) eventstore.Snapshot {
	t.Helper()

	snapshot, err := eventstore.BuildSnapshot(
		aggregateID,
		FixtureAggregateType,
		version,
		[]byte(fmt.Sprintf(`{"Counter":%d}`, version)),
		FixtureOccurredAt,
	)
	require.NoError(t, err)

	return snapshot
}
