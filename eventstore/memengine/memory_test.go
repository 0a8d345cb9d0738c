package memengine_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore/memengine"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/testutil/fixtures"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/testutil/helper"
)

func Test_Append_And_ReadFrom(t *testing.T) {
	// setup
	ctx := context.Background()
	store := memengine.NewEventStore()
	aggregateID := uuid.New()

	// arrange
	events := fixtures.StorableEvents(t, aggregateID, 1, 3)

	// act
	err := store.Append(ctx, aggregateID, 0, events)
	require.NoError(t, err)

	all, readAllErr := store.ReadFrom(ctx, aggregateID, 0)
	tail, readTailErr := store.ReadFrom(ctx, aggregateID, 2)
	none, readNoneErr := store.ReadFrom(ctx, aggregateID, 3)

	// assert
	require.NoError(t, readAllErr)
	require.NoError(t, readTailErr)
	require.NoError(t, readNoneErr)
	assert.Equal(t, events, all)
	assert.Equal(t, events[2:], tail)
	assert.Empty(t, none)
}

func Test_ReadFrom_When_TheStreamDoesNotExist(t *testing.T) {
	// setup
	store := memengine.NewEventStore()

	// act
	events, err := store.ReadFrom(context.Background(), uuid.New(), 0)

	// assert
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func Test_Append_When_A_ConcurrencyConflict_ShouldHappen(t *testing.T) {
	// setup
	ctx := context.Background()
	logHandler := helper.NewLogHandlerSpy(false)
	store := memengine.NewEventStore(memengine.WithLogger(slog.New(logHandler)))
	aggregateID := uuid.New()
	stored := fixtures.StorableEvents(t, aggregateID, 1, 4)
	require.NoError(t, store.Append(ctx, aggregateID, 0, stored))

	// arrange
	conflicting := fixtures.StorableEvents(t, aggregateID, 4, 1)

	// act
	err := store.Append(ctx, aggregateID, 3, conflicting)

	// assert
	assert.ErrorIs(t, err, eventstore.ErrConcurrencyConflict)
	actual, readErr := store.ReadFrom(ctx, aggregateID, 0)
	require.NoError(t, readErr)
	assert.Equal(t, stored, actual, "a conflicting append must leave the stream untouched")
	assert.True(t, logHandler.HasInfoLogWithMessage("eventstore operation: concurrency conflict detected").Assert())
}

func Test_Append_When_TheExpectedVersionIsAhead(t *testing.T) {
	// setup
	ctx := context.Background()
	store := memengine.NewEventStore()
	aggregateID := uuid.New()

	// act
	err := store.Append(ctx, aggregateID, 2, fixtures.StorableEvents(t, aggregateID, 3, 1))

	// assert
	assert.ErrorIs(t, err, eventstore.ErrConcurrencyConflict)
}

func Test_Append_When_TheBatchIsMalformed(t *testing.T) {
	// setup
	ctx := context.Background()
	store := memengine.NewEventStore()
	aggregateID := uuid.New()

	// act
	err := store.Append(ctx, aggregateID, 0, fixtures.StorableEvents(t, uuid.New(), 1, 1))

	// assert
	assert.ErrorIs(t, err, eventstore.ErrMismatchedAggregateID)
}

func Test_Append_When_ThereAreNoEvents(t *testing.T) {
	// setup
	store := memengine.NewEventStore()

	// act
	err := store.Append(context.Background(), uuid.New(), 5, nil)

	// assert
	assert.NoError(t, err)
}

func Test_Append_When_TheContextIsCanceled(t *testing.T) {
	// setup
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := memengine.NewEventStore()
	aggregateID := uuid.New()

	// act
	err := store.Append(ctx, aggregateID, 0, fixtures.StorableEvents(t, aggregateID, 1, 1))

	// assert
	assert.ErrorIs(t, err, eventstore.ErrAppendingEventFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func Test_Append_When_ConcurrentWritersUseTheSameExpectedVersion(t *testing.T) {
	// setup
	ctx := context.Background()
	store := memengine.NewEventStore()
	aggregateID := uuid.New()
	const writers = 10

	batches := make([]eventstore.StorableEvents, writers)
	for i := range batches {
		batches[i] = fixtures.StorableEvents(t, aggregateID, 1, 2)
	}

	var wg sync.WaitGroup
	results := make(chan error, writers)

	// act
	for _, batch := range batches {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.Append(ctx, aggregateID, 0, batch)
		}()
	}
	wg.Wait()
	close(results)

	// assert
	succeeded, conflicted := 0, 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}

		require.ErrorIs(t, err, eventstore.ErrConcurrencyConflict)
		conflicted++
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, writers-1, conflicted)

	events, err := store.ReadFrom(ctx, aggregateID, 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func Test_SnapshotStore_Save_And_Load(t *testing.T) {
	// setup
	ctx := context.Background()
	store := memengine.NewSnapshotStore()
	aggregateID := uuid.New()

	// arrange
	snapshot := fixtures.Snapshot(t, aggregateID, 4)

	// act
	err := store.Save(ctx, snapshot)
	require.NoError(t, err)
	loaded, loadErr := store.Load(ctx, aggregateID)

	// assert
	require.NoError(t, loadErr)
	require.NotNil(t, loaded)
	assert.Equal(t, snapshot, *loaded)
}

func Test_SnapshotStore_Load_When_ThereIsNoSnapshot(t *testing.T) {
	// setup
	store := memengine.NewSnapshotStore()

	// act
	loaded, err := store.Load(context.Background(), uuid.New())

	// assert
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func Test_SnapshotStore_Save_When_AStaleSnapshotIsSaved(t *testing.T) {
	// setup
	ctx := context.Background()
	store := memengine.NewSnapshotStore()
	aggregateID := uuid.New()
	newer := fixtures.Snapshot(t, aggregateID, 10)
	require.NoError(t, store.Save(ctx, newer))

	// act
	err := store.Save(ctx, fixtures.Snapshot(t, aggregateID, 5))

	// assert
	require.NoError(t, err)
	loaded, loadErr := store.Load(ctx, aggregateID)
	require.NoError(t, loadErr)
	assert.Equal(t, uint64(10), loaded.Version)
}

func Test_SnapshotStore_Save_When_TheSnapshotIsInvalid(t *testing.T) {
	// setup
	store := memengine.NewSnapshotStore()

	// act
	err := store.Save(context.Background(), eventstore.Snapshot{AggregateID: uuid.New(), AggregateType: "X", Version: 0})

	// assert
	assert.ErrorIs(t, err, eventstore.ErrZeroSnapshotVersion)
}
