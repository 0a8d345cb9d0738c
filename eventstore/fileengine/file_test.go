package fileengine_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore/fileengine"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/testutil/fixtures"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/testutil/helper"
)

func newEventStore(t *testing.T, dir string, opts ...fileengine.Option) *fileengine.EventStore {
	t.Helper()

	store, err := fileengine.NewEventStore(dir, opts...)
	require.NoError(t, err)

	return store
}

func newSnapshotStore(t *testing.T, dir string, opts ...fileengine.Option) *fileengine.SnapshotStore {
	t.Helper()

	store, err := fileengine.NewSnapshotStore(dir, opts...)
	require.NoError(t, err)

	return store
}

func Test_Append_And_ReadFrom(t *testing.T) {
	// setup
	ctx := context.Background()
	store := newEventStore(t, t.TempDir())
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

func Test_ReadFrom_ShouldSee_TheEventsOfAnotherStoreInstance(t *testing.T) {
	// setup
	ctx := context.Background()
	dir := t.TempDir()
	aggregateID := uuid.New()
	events := fixtures.StorableEvents(t, aggregateID, 1, 2)
	require.NoError(t, newEventStore(t, dir).Append(ctx, aggregateID, 0, events))

	// act
	actual, err := newEventStore(t, dir).ReadFrom(ctx, aggregateID, 0)

	// assert
	require.NoError(t, err)
	assert.Equal(t, events, actual)
	assert.FileExists(t, filepath.Join(dir, aggregateID.String()+".json"))
}

func Test_ReadFrom_When_TheStreamDoesNotExist(t *testing.T) {
	// setup
	store := newEventStore(t, t.TempDir())

	// act
	events, err := store.ReadFrom(context.Background(), uuid.New(), 0)

	// assert
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func Test_ReadFrom_When_TheStreamFileIsCorrupt(t *testing.T) {
	// setup
	dir := t.TempDir()
	store := newEventStore(t, dir)
	aggregateID := uuid.New()
	require.NoError(t, os.WriteFile(filepath.Join(dir, aggregateID.String()+".json"), []byte(`[{"sequence":`), 0o600))

	// act
	events, err := store.ReadFrom(context.Background(), aggregateID, 0)

	// assert
	assert.ErrorIs(t, err, eventstore.ErrQueryingEventsFailed)
	assert.ErrorIs(t, err, fileengine.ErrCorruptFile)
	assert.Nil(t, events)
}

func Test_Append_When_A_ConcurrencyConflict_ShouldHappen(t *testing.T) {
	// setup
	ctx := context.Background()
	logHandler := helper.NewLogHandlerSpy(false)
	store := newEventStore(t, t.TempDir(), fileengine.WithLogger(slog.New(logHandler)))
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
	store := newEventStore(t, t.TempDir())
	aggregateID := uuid.New()

	// act
	err := store.Append(ctx, aggregateID, 2, fixtures.StorableEvents(t, aggregateID, 3, 1))

	// assert
	assert.ErrorIs(t, err, eventstore.ErrConcurrencyConflict)
}

func Test_Append_When_TheBatchIsMalformed(t *testing.T) {
	// setup
	ctx := context.Background()
	store := newEventStore(t, t.TempDir())
	aggregateID := uuid.New()

	// act
	err := store.Append(ctx, aggregateID, 0, fixtures.StorableEvents(t, uuid.New(), 1, 1))

	// assert
	assert.ErrorIs(t, err, eventstore.ErrMismatchedAggregateID)
}

func Test_Append_When_ThereAreNoEvents(t *testing.T) {
	// setup
	store := newEventStore(t, t.TempDir())

	// act
	err := store.Append(context.Background(), uuid.New(), 5, nil)

	// assert
	assert.NoError(t, err)
}

func Test_Append_When_TheContextIsCanceled(t *testing.T) {
	// setup
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := newEventStore(t, t.TempDir())
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
	store := newEventStore(t, t.TempDir())
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

func Test_NewEventStore_When_TheDirectoryIsEmpty(t *testing.T) {
	// act
	store, err := fileengine.NewEventStore("")

	// assert
	assert.ErrorIs(t, err, fileengine.ErrEmptyDirectory)
	assert.Nil(t, store)
}

func Test_SnapshotStore_Save_And_Load(t *testing.T) {
	// setup
	ctx := context.Background()
	store := newSnapshotStore(t, t.TempDir())
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

func Test_SnapshotStore_ShouldKeep_AllSnapshotsInOneFile(t *testing.T) {
	// setup
	ctx := context.Background()
	dir := t.TempDir()
	store := newSnapshotStore(t, dir, fileengine.WithSnapshotFileName("snapshot-instance.json"))
	first, second := uuid.New(), uuid.New()

	// act
	require.NoError(t, store.Save(ctx, fixtures.Snapshot(t, first, 3)))
	require.NoError(t, store.Save(ctx, fixtures.Snapshot(t, second, 7)))
	reopened := newSnapshotStore(t, dir, fileengine.WithSnapshotFileName("snapshot-instance.json"))
	loadedFirst, firstErr := reopened.Load(ctx, first)
	loadedSecond, secondErr := reopened.Load(ctx, second)

	// assert
	require.NoError(t, firstErr)
	require.NoError(t, secondErr)
	assert.Equal(t, uint64(3), loadedFirst.Version)
	assert.Equal(t, uint64(7), loadedSecond.Version)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
	assert.Equal(t, "snapshot-instance.json", entries[0].Name())
}

func Test_SnapshotStore_Load_When_ThereIsNoSnapshot(t *testing.T) {
	// setup
	store := newSnapshotStore(t, t.TempDir())

	// act
	loaded, err := store.Load(context.Background(), uuid.New())

	// assert
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func Test_SnapshotStore_Load_When_TheFileIsCorrupt(t *testing.T) {
	// setup
	dir := t.TempDir()
	store := newSnapshotStore(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileengine.DefaultSnapshotFileName), []byte(`{`), 0o600))

	// act
	loaded, err := store.Load(context.Background(), uuid.New())

	// assert
	assert.ErrorIs(t, err, eventstore.ErrLoadingSnapshotFailed)
	assert.ErrorIs(t, err, fileengine.ErrCorruptFile)
	assert.Nil(t, loaded)
}

func Test_SnapshotStore_Save_When_AStaleSnapshotIsSaved(t *testing.T) {
	// setup
	ctx := context.Background()
	store := newSnapshotStore(t, t.TempDir())
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
	store := newSnapshotStore(t, t.TempDir())

	// act
	err := store.Save(context.Background(), eventstore.Snapshot{AggregateID: uuid.New(), AggregateType: "X", Version: 0})

	// assert
	assert.ErrorIs(t, err, eventstore.ErrZeroSnapshotVersion)
}

func Test_NewSnapshotStore_When_TheSnapshotFileNameIsInvalid(t *testing.T) {
	testCases := []struct {
		name     string
		fileName string
	}{
		{"empty", ""},
		{"nested path", "nested/snapshots.json"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			store, err := fileengine.NewSnapshotStore(t.TempDir(), fileengine.WithSnapshotFileName(tc.fileName))

			// assert
			assert.ErrorIs(t, err, fileengine.ErrInvalidSnapshotFileName)
			assert.Nil(t, store)
		})
	}
}
