package identifier_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/identifier"
)

func Test_New_ShouldGenerate_TimeOrderedIdentifiers(t *testing.T) {
	// arrange
	const count = 1000
	ids := make([]uuid.UUID, 0, count)

	// act
	for range count {
		ids = append(ids, identifier.New())
	}

	// assert
	for i := 1; i < len(ids); i++ {
		assert.Equal(t, -1, identifier.Compare(ids[i-1], ids[i]), "id %d must sort after id %d", i, i-1)
	}
}

func Test_New_ShouldGenerate_Version7Identifiers(t *testing.T) {
	// act
	id := identifier.New()

	// assert
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.Equal(t, uuid.RFC4122, id.Variant())
}

func Test_New_ShouldBe_SafeForConcurrentUse(t *testing.T) {
	// arrange
	const workers = 8
	const perWorker = 500

	var mu sync.Mutex
	var wg sync.WaitGroup
	seen := make(map[uuid.UUID]struct{}, workers*perWorker)

	// act
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			local := make([]uuid.UUID, 0, perWorker)
			for range perWorker {
				local = append(local, identifier.New())
			}

			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
		}()
	}
	wg.Wait()

	// assert
	assert.Len(t, seen, workers*perWorker, "all generated identifiers must be unique")
}

func Test_Timestamp_ShouldReturn_TheCreationTime(t *testing.T) {
	// arrange
	before := time.Now().Truncate(time.Millisecond)
	id := identifier.New()
	after := time.Now()

	// act
	ts, err := identifier.Timestamp(id)

	// assert
	require.NoError(t, err)
	assert.False(t, ts.Before(before), "timestamp %s must not be before %s", ts, before)
	assert.False(t, ts.After(after), "timestamp %s must not be after %s", ts, after)
}

func Test_Timestamp_When_TheIdentifierIsNotTimeOrdered(t *testing.T) {
	// act
	_, err := identifier.Timestamp(uuid.New())

	// assert
	assert.ErrorIs(t, err, identifier.ErrNotTimeOrdered)
}

func Test_Sequence_ShouldHandOut_TheGivenIdentifiers_ThenFallBack(t *testing.T) {
	// arrange
	first := identifier.MustParse("01890a5d-ac96-774b-bcce-b302099a8057")
	second := identifier.MustParse("01890a5d-ac96-774b-bcce-b302099a8058")
	generate := identifier.Sequence(first, second)

	// act
	got := []uuid.UUID{generate(), generate(), generate()}

	// assert
	assert.Equal(t, first, got[0])
	assert.Equal(t, second, got[1])
	assert.NotEqual(t, uuid.Nil, got[2])
	assert.NotEqual(t, second, got[2])
}

func Test_Parse_When_TheInputIsMalformed(t *testing.T) {
	// act
	_, err := identifier.Parse("not-a-uuid")

	// assert
	assert.Error(t, err)
}
