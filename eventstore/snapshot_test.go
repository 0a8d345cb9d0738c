package eventstore_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

func Test_BuildSnapshot(t *testing.T) {
	// arrange
	aggregateID := uuid.New()
	createdAt := time.Now()

	// act
	snapshot, err := eventstore.BuildSnapshot(aggregateID, "BankAccount", 4, json.RawMessage(`{"balance": 670}`), createdAt)

	// assert
	require.NoError(t, err)
	assert.Equal(t, aggregateID, snapshot.AggregateID)
	assert.Equal(t, "BankAccount", snapshot.AggregateType)
	assert.Equal(t, uint64(4), snapshot.Version)
	assert.JSONEq(t, `{"balance": 670}`, string(snapshot.Data))
	assert.Equal(t, createdAt, snapshot.CreatedAt)
}

func Test_BuildSnapshot_ErrorCases(t *testing.T) {
	tests := []struct {
		name          string
		aggregateID   uuid.UUID
		aggregateType string
		version       uint64
		data          json.RawMessage
		expectedErr   error
	}{
		{
			name:          "empty aggregate id",
			aggregateID:   uuid.Nil,
			aggregateType: "BankAccount",
			version:       1,
			data:          json.RawMessage(`{}`),
			expectedErr:   eventstore.ErrEmptyAggregateID,
		},
		{
			name:          "empty aggregate type",
			aggregateID:   uuid.New(),
			aggregateType: "",
			version:       1,
			data:          json.RawMessage(`{}`),
			expectedErr:   eventstore.ErrEmptyAggregateType,
		},
		{
			name:          "zero version",
			aggregateID:   uuid.New(),
			aggregateType: "BankAccount",
			version:       0,
			data:          json.RawMessage(`{}`),
			expectedErr:   eventstore.ErrZeroSnapshotVersion,
		},
		{
			name:          "invalid json",
			aggregateID:   uuid.New(),
			aggregateType: "BankAccount",
			version:       1,
			data:          json.RawMessage(`{"balance": }`),
			expectedErr:   eventstore.ErrInvalidSnapshotJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eventstore.BuildSnapshot(tt.aggregateID, tt.aggregateType, tt.version, tt.data, time.Now())

			assert.ErrorIs(t, err, tt.expectedErr)
		})
	}
}
