package eventstore

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var (
	// ErrInvalidSnapshotJSON is returned when snapshot JSON data is malformed or invalid.
	ErrInvalidSnapshotJSON = errors.New("snapshot json is not valid")

	// ErrEmptyAggregateType is returned when an empty aggregate type is provided.
	ErrEmptyAggregateType = errors.New("aggregate type must not be empty")

	// ErrZeroSnapshotVersion is returned for a snapshot of an aggregate without any events.
	ErrZeroSnapshotVersion = errors.New("snapshot version must be greater than zero")

	// ErrSavingSnapshotFailed is returned when the snapshot save operation fails.
	ErrSavingSnapshotFailed = errors.New("saving snapshot failed")

	// ErrLoadingSnapshotFailed is returned when the snapshot load operation fails.
	ErrLoadingSnapshotFailed = errors.New("loading snapshot failed")
)

// Snapshot is the serialized state of an aggregate as of exactly Version applied events.
// Loading the snapshot and replaying the events with sequence > Version must produce
// the same state as replaying the full stream.
type Snapshot struct {
	AggregateID   uuid.UUID       // Aggregate the state belongs to
	AggregateType string          // Type of the aggregate (e.g., "BankAccount")
	Version       uint64          // Number of events the state reflects
	Data          json.RawMessage // Serialized aggregate state as JSON
	CreatedAt     time.Time       // When this snapshot was taken
}

// Validate ensures the snapshot has valid data for storage operations.
func (s Snapshot) Validate() error {
	if s.AggregateID == uuid.Nil {
		return ErrEmptyAggregateID
	}

	if s.AggregateType == "" {
		return ErrEmptyAggregateType
	}

	if s.Version == 0 {
		return ErrZeroSnapshotVersion
	}

	if !jsoniter.ConfigFastest.Valid(s.Data) {
		return ErrInvalidSnapshotJSON
	}

	return nil
}

// BuildSnapshot creates a new Snapshot with validation.
func BuildSnapshot(
	aggregateID uuid.UUID,
	aggregateType string,
	version uint64,
	data json.RawMessage,
	createdAt time.Time,
) (Snapshot, error) {

	snapshot := Snapshot{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       version,
		Data:          data,
		CreatedAt:     createdAt,
	}

	if err := snapshot.Validate(); err != nil {
		return Snapshot{}, err
	}

	return snapshot, nil
}
