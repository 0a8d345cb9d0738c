package eventstore

import (
	"errors"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var (
	// ErrInvalidPayloadJSON is returned when the payload is not valid JSON.
	ErrInvalidPayloadJSON = errors.New("payload json is not valid")

	// ErrInvalidMetadataJSON is returned when the metadata is not valid JSON.
	ErrInvalidMetadataJSON = errors.New("metadata json is not valid")

	// ErrEmptyEventType is returned when a StorableEvent is built without an event type.
	ErrEmptyEventType = errors.New("event type must not be empty")

	// ErrZeroSequence is returned when a StorableEvent is built with sequence 0.
	ErrZeroSequence = errors.New("event sequence must be greater than zero")
)

// StorableEvents is an alias type for a slice of StorableEvent
type StorableEvents = []StorableEvent

// StorableEvent is a DTO (data transfer object) used by the EventStore to append events and read them back.
//
// It is built on scalars to be completely agnostic of the implementation of Domain Events in the client code.
//
// While its properties are exported, it should only be constructed with the supplied factory methods:
//   - BuildStorableEvent
//   - BuildStorableEventWithEmptyMetadata
type StorableEvent struct {
	EventID       uuid.UUID
	AggregateID   uuid.UUID
	AggregateType string
	Sequence      uint64
	EventType     string
	OccurredAt    time.Time
	PayloadJSON   []byte
	MetadataJSON  []byte
}

// BuildStorableEvent is a factory method for StorableEvent.
//
// It populates the StorableEvent with the given scalar input.
// Returns an error if the aggregate id, event type or sequence are empty,
// or if payloadJSON or metadataJSON are not valid JSON.
func BuildStorableEvent(
	eventID uuid.UUID,
	aggregateID uuid.UUID,
	aggregateType string,
	sequence uint64,
	eventType string,
	occurredAt time.Time,
	payloadJSON []byte,
	metadataJSON []byte,
) (StorableEvent, error) {

	if aggregateID == uuid.Nil {
		return StorableEvent{}, ErrEmptyAggregateID
	}

	if eventType == "" {
		return StorableEvent{}, ErrEmptyEventType
	}

	if sequence == 0 {
		return StorableEvent{}, ErrZeroSequence
	}

	if !jsoniter.ConfigFastest.Valid(payloadJSON) {
		return StorableEvent{}, ErrInvalidPayloadJSON
	}

	if !jsoniter.ConfigFastest.Valid(metadataJSON) {
		return StorableEvent{}, ErrInvalidMetadataJSON
	}

	return StorableEvent{
		EventID:       eventID,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Sequence:      sequence,
		EventType:     eventType,
		OccurredAt:    occurredAt,
		PayloadJSON:   payloadJSON,
		MetadataJSON:  metadataJSON,
	}, nil
}

// BuildStorableEventWithEmptyMetadata is a factory method for StorableEvent.
//
// It populates the StorableEvent with the given scalar input and creates valid empty JSON for MetadataJSON.
func BuildStorableEventWithEmptyMetadata(
	eventID uuid.UUID,
	aggregateID uuid.UUID,
	aggregateType string,
	sequence uint64,
	eventType string,
	occurredAt time.Time,
	payloadJSON []byte,
) (StorableEvent, error) {

	return BuildStorableEvent(eventID, aggregateID, aggregateType, sequence, eventType, occurredAt, payloadJSON, []byte("{}"))
}

// ValidateAppend checks that events can be appended to the stream of aggregateID on top of expectedVersion:
// all events must belong to aggregateID and their sequences must be expectedVersion+1, expectedVersion+2, ...
//
// Engines call it before touching storage, so a malformed batch never reaches the database.
func ValidateAppend(aggregateID uuid.UUID, expectedVersion uint64, events StorableEvents) error {
	if aggregateID == uuid.Nil {
		return ErrEmptyAggregateID
	}

	for i, event := range events {
		if event.AggregateID != aggregateID {
			return ErrMismatchedAggregateID
		}

		if event.Sequence != expectedVersion+uint64(i)+1 { //nolint:gosec // i is never negative
			return ErrNonContiguousSequence
		}
	}

	return nil
}
