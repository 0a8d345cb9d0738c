package eventstore

import (
	"context"

	"github.com/google/uuid"
)

// EventStore is the append-only, per-aggregate event log.
//
// Implementations must be safe for concurrent use. Any failure other than
// ErrConcurrencyConflict is a persistence error and is returned joined with one of the
// package's sentinel errors.
type EventStore interface {
	// Append atomically appends events to the stream of aggregateID if and only if the latest stored
	// sequence of that stream equals expectedVersion (0 for a stream that does not exist yet).
	// Otherwise, it returns ErrConcurrencyConflict and stores nothing.
	// Appending an empty slice is a no-op.
	Append(ctx context.Context, aggregateID uuid.UUID, expectedVersion uint64, events StorableEvents) error

	// ReadFrom returns the events of aggregateID with sequence > afterVersion in ascending sequence order.
	// It returns an empty slice if there are none.
	ReadFrom(ctx context.Context, aggregateID uuid.UUID, afterVersion uint64) (StorableEvents, error)
}

// SnapshotStore keeps the latest snapshot per aggregate.
type SnapshotStore interface {
	// Save stores the snapshot. A store keeps at most one snapshot per aggregate and
	// never replaces a snapshot with one of a lower version.
	Save(ctx context.Context, snapshot Snapshot) error

	// Load returns the latest snapshot of aggregateID, or nil and no error if none exists.
	Load(ctx context.Context, aggregateID uuid.UUID) (*Snapshot, error)
}
