package eventstore

import (
	"errors"
)

var (
	// ErrConcurrencyConflict is returned by Append when the latest stored sequence of the aggregate
	// does not match the expected version.
	ErrConcurrencyConflict = errors.New("concurrency error, expected version does not match the stored version")

	// ErrNilDatabaseConnection is returned when a nil database connection is supplied to an engine.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrEmptyEventsTableName is returned when an empty events table name is supplied.
	ErrEmptyEventsTableName = errors.New("events table name must not be empty")

	// ErrEmptySnapshotsTableName is returned when an empty snapshots table name is supplied.
	ErrEmptySnapshotsTableName = errors.New("snapshots table name must not be empty")

	// ErrEmptyAggregateID is returned when the nil uuid is used as an aggregate id.
	ErrEmptyAggregateID = errors.New("aggregate id must not be empty")

	// ErrMismatchedAggregateID is returned when an event to append belongs to another aggregate.
	ErrMismatchedAggregateID = errors.New("event belongs to another aggregate")

	// ErrNonContiguousSequence is returned when the events to append do not continue the expected version gaplessly.
	ErrNonContiguousSequence = errors.New("event sequences must continue the expected version without gaps")

	// ErrQueryingEventsFailed wraps failures while reading events.
	ErrQueryingEventsFailed = errors.New("querying events failed")

	// ErrAppendingEventFailed wraps failures while appending events.
	ErrAppendingEventFailed = errors.New("appending the event failed")

	// ErrBuildingQueryFailed wraps failures of the SQL builder.
	ErrBuildingQueryFailed = errors.New("building the query failed")

	// ErrScanningDBRowFailed wraps failures while scanning a result row.
	ErrScanningDBRowFailed = errors.New("scanning the database row failed")

	// ErrBuildingStorableEventFailed wraps failures while building a StorableEvent from a result row.
	ErrBuildingStorableEventFailed = errors.New("building the storable event failed")

	// ErrGettingRowsAffectedFailed wraps failures while reading the affected rows of a statement.
	ErrGettingRowsAffectedFailed = errors.New("getting the rows affected failed")
)
