// Package postgresengine provides a PostgreSQL implementation of eventstore.EventStore and
// eventstore.SnapshotStore.
//
// Every aggregate owns one stream in the events table, keyed by aggregate id and sequence number.
// Append is a single INSERT ... SELECT guarded by a CTE that reads the latest stored sequence of
// the aggregate, so the version check and the write are atomic. The primary key on
// (aggregate_id, sequence_number) turns a lost race between two such statements into
// eventstore.ErrConcurrencyConflict as well.
//
// Three connection types are supported through internal adapters:
//
//	store, err := postgresengine.NewEventStoreFromPGXPool(pool)
//	store, err := postgresengine.NewEventStoreFromSQLDB(db)   // e.g. with lib/pq
//	store, err := postgresengine.NewEventStoreFromSQLX(dbx)
//
// With NewEventStoreFromPGXPoolAndReplica, reads go to the replica only if the context was marked
// with eventstore.WithEventualConsistency. Appends always go to the primary.
//
// CreateTablesSQL returns the DDL for both tables; EventStore.CreateSchema executes it.
package postgresengine
