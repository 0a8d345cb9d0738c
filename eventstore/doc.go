// Package eventstore defines the storage contracts of the event-sourcing framework and the
// scalar DTOs that travel through them.
//
// Key types:
//   - EventStore: append-only, per-aggregate event log with an expected-version check
//   - SnapshotStore: latest serialized aggregate state per aggregate
//   - StorableEvent: an event as stored, agnostic of the domain event types
//   - Snapshot: aggregate state as of a version
//   - EventMetadata: message, causation and correlation ids stored with every event
//
// The engines live in sub-packages: memengine (in-process maps), postgresengine (PostgreSQL via
// pgx, database/sql or sqlx) and redisengine (snapshots in Redis). The observability
// interfaces in this package are implemented for OpenTelemetry in oteladapters and for Prometheus
// in promadapters.
//
// Common usage pattern:
//
//	events, err := store.ReadFrom(ctx, aggregateID, snapshot.Version)
//	if err != nil {
//		// handle error
//	}
//
//	err = store.Append(ctx, aggregateID, expectedVersion, newEvents)
//	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
//		// reload the aggregate and retry the command
//	}
package eventstore
