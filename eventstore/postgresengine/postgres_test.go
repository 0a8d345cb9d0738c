package postgresengine_test

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore/postgresengine"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/testutil/fixtures"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/testutil/helper"
)

var readColumns = []string{
	"event_id", "aggregate_id", "aggregate_type", "sequence_number",
	"event_type", "occurred_at", "payload", "metadata",
}

func newMockedEventStore(t *testing.T, options ...postgresengine.Option) (*postgresengine.EventStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := postgresengine.NewEventStoreFromSQLDB(db, options...)
	require.NoError(t, err)

	return store, mock
}

func addRows(rows *sqlmock.Rows, events eventstore.StorableEvents) *sqlmock.Rows {
	for _, event := range events {
		rows.AddRow(
			event.EventID.String(),
			event.AggregateID.String(),
			event.AggregateType,
			int64(event.Sequence), //nolint:gosec // fixture sequences are small
			event.EventType,
			event.OccurredAt,
			[]byte(event.PayloadJSON),
			[]byte(event.MetadataJSON),
		)
	}

	return rows
}

func Test_Constructors_When_TheConnectionIsNil(t *testing.T) {
	_, pgxErr := postgresengine.NewEventStoreFromPGXPool(nil)
	_, replicaErr := postgresengine.NewEventStoreFromPGXPoolAndReplica(nil, nil)
	_, sqlErr := postgresengine.NewEventStoreFromSQLDB(nil)
	_, sqlxErr := postgresengine.NewEventStoreFromSQLX(nil)
	_, snapshotErr := postgresengine.NewSnapshotStoreFromSQLDB(nil)

	assert.ErrorIs(t, pgxErr, eventstore.ErrNilDatabaseConnection)
	assert.ErrorIs(t, replicaErr, eventstore.ErrNilDatabaseConnection)
	assert.ErrorIs(t, sqlErr, eventstore.ErrNilDatabaseConnection)
	assert.ErrorIs(t, sqlxErr, eventstore.ErrNilDatabaseConnection)
	assert.ErrorIs(t, snapshotErr, eventstore.ErrNilDatabaseConnection)
}

func Test_Constructors_When_AnOptionFails(t *testing.T) {
	// setup
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// act
	_, tableErr := postgresengine.NewEventStoreFromSQLDB(db, postgresengine.WithTableName(""))
	_, snapshotTableErr := postgresengine.NewSnapshotStoreFromSQLDB(db, postgresengine.WithSnapshotTableName(""))

	// assert
	assert.ErrorIs(t, tableErr, eventstore.ErrEmptyEventsTableName)
	assert.ErrorIs(t, snapshotTableErr, eventstore.ErrEmptySnapshotsTableName)
}

func Test_Append_ShouldInsert_GuardedByTheExpectedVersion(t *testing.T) {
	// setup
	metrics := helper.NewMetricsCollectorSpy()
	tracing := helper.NewTracingCollectorSpy()
	store, mock := newMockedEventStore(t, postgresengine.WithMetrics(metrics), postgresengine.WithTracing(tracing))
	aggregateID := uuid.New()

	// arrange
	events := fixtures.StorableEvents(t, aggregateID, 3, 2)
	mock.ExpectExec(`INSERT INTO "events" .*COALESCE\("max_seq", 0\) = 2`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	// act
	err := store.Append(context.Background(), aggregateID, 2, events)

	// assert
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.True(t, metrics.HasDurationRecord("eventstore_append_duration_seconds", "success"))
	assert.True(t, metrics.HasValueRecord("eventstore_events_appended_total", 2))

	span, found := tracing.FindSpan("eventstore.append")
	require.True(t, found)
	assert.Equal(t, "success", span.Status)
	assert.Equal(t, "2", span.StartAttributes["expected_version"])
}

func Test_Append_When_NoRowWasInserted(t *testing.T) {
	// setup
	logHandler := helper.NewLogHandlerSpy(false)
	metrics := helper.NewMetricsCollectorSpy()
	store, mock := newMockedEventStore(t, postgresengine.WithLogger(slog.New(logHandler)), postgresengine.WithMetrics(metrics))
	aggregateID := uuid.New()

	// arrange
	mock.ExpectExec(`INSERT INTO "events"`).WillReturnResult(sqlmock.NewResult(0, 0))

	// act
	err := store.Append(context.Background(), aggregateID, 4, fixtures.StorableEvents(t, aggregateID, 5, 1))

	// assert
	assert.ErrorIs(t, err, eventstore.ErrConcurrencyConflict)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 1, metrics.CounterCount("eventstore_concurrency_conflicts_total"))
	assert.True(t, logHandler.HasInfoLogWithMessage("eventstore operation: concurrency conflict detected").
		WithAttributeValue("expected_version", "4").Assert())
}

func Test_Append_When_AConcurrentWriterViolatesThePrimaryKey(t *testing.T) {
	// setup
	store, mock := newMockedEventStore(t)
	aggregateID := uuid.New()

	// arrange
	mock.ExpectExec(`INSERT INTO "events"`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "events_pkey"})

	// act
	err := store.Append(context.Background(), aggregateID, 0, fixtures.StorableEvents(t, aggregateID, 1, 1))

	// assert
	assert.ErrorIs(t, err, eventstore.ErrConcurrencyConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func Test_Append_When_AnotherUniqueConstraintIsViolated(t *testing.T) {
	// setup
	store, mock := newMockedEventStore(t)
	aggregateID := uuid.New()

	// arrange
	violation := &pq.Error{Code: "23505", Constraint: "events_event_id_key"}
	mock.ExpectExec(`INSERT INTO "events"`).WillReturnError(violation)

	// act
	err := store.Append(context.Background(), aggregateID, 0, fixtures.StorableEvents(t, aggregateID, 1, 1))

	// assert
	assert.ErrorIs(t, err, eventstore.ErrAppendingEventFailed)
	assert.NotErrorIs(t, err, eventstore.ErrConcurrencyConflict)
	assert.ErrorIs(t, err, violation)
}

func Test_Append_When_TheDatabaseFails(t *testing.T) {
	// setup
	logHandler := helper.NewLogHandlerSpy(false)
	metrics := helper.NewMetricsCollectorSpy()
	store, mock := newMockedEventStore(t,
		postgresengine.WithContextualLogger(slog.New(logHandler)),
		postgresengine.WithMetrics(metrics),
	)
	aggregateID := uuid.New()
	dbErr := errors.New("connection reset")

	// arrange
	mock.ExpectExec(`INSERT INTO "events"`).WillReturnError(dbErr)

	// act
	err := store.Append(context.Background(), aggregateID, 0, fixtures.StorableEvents(t, aggregateID, 1, 1))

	// assert
	assert.ErrorIs(t, err, eventstore.ErrAppendingEventFailed)
	assert.ErrorIs(t, err, dbErr)
	assert.True(t, metrics.HasDurationRecord("eventstore_append_duration_seconds", "error"))
	assert.Equal(t, 1, metrics.CounterCount("eventstore_database_errors_total"))
	assert.True(t, logHandler.HasErrorLogWithMessage("database execution failed").WithAttribute("query").Assert())
}

func Test_Append_When_TheBatchIsMalformed(t *testing.T) {
	// setup
	store, mock := newMockedEventStore(t)
	aggregateID := uuid.New()

	// act
	err := store.Append(context.Background(), aggregateID, 0, fixtures.StorableEvents(t, aggregateID, 2, 1))

	// assert
	assert.ErrorIs(t, err, eventstore.ErrNonContiguousSequence)
	require.NoError(t, mock.ExpectationsWereMet(), "a malformed batch must not reach the database")
}

func Test_Append_When_ThereAreNoEvents(t *testing.T) {
	// setup
	store, mock := newMockedEventStore(t)

	// act
	err := store.Append(context.Background(), uuid.New(), 3, nil)

	// assert
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func Test_Append_WithACustomTableName(t *testing.T) {
	// setup
	store, mock := newMockedEventStore(t, postgresengine.WithTableName("ledger_events"))
	aggregateID := uuid.New()

	// arrange
	mock.ExpectExec(`INSERT INTO "ledger_events"`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "ledger_events_pkey"})

	// act
	err := store.Append(context.Background(), aggregateID, 0, fixtures.StorableEvents(t, aggregateID, 1, 1))

	// assert
	assert.ErrorIs(t, err, eventstore.ErrConcurrencyConflict)
}

func Test_Append_WithASchemaQualifiedTableName(t *testing.T) {
	// setup
	store, mock := newMockedEventStore(t, postgresengine.WithTableName("public.ledger_events"))
	aggregateID := uuid.New()

	// arrange
	mock.ExpectExec(`INSERT INTO "public"."ledger_events"`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "ledger_events_pkey"})

	// act
	err := store.Append(context.Background(), aggregateID, 0, fixtures.StorableEvents(t, aggregateID, 1, 1))

	// assert
	assert.ErrorIs(t, err, eventstore.ErrConcurrencyConflict)
}

func Test_ReadFrom_ShouldReturn_TheStoredEvents(t *testing.T) {
	// setup
	tracing := helper.NewTracingCollectorSpy()
	store, mock := newMockedEventStore(t, postgresengine.WithTracing(tracing))
	aggregateID := uuid.New()

	// arrange
	stored := fixtures.StorableEvents(t, aggregateID, 3, 2)
	mock.ExpectQuery(`SELECT .* FROM "events" WHERE .*"sequence_number" > 2.* ORDER BY "sequence_number" ASC`).
		WillReturnRows(addRows(sqlmock.NewRows(readColumns), stored))

	// act
	events, err := store.ReadFrom(context.Background(), aggregateID, 2)

	// assert
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, stored, events)

	span, found := tracing.FindSpan("eventstore.read")
	require.True(t, found)
	assert.Equal(t, "2", span.EndAttributes["event_count"])
}

func Test_ReadFrom_When_TheStreamDoesNotExist(t *testing.T) {
	// setup
	store, mock := newMockedEventStore(t)

	// arrange
	mock.ExpectQuery(`SELECT .* FROM "events"`).WillReturnRows(sqlmock.NewRows(readColumns))

	// act
	events, err := store.ReadFrom(context.Background(), uuid.New(), 0)

	// assert
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func Test_ReadFrom_When_TheQueryFails(t *testing.T) {
	// setup
	store, mock := newMockedEventStore(t)
	dbErr := errors.New("too many connections")

	// arrange
	mock.ExpectQuery(`SELECT .* FROM "events"`).WillReturnError(dbErr)

	// act
	_, err := store.ReadFrom(context.Background(), uuid.New(), 0)

	// assert
	assert.ErrorIs(t, err, eventstore.ErrQueryingEventsFailed)
	assert.ErrorIs(t, err, dbErr)
}

func Test_ReadFrom_When_ARowCannotBeScanned(t *testing.T) {
	// setup
	store, mock := newMockedEventStore(t)

	// arrange
	rows := sqlmock.NewRows(readColumns).
		AddRow("not-a-uuid", uuid.NewString(), "A", int64(1), "E", fixtures.FixtureOccurredAt, []byte(`{}`), []byte(`{}`))
	mock.ExpectQuery(`SELECT .* FROM "events"`).WillReturnRows(rows)

	// act
	_, err := store.ReadFrom(context.Background(), uuid.New(), 0)

	// assert
	assert.ErrorIs(t, err, eventstore.ErrScanningDBRowFailed)
}

func Test_ReadFrom_When_AStoredPayloadIsInvalid(t *testing.T) {
	// setup
	store, mock := newMockedEventStore(t)
	aggregateID := uuid.New()

	// arrange
	rows := sqlmock.NewRows(readColumns).
		AddRow(uuid.NewString(), aggregateID.String(), "A", int64(1), "E", fixtures.FixtureOccurredAt, []byte(`{`), []byte(`{}`))
	mock.ExpectQuery(`SELECT .* FROM "events"`).WillReturnRows(rows)

	// act
	_, err := store.ReadFrom(context.Background(), aggregateID, 0)

	// assert
	assert.ErrorIs(t, err, eventstore.ErrBuildingStorableEventFailed)
	assert.ErrorIs(t, err, eventstore.ErrInvalidPayloadJSON)
}

func Test_ReadFrom_When_IteratingTheRowsFails(t *testing.T) {
	// setup
	store, mock := newMockedEventStore(t)
	aggregateID := uuid.New()
	iterErr := errors.New("connection lost mid-stream")

	// arrange
	rows := addRows(sqlmock.NewRows(readColumns), fixtures.StorableEvents(t, aggregateID, 1, 2)).
		RowError(1, iterErr)
	mock.ExpectQuery(`SELECT .* FROM "events"`).WillReturnRows(rows)

	// act
	_, err := store.ReadFrom(context.Background(), aggregateID, 0)

	// assert
	assert.ErrorIs(t, err, eventstore.ErrScanningDBRowFailed)
	assert.ErrorIs(t, err, iterErr)
}

func Test_EventStore_WithSQLX(t *testing.T) {
	// setup
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := postgresengine.NewEventStoreFromSQLX(sqlx.NewDb(db, "sqlmock"))
	require.NoError(t, err)
	aggregateID := uuid.New()
	events := fixtures.StorableEvents(t, aggregateID, 1, 1)

	// arrange
	mock.ExpectExec(`INSERT INTO "events"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM "events"`).WillReturnRows(addRows(sqlmock.NewRows(readColumns), events))

	// act
	appendErr := store.Append(context.Background(), aggregateID, 0, events)
	read, readErr := store.ReadFrom(context.Background(), aggregateID, 0)

	// assert
	require.NoError(t, appendErr)
	require.NoError(t, readErr)
	assert.Equal(t, events, read)
	require.NoError(t, mock.ExpectationsWereMet())
}

func Test_CreateSchema(t *testing.T) {
	// setup
	store, mock := newMockedEventStore(t, postgresengine.WithTableName("ledger"), postgresengine.WithSnapshotTableName("ledger_snapshots"))

	// arrange
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS ledger .*CONSTRAINT ledger_pkey PRIMARY KEY \(aggregate_id, sequence_number\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	// act
	err := store.CreateSchema(context.Background())

	// assert
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func Test_CreateSchema_When_TheDatabaseFails(t *testing.T) {
	// setup
	store, mock := newMockedEventStore(t)

	// arrange
	mock.ExpectExec(`CREATE TABLE`).WillReturnError(sql.ErrConnDone)

	// act
	err := store.CreateSchema(context.Background())

	// assert
	assert.ErrorIs(t, err, postgresengine.ErrCreatingSchemaFailed)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func Test_CreateTablesSQL(t *testing.T) {
	ddl := postgresengine.CreateTablesSQL("events", "snapshots")

	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS events (")
	assert.Contains(t, ddl, "CONSTRAINT events_pkey PRIMARY KEY (aggregate_id, sequence_number)")
	assert.Contains(t, ddl, "CONSTRAINT events_event_id_key UNIQUE (event_id)")
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS snapshots (")
	assert.Contains(t, ddl, "CONSTRAINT snapshots_pkey PRIMARY KEY (aggregate_id)")
}

func Test_CreateTablesSQL_WithSchemaQualifiedTableNames(t *testing.T) {
	ddl := postgresengine.CreateTablesSQL("ledger.events", "ledger.snapshots")

	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS ledger.events (")
	assert.Contains(t, ddl, "CONSTRAINT events_pkey PRIMARY KEY (aggregate_id, sequence_number)")
	assert.Contains(t, ddl, "CONSTRAINT events_event_id_key UNIQUE (event_id)")
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS ledger.snapshots (")
	assert.Contains(t, ddl, "CONSTRAINT snapshots_pkey PRIMARY KEY (aggregate_id)")
	assert.NotContains(t, ddl, "ledger.events_pkey")
}
