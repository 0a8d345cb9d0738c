package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // driver import
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore/postgresengine/internal/adapters"
)

const (
	defaultEventTableName    = "events"
	defaultSnapshotTableName = "snapshots"
	colEventID               = "event_id"
	colAggregateID           = "aggregate_id"
	colAggregateType         = "aggregate_type"
	colSequenceNumber        = "sequence_number"
	colEventType             = "event_type"
	colOccurredAt            = "occurred_at"
	colPayload               = "payload"
	colMetadata              = "metadata"
	cteContext               = "context"
	cteVals                  = "vals"
	dialectPostgres          = "postgres"
	aliasMaxSeq              = "max_seq"
	castUUID                 = "?::uuid"
	castText                 = "?::text"
	castBigint               = "?::bigint"
	castTimestamp            = "?::timestamp with time zone"
	castJsonb                = "?::jsonb"
)

// EventStore stores the event streams of aggregates in a Postgres table, one stream per aggregate id.
type EventStore struct {
	db adapters.Conn
	settings
}

type readResultRow struct {
	eventID       uuid.UUID
	aggregateID   uuid.UUID
	aggregateType string
	sequence      int64
	eventType     string
	occurredAt    time.Time
	payload       []byte
	metadata      []byte
}

// NewEventStoreFromPGXPool creates a new EventStore using a pgx Pool with optional configuration.
func NewEventStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewPGXConn(db), options)
}

// NewEventStoreFromPGXPoolAndReplica creates a new EventStore that appends to the primary pool and
// reads from the replica pool when the context asks for eventstore.EventualConsistency.
func NewEventStoreFromPGXPoolAndReplica(primary *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*EventStore, error) {
	if primary == nil || replica == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewPGXConnWithReplica(primary, replica), options)
}

// NewEventStoreFromSQLDB creates a new EventStore using a sql.DB with optional configuration.
func NewEventStoreFromSQLDB(db *sql.DB, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewSQLConn(db), options)
}

// NewEventStoreFromSQLX creates a new EventStore using a sqlx.DB with optional configuration.
func NewEventStoreFromSQLX(db *sqlx.DB, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewSQLXConn(db), options)
}

func newEventStore(db adapters.Conn, options []Option) (*EventStore, error) {
	s, err := newSettings(options)
	if err != nil {
		return nil, err
	}

	return &EventStore{db: db, settings: s}, nil
}

// ReadFrom returns the events of the aggregate with a sequence greater than afterVersion, ordered by sequence.
// An unknown aggregate yields an empty result.
func (es *EventStore) ReadFrom(ctx context.Context, aggregateID uuid.UUID, afterVersion uint64) (eventstore.StorableEvents, error) {
	var empty eventstore.StorableEvents

	tracer, ctx := es.startReadTracing(ctx, aggregateID, afterVersion)
	metrics := es.startReadMetrics(ctx)

	sqlQuery, buildQueryErr := es.buildSelectQuery(aggregateID, afterVersion)
	if buildQueryErr != nil {
		es.logError(ctx, logMsgBuildSelectQueryFailed, buildQueryErr)
		tracer.finishError(errorTypeBuildQuery)
		metrics.recordError(errorTypeBuildQuery, 0)

		return empty, buildQueryErr
	}

	start := time.Now()

	rows, queryErr := es.db.Query(ctx, sqlQuery)
	es.logQueryWithDuration(ctx, sqlQuery, logActionRead, time.Since(start))

	if queryErr != nil {
		es.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		tracer.finishError(errorTypeDatabaseQuery)
		metrics.recordError(errorTypeDatabaseQuery, time.Since(start))

		return empty, errors.Join(eventstore.ErrQueryingEventsFailed, queryErr)
	}
	defer es.closeRows(ctx, rows)

	stream, scanErr := es.processReadResults(ctx, rows)
	if scanErr != nil {
		tracer.finishError(errorTypeRowScan)
		metrics.recordError(errorTypeRowScan, time.Since(start))

		return empty, scanErr
	}

	duration := time.Since(start)
	tracer.finishSuccess(len(stream))
	metrics.recordSuccess(len(stream), duration)
	es.logOperation(ctx, logMsgEventsRead,
		logAttrAggregateID, aggregateID.String(),
		logAttrEventCount, len(stream),
		logAttrDurationMS, toMilliseconds(duration),
	)

	return stream, nil
}

// closeRows safely closes database rows and logs any errors.
func (es *EventStore) closeRows(ctx context.Context, rows adapters.Rows) {
	if closeErr := rows.Close(); closeErr != nil {
		es.logWarn(ctx, logMsgCloseRowsFailed, closeErr)
	}
}

// processReadResults converts the database rows into storable events.
func (es *EventStore) processReadResults(ctx context.Context, rows adapters.Rows) (eventstore.StorableEvents, error) {
	var empty eventstore.StorableEvents

	row := readResultRow{}
	stream := make(eventstore.StorableEvents, 0)

	for rows.Next() {
		rowScanErr := rows.Scan(
			&row.eventID, &row.aggregateID, &row.aggregateType, &row.sequence,
			&row.eventType, &row.occurredAt, &row.payload, &row.metadata,
		)
		if rowScanErr != nil {
			es.logError(ctx, logMsgScanRowFailed, rowScanErr)
			return empty, errors.Join(eventstore.ErrScanningDBRowFailed, rowScanErr)
		}

		event, buildStorableErr := eventstore.BuildStorableEvent(
			row.eventID,
			row.aggregateID,
			row.aggregateType,
			uint64(row.sequence), //nolint:gosec // sequences are positive
			row.eventType,
			row.occurredAt,
			row.payload,
			row.metadata,
		)
		if buildStorableErr != nil {
			es.logError(ctx, logMsgBuildStorableEventFailed, buildStorableErr, logAttrEventType, row.eventType)
			return empty, errors.Join(eventstore.ErrBuildingStorableEventFailed, buildStorableErr)
		}

		stream = append(stream, event)
	}

	if iterErr := rows.Err(); iterErr != nil {
		es.logError(ctx, logMsgScanRowFailed, iterErr)
		return empty, errors.Join(eventstore.ErrScanningDBRowFailed, iterErr)
	}

	return stream, nil
}

// Append appends the events to the stream of the aggregate if its latest stored sequence equals
// expectedVersion, otherwise it returns eventstore.ErrConcurrencyConflict. The version check and the
// insert happen in one statement; a unique violation of the primary key by a concurrent writer is
// reported as a conflict as well.
func (es *EventStore) Append(
	ctx context.Context,
	aggregateID uuid.UUID,
	expectedVersion uint64,
	events eventstore.StorableEvents,
) error {

	if len(events) == 0 {
		return nil
	}

	if err := eventstore.ValidateAppend(aggregateID, expectedVersion, events); err != nil {
		return err
	}

	tracer, ctx := es.startAppendTracing(ctx, aggregateID, expectedVersion, len(events))
	metrics := es.startAppendMetrics(ctx)

	sqlQuery, buildQueryErr := es.buildAppendQuery(aggregateID, expectedVersion, events)
	if buildQueryErr != nil {
		es.logError(ctx, logMsgBuildInsertQueryFailed, buildQueryErr, logAttrEventCount, len(events))
		tracer.finishError(errorTypeBuildQuery)
		metrics.recordError(errorTypeBuildQuery, 0)

		return buildQueryErr
	}

	start := time.Now()

	result, execErr := es.db.Exec(ctx, sqlQuery)
	duration := time.Since(start)
	es.logQueryWithDuration(ctx, sqlQuery, logActionAppend, duration)

	if execErr != nil {
		if constraint, ok := adapters.UniqueViolationConstraint(execErr); ok && constraint == primaryKeyName(es.eventTableName) {
			es.observeConflict(ctx, tracer, metrics, aggregateID, expectedVersion, len(events), 0)
			return eventstore.ErrConcurrencyConflict
		}

		es.logError(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		tracer.finishError(errorTypeDatabaseExec)
		metrics.recordError(errorTypeDatabaseExec, duration)

		return errors.Join(eventstore.ErrAppendingEventFailed, execErr)
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		es.logError(ctx, logMsgRowsAffectedFailed, rowsAffectedErr)
		tracer.finishError(errorTypeRowsAffected)
		metrics.recordError(errorTypeRowsAffected, duration)

		return errors.Join(eventstore.ErrGettingRowsAffectedFailed, rowsAffectedErr)
	}

	if rowsAffected < int64(len(events)) {
		es.observeConflict(ctx, tracer, metrics, aggregateID, expectedVersion, len(events), rowsAffected)
		return eventstore.ErrConcurrencyConflict
	}

	tracer.finishSuccess(int(rowsAffected))
	metrics.recordSuccess(len(events), duration)
	es.logOperation(ctx, logMsgEventsAppended,
		logAttrAggregateID, aggregateID.String(),
		logAttrEventCount, len(events),
		logAttrDurationMS, toMilliseconds(duration),
	)

	return nil
}

func (es *EventStore) buildSelectQuery(aggregateID uuid.UUID, afterVersion uint64) (string, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(es.eventTableName).
		Select(
			colEventID, colAggregateID, colAggregateType, colSequenceNumber,
			colEventType, colOccurredAt, colPayload, colMetadata,
		).
		Where(
			goqu.C(colAggregateID).Eq(goqu.L(castUUID, aggregateID.String())),
			goqu.C(colSequenceNumber).Gt(afterVersion),
		).
		Order(goqu.I(colSequenceNumber).Asc())

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// buildAppendQuery builds an INSERT ... SELECT that only inserts when the latest stored sequence of
// the aggregate still equals expectedVersion.
func (es *EventStore) buildAppendQuery(
	aggregateID uuid.UUID,
	expectedVersion uint64,
	events eventstore.StorableEvents,
) (string, error) {

	builder := goqu.Dialect(dialectPostgres)

	cteStmt := builder.
		From(es.eventTableName).
		Select(goqu.MAX(colSequenceNumber).As(aliasMaxSeq)).
		Where(goqu.C(colAggregateID).Eq(goqu.L(castUUID, aggregateID.String())))

	unionStatements := make([]*goqu.SelectDataset, len(events))
	for i, event := range events {
		unionStatements[i] = builder.
			Select(
				goqu.L(castUUID, event.EventID.String()).As(colEventID),
				goqu.L(castUUID, event.AggregateID.String()).As(colAggregateID),
				goqu.L(castText, event.AggregateType).As(colAggregateType),
				goqu.L(castBigint, event.Sequence).As(colSequenceNumber),
				goqu.L(castText, event.EventType).As(colEventType),
				goqu.L(castTimestamp, event.OccurredAt).As(colOccurredAt),
				goqu.L(castJsonb, string(event.PayloadJSON)).As(colPayload),
				goqu.L(castJsonb, string(event.MetadataJSON)).As(colMetadata),
			)
	}

	valuesStmt := unionStatements[0]
	for i := 1; i < len(unionStatements); i++ {
		valuesStmt = valuesStmt.UnionAll(unionStatements[i])
	}

	columns := []any{
		colEventID, colAggregateID, colAggregateType, colSequenceNumber,
		colEventType, colOccurredAt, colPayload, colMetadata,
	}

	valsColumns := make([]any, len(columns))
	for i, column := range columns {
		valsColumns[i] = fmt.Sprintf("%s.%s", cteVals, column)
	}

	insertStmt := builder.
		Insert(es.eventTableName).
		Cols(columns...).
		With(cteContext, cteStmt).
		With(cteVals, valuesStmt).
		FromQuery(
			builder.From(cteContext, cteVals).
				Select(valsColumns...).
				Where(goqu.COALESCE(goqu.C(aliasMaxSeq), 0).Eq(goqu.V(expectedVersion))),
		)

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}
