package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore/postgresengine/internal/adapters"
)

const (
	colVersion   = "version"
	colData      = "data"
	colCreatedAt = "created_at"
	excluded     = "EXCLUDED."
)

// SnapshotStore keeps the latest snapshot per aggregate in a Postgres table.
type SnapshotStore struct {
	db adapters.Conn
	settings
}

// NewSnapshotStoreFromPGXPool creates a new SnapshotStore using a pgx Pool with optional configuration.
func NewSnapshotStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*SnapshotStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newSnapshotStore(adapters.NewPGXConn(db), options)
}

// NewSnapshotStoreFromSQLDB creates a new SnapshotStore using a sql.DB with optional configuration.
func NewSnapshotStoreFromSQLDB(db *sql.DB, options ...Option) (*SnapshotStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newSnapshotStore(adapters.NewSQLConn(db), options)
}

// NewSnapshotStoreFromSQLX creates a new SnapshotStore using a sqlx.DB with optional configuration.
func NewSnapshotStoreFromSQLX(db *sqlx.DB, options ...Option) (*SnapshotStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newSnapshotStore(adapters.NewSQLXConn(db), options)
}

func newSnapshotStore(db adapters.Conn, options []Option) (*SnapshotStore, error) {
	s, err := newSettings(options)
	if err != nil {
		return nil, err
	}

	return &SnapshotStore{db: db, settings: s}, nil
}

// Save upserts the snapshot. A stored snapshot with a version greater than or equal to the new one is kept.
func (ss *SnapshotStore) Save(ctx context.Context, snapshot eventstore.Snapshot) error {
	if err := snapshot.Validate(); err != nil {
		return err
	}

	ctx, span := ss.startTraceSpan(ctx, spanNameSnapshotSave, map[string]string{
		spanAttrAggregateID: snapshot.AggregateID.String(),
	})

	sqlQuery, buildErr := ss.buildUpsertQuery(snapshot)
	if buildErr != nil {
		ss.logError(ctx, logMsgBuildInsertQueryFailed, buildErr)
		ss.finishTraceSpan(span, statusError, map[string]string{spanAttrErrorType: errorTypeBuildQuery})

		return errors.Join(eventstore.ErrSavingSnapshotFailed, buildErr)
	}

	start := time.Now()

	result, execErr := ss.db.Exec(ctx, sqlQuery)
	duration := time.Since(start)
	ss.logQueryWithDuration(ctx, sqlQuery, logActionSnapshotSave, duration)

	if execErr != nil {
		ss.logError(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		ss.finishTraceSpan(span, statusError, map[string]string{spanAttrErrorType: errorTypeDatabaseExec})
		ss.recordDuration(ctx, metricSnapshotSaveDuration, duration, operationSnapshotSave, statusError)
		ss.recordDatabaseError(ctx, operationSnapshotSave, errorTypeDatabaseExec)

		return errors.Join(eventstore.ErrSavingSnapshotFailed, execErr)
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		ss.logError(ctx, logMsgRowsAffectedFailed, rowsAffectedErr)
		ss.finishTraceSpan(span, statusError, map[string]string{spanAttrErrorType: errorTypeRowsAffected})

		return errors.Join(eventstore.ErrSavingSnapshotFailed, eventstore.ErrGettingRowsAffectedFailed, rowsAffectedErr)
	}

	if rowsAffected == 0 {
		ss.logDebug(ctx, logMsgStaleSnapshotIgnored,
			logAttrAggregateID, snapshot.AggregateID.String(),
			logAttrVersion, snapshot.Version,
		)
	}

	ss.finishTraceSpan(span, statusSuccess, nil)
	ss.recordDuration(ctx, metricSnapshotSaveDuration, duration, operationSnapshotSave, statusSuccess)
	ss.logOperation(ctx, logMsgSnapshotSaved,
		logAttrAggregateID, snapshot.AggregateID.String(),
		logAttrVersion, snapshot.Version,
		logAttrDurationMS, toMilliseconds(duration),
	)

	return nil
}

// Load returns the latest snapshot of the aggregate or nil if there is none.
func (ss *SnapshotStore) Load(ctx context.Context, aggregateID uuid.UUID) (*eventstore.Snapshot, error) {
	ctx, span := ss.startTraceSpan(ctx, spanNameSnapshotLoad, map[string]string{
		spanAttrAggregateID: aggregateID.String(),
	})

	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		From(ss.snapshotTableName).
		Select(colAggregateID, colAggregateType, colVersion, colData, colCreatedAt).
		Where(goqu.C(colAggregateID).Eq(goqu.L(castUUID, aggregateID.String()))).
		Limit(1).
		ToSQL()
	if toSQLErr != nil {
		ss.finishTraceSpan(span, statusError, map[string]string{spanAttrErrorType: errorTypeBuildQuery})
		return nil, errors.Join(eventstore.ErrLoadingSnapshotFailed, eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	start := time.Now()

	rows, queryErr := ss.db.Query(ctx, sqlQuery)
	ss.logQueryWithDuration(ctx, sqlQuery, logActionSnapshotLoad, time.Since(start))

	if queryErr != nil {
		ss.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		ss.finishTraceSpan(span, statusError, map[string]string{spanAttrErrorType: errorTypeDatabaseQuery})
		ss.recordDuration(ctx, metricSnapshotLoadDuration, time.Since(start), operationSnapshotLoad, statusError)
		ss.recordDatabaseError(ctx, operationSnapshotLoad, errorTypeDatabaseQuery)

		return nil, errors.Join(eventstore.ErrLoadingSnapshotFailed, queryErr)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			ss.logWarn(ctx, logMsgCloseRowsFailed, closeErr)
		}
	}()

	if !rows.Next() {
		if iterErr := rows.Err(); iterErr != nil {
			ss.finishTraceSpan(span, statusError, map[string]string{spanAttrErrorType: errorTypeRowScan})
			return nil, errors.Join(eventstore.ErrLoadingSnapshotFailed, eventstore.ErrScanningDBRowFailed, iterErr)
		}

		ss.finishTraceSpan(span, statusSuccess, map[string]string{spanAttrFound: "false"})
		ss.recordDuration(ctx, metricSnapshotLoadDuration, time.Since(start), operationSnapshotLoad, statusSuccess)

		return nil, nil //nolint:nilnil // no snapshot is not an error
	}

	var (
		id            uuid.UUID
		aggregateType string
		version       int64
		data          []byte
		createdAt     time.Time
	)

	if scanErr := rows.Scan(&id, &aggregateType, &version, &data, &createdAt); scanErr != nil {
		ss.logError(ctx, logMsgScanRowFailed, scanErr)
		ss.finishTraceSpan(span, statusError, map[string]string{spanAttrErrorType: errorTypeRowScan})

		return nil, errors.Join(eventstore.ErrLoadingSnapshotFailed, eventstore.ErrScanningDBRowFailed, scanErr)
	}

	snapshot, buildErr := eventstore.BuildSnapshot(id, aggregateType, uint64(version), data, createdAt) //nolint:gosec // versions are positive
	if buildErr != nil {
		ss.finishTraceSpan(span, statusError, map[string]string{spanAttrErrorType: errorTypeRowScan})
		return nil, errors.Join(eventstore.ErrLoadingSnapshotFailed, buildErr)
	}

	duration := time.Since(start)
	ss.finishTraceSpan(span, statusSuccess, map[string]string{spanAttrFound: "true"})
	ss.recordDuration(ctx, metricSnapshotLoadDuration, duration, operationSnapshotLoad, statusSuccess)
	ss.logOperation(ctx, logMsgSnapshotLoaded,
		logAttrAggregateID, aggregateID.String(),
		logAttrVersion, snapshot.Version,
		logAttrDurationMS, toMilliseconds(duration),
	)

	return &snapshot, nil
}

func (ss *SnapshotStore) buildUpsertQuery(snapshot eventstore.Snapshot) (string, error) {
	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(ss.snapshotTableName).
		Cols(colAggregateID, colAggregateType, colVersion, colData, colCreatedAt).
		Vals(goqu.Vals{
			goqu.L(castUUID, snapshot.AggregateID.String()),
			snapshot.AggregateType,
			snapshot.Version,
			goqu.L(castJsonb, string(snapshot.Data)),
			goqu.L(castTimestamp, snapshot.CreatedAt),
		}).
		OnConflict(
			goqu.DoUpdate(colAggregateID, goqu.Record{
				colAggregateType: goqu.L(excluded + colAggregateType),
				colVersion:       goqu.L(excluded + colVersion),
				colData:          goqu.L(excluded + colData),
				colCreatedAt:     goqu.L(excluded + colCreatedAt),
			}).Where(goqu.L(unqualifiedName(ss.snapshotTableName) + "." + colVersion + " < " + excluded + colVersion)),
		)

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}
