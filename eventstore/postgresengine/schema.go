package postgresengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrCreatingSchemaFailed wraps failures while creating the tables.
var ErrCreatingSchemaFailed = errors.New("creating the schema failed")

// CreateTablesSQL returns the DDL for the events and the snapshots table.
//
// The primary key on (aggregate_id, sequence_number) is the last line of defense for optimistic
// concurrency: two appends that both passed the version check can never both commit.
// Table names may be schema qualified; constraints are named after the unqualified part.
func CreateTablesSQL(eventTableName, snapshotTableName string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
    event_id        uuid        NOT NULL,
    aggregate_id    uuid        NOT NULL,
    aggregate_type  text        NOT NULL,
    sequence_number bigint      NOT NULL,
    event_type      text        NOT NULL,
    occurred_at     timestamptz NOT NULL,
    payload         jsonb       NOT NULL,
    metadata        jsonb       NOT NULL,
    CONSTRAINT %[3]s PRIMARY KEY (aggregate_id, sequence_number),
    CONSTRAINT %[5]s_event_id_key UNIQUE (event_id)
);
CREATE TABLE IF NOT EXISTS %[2]s (
    aggregate_id   uuid        NOT NULL,
    aggregate_type text        NOT NULL,
    version        bigint      NOT NULL,
    data           jsonb       NOT NULL,
    created_at     timestamptz NOT NULL,
    CONSTRAINT %[4]s PRIMARY KEY (aggregate_id)
);`,
		eventTableName,
		snapshotTableName,
		primaryKeyName(eventTableName),
		primaryKeyName(snapshotTableName),
		unqualifiedName(eventTableName),
	)
}

// primaryKeyName is the name Postgres gives the primary key of tableName by default.
func primaryKeyName(tableName string) string {
	return unqualifiedName(tableName) + "_pkey"
}

func unqualifiedName(tableName string) string {
	return tableName[strings.LastIndex(tableName, ".")+1:]
}

// CreateSchema creates the events and the snapshots table if they do not exist yet.
func (es *EventStore) CreateSchema(ctx context.Context) error {
	ddl := CreateTablesSQL(es.eventTableName, es.snapshotTableName)

	if _, err := es.db.Exec(ctx, ddl); err != nil {
		es.logError(ctx, logMsgCreateSchemaFailed, err)
		return errors.Join(ErrCreatingSchemaFailed, err)
	}

	es.logDebug(ctx, logMsgSchemaCreated, logAttrTable, es.eventTableName)

	return nil
}
