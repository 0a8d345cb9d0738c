package adapters

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Conn executes the statements built by the event store and the snapshot store.
type Conn interface {
	Query(ctx context.Context, query string) (Rows, error)
	Exec(ctx context.Context, query string) (Result, error)
}

// Rows is the subset of *sql.Rows the stores iterate with.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Result is the subset of sql.Result the stores check after a write.
type Result interface {
	RowsAffected() (int64, error)
}

const uniqueViolation = "23505"

// UniqueViolationConstraint returns the constraint a failed insert violated, for errors of
// pgx as well as lib/pq. ok is false for every other error.
func UniqueViolationConstraint(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return pqErr.Constraint, true
	}

	return "", false
}
