package adapters

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// sqlRunner is satisfied by *sql.DB and, through embedding, by *sqlx.DB.
type sqlRunner interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLConn runs statements through database/sql. *sql.Rows and sql.Result already satisfy
// Rows and Result.
type SQLConn struct {
	runner sqlRunner
}

func NewSQLConn(db *sql.DB) *SQLConn {
	return &SQLConn{runner: db}
}

func NewSQLXConn(db *sqlx.DB) *SQLConn {
	return &SQLConn{runner: db}
}

func (c *SQLConn) Query(ctx context.Context, query string) (Rows, error) {
	rows, err := c.runner.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}

	return rows, nil
}

func (c *SQLConn) Exec(ctx context.Context, query string) (Result, error) {
	result, err := c.runner.ExecContext(ctx, query)
	if err != nil {
		return nil, err
	}

	return result, nil
}
