package adapters

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

// PGXConn runs statements on a pgx pool. Writes always go to the primary.
type PGXConn struct {
	primary *pgxpool.Pool
	replica *pgxpool.Pool
}

func NewPGXConn(primary *pgxpool.Pool) *PGXConn {
	return &PGXConn{primary: primary}
}

// NewPGXConnWithReplica serves queries made under eventstore.EventualConsistency from replica.
func NewPGXConnWithReplica(primary, replica *pgxpool.Pool) *PGXConn {
	return &PGXConn{primary: primary, replica: replica}
}

func (c *PGXConn) Query(ctx context.Context, query string) (Rows, error) {
	pool := c.primary
	if c.replica != nil && eventstore.ConsistencyFromContext(ctx) == eventstore.EventualConsistency {
		pool = c.replica
	}

	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	return pgxRows{Rows: rows}, nil
}

func (c *PGXConn) Exec(ctx context.Context, query string) (Result, error) {
	tag, err := c.primary.Exec(ctx, query)
	if err != nil {
		return nil, err
	}

	return commandTag(tag), nil
}

// pgxRows adapts Close, which returns nothing in pgx.
type pgxRows struct {
	pgx.Rows
}

func (r pgxRows) Close() error {
	r.Rows.Close()

	return nil
}

type commandTag pgconn.CommandTag

func (t commandTag) RowsAffected() (int64, error) {
	return pgconn.CommandTag(t).RowsAffected(), nil
}
