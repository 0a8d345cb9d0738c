package config

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrConnectingFailed wraps failures while opening or pinging a database.
var ErrConnectingFailed = errors.New("connecting to the database failed")

// PGXPoolConfig parses the DSN and applies the pool settings.
func (c PostgresConfig) PGXPoolConfig() (*pgxpool.Config, error) {
	return c.pgxPoolConfig(c.DSN)
}

// NewPGXPool opens the primary pool and, if a replica DSN is configured, the replica pool.
// replica is nil without a replica DSN.
func (c PostgresConfig) NewPGXPool(ctx context.Context) (primary *pgxpool.Pool, replica *pgxpool.Pool, err error) {
	primary, err = c.openPGXPool(ctx, c.DSN)
	if err != nil {
		return nil, nil, err
	}

	if c.ReplicaDSN == "" {
		return primary, nil, nil
	}

	replica, err = c.openPGXPool(ctx, c.ReplicaDSN)
	if err != nil {
		primary.Close()
		return nil, nil, err
	}

	return primary, replica, nil
}

// OpenSQLDB opens a database/sql pool with the lib/pq driver.
func (c PostgresConfig) OpenSQLDB(ctx context.Context) (*sql.DB, error) {
	connector, err := pq.NewConnector(c.DSN)
	if err != nil {
		return nil, errors.Join(ErrConnectingFailed, err)
	}

	db := sql.OpenDB(connector)
	c.applyPoolSettings(db)

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, errors.Join(ErrConnectingFailed, pingErr)
	}

	return db, nil
}

// OpenSQLX opens an sqlx pool with the lib/pq driver.
func (c PostgresConfig) OpenSQLX(ctx context.Context) (*sqlx.DB, error) {
	db, err := c.OpenSQLDB(ctx)
	if err != nil {
		return nil, err
	}

	return sqlx.NewDb(db, "postgres"), nil
}

func (c PostgresConfig) pgxPoolConfig(dsn string) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Join(ErrConnectingFailed, err)
	}

	poolConfig.MaxConns = c.MaxConns
	poolConfig.MinConns = c.MinConns
	poolConfig.MaxConnLifetime = c.MaxConnLifetime
	poolConfig.MaxConnIdleTime = c.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = c.HealthCheckPeriod
	poolConfig.ConnConfig.ConnectTimeout = c.ConnectTimeout

	return poolConfig, nil
}

func (c PostgresConfig) openPGXPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := c.pgxPoolConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Join(ErrConnectingFailed, err)
	}

	if pingErr := pool.Ping(ctx); pingErr != nil {
		pool.Close()
		return nil, errors.Join(ErrConnectingFailed, pingErr)
	}

	return pool, nil
}

func (c PostgresConfig) applyPoolSettings(db *sql.DB) {
	db.SetMaxOpenConns(int(c.MaxConns))
	db.SetMaxIdleConns(int(c.MinConns))
	db.SetConnMaxLifetime(c.MaxConnLifetime)
	db.SetConnMaxIdleTime(c.MaxConnIdleTime)
}
