package pgtest

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/config"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore/postgresengine"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/identifier"
)

// DSNEnv names the environment variable holding the DSN of the test database.
const DSNEnv = "ESAGG_TEST_POSTGRES_DSN"

// Drivers lists the drivers the engine can be opened with.
var Drivers = []string{config.DriverPGX, config.DriverSQL, config.DriverSQLX}

// Engine is an event store and a snapshot store sharing one connection pool and one pair of tables.
type Engine struct {
	Events        *postgresengine.EventStore
	Snapshots     *postgresengine.SnapshotStore
	EventTable    string
	SnapshotTable string
}

// Open connects with driver, creates fresh tables and registers their removal with t.Cleanup.
func Open(t testing.TB, driver string, options ...postgresengine.Option) Engine {
	t.Helper()

	ctx := context.Background()

	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		if os.Getenv(ContainerEnv) != "true" {
			t.Skipf("neither %s nor %s=true is set", DSNEnv, ContainerEnv)
		}

		var err error
		dsn, err = containerDatabase(ctx)
		require.NoError(t, err)
	}

	pgConfig := config.Default().Postgres
	pgConfig.DSN = dsn
	pgConfig.Driver = driver

	suffix := strings.ReplaceAll(identifier.New().String(), "-", "")[20:]
	engine := Engine{EventTable: "events_" + suffix, SnapshotTable: "snapshots_" + suffix}

	options = append(options,
		postgresengine.WithTableName(engine.EventTable),
		postgresengine.WithSnapshotTableName(engine.SnapshotTable),
	)

	var exec func(ctx context.Context, query string) error

	switch driver {
	case config.DriverSQL:
		db, err := pgConfig.OpenSQLDB(ctx)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })

		exec = func(ctx context.Context, query string) error {
			_, execErr := db.ExecContext(ctx, query)
			return execErr
		}

		engine.Events, err = postgresengine.NewEventStoreFromSQLDB(db, options...)
		require.NoError(t, err)
		engine.Snapshots, err = postgresengine.NewSnapshotStoreFromSQLDB(db, options...)
		require.NoError(t, err)

	case config.DriverSQLX:
		db, err := pgConfig.OpenSQLX(ctx)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })

		exec = func(ctx context.Context, query string) error {
			_, execErr := db.ExecContext(ctx, query)
			return execErr
		}

		engine.Events, err = postgresengine.NewEventStoreFromSQLX(db, options...)
		require.NoError(t, err)
		engine.Snapshots, err = postgresengine.NewSnapshotStoreFromSQLX(db, options...)
		require.NoError(t, err)

	default:
		pool, _, err := pgConfig.NewPGXPool(ctx)
		require.NoError(t, err)
		t.Cleanup(pool.Close)

		exec = func(ctx context.Context, query string) error {
			_, execErr := pool.Exec(ctx, query)
			return execErr
		}

		engine.Events, err = postgresengine.NewEventStoreFromPGXPool(pool, options...)
		require.NoError(t, err)
		engine.Snapshots, err = postgresengine.NewSnapshotStoreFromPGXPool(pool, options...)
		require.NoError(t, err)
	}

	require.NoError(t, engine.Events.CreateSchema(ctx))

	// registered after the pool's Close, so it runs before it
	t.Cleanup(func() {
		_ = exec(context.Background(), "DROP TABLE IF EXISTS "+engine.EventTable+", "+engine.SnapshotTable)
	})

	return engine
}
