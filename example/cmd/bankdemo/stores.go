package main

import (
	"context"
	"log/slog"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/config"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore/fileengine"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore/memengine"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore/postgresengine"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore/redisengine"
)

// stores holds the selected event store, the optional snapshot store and what has to be closed at exit.
type stores struct {
	events    eventstore.EventStore
	snapshots eventstore.SnapshotStore
	closers   []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger, obs *observability) (*stores, error) {
	s := &stores{}

	var pgEvents *postgresengine.EventStore
	var pgSnapshots *postgresengine.SnapshotStore

	if cfg.EventStore.Backend == config.BackendPostgres || cfg.Snapshots.Store == config.BackendPostgres {
		var err error

		pgEvents, pgSnapshots, err = openPostgres(ctx, cfg, logger, obs, s)
		if err != nil {
			s.close()
			return nil, err
		}

		if cfg.Postgres.CreateSchema {
			if err := pgEvents.CreateSchema(ctx); err != nil {
				s.close()
				return nil, err
			}
		}
	}

	switch cfg.EventStore.Backend {
	case config.BackendPostgres:
		s.events = pgEvents
	case config.BackendFile:
		events, err := fileengine.NewEventStore(cfg.File.Dir, fileengine.WithLogger(logger))
		if err != nil {
			s.close()
			return nil, err
		}

		s.events = events
	default:
		s.events = memengine.NewEventStore(memengine.WithLogger(logger))
	}

	switch cfg.Snapshots.Store {
	case config.BackendMemory:
		s.snapshots = memengine.NewSnapshotStore(memengine.WithLogger(logger))
	case config.BackendFile:
		snapshots, err := fileengine.NewSnapshotStore(cfg.File.Dir,
			fileengine.WithSnapshotFileName(cfg.File.SnapshotFile),
			fileengine.WithLogger(logger),
		)
		if err != nil {
			s.close()
			return nil, err
		}

		s.snapshots = snapshots
	case config.BackendPostgres:
		s.snapshots = pgSnapshots
	case config.BackendRedis:
		snapshots, err := openRedis(cfg, logger, obs, s)
		if err != nil {
			s.close()
			return nil, err
		}

		s.snapshots = snapshots
	}

	logger.DebugContext(ctx, "stores opened",
		slog.String("event_store", cfg.EventStore.Backend),
		slog.String("snapshot_store", cfg.Snapshots.Store),
		slog.String("postgres_driver", cfg.Postgres.Driver),
	)

	return s, nil
}

func openPostgres(
	ctx context.Context,
	cfg config.Config,
	logger *slog.Logger,
	obs *observability,
	s *stores,
) (*postgresengine.EventStore, *postgresengine.SnapshotStore, error) {

	options := []postgresengine.Option{
		postgresengine.WithTableName(cfg.Postgres.EventTable),
		postgresengine.WithSnapshotTableName(cfg.Postgres.SnapshotTable),
		postgresengine.WithContextualLogger(logger),
		postgresengine.WithMetrics(obs.metrics),
		postgresengine.WithTracing(obs.tracing),
	}

	switch cfg.Postgres.Driver {
	case config.DriverSQL:
		db, err := cfg.Postgres.OpenSQLDB(ctx)
		if err != nil {
			return nil, nil, err
		}
		s.closers = append(s.closers, func() { _ = db.Close() })

		events, err := postgresengine.NewEventStoreFromSQLDB(db, options...)
		if err != nil {
			return nil, nil, err
		}

		snapshots, err := postgresengine.NewSnapshotStoreFromSQLDB(db, options...)

		return events, snapshots, err

	case config.DriverSQLX:
		db, err := cfg.Postgres.OpenSQLX(ctx)
		if err != nil {
			return nil, nil, err
		}
		s.closers = append(s.closers, func() { _ = db.Close() })

		events, err := postgresengine.NewEventStoreFromSQLX(db, options...)
		if err != nil {
			return nil, nil, err
		}

		snapshots, err := postgresengine.NewSnapshotStoreFromSQLX(db, options...)

		return events, snapshots, err

	default:
		primary, replica, err := cfg.Postgres.NewPGXPool(ctx)
		if err != nil {
			return nil, nil, err
		}
		s.closers = append(s.closers, primary.Close)

		var events *postgresengine.EventStore
		if replica != nil {
			s.closers = append(s.closers, replica.Close)
			events, err = postgresengine.NewEventStoreFromPGXPoolAndReplica(primary, replica, options...)
		} else {
			events, err = postgresengine.NewEventStoreFromPGXPool(primary, options...)
		}

		if err != nil {
			return nil, nil, err
		}

		snapshots, err := postgresengine.NewSnapshotStoreFromPGXPool(primary, options...)

		return events, snapshots, err
	}
}

func openRedis(cfg config.Config, logger *slog.Logger, obs *observability, s *stores) (*redisengine.SnapshotStore, error) {
	client, err := cfg.Redis.NewRedisClient()
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() { _ = client.Close() })

	snapshots, err := redisengine.NewSnapshotStore(client,
		redisengine.WithKeyPrefix(cfg.Redis.KeyPrefix),
		redisengine.WithTTL(cfg.Redis.SnapshotTTL),
		redisengine.WithContextualLogger(logger),
		redisengine.WithMetrics(obs.metrics),
	)
	if err != nil {
		return nil, err
	}

	return snapshots, nil
}
