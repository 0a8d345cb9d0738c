package main

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/command"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/config"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventbus"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/example/bankaccount"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/repository"
)

// app is the wired bank account module: the command bus with its handlers, the repository they use
// and the balance projection fed by the event bus.
type app struct {
	bus        *command.Bus
	accounts   *repository.Repository[*bankaccount.Account]
	projection *bankaccount.BalanceProjection
	stores     *stores
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, obs *observability) (*app, error) {
	stores, err := openStores(ctx, cfg, logger, obs)
	if err != nil {
		return nil, err
	}

	a := &app{stores: stores, projection: bankaccount.NewBalanceProjection()}

	if err := a.wire(cfg, logger, obs); err != nil {
		stores.close()
		return nil, err
	}

	return a, nil
}

func (a *app) wire(cfg config.Config, logger *slog.Logger, obs *observability) error {
	contextual := obs.contextualLogger(logger)

	events, err := eventbus.NewBus(eventbus.WithContextualLogger(contextual), eventbus.WithMetrics(obs.metrics))
	if err != nil {
		return err
	}

	if err := events.SubscribeAll(a.projection); err != nil {
		return err
	}

	repositoryOptions := []repository.Option{
		repository.WithPublisher(events),
		repository.WithContextualLogger(contextual),
		repository.WithMetrics(obs.metrics),
		repository.WithTracing(obs.tracing),
	}

	if a.stores.snapshots != nil {
		repositoryOptions = append(repositoryOptions, repository.WithSnapshots(a.stores.snapshots, cfg.Snapshots.Policy()))
	}

	a.accounts, err = repository.NewRepository[*bankaccount.Account](
		a.stores.events,
		bankaccount.NewEventRegistry(),
		func(id uuid.UUID) *bankaccount.Account { return bankaccount.NewAccount(id) },
		repositoryOptions...,
	)
	if err != nil {
		return err
	}

	busOptions := append([]command.Option{
		command.WithContextualLogger(contextual),
		command.WithMetrics(obs.metrics),
		command.WithTracing(obs.tracing),
	}, cfg.Retry.BusOptions()...)

	a.bus, err = command.NewBus(busOptions...)
	if err != nil {
		return err
	}

	return bankaccount.RegisterHandlers(a.bus, a.accounts)
}

func (a *app) close() {
	a.stores.close()
}
