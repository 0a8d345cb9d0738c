// Package repository loads and saves event-sourced aggregates.
//
// Load rebuilds an aggregate from its latest snapshot, if any, plus the events stored after it.
// Save appends the uncommitted events of an aggregate under the expected-version check of the
// event store, takes a snapshot when the configured SnapshotPolicy asks for one, and hands the
// committed events to an optional Publisher.
//
// Events are converted between domain and storage form by an EventRegistry, which maps event
// type names to constructors and serializes payloads as JSON.
//
// Usage:
//
//	registry := repository.NewEventRegistry()
//	registry.MustRegister(
//		func() aggregate.DomainEvent { return &AccountOpened{} },
//		func() aggregate.DomainEvent { return &AccountDebited{} },
//	)
//
//	accounts, _ := repository.NewRepository(eventStore, registry, NewAccount,
//		repository.WithSnapshots(snapshotStore, repository.EveryNEvents(50)),
//		repository.WithLogger(logger),
//	)
//
//	account, err := accounts.Load(ctx, accountID)
//	// ... call domain methods ...
//	err = accounts.Save(ctx, account, account.CommittedVersion())
package repository
