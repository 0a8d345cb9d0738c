// Package command dispatches commands to exactly one registered handler.
//
// Handlers are registered per concrete command type:
//
//	bus := command.NewBus()
//	command.Register(bus, command.HandlerFunc[OpenAccount](handleOpenAccount))
//	err := bus.Send(ctx, OpenAccount{...})
//
// Registering a second handler for the same command type replaces the first one. Send fails with
// ErrHandlerNotFound when nothing is registered and otherwise returns the handler's error unchanged.
// Every Send gets a fresh message id which is put into the context as the causation id of the
// events the handler saves.
//
// With WithRetry the bus reruns the handler on eventstore.ErrConcurrencyConflict using
// RetryWithExponentialBackoff, so a handler that loads, decides and saves is retried as a whole.
package command
