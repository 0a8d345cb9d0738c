// Package eventbus delivers committed domain events to in-process subscribers.
//
// A Bus implements repository.Publisher, so wiring it with repository.WithPublisher makes every
// successful save reach the subscribers synchronously and in commit order. Handlers subscribe to
// one event type or to all of them; middlewares wrap every handler.
package eventbus
