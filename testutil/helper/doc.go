// Package helper provides test doubles for the observability interfaces of the eventstore package:
// a slog.Handler that captures records and spies for metrics and tracing collectors.
package helper
