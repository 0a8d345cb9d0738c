package config

import (
	"github.com/AntonStoeckl/eventsourced-aggregates-go/command"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/repository"
)

// Policy returns the snapshot policy: EverySave wins over EveryNEvents, and neither means no snapshots.
func (c SnapshotConfig) Policy() repository.SnapshotPolicy {
	switch {
	case c.EverySave:
		return repository.EverySave()
	case c.EveryNEvents > 0:
		return repository.EveryNEvents(c.EveryNEvents)
	default:
		return repository.NeverSnapshot()
	}
}

// BusOptions returns the command bus option that enables retries, or none when MaxAttempts is 0.
func (c RetryConfig) BusOptions() []command.Option {
	if c.MaxAttempts == 0 {
		return nil
	}

	return []command.Option{
		command.WithRetry(
			command.WithMaxAttempts(c.MaxAttempts),
			command.WithBaseDelay(c.BaseDelay),
			command.WithJitterFactor(c.JitterFactor),
		),
	}
}
