package eventstore

import "context"

// ConsistencyLevel selects where an EventStore may read an event stream from.
type ConsistencyLevel int

const (
	// StrongConsistency reads from the primary. Loads that precede a save must use it, otherwise
	// the save builds on a stale version and ends in ErrConcurrencyConflict.
	StrongConsistency ConsistencyLevel = iota

	// EventualConsistency allows a replica to serve the read, e.g. for loads that only display state.
	EventualConsistency
)

var consistencyNames = map[ConsistencyLevel]string{
	StrongConsistency:   "strong",
	EventualConsistency: "eventual",
}

type consistencyKey struct{}

// WithStrongConsistency marks ctx so that reads go to the primary.
func WithStrongConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, consistencyKey{}, StrongConsistency)
}

// WithEventualConsistency marks ctx so that reads may be served by a replica:
//
//	account, err := repo.Load(eventstore.WithEventualConsistency(ctx), accountID)
func WithEventualConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, consistencyKey{}, EventualConsistency)
}

// ConsistencyFromContext returns the level stored in ctx, StrongConsistency if there is none.
func ConsistencyFromContext(ctx context.Context) ConsistencyLevel {
	level, _ := ctx.Value(consistencyKey{}).(ConsistencyLevel)

	return level
}

func (c ConsistencyLevel) String() string {
	if name, ok := consistencyNames[c]; ok {
		return name
	}

	return "unknown"
}
