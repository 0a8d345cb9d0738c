package eventstore

import (
	"context"

	"github.com/google/uuid"
)

type (
	correlationIDKey struct{}
	causationIDKey   struct{}
)

// EventMetadata is stored next to every event payload.
//
// MessageID is the id of the event itself, CausationID the id of the message (usually a command)
// that caused it, and CorrelationID the id of the first message of the whole conversation.
type EventMetadata struct {
	MessageID     string `json:"MessageID"`
	CausationID   string `json:"CausationID"`
	CorrelationID string `json:"CorrelationID"`
}

// BuildEventMetadata builds the metadata for the event with messageID from the causation and
// correlation ids carried by ctx. Missing ids default to the messageID.
func BuildEventMetadata(ctx context.Context, messageID uuid.UUID) EventMetadata {
	metadata := EventMetadata{
		MessageID:     messageID.String(),
		CausationID:   messageID.String(),
		CorrelationID: messageID.String(),
	}

	if causationID, ok := CausationIDFrom(ctx); ok {
		metadata.CausationID = causationID.String()
		metadata.CorrelationID = causationID.String()
	}

	if correlationID, ok := CorrelationIDFrom(ctx); ok {
		metadata.CorrelationID = correlationID.String()
	}

	return metadata
}

// WithCorrelationID returns a context carrying the correlation id.
func WithCorrelationID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// WithCausationID returns a context carrying the causation id.
func WithCausationID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, causationIDKey{}, id)
}

// CorrelationIDFrom extracts the correlation id from the context.
func CorrelationIDFrom(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(correlationIDKey{}).(uuid.UUID)
	return id, ok
}

// CausationIDFrom extracts the causation id from the context.
func CausationIDFrom(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(causationIDKey{}).(uuid.UUID)
	return id, ok
}
