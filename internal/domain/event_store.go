package domain

import "context"

// EventReader pages the global log in sequence order
type EventReader interface {
	// ReadAll returns up to limit envelopes with Sequence > afterSequence, ascending.
	ReadAll(ctx context.Context, afterSequence uint64, limit int) ([]*Envelope, error)

	// LastSequence is the sequence of the most recently appended event, 0 when empty.
	LastSequence(ctx context.Context) (uint64, error)
}

// EventStore is the append-only event log. Appends to one stream are atomic
// and guarded by an expected revision; sequences are global and gap free.
type EventStore interface {
	EventReader

	// Append writes events to streamID if the stream is at expected, assigning
	// revisions and sequences. It returns the stream's new revision or a
	// *ConcurrencyConflictError, in which case nothing was written.
	Append(ctx context.Context, streamID string, expected ExpectedRevision, events ...*Envelope) (uint64, error)

	// ReadStream returns a stream's events in revision order together with its state.
	ReadStream(ctx context.Context, streamID string) ([]*Envelope, StreamState, error)
}

// DecodeStream decodes every envelope of a stream. Command handlers cannot
// validate against a history they cannot read, so the first malformed event
// aborts the decode.
func DecodeStream(envelopes []*Envelope) ([]Event, error) {
	events := make([]Event, 0, len(envelopes))
	for _, env := range envelopes {
		event, err := env.Decode()
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}
