package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the stored form of an event. StreamID, Revision, Sequence and
// RecordedAt are assigned by the event store on append.
type Envelope struct {
	EventID    string          `json:"eventId" bson:"_id"`
	StreamID   string          `json:"streamId" bson:"streamId"`
	Revision   uint64          `json:"revision" bson:"revision"`
	Sequence   uint64          `json:"sequence" bson:"sequence"`
	EventType  string          `json:"eventType" bson:"eventType"`
	OccurredAt time.Time       `json:"occurredAt" bson:"occurredAt"`
	RecordedAt time.Time       `json:"recordedAt" bson:"recordedAt"`
	Payload    json.RawMessage `json:"payload" bson:"payload"`
}

// NewEnvelope serialises an event for appending to streamID
func NewEnvelope(streamID string, event Event) (*Envelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		EventID:    uuid.New().String(),
		StreamID:   streamID,
		EventType:  event.EventType(),
		OccurredAt: event.OccurredAt().UTC(),
		Payload:    payload,
	}, nil
}

// Decode rebuilds the typed event. Unknown types, undecodable payloads and
// payloads that fail validation all yield a MalformedEventError.
func (e *Envelope) Decode() (Event, error) {
	factory, ok := eventFactories[e.EventType]
	if !ok {
		return nil, &MalformedEventError{EventID: e.EventID, EventType: e.EventType, Reason: "unknown event type"}
	}

	event := factory()
	if err := json.Unmarshal(e.Payload, event); err != nil {
		return nil, &MalformedEventError{EventID: e.EventID, EventType: e.EventType, Reason: "undecodable payload", Err: err}
	}
	if err := event.Validate(); err != nil {
		return nil, &MalformedEventError{EventID: e.EventID, EventType: e.EventType, Reason: "invalid payload", Err: err}
	}
	return event, nil
}

// Clone returns a deep copy so stores can hand envelopes out without sharing buffers
func (e *Envelope) Clone() *Envelope {
	c := *e
	c.Payload = append(json.RawMessage(nil), e.Payload...)
	return &c
}
