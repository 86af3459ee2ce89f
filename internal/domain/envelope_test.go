package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_DecodeRoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	movement := MovementEvent{
		MovementID:          "m-1",
		Warehouse:           "WH1",
		Item:                "SKU-1",
		Quantity:            qty("12.5"),
		SourceLocation:      "A1",
		DestinationLocation: "B1",
		MovementType:        MovementTransfer,
		OperatorID:          "op",
		Timestamp:           at,
	}
	leg := movement.Legs()[1]

	env, err := NewEnvelope(leg.Slot().StreamID(), leg)
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, EventStockMoved, env.EventType)
	assert.Equal(t, at, env.OccurredAt)

	decoded, err := env.Decode()
	require.NoError(t, err)
	got, ok := decoded.(*StockMoved)
	require.True(t, ok)
	assert.Equal(t, LegDestination, got.Side)
	assert.True(t, got.Movement.Quantity.Equal(qty("12.5")))
	assert.Equal(t, NewSlot("WH1", "B1", "SKU-1"), got.Slot())
}

func TestEnvelope_DecodeMalformed(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		payload   string
		reason    string
	}{
		{"unknown type", "wms.stock.teleported", `{}`, "unknown event type"},
		{"not json", EventStockMoved, `{"movement":`, "undecodable payload"},
		{"wrong shape", EventReservationCreated, `{"lines":"nope"}`, "undecodable payload"},
		{"fails validation", EventHandlingUnitSealed, `{"unitId":"HU-1"}`, "invalid payload"},
		{"non-positive lock", EventPickingStarted, `{"reservationId":"R","startedBy":"p","startedAt":"2024-01-01T00:00:00Z","lines":[{"warehouse":"W","location":"L","item":"I","lockedQty":"0"}]}`, "invalid payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := &Envelope{EventID: "evt-1", EventType: tt.eventType, Payload: json.RawMessage(tt.payload)}

			_, err := env.Decode()

			var malformed *MalformedEventError
			require.ErrorAs(t, err, &malformed)
			assert.ErrorIs(t, err, ErrMalformedEvent)
			assert.Equal(t, tt.reason, malformed.Reason)
			assert.Equal(t, "evt-1", malformed.EventID)
		})
	}
}

func TestExpectedRevision(t *testing.T) {
	absent := StreamState{StreamID: "s"}
	atTwo := StreamState{StreamID: "s", Revision: 2, Exists: true}

	assert.True(t, absent.Satisfies(NoStream))
	assert.False(t, absent.Satisfies(AtRevision(0)))
	assert.True(t, atTwo.Satisfies(AtRevision(2)))
	assert.False(t, atTwo.Satisfies(AtRevision(1)))
	assert.False(t, atTwo.Satisfies(NoStream))

	assert.Equal(t, uint64(0), NoStream.After(1))
	assert.Equal(t, uint64(1), NoStream.After(2))
	assert.Equal(t, uint64(4), AtRevision(2).After(2))
	assert.Equal(t, AtRevision(2), atTwo.Expected())
	assert.Equal(t, "no-stream", NoStream.String())
}

func TestErrors_MatchSentinels(t *testing.T) {
	conflict := &ConcurrencyConflictError{StreamID: "s", Expected: AtRevision(1), Actual: StreamState{Revision: 3, Exists: true}}
	assert.ErrorIs(t, conflict, ErrConcurrencyConflict)
	assert.Contains(t, conflict.Error(), "expected 1, actual 3")

	partial := &PartialMovementError{MovementID: "m", Appended: []string{"a"}, Failed: []string{"b"}, Err: conflict}
	assert.ErrorIs(t, partial, ErrPartialMovement)
	assert.ErrorIs(t, partial, ErrConcurrencyConflict)

	assert.ErrorIs(t, &InvalidTransitionError{}, ErrInvalidTransition)
	assert.NotErrorIs(t, NewValidationError("f", "m"), ErrInsufficientBalance)
}
