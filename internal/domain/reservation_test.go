package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReservation(t *testing.T) *Reservation {
	t.Helper()
	r, err := NewReservation("RES-1", "SalesOrder", 5, []ReservationLine{
		{Warehouse: "WH1", Item: "SKU-1", Quantity: qty("4")},
	}, "planner")
	require.NoError(t, err)
	return r
}

func pickLines() []HardLockLine {
	return []HardLockLine{
		{Warehouse: "WH1", Location: "A1", Item: "SKU-1", LockedQty: qty("3")},
		{Warehouse: "WH1", Location: "A2", Item: "SKU-1", LockedQty: qty("1")},
	}
}

func TestNewReservation(t *testing.T) {
	r := newTestReservation(t)

	assert.Equal(t, ReservationStatusPending, r.Status)
	assert.Equal(t, LockSoft, r.Status.LockType())
	require.Len(t, r.PendingEvents(), 1)
	assert.Equal(t, EventReservationCreated, r.PendingEvents()[0].EventType())

	_, err := NewReservation("RES-2", "SalesOrder", 1, nil, "planner")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewReservation("RES-3", "SalesOrder", 1, []ReservationLine{{Warehouse: "WH1", Item: "SKU-1", Quantity: qty("-1")}}, "planner")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestReservation_HappyPath(t *testing.T) {
	r := newTestReservation(t)

	require.NoError(t, r.Allocate())
	event, err := r.StartPicking(pickLines(), "picker-7")
	require.NoError(t, err)
	assert.Equal(t, ReservationStatusPicking, r.Status)
	assert.Equal(t, LockHard, r.Status.LockType())
	assert.NotNil(t, r.PickingStartedAt)
	assert.Len(t, event.Lines, 2)

	require.NoError(t, r.Consume())
	assert.Equal(t, ReservationStatusConsumed, r.Status)
	assert.True(t, r.Status.IsTerminal())

	events := r.PendingEvents()
	require.Len(t, events, 4)
	consumed, ok := events[3].(*ReservationConsumed)
	require.True(t, ok)
	assert.Equal(t, pickLines(), consumed.ReleasedLines)
}

func TestReservation_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *Reservation)
		act   func(r *Reservation) error
	}{
		{
			name: "pick before allocation",
			act: func(r *Reservation) error {
				_, err := r.StartPicking(pickLines(), "picker")
				return err
			},
		},
		{
			name: "consume while pending",
			act:  func(r *Reservation) error { return r.Consume() },
		},
		{
			name: "bump while picking",
			setup: func(r *Reservation) {
				_ = r.Allocate()
				_, _ = r.StartPicking(pickLines(), "picker")
			},
			act: func(r *Reservation) error { return r.Bump("RES-HIGH") },
		},
		{
			name:  "cancel after cancel",
			setup: func(r *Reservation) { _ = r.Cancel("customer") },
			act:   func(r *Reservation) error { return r.Cancel("again") },
		},
		{
			name:  "allocate after bump",
			setup: func(r *Reservation) { _ = r.Bump("RES-HIGH") },
			act:   func(r *Reservation) error { return r.Allocate() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReservation(t)
			if tt.setup != nil {
				tt.setup(r)
			}
			before := len(r.PendingEvents())

			err := tt.act(r)

			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Len(t, r.PendingEvents(), before)
		})
	}
}

func TestReservation_CancelWhilePickingReleasesLocks(t *testing.T) {
	r := newTestReservation(t)
	require.NoError(t, r.Allocate())
	_, err := r.StartPicking(pickLines(), "picker")
	require.NoError(t, err)

	require.NoError(t, r.Cancel("short pick"))

	cancelled := r.PendingEvents()[len(r.PendingEvents())-1].(*ReservationCancelled)
	assert.Equal(t, pickLines(), cancelled.ReleasedLines)
	assert.Empty(t, r.HardLocks)
}

func TestRehydrateReservation(t *testing.T) {
	live := newTestReservation(t)
	require.NoError(t, live.Allocate())

	rebuilt, err := RehydrateReservation("RES-1", live.PendingEvents())
	require.NoError(t, err)
	assert.Equal(t, ReservationStatusAllocated, rebuilt.Status)
	assert.Equal(t, 5, rebuilt.Priority)
	assert.Empty(t, rebuilt.PendingEvents())

	_, err = RehydrateReservation("RES-404", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatusWireValues(t *testing.T) {
	assert.Equal(t, "Consumed", string(ReservationStatusConsumed))
	assert.Equal(t, "Cancelled", string(ReservationStatusCancelled))
	assert.Equal(t, "Bumped", string(ReservationStatusBumped))
	assert.Equal(t, "Sealed", string(HandlingUnitStatusSealed))
	assert.Equal(t, EventReservationConsumed, (&ReservationConsumed{}).EventType())
	assert.Equal(t, EventHandlingUnitSealed, (&HandlingUnitSealed{}).EventType())
}
