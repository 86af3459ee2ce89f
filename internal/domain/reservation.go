package domain

import (
	"time"
)

// ReservationStatus is the lifecycle state of a reservation
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "Pending"
	ReservationStatusAllocated ReservationStatus = "Allocated"
	ReservationStatusPicking   ReservationStatus = "Picking"
	ReservationStatusConsumed  ReservationStatus = "Consumed"
	ReservationStatusCancelled ReservationStatus = "Cancelled"
	ReservationStatusBumped    ReservationStatus = "Bumped"
)

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusPending:   {ReservationStatusAllocated, ReservationStatusCancelled, ReservationStatusBumped},
	ReservationStatusAllocated: {ReservationStatusPicking, ReservationStatusCancelled, ReservationStatusBumped},
	ReservationStatusPicking:   {ReservationStatusConsumed, ReservationStatusCancelled},
}

// CanTransitionTo reports whether next is reachable from s in one step
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	for _, allowed := range reservationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s ReservationStatus) IsTerminal() bool {
	return len(reservationTransitions[s]) == 0
}

// LockType is how strongly a reservation holds its stock
type LockType string

const (
	LockSoft LockType = "Soft"
	LockHard LockType = "Hard"
)

// LockType is Hard only while picking
func (s ReservationStatus) LockType() LockType {
	if s == ReservationStatusPicking {
		return LockHard
	}
	return LockSoft
}

// ReservationStreamID is the event stream of a reservation
func ReservationStreamID(reservationID string) string {
	return ReservationStreamPrefix + reservationID
}

// Reservation is the aggregate that earmarks stock for an order line. It is
// rebuilt from its own stream.
type Reservation struct {
	ID               string
	Purpose          string
	Priority         int
	Status           ReservationStatus
	Lines            []ReservationLine
	HardLocks        []HardLockLine
	CreatedAt        time.Time
	PickingStartedAt *time.Time

	pending []Event
}

// NewReservation validates and records a new Pending reservation
func NewReservation(id, purpose string, priority int, lines []ReservationLine, createdBy string) (*Reservation, error) {
	event := &ReservationCreated{
		ReservationID: id,
		Purpose:       purpose,
		Priority:      priority,
		Lines:         lines,
		CreatedBy:     createdBy,
		CreatedAt:     time.Now().UTC(),
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}

	r := &Reservation{}
	r.record(event)
	return r, nil
}

// RehydrateReservation rebuilds a reservation from its decoded history
func RehydrateReservation(id string, history []Event) (*Reservation, error) {
	r := &Reservation{}
	for _, event := range history {
		r.apply(event)
	}
	if r.ID == "" {
		return nil, &NotFoundError{Entity: "reservation", ID: id}
	}
	return r, nil
}

func (r *Reservation) apply(event Event) {
	switch e := event.(type) {
	case *ReservationCreated:
		r.ID = e.ReservationID
		r.Purpose = e.Purpose
		r.Priority = e.Priority
		r.Lines = e.Lines
		r.Status = ReservationStatusPending
		r.CreatedAt = e.CreatedAt
	case *StockAllocated:
		r.Status = ReservationStatusAllocated
	case *PickingStarted:
		r.Status = ReservationStatusPicking
		r.HardLocks = append([]HardLockLine(nil), e.Lines...)
		startedAt := e.StartedAt
		r.PickingStartedAt = &startedAt
	case *ReservationConsumed:
		r.Status = ReservationStatusConsumed
		r.HardLocks = nil
	case *ReservationCancelled:
		r.Status = ReservationStatusCancelled
		r.HardLocks = nil
	case *ReservationBumped:
		r.Status = ReservationStatusBumped
	}
}

func (r *Reservation) record(event Event) {
	r.apply(event)
	r.pending = append(r.pending, event)
}

func (r *Reservation) transition(next ReservationStatus, action string) error {
	if !r.Status.CanTransitionTo(next) {
		return &InvalidTransitionError{Entity: "reservation", ID: r.ID, From: string(r.Status), Action: action}
	}
	return nil
}

// Allocate confirms stock is available for the reservation
func (r *Reservation) Allocate() error {
	if err := r.transition(ReservationStatusAllocated, "allocate"); err != nil {
		return err
	}
	r.record(&StockAllocated{ReservationID: r.ID, AllocatedAt: time.Now().UTC()})
	return nil
}

// StartPicking turns the reservation's soft lock into hard locks on concrete slots
func (r *Reservation) StartPicking(lines []HardLockLine, startedBy string) (*PickingStarted, error) {
	if err := r.transition(ReservationStatusPicking, "start picking"); err != nil {
		return nil, err
	}

	event := &PickingStarted{
		ReservationID: r.ID,
		Lines:         lines,
		StartedBy:     startedBy,
		StartedAt:     time.Now().UTC(),
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}

	r.record(event)
	return event, nil
}

// Consume closes a picking reservation and releases its hard locks
func (r *Reservation) Consume() error {
	if err := r.transition(ReservationStatusConsumed, "consume"); err != nil {
		return err
	}
	r.record(&ReservationConsumed{
		ReservationID: r.ID,
		ReleasedLines: r.HardLocks,
		ConsumedAt:    time.Now().UTC(),
	})
	return nil
}

// Cancel closes the reservation, releasing hard locks if it was picking
func (r *Reservation) Cancel(reason string) error {
	if err := r.transition(ReservationStatusCancelled, "cancel"); err != nil {
		return err
	}
	r.record(&ReservationCancelled{
		ReservationID: r.ID,
		ReleasedLines: r.HardLocks,
		Reason:        reason,
		CancelledAt:   time.Now().UTC(),
	})
	return nil
}

// Bump displaces a soft reservation in favour of bumpedBy
func (r *Reservation) Bump(bumpedBy string) error {
	if err := r.transition(ReservationStatusBumped, "bump"); err != nil {
		return err
	}
	if bumpedBy == "" {
		return NewValidationError("bumpedBy", "is required")
	}
	r.record(&ReservationBumped{ReservationID: r.ID, BumpedBy: bumpedBy, BumpedAt: time.Now().UTC()})
	return nil
}

// PendingEvents returns the events recorded since the aggregate was loaded
func (r *Reservation) PendingEvents() []Event {
	return r.pending
}
