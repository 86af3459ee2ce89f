package domain

import "github.com/shopspring/decimal"

// HardLockBook folds reservation events into the hard locks currently held
// per slot. A reservation holds its PickingStarted lines until it is consumed
// or cancelled.
type HardLockBook struct {
	byReservation map[string][]HardLockLine
}

// NewHardLockBook creates an empty book
func NewHardLockBook() *HardLockBook {
	return &HardLockBook{byReservation: make(map[string][]HardLockLine)}
}

// IsHardLockEvent reports whether eventType changes the hard locks a reservation holds
func IsHardLockEvent(eventType string) bool {
	switch eventType {
	case EventPickingStarted, EventReservationConsumed, EventReservationCancelled:
		return true
	}
	return false
}

// Apply folds one event; events that do not touch hard locks are ignored.
func (b *HardLockBook) Apply(event Event) {
	switch e := event.(type) {
	case *PickingStarted:
		b.byReservation[e.ReservationID] = append([]HardLockLine(nil), e.Lines...)
	case *ReservationConsumed:
		delete(b.byReservation, e.ReservationID)
	case *ReservationCancelled:
		delete(b.byReservation, e.ReservationID)
	}
}

// Locked is the total quantity hard locked at a slot
func (b *HardLockBook) Locked(slot Slot) decimal.Decimal {
	total := decimal.Zero
	for _, lines := range b.byReservation {
		for _, line := range lines {
			if line.Slot() == slot {
				total = total.Add(line.LockedQty)
			}
		}
	}
	return total
}

// Available is on-hand stock minus the hard locks at the slot, never below zero
func (b *HardLockBook) Available(slot Slot, onHand decimal.Decimal) decimal.Decimal {
	available := onHand.Sub(b.Locked(slot))
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}
