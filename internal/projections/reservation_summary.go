package projections

import (
	"github.com/wms-platform/stock-ledger-service/internal/domain"
)

const (
	ReservationSummaryProjection = "reservation-summary"
	ReservationSummaryCollection = "reservation_summary_views"
)

// ReservationSummaryKeys returns the reservation an event concerns, if any
func ReservationSummaryKeys(event domain.Event) []string {
	switch e := event.(type) {
	case *domain.ReservationCreated:
		return []string{e.ReservationID}
	case *domain.StockAllocated:
		return []string{e.ReservationID}
	case *domain.PickingStarted:
		return []string{e.ReservationID}
	case *domain.ReservationConsumed:
		return []string{e.ReservationID}
	case *domain.ReservationCancelled:
		return []string{e.ReservationID}
	case *domain.ReservationBumped:
		return []string{e.ReservationID}
	}
	return nil
}

// ApplyReservationSummary folds one change into a reservation summary.
// Transitions the lifecycle does not allow leave the view unchanged, as do
// events for reservations the view has not seen created.
func ApplyReservationSummary(change Change, key string, current *ReservationSummaryView) *ReservationSummaryView {
	if current != nil && change.Sequence <= current.LastSequence {
		return current
	}

	if created, ok := change.Event.(*domain.ReservationCreated); ok {
		if current != nil || created.ReservationID != key {
			return current
		}
		return &ReservationSummaryView{
			ID:           created.ReservationID,
			Purpose:      created.Purpose,
			Priority:     created.Priority,
			Status:       domain.ReservationStatusPending,
			LockType:     domain.ReservationStatusPending.LockType(),
			CreatedAt:    created.CreatedAt,
			LineCount:    len(created.Lines),
			LastSequence: change.Sequence,
		}
	}

	if current == nil {
		return current
	}

	var target domain.ReservationStatus
	switch change.Event.(type) {
	case *domain.StockAllocated:
		target = domain.ReservationStatusAllocated
	case *domain.PickingStarted:
		target = domain.ReservationStatusPicking
	case *domain.ReservationConsumed:
		target = domain.ReservationStatusConsumed
	case *domain.ReservationCancelled:
		target = domain.ReservationStatusCancelled
	case *domain.ReservationBumped:
		target = domain.ReservationStatusBumped
	default:
		return current
	}

	if !current.Status.CanTransitionTo(target) {
		return current
	}

	next := *current
	next.Status = target
	// Terminal states keep the lock type the reservation last held.
	if !target.IsTerminal() {
		next.LockType = target.LockType()
	}
	if started, ok := change.Event.(*domain.PickingStarted); ok {
		startedAt := started.StartedAt
		next.PickingStartedAt = &startedAt
	}
	next.LastSequence = change.Sequence
	return &next
}
