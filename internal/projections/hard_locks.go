package projections

import (
	"github.com/shopspring/decimal"

	"github.com/wms-platform/stock-ledger-service/internal/domain"
)

const (
	ActiveHardLockProjection = "active-hard-locks"
	ActiveHardLockCollection = "active_hard_lock_views"
)

// ActiveHardLockKeys returns the lock rows an event inserts or deletes
func ActiveHardLockKeys(event domain.Event) []string {
	switch e := event.(type) {
	case *domain.PickingStarted:
		return hardLockKeys(e.ReservationID, e.Lines)
	case *domain.ReservationConsumed:
		return hardLockKeys(e.ReservationID, e.ReleasedLines)
	case *domain.ReservationCancelled:
		return hardLockKeys(e.ReservationID, e.ReleasedLines)
	}
	return nil
}

// ApplyActiveHardLock inserts a row when picking starts and returns nil, which
// deletes the row, when the reservation is consumed or cancelled.
func ApplyActiveHardLock(change Change, key string, current *ActiveHardLockView) *ActiveHardLockView {
	if current != nil && change.Sequence <= current.LastSequence {
		return current
	}

	switch e := change.Event.(type) {
	case *domain.PickingStarted:
		line, total, ok := hardLockLineForKey(e.ReservationID, e.Lines, key)
		if !ok {
			return current
		}
		next := ActiveHardLockView{
			ID:            key,
			ReservationID: e.ReservationID,
			Warehouse:     line.Warehouse,
			Location:      line.Location,
			Item:          line.Item,
			LockedQty:     total,
			LockedAt:      e.StartedAt,
			LastSequence:  change.Sequence,
		}
		if current != nil {
			next.LockedQty = current.LockedQty.Add(total)
			next.LockedAt = current.LockedAt
		}
		return &next
	case *domain.ReservationConsumed, *domain.ReservationCancelled:
		return nil
	default:
		return current
	}
}

func hardLockKeys(reservationID string, lines []domain.HardLockLine) []string {
	seen := make(map[string]struct{}, len(lines))
	keys := make([]string, 0, len(lines))
	for _, line := range lines {
		key := HardLockKey(reservationID, line.Location, line.Item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

func hardLockLineForKey(reservationID string, lines []domain.HardLockLine, key string) (domain.HardLockLine, decimal.Decimal, bool) {
	var (
		match domain.HardLockLine
		found bool
	)
	total := decimal.Zero
	for _, line := range lines {
		if HardLockKey(reservationID, line.Location, line.Item) != key {
			continue
		}
		match = line
		found = true
		total = total.Add(line.LockedQty)
	}
	return match, total, found
}
