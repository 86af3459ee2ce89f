package projections

import (
	"github.com/shopspring/decimal"

	"github.com/wms-platform/stock-ledger-service/internal/domain"
)

const (
	AvailableStockProjection = "available-stock"
	AvailableStockCollection = "available_stock_views"
)

// AvailableStockKeys returns the slot keys an event touches in the available stock view
func AvailableStockKeys(event domain.Event) []string {
	switch e := event.(type) {
	case *domain.StockMoved:
		return []string{e.Slot().Key()}
	case *domain.PickingStarted:
		return lineSlotKeys(e.Lines)
	case *domain.ReservationConsumed:
		return lineSlotKeys(e.ReleasedLines)
	case *domain.ReservationCancelled:
		return lineSlotKeys(e.ReleasedLines)
	default:
		return nil
	}
}

// ApplyAvailableStock folds one change into the view for key. It returns
// current unchanged for replays and for events that do not concern the view,
// and never mutates current.
func ApplyAvailableStock(change Change, key string, current *AvailableStockView) *AvailableStockView {
	if current != nil && change.Sequence <= current.LastSequence {
		return current
	}

	var (
		onHandDelta = decimal.Zero
		lockDelta   = decimal.Zero
		slot        domain.Slot
	)

	switch e := change.Event.(type) {
	case *domain.StockMoved:
		slot = e.Slot()
		if slot.Key() != key {
			return current
		}
		onHandDelta = e.Delta()
	case *domain.PickingStarted:
		slot, lockDelta = sumLinesForKey(e.Lines, key)
	case *domain.ReservationConsumed:
		slot, lockDelta = sumLinesForKey(e.ReleasedLines, key)
		lockDelta = lockDelta.Neg()
	case *domain.ReservationCancelled:
		slot, lockDelta = sumLinesForKey(e.ReleasedLines, key)
		lockDelta = lockDelta.Neg()
	default:
		return current
	}

	if onHandDelta.IsZero() && lockDelta.IsZero() {
		return current
	}
	// A release for a slot the view has never seen has nothing to release.
	if current == nil && lockDelta.IsNegative() {
		return nil
	}

	var next AvailableStockView
	if current != nil {
		next = *current
	} else {
		next = AvailableStockView{
			ID:            key,
			Warehouse:     slot.Warehouse,
			Location:      slot.Location,
			Item:          slot.Item,
			OnHandQty:     decimal.Zero,
			HardLockedQty: decimal.Zero,
		}
	}

	next.OnHandQty = next.OnHandQty.Add(onHandDelta)
	next.HardLockedQty = next.HardLockedQty.Add(lockDelta)
	if next.HardLockedQty.IsNegative() {
		next.HardLockedQty = decimal.Zero
	}
	next.AvailableQty = next.OnHandQty.Sub(next.HardLockedQty)
	next.LastUpdated = change.OccurredAt
	next.LastSequence = change.Sequence
	return &next
}

func lineSlotKeys(lines []domain.HardLockLine) []string {
	slots := make([]domain.Slot, 0, len(lines))
	for _, line := range lines {
		slots = append(slots, line.Slot())
	}
	return uniqueSlotKeys(slots)
}

func uniqueSlotKeys(slots []domain.Slot) []string {
	seen := make(map[string]struct{}, len(slots))
	keys := make([]string, 0, len(slots))
	for _, slot := range slots {
		key := slot.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// sumLinesForKey adds up the locked quantity of every line on the slot key.
// Lines sharing a slot are summed.
func sumLinesForKey(lines []domain.HardLockLine, key string) (domain.Slot, decimal.Decimal) {
	var slot domain.Slot
	total := decimal.Zero
	for _, line := range lines {
		if line.Slot().Key() != key {
			continue
		}
		slot = line.Slot()
		total = total.Add(line.LockedQty)
	}
	return slot, total
}
