package projections

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/stock-ledger-service/internal/domain"
)

const (
	HandlingUnitProjection = "handling-units"
	HandlingUnitCollection = "handling_unit_views"
)

// HandlingUnitKeys returns the unit an event concerns, if any
func HandlingUnitKeys(event domain.Event) []string {
	switch e := event.(type) {
	case *domain.HandlingUnitCreated:
		return []string{e.UnitID}
	case *domain.HandlingUnitSealed:
		return []string{e.UnitID}
	case *domain.StockMoved:
		if e.Movement.ContainerID != "" {
			return []string{e.Movement.ContainerID}
		}
	}
	return nil
}

// ApplyHandlingUnit folds one change into a handling unit view.
//
// Movement legs reach a unit through their ContainerID. Receipt and
// AdjustmentIn destination legs at the unit's location add stock; Pick,
// Dispatch and AdjustmentOut source legs at the unit's location remove it; a
// Transfer source leg leaving the unit's location moves the whole unit to the
// transfer's destination. Other legs, events for unknown units and anything
// after sealing leave the view unchanged.
func ApplyHandlingUnit(change Change, key string, current *HandlingUnitView) *HandlingUnitView {
	if current != nil && change.Sequence <= current.LastSequence {
		return current
	}

	if created, ok := change.Event.(*domain.HandlingUnitCreated); ok {
		if current != nil || created.UnitID != key {
			return current
		}
		return &HandlingUnitView{
			ID:              created.UnitID,
			Label:           created.Label,
			UnitType:        created.UnitType,
			Status:          domain.HandlingUnitStatusOpen,
			Warehouse:       created.Warehouse,
			CurrentLocation: created.Location,
			Lines:           []HandlingUnitLine{},
			CreatedAt:       created.CreatedAt,
			LastSequence:    change.Sequence,
		}
	}

	if current == nil || current.Status == domain.HandlingUnitStatusSealed {
		return current
	}

	next := *current
	next.Lines = append([]HandlingUnitLine(nil), current.Lines...)

	switch e := change.Event.(type) {
	case *domain.HandlingUnitSealed:
		sealedAt := e.SealedAt
		next.Status = domain.HandlingUnitStatusSealed
		next.SealedAt = &sealedAt
	case *domain.StockMoved:
		if !applyLegToUnit(&next, e) {
			return current
		}
	default:
		return current
	}

	next.LastSequence = change.Sequence
	return &next
}

func applyLegToUnit(view *HandlingUnitView, leg *domain.StockMoved) bool {
	m := leg.Movement
	slot := leg.Slot()
	if slot.Warehouse != view.Warehouse || slot.Location != view.CurrentLocation {
		return false
	}

	switch {
	case leg.Side == domain.LegDestination && (m.MovementType == domain.MovementReceipt || m.MovementType == domain.MovementAdjustmentIn):
		view.Lines = adjustLine(view.Lines, m.Item, m.Quantity)
	case leg.Side == domain.LegSource && (m.MovementType == domain.MovementPick || m.MovementType == domain.MovementDispatch || m.MovementType == domain.MovementAdjustmentOut):
		view.Lines = adjustLine(view.Lines, m.Item, m.Quantity.Neg())
	case leg.Side == domain.LegSource && m.MovementType == domain.MovementTransfer:
		view.CurrentLocation = m.DestinationLocation
	default:
		return false
	}
	return true
}

// adjustLine applies delta to the item's line, dropping lines that reach zero
// and keeping lines sorted by item.
func adjustLine(lines []HandlingUnitLine, item string, delta decimal.Decimal) []HandlingUnitLine {
	found := false
	out := lines[:0]
	for _, line := range lines {
		if line.Item == item {
			found = true
			line.Quantity = line.Quantity.Add(delta)
		}
		if line.Quantity.IsPositive() {
			out = append(out, line)
		}
	}
	if !found && delta.IsPositive() {
		out = append(out, HandlingUnitLine{Item: item, Quantity: delta})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}
