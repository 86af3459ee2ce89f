package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates the physical stock movements the ledger records
type MovementType string

const (
	MovementReceipt       MovementType = "Receipt"
	MovementTransfer      MovementType = "Transfer"
	MovementDispatch      MovementType = "Dispatch"
	MovementAdjustmentIn  MovementType = "AdjustmentIn"
	MovementAdjustmentOut MovementType = "AdjustmentOut"
	MovementPick          MovementType = "Pick"
)

// MovementTypes lists every movement type in declaration order
var MovementTypes = []MovementType{
	MovementReceipt,
	MovementTransfer,
	MovementDispatch,
	MovementAdjustmentIn,
	MovementAdjustmentOut,
	MovementPick,
}

// IsValid reports whether t is a known movement type
func (t MovementType) IsValid() bool {
	for _, known := range MovementTypes {
		if t == known {
			return true
		}
	}
	return false
}

// DecreasesSource reports whether the movement takes stock out of a source slot
func (t MovementType) DecreasesSource() bool {
	switch t {
	case MovementDispatch, MovementTransfer, MovementAdjustmentOut, MovementPick:
		return true
	}
	return false
}

// RequiresDestination reports whether a destination location is mandatory
func (t MovementType) RequiresDestination() bool {
	switch t {
	case MovementReceipt, MovementAdjustmentIn, MovementTransfer:
		return true
	}
	return false
}

// AllowsDestination reports whether a destination location may be given
func (t MovementType) AllowsDestination() bool {
	return t.RequiresDestination() || t == MovementPick
}

// MovementEvent is one physical stock movement. It is stored as one or two
// StockMoved legs that share MovementID.
type MovementEvent struct {
	MovementID          string          `json:"movementId" validate:"required"`
	Warehouse           string          `json:"warehouse" validate:"required,excludes=:"`
	Item                string          `json:"item" validate:"required,excludes=:"`
	Quantity            decimal.Decimal `json:"quantity"`
	SourceLocation      string          `json:"sourceLocation,omitempty" validate:"omitempty,excludes=:"`
	DestinationLocation string          `json:"destinationLocation,omitempty" validate:"omitempty,excludes=:"`
	MovementType        MovementType    `json:"movementType" validate:"required,oneof=Receipt Transfer Dispatch AdjustmentIn AdjustmentOut Pick"`
	OperatorID          string          `json:"operatorId" validate:"required"`
	ContainerID         string          `json:"containerId,omitempty"`
	Reason              string          `json:"reason,omitempty"`
	Timestamp           time.Time       `json:"timestamp" validate:"required"`
}

// SourceSlot is the slot stock leaves; zero when the movement has no source
func (m MovementEvent) SourceSlot() Slot {
	if m.SourceLocation == "" {
		return Slot{}
	}
	return NewSlot(m.Warehouse, m.SourceLocation, m.Item)
}

// DestinationSlot is the slot stock arrives at; zero when the movement has no destination
func (m MovementEvent) DestinationSlot() Slot {
	if m.DestinationLocation == "" {
		return Slot{}
	}
	return NewSlot(m.Warehouse, m.DestinationLocation, m.Item)
}

// Validate checks the structural rules every stored movement must satisfy
func (m MovementEvent) Validate() error {
	if err := ValidateStruct(m); err != nil {
		return err
	}
	if err := requirePositive("quantity", m.Quantity); err != nil {
		return err
	}
	if m.MovementType.DecreasesSource() && m.SourceLocation == "" {
		return NewValidationError("sourceLocation", "is required for "+string(m.MovementType))
	}
	if !m.MovementType.DecreasesSource() && m.SourceLocation != "" {
		return NewValidationError("sourceLocation", "is not allowed for "+string(m.MovementType))
	}
	if m.MovementType.RequiresDestination() && m.DestinationLocation == "" {
		return NewValidationError("destinationLocation", "is required for "+string(m.MovementType))
	}
	if !m.MovementType.AllowsDestination() && m.DestinationLocation != "" {
		return NewValidationError("destinationLocation", "is not allowed for "+string(m.MovementType))
	}
	if m.SourceLocation != "" && m.SourceLocation == m.DestinationLocation {
		return NewValidationError("destinationLocation", "must differ from sourceLocation")
	}
	return nil
}

// Legs splits the movement into the per-stream events that are appended, source first.
func (m MovementEvent) Legs() []*StockMoved {
	legs := make([]*StockMoved, 0, 2)
	if m.SourceLocation != "" {
		legs = append(legs, &StockMoved{Movement: m, Side: LegSource})
	}
	if m.DestinationLocation != "" {
		legs = append(legs, &StockMoved{Movement: m, Side: LegDestination})
	}
	return legs
}

// LegSide says which end of a movement a StockMoved event records
type LegSide string

const (
	LegSource      LegSide = "source"
	LegDestination LegSide = "destination"
)

// StockMoved is the event appended to a slot stream for one side of a movement
type StockMoved struct {
	Movement MovementEvent `json:"movement"`
	Side     LegSide       `json:"side" validate:"required,oneof=source destination"`
}

func (e *StockMoved) EventType() string     { return EventStockMoved }
func (e *StockMoved) OccurredAt() time.Time { return e.Movement.Timestamp }

// Slot is the slot whose stream carries this leg
func (e *StockMoved) Slot() Slot {
	if e.Side == LegSource {
		return e.Movement.SourceSlot()
	}
	return e.Movement.DestinationSlot()
}

// Delta is the signed balance change the leg applies to its slot
func (e *StockMoved) Delta() decimal.Decimal {
	if e.Side == LegSource {
		return e.Movement.Quantity.Neg()
	}
	return e.Movement.Quantity
}

func (e *StockMoved) Validate() error {
	if err := ValidateStruct(e); err != nil {
		return err
	}
	if err := e.Movement.Validate(); err != nil {
		return err
	}
	if e.Slot().IsZero() {
		return NewValidationError("side", "leg has no location for side "+string(e.Side))
	}
	return nil
}
