package application

import (
	"github.com/shopspring/decimal"

	"github.com/wms-platform/stock-ledger-service/internal/domain"
)

// RecordMovementCommand records one stock movement. Quantity must be positive;
// which locations are required depends on Type.
type RecordMovementCommand struct {
	MovementID   string              `json:"movementId,omitempty"`
	Warehouse    string              `json:"warehouse" validate:"required,excludes=:"`
	Item         string              `json:"item" validate:"required,excludes=:"`
	Quantity     decimal.Decimal     `json:"quantity"`
	FromLocation string              `json:"fromLocation,omitempty" validate:"omitempty,excludes=:"`
	ToLocation   string              `json:"toLocation,omitempty" validate:"omitempty,excludes=:"`
	Type         domain.MovementType `json:"movementType" validate:"required"`
	OperatorID   string              `json:"operatorId" validate:"required"`
	ContainerID  string              `json:"containerId,omitempty"`
	Reason       string              `json:"reason,omitempty"`
}

func (c RecordMovementCommand) request() domain.MovementRequest {
	return domain.MovementRequest{
		MovementID:   c.MovementID,
		Item:         c.Item,
		Quantity:     c.Quantity,
		FromLocation: c.FromLocation,
		ToLocation:   c.ToLocation,
		Type:         c.Type,
		OperatorID:   c.OperatorID,
		ContainerID:  c.ContainerID,
		Reason:       c.Reason,
	}
}

// slots returns the slots the movement touches
func (c RecordMovementCommand) slots() []domain.Slot {
	var slots []domain.Slot
	if c.FromLocation != "" {
		slots = append(slots, domain.NewSlot(c.Warehouse, c.FromLocation, c.Item))
	}
	if c.ToLocation != "" {
		slots = append(slots, domain.NewSlot(c.Warehouse, c.ToLocation, c.Item))
	}
	return slots
}

// StartPickingCommand hard-locks stock at concrete slots for a reservation
type StartPickingCommand struct {
	ReservationID string                `json:"reservationId" validate:"required"`
	Lines         []domain.HardLockLine `json:"lines" validate:"required,min=1,dive"`
	StartedBy     string                `json:"startedBy" validate:"required"`
}

// CreateReservationCommand opens a Pending reservation
type CreateReservationCommand struct {
	ReservationID string                   `json:"reservationId" validate:"required"`
	Purpose       string                   `json:"purpose" validate:"required"`
	Priority      int                      `json:"priority" validate:"gte=0"`
	Lines         []domain.ReservationLine `json:"lines" validate:"required,min=1,dive"`
	CreatedBy     string                   `json:"createdBy"`
}

// CreateHandlingUnitCommand registers a handling unit at a location
type CreateHandlingUnitCommand struct {
	UnitID    string `json:"unitId" validate:"required"`
	Label     string `json:"label" validate:"required"`
	UnitType  string `json:"unitType" validate:"required"`
	Warehouse string `json:"warehouse" validate:"required,excludes=:"`
	Location  string `json:"location" validate:"required,excludes=:"`
}

// MovementStatus is the outcome of RecordMovement
type MovementStatus string

const (
	MovementApplied          MovementStatus = "applied"
	MovementPartiallyApplied MovementStatus = "partially_applied"
)

// LegResult is where one appended leg landed in the log
type LegResult struct {
	StreamID string         `json:"streamId"`
	Side     domain.LegSide `json:"side"`
	Revision uint64         `json:"revision"`
	Sequence uint64         `json:"sequence"`
}

// MovementResult reports a recorded movement
type MovementResult struct {
	Movement domain.MovementEvent `json:"movement"`
	Status   MovementStatus       `json:"status"`
	Legs     []LegResult          `json:"legs"`
}

// CommandResult reports the stream position after a reservation or handling unit command
type CommandResult struct {
	StreamID string `json:"streamId"`
	Revision uint64 `json:"revision"`
}
