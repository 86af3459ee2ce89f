package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is implemented by every payload stored in the event log
type Event interface {
	EventType() string
	OccurredAt() time.Time
	Validate() error
}

// Event types
const (
	EventStockMoved           = "wms.stock.moved"
	EventReservationCreated   = "wms.reservation.created"
	EventStockAllocated       = "wms.reservation.stock-allocated"
	EventPickingStarted       = "wms.reservation.picking-started"
	EventReservationConsumed  = "wms.reservation.consumed"
	EventReservationCancelled = "wms.reservation.cancelled"
	EventReservationBumped    = "wms.reservation.bumped"
	EventHandlingUnitCreated  = "wms.handling-unit.created"
	EventHandlingUnitSealed   = "wms.handling-unit.sealed"
)

// ReservationLine is a requested quantity of an item; the location is chosen
// when picking starts.
type ReservationLine struct {
	Warehouse string          `json:"warehouse" validate:"required,excludes=:"`
	Item      string          `json:"item" validate:"required,excludes=:"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// HardLockLine is stock at one slot that a reservation holds while picking
type HardLockLine struct {
	Warehouse string          `json:"warehouse" validate:"required,excludes=:"`
	Location  string          `json:"location" validate:"required,excludes=:"`
	Item      string          `json:"item" validate:"required,excludes=:"`
	LockedQty decimal.Decimal `json:"lockedQty"`
}

// Slot is the slot the line locks
func (l HardLockLine) Slot() Slot {
	return NewSlot(l.Warehouse, l.Location, l.Item)
}

func validateHardLockLines(field string, lines []HardLockLine) error {
	for _, line := range lines {
		if err := requirePositive(field+".lockedQty", line.LockedQty); err != nil {
			return err
		}
	}
	return nil
}

// ReservationCreated opens a reservation in Pending status
type ReservationCreated struct {
	ReservationID string            `json:"reservationId" validate:"required"`
	Purpose       string            `json:"purpose" validate:"required"`
	Priority      int               `json:"priority"`
	Lines         []ReservationLine `json:"lines" validate:"required,min=1,dive"`
	CreatedBy     string            `json:"createdBy,omitempty"`
	CreatedAt     time.Time         `json:"createdAt" validate:"required"`
}

func (e *ReservationCreated) EventType() string     { return EventReservationCreated }
func (e *ReservationCreated) OccurredAt() time.Time { return e.CreatedAt }
func (e *ReservationCreated) Validate() error {
	if err := ValidateStruct(e); err != nil {
		return err
	}
	for _, line := range e.Lines {
		if err := requirePositive("lines.quantity", line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// StockAllocated moves a reservation from Pending to Allocated
type StockAllocated struct {
	ReservationID string    `json:"reservationId" validate:"required"`
	AllocatedAt   time.Time `json:"allocatedAt" validate:"required"`
}

func (e *StockAllocated) EventType() string     { return EventStockAllocated }
func (e *StockAllocated) OccurredAt() time.Time { return e.AllocatedAt }
func (e *StockAllocated) Validate() error       { return ValidateStruct(e) }

// PickingStarted converts a reservation's soft lock into hard locks on concrete slots
type PickingStarted struct {
	ReservationID string         `json:"reservationId" validate:"required"`
	Lines         []HardLockLine `json:"lines" validate:"required,min=1,dive"`
	StartedBy     string         `json:"startedBy" validate:"required"`
	StartedAt     time.Time      `json:"startedAt" validate:"required"`
}

func (e *PickingStarted) EventType() string     { return EventPickingStarted }
func (e *PickingStarted) OccurredAt() time.Time { return e.StartedAt }
func (e *PickingStarted) Validate() error {
	if err := ValidateStruct(e); err != nil {
		return err
	}
	return validateHardLockLines("lines", e.Lines)
}

// ReservationConsumed closes a reservation after picking; ReleasedLines are the
// hard locks it held.
type ReservationConsumed struct {
	ReservationID string         `json:"reservationId" validate:"required"`
	ReleasedLines []HardLockLine `json:"releasedLines" validate:"dive"`
	ConsumedAt    time.Time      `json:"consumedAt" validate:"required"`
}

func (e *ReservationConsumed) EventType() string     { return EventReservationConsumed }
func (e *ReservationConsumed) OccurredAt() time.Time { return e.ConsumedAt }
func (e *ReservationConsumed) Validate() error {
	if err := ValidateStruct(e); err != nil {
		return err
	}
	return validateHardLockLines("releasedLines", e.ReleasedLines)
}

// ReservationCancelled closes a reservation without consuming it. ReleasedLines
// is empty unless picking had started.
type ReservationCancelled struct {
	ReservationID string         `json:"reservationId" validate:"required"`
	ReleasedLines []HardLockLine `json:"releasedLines" validate:"dive"`
	Reason        string         `json:"reason,omitempty"`
	CancelledAt   time.Time      `json:"cancelledAt" validate:"required"`
}

func (e *ReservationCancelled) EventType() string     { return EventReservationCancelled }
func (e *ReservationCancelled) OccurredAt() time.Time { return e.CancelledAt }
func (e *ReservationCancelled) Validate() error {
	if err := ValidateStruct(e); err != nil {
		return err
	}
	return validateHardLockLines("releasedLines", e.ReleasedLines)
}

// ReservationBumped records a soft reservation displaced by a higher priority one
type ReservationBumped struct {
	ReservationID string    `json:"reservationId" validate:"required"`
	BumpedBy      string    `json:"bumpedBy" validate:"required"`
	BumpedAt      time.Time `json:"bumpedAt" validate:"required"`
}

func (e *ReservationBumped) EventType() string     { return EventReservationBumped }
func (e *ReservationBumped) OccurredAt() time.Time { return e.BumpedAt }
func (e *ReservationBumped) Validate() error       { return ValidateStruct(e) }

// HandlingUnitCreated registers a container at a location
type HandlingUnitCreated struct {
	UnitID    string    `json:"unitId" validate:"required"`
	Label     string    `json:"label" validate:"required"`
	UnitType  string    `json:"unitType" validate:"required"`
	Warehouse string    `json:"warehouse" validate:"required,excludes=:"`
	Location  string    `json:"location" validate:"required,excludes=:"`
	CreatedAt time.Time `json:"createdAt" validate:"required"`
}

func (e *HandlingUnitCreated) EventType() string     { return EventHandlingUnitCreated }
func (e *HandlingUnitCreated) OccurredAt() time.Time { return e.CreatedAt }
func (e *HandlingUnitCreated) Validate() error       { return ValidateStruct(e) }

// HandlingUnitSealed closes a handling unit; its contents no longer change
type HandlingUnitSealed struct {
	UnitID   string    `json:"unitId" validate:"required"`
	SealedBy string    `json:"sealedBy,omitempty"`
	SealedAt time.Time `json:"sealedAt" validate:"required"`
}

func (e *HandlingUnitSealed) EventType() string     { return EventHandlingUnitSealed }
func (e *HandlingUnitSealed) OccurredAt() time.Time { return e.SealedAt }
func (e *HandlingUnitSealed) Validate() error       { return ValidateStruct(e) }

var eventFactories = map[string]func() Event{
	EventStockMoved:           func() Event { return &StockMoved{} },
	EventReservationCreated:   func() Event { return &ReservationCreated{} },
	EventStockAllocated:       func() Event { return &StockAllocated{} },
	EventPickingStarted:       func() Event { return &PickingStarted{} },
	EventReservationConsumed:  func() Event { return &ReservationConsumed{} },
	EventReservationCancelled: func() Event { return &ReservationCancelled{} },
	EventReservationBumped:    func() Event { return &ReservationBumped{} },
	EventHandlingUnitCreated:  func() Event { return &HandlingUnitCreated{} },
	EventHandlingUnitSealed:   func() Event { return &HandlingUnitSealed{} },
}

// IsKnownEventType reports whether the decoder recognises eventType
func IsKnownEventType(eventType string) bool {
	_, ok := eventFactories[eventType]
	return ok
}
