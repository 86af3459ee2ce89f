package projections

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/stock-ledger-service/internal/domain"
)

// Change is one decoded event as seen by an applier
type Change struct {
	EventID    string
	Sequence   uint64
	OccurredAt time.Time
	Event      domain.Event
}

// ChangeFromEnvelope decodes an envelope into a Change
func ChangeFromEnvelope(env *domain.Envelope) (Change, error) {
	event, err := env.Decode()
	if err != nil {
		return Change{}, err
	}
	return Change{
		EventID:    env.EventID,
		Sequence:   env.Sequence,
		OccurredAt: env.OccurredAt,
		Event:      event,
	}, nil
}

// AvailableStockView is the per-slot quantity read model
type AvailableStockView struct {
	ID            string          `json:"id" bson:"_id"`
	Warehouse     string          `json:"warehouse" bson:"warehouse"`
	Location      string          `json:"location" bson:"location"`
	Item          string          `json:"item" bson:"item"`
	OnHandQty     decimal.Decimal `json:"onHandQty" bson:"onHandQty"`
	HardLockedQty decimal.Decimal `json:"hardLockedQty" bson:"hardLockedQty"`
	AvailableQty  decimal.Decimal `json:"availableQty" bson:"availableQty"`
	LastUpdated   time.Time       `json:"lastUpdated" bson:"lastUpdated"`
	LastSequence  uint64          `json:"lastSequence" bson:"lastSequence"`
}

// HandlingUnitLine is the quantity of one item inside a handling unit
type HandlingUnitLine struct {
	Item     string          `json:"item" bson:"item"`
	Quantity decimal.Decimal `json:"quantity" bson:"quantity"`
}

// HandlingUnitView is the contents and position of a handling unit
type HandlingUnitView struct {
	ID              string                    `json:"id" bson:"_id"`
	Label           string                    `json:"label" bson:"label"`
	UnitType        string                    `json:"unitType" bson:"unitType"`
	Status          domain.HandlingUnitStatus `json:"status" bson:"status"`
	Warehouse       string                    `json:"warehouse" bson:"warehouse"`
	CurrentLocation string                    `json:"currentLocation" bson:"currentLocation"`
	Lines           []HandlingUnitLine        `json:"lines" bson:"lines"`
	CreatedAt       time.Time                 `json:"createdAt" bson:"createdAt"`
	SealedAt        *time.Time                `json:"sealedAt,omitempty" bson:"sealedAt,omitempty"`
	LastSequence    uint64                    `json:"lastSequence" bson:"lastSequence"`
}

// ReservationSummaryView is the lifecycle summary of a reservation
type ReservationSummaryView struct {
	ID               string                   `json:"id" bson:"_id"`
	Purpose          string                   `json:"purpose" bson:"purpose"`
	Priority         int                      `json:"priority" bson:"priority"`
	Status           domain.ReservationStatus `json:"status" bson:"status"`
	LockType         domain.LockType          `json:"lockType" bson:"lockType"`
	CreatedAt        time.Time                `json:"createdAt" bson:"createdAt"`
	PickingStartedAt *time.Time               `json:"pickingStartedAt,omitempty" bson:"pickingStartedAt,omitempty"`
	LineCount        int                      `json:"lineCount" bson:"lineCount"`
	LastSequence     uint64                   `json:"lastSequence" bson:"lastSequence"`
}

// ActiveHardLockView is one hard lock held by a picking reservation
type ActiveHardLockView struct {
	ID            string          `json:"id" bson:"_id"`
	ReservationID string          `json:"reservationId" bson:"reservationId"`
	Warehouse     string          `json:"warehouse" bson:"warehouse"`
	Location      string          `json:"location" bson:"location"`
	Item          string          `json:"item" bson:"item"`
	LockedQty     decimal.Decimal `json:"lockedQty" bson:"lockedQty"`
	LockedAt      time.Time       `json:"lockedAt" bson:"lockedAt"`
	LastSequence  uint64          `json:"lastSequence" bson:"lastSequence"`
}

// HardLockKey is the identity of an active hard lock row
func HardLockKey(reservationID, location, item string) string {
	return reservationID + ":" + location + ":" + item
}
