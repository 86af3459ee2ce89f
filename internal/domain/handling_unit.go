package domain

import "time"

// HandlingUnitStatus is Open until the unit is sealed
type HandlingUnitStatus string

const (
	HandlingUnitStatusOpen   HandlingUnitStatus = "Open"
	HandlingUnitStatusSealed HandlingUnitStatus = "Sealed"
)

// HandlingUnitStreamID is the event stream of a handling unit
func HandlingUnitStreamID(unitID string) string {
	return HandlingUnitStreamPrefix + unitID
}

// HandlingUnit is a physical container (pallet, tote, carton). Its contents are
// driven by stock movements that carry its id as ContainerID.
type HandlingUnit struct {
	ID        string
	Label     string
	UnitType  string
	Warehouse string
	Location  string
	Status    HandlingUnitStatus

	pending []Event
}

// NewHandlingUnit records a new Open unit at a location
func NewHandlingUnit(id, label, unitType, warehouse, location string) (*HandlingUnit, error) {
	event := &HandlingUnitCreated{
		UnitID:    id,
		Label:     label,
		UnitType:  unitType,
		Warehouse: warehouse,
		Location:  location,
		CreatedAt: time.Now().UTC(),
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}

	hu := &HandlingUnit{}
	hu.record(event)
	return hu, nil
}

// RehydrateHandlingUnit rebuilds a unit from its decoded history
func RehydrateHandlingUnit(id string, history []Event) (*HandlingUnit, error) {
	hu := &HandlingUnit{}
	for _, event := range history {
		hu.apply(event)
	}
	if hu.ID == "" {
		return nil, &NotFoundError{Entity: "handling unit", ID: id}
	}
	return hu, nil
}

func (hu *HandlingUnit) apply(event Event) {
	switch e := event.(type) {
	case *HandlingUnitCreated:
		hu.ID = e.UnitID
		hu.Label = e.Label
		hu.UnitType = e.UnitType
		hu.Warehouse = e.Warehouse
		hu.Location = e.Location
		hu.Status = HandlingUnitStatusOpen
	case *HandlingUnitSealed:
		hu.Status = HandlingUnitStatusSealed
	}
}

func (hu *HandlingUnit) record(event Event) {
	hu.apply(event)
	hu.pending = append(hu.pending, event)
}

// Seal closes the unit. Sealing twice is an invalid transition.
func (hu *HandlingUnit) Seal(sealedBy string) error {
	if hu.Status != HandlingUnitStatusOpen {
		return &InvalidTransitionError{Entity: "handling unit", ID: hu.ID, From: string(hu.Status), Action: "seal"}
	}
	hu.record(&HandlingUnitSealed{UnitID: hu.ID, SealedBy: sealedBy, SealedAt: time.Now().UTC()})
	return nil
}

// PendingEvents returns the events recorded since the aggregate was loaded
func (hu *HandlingUnit) PendingEvents() []Event {
	return hu.pending
}
