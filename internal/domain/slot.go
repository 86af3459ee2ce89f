package domain

import "strings"

// Slot identifies one storage position for one item: the unit of concurrency
// in the ledger. Every slot owns exactly one event stream.
type Slot struct {
	Warehouse string `json:"warehouse" bson:"warehouse" validate:"required,excludes=:"`
	Location  string `json:"location" bson:"location" validate:"required,excludes=:"`
	Item      string `json:"item" bson:"item" validate:"required,excludes=:"`
}

// NewSlot builds a slot from its three coordinates
func NewSlot(warehouse, location, item string) Slot {
	return Slot{Warehouse: warehouse, Location: location, Item: item}
}

// Key is the canonical "warehouse:location:item" identity used by views and lock tokens.
func (s Slot) Key() string {
	return s.Warehouse + ":" + s.Location + ":" + s.Item
}

// StreamID is the event stream holding this slot's movement legs
func (s Slot) StreamID() string {
	return StockStreamPrefix + s.Key()
}

// IsZero reports whether any coordinate is missing
func (s Slot) IsZero() bool {
	return s.Warehouse == "" || s.Location == "" || s.Item == ""
}

func (s Slot) String() string {
	return s.Key()
}

// Stream id prefixes, one per aggregate type
const (
	StockStreamPrefix        = "stock-"
	ReservationStreamPrefix  = "reservation-"
	HandlingUnitStreamPrefix = "handling-unit-"
)

// StreamType returns the aggregate type encoded in a stream id; it is used as a
// low-cardinality metrics label.
func StreamType(streamID string) string {
	switch {
	case strings.HasPrefix(streamID, StockStreamPrefix):
		return "stock"
	case strings.HasPrefix(streamID, ReservationStreamPrefix):
		return "reservation"
	case strings.HasPrefix(streamID, HandlingUnitStreamPrefix):
		return "handling-unit"
	default:
		return "unknown"
	}
}

// SlotFromStreamID recovers the slot of a stock stream id
func SlotFromStreamID(streamID string) (Slot, bool) {
	key, ok := strings.CutPrefix(streamID, StockStreamPrefix)
	if !ok {
		return Slot{}, false
	}
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return Slot{}, false
	}
	slot := NewSlot(parts[0], parts[1], parts[2])
	return slot, !slot.IsZero()
}
