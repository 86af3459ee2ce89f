package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementRequest is the input to StockLedger.RecordMovement. MovementID and
// Timestamp are generated when left empty.
type MovementRequest struct {
	MovementID   string
	Item         string
	Quantity     decimal.Decimal
	FromLocation string
	ToLocation   string
	Type         MovementType
	OperatorID   string
	ContainerID  string
	Reason       string
	Timestamp    time.Time
}

type balanceKey struct {
	location string
	item     string
}

// StockLedger is the per-warehouse stock aggregate. It is rebuilt by folding
// StockMoved legs and validates new movements against the balances it holds.
// A ledger is not safe for concurrent use; callers build one per command.
type StockLedger struct {
	warehouse string
	balances  map[balanceKey]decimal.Decimal
	pending   []*StockMoved
}

// NewStockLedger creates an empty ledger for a warehouse
func NewStockLedger(warehouse string) *StockLedger {
	return &StockLedger{
		warehouse: warehouse,
		balances:  make(map[balanceKey]decimal.Decimal),
	}
}

// Warehouse returns the warehouse the ledger covers
func (l *StockLedger) Warehouse() string {
	return l.warehouse
}

// Apply folds one leg into the balances. Legs for other warehouses are ignored.
func (l *StockLedger) Apply(leg *StockMoved) {
	if leg.Movement.Warehouse != l.warehouse {
		return
	}
	slot := leg.Slot()
	if slot.IsZero() {
		return
	}
	key := balanceKey{location: slot.Location, item: slot.Item}
	l.balances[key] = l.balances[key].Add(leg.Delta())
}

// LoadFromHistory folds the StockMoved events of a decoded history
func (l *StockLedger) LoadFromHistory(events []Event) {
	for _, event := range events {
		if leg, ok := event.(*StockMoved); ok {
			l.Apply(leg)
		}
	}
}

// Balance returns the on-hand quantity at a location; unknown slots are zero.
func (l *StockLedger) Balance(location, item string) decimal.Decimal {
	return l.balances[balanceKey{location: location, item: item}]
}

// Balances returns a copy of every balance the ledger has seen
func (l *StockLedger) Balances() map[Slot]decimal.Decimal {
	out := make(map[Slot]decimal.Decimal, len(l.balances))
	for key, qty := range l.balances {
		out[NewSlot(l.warehouse, key.location, key.item)] = qty
	}
	return out
}

// SlotBalance is one row of SortedBalances
type SlotBalance struct {
	Slot     Slot            `json:"slot"`
	Quantity decimal.Decimal `json:"quantity"`
}

// SortedBalances returns the balances ordered by slot key
func (l *StockLedger) SortedBalances() []SlotBalance {
	rows := make([]SlotBalance, 0, len(l.balances))
	for slot, qty := range l.Balances() {
		rows = append(rows, SlotBalance{Slot: slot, Quantity: qty})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Slot.Key() < rows[j].Slot.Key() })
	return rows
}

// RecordMovement validates a movement against current balances and, on
// success, applies its legs and returns the event. A failed validation leaves
// the ledger untouched.
func (l *StockLedger) RecordMovement(req MovementRequest) (MovementEvent, error) {
	if !req.Type.IsValid() {
		return MovementEvent{}, NewValidationError("movementType", "unknown movement type "+string(req.Type))
	}
	if err := requirePositive("quantity", req.Quantity); err != nil {
		return MovementEvent{}, err
	}

	movement := MovementEvent{
		MovementID:          req.MovementID,
		Warehouse:           l.warehouse,
		Item:                req.Item,
		Quantity:            req.Quantity,
		SourceLocation:      req.FromLocation,
		DestinationLocation: req.ToLocation,
		MovementType:        req.Type,
		OperatorID:          req.OperatorID,
		ContainerID:         req.ContainerID,
		Reason:              req.Reason,
		Timestamp:           req.Timestamp,
	}
	if movement.MovementID == "" {
		movement.MovementID = uuid.New().String()
	}
	if movement.Timestamp.IsZero() {
		movement.Timestamp = time.Now().UTC()
	}

	if err := movement.Validate(); err != nil {
		return MovementEvent{}, err
	}

	if req.Type.DecreasesSource() {
		available := l.Balance(req.FromLocation, req.Item)
		if available.LessThan(req.Quantity) {
			return MovementEvent{}, &InsufficientBalanceError{
				Slot:      movement.SourceSlot(),
				Requested: req.Quantity,
				Available: available,
			}
		}
	}

	for _, leg := range movement.Legs() {
		l.Apply(leg)
		l.pending = append(l.pending, leg)
	}
	return movement, nil
}

// PendingLegs returns legs recorded since the last ClearPending
func (l *StockLedger) PendingLegs() []*StockMoved {
	return l.pending
}

// ClearPending forgets recorded legs once they are persisted
func (l *StockLedger) ClearPending() {
	l.pending = nil
}
