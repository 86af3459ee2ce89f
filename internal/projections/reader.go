package projections

import (
	"context"

	"github.com/wms-platform/stock-ledger-service/internal/domain"
)

// Reader is the query side over a ViewStore
type Reader struct {
	store ViewStore
}

// NewReader creates a Reader
func NewReader(store ViewStore) *Reader {
	return &Reader{store: store}
}

func find[V any](ctx context.Context, store ViewStore, collection, id, entity string) (*V, error) {
	var view V
	found, err := store.Find(ctx, collection, id, &view)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &domain.NotFoundError{Entity: entity, ID: id}
	}
	return &view, nil
}

// AvailableStock returns the available stock view of a slot
func (r *Reader) AvailableStock(ctx context.Context, slot domain.Slot) (*AvailableStockView, error) {
	return find[AvailableStockView](ctx, r.store, AvailableStockCollection, slot.Key(), "available stock")
}

// HandlingUnit returns the view of a handling unit
func (r *Reader) HandlingUnit(ctx context.Context, unitID string) (*HandlingUnitView, error) {
	return find[HandlingUnitView](ctx, r.store, HandlingUnitCollection, unitID, "handling unit")
}

// ReservationSummary returns the summary of a reservation
func (r *Reader) ReservationSummary(ctx context.Context, reservationID string) (*ReservationSummaryView, error) {
	return find[ReservationSummaryView](ctx, r.store, ReservationSummaryCollection, reservationID, "reservation")
}

// ActiveHardLock returns one active hard lock row
func (r *Reader) ActiveHardLock(ctx context.Context, reservationID, location, item string) (*ActiveHardLockView, error) {
	return find[ActiveHardLockView](ctx, r.store, ActiveHardLockCollection, HardLockKey(reservationID, location, item), "hard lock")
}
