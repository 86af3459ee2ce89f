package projections

import (
	"context"
	"fmt"

	"github.com/wms-platform/stock-ledger-service/internal/domain"
)

// Projection maintains one read model from the event log
type Projection interface {
	Name() string
	Collections() []string
	Handle(ctx context.Context, tx ViewTx, change Change) error
}

// viewProjection adapts a pure keyed applier to a Projection. For every key the
// event touches it loads the current view, applies the change and writes back
// only what changed: a nil result deletes, the same pointer is a no-op.
type viewProjection[V any] struct {
	name       string
	collection string
	keys       func(domain.Event) []string
	apply      func(Change, string, *V) *V
}

func (p *viewProjection[V]) Name() string          { return p.name }
func (p *viewProjection[V]) Collections() []string { return []string{p.collection} }

func (p *viewProjection[V]) Handle(ctx context.Context, tx ViewTx, change Change) error {
	for _, key := range p.keys(change.Event) {
		var (
			stored  V
			current *V
		)
		found, err := tx.Find(ctx, p.collection, key, &stored)
		if err != nil {
			return fmt.Errorf("%s: load %s: %w", p.name, key, err)
		}
		if found {
			current = &stored
		}

		next := p.apply(change, key, current)

		switch {
		case next == nil && current != nil:
			if err := tx.Delete(ctx, p.collection, key); err != nil {
				return fmt.Errorf("%s: delete %s: %w", p.name, key, err)
			}
		case next != nil && next != current:
			if err := tx.Upsert(ctx, p.collection, key, next); err != nil {
				return fmt.Errorf("%s: save %s: %w", p.name, key, err)
			}
		}
	}
	return nil
}

// NewAvailableStockProjection maintains AvailableStockView documents
func NewAvailableStockProjection() Projection {
	return &viewProjection[AvailableStockView]{
		name:       AvailableStockProjection,
		collection: AvailableStockCollection,
		keys:       AvailableStockKeys,
		apply:      ApplyAvailableStock,
	}
}

// NewHandlingUnitProjection maintains HandlingUnitView documents
func NewHandlingUnitProjection() Projection {
	return &viewProjection[HandlingUnitView]{
		name:       HandlingUnitProjection,
		collection: HandlingUnitCollection,
		keys:       HandlingUnitKeys,
		apply:      ApplyHandlingUnit,
	}
}

// NewReservationSummaryProjection maintains ReservationSummaryView documents
func NewReservationSummaryProjection() Projection {
	return &viewProjection[ReservationSummaryView]{
		name:       ReservationSummaryProjection,
		collection: ReservationSummaryCollection,
		keys:       ReservationSummaryKeys,
		apply:      ApplyReservationSummary,
	}
}

// NewActiveHardLockProjection maintains ActiveHardLockView documents
func NewActiveHardLockProjection() Projection {
	return &viewProjection[ActiveHardLockView]{
		name:       ActiveHardLockProjection,
		collection: ActiveHardLockCollection,
		keys:       ActiveHardLockKeys,
		apply:      ApplyActiveHardLock,
	}
}

// DefaultProjections returns every projection the service runs
func DefaultProjections() []Projection {
	return []Projection{
		NewAvailableStockProjection(),
		NewHandlingUnitProjection(),
		NewReservationSummaryProjection(),
		NewActiveHardLockProjection(),
	}
}
