package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/stock-ledger-service/internal/domain"
	"github.com/wms-platform/stock-ledger-service/internal/infrastructure/memory"
	"github.com/wms-platform/stock-ledger-service/pkg/logging"
	"github.com/wms-platform/stock-ledger-service/pkg/metrics"
)

// flakyStore fails appends to chosen streams with a concurrency conflict
type flakyStore struct {
	*memory.EventStore
	mu        sync.Mutex
	conflicts map[string]int // remaining forced conflicts per stream; -1 forever
}

func (s *flakyStore) Append(ctx context.Context, streamID string, expected domain.ExpectedRevision, events ...*domain.Envelope) (uint64, error) {
	s.mu.Lock()
	n := s.conflicts[streamID]
	if n != 0 {
		if n > 0 {
			s.conflicts[streamID] = n - 1
		}
		s.mu.Unlock()
		return 0, &domain.ConcurrencyConflictError{StreamID: streamID, Expected: expected}
	}
	s.mu.Unlock()
	return s.EventStore.Append(ctx, streamID, expected, events...)
}

func newService(store domain.EventStore) *MovementService {
	m := metrics.New(metrics.DefaultConfig("test"))
	return NewMovementService(store, NewSlotLocker(m), logging.NewNop(), m, DefaultServiceConfig())
}

func qty(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func movement(mt domain.MovementType, from, to string, n int64) RecordMovementCommand {
	return RecordMovementCommand{
		Warehouse:    "WH1",
		Item:         "SKU-1",
		Quantity:     qty(n),
		FromLocation: from,
		ToLocation:   to,
		Type:         mt,
		OperatorID:   "op-1",
	}
}

func balance(t *testing.T, svc *MovementService, location string) decimal.Decimal {
	t.Helper()
	b, err := svc.Balance(context.Background(), domain.NewSlot("WH1", location, "SKU-1"))
	require.NoError(t, err)
	return b
}

func TestRecordMovement_TransferAppendsBothLegs(t *testing.T) {
	ctx := context.Background()
	svc := newService(memory.NewEventStore())

	_, err := svc.RecordMovement(ctx, movement(domain.MovementReceipt, "", "LOC-A", 10))
	require.NoError(t, err)

	result, err := svc.RecordMovement(ctx, movement(domain.MovementTransfer, "LOC-A", "LOC-B", 4))
	require.NoError(t, err)
	assert.Equal(t, MovementApplied, result.Status)
	require.Len(t, result.Legs, 2)
	assert.Equal(t, domain.LegSource, result.Legs[0].Side)
	assert.Less(t, result.Legs[0].Sequence, result.Legs[1].Sequence)

	assert.True(t, balance(t, svc, "LOC-A").Equal(qty(6)))
	assert.True(t, balance(t, svc, "LOC-B").Equal(qty(4)))
}

func TestRecordMovement_InsufficientBalanceAppendsNothing(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEventStore()
	svc := newService(store)

	_, err := svc.RecordMovement(ctx, movement(domain.MovementReceipt, "", "LOC-A", 5))
	require.NoError(t, err)

	_, err = svc.RecordMovement(ctx, movement(domain.MovementTransfer, "LOC-A", "LOC-B", 10))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	var insufficient *domain.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Available.Equal(qty(5)))
	assert.True(t, insufficient.Requested.Equal(qty(10)))

	head, _ := store.LastSequence(ctx)
	assert.Equal(t, uint64(1), head)
}

func TestRecordMovement_ValidationErrors(t *testing.T) {
	svc := newService(memory.NewEventStore())

	tests := []struct {
		name  string
		cmd   RecordMovementCommand
		field string
	}{
		{name: "missing operator", cmd: func() RecordMovementCommand {
			c := movement(domain.MovementReceipt, "", "A", 1)
			c.OperatorID = ""
			return c
		}(), field: "operatorID"},
		{name: "zero quantity", cmd: movement(domain.MovementReceipt, "", "A", 0), field: "quantity"},
		{name: "negative quantity", cmd: movement(domain.MovementReceipt, "", "A", -3), field: "quantity"},
		{name: "same location transfer", cmd: movement(domain.MovementTransfer, "A", "A", 1), field: "destinationLocation"},
		{name: "dispatch without source", cmd: movement(domain.MovementDispatch, "", "", 1), field: "sourceLocation"},
		{name: "unknown type", cmd: movement("Teleport", "", "A", 1), field: "movementType"},
		{name: "separator in location", cmd: movement(domain.MovementReceipt, "", "A:B", 1), field: "toLocation"},
		{name: "separator in item", cmd: func() RecordMovementCommand {
			c := movement(domain.MovementReceipt, "", "A", 1)
			c.Item = "B:C"
			return c
		}(), field: "item"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordMovement(context.Background(), tt.cmd)
			require.ErrorIs(t, err, domain.ErrValidation)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestRecordMovement_RetriesConflictsOnFirstLeg(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{EventStore: memory.NewEventStore(), conflicts: map[string]int{}}
	svc := newService(store)

	dest := domain.NewSlot("WH1", "LOC-A", "SKU-1").StreamID()
	store.conflicts[dest] = 2

	result, err := svc.RecordMovement(ctx, movement(domain.MovementReceipt, "", "LOC-A", 3))
	require.NoError(t, err)
	assert.Equal(t, MovementApplied, result.Status)

	events, _, err := store.ReadStream(ctx, dest)
	require.NoError(t, err)
	assert.Len(t, events, 1, "the movement is written once")
}

func TestRecordMovement_GivesUpAfterRetryBudget(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{EventStore: memory.NewEventStore(), conflicts: map[string]int{}}
	svc := newService(store)
	store.conflicts[domain.NewSlot("WH1", "LOC-A", "SKU-1").StreamID()] = -1

	_, err := svc.RecordMovement(ctx, movement(domain.MovementReceipt, "", "LOC-A", 3))
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
}

func TestRecordMovement_DestinationFailureIsPartial(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{EventStore: memory.NewEventStore(), conflicts: map[string]int{}}
	svc := newService(store)

	_, err := svc.RecordMovement(ctx, movement(domain.MovementReceipt, "", "LOC-A", 10))
	require.NoError(t, err)

	store.conflicts[domain.NewSlot("WH1", "LOC-B", "SKU-1").StreamID()] = -1
	result, err := svc.RecordMovement(ctx, movement(domain.MovementTransfer, "LOC-A", "LOC-B", 4))

	require.ErrorIs(t, err, domain.ErrPartialMovement)
	require.NotNil(t, result)
	assert.Equal(t, MovementPartiallyApplied, result.Status)
	require.Len(t, result.Legs, 1)

	var partial *domain.PartialMovementError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, result.Movement.MovementID, partial.MovementID)
	assert.True(t, errors.Is(err, domain.ErrConcurrencyConflict))

	// The source leg stays written.
	assert.True(t, balance(t, svc, "LOC-A").Equal(qty(6)))
	assert.True(t, balance(t, svc, "LOC-B").IsZero())
}

func TestRecordMovement_ConcurrentPicksNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	svc := newService(memory.NewEventStore())
	_, err := svc.RecordMovement(ctx, movement(domain.MovementReceipt, "", "LOC-A", 10))
	require.NoError(t, err)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.RecordMovement(ctx, movement(domain.MovementPick, "LOC-A", "", 1)); err == nil {
				mu.Lock()
				oks++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, oks)
	assert.True(t, balance(t, svc, "LOC-A").IsZero())
}

func TestReservationLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEventStore()
	svc := newService(store)

	_, err := svc.RecordMovement(ctx, movement(domain.MovementReceipt, "", "LOC-A", 500))
	require.NoError(t, err)

	_, err = svc.CreateReservation(ctx, CreateReservationCommand{
		ReservationID: "r1",
		Purpose:       "order",
		Priority:      1,
		Lines:         []domain.ReservationLine{{Warehouse: "WH1", Item: "SKU-1", Quantity: qty(200)}},
	})
	require.NoError(t, err)

	_, err = svc.CreateReservation(ctx, CreateReservationCommand{
		ReservationID: "r1",
		Purpose:       "order",
		Lines:         []domain.ReservationLine{{Warehouse: "WH1", Item: "SKU-1", Quantity: qty(1)}},
	})
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict, "ids are unique")

	_, err = svc.StartPicking(ctx, StartPickingCommand{ReservationID: "r1", StartedBy: "op", Lines: []domain.HardLockLine{{Warehouse: "WH1", Location: "LOC-A", Item: "SKU-1", LockedQty: qty(200)}}})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "picking starts from Allocated")

	_, err = svc.AllocateReservation(ctx, "r1")
	require.NoError(t, err)

	_, err = svc.StartPicking(ctx, StartPickingCommand{ReservationID: "r1", StartedBy: "op", Lines: []domain.HardLockLine{{Warehouse: "WH1", Location: "LOC-A", Item: "SKU-1", LockedQty: qty(600)}}})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = svc.StartPicking(ctx, StartPickingCommand{ReservationID: "r1", StartedBy: "op", Lines: []domain.HardLockLine{{Warehouse: "WH1", Location: "LOC-A", Item: "SKU-1", LockedQty: qty(200)}}})
	require.NoError(t, err)

	_, err = svc.BumpReservation(ctx, "r1", "r2")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "picking reservations hold hard locks")

	result, err := svc.ConsumeReservation(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), result.Revision)

	envs, _, err := store.ReadStream(ctx, domain.ReservationStreamID("r1"))
	require.NoError(t, err)
	consumed, err := envs[len(envs)-1].Decode()
	require.NoError(t, err)
	require.IsType(t, &domain.ReservationConsumed{}, consumed)
	assert.Len(t, consumed.(*domain.ReservationConsumed).ReleasedLines, 1)

	_, err = svc.CancelReservation(ctx, "r1", "late")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = svc.AllocateReservation(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func allocated(t *testing.T, svc *MovementService, id string, n int64) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.CreateReservation(ctx, CreateReservationCommand{
		ReservationID: id,
		Purpose:       "order",
		Lines:         []domain.ReservationLine{{Warehouse: "WH1", Item: "SKU-1", Quantity: qty(n)}},
	})
	require.NoError(t, err)
	_, err = svc.AllocateReservation(ctx, id)
	require.NoError(t, err)
}

func pickLines(location string, n int64) []domain.HardLockLine {
	return []domain.HardLockLine{{Warehouse: "WH1", Location: location, Item: "SKU-1", LockedQty: qty(n)}}
}

func TestStartPicking_CountsOtherReservationsHardLocks(t *testing.T) {
	ctx := context.Background()
	svc := newService(memory.NewEventStore())

	_, err := svc.RecordMovement(ctx, movement(domain.MovementReceipt, "", "LOC-A", 300))
	require.NoError(t, err)
	allocated(t, svc, "r1", 200)
	allocated(t, svc, "r2", 200)

	_, err = svc.StartPicking(ctx, StartPickingCommand{ReservationID: "r1", StartedBy: "op", Lines: pickLines("LOC-A", 200)})
	require.NoError(t, err)

	_, err = svc.StartPicking(ctx, StartPickingCommand{ReservationID: "r2", StartedBy: "op", Lines: pickLines("LOC-A", 200)})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	var insufficient *domain.InsufficientBalanceError
	require.True(t, errors.As(err, &insufficient))
	assert.True(t, insufficient.Available.Equal(qty(100)), "300 on hand less 200 locked by r1")
	assert.True(t, insufficient.Shortfall().Equal(qty(100)))

	_, err = svc.CancelReservation(ctx, "r1", "short pick")
	require.NoError(t, err)

	_, err = svc.StartPicking(ctx, StartPickingCommand{ReservationID: "r2", StartedBy: "op", Lines: pickLines("LOC-A", 200)})
	require.NoError(t, err, "r1's locks were released")
}

func TestStartPicking_ConcurrentReservationsNeverOverlock(t *testing.T) {
	ctx := context.Background()
	svc := newService(memory.NewEventStore())

	_, err := svc.RecordMovement(ctx, movement(domain.MovementReceipt, "", "LOC-A", 300))
	require.NoError(t, err)
	ids := []string{"r1", "r2", "r3", "r4"}
	for _, id := range ids {
		allocated(t, svc, id, 100)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.StartPicking(ctx, StartPickingCommand{ReservationID: id, StartedBy: "op", Lines: pickLines("LOC-A", 100)})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 3, successes)
	book, err := svc.hardLocks(ctx)
	require.NoError(t, err)
	assert.True(t, book.Locked(domain.NewSlot("WH1", "LOC-A", "SKU-1")).Equal(qty(300)))
}

func TestStartPicking_RejectsSeparatorInSlot(t *testing.T) {
	ctx := context.Background()
	svc := newService(memory.NewEventStore())
	allocated(t, svc, "r1", 1)

	_, err := svc.StartPicking(ctx, StartPickingCommand{ReservationID: "r1", StartedBy: "op", Lines: pickLines("A:B", 1)})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "location", verr.Field)
}

func TestHandlingUnitCommands(t *testing.T) {
	ctx := context.Background()
	svc := newService(memory.NewEventStore())

	_, err := svc.CreateHandlingUnit(ctx, CreateHandlingUnitCommand{UnitID: "HU-1", Label: "PAL-1", UnitType: "pallet", Warehouse: "WH1", Location: "LOC-A"})
	require.NoError(t, err)

	_, err = svc.CreateHandlingUnit(ctx, CreateHandlingUnitCommand{UnitID: "HU-2", UnitType: "pallet", Warehouse: "WH1", Location: "LOC-A"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "label", verr.Field)

	result, err := svc.SealHandlingUnit(ctx, "HU-1", "op")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.Revision)

	_, err = svc.SealHandlingUnit(ctx, "HU-1", "op")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = svc.SealHandlingUnit(ctx, "HU-404", "op")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBalances_ScansWarehouse(t *testing.T) {
	ctx := context.Background()
	svc := newService(memory.NewEventStore())

	_, err := svc.RecordMovement(ctx, movement(domain.MovementReceipt, "", "LOC-B", 7))
	require.NoError(t, err)
	_, err = svc.RecordMovement(ctx, movement(domain.MovementReceipt, "", "LOC-A", 3))
	require.NoError(t, err)
	other := movement(domain.MovementReceipt, "", "LOC-A", 100)
	other.Warehouse = "WH2"
	_, err = svc.RecordMovement(ctx, other)
	require.NoError(t, err)

	rows, err := svc.Balances(ctx, "WH1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "LOC-A", rows[0].Slot.Location)
	assert.True(t, rows[0].Quantity.Equal(qty(3)))
	assert.True(t, rows[1].Quantity.Equal(qty(7)))

	rows, err = svc.Balances(ctx, "WH1", domain.NewSlot("WH1", "LOC-B", "SKU-1"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Quantity.Equal(qty(7)))
}
