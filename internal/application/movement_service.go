package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wms-platform/stock-ledger-service/internal/domain"
	"github.com/wms-platform/stock-ledger-service/pkg/logging"
	"github.com/wms-platform/stock-ledger-service/pkg/metrics"
	"github.com/wms-platform/stock-ledger-service/pkg/tracing"
)

const tracerName = "stock-ledger-service/application"

// ServiceConfig holds MovementService settings
type ServiceConfig struct {
	// MaxConflictRetries bounds how often a command re-reads its streams after
	// losing an append race.
	MaxConflictRetries int
}

// DefaultServiceConfig returns the default settings
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{MaxConflictRetries: 3}
}

// MovementService is the command side of the ledger. It loads aggregates from
// their streams, runs the command and appends the resulting events under the
// stream revision it read.
type MovementService struct {
	store      domain.EventStore
	locker     *SlotLocker
	logger     *logging.Logger
	metrics    *metrics.Metrics
	maxRetries int
}

// NewMovementService creates a new MovementService
func NewMovementService(store domain.EventStore, locker *SlotLocker, logger *logging.Logger, m *metrics.Metrics, config *ServiceConfig) *MovementService {
	if config == nil {
		config = DefaultServiceConfig()
	}
	return &MovementService{
		store:      store,
		locker:     locker,
		logger:     logger.WithComponent("movement-service"),
		metrics:    m,
		maxRetries: config.MaxConflictRetries,
	}
}

// withRetry runs fn until it succeeds, fails with something other than a
// concurrency conflict, or the retry budget is spent.
func (s *MovementService) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			s.metrics.RecordConflictRetry(op)
			s.logger.WithContext(ctx).Debug("Retrying after concurrency conflict", "operation", op, "attempt", attempt)
		}
		if err = fn(); !errors.Is(err, domain.ErrConcurrencyConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

func (s *MovementService) append(ctx context.Context, streamID string, expected domain.ExpectedRevision, events ...domain.Event) (uint64, []*domain.Envelope, error) {
	envs := make([]*domain.Envelope, 0, len(events))
	for _, event := range events {
		env, err := domain.NewEnvelope(streamID, event)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode %s: %w", event.EventType(), err)
		}
		envs = append(envs, env)
	}

	revision, err := s.store.Append(ctx, streamID, expected, envs...)
	if err != nil {
		return 0, nil, err
	}
	return revision, envs, nil
}

// loadSlot reads a slot stream and folds it into ledger
func (s *MovementService) loadSlot(ctx context.Context, ledger *domain.StockLedger, slot domain.Slot) (domain.StreamState, error) {
	envs, state, err := s.store.ReadStream(ctx, slot.StreamID())
	if err != nil {
		return domain.StreamState{}, fmt.Errorf("failed to read %s: %w", slot.StreamID(), err)
	}
	events, err := domain.DecodeStream(envs)
	if err != nil {
		return domain.StreamState{}, err
	}
	ledger.LoadFromHistory(events)
	return state, nil
}

// RecordMovement validates a movement against the source balance and appends
// its legs, source first. The touched slots stay locked until both legs are
// written. If the destination leg cannot be written after the source leg was,
// the result is partially applied and the error is a PartialMovementError.
func (s *MovementService) RecordMovement(ctx context.Context, cmd RecordMovementCommand) (result *MovementResult, err error) {
	if err := domain.ValidateStruct(cmd); err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "MovementService.RecordMovement",
		attribute.String(tracing.AttrMovementType, string(cmd.Type)),
	)
	defer func() { tracing.EndSpan(span, err) }()

	release, err := s.locker.Lock(ctx, domain.DeriveLockKeys(cmd.slots()))
	if err != nil {
		return nil, err
	}
	defer release()

	req := cmd.request()
	var (
		movement domain.MovementEvent
		legs     []*domain.StockMoved
		states   map[string]domain.StreamState
	)

	// Validate against fresh balances and write the first leg. A conflict here
	// has written nothing, so the whole command is retried.
	err = s.withRetry(ctx, "record_movement", func() error {
		ledger := domain.NewStockLedger(cmd.Warehouse)
		states = make(map[string]domain.StreamState, 2)
		for _, slot := range cmd.slots() {
			state, err := s.loadSlot(ctx, ledger, slot)
			if err != nil {
				return err
			}
			states[slot.StreamID()] = state
		}

		movement, err = ledger.RecordMovement(req)
		if err != nil {
			return err
		}
		// Retries reuse the generated id and timestamp.
		req.MovementID, req.Timestamp = movement.MovementID, movement.Timestamp
		legs = movement.Legs()

		first := legs[0].Slot().StreamID()
		revision, envs, err := s.append(ctx, first, states[first].Expected(), legs[0])
		if err != nil {
			return err
		}
		result = &MovementResult{Movement: movement, Status: MovementApplied}
		result.Legs = append(result.Legs, LegResult{StreamID: first, Side: legs[0].Side, Revision: revision, Sequence: envs[0].Sequence})
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String(tracing.AttrMovementID, movement.MovementID))
	if len(legs) == 1 {
		return result, nil
	}

	// The destination leg needs no balance check; on conflict only its stream is re-read.
	dest := legs[1].Slot().StreamID()
	expected := states[dest].Expected()
	err = s.withRetry(ctx, "record_movement_destination", func() error {
		revision, envs, err := s.append(ctx, dest, expected, legs[1])
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			if _, state, readErr := s.store.ReadStream(ctx, dest); readErr == nil {
				expected = state.Expected()
			}
		}
		if err != nil {
			return err
		}
		result.Legs = append(result.Legs, LegResult{StreamID: dest, Side: legs[1].Side, Revision: revision, Sequence: envs[0].Sequence})
		return nil
	})
	if err != nil {
		result.Status = MovementPartiallyApplied
		s.metrics.RecordPartialMovement()
		s.logger.WithContext(ctx).WithError(err).Error("Movement partially applied",
			"movementId", movement.MovementID,
			"appended", result.Legs[0].StreamID,
			"failed", dest,
		)
		return result, &domain.PartialMovementError{
			MovementID: movement.MovementID,
			Appended:   []string{result.Legs[0].StreamID},
			Failed:     []string{dest},
			Err:        err,
		}
	}
	return result, nil
}

// StartPicking converts a reservation's soft lock into hard locks. Every slot
// in the lines is locked before balances are read, in the same token order
// outbound movements use. A line must fit in on-hand stock less the hard locks
// other reservations already hold at its slot.
func (s *MovementService) StartPicking(ctx context.Context, cmd StartPickingCommand) (result *CommandResult, err error) {
	if err := domain.ValidateStruct(cmd); err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "MovementService.StartPicking",
		attribute.String("reservation.id", cmd.ReservationID),
	)
	defer func() { tracing.EndSpan(span, err) }()

	slots := make([]domain.Slot, 0, len(cmd.Lines))
	requested := make(map[domain.Slot]decimal.Decimal, len(cmd.Lines))
	for _, line := range cmd.Lines {
		slot := line.Slot()
		slots = append(slots, slot)
		requested[slot] = requested[slot].Add(line.LockedQty)
	}

	release, err := s.locker.Lock(ctx, domain.DeriveLockKeys(slots))
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.withRetry(ctx, "start_picking", func() error {
		book, err := s.hardLocks(ctx)
		if err != nil {
			return err
		}
		for slot, qty := range requested {
			balance, err := s.Balance(ctx, slot)
			if err != nil {
				return err
			}
			if available := book.Available(slot, balance); available.LessThan(qty) {
				return &domain.InsufficientBalanceError{Slot: slot, Requested: qty, Available: available}
			}
		}

		reservation, state, err := s.loadReservation(ctx, cmd.ReservationID)
		if err != nil {
			return err
		}
		if _, err := reservation.StartPicking(cmd.Lines, cmd.StartedBy); err != nil {
			return err
		}
		result, err = s.saveReservation(ctx, reservation, state)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// hardLocks folds the reservation events of the log into the hard locks held now
func (s *MovementService) hardLocks(ctx context.Context) (*domain.HardLockBook, error) {
	book := domain.NewHardLockBook()

	const pageSize = 500
	var after uint64
	for {
		page, err := s.store.ReadAll(ctx, after, pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to read event log: %w", err)
		}
		for _, env := range page {
			after = env.Sequence
			if !domain.IsHardLockEvent(env.EventType) || domain.StreamType(env.StreamID) != "reservation" {
				continue
			}
			event, err := env.Decode()
			if err != nil {
				return nil, err
			}
			book.Apply(event)
		}
		if len(page) < pageSize {
			return book, nil
		}
	}
}

// Balance returns the on-hand quantity of one slot from its stream
func (s *MovementService) Balance(ctx context.Context, slot domain.Slot) (decimal.Decimal, error) {
	ledger := domain.NewStockLedger(slot.Warehouse)
	if _, err := s.loadSlot(ctx, ledger, slot); err != nil {
		return decimal.Zero, err
	}
	return ledger.Balance(slot.Location, slot.Item), nil
}

// Balances returns the balances of a warehouse ordered by slot. With slots
// given only those streams are read; otherwise the whole log is scanned.
func (s *MovementService) Balances(ctx context.Context, warehouse string, slots ...domain.Slot) ([]domain.SlotBalance, error) {
	ledger := domain.NewStockLedger(warehouse)

	if len(slots) > 0 {
		for _, slot := range slots {
			if _, err := s.loadSlot(ctx, ledger, slot); err != nil {
				return nil, err
			}
		}
		return ledger.SortedBalances(), nil
	}

	const pageSize = 500
	var after uint64
	for {
		page, err := s.store.ReadAll(ctx, after, pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to read event log: %w", err)
		}
		for _, env := range page {
			after = env.Sequence
			if env.EventType != domain.EventStockMoved || domain.StreamType(env.StreamID) != "stock" {
				continue
			}
			event, err := env.Decode()
			if err != nil {
				return nil, err
			}
			ledger.Apply(event.(*domain.StockMoved))
		}
		if len(page) < pageSize {
			return ledger.SortedBalances(), nil
		}
	}
}
