package application

import (
	"context"
	"fmt"

	"github.com/wms-platform/stock-ledger-service/internal/domain"
)

func (s *MovementService) loadReservation(ctx context.Context, id string) (*domain.Reservation, domain.StreamState, error) {
	streamID := domain.ReservationStreamID(id)
	envs, state, err := s.store.ReadStream(ctx, streamID)
	if err != nil {
		return nil, domain.StreamState{}, fmt.Errorf("failed to read %s: %w", streamID, err)
	}
	history, err := domain.DecodeStream(envs)
	if err != nil {
		return nil, domain.StreamState{}, err
	}
	reservation, err := domain.RehydrateReservation(id, history)
	if err != nil {
		return nil, domain.StreamState{}, err
	}
	return reservation, state, nil
}

func (s *MovementService) saveReservation(ctx context.Context, r *domain.Reservation, state domain.StreamState) (*CommandResult, error) {
	streamID := domain.ReservationStreamID(r.ID)
	revision, _, err := s.append(ctx, streamID, state.Expected(), r.PendingEvents()...)
	if err != nil {
		return nil, err
	}
	return &CommandResult{StreamID: streamID, Revision: revision}, nil
}

// updateReservation loads a reservation, runs fn and appends what it recorded,
// retrying on concurrency conflicts.
func (s *MovementService) updateReservation(ctx context.Context, op, id string, fn func(*domain.Reservation) error) (*CommandResult, error) {
	var result *CommandResult
	err := s.withRetry(ctx, op, func() error {
		reservation, state, err := s.loadReservation(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(reservation); err != nil {
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

// CreateReservation opens a new Pending reservation. Creating an id that
// already exists is a concurrency conflict.
func (s *MovementService) CreateReservation(ctx context.Context, cmd CreateReservationCommand) (*CommandResult, error) {
	if err := domain.ValidateStruct(cmd); err != nil {
		return nil, err
	}

	reservation, err := domain.NewReservation(cmd.ReservationID, cmd.Purpose, cmd.Priority, cmd.Lines, cmd.CreatedBy)
	if err != nil {
		return nil, err
	}
	return s.saveReservation(ctx, reservation, domain.StreamState{})
}

// AllocateReservation moves a Pending reservation to Allocated
func (s *MovementService) AllocateReservation(ctx context.Context, id string) (*CommandResult, error) {
	return s.updateReservation(ctx, "allocate_reservation", id, func(r *domain.Reservation) error {
		return r.Allocate()
	})
}

// ConsumeReservation closes a picking reservation and releases its hard locks
func (s *MovementService) ConsumeReservation(ctx context.Context, id string) (*CommandResult, error) {
	return s.updateReservation(ctx, "consume_reservation", id, func(r *domain.Reservation) error {
		return r.Consume()
	})
}

// CancelReservation cancels a reservation that has not been consumed
func (s *MovementService) CancelReservation(ctx context.Context, id, reason string) (*CommandResult, error) {
	return s.updateReservation(ctx, "cancel_reservation", id, func(r *domain.Reservation) error {
		return r.Cancel(reason)
	})
}

// BumpReservation displaces a soft reservation in favour of bumpedBy
func (s *MovementService) BumpReservation(ctx context.Context, id, bumpedBy string) (*CommandResult, error) {
	return s.updateReservation(ctx, "bump_reservation", id, func(r *domain.Reservation) error {
		return r.Bump(bumpedBy)
	})
}

// CreateHandlingUnit registers a new open handling unit
func (s *MovementService) CreateHandlingUnit(ctx context.Context, cmd CreateHandlingUnitCommand) (*CommandResult, error) {
	if err := domain.ValidateStruct(cmd); err != nil {
		return nil, err
	}

	unit, err := domain.NewHandlingUnit(cmd.UnitID, cmd.Label, cmd.UnitType, cmd.Warehouse, cmd.Location)
	if err != nil {
		return nil, err
	}

	streamID := domain.HandlingUnitStreamID(unit.ID)
	revision, _, err := s.append(ctx, streamID, domain.NoStream, unit.PendingEvents()...)
	if err != nil {
		return nil, err
	}
	return &CommandResult{StreamID: streamID, Revision: revision}, nil
}

// SealHandlingUnit closes a handling unit; its contents no longer change
func (s *MovementService) SealHandlingUnit(ctx context.Context, id, sealedBy string) (*CommandResult, error) {
	streamID := domain.HandlingUnitStreamID(id)
	var result *CommandResult

	err := s.withRetry(ctx, "seal_handling_unit", func() error {
		envs, state, err := s.store.ReadStream(ctx, streamID)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", streamID, err)
		}
		history, err := domain.DecodeStream(envs)
		if err != nil {
			return err
		}
		unit, err := domain.RehydrateHandlingUnit(id, history)
		if err != nil {
			return err
		}
		if err := unit.Seal(sealedBy); err != nil {
			return err
		}

		revision, _, err := s.append(ctx, streamID, state.Expected(), unit.PendingEvents()...)
		if err != nil {
			return err
		}
		result = &CommandResult{StreamID: streamID, Revision: revision}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
