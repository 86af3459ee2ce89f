package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Domain error kinds. The typed errors below match these through errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrMalformedEvent      = errors.New("malformed event")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrPartialMovement     = errors.New("movement partially applied")
	ErrNotFound            = errors.New("not found")
)

// ValidationError rejects a command before anything is appended
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InsufficientBalanceError reports a movement the source slot cannot cover
type InsufficientBalanceError struct {
	Slot      Slot
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance at %s: requested %s, available %s",
		e.Slot.Key(), e.Requested.String(), e.Available.String())
}

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// Shortfall is how much more stock the request needed
func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

// ConcurrencyConflictError is returned by an append whose expected revision is stale
type ConcurrencyConflictError struct {
	StreamID string
	Expected ExpectedRevision
	Actual   StreamState
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on stream %s: expected %s, actual %s",
		e.StreamID, e.Expected, e.Actual)
}

func (e *ConcurrencyConflictError) Is(target error) bool { return target == ErrConcurrencyConflict }

// MalformedEventError marks a stored event that cannot be decoded or fails validation
type MalformedEventError struct {
	EventID   string
	EventType string
	Reason    string
	Err       error
}

func (e *MalformedEventError) Error() string {
	msg := fmt.Sprintf("malformed event %s (%s): %s", e.EventID, e.EventType, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedEventError) Is(target error) bool { return target == ErrMalformedEvent }

func (e *MalformedEventError) Unwrap() error { return e.Err }

// InvalidTransitionError rejects a lifecycle step that the current status does not allow
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in status %s", e.Action, e.Entity, e.ID, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// PartialMovementError reports a movement whose source leg was appended but whose
// destination leg was not. The appended leg stays in the log.
type PartialMovementError struct {
	MovementID string
	Appended   []string
	Failed     []string
	Err        error
}

func (e *PartialMovementError) Error() string {
	return fmt.Sprintf("movement %s partially applied: appended to [%s], failed on [%s]: %v",
		e.MovementID, strings.Join(e.Appended, ", "), strings.Join(e.Failed, ", "), e.Err)
}

func (e *PartialMovementError) Is(target error) bool { return target == ErrPartialMovement }

func (e *PartialMovementError) Unwrap() error { return e.Err }

// NotFoundError is returned by reads for an aggregate that has no stream
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
