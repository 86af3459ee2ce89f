package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/stock-ledger-service/internal/domain"
	"github.com/wms-platform/stock-ledger-service/internal/projections"
	apperrors "github.com/wms-platform/stock-ledger-service/pkg/errors"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
	Timestamp string            `json:"timestamp"`
	Path      string            `json:"path"`
}

// MapDomainError translates ledger errors into AppErrors
func MapDomainError(err error) *apperrors.AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr
	}

	var (
		validation   *domain.ValidationError
		insufficient *domain.InsufficientBalanceError
		conflict     *domain.ConcurrencyConflictError
		partial      *domain.PartialMovementError
		notFound     *domain.NotFoundError
	)

	switch {
	// Partial first: it wraps the conflict that stopped the destination leg.
	case errors.As(err, &partial):
		return apperrors.ErrPartialFailure(partial.Error()).
			WithDetail("movementId", partial.MovementID).
			Wrap(err)
	case errors.As(err, &validation):
		appErr := apperrors.ErrValidation(validation.Message).Wrap(err)
		if validation.Field != "" {
			appErr.WithDetail("field", validation.Field)
		}
		return appErr
	case errors.As(err, &insufficient):
		return apperrors.ErrInsufficientBalance(insufficient.Error()).
			WithDetail("slot", insufficient.Slot.Key()).
			WithDetail("requested", insufficient.Requested.String()).
			WithDetail("available", insufficient.Available.String()).
			WithDetail("shortfall", insufficient.Shortfall().String()).
			Wrap(err)
	case errors.As(err, &conflict):
		return apperrors.ErrConcurrencyConflict(conflict.Error()).
			WithDetail("streamId", conflict.StreamID).
			Wrap(err)
	case errors.Is(err, domain.ErrInvalidTransition):
		return apperrors.ErrInvalidTransition(err.Error()).Wrap(err)
	case errors.Is(err, domain.ErrMalformedEvent):
		return apperrors.ErrMalformedEvent(err.Error()).Wrap(err)
	case errors.As(err, &notFound):
		return apperrors.ErrNotFound(notFound.Entity + " " + notFound.ID).Wrap(err)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, projections.ErrUnknownProjection):
		return apperrors.NewAppError(apperrors.CodeNotFound, err.Error(), http.StatusNotFound).Wrap(err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.ErrTimeout("request").Wrap(err)
	default:
		return apperrors.ErrInternal("").Wrap(err)
	}
}

// ErrorHandler renders the last error a handler attached to the context
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		respondError(c, MapDomainError(c.Errors.Last().Err))
	}
}

func respondError(c *gin.Context, appErr *apperrors.AppError) {
	c.AbortWithStatusJSON(appErr.HTTPStatus, ErrorResponse{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Details:   appErr.Details,
		RequestID: GetRequestID(c),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      c.Request.URL.Path,
	})
}
