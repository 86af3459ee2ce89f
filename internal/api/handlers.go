package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/stock-ledger-service/internal/application"
	"github.com/wms-platform/stock-ledger-service/internal/domain"
	"github.com/wms-platform/stock-ledger-service/internal/projections"
	apperrors "github.com/wms-platform/stock-ledger-service/pkg/errors"
)

type handlers struct {
	service *application.MovementService
	engine  *projections.Engine
	reader  *projections.Reader
}

func bind(c *gin.Context, v interface{}) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return apperrors.ErrBadRequest("invalid request body").Wrap(err)
	}
	return nil
}

func slotParam(c *gin.Context) (domain.Slot, error) {
	slot := domain.NewSlot(c.Param("warehouse"), c.Param("location"), c.Param("item"))
	if err := domain.ValidateStruct(slot); err != nil {
		return domain.Slot{}, err
	}
	return slot, nil
}

func (h *handlers) recordMovement(c *gin.Context) error {
	var cmd application.RecordMovementCommand
	if err := bind(c, &cmd); err != nil {
		return err
	}

	result, err := h.service.RecordMovement(c.Request.Context(), cmd)
	if errors.Is(err, domain.ErrPartialMovement) && result != nil {
		// The caller needs the appended leg to reconcile.
		c.JSON(http.StatusMultiStatus, gin.H{
			"result": result,
			"error":  MapDomainError(err),
		})
		return nil
	}
	if err != nil {
		return err
	}
	c.JSON(http.StatusCreated, result)
	return nil
}

func (h *handlers) getBalance(c *gin.Context) error {
	slot, err := slotParam(c)
	if err != nil {
		return err
	}
	qty, err := h.service.Balance(c.Request.Context(), slot)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, domain.SlotBalance{Slot: slot, Quantity: qty})
	return nil
}

func (h *handlers) listBalances(c *gin.Context) error {
	rows, err := h.service.Balances(c.Request.Context(), c.Param("warehouse"))
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"warehouse": c.Param("warehouse"), "balances": rows})
	return nil
}

func (h *handlers) createReservation(c *gin.Context) error {
	var cmd application.CreateReservationCommand
	if err := bind(c, &cmd); err != nil {
		return err
	}
	result, err := h.service.CreateReservation(c.Request.Context(), cmd)
	if err != nil {
		return err
	}
	c.JSON(http.StatusCreated, result)
	return nil
}

func (h *handlers) allocateReservation(c *gin.Context) error {
	return respond(c, http.StatusOK)(h.service.AllocateReservation(c.Request.Context(), c.Param("id")))
}

func (h *handlers) startPicking(c *gin.Context) error {
	var req struct {
		Lines     []domain.HardLockLine `json:"lines"`
		StartedBy string                `json:"startedBy"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	cmd := application.StartPickingCommand{ReservationID: c.Param("id"), Lines: req.Lines, StartedBy: req.StartedBy}
	return respond(c, http.StatusOK)(h.service.StartPicking(c.Request.Context(), cmd))
}

func (h *handlers) consumeReservation(c *gin.Context) error {
	return respond(c, http.StatusOK)(h.service.ConsumeReservation(c.Request.Context(), c.Param("id")))
}

func (h *handlers) cancelReservation(c *gin.Context) error {
	var req struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength > 0 {
		if err := bind(c, &req); err != nil {
			return err
		}
	}
	return respond(c, http.StatusOK)(h.service.CancelReservation(c.Request.Context(), c.Param("id"), req.Reason))
}

func (h *handlers) bumpReservation(c *gin.Context) error {
	var req struct {
		BumpedBy string `json:"bumpedBy"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	return respond(c, http.StatusOK)(h.service.BumpReservation(c.Request.Context(), c.Param("id"), req.BumpedBy))
}

func (h *handlers) createHandlingUnit(c *gin.Context) error {
	var cmd application.CreateHandlingUnitCommand
	if err := bind(c, &cmd); err != nil {
		return err
	}
	return respond(c, http.StatusCreated)(h.service.CreateHandlingUnit(c.Request.Context(), cmd))
}

func (h *handlers) sealHandlingUnit(c *gin.Context) error {
	var req struct {
		SealedBy string `json:"sealedBy"`
	}
	if c.Request.ContentLength > 0 {
		if err := bind(c, &req); err != nil {
			return err
		}
	}
	return respond(c, http.StatusOK)(h.service.SealHandlingUnit(c.Request.Context(), c.Param("id"), req.SealedBy))
}

func respond(c *gin.Context, status int) func(*application.CommandResult, error) error {
	return func(result *application.CommandResult, err error) error {
		if err != nil {
			return err
		}
		c.JSON(status, result)
		return nil
	}
}

func (h *handlers) getAvailableStock(c *gin.Context) error {
	slot, err := slotParam(c)
	if err != nil {
		return err
	}
	view, err := h.reader.AvailableStock(c.Request.Context(), slot)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, view)
	return nil
}

func (h *handlers) getHandlingUnit(c *gin.Context) error {
	view, err := h.reader.HandlingUnit(c.Request.Context(), c.Param("id"))
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, view)
	return nil
}

func (h *handlers) getReservationSummary(c *gin.Context) error {
	view, err := h.reader.ReservationSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, view)
	return nil
}

func (h *handlers) getHardLock(c *gin.Context) error {
	view, err := h.reader.ActiveHardLock(c.Request.Context(), c.Param("id"), c.Param("location"), c.Param("item"))
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, view)
	return nil
}

func (h *handlers) listProjections(c *gin.Context) error {
	status, err := h.engine.Status(c.Request.Context())
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"projections": status})
	return nil
}

func (h *handlers) rebuildProjection(c *gin.Context) error {
	mode, err := projections.ParseMode(c.Query("mode"))
	if err != nil {
		return apperrors.ErrBadRequest(err.Error())
	}

	report, err := h.engine.Rebuild(c.Request.Context(), c.Param("name"), mode)
	if report == nil {
		return err
	}
	if err != nil {
		c.JSON(MapDomainError(err).HTTPStatus, report)
		return nil
	}
	c.JSON(http.StatusOK, report)
	return nil
}
