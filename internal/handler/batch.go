package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/mediaforge/api/internal/middleware"
	"github.com/mediaforge/api/internal/model"
	"github.com/mediaforge/api/internal/service"
	"github.com/mediaforge/api/pkg/response"
)

type BatchHandler struct {
	service   *service.BatchService
	validator *validator.Validate
}

func NewBatchHandler(svc *service.BatchService, v *validator.Validate) *BatchHandler {
	return &BatchHandler{
		service:   svc,
		validator: v,
	}
}

// Start handles POST /api/batch
// @Summary      Start batch job
// @Description  Start an asynchronous batch of generation items sharing one parameter template
// @Tags         Batch
// @Accept       json
// @Produce      json
// @Param        request body model.BatchStartRequest true "Batch request"
// @Success      202 {object} model.BatchStartResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/batch [post]
func (h *BatchHandler) Start(c *fiber.Ctx) error {
	var req model.BatchStartRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Start(c.Context(), middleware.GetUserID(c), req.Params, req.TotalCount)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/batch/:batchId
// @Summary      Get batch job status
// @Description  Get batch progress including per-item completion and failure counts
// @Tags         Batch
// @Produce      json
// @Param        batchId path string true "Batch ID"
// @Success      200 {object} model.BatchStatusResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/batch/{batchId} [get]
func (h *BatchHandler) Status(c *fiber.Ctx) error {
	batchID := c.Params("batchId")
	if batchID == "" {
		return response.ValidationError(c, "Batch ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), batchID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return response.NotFound(c, "Batch not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Pause handles POST /api/batch/:batchId/pause
// @Summary      Pause batch job
// @Description  Pause a running batch; the current item finishes before the pause takes effect
// @Tags         Batch
// @Produce      json
// @Param        batchId path string true "Batch ID"
// @Success      200 {object} model.BatchControlResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/batch/{batchId}/pause [post]
func (h *BatchHandler) Pause(c *fiber.Ctx) error {
	return h.control(c, h.service.Pause)
}

// Resume handles POST /api/batch/:batchId/resume
// @Summary      Resume batch job
// @Description  Resume a paused batch from its stored position
// @Tags         Batch
// @Produce      json
// @Param        batchId path string true "Batch ID"
// @Success      200 {object} model.BatchControlResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/batch/{batchId}/resume [post]
func (h *BatchHandler) Resume(c *fiber.Ctx) error {
	return h.control(c, h.service.Resume)
}

// Cancel handles POST /api/batch/:batchId/cancel
// @Summary      Cancel batch job
// @Description  Cancel a batch in any non-terminal state
// @Tags         Batch
// @Produce      json
// @Param        batchId path string true "Batch ID"
// @Success      200 {object} model.BatchControlResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/batch/{batchId}/cancel [post]
func (h *BatchHandler) Cancel(c *fiber.Ctx) error {
	return h.control(c, h.service.Cancel)
}

func (h *BatchHandler) control(c *fiber.Ctx, op func(ctx context.Context, id string) (*model.BatchControlResponse, error)) error {
	batchID := c.Params("batchId")
	if batchID == "" {
		return response.ValidationError(c, "Batch ID is required", nil)
	}

	result, err := op(c.Context(), batchID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			return response.NotFound(c, "Batch not found")
		case errors.Is(err, service.ErrBatchTerminal):
			return response.ValidationError(c, "Batch already finished", nil)
		default:
			return response.ValidationError(c, err.Error(), nil)
		}
	}

	return response.OK(c, result)
}
