package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/mediaforge/api/internal/model"
	"github.com/mediaforge/api/internal/service"
	"github.com/mediaforge/api/pkg/response"
)

type EnhanceHandler struct {
	service   *service.EnhanceService
	validator *validator.Validate
}

func NewEnhanceHandler(svc *service.EnhanceService, v *validator.Validate) *EnhanceHandler {
	return &EnhanceHandler{
		service:   svc,
		validator: v,
	}
}

// Enhance handles POST /api/enhance
// @Summary      Enhance generation prompt
// @Description  Rewrite a prompt with an LLM for better generation results
// @Tags         Enhance
// @Accept       json
// @Produce      json
// @Param        request body model.EnhanceRequest true "Prompt to enhance"
// @Success      200 {object} model.EnhanceResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Router       /api/enhance [post]
func (h *EnhanceHandler) Enhance(c *fiber.Ctx) error {
	var req model.EnhanceRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Enhance(c.Context(), &req)
	if err != nil {
		return response.AIError(c, err.Error())
	}

	return response.OK(c, result)
}
