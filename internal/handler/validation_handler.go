package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/parade-registry-api/internal/models"
	"github.com/noah-isme/parade-registry-api/internal/service"
	appErrors "github.com/noah-isme/parade-registry-api/pkg/errors"
	"github.com/noah-isme/parade-registry-api/pkg/response"
)

type validationService interface {
	Validate(ctx context.Context, codigo string, actor service.Actor) (*models.ValidationResult, error)
	History(ctx context.Context, userID string, limit int) ([]models.ValidationHistoryEntry, error)
}

const defaultHistoryLimit = 20

// ValidationHandler serves the gate validation station.
type ValidationHandler struct {
	service validationService
}

// NewValidationHandler constructs a ValidationHandler.
func NewValidationHandler(svc validationService) *ValidationHandler {
	return &ValidationHandler{service: svc}
}

// Validate godoc
// @Summary Validate a scanned QR code
// @Description Domain outcomes (success, invalid_format, not_found, mismatch, already_validated) are all returned with 200.
// @Tags Validation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.ValidationRequest true "Scanned payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /validations [post]
func (h *ValidationHandler) Validate(c *gin.Context) {
	var req models.ValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "codigo is required"))
		return
	}

	result, err := h.service.Validate(c.Request.Context(), req.Codigo, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// History godoc
// @Summary Recent attempts of the current operator
// @Tags Validation
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum entries" default(20)
// @Success 200 {object} response.Envelope
// @Router /validations/history [get]
func (h *ValidationHandler) History(c *gin.Context) {
	actor := actorFromContext(c)
	if actor.UserID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	entries, err := h.service.History(c.Request.Context(), actor.UserID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries)
}
