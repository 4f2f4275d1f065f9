package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/parade-registry-api/internal/dto"
	"github.com/noah-isme/parade-registry-api/internal/models"
	appErrors "github.com/noah-isme/parade-registry-api/pkg/errors"
	"github.com/noah-isme/parade-registry-api/pkg/response"
)

type registrationService interface {
	Register(ctx context.Context, req dto.CreateRegistrationRequest) (*models.Registration, error)
	Catalog() models.Catalog
}

// RegistrationHandler serves the public registration form.
type RegistrationHandler struct {
	service registrationService
}

// NewRegistrationHandler constructs a RegistrationHandler.
func NewRegistrationHandler(svc registrationService) *RegistrationHandler {
	return &RegistrationHandler{service: svc}
}

// Create godoc
// @Summary Register a vehicle
// @Description Validates the form, rejects duplicate document or email and stores the registration. The confirmation email with the QR code is sent asynchronously.
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body dto.CreateRegistrationRequest true "Registration form"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /registrations [post]
func (h *RegistrationHandler) Create(c *gin.Context) {
	var req dto.CreateRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}

	reg, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.CreateRegistrationResponse{
		ID:            reg.ID,
		Tematica:      reg.Tematica,
		FechaRegistro: reg.FechaRegistro.UTC().Format(time.RFC3339),
	})
}

// Catalog godoc
// @Summary Form catalogs
// @Description Themes, themes requiring a detail and vehicle types.
// @Tags Registrations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /catalog [get]
func (h *RegistrationHandler) Catalog(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Catalog())
}
