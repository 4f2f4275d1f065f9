package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/parade-registry-api/internal/dto"
	"github.com/noah-isme/parade-registry-api/internal/middleware"
	"github.com/noah-isme/parade-registry-api/internal/models"
	"github.com/noah-isme/parade-registry-api/internal/service"
	appErrors "github.com/noah-isme/parade-registry-api/pkg/errors"
	"github.com/noah-isme/parade-registry-api/pkg/response"
)

type registrationAdminService interface {
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, error)
	Get(ctx context.Context, id string) (*models.Registration, error)
	Update(ctx context.Context, id string, req dto.UpdateRegistrationRequest, actor service.Actor) (*models.Registration, error)
	Delete(ctx context.Context, id string, confirmed bool, actor service.Actor) error
	Stats(ctx context.Context) (*models.RegistrationStats, error)
}

type registrationExporter interface {
	Export(ctx context.Context, filter models.RegistrationFilter, format string, actor service.Actor) (*service.ExportFile, error)
}

type qrImageProvider interface {
	QRImage(ctx context.Context, registrationID string) ([]byte, error)
}

type deadLetterReader interface {
	DeadLetters(ctx context.Context, limit int64) ([]models.DeadLetter, int64, error)
}

type metricsSnapshotter interface {
	Snapshot() service.MetricsSnapshot
}

const defaultDeadLetterLimit = 50

// AdminHandler exposes the admin panel endpoints.
type AdminHandler struct {
	registrations registrationAdminService
	exports       registrationExporter
	qr            qrImageProvider
	deadLetters   deadLetterReader
	metrics       metricsSnapshotter
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(registrations registrationAdminService, exports registrationExporter, qr qrImageProvider, deadLetters deadLetterReader, metrics metricsSnapshotter) *AdminHandler {
	return &AdminHandler{
		registrations: registrations,
		exports:       exports,
		qr:            qr,
		deadLetters:   deadLetters,
		metrics:       metrics,
	}
}

// List godoc
// @Summary List registrations
// @Description Newest first. `documento` filters by document substring.
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param documento query string false "Document substring"
// @Success 200 {object} response.Envelope
// @Router /admin/registrations [get]
func (h *AdminHandler) List(c *gin.Context) {
	var query dto.RegistrationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}

	items, err := h.registrations.List(c.Request.Context(), models.RegistrationFilter{Documento: query.Documento})
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetMeta(c, "total", len(items))
	response.JSON(c, http.StatusOK, items, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Registration detail
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/registrations/{id} [get]
func (h *AdminHandler) Get(c *gin.Context) {
	reg, err := h.registrations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reg)
}

// Update godoc
// @Summary Correct registration contact data
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Registration ID"
// @Param payload body dto.UpdateRegistrationRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/registrations/{id} [patch]
func (h *AdminHandler) Update(c *gin.Context) {
	var req dto.UpdateRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid update payload"))
		return
	}

	reg, err := h.registrations.Update(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reg)
}

// Delete godoc
// @Summary Delete registration
// @Description Requires confirm=true, otherwise responds 412.
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Registration ID"
// @Param confirm query bool true "Explicit confirmation"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /admin/registrations/{id} [delete]
func (h *AdminHandler) Delete(c *gin.Context) {
	var query dto.DeleteRegistrationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "confirm must be a boolean"))
		return
	}

	if err := h.registrations.Delete(c.Request.Context(), c.Param("id"), query.Confirm, actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ExportCSV godoc
// @Summary Export registrations as CSV
// @Tags Admin
// @Produce text/csv
// @Security BearerAuth
// @Param documento query string false "Document substring"
// @Success 200 {file} file
// @Router /admin/registrations/export.csv [get]
func (h *AdminHandler) ExportCSV(c *gin.Context) {
	h.export(c, service.ExportFormatCSV)
}

// ExportPDF godoc
// @Summary Export registrations as PDF
// @Tags Admin
// @Produce application/pdf
// @Security BearerAuth
// @Param documento query string false "Document substring"
// @Success 200 {file} file
// @Router /admin/registrations/export.pdf [get]
func (h *AdminHandler) ExportPDF(c *gin.Context) {
	h.export(c, service.ExportFormatPDF)
}

func (h *AdminHandler) export(c *gin.Context, format string) {
	var query dto.RegistrationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}

	file, err := h.exports.Export(c.Request.Context(), models.RegistrationFilter{Documento: query.Documento}, format, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Content)
}

// QR godoc
// @Summary Registration QR image
// @Tags Admin
// @Produce image/png
// @Security BearerAuth
// @Param id path string true "Registration ID"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /admin/registrations/{id}/qr [get]
func (h *AdminHandler) QR(c *gin.Context) {
	png, err := h.qr.QRImage(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// DeadLetters godoc
// @Summary Failed notifications
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum entries" default(50)
// @Success 200 {object} response.Envelope
// @Router /admin/notifications/dead-letters [get]
func (h *AdminHandler) DeadLetters(c *gin.Context) {
	limit := int64(defaultDeadLetterLimit)
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	letters, total, err := h.deadLetters.DeadLetters(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "total", total)
	response.JSON(c, http.StatusOK, letters, middleware.ExtractMeta(c))
}

// Stats godoc
// @Summary Registry totals
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.registrations.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats)
}

// Metrics godoc
// @Summary Runtime counters
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/metrics [get]
func (h *AdminHandler) Metrics(c *gin.Context) {
	if h.metrics == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "metrics are disabled"))
		return
	}
	response.JSON(c, http.StatusOK, h.metrics.Snapshot())
}
