package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/parade-registry-api/internal/models"
	appErrors "github.com/noah-isme/parade-registry-api/pkg/errors"
	"github.com/noah-isme/parade-registry-api/pkg/response"
)

type notificationService interface {
	SendWelcome(ctx context.Context, req models.WelcomeEmailRequest) error
	SignedQRImage(ctx context.Context, token string) ([]byte, error)
}

// NotificationHandler exposes the manual email triggers and the signed QR download.
type NotificationHandler struct {
	service notificationService
}

// NewNotificationHandler constructs a NotificationHandler.
func NewNotificationHandler(svc notificationService) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// Welcome godoc
// @Summary Send a confirmation email
// @Description Sends the confirmation email without QR code and without touching the registry.
// @Tags Notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.WelcomeEmailRequest true "Recipient"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /notifications/welcome [post]
func (h *NotificationHandler) Welcome(c *gin.Context) {
	var req models.WelcomeEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.ErrMissingEmail)
		return
	}
	if err := h.service.SendWelcome(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"success": true})
}

// WelcomeHTTP godoc
// @Summary Send a confirmation email (plain HTTP)
// @Description Reads email and nombreCompleto from the query string (GET) or a JSON/form body (POST). Responds with a bare JSON object.
// @Tags Notifications
// @Accept json
// @Produce json
// @Param email query string false "Recipient email"
// @Param nombreCompleto query string false "Recipient name"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /notifications/welcome-http [post]
func (h *NotificationHandler) WelcomeHTTP(c *gin.Context) {
	var req models.WelcomeEmailRequest
	switch c.Request.Method {
	case http.MethodGet:
		req.Email = c.Query("email")
		req.NombreCompleto = c.Query("nombreCompleto")
	case http.MethodPost:
		if strings.HasPrefix(c.ContentType(), gin.MIMEJSON) {
			_ = c.ShouldBindJSON(&req)
		} else {
			_ = c.ShouldBind(&req)
		}
	default:
		c.Status(http.StatusMethodNotAllowed)
		return
	}

	if err := h.service.SendWelcome(c.Request.Context(), req); err != nil {
		appErr := appErrors.FromError(err)
		c.JSON(appErr.Status, gin.H{"error": appErr.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SignedQR godoc
// @Summary Download a QR code through a signed link
// @Tags Notifications
// @Produce image/png
// @Param token query string true "Signed token from the confirmation email"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /qr [get]
func (h *NotificationHandler) SignedQR(c *gin.Context) {
	png, err := h.service.SignedQRImage(c.Request.Context(), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Disposition", `inline; filename="qr-code.png"`)
	c.Data(http.StatusOK, "image/png", png)
}
