// Package router assembles the HTTP surface of the registry API.
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/parade-registry-api/internal/handler"
	"github.com/noah-isme/parade-registry-api/internal/middleware"
	"github.com/noah-isme/parade-registry-api/internal/models"
	"github.com/noah-isme/parade-registry-api/internal/service"
	"github.com/noah-isme/parade-registry-api/pkg/config"
	"github.com/noah-isme/parade-registry-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/parade-registry-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/parade-registry-api/pkg/middleware/requestid"
)

const rateLimitWindow = time.Minute

// Dependencies are the collaborators the routes are bound to.
type Dependencies struct {
	Config *config.Config
	Logger *zap.Logger

	Auth          *service.AuthService
	Registrations *service.RegistrationService
	Admin         *service.RegistrationAdminService
	Exports       *service.ExportService
	Validations   *service.ValidationService
	Notifications *service.NotificationService
	Metrics       *service.MetricsService

	Audit       middleware.AuditWriter
	RateCounter middleware.RateCounter
	Probes      []handler.Probe
}

// New builds the gin engine with every route mounted under cfg.APIPrefix.
func New(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(log))
	r.Use(middleware.Metrics(deps.Metrics, "/metrics", "/health", "/ready"))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(deps.Metrics, deps.Probes...)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(deps.Auth)
	registrationHandler := handler.NewRegistrationHandler(deps.Registrations)
	adminHandler := handler.NewAdminHandler(deps.Admin, deps.Exports, deps.Notifications, deps.Notifications, deps.Metrics)
	validationHandler := handler.NewValidationHandler(deps.Validations)
	notificationHandler := handler.NewNotificationHandler(deps.Notifications)

	requireAuth := middleware.JWT(deps.Auth)
	limit := middleware.RateLimit(deps.RateCounter, cfg.RateLimit.PerMinute, rateLimitWindow, log)

	// welcome-http keeps its own permissive CORS policy
	open := r.Group(cfg.APIPrefix + "/notifications/welcome-http")
	open.Use(corsmiddleware.Open(), limit)
	open.GET("", notificationHandler.WelcomeHTTP)
	open.POST("", notificationHandler.WelcomeHTTP)
	open.OPTIONS("", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	api := r.Group(cfg.APIPrefix)
	api.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	public := api.Group("")
	public.Use(limit)
	public.POST("/registrations", registrationHandler.Create)
	public.GET("/catalog", registrationHandler.Catalog)
	public.POST("/auth/login", authHandler.Login)
	public.GET("/qr", middleware.Audit(deps.Audit, models.AuditActionQRDownload, "registration", log), notificationHandler.SignedQR)

	secured := api.Group("")
	secured.Use(requireAuth)
	secured.POST("/auth/logout", authHandler.Logout)
	secured.GET("/auth/me", authHandler.Me)
	secured.POST("/validations", validationHandler.Validate)
	secured.GET("/validations/history", validationHandler.History)
	secured.POST("/notifications/welcome", middleware.Audit(deps.Audit, models.AuditActionWelcomeEmail, "notification", log), notificationHandler.Welcome)

	admin := secured.Group("/admin")
	admin.GET("/registrations", adminHandler.List)
	admin.GET("/registrations/export.csv", adminHandler.ExportCSV)
	admin.GET("/registrations/export.pdf", adminHandler.ExportPDF)
	admin.GET("/registrations/:id", adminHandler.Get)
	admin.PATCH("/registrations/:id", adminHandler.Update)
	admin.DELETE("/registrations/:id", adminHandler.Delete)
	admin.GET("/registrations/:id/qr", adminHandler.QR)
	admin.GET("/notifications/dead-letters", adminHandler.DeadLetters)
	admin.GET("/stats", adminHandler.Stats)
	admin.GET("/metrics", adminHandler.Metrics)

	return r
}
