package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/parade-registry-api/internal/events"
	"github.com/noah-isme/parade-registry-api/internal/handler"
	"github.com/noah-isme/parade-registry-api/internal/middleware"
	"github.com/noah-isme/parade-registry-api/internal/repository"
	"github.com/noah-isme/parade-registry-api/internal/router"
	"github.com/noah-isme/parade-registry-api/internal/service"
	"github.com/noah-isme/parade-registry-api/pkg/cache"
	"github.com/noah-isme/parade-registry-api/pkg/config"
	"github.com/noah-isme/parade-registry-api/pkg/database"
	"github.com/noah-isme/parade-registry-api/pkg/mail"
	"github.com/noah-isme/parade-registry-api/pkg/storage"
)

const shutdownTimeout = 15 * time.Second

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the HTTP API and the notification dispatcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logr, err := bootstrap()
		if err != nil {
			return err
		}
		defer logr.Sync() //nolint:errcheck
		return serve(cmd.Context(), cfg, logr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", true, "apply pending migrations before serving")
}

func serve(parent context.Context, cfg *config.Config, logr *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if migrateOnStart {
		if err := database.Migrate(cfg.Database, database.MigrateUp); err != nil {
			return err
		}
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	// Redis backs sessions, scan dedup, rate limits and the dead letter list.
	// Every one of them degrades open, so an unreachable Redis is not fatal.
	var rdb *redis.Client
	if client, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Warn("redis unavailable, continuing without it", zap.Error(err))
	} else {
		rdb = client
		defer rdb.Close() //nolint:errcheck
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	sender, err := mail.New(cfg.Mail, logr)
	if err != nil {
		return fmt.Errorf("init mail: %w", err)
	}
	bus, err := events.New(cfg.Events, logr)
	if err != nil {
		return fmt.Errorf("init events: %w", err)
	}
	defer bus.Close() //nolint:errcheck

	registrationRepo := repository.NewRegistrationRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	deadLetters := repository.NewDeadLetterRepository(rdb, logr)

	metricsSvc := service.NewMetricsService()
	validate := service.NewValidator()
	qrSvc := service.NewQRService(cfg.QR.Size)

	authSvc := service.NewAuthService(
		repository.NewAdminUserRepository(db),
		auditRepo,
		repository.NewSessionRepository(rdb, logr),
		validate,
		logr,
		service.AuthConfig{
			AccessTokenSecret: cfg.JWT.Secret,
			AccessTokenExpiry: cfg.JWT.Expiration,
			Issuer:            cfg.JWT.Issuer,
		},
	)
	registrationSvc := service.NewRegistrationService(registrationRepo, bus, deadLetters, metricsSvc, validate, logr)
	adminSvc := service.NewRegistrationAdminService(registrationRepo, auditRepo, validate, logr)
	exportSvc := service.NewExportService(registrationRepo, auditRepo, logr, nil, nil)
	validationSvc := service.NewValidationService(registrationRepo, qrSvc, auditRepo, repository.NewScanGateRepository(rdb), cfg.Validation.ScanCooldown, metricsSvc, logr)
	notificationSvc := service.NewNotificationService(
		registrationRepo,
		qrSvc,
		sender,
		store,
		storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL),
		deadLetters,
		metricsSvc,
		service.NotificationConfig{
			Event:          cfg.Event,
			PublicBaseURL:  cfg.Storage.PublicBaseURL,
			QRDownloadPath: cfg.APIPrefix + "/qr",
		},
		logr,
	)

	var rateCounter middleware.RateCounter = middleware.NewMemoryRateCounter()
	if rdb != nil {
		rateCounter = repository.NewRateLimitRepository(rdb)
	}

	engine := router.New(router.Dependencies{
		Config:        cfg,
		Logger:        logr,
		Auth:          authSvc,
		Registrations: registrationSvc,
		Admin:         adminSvc,
		Exports:       exportSvc,
		Validations:   validationSvc,
		Notifications: notificationSvc,
		Metrics:       metricsSvc,
		Audit:         auditRepo,
		RateCounter:   rateCounter,
		Probes: []handler.Probe{
			{Name: "postgres", Check: db.PingContext},
			{Name: "redis", Optional: true, Check: func(ctx context.Context) error {
				if rdb == nil {
					return errors.New("not connected")
				}
				return rdb.Ping(ctx).Err()
			}},
		},
	})

	if err := bus.Subscribe(ctx, events.TopicRegistrationCreated, notificationSvc.HandleMessage, notificationSvc.DeadLetterMessage); err != nil {
		return fmt.Errorf("subscribe %s: %w", events.TopicRegistrationCreated, err)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logr.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	logr.Info("server exited")
	return nil
}
