package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/parade-registry-api/internal/dto"
	"github.com/noah-isme/parade-registry-api/internal/events"
	"github.com/noah-isme/parade-registry-api/internal/models"
	"github.com/noah-isme/parade-registry-api/internal/repository"
	appErrors "github.com/noah-isme/parade-registry-api/pkg/errors"
)

type registrationStore interface {
	Create(ctx context.Context, reg *models.Registration) error
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	Exists(ctx context.Context, field, value string) (bool, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
}

type deadLetterSink interface {
	Push(ctx context.Context, entry models.DeadLetter) error
}

// RegistrationService runs the public registration form workflow.
type RegistrationService struct {
	repo        registrationStore
	publisher   eventPublisher
	deadLetters deadLetterSink
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(repo registrationStore, publisher eventPublisher, deadLetters deadLetterSink, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *RegistrationService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		repo:        repo,
		publisher:   publisher,
		deadLetters: deadLetters,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// Catalog returns the form dropdown values.
func (s *RegistrationService) Catalog() models.Catalog {
	return models.Catalog{
		Tematicas:           models.Themes,
		TematicasConDetalle: models.ThemesRequiringDetail,
		TiposVehiculo:       models.VehicleTypes,
	}
}

// Register validates the form, rejects duplicates, stores the registration
// and announces it to the notification dispatcher.
func (s *RegistrationService) Register(ctx context.Context, req dto.CreateRegistrationRequest) (*models.Registration, error) {
	req = normalizeRegistration(req)
	if err := s.validate(req); err != nil {
		s.metrics.RecordRegistration(OutcomeRejected)
		return nil, err
	}

	if err := s.checkDuplicates(ctx, req.DocumentoIdentificacion, req.Email); err != nil {
		return nil, err
	}

	tematica := req.Tematica
	if models.RequiresDetail(req.Tematica) {
		tematica = req.Tematica + ": " + req.TematicaDetalle
	}

	reg := &models.Registration{
		NombreCompleto:          req.NombreCompleto,
		DocumentoIdentificacion: req.DocumentoIdentificacion,
		Telefono:                req.Telefono,
		Email:                   req.Email,
		Tematica:                tematica,
		TipoVehiculo:            req.TipoVehiculo,
		Placa:                   req.Placa,
	}
	if err := s.repo.Create(ctx, reg); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateDocumento):
			s.metrics.RecordRegistration(OutcomeConflict)
			return nil, appErrors.ErrDuplicateDocument
		case errors.Is(err, repository.ErrDuplicateEmail):
			s.metrics.RecordRegistration(OutcomeConflict)
			return nil, appErrors.ErrDuplicateEmail
		}
		s.metrics.RecordRegistration(OutcomeFailure)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store registration")
	}

	s.metrics.RecordRegistration(OutcomeSuccess)
	s.logger.Info("registration stored", zap.String("registration_id", reg.ID), zap.String("tematica", reg.Tematica))
	s.announce(ctx, reg)
	return reg, nil
}

// Get returns a registration by id.
func (s *RegistrationService) Get(ctx context.Context, id string) (*models.Registration, error) {
	reg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registro no encontrado")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	return reg, nil
}

func (s *RegistrationService) validate(req dto.CreateRegistrationRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "campos inválidos: "+invalidFields(err))
	}
	if models.RequiresDetail(req.Tematica) && req.TematicaDetalle == "" {
		return appErrors.Clone(appErrors.ErrValidation, "campos inválidos: tematicaDetalle")
	}
	return nil
}

func (s *RegistrationService) checkDuplicates(ctx context.Context, documento, email string) error {
	docTaken, err := s.repo.Exists(ctx, models.FieldDocumento, documento)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check duplicate document")
	}
	emailTaken, err := s.repo.Exists(ctx, models.FieldEmail, email)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check duplicate email")
	}

	var conflict *appErrors.Error
	switch {
	case docTaken && emailTaken:
		conflict = appErrors.ErrDuplicateDocumentAndEmail
	case docTaken:
		conflict = appErrors.ErrDuplicateDocument
	case emailTaken:
		conflict = appErrors.ErrDuplicateEmail
	default:
		return nil
	}
	s.metrics.RecordRegistration(OutcomeConflict)
	return conflict
}

// announce publishes the created event. Failures never fail the
// registration; they are logged and dead-lettered.
func (s *RegistrationService) announce(ctx context.Context, reg *models.Registration) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(models.RegistrationCreatedEvent{
		RegistrationID: reg.ID,
		Email:          reg.Email,
		NombreCompleto: reg.NombreCompleto,
		CreatedAt:      reg.FechaRegistro,
	})
	if err != nil {
		s.logger.Error("marshal registration event", zap.String("registration_id", reg.ID), zap.Error(err))
		return
	}
	if _, err := s.publisher.Publish(ctx, events.TopicRegistrationCreated, payload, map[string]string{"registration_id": reg.ID}); err != nil {
		s.logger.Error("publish registration event", zap.String("registration_id", reg.ID), zap.Error(err))
		if s.deadLetters == nil {
			return
		}
		s.metrics.RecordDeadLetter()
		if dlqErr := s.deadLetters.Push(ctx, models.DeadLetter{
			Queue:    NotificationQueue,
			JobType:  events.TopicRegistrationCreated,
			Payload:  payload,
			Reason:   err.Error(),
			FailedAt: time.Now().UTC(),
			Attempts: 1,
		}); dlqErr != nil {
			s.logger.Error("dead letter push failed", zap.String("registration_id", reg.ID), zap.Error(dlqErr))
		}
	}
}

func normalizeRegistration(req dto.CreateRegistrationRequest) dto.CreateRegistrationRequest {
	req.NombreCompleto = strings.TrimSpace(req.NombreCompleto)
	req.DocumentoIdentificacion = strings.TrimSpace(req.DocumentoIdentificacion)
	req.Telefono = strings.TrimSpace(req.Telefono)
	req.Email = strings.TrimSpace(req.Email)
	req.Tematica = strings.TrimSpace(req.Tematica)
	req.TematicaDetalle = strings.TrimSpace(req.TematicaDetalle)
	req.TipoVehiculo = strings.TrimSpace(req.TipoVehiculo)
	req.Placa = strings.ToUpper(strings.TrimSpace(req.Placa))
	return req
}
