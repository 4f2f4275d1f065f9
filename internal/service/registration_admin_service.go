package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/parade-registry-api/internal/dto"
	"github.com/noah-isme/parade-registry-api/internal/models"
	"github.com/noah-isme/parade-registry-api/internal/repository"
	appErrors "github.com/noah-isme/parade-registry-api/pkg/errors"
)

type registrationAdminStore interface {
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, error)
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*models.RegistrationStats, error)
}

// RegistrationAdminService backs the admin panel.
type RegistrationAdminService struct {
	repo      registrationAdminStore
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRegistrationAdminService constructs a RegistrationAdminService.
func NewRegistrationAdminService(repo registrationAdminStore, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *RegistrationAdminService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationAdminService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// List returns registrations newest first, optionally filtered by a document
// substring.
func (s *RegistrationAdminService) List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, error) {
	filter.Documento = strings.TrimSpace(filter.Documento)
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	return items, nil
}

// Get returns a single registration.
func (s *RegistrationAdminService) Get(ctx context.Context, id string) (*models.Registration, error) {
	reg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registro no encontrado")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	return reg, nil
}

// Update corrects contact fields of a registration.
func (s *RegistrationAdminService) Update(ctx context.Context, id string, req dto.UpdateRegistrationRequest, actor Actor) (*models.Registration, error) {
	req = normalizeUpdate(req)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "campos inválidos: "+invalidFields(err))
	}

	fields := map[string]interface{}{}
	if req.NombreCompleto != nil {
		fields["nombre_completo"] = *req.NombreCompleto
	}
	if req.Telefono != nil {
		fields["telefono"] = *req.Telefono
	}
	if req.Email != nil {
		fields["email"] = *req.Email
	}
	if req.Placa != nil {
		fields["placa"] = *req.Placa
	}
	if len(fields) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no hay campos para actualizar")
	}

	before, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, id, fields); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registro no encontrado")
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, appErrors.ErrDuplicateEmail
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update registration")
	}

	after, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, models.AuditActionRegistrationUpdate, id, before, fields)
	return after, nil
}

// Delete removes a registration once the caller confirmed the deletion.
func (s *RegistrationAdminService) Delete(ctx context.Context, id string, confirmed bool, actor Actor) error {
	if !confirmed {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "confirma la eliminación del registro con confirm=true")
	}
	before, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "registro no encontrado")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete registration")
	}
	s.logger.Info("registration deleted", zap.String("registration_id", id), zap.String("operator", actor.Username))
	s.record(ctx, actor, models.AuditActionRegistrationDelete, id, before, nil)
	return nil
}

// Stats summarises registration and validation counts.
func (s *RegistrationAdminService) Stats(ctx context.Context) (*models.RegistrationStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stats")
	}
	return stats, nil
}

func (s *RegistrationAdminService) record(ctx context.Context, actor Actor, action, id string, oldValues, newValues interface{}) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		Action:     action,
		Resource:   "registration",
		ResourceID: &id,
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
	}
	if actor.UserID != "" {
		log.UserID = &actor.UserID
	}
	if oldValues != nil {
		log.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		log.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func normalizeUpdate(req dto.UpdateRegistrationRequest) dto.UpdateRegistrationRequest {
	trim := func(v *string, upper bool) *string {
		if v == nil {
			return nil
		}
		out := strings.TrimSpace(*v)
		if upper {
			out = strings.ToUpper(out)
		}
		return &out
	}
	req.NombreCompleto = trim(req.NombreCompleto, false)
	req.Telefono = trim(req.Telefono, false)
	req.Email = trim(req.Email, false)
	req.Placa = trim(req.Placa, true)
	return req
}
