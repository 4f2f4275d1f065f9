package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/parade-registry-api/internal/models"
	appErrors "github.com/noah-isme/parade-registry-api/pkg/errors"
)

// Ecuador keeps UTC-5 all year.
var displayLocation = time.FixedZone("ECT", -5*60*60)

const validationDateLayout = "02/01/2006 15:04:05"

// Messages shown to the operator per outcome.
const (
	tituloSuccess       = "Código Válido"
	mensajeSuccess      = "Acceso autorizado. Bienvenido al evento!"
	tituloInvalidFormat = "Código QR inválido"
	mensajeInvalid      = "El formato del código no es correcto"
	tituloNotFound      = "Código no encontrado"
	mensajeNotFound     = "No existe un registro con este código QR"
	tituloMismatch      = "Código inválido"
	mensajeMismatch     = "El código QR no coincide con el registro"
	tituloAlready       = "Código ya validado"
	tituloSystemError   = "Error del sistema"
	mensajeSystemError  = "Ocurrió un error al validar el código. Intenta nuevamente."
)

type validationStore interface {
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	MarkValidated(ctx context.Context, id, operator string, at time.Time) (bool, error)
}

type auditStore interface {
	auditWriter
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error)
}

type scanGate interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Actor identifies who performs an audited operation.
type Actor struct {
	UserID    string
	Username  string
	IP        string
	UserAgent string
}

// ValidationService checks scanned QR credentials at the event entrance.
type ValidationService struct {
	repo     validationStore
	qr       *QRService
	audit    auditStore
	gate     scanGate
	cooldown time.Duration
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewValidationService constructs a ValidationService. A zero cooldown or a
// nil gate disables duplicate scan suppression.
func NewValidationService(repo validationStore, qr *QRService, audit auditStore, gate scanGate, cooldown time.Duration, metrics *MetricsService, logger *zap.Logger) *ValidationService {
	if qr == nil {
		qr = NewQRService(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValidationService{
		repo:     repo,
		qr:       qr,
		audit:    audit,
		gate:     gate,
		cooldown: cooldown,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Validate resolves a scanned code to one of the station outcomes and marks
// the registration as validated on success. Only infrastructure failures and
// suppressed duplicate scans are returned as errors.
func (s *ValidationService) Validate(ctx context.Context, codigo string, actor Actor) (*models.ValidationResult, error) {
	codigo = strings.TrimSpace(codigo)
	if err := s.acquire(ctx, codigo, actor); err != nil {
		return nil, err
	}

	token, id, err := s.qr.ParsePayload(codigo)
	if err != nil {
		return s.finish(ctx, actor, "", outcome(models.ValidationInvalidFormat, tituloInvalidFormat, mensajeInvalid)), nil
	}

	reg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.finish(ctx, actor, "", outcome(models.ValidationNotFound, tituloNotFound, mensajeNotFound)), nil
		}
		return nil, s.systemError(err, id)
	}

	if !reg.HasToken() || *reg.QRToken != token {
		return s.finish(ctx, actor, reg.ID, outcome(models.ValidationMismatch, tituloMismatch, mensajeMismatch)), nil
	}

	if reg.Validado {
		return s.finish(ctx, actor, reg.ID, alreadyValidated(reg)), nil
	}

	at := s.now().UTC()
	operator := actor.Username
	marked, err := s.repo.MarkValidated(ctx, reg.ID, operator, at)
	if err != nil {
		return nil, s.systemError(err, reg.ID)
	}
	if !marked {
		// another station validated it between the read and the write
		current, err := s.repo.FindByID(ctx, reg.ID)
		if err != nil {
			return nil, s.systemError(err, reg.ID)
		}
		return s.finish(ctx, actor, reg.ID, alreadyValidated(current)), nil
	}

	reg.Validado = true
	reg.ValidadoAt = &at
	reg.ValidadoPor = &operator
	result := outcome(models.ValidationSuccess, tituloSuccess, mensajeSuccess)
	result.Valido = true
	result.Registro = reg
	result.ValidadoAt = reg.ValidadoAt
	result.ValidadoPor = reg.ValidadoPor
	s.logger.Info("registration validated", zap.String("registration_id", reg.ID), zap.String("operator", operator))
	return s.finish(ctx, actor, reg.ID, result), nil
}

// History returns the operator's most recent validation attempts.
func (s *ValidationService) History(ctx context.Context, userID string, limit int) ([]models.ValidationHistoryEntry, error) {
	entries := []models.ValidationHistoryEntry{}
	if s.audit == nil {
		return entries, nil
	}
	logs, err := s.audit.List(ctx, models.AuditFilter{UserID: userID, Action: models.AuditActionValidation, Limit: limit})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load validation history")
	}
	for _, log := range logs {
		var attempt validationAttempt
		if err := json.Unmarshal(log.NewValues, &attempt); err != nil {
			continue
		}
		entries = append(entries, models.ValidationHistoryEntry{
			Valido:         attempt.Valido,
			Estado:         attempt.Estado,
			Mensaje:        attempt.Mensaje,
			RegistrationID: log.ResourceID,
			Hora:           log.CreatedAt,
		})
	}
	return entries, nil
}

type validationAttempt struct {
	Valido  bool                    `json:"valido"`
	Estado  models.ValidationStatus `json:"estado"`
	Mensaje string                  `json:"mensaje"`
}

func (s *ValidationService) acquire(ctx context.Context, codigo string, actor Actor) error {
	if s.gate == nil || s.cooldown <= 0 || codigo == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(codigo))
	ok, err := s.gate.Acquire(ctx, actor.UserID+":"+hex.EncodeToString(sum[:]), s.cooldown)
	if err != nil {
		s.logger.Warn("scan gate unavailable", zap.Error(err))
		return nil
	}
	if !ok {
		return appErrors.ErrDuplicateScan
	}
	return nil
}

func (s *ValidationService) finish(ctx context.Context, actor Actor, registrationID string, result *models.ValidationResult) *models.ValidationResult {
	s.metrics.RecordValidation(string(result.Estado))
	if s.audit == nil {
		return result
	}
	payload, _ := json.Marshal(validationAttempt{Valido: result.Valido, Estado: result.Estado, Mensaje: result.Mensaje})
	log := &models.AuditLog{
		Action:    models.AuditActionValidation,
		Resource:  "registration",
		NewValues: payload,
		IPAddress: actor.IP,
		UserAgent: actor.UserAgent,
	}
	if actor.UserID != "" {
		log.UserID = &actor.UserID
	}
	if registrationID != "" {
		log.ResourceID = &registrationID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record validation audit log", zap.Error(err))
	}
	return result
}

func (s *ValidationService) systemError(err error, registrationID string) error {
	s.metrics.RecordValidation("error")
	s.logger.Error("validation failed", zap.String("registration_id", registrationID), zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, tituloSystemError+". "+mensajeSystemError)
}

func outcome(estado models.ValidationStatus, titulo, mensaje string) *models.ValidationResult {
	return &models.ValidationResult{Estado: estado, Titulo: titulo, Mensaje: mensaje}
}

func alreadyValidated(reg *models.Registration) *models.ValidationResult {
	mensaje := "Este código ya fue utilizado"
	if reg.ValidadoAt != nil {
		mensaje += " el " + reg.ValidadoAt.In(displayLocation).Format(validationDateLayout)
	}
	result := outcome(models.ValidationAlreadyValidated, tituloAlready, mensaje)
	result.Registro = reg
	result.ValidadoAt = reg.ValidadoAt
	result.ValidadoPor = reg.ValidadoPor
	return result
}
