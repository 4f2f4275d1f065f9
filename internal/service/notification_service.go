package service

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/parade-registry-api/internal/events"
	"github.com/noah-isme/parade-registry-api/internal/models"
	"github.com/noah-isme/parade-registry-api/pkg/config"
	appErrors "github.com/noah-isme/parade-registry-api/pkg/errors"
	"github.com/noah-isme/parade-registry-api/pkg/mail"
	"github.com/noah-isme/parade-registry-api/pkg/storage"
)

// NotificationQueue names the dead letter list of failed confirmations.
const NotificationQueue = "notifications"

// Metric channels for notification outcomes.
const (
	ChannelTrigger  = "trigger"
	ChannelCallable = "callable"
)

const (
	qrAttachmentName = "qr-code.png"
	pngContentType   = "image/png"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	welcomeHTML = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/welcome.html.tmpl"))
	welcomeText = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/welcome.txt.tmpl"))
)

type notificationStore interface {
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	AssignToken(ctx context.Context, id, token string, at time.Time) (bool, error)
}

type deadLetterStore interface {
	deadLetterSink
	List(ctx context.Context, queue string, limit int64) ([]models.DeadLetter, error)
	Length(ctx context.Context, queue string) (int64, error)
}

// NotificationConfig carries what the confirmation email prints and links to.
type NotificationConfig struct {
	Event          config.EventInfoConfig
	PublicBaseURL  string
	QRDownloadPath string
}

type welcomeData struct {
	Nombre         string
	Event          config.EventInfoConfig
	HasQR          bool
	AttachmentName string
	QRLink         string
}

// NotificationService issues QR credentials and sends confirmation emails.
type NotificationService struct {
	repo        notificationStore
	qr          *QRService
	sender      mail.Sender
	store       storage.ObjectStore
	signer      *storage.SignedURLSigner
	deadLetters deadLetterStore
	metrics     *MetricsService
	cfg         NotificationConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewNotificationService constructs a NotificationService. store and signer
// are optional; without them the QR is only attached to the email.
func NewNotificationService(
	repo notificationStore,
	qr *QRService,
	sender mail.Sender,
	store storage.ObjectStore,
	signer *storage.SignedURLSigner,
	deadLetters deadLetterStore,
	metrics *MetricsService,
	cfg NotificationConfig,
	logger *zap.Logger,
) *NotificationService {
	if qr == nil {
		qr = NewQRService(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		repo:        repo,
		qr:          qr,
		sender:      sender,
		store:       store,
		signer:      signer,
		deadLetters: deadLetters,
		metrics:     metrics,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// HandleMessage consumes a registration.created event. Errors never reach the
// broker: they are logged, counted and dead-lettered, so the message is not
// redelivered.
func (s *NotificationService) HandleMessage(ctx context.Context, msg events.Message) error {
	var evt models.RegistrationCreatedEvent
	if err := json.Unmarshal(msg.Data, &evt); err != nil || evt.RegistrationID == "" {
		if err == nil {
			err = errors.New("event without registration id")
		}
		s.fail(ctx, msg, "", err)
		return nil
	}
	if err := s.Dispatch(ctx, evt.RegistrationID); err != nil {
		s.fail(ctx, msg, evt.RegistrationID, err)
		return nil
	}
	return nil
}

// DeadLetterMessage records a registration.created message whose handling
// failed outside HandleMessage, such as a recovered panic.
func (s *NotificationService) DeadLetterMessage(ctx context.Context, msg events.Message, err error) {
	var evt models.RegistrationCreatedEvent
	_ = json.Unmarshal(msg.Data, &evt)
	s.fail(ctx, msg, evt.RegistrationID, err)
}

// Dispatch assigns the registration's QR token, renders the credential and
// emails it. A record that already holds a token keeps it.
func (s *NotificationService) Dispatch(ctx context.Context, registrationID string) error {
	reg, err := s.repo.FindByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "registro no encontrado")
		}
		return err
	}
	if strings.TrimSpace(reg.Email) == "" {
		s.logger.Info("registration without email, skipping confirmation", zap.String("registration_id", reg.ID))
		return nil
	}

	token, err := s.ensureToken(ctx, reg)
	if err != nil {
		return err
	}

	png, err := s.qr.Render(s.qr.Payload(token, reg.ID))
	if err != nil {
		return err
	}
	s.logger.Info("qr generated", zap.String("registration_id", reg.ID), zap.Int("bytes", len(png)))
	s.archive(ctx, reg.ID, png)

	msg, err := s.compose(reg.Email, reg.NombreCompleto, png, s.downloadLink(reg.ID))
	if err != nil {
		return err
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return err
	}

	s.metrics.RecordNotification(ChannelTrigger, OutcomeSuccess)
	s.logger.Info("confirmation sent", zap.String("registration_id", reg.ID), zap.String("email", reg.Email))
	return nil
}

// SendWelcome sends the confirmation text without a QR credential.
func (s *NotificationService) SendWelcome(ctx context.Context, req models.WelcomeEmailRequest) error {
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return appErrors.ErrMissingEmail
	}
	msg, err := s.compose(email, strings.TrimSpace(req.NombreCompleto), nil, "")
	if err != nil {
		s.metrics.RecordNotification(ChannelCallable, OutcomeFailure)
		return appErrors.Wrap(err, appErrors.ErrEmailDelivery.Code, appErrors.ErrEmailDelivery.Status, appErrors.ErrEmailDelivery.Message)
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.metrics.RecordNotification(ChannelCallable, OutcomeFailure)
		s.logger.Error("welcome email failed", zap.String("email", email), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrEmailDelivery.Code, appErrors.ErrEmailDelivery.Status, appErrors.ErrEmailDelivery.Message)
	}
	s.metrics.RecordNotification(ChannelCallable, OutcomeSuccess)
	return nil
}

// DeadLetters lists failed confirmations, newest first, with the number still queued.
func (s *NotificationService) DeadLetters(ctx context.Context, limit int64) ([]models.DeadLetter, int64, error) {
	if s.deadLetters == nil {
		return []models.DeadLetter{}, 0, nil
	}
	entries, err := s.deadLetters.List(ctx, NotificationQueue, limit)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list dead letters")
	}
	total, err := s.deadLetters.Length(ctx, NotificationQueue)
	if err != nil {
		s.logger.Warn("failed to count dead letters", zap.Error(err))
		total = int64(len(entries))
	}
	return entries, total, nil
}

// QRImage returns the registration's QR PNG, from the archive when present.
func (s *NotificationService) QRImage(ctx context.Context, registrationID string) ([]byte, error) {
	reg, err := s.repo.FindByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registro no encontrado")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	if !reg.HasToken() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "el registro aún no tiene código QR")
	}

	if s.store != nil {
		png, err := s.store.Get(ctx, QRObjectKey(reg.ID))
		if err == nil {
			return png, nil
		}
		if !errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.Warn("qr archive read failed, rendering again", zap.String("registration_id", reg.ID), zap.Error(err))
		}
	}

	png, err := s.qr.Render(s.qr.Payload(*reg.QRToken, reg.ID))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render qr")
	}
	s.archive(ctx, reg.ID, png)
	return png, nil
}

// SignedQRImage resolves a download link token into the QR PNG.
func (s *NotificationService) SignedQRImage(ctx context.Context, token string) ([]byte, error) {
	if s.signer == nil {
		return nil, appErrors.ErrNotFound
	}
	obj, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrSignedTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "el enlace de descarga expiró")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enlace de descarga inválido")
	}
	if obj.Key != QRObjectKey(obj.OwnerID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enlace de descarga inválido")
	}
	return s.QRImage(ctx, obj.OwnerID)
}

func (s *NotificationService) ensureToken(ctx context.Context, reg *models.Registration) (string, error) {
	if reg.HasToken() {
		s.logger.Info("reusing stored qr token", zap.String("registration_id", reg.ID))
		return *reg.QRToken, nil
	}

	token := s.qr.NewToken()
	stored, err := s.repo.AssignToken(ctx, reg.ID, token, s.now().UTC())
	if err != nil {
		return "", err
	}
	if stored {
		return token, nil
	}

	// another delivery won the write; send the token it stored
	current, err := s.repo.FindByID(ctx, reg.ID)
	if err != nil {
		return "", err
	}
	if !current.HasToken() {
		return "", errors.New("qr token was not stored")
	}
	return *current.QRToken, nil
}

func (s *NotificationService) archive(ctx context.Context, registrationID string, png []byte) {
	if s.store == nil {
		return
	}
	if err := s.store.Put(ctx, QRObjectKey(registrationID), png, pngContentType); err != nil {
		s.logger.Warn("qr archive failed", zap.String("registration_id", registrationID), zap.Error(err))
	}
}

func (s *NotificationService) downloadLink(registrationID string) string {
	if s.signer == nil || s.cfg.PublicBaseURL == "" || s.cfg.QRDownloadPath == "" {
		return ""
	}
	token, _, err := s.signer.Generate(registrationID, QRObjectKey(registrationID))
	if err != nil {
		s.logger.Warn("qr download link failed", zap.String("registration_id", registrationID), zap.Error(err))
		return ""
	}
	return s.signer.URL(s.cfg.PublicBaseURL, s.cfg.QRDownloadPath, token)
}

func (s *NotificationService) compose(email, nombre string, png []byte, link string) (mail.Message, error) {
	data := welcomeData{
		Nombre:         nombre,
		Event:          s.cfg.Event,
		HasQR:          len(png) > 0,
		AttachmentName: qrAttachmentName,
		QRLink:         link,
	}

	var html, text bytes.Buffer
	if err := welcomeHTML.Execute(&html, data); err != nil {
		return mail.Message{}, err
	}
	if err := welcomeText.Execute(&text, data); err != nil {
		return mail.Message{}, err
	}

	msg := mail.Message{
		ToAddress: email,
		ToName:    nombre,
		Subject:   "Confirmación de Registro - " + s.cfg.Event.Name,
		Text:      text.String(),
		HTML:      html.String(),
	}
	if data.HasQR {
		msg.Attachments = []mail.Attachment{{Filename: qrAttachmentName, ContentType: pngContentType, Content: png}}
	}
	return msg, nil
}

func (s *NotificationService) fail(ctx context.Context, msg events.Message, registrationID string, err error) {
	s.logger.Error("confirmation failed",
		zap.String("registration_id", registrationID),
		zap.String("message_id", msg.ID),
		zap.Error(err),
	)
	s.metrics.RecordNotification(ChannelTrigger, OutcomeFailure)
	if s.deadLetters == nil {
		return
	}
	payload := json.RawMessage(msg.Data)
	if !json.Valid(payload) {
		payload, _ = json.Marshal(string(msg.Data))
	}
	s.metrics.RecordDeadLetter()
	if dlqErr := s.deadLetters.Push(ctx, models.DeadLetter{
		Queue:    NotificationQueue,
		JobType:  msg.Topic,
		Payload:  payload,
		Reason:   err.Error(),
		FailedAt: s.now().UTC(),
		Attempts: 1,
	}); dlqErr != nil {
		s.logger.Error("dead letter push failed", zap.String("registration_id", registrationID), zap.Error(dlqErr))
	}
}
