package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/parade-registry-api/internal/events"
	"github.com/noah-isme/parade-registry-api/internal/models"
	"github.com/noah-isme/parade-registry-api/pkg/config"
	appErrors "github.com/noah-isme/parade-registry-api/pkg/errors"
	"github.com/noah-isme/parade-registry-api/pkg/mail"
	"github.com/noah-isme/parade-registry-api/pkg/storage"
)

type mockSender struct {
	mu   sync.Mutex
	err  error
	sent []mail.Message
}

func (m *mockSender) Send(ctx context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

var testEventInfo = config.EventInfoConfig{
	Name:      "Pase del Niño Viajero 2025",
	Date:      "24 de diciembre de 2025",
	Venue:     "Santuario Mariano",
	Address:   "Av. 3 de Noviembre y Simón Bolivar, Cuenca - Ecuador",
	MapURL:    "https://www.google.com/maps?q=-2.89,-79.01",
	Organizer: "Santuario Mariano",
}

type notificationFixture struct {
	repo   *mockRegistrationRepo
	sender *mockSender
	store  *storage.LocalStorage
	signer *storage.SignedURLSigner
	dlq    *mockDeadLetters
	svc    *NotificationService
}

func newNotificationFixture(t *testing.T, items ...models.Registration) *notificationFixture {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	f := &notificationFixture{
		repo:   newMockRegistrationRepo(items...),
		sender: &mockSender{},
		store:  store,
		signer: storage.NewSignedURLSigner("qr-secret", time.Hour),
		dlq:    &mockDeadLetters{},
	}
	f.svc = NewNotificationService(f.repo, NewQRService(0), f.sender, f.store, f.signer, f.dlq, nil, NotificationConfig{
		Event:          testEventInfo,
		PublicBaseURL:  "https://pase.example.com",
		QRDownloadPath: "/api/v1/qr",
	}, nil)
	return f
}

func anaRegistration() models.Registration {
	return models.Registration{
		ID:                      "reg-ana",
		NombreCompleto:          "Ana Pérez",
		DocumentoIdentificacion: "0102030405",
		Email:                   "ana@example.com",
		Tematica:                "Otros: Ángeles",
		TipoVehiculo:            "SUV",
		Placa:                   "ABC123",
	}
}

func createdMessage(t *testing.T, id string) events.Message {
	t.Helper()
	data, err := json.Marshal(models.RegistrationCreatedEvent{RegistrationID: id})
	require.NoError(t, err)
	return events.Message{ID: "m-1", Topic: events.TopicRegistrationCreated, Data: data}
}

func TestDispatchAssignsTokenAndSendsQR(t *testing.T) {
	f := newNotificationFixture(t, anaRegistration())

	require.NoError(t, f.svc.HandleMessage(context.Background(), createdMessage(t, "reg-ana")))

	stored, err := f.repo.FindByID(context.Background(), "reg-ana")
	require.NoError(t, err)
	require.True(t, stored.HasToken())
	assert.NotNil(t, stored.QRGeneratedAt)
	assert.False(t, stored.Validado)

	require.Len(t, f.sender.sent, 1)
	msg := f.sender.sent[0]
	assert.Equal(t, "ana@example.com", msg.ToAddress)
	assert.Equal(t, "Confirmación de Registro - Pase del Niño Viajero 2025", msg.Subject)
	assert.Contains(t, msg.HTML, "¡Bendiciones, Ana Pérez!")
	assert.Contains(t, msg.HTML, "Tu Código QR de Acceso")
	assert.Contains(t, msg.HTML, "Este código QR es único y personal")
	assert.Contains(t, msg.Text, "Bendiciones Ana Pérez,")
	assert.Contains(t, msg.Text, "qr-code.png")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "qr-code.png", msg.Attachments[0].Filename)
	assert.Equal(t, "image/png", msg.Attachments[0].ContentType)
	assert.NotEmpty(t, msg.Attachments[0].Content)

	archived, err := f.store.Get(context.Background(), QRObjectKey("reg-ana"))
	require.NoError(t, err)
	assert.Equal(t, msg.Attachments[0].Content, archived)
	assert.Empty(t, f.dlq.entries)
}

func TestDispatchEmailLinksSignedDownload(t *testing.T) {
	f := newNotificationFixture(t, anaRegistration())
	require.NoError(t, f.svc.Dispatch(context.Background(), "reg-ana"))
	require.Len(t, f.sender.sent, 1)

	text := f.sender.sent[0].Text
	idx := strings.Index(text, "https://pase.example.com/api/v1/qr?token=")
	require.GreaterOrEqual(t, idx, 0)
	link := strings.Fields(text[idx:])[0]
	parsed, err := url.Parse(link)
	require.NoError(t, err)

	png, err := f.svc.SignedQRImage(context.Background(), parsed.Query().Get("token"))
	require.NoError(t, err)
	assert.Equal(t, f.sender.sent[0].Attachments[0].Content, png)
}

func TestDispatchReusesStoredToken(t *testing.T) {
	reg := anaRegistration()
	token := "existing-token"
	reg.QRToken = &token
	f := newNotificationFixture(t, reg)

	require.NoError(t, f.svc.Dispatch(context.Background(), "reg-ana"))
	require.NoError(t, f.svc.Dispatch(context.Background(), "reg-ana"))

	stored, err := f.repo.FindByID(context.Background(), "reg-ana")
	require.NoError(t, err)
	assert.Equal(t, "existing-token", *stored.QRToken)
	assert.Len(t, f.sender.sent, 2)
}

func TestDispatchSkipsRecordWithoutEmail(t *testing.T) {
	reg := anaRegistration()
	reg.Email = ""
	f := newNotificationFixture(t, reg)

	require.NoError(t, f.svc.Dispatch(context.Background(), "reg-ana"))
	stored, err := f.repo.FindByID(context.Background(), "reg-ana")
	require.NoError(t, err)
	assert.False(t, stored.HasToken())
	assert.Empty(t, f.sender.sent)
}

func TestHandleMessageDeadLettersFailures(t *testing.T) {
	f := newNotificationFixture(t, anaRegistration())
	f.sender.err = errors.New("sendgrid 401")

	require.NoError(t, f.svc.HandleMessage(context.Background(), createdMessage(t, "reg-ana")))
	require.Len(t, f.dlq.entries, 1)
	entry := f.dlq.entries[0]
	assert.Equal(t, NotificationQueue, entry.Queue)
	assert.Equal(t, events.TopicRegistrationCreated, entry.JobType)
	assert.Contains(t, entry.Reason, "sendgrid 401")
	assert.Contains(t, string(entry.Payload), "reg-ana")

	// the token stays assigned even though delivery failed
	stored, err := f.repo.FindByID(context.Background(), "reg-ana")
	require.NoError(t, err)
	assert.True(t, stored.HasToken())

	letters, total, err := f.svc.DeadLetters(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, letters, 1)
	assert.Equal(t, int64(1), total)
}

func TestHandleMessageMalformedPayload(t *testing.T) {
	f := newNotificationFixture(t)
	msg := events.Message{ID: "m-2", Topic: events.TopicRegistrationCreated, Data: []byte("not json")}

	require.NoError(t, f.svc.HandleMessage(context.Background(), msg))
	require.Len(t, f.dlq.entries, 1)
	assert.True(t, json.Valid(f.dlq.entries[0].Payload))
}

func TestHandleMessageUnknownRegistration(t *testing.T) {
	f := newNotificationFixture(t)
	require.NoError(t, f.svc.HandleMessage(context.Background(), createdMessage(t, "missing")))
	require.Len(t, f.dlq.entries, 1)
	assert.Empty(t, f.sender.sent)
}

func TestDeadLetterMessageRecordsPanickedDelivery(t *testing.T) {
	f := newNotificationFixture(t, anaRegistration())

	f.svc.DeadLetterMessage(context.Background(), createdMessage(t, "reg-ana"), errors.New("handler panicked: nil map"))
	require.Len(t, f.dlq.entries, 1)
	assert.Equal(t, NotificationQueue, f.dlq.entries[0].Queue)
	assert.Contains(t, f.dlq.entries[0].Reason, "handler panicked")
	assert.Contains(t, string(f.dlq.entries[0].Payload), "reg-ana")

	f.svc.DeadLetterMessage(context.Background(), events.Message{Topic: events.TopicRegistrationCreated, Data: []byte("garbage")}, errors.New("boom"))
	require.Len(t, f.dlq.entries, 2)
	assert.True(t, json.Valid(f.dlq.entries[0].Payload))
}

func TestSendWelcome(t *testing.T) {
	f := newNotificationFixture(t)

	err := f.svc.SendWelcome(context.Background(), models.WelcomeEmailRequest{Email: "  ", NombreCompleto: "Ana"})
	require.Error(t, err)
	assert.Equal(t, "Missing email", appErrors.FromError(err).Message)

	require.NoError(t, f.svc.SendWelcome(context.Background(), models.WelcomeEmailRequest{Email: "ana@example.com", NombreCompleto: "Ana"}))
	require.Len(t, f.sender.sent, 1)
	assert.Empty(t, f.sender.sent[0].Attachments)
	assert.NotContains(t, f.sender.sent[0].HTML, "Tu Código QR de Acceso")

	f.sender.err = errors.New("provider down")
	err = f.svc.SendWelcome(context.Background(), models.WelcomeEmailRequest{Email: "ana@example.com"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, "Error sending email", appErr.Message)
	assert.Equal(t, 500, appErr.Status)
}

func TestQRImageRequiresToken(t *testing.T) {
	f := newNotificationFixture(t, anaRegistration())

	_, err := f.svc.QRImage(context.Background(), "reg-ana")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = f.svc.QRImage(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestQRImageRendersWhenArchiveMissing(t *testing.T) {
	reg := anaRegistration()
	token := "tok"
	reg.QRToken = &token
	f := newNotificationFixture(t, reg)

	png, err := f.svc.QRImage(context.Background(), "reg-ana")
	require.NoError(t, err)
	assert.NotEmpty(t, png)

	archived, err := f.store.Get(context.Background(), QRObjectKey("reg-ana"))
	require.NoError(t, err)
	assert.Equal(t, png, archived)
}

func TestSignedQRImageRejectsBadTokens(t *testing.T) {
	f := newNotificationFixture(t, anaRegistration())

	_, err := f.svc.SignedQRImage(context.Background(), "garbage")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	other, _, err := f.signer.Generate("reg-ana", "exports/other.csv")
	require.NoError(t, err)
	_, err = f.svc.SignedQRImage(context.Background(), other)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
