package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/parade-registry-api/internal/dto"
	"github.com/noah-isme/parade-registry-api/internal/events"
	"github.com/noah-isme/parade-registry-api/internal/models"
	"github.com/noah-isme/parade-registry-api/internal/repository"
	appErrors "github.com/noah-isme/parade-registry-api/pkg/errors"
)

// mockRegistrationRepo is an in-memory registration store shared by the
// service tests. Conditional writes behave like their SQL counterparts.
type mockRegistrationRepo struct {
	mu        sync.Mutex
	items     map[string]*models.Registration
	seq       int
	createErr error
	findErr   error
	existsErr error
	updateErr error
	markErr   error
	creates   int
}

func newMockRegistrationRepo(items ...models.Registration) *mockRegistrationRepo {
	repo := &mockRegistrationRepo{items: map[string]*models.Registration{}}
	for i := range items {
		item := items[i]
		repo.items[item.ID] = &item
	}
	return repo
}

func (m *mockRegistrationRepo) Create(ctx context.Context, reg *models.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.seq++
	m.creates++
	if reg.ID == "" {
		reg.ID = fmt.Sprintf("reg-%d", m.seq)
	}
	reg.FechaRegistro = time.Date(2025, 12, 1, 15, 0, 0, 0, time.UTC)
	copy := *reg
	m.items[reg.ID] = &copy
	return nil
}

func (m *mockRegistrationRepo) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	item, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *item
	return &copy, nil
}

func (m *mockRegistrationRepo) Exists(ctx context.Context, field, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	for _, item := range m.items {
		switch field {
		case models.FieldDocumento:
			if item.DocumentoIdentificacion == value {
				return true, nil
			}
		case models.FieldEmail:
			if strings.EqualFold(item.Email, value) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *mockRegistrationRepo) List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := []models.Registration{}
	for _, item := range m.items {
		if filter.Documento == "" || strings.Contains(item.DocumentoIdentificacion, filter.Documento) {
			items = append(items, *item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].FechaRegistro.After(items[j].FechaRegistro) })
	return items, nil
}

func (m *mockRegistrationRepo) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	item, ok := m.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	for column, value := range fields {
		v := value.(string)
		switch column {
		case "nombre_completo":
			item.NombreCompleto = v
		case "telefono":
			item.Telefono = v
		case "email":
			item.Email = v
		case "placa":
			item.Placa = v
		}
	}
	return nil
}

func (m *mockRegistrationRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

func (m *mockRegistrationRepo) AssignToken(ctx context.Context, id, token string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok || item.HasToken() {
		return false, nil
	}
	item.QRToken = &token
	item.QRGeneratedAt = &at
	item.Validado = false
	item.ValidadoAt = nil
	item.ValidadoPor = nil
	return true, nil
}

func (m *mockRegistrationRepo) MarkValidated(ctx context.Context, id, operator string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return false, m.markErr
	}
	item, ok := m.items[id]
	if !ok || item.Validado {
		return false, nil
	}
	item.Validado = true
	item.ValidadoAt = &at
	item.ValidadoPor = &operator
	return true, nil
}

func (m *mockRegistrationRepo) Stats(ctx context.Context) (*models.RegistrationStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.RegistrationStats{}
	for _, item := range m.items {
		stats.Total++
		if item.Validado {
			stats.Validated++
		} else {
			stats.Pending++
		}
		if item.HasToken() {
			stats.WithToken++
		}
	}
	return stats, nil
}

type mockPublisher struct {
	err      error
	messages []events.Message
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.messages = append(m.messages, events.Message{ID: "msg-1", Topic: topic, Data: data, Attributes: attrs})
	return "msg-1", nil
}

type mockDeadLetters struct {
	entries []models.DeadLetter
	listErr error
}

func (m *mockDeadLetters) Push(ctx context.Context, entry models.DeadLetter) error {
	m.entries = append([]models.DeadLetter{entry}, m.entries...)
	return nil
}

func (m *mockDeadLetters) List(ctx context.Context, queue string, limit int64) ([]models.DeadLetter, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := []models.DeadLetter{}
	for _, entry := range m.entries {
		if entry.Queue == queue {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (m *mockDeadLetters) Length(ctx context.Context, queue string) (int64, error) {
	var n int64
	for _, entry := range m.entries {
		if entry.Queue == queue {
			n++
		}
	}
	return n, nil
}

func validRegistrationRequest() dto.CreateRegistrationRequest {
	return dto.CreateRegistrationRequest{
		NombreCompleto:          "Ana Pérez",
		DocumentoIdentificacion: "0102030405",
		Telefono:                "0991234567",
		Email:                   "ana@example.com",
		Tematica:                "Otros",
		TematicaDetalle:         "Ángeles",
		TipoVehiculo:            "SUV",
		Placa:                   "abc123",
	}
}

func TestRegisterStoresAndPublishes(t *testing.T) {
	repo := newMockRegistrationRepo()
	publisher := &mockPublisher{}
	svc := NewRegistrationService(repo, publisher, &mockDeadLetters{}, nil, nil, nil)

	reg, err := svc.Register(context.Background(), validRegistrationRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, reg.ID)
	assert.Equal(t, "Otros: Ángeles", reg.Tematica)
	assert.Equal(t, "ABC123", reg.Placa)
	assert.False(t, reg.Validado)
	assert.Nil(t, reg.QRToken)

	require.Len(t, publisher.messages, 1)
	assert.Equal(t, events.TopicRegistrationCreated, publisher.messages[0].Topic)
	var evt models.RegistrationCreatedEvent
	require.NoError(t, json.Unmarshal(publisher.messages[0].Data, &evt))
	assert.Equal(t, reg.ID, evt.RegistrationID)
	assert.Equal(t, "ana@example.com", evt.Email)
}

func TestRegisterKeepsThemeWithoutDetail(t *testing.T) {
	repo := newMockRegistrationRepo()
	svc := NewRegistrationService(repo, nil, nil, nil, nil, nil)

	req := validRegistrationRequest()
	req.Tematica = "Nacimiento"
	req.TematicaDetalle = "ignored"
	reg, err := svc.Register(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Nacimiento", reg.Tematica)
}

func TestRegisterValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*dto.CreateRegistrationRequest)
		field  string
	}{
		{"short name", func(r *dto.CreateRegistrationRequest) { r.NombreCompleto = "Al" }, "nombreCompleto"},
		{"document too short", func(r *dto.CreateRegistrationRequest) { r.DocumentoIdentificacion = "1234567" }, "documentoIdentificacion"},
		{"document letters", func(r *dto.CreateRegistrationRequest) { r.DocumentoIdentificacion = "01020304AB" }, "documentoIdentificacion"},
		{"phone length", func(r *dto.CreateRegistrationRequest) { r.Telefono = "099123456" }, "telefono"},
		{"email", func(r *dto.CreateRegistrationRequest) { r.Email = "not-an-email" }, "email"},
		{"unknown theme", func(r *dto.CreateRegistrationRequest) { r.Tematica = "Halloween" }, "tematica"},
		{"unknown vehicle", func(r *dto.CreateRegistrationRequest) { r.TipoVehiculo = "Avión" }, "tipoVehiculo"},
		{"plate format", func(r *dto.CreateRegistrationRequest) { r.Placa = "AB1234" }, "placa"},
		{"missing detail", func(r *dto.CreateRegistrationRequest) { r.TematicaDetalle = "  " }, "tematicaDetalle"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMockRegistrationRepo()
			svc := NewRegistrationService(repo, nil, nil, nil, nil, nil)
			req := validRegistrationRequest()
			tc.mutate(&req)

			_, err := svc.Register(context.Background(), req)
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
			assert.Contains(t, appErr.Message, tc.field)
			assert.Zero(t, repo.creates)
		})
	}
}

func TestRegisterRejectsDuplicatesBeforeWrite(t *testing.T) {
	existing := models.Registration{ID: "reg-x", DocumentoIdentificacion: "0102030405", Email: "ANA@example.com"}

	cases := []struct {
		name   string
		mutate func(*dto.CreateRegistrationRequest)
		code   string
	}{
		{"both", func(r *dto.CreateRegistrationRequest) {}, appErrors.ErrDuplicateDocumentAndEmail.Code},
		{"document", func(r *dto.CreateRegistrationRequest) { r.Email = "otra@example.com" }, appErrors.ErrDuplicateDocument.Code},
		{"email", func(r *dto.CreateRegistrationRequest) { r.DocumentoIdentificacion = "0999999999" }, appErrors.ErrDuplicateEmail.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMockRegistrationRepo(existing)
			publisher := &mockPublisher{}
			svc := NewRegistrationService(repo, publisher, nil, nil, nil, nil)
			req := validRegistrationRequest()
			tc.mutate(&req)

			_, err := svc.Register(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
			assert.Equal(t, 409, appErrors.FromError(err).Status)
			assert.Zero(t, repo.creates)
			assert.Empty(t, publisher.messages)
		})
	}
}

func TestRegisterMapsUniqueViolation(t *testing.T) {
	repo := newMockRegistrationRepo()
	repo.createErr = repository.ErrDuplicateEmail
	svc := NewRegistrationService(repo, nil, nil, nil, nil, nil)

	_, err := svc.Register(context.Background(), validRegistrationRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateEmail.Code, appErrors.FromError(err).Code)
}

func TestRegisterDeadLettersPublishFailure(t *testing.T) {
	repo := newMockRegistrationRepo()
	dlq := &mockDeadLetters{}
	svc := NewRegistrationService(repo, &mockPublisher{err: errors.New("broker down")}, dlq, nil, nil, nil)

	reg, err := svc.Register(context.Background(), validRegistrationRequest())
	require.NoError(t, err)
	require.Len(t, dlq.entries, 1)
	assert.Equal(t, NotificationQueue, dlq.entries[0].Queue)
	assert.Equal(t, "broker down", dlq.entries[0].Reason)
	assert.Contains(t, string(dlq.entries[0].Payload), reg.ID)
}

func TestRegisterStoreFailure(t *testing.T) {
	repo := newMockRegistrationRepo()
	repo.existsErr = errors.New("db down")
	svc := NewRegistrationService(repo, nil, nil, nil, nil, nil)

	_, err := svc.Register(context.Background(), validRegistrationRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestGetRegistrationNotFound(t *testing.T) {
	svc := NewRegistrationService(newMockRegistrationRepo(), nil, nil, nil, nil, nil)
	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCatalogListsThemesAndVehicles(t *testing.T) {
	svc := NewRegistrationService(newMockRegistrationRepo(), nil, nil, nil, nil, nil)
	catalog := svc.Catalog()
	assert.Contains(t, catalog.Tematicas, "Otros")
	assert.Contains(t, catalog.TematicasConDetalle, "Pasajes bíblicos")
	assert.Contains(t, catalog.TiposVehiculo, "SUV")
}
