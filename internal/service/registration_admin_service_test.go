package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/parade-registry-api/internal/dto"
	"github.com/noah-isme/parade-registry-api/internal/models"
	"github.com/noah-isme/parade-registry-api/internal/repository"
	appErrors "github.com/noah-isme/parade-registry-api/pkg/errors"
)

func strPtr(v string) *string { return &v }

func seededAdminRepo() *mockRegistrationRepo {
	older := anaRegistration()
	older.FechaRegistro = time.Date(2025, 11, 30, 10, 0, 0, 0, time.UTC)
	newer := models.Registration{
		ID:                      "reg-luis",
		NombreCompleto:          "Luis Mora",
		DocumentoIdentificacion: "0911122233",
		Email:                   "luis@example.com",
		Placa:                   "XYZ789",
		FechaRegistro:           time.Date(2025, 12, 2, 10, 0, 0, 0, time.UTC),
	}
	return newMockRegistrationRepo(older, newer)
}

func TestAdminListFiltersByDocument(t *testing.T) {
	svc := NewRegistrationAdminService(seededAdminRepo(), nil, nil, nil)

	all, err := svc.List(context.Background(), models.RegistrationFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "reg-luis", all[0].ID)

	filtered, err := svc.List(context.Background(), models.RegistrationFilter{Documento: " 0102 "})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "reg-ana", filtered[0].ID)
}

func TestAdminUpdateContactFields(t *testing.T) {
	repo := seededAdminRepo()
	audit := &mockAuditRepo{}
	svc := NewRegistrationAdminService(repo, audit, nil, nil)

	updated, err := svc.Update(context.Background(), "reg-ana", dto.UpdateRegistrationRequest{
		Telefono: strPtr("0987654321"),
		Placa:    strPtr(" pbc456 "),
	}, Actor{UserID: "u-1", Username: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "0987654321", updated.Telefono)
	assert.Equal(t, "PBC456", updated.Placa)
	assert.Equal(t, "Ana Pérez", updated.NombreCompleto)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionRegistrationUpdate, audit.logs[0].Action)
	var changed map[string]string
	require.NoError(t, json.Unmarshal(audit.logs[0].NewValues, &changed))
	assert.Equal(t, "PBC456", changed["placa"])
}

func TestAdminUpdateRejections(t *testing.T) {
	repo := seededAdminRepo()
	svc := NewRegistrationAdminService(repo, nil, nil, nil)

	_, err := svc.Update(context.Background(), "reg-ana", dto.UpdateRegistrationRequest{}, Actor{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Update(context.Background(), "reg-ana", dto.UpdateRegistrationRequest{Placa: strPtr("12ABC")}, Actor{})
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Message, "placa")

	_, err = svc.Update(context.Background(), "missing", dto.UpdateRegistrationRequest{Telefono: strPtr("0987654321")}, Actor{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	repo.updateErr = repository.ErrDuplicateEmail
	_, err = svc.Update(context.Background(), "reg-ana", dto.UpdateRegistrationRequest{Email: strPtr("luis@example.com")}, Actor{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateEmail.Code, appErrors.FromError(err).Code)
}

func TestAdminDeleteRequiresConfirmation(t *testing.T) {
	repo := seededAdminRepo()
	audit := &mockAuditRepo{}
	svc := NewRegistrationAdminService(repo, audit, nil, nil)

	err := svc.Delete(context.Background(), "reg-ana", false, Actor{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	_, err = repo.FindByID(context.Background(), "reg-ana")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "reg-ana", true, Actor{UserID: "u-1"}))
	_, err = svc.Get(context.Background(), "reg-ana")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionRegistrationDelete, audit.logs[0].Action)
	assert.NotContains(t, string(audit.logs[0].OldValues), "qrToken")

	err = svc.Delete(context.Background(), "reg-ana", true, Actor{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAdminStats(t *testing.T) {
	repo := seededAdminRepo()
	token := "tok"
	repo.items["reg-ana"].QRToken = &token
	repo.items["reg-ana"].Validado = true
	svc := NewRegistrationAdminService(repo, nil, nil, nil)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStats{Total: 2, Validated: 1, Pending: 1, WithToken: 1}, *stats)
}
