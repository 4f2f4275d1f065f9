package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/parade-registry-api/internal/models"
)

var registrationRowColumns = []string{"id", "nombre_completo", "documento_identificacion", "telefono", "email", "tematica", "tipo_vehiculo", "placa", "fecha_registro", "qr_token", "qr_generated_at", "validado", "validado_at", "validado_por"}

func TestCreateRegistrationAssignsIDAndTimestamp(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec("INSERT INTO vehicle_registrations").WillReturnResult(sqlmock.NewResult(1, 1))

	reg := &models.Registration{NombreCompleto: "Ana Pérez", DocumentoIdentificacion: "0102030405", Email: "ana@example.com"}
	require.NoError(t, repo.Create(context.Background(), reg))
	assert.NotEmpty(t, reg.ID)
	assert.False(t, reg.FechaRegistro.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRegistrationMapsUniqueViolation(t *testing.T) {
	cases := map[string]error{
		documentoUniqueIndex: ErrDuplicateDocumento,
		emailUniqueIndex:     ErrDuplicateEmail,
	}
	for constraint, want := range cases {
		t.Run(constraint, func(t *testing.T) {
			db, mock, cleanup := newMock(t)
			defer cleanup()
			repo := NewRegistrationRepository(db)

			mock.ExpectExec("INSERT INTO vehicle_registrations").
				WillReturnError(&pq.Error{Code: "23505", Constraint: constraint})

			err := repo.Create(context.Background(), &models.Registration{})
			assert.ErrorIs(t, err, want)
		})
	}
}

func TestFindRegistrationByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(registrationRowColumns).
		AddRow("r1", "Ana Pérez", "0102030405", "0991234567", "ana@example.com", "Otros: Ángeles", "SUV", "ABC123", now, "tok", now, false, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM vehicle_registrations WHERE id = $1 LIMIT 1")).
		WithArgs("r1").
		WillReturnRows(rows)

	reg, err := repo.FindByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "Otros: Ángeles", reg.Tematica)
	require.True(t, reg.HasToken())
	assert.Equal(t, "tok", *reg.QRToken)
	assert.Nil(t, reg.ValidadoAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindRegistrationByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery("FROM vehicle_registrations WHERE id").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListRegistrationsFiltersByDocumento(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(registrationRowColumns).
		AddRow("r1", "Ana", "0102030405", "0991234567", "ana@example.com", "Nacimiento", "SUV", "ABC123", now, nil, nil, false, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM vehicle_registrations WHERE documento_identificacion LIKE $1 ORDER BY fecha_registro DESC")).
		WithArgs("%0203%").
		WillReturnRows(rows)

	regs, err := repo.List(context.Background(), models.RegistrationFilter{Documento: " 0203 "})
	require.NoError(t, err)
	assert.Len(t, regs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRegistrationsEmpty(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM vehicle_registrations ORDER BY fecha_registro DESC")).
		WillReturnRows(sqlmock.NewRows(registrationRowColumns))

	regs, err := repo.List(context.Background(), models.RegistrationFilter{})
	require.NoError(t, err)
	assert.NotNil(t, regs)
	assert.Empty(t, regs)
}

func TestDeleteRegistration(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM vehicle_registrations WHERE id = $1")).
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM vehicle_registrations WHERE id = $1")).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "r1"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "gone"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRegistrationBuildsSortedSet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE vehicle_registrations SET placa = $1, telefono = $2 WHERE id = $3")).
		WithArgs("XYZ987", "0987654321", "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "r1", map[string]interface{}{"telefono": "0987654321", "placa": "XYZ987"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRegistrationRejectsProtectedColumns(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	err := repo.Update(context.Background(), "r1", map[string]interface{}{"qr_token": "forged"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationExists(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM vehicle_registrations WHERE documento_identificacion = $1)")).
		WithArgs("0102030405").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM vehicle_registrations WHERE LOWER(email) = LOWER($1))")).
		WithArgs("Ana@Example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := repo.Exists(context.Background(), models.FieldDocumento, "0102030405")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(context.Background(), models.FieldEmail, "Ana@Example.com")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.Exists(context.Background(), "telefono", "0991234567")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignTokenIsConditional(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND qr_token IS NULL")).
		WithArgs("r1", "tok", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND qr_token IS NULL")).
		WithArgs("r1", "tok2", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	stored, err := repo.AssignToken(context.Background(), "r1", "tok", at)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = repo.AssignToken(context.Background(), "r1", "tok2", at)
	require.NoError(t, err)
	assert.False(t, stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkValidatedIsConditional(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE vehicle_registrations SET validado = TRUE, validado_at = $2, validado_por = $3 WHERE id = $1 AND validado = FALSE")).
		WithArgs("r1", at, "Puerta Norte").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("AND validado = FALSE").
		WithArgs("r1", at, "Puerta Sur").
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := repo.MarkValidated(context.Background(), "r1", "Puerta Norte", at)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.MarkValidated(context.Background(), "r1", "Puerta Sur", at)
	require.NoError(t, err)
	assert.False(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkValidatedPropagatesErrors(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec("AND validado = FALSE").WillReturnError(errors.New("connection reset"))

	_, err := repo.MarkValidated(context.Background(), "r1", "op", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRegistrationStats(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery("FROM vehicle_registrations").
		WillReturnRows(sqlmock.NewRows([]string{"total", "validated", "pending", "with_token"}).AddRow(10, 4, 6, 9))

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStats{Total: 10, Validated: 4, Pending: 6, WithToken: 9}, *stats)
}
