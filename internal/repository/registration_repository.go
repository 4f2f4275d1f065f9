package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/parade-registry-api/internal/models"
)

const registrationColumns = `id, nombre_completo, documento_identificacion, telefono, email, tematica, tipo_vehiculo, placa, fecha_registro, qr_token, qr_generated_at, validado, validado_at, validado_por`

// Unique index names from the initial migration.
const (
	documentoUniqueIndex = "ux_vehicle_registrations_documento"
	emailUniqueIndex     = "ux_vehicle_registrations_email"
)

var (
	// ErrDuplicateDocumento reports a unique violation on the document column.
	ErrDuplicateDocumento = errors.New("documento already registered")
	// ErrDuplicateEmail reports a unique violation on the email column.
	ErrDuplicateEmail = errors.New("email already registered")
)

// updatableRegistrationColumns lists the columns Update may touch.
var updatableRegistrationColumns = map[string]bool{
	"nombre_completo": true,
	"telefono":        true,
	"email":           true,
	"placa":           true,
	"tematica":        true,
	"tipo_vehiculo":   true,
}

// RegistrationRepository provides database access for vehicle registrations.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository creates a new instance of RegistrationRepository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// Create inserts a registration assigning its id and registration timestamp.
func (r *RegistrationRepository) Create(ctx context.Context, reg *models.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	reg.FechaRegistro = time.Now().UTC()

	const query = `INSERT INTO vehicle_registrations (id, nombre_completo, documento_identificacion, telefono, email, tematica, tipo_vehiculo, placa, fecha_registro, validado) VALUES (:id, :nombre_completo, :documento_identificacion, :telefono, :email, :tematica, :tipo_vehiculo, :placa, :fecha_registro, FALSE)`
	if _, err := r.db.NamedExecContext(ctx, query, reg); err != nil {
		if dup := duplicateError(err); dup != nil {
			return dup
		}
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

// FindByID returns a registration by identifier.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM vehicle_registrations WHERE id = $1 LIMIT 1`
	var reg models.Registration
	if err := r.db.GetContext(ctx, &reg, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find registration by id: %w", err)
	}
	return &reg, nil
}

// List returns all registrations, newest first, optionally filtered by a
// document substring.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM vehicle_registrations`
	var args []interface{}
	if doc := strings.TrimSpace(filter.Documento); doc != "" {
		query += ` WHERE documento_identificacion LIKE $1`
		args = append(args, "%"+escapeLike(doc)+"%")
	}
	query += ` ORDER BY fecha_registro DESC`

	regs := []models.Registration{}
	if err := r.db.SelectContext(ctx, &regs, query, args...); err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return regs, nil
}

// Delete removes a registration. sql.ErrNoRows is returned when absent.
func (r *RegistrationRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM vehicle_registrations WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	return expectAffected(res, "delete registration")
}

// Update applies a partial update restricted to the mutable contact columns.
func (r *RegistrationRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	columns := make([]string, 0, len(fields))
	for column := range fields {
		if !updatableRegistrationColumns[column] {
			return fmt.Errorf("update registration: column %q is not updatable", column)
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)

	sets := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns)+1)
	for i, column := range columns {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, i+1))
		args = append(args, fields[column])
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE vehicle_registrations SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return dup
		}
		return fmt.Errorf("update registration: %w", err)
	}
	return expectAffected(res, "update registration")
}

// Exists reports whether any registration holds value in field. Emails
// compare case-insensitively.
func (r *RegistrationRepository) Exists(ctx context.Context, field, value string) (bool, error) {
	var query string
	switch field {
	case models.FieldDocumento:
		query = `SELECT EXISTS(SELECT 1 FROM vehicle_registrations WHERE documento_identificacion = $1)`
	case models.FieldEmail:
		query = `SELECT EXISTS(SELECT 1 FROM vehicle_registrations WHERE LOWER(email) = LOWER($1))`
	default:
		return false, fmt.Errorf("exists: unsupported field %q", field)
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, value); err != nil {
		return false, fmt.Errorf("registration exists by %s: %w", field, err)
	}
	return exists, nil
}

// AssignToken stores the QR token only if none was assigned yet. The boolean
// reports whether this call stored it.
func (r *RegistrationRepository) AssignToken(ctx context.Context, id, token string, at time.Time) (bool, error) {
	const query = `UPDATE vehicle_registrations SET qr_token = $2, qr_generated_at = $3, validado = FALSE, validado_at = NULL, validado_por = NULL WHERE id = $1 AND qr_token IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, token, at)
	if err != nil {
		return false, fmt.Errorf("assign qr token: %w", err)
	}
	return affectedOne(res, "assign qr token")
}

// MarkValidated flips validado to true once. The boolean reports whether this
// call performed the transition.
func (r *RegistrationRepository) MarkValidated(ctx context.Context, id, operator string, at time.Time) (bool, error) {
	const query = `UPDATE vehicle_registrations SET validado = TRUE, validado_at = $2, validado_por = $3 WHERE id = $1 AND validado = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, at, operator)
	if err != nil {
		return false, fmt.Errorf("mark registration validated: %w", err)
	}
	return affectedOne(res, "mark registration validated")
}

// Stats aggregates counters for the admin dashboard.
func (r *RegistrationRepository) Stats(ctx context.Context) (*models.RegistrationStats, error) {
	const query = `SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE validado) AS validated, COUNT(*) FILTER (WHERE NOT validado) AS pending, COUNT(qr_token) AS with_token FROM vehicle_registrations`
	var stats models.RegistrationStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("registration stats: %w", err)
	}
	return &stats, nil
}

func duplicateError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return nil
	}
	switch pqErr.Constraint {
	case documentoUniqueIndex:
		return ErrDuplicateDocumento
	case emailUniqueIndex:
		return ErrDuplicateEmail
	}
	return nil
}

func expectAffected(res sql.Result, op string) error {
	ok, err := affectedOne(res, op)
	if err != nil {
		return err
	}
	if !ok {
		return sql.ErrNoRows
	}
	return nil
}

func affectedOne(res sql.Result, op string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return n > 0, nil
}

func escapeLike(v string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(v)
}
