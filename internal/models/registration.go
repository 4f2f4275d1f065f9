package models

import "time"

// Columns accepted by existence checks.
const (
	FieldDocumento = "documento_identificacion"
	FieldEmail     = "email"
)

// Registration is a vehicle entered in the parade.
type Registration struct {
	ID                      string     `db:"id" json:"id"`
	NombreCompleto          string     `db:"nombre_completo" json:"nombreCompleto"`
	DocumentoIdentificacion string     `db:"documento_identificacion" json:"documentoIdentificacion"`
	Telefono                string     `db:"telefono" json:"telefono"`
	Email                   string     `db:"email" json:"email"`
	Tematica                string     `db:"tematica" json:"tematica"`
	TipoVehiculo            string     `db:"tipo_vehiculo" json:"tipoVehiculo"`
	Placa                   string     `db:"placa" json:"placa"`
	FechaRegistro           time.Time  `db:"fecha_registro" json:"fechaRegistro"`
	QRToken                 *string    `db:"qr_token" json:"-"`
	QRGeneratedAt           *time.Time `db:"qr_generated_at" json:"qrGeneratedAt,omitempty"`
	Validado                bool       `db:"validado" json:"validado"`
	ValidadoAt              *time.Time `db:"validado_at" json:"validadoAt,omitempty"`
	ValidadoPor             *string    `db:"validado_por" json:"validadoPor,omitempty"`
}

// HasToken reports whether a QR token was assigned.
func (r *Registration) HasToken() bool {
	return r.QRToken != nil && *r.QRToken != ""
}

// RegistrationFilter narrows admin listings.
type RegistrationFilter struct {
	Documento string
}

// RegistrationStats summarises the registry for the admin dashboard.
type RegistrationStats struct {
	Total     int `db:"total" json:"total"`
	Validated int `db:"validated" json:"validados"`
	Pending   int `db:"pending" json:"pendientes"`
	WithToken int `db:"with_token" json:"conQR"`
}

// RegistrationCreatedEvent is published after a registration is stored.
type RegistrationCreatedEvent struct {
	RegistrationID string    `json:"registrationId"`
	Email          string    `json:"email"`
	NombreCompleto string    `json:"nombreCompleto"`
	CreatedAt      time.Time `json:"createdAt"`
}
