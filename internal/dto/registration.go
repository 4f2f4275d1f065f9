package dto

// CreateRegistrationRequest is the public registration form payload.
type CreateRegistrationRequest struct {
	NombreCompleto          string `json:"nombreCompleto" validate:"required,min=3"`
	DocumentoIdentificacion string `json:"documentoIdentificacion" validate:"required,documento"`
	Telefono                string `json:"telefono" validate:"required,telefono"`
	Email                   string `json:"email" validate:"required,email"`
	Tematica                string `json:"tematica" validate:"required,tematica"`
	TematicaDetalle         string `json:"tematicaDetalle"`
	TipoVehiculo            string `json:"tipoVehiculo" validate:"required,tipovehiculo"`
	Placa                   string `json:"placa" validate:"required,placa"`
}

// CreateRegistrationResponse is returned after a successful registration.
type CreateRegistrationResponse struct {
	ID            string `json:"id"`
	Tematica      string `json:"tematica"`
	FechaRegistro string `json:"fechaRegistro"`
}

// UpdateRegistrationRequest corrects contact data from the admin panel.
// Nil fields are left untouched.
type UpdateRegistrationRequest struct {
	NombreCompleto *string `json:"nombreCompleto" validate:"omitempty,min=3"`
	Telefono       *string `json:"telefono" validate:"omitempty,telefono"`
	Email          *string `json:"email" validate:"omitempty,email"`
	Placa          *string `json:"placa" validate:"omitempty,placa"`
}

// RegistrationQuery filters admin listings and exports.
type RegistrationQuery struct {
	Documento string `form:"documento"`
}

// DeleteRegistrationQuery carries the explicit deletion confirmation.
type DeleteRegistrationQuery struct {
	Confirm bool `form:"confirm"`
}
