package models

import "time"

// ValidationStatus enumerates validation station outcomes.
type ValidationStatus string

const (
	ValidationSuccess          ValidationStatus = "success"
	ValidationInvalidFormat    ValidationStatus = "invalid_format"
	ValidationNotFound         ValidationStatus = "not_found"
	ValidationMismatch         ValidationStatus = "mismatch"
	ValidationAlreadyValidated ValidationStatus = "already_validated"
)

// ValidationRequest carries a scanned or typed QR payload.
type ValidationRequest struct {
	Codigo string `json:"codigo" binding:"required"`
}

// ValidationResult is shown to the operator after each attempt.
type ValidationResult struct {
	Valido      bool             `json:"valido"`
	Estado      ValidationStatus `json:"estado"`
	Titulo      string           `json:"titulo"`
	Mensaje     string           `json:"mensaje"`
	Registro    *Registration    `json:"registro,omitempty"`
	ValidadoAt  *time.Time       `json:"validadoAt,omitempty"`
	ValidadoPor *string          `json:"validadoPor,omitempty"`
}

// ValidationHistoryEntry is one past attempt by an operator.
type ValidationHistoryEntry struct {
	Valido         bool             `json:"valido"`
	Estado         ValidationStatus `json:"estado"`
	Mensaje        string           `json:"mensaje"`
	RegistrationID *string          `json:"registroId,omitempty"`
	Hora           time.Time        `json:"hora"`
}
