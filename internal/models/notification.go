package models

import (
	"encoding/json"
	"time"
)

// WelcomeEmailRequest triggers a confirmation email without a QR attachment.
type WelcomeEmailRequest struct {
	Email          string `json:"email" form:"email"`
	NombreCompleto string `json:"nombreCompleto" form:"nombreCompleto"`
}

// DeadLetter is a notification that could not be delivered.
type DeadLetter struct {
	Queue    string          `json:"queue"`
	JobType  string          `json:"job_type"`
	Payload  json.RawMessage `json:"payload"`
	Reason   string          `json:"reason"`
	FailedAt time.Time       `json:"failed_at"`
	Attempts int             `json:"attempts"`
}
