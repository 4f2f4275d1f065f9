package service

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	qrPayloadSeparator = "|"
	defaultQRSize      = 300
)

// ErrInvalidQRFormat is returned when a scanned payload is not "<token>|<id>".
var ErrInvalidQRFormat = errors.New("invalid qr payload format")

// QRService issues tokens and renders the QR credential.
type QRService struct {
	size int
}

// NewQRService builds a QRService rendering square images of size pixels.
func NewQRService(size int) *QRService {
	if size <= 0 {
		size = defaultQRSize
	}
	return &QRService{size: size}
}

// NewToken returns a random UUID v4 token.
func (s *QRService) NewToken() string {
	return uuid.NewString()
}

// Payload joins token and registration id. The separator is not escaped;
// tokens are UUIDs and ids are generated, neither contains it.
func (s *QRService) Payload(token, registrationID string) string {
	return token + qrPayloadSeparator + registrationID
}

// ParsePayload splits a scanned payload into token and registration id.
func (s *QRService) ParsePayload(raw string) (string, string, error) {
	parts := strings.Split(strings.TrimSpace(raw), qrPayloadSeparator)
	if len(parts) != 2 {
		return "", "", ErrInvalidQRFormat
	}
	token, id := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if token == "" || id == "" {
		return "", "", ErrInvalidQRFormat
	}
	return token, id, nil
}

// Render encodes payload as a PNG with high error correction.
func (s *QRService) Render(payload string) ([]byte, error) {
	png, err := qrcode.Encode(payload, qrcode.High, s.size)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return png, nil
}

// DataURL embeds a PNG as a data URL.
func DataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

// QRObjectKey is where a registration's QR image is archived.
func QRObjectKey(registrationID string) string {
	return "qr/" + registrationID + ".png"
}
