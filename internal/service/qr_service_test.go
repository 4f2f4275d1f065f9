package service

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQRServiceTokenIsUUID(t *testing.T) {
	svc := NewQRService(0)
	token := svc.NewToken()
	parsed, err := uuid.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
	assert.NotEqual(t, token, svc.NewToken())
}

func TestQRServicePayloadRoundTrip(t *testing.T) {
	svc := NewQRService(0)
	payload := svc.Payload("tok-1", "reg-1")
	assert.Equal(t, "tok-1|reg-1", payload)

	token, id, err := svc.ParsePayload("  " + payload + "\n")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, "reg-1", id)
}

func TestQRServiceParsePayloadInvalid(t *testing.T) {
	svc := NewQRService(0)
	for _, raw := range []string{"", "no-separator", "a|b|c", "|reg-1", "tok|", "   "} {
		_, _, err := svc.ParsePayload(raw)
		assert.ErrorIs(t, err, ErrInvalidQRFormat, raw)
	}
}

func TestQRServiceRenderPNG(t *testing.T) {
	svc := NewQRService(300)
	data, err := svc.Render("tok-1|reg-1")
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 300, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())
}

func TestDataURL(t *testing.T) {
	url := DataURL([]byte("png"))
	require.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), raw)
	assert.Equal(t, "qr/r1.png", QRObjectKey("r1"))
}
