package mail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/noah-isme/parade-registry-api/pkg/config"
)

// SendGridSender delivers mail through the SendGrid v3 API.
type SendGridSender struct {
	apiKey   string
	from     string
	fromName string
	// baseURL overrides the API endpoint, used by tests.
	baseURL string
}

// NewSendGridSender validates the key and sender address.
func NewSendGridSender(cfg config.MailConfig) (*SendGridSender, error) {
	if cfg.SendGridKey == "" {
		return nil, errors.New("sendgrid key not configured")
	}
	if cfg.From == "" {
		return nil, errors.New("sendgrid sender address not configured")
	}
	return &SendGridSender{apiKey: cfg.SendGridKey, from: cfg.From, fromName: cfg.FromName}, nil
}

// Send posts the message to SendGrid. Any non-2xx response is an error.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	client := sendgrid.NewSendClient(s.apiKey)
	if s.baseURL != "" {
		client.BaseURL = s.baseURL
	}

	resp, err := client.SendWithContext(ctx, s.build(msg))
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: unexpected status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func (s *SendGridSender) build(msg Message) *sgmail.SGMailV3 {
	from := sgmail.NewEmail(s.fromName, s.from)
	to := sgmail.NewEmail(msg.ToName, msg.ToAddress)
	m := sgmail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)
	for _, att := range msg.Attachments {
		a := sgmail.NewAttachment()
		a.SetContent(base64.StdEncoding.EncodeToString(att.Content))
		a.SetType(att.ContentType)
		a.SetFilename(att.Filename)
		a.SetDisposition("attachment")
		m.AddAttachment(a)
	}
	return m
}
