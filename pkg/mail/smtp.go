package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/smtp"

	"github.com/jordan-wright/email"

	"github.com/noah-isme/parade-registry-api/pkg/config"
)

// SMTPSender delivers mail through a plain SMTP relay.
type SMTPSender struct {
	host     string
	user     string
	password string
	addr     string
	from     string
}

// NewSMTPSender wraps SMTP configuration.
func NewSMTPSender(cfg config.MailConfig) (*SMTPSender, error) {
	if cfg.SMTPHost == "" {
		return nil, errors.New("smtp host not configured")
	}
	from := cfg.From
	if from == "" {
		from = cfg.SMTPUser
	}
	if cfg.FromName != "" {
		from = (&mail.Address{Name: cfg.FromName, Address: from}).String()
	}
	return &SMTPSender{
		host:     cfg.SMTPHost,
		user:     cfg.SMTPUser,
		password: cfg.SMTPPassword,
		addr:     fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		from:     from,
	}, nil
}

// Send delivers msg. The context is only checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, err := s.build(msg)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if s.user != "" {
		auth = smtp.PlainAuth("", s.user, s.password, s.host)
	}
	if err := e.Send(s.addr, auth); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) build(msg Message) (*email.Email, error) {
	e := email.NewEmail()
	e.From = s.from
	to := msg.ToAddress
	if msg.ToName != "" {
		to = (&mail.Address{Name: msg.ToName, Address: msg.ToAddress}).String()
	}
	e.To = []string{to}
	e.Subject = msg.Subject
	e.Text = []byte(msg.Text)
	e.HTML = []byte(msg.HTML)

	for _, att := range msg.Attachments {
		if _, err := e.Attach(bytes.NewReader(att.Content), att.Filename, att.ContentType); err != nil {
			return nil, fmt.Errorf("smtp attach %s: %w", att.Filename, err)
		}
	}
	return e, nil
}
