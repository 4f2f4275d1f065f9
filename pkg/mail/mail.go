package mail

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/parade-registry-api/pkg/config"
)

// Attachment is a file carried by a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is a provider agnostic transactional email.
type Message struct {
	ToAddress   string
	ToName      string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

// Sender delivers messages through a concrete provider.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New builds the sender selected by cfg.Provider.
func New(cfg config.MailConfig, logger *zap.Logger) (Sender, error) {
	switch cfg.Provider {
	case config.MailProviderSendGrid:
		return NewSendGridSender(cfg)
	case config.MailProviderSMTP:
		return NewSMTPSender(cfg)
	case "", config.MailProviderLog:
		return NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("unsupported mail provider %q", cfg.Provider)
	}
}
