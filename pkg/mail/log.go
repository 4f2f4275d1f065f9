package mail

import (
	"context"

	"go.uber.org/zap"
)

// LogSender writes messages to the logger instead of delivering them.
// Used in development when no provider is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender builds a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the envelope of msg.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	names := make([]string, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		names = append(names, att.Filename)
	}
	s.logger.Info("email not delivered, log provider active",
		zap.String("to", msg.ToAddress),
		zap.String("subject", msg.Subject),
		zap.Strings("attachments", names),
		zap.Int("html_bytes", len(msg.HTML)),
	)
	return nil
}
