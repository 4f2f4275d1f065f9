// Package events carries domain events between the HTTP layer and the
// background dispatchers.
package events

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/parade-registry-api/pkg/config"
)

// TopicRegistrationCreated is published once per stored registration.
const TopicRegistrationCreated = "registration.created"

// ErrNoSubscriber is returned when publishing to a topic nobody consumes.
var ErrNoSubscriber = errors.New("no subscriber for topic")

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Topic      string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message.
type Handler func(ctx context.Context, msg Message) error

// FailureHandler receives a message whose handler returned an error or
// panicked. Messages are never redelivered.
type FailureHandler func(ctx context.Context, msg Message, err error)

// Backend defines the broker operations used by the app.
type Backend interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
	// Subscribe registers the consumer for topic and returns once it is
	// receiving. Consumption stops when ctx is cancelled.
	Subscribe(ctx context.Context, topic string, handler Handler, onFailure FailureHandler) error
	Close() error
}

// invoke runs handler and turns a panic into an error.
func invoke(ctx context.Context, handler Handler, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, msg)
}

// New builds the configured backend.
func New(cfg config.EventsConfig, logger *zap.Logger) (Backend, error) {
	switch cfg.Backend {
	case "", config.EventsBackendMemory:
		return NewMemoryBackend(cfg, logger), nil
	case config.EventsBackendRabbitMQ:
		return NewRabbitMQBackend(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported events backend %q", cfg.Backend)
	}
}
