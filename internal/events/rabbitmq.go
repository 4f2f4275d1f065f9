package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/noah-isme/parade-registry-api/pkg/config"
)

const defaultExchange = "parade.events"

// RabbitMQBackend publishes to a durable direct exchange and consumes one
// durable queue per topic.
type RabbitMQBackend struct {
	conn     *amqp.Connection
	exchange string
	prefetch int
	logger   *zap.Logger

	mu      sync.Mutex
	channel *amqp.Channel
}

// NewRabbitMQBackend dials the broker and declares the exchange.
func NewRabbitMQBackend(cfg config.EventsConfig, logger *zap.Logger) (*RabbitMQBackend, error) {
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = defaultExchange
	}

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	prefetch := cfg.Workers
	if prefetch <= 0 {
		prefetch = 1
	}

	return &RabbitMQBackend{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		prefetch: prefetch,
		logger:   logger,
	}, nil
}

// Publish sends a persistent message routed by topic.
func (r *RabbitMQBackend) Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(topic) == "" {
		return "", errors.New("rabbitmq topic is required")
	}

	headers := amqp.Table{}
	for key, value := range attrs {
		headers[key] = value
	}

	messageID := uuid.NewString()
	r.mu.Lock()
	err := r.channel.PublishWithContext(ctx, r.exchange, topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Headers:      headers,
		Body:         data,
	})
	r.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", topic, err)
	}
	return messageID, nil
}

// Subscribe declares and binds the topic queue, starts consuming on a
// dedicated channel and returns. Failed deliveries go to onFailure and are
// nacked without requeue.
func (r *RabbitMQBackend) Subscribe(ctx context.Context, topic string, handler Handler, onFailure FailureHandler) error {
	if strings.TrimSpace(topic) == "" {
		return errors.New("rabbitmq topic is required")
	}

	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	if err := ch.Qos(r.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}
	queue := queueName(r.exchange, topic)
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, topic, r.exchange, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}

	consumerTag := "consumer-" + uuid.NewString()
	deliveries, err := ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	go func() {
		defer ch.Close() //nolint:errcheck
		defer func() {
			_ = ch.Cancel(consumerTag, false)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					r.logger.Error("rabbitmq delivery channel closed", zap.String("topic", topic))
					return
				}
				msg := Message{
					ID:         delivery.MessageId,
					Topic:      delivery.RoutingKey,
					Data:       delivery.Body,
					Attributes: headersToAttributes(delivery.Headers),
				}
				if err := invoke(ctx, handler, msg); err != nil {
					r.logger.Warn("event handler failed", zap.String("topic", topic), zap.String("message_id", msg.ID), zap.Error(err))
					if onFailure != nil {
						onFailure(ctx, msg, err)
					}
					_ = delivery.Nack(false, false)
					continue
				}
				_ = delivery.Ack(false)
			}
		}
	}()
	return nil
}

// Close closes the publishing channel and the connection.
func (r *RabbitMQBackend) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func queueName(exchange, topic string) string {
	return exchange + "." + topic
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}
