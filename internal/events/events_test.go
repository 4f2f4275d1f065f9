package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/parade-registry-api/pkg/config"
)

func TestMemoryBackendDeliversToSubscriber(t *testing.T) {
	backend := NewMemoryBackend(config.EventsConfig{Workers: 1}, nil)
	defer backend.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Message, 1)
	require.NoError(t, backend.Subscribe(ctx, TopicRegistrationCreated, func(_ context.Context, msg Message) error {
		received <- msg
		return nil
	}, nil))

	// the subscriber is live as soon as Subscribe returns
	_, err := backend.Publish(context.Background(), TopicRegistrationCreated, []byte(`{"registrationId":"r1"}`), map[string]string{"source": "test"})
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, TopicRegistrationCreated, msg.Topic)
		assert.JSONEq(t, `{"registrationId":"r1"}`, string(msg.Data))
		assert.Equal(t, "test", msg.Attributes["source"])
		assert.NotEmpty(t, msg.ID)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestMemoryBackendHandsFailuresToCallback(t *testing.T) {
	backend := NewMemoryBackend(config.EventsConfig{Workers: 1}, nil)
	defer backend.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	failed := make(chan error, 2)
	require.NoError(t, backend.Subscribe(ctx, TopicRegistrationCreated, func(context.Context, Message) error {
		atomic.AddInt32(&calls, 1)
		panic("template missing")
	}, func(_ context.Context, msg Message, err error) {
		assert.JSONEq(t, `{"registrationId":"r2"}`, string(msg.Data))
		failed <- err
	}))

	_, err := backend.Publish(context.Background(), TopicRegistrationCreated, []byte(`{"registrationId":"r2"}`), nil)
	require.NoError(t, err)

	select {
	case err := <-failed:
		assert.Contains(t, err.Error(), "template missing")
	case <-time.After(time.Second):
		t.Fatal("failure callback not invoked")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, failed)
}

func TestMemoryBackendUnsubscribesOnCancel(t *testing.T) {
	backend := NewMemoryBackend(config.EventsConfig{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, backend.Subscribe(ctx, TopicRegistrationCreated, func(context.Context, Message) error { return nil }, nil))
	cancel()

	require.Eventually(t, func() bool {
		_, err := backend.Publish(context.Background(), TopicRegistrationCreated, []byte("{}"), nil)
		return errors.Is(err, ErrNoSubscriber)
	}, time.Second, 5*time.Millisecond)
}

func TestInvokeRecoversPanics(t *testing.T) {
	err := invoke(context.Background(), func(context.Context, Message) error { panic("boom") }, Message{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	assert.NoError(t, invoke(context.Background(), func(context.Context, Message) error { return nil }, Message{}))
}

func TestMemoryBackendWithoutSubscriber(t *testing.T) {
	backend := NewMemoryBackend(config.EventsConfig{}, nil)
	_, err := backend.Publish(context.Background(), TopicRegistrationCreated, []byte("{}"), nil)
	assert.ErrorIs(t, err, ErrNoSubscriber)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New(config.EventsConfig{Backend: "kafka"}, nil)
	assert.Error(t, err)

	_, err = New(config.EventsConfig{Backend: config.EventsBackendRabbitMQ}, nil)
	assert.Error(t, err)
}

func TestHeadersToAttributes(t *testing.T) {
	attrs := headersToAttributes(amqp.Table{"a": "x", "b": []byte("y"), "c": int32(3)})
	assert.Equal(t, map[string]string{"a": "x", "b": "y", "c": "3"}, attrs)
	assert.Nil(t, headersToAttributes(nil))
	assert.Equal(t, "parade.events.registration.created", queueName(defaultExchange, TopicRegistrationCreated))
}
