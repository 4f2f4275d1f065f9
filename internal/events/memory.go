package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/parade-registry-api/pkg/config"
	"github.com/noah-isme/parade-registry-api/pkg/jobs"
)

// MemoryBackend delivers messages in-process through a worker queue per topic.
// Messages are lost on restart.
type MemoryBackend struct {
	workers    int
	bufferSize int
	logger     *zap.Logger

	mu     sync.RWMutex
	queues map[string]*jobs.Queue
}

// NewMemoryBackend constructs an in-process backend.
func NewMemoryBackend(cfg config.EventsConfig, logger *zap.Logger) *MemoryBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryBackend{
		workers:    cfg.Workers,
		bufferSize: cfg.BufferSize,
		logger:     logger,
		queues:     make(map[string]*jobs.Queue),
	}
}

// Publish enqueues data for the topic's subscriber.
func (b *MemoryBackend) Publish(_ context.Context, topic string, data []byte, attrs map[string]string) (string, error) {
	b.mu.RLock()
	queue, ok := b.queues[topic]
	b.mu.RUnlock()
	if !ok {
		return "", ErrNoSubscriber
	}

	msg := Message{ID: uuid.NewString(), Topic: topic, Data: data, Attributes: attrs}
	if err := queue.Enqueue(jobs.Job{ID: msg.ID, Type: topic, Payload: msg}); err != nil {
		return "", err
	}
	return msg.ID, nil
}

// Subscribe starts workers for topic. The queue is running before it becomes
// visible to Publish. Only one subscriber per topic is supported.
func (b *MemoryBackend) Subscribe(ctx context.Context, topic string, handler Handler, onFailure FailureHandler) error {
	queue := jobs.NewQueue(topic, func(ctx context.Context, job jobs.Job) error {
		return handler(ctx, job.Payload.(Message))
	}, jobs.QueueConfig{
		Workers:    b.workers,
		BufferSize: b.bufferSize,
		Logger:     b.logger,
		OnFailure: func(ctx context.Context, job jobs.Job, err error) {
			if onFailure != nil {
				onFailure(ctx, job.Payload.(Message), err)
			}
		},
	})
	queue.Start(ctx)

	b.mu.Lock()
	previous := b.queues[topic]
	b.queues[topic] = queue
	b.mu.Unlock()
	if previous != nil {
		previous.Stop()
	}

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if b.queues[topic] == queue {
			delete(b.queues, topic)
		}
		b.mu.Unlock()
		queue.Stop()
	}()
	return nil
}

// Close stops every topic queue.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, queue := range b.queues {
		queue.Stop()
		delete(b.queues, topic)
	}
	return nil
}
