package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/parade-registry-api/internal/models"
)

// Redis key prefixes.
const (
	revokedTokenPrefix = "auth:revoked:"
	scanGatePrefix     = "scan:"
	rateLimitPrefix    = "ratelimit:"
	// DeadLetterPrefix namespaces dead letter lists per source queue.
	DeadLetterPrefix = "dlq:"
)

// SessionRepository tracks revoked access tokens in Redis.
type SessionRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewSessionRepository constructs a session repository.
func NewSessionRepository(client *redis.Client, logger *zap.Logger) *SessionRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionRepository{client: client, logger: logger}
}

// Revoke marks the token id revoked until ttl elapses.
func (r *SessionRepository) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if r.client == nil || ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, revokedTokenPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token id was revoked.
func (r *SessionRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if r.client == nil {
		return false, nil
	}
	n, err := r.client.Exists(ctx, revokedTokenPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("redis check revoked token: %w", err)
	}
	return n > 0, nil
}

// ScanGateRepository suppresses repeated submissions of the same code.
type ScanGateRepository struct {
	client *redis.Client
}

// NewScanGateRepository constructs a scan gate.
func NewScanGateRepository(client *redis.Client) *ScanGateRepository {
	return &ScanGateRepository{client: client}
}

// Acquire returns true when key was not seen within ttl.
func (r *ScanGateRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.client == nil || ttl <= 0 {
		return true, nil
	}
	ok, err := r.client.SetNX(ctx, scanGatePrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis scan gate: %w", err)
	}
	return ok, nil
}

// RateLimitRepository counts requests per key in fixed Redis windows.
type RateLimitRepository struct {
	client *redis.Client
}

// NewRateLimitRepository constructs a rate limit counter.
func NewRateLimitRepository(client *redis.Client) *RateLimitRepository {
	return &RateLimitRepository{client: client}
}

// Hit increments the counter for key and returns the count within the
// current window. The window starts at the first hit.
func (r *RateLimitRepository) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	if r.client == nil {
		return 0, nil
	}
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, rateLimitPrefix+key)
	pipe.ExpireNX(ctx, rateLimitPrefix+key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis rate limit: %w", err)
	}
	return incr.Val(), nil
}

// DeadLetterRepository keeps failed jobs in a Redis list per source queue.
type DeadLetterRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewDeadLetterRepository constructs a dead letter repository.
func NewDeadLetterRepository(client *redis.Client, logger *zap.Logger) *DeadLetterRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeadLetterRepository{client: client, logger: logger}
}

// Push stores entry at the head of its queue's dead letter list.
func (r *DeadLetterRepository) Push(ctx context.Context, entry models.DeadLetter) error {
	if r.client == nil {
		r.logger.Warn("dead letter dropped, redis unavailable", zap.String("queue", entry.Queue), zap.String("reason", entry.Reason))
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	if err := r.client.LPush(ctx, DeadLetterPrefix+entry.Queue, data).Err(); err != nil {
		return fmt.Errorf("redis push dead letter: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first.
func (r *DeadLetterRepository) List(ctx context.Context, queue string, limit int64) ([]models.DeadLetter, error) {
	if r.client == nil {
		return []models.DeadLetter{}, nil
	}
	if limit <= 0 {
		limit = 100
	}
	raw, err := r.client.LRange(ctx, DeadLetterPrefix+queue, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list dead letters: %w", err)
	}
	entries := make([]models.DeadLetter, 0, len(raw))
	for _, item := range raw {
		var entry models.DeadLetter
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			r.logger.Warn("skipping malformed dead letter", zap.String("queue", queue), zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Length returns the number of entries queued for queue.
func (r *DeadLetterRepository) Length(ctx context.Context, queue string) (int64, error) {
	if r.client == nil {
		return 0, nil
	}
	return r.client.LLen(ctx, DeadLetterPrefix+queue).Result()
}
