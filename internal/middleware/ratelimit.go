package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/parade-registry-api/pkg/errors"
	"github.com/noah-isme/parade-registry-api/pkg/response"
)

// RateCounter counts hits per key within a window.
type RateCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimit rejects clients exceeding limit requests per window, keyed by
// client IP and route. Counter failures let the request through.
func RateLimit(counter RateCounter, limit int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if counter == nil || limit <= 0 {
			c.Next()
			return
		}
		key := c.ClientIP() + ":" + c.FullPath()
		count, err := counter.Hit(c.Request.Context(), key, window)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		if count > int64(limit) {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			response.Error(c, appErrors.Clone(appErrors.ErrTooManyRequests, "Demasiadas solicitudes. Intente nuevamente en un momento."))
			c.Abort()
			return
		}
		c.Next()
	}
}

type windowEntry struct {
	count     int64
	windowEnd time.Time
}

// MemoryRateCounter is a process local RateCounter for deployments without
// Redis.
type MemoryRateCounter struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	now     func() time.Time
}

// NewMemoryRateCounter constructs an in-process counter.
func NewMemoryRateCounter() *MemoryRateCounter {
	return &MemoryRateCounter{entries: make(map[string]*windowEntry), now: time.Now}
}

// Hit implements RateCounter. Expired windows are purged on access.
func (m *MemoryRateCounter) Hit(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry, ok := m.entries[key]
	if !ok || now.After(entry.windowEnd) {
		if len(m.entries) > 10000 {
			m.purge(now)
		}
		entry = &windowEntry{windowEnd: now.Add(window)}
		m.entries[key] = entry
	}
	entry.count++
	return entry.count, nil
}

func (m *MemoryRateCounter) purge(now time.Time) {
	for key, entry := range m.entries {
		if now.After(entry.windowEnd) {
			delete(m.entries, key)
		}
	}
}
