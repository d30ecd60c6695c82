// Package ratelimit bounds generation calls per caller with a fixed
// one-minute window. This is local policy, distinct from provider-side 429s:
// a denial here rejects the request before any cache slot or provider call is
// consumed.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/infrawatch/ai-agent/internal/metrics"
)

// ErrRateLimited is the local policy rejection, surfaced to the caller as a
// throttling message and never retried automatically.
var ErrRateLimited = errors.New("ratelimit: too many requests")

// Limiter decides whether a caller may issue another generation call
type Limiter interface {
	Allow(ctx context.Context, callerID string) (bool, error)
}

// MemoryLimiter is an in-process fixed-window counter per caller. The window
// resets on wall-clock minute boundaries, so a request at second 61 lands in
// a fresh window regardless of traffic in the previous one.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

func NewMemoryLimiter(requestsPerMinute int) *MemoryLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &MemoryLimiter{
		limit:   requestsPerMinute,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow consumes one slot for the caller if the current window has capacity.
func (l *MemoryLimiter) Allow(_ context.Context, callerID string) (bool, error) {
	now := l.now()
	start := now.Truncate(time.Minute)

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[callerID]
	if !ok || w.start.Before(start) {
		w = &window{start: start}
		l.windows[callerID] = w
	}
	if w.count >= l.limit {
		metrics.RateLimitDenials.WithLabelValues(callerID).Inc()
		return false, nil
	}
	w.count++
	return true, nil
}

// RedisLimiter is the shared-store variant: one INCR+EXPIRE pipeline per
// check, keyed on caller and window start.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	logger *zap.Logger
}

func NewRedisLimiter(client *redis.Client, requestsPerMinute int, logger *zap.Logger) *RedisLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLimiter{client: client, limit: requestsPerMinute, logger: logger}
}

func (l *RedisLimiter) Allow(ctx context.Context, callerID string) (bool, error) {
	window := time.Now().Truncate(time.Minute)
	key := fmt.Sprintf("ratelimit:%s:%d", callerID, window.Unix())

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, time.Minute+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open: a broken limiter store must not take chat down
		l.logger.Error("Rate limit check failed", zap.Error(err))
		return true, nil
	}

	if incr.Val() > int64(l.limit) {
		metrics.RateLimitDenials.WithLabelValues(callerID).Inc()
		return false, nil
	}
	return true, nil
}
