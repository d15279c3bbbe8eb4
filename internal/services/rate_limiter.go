package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/patrickmn/go-cache"
)

// EventRateLimiter caps inbound events per source in a fixed window.
// With Redis the window is shared across instances; without it (or when
// Redis errors) each instance counts on its own.
type EventRateLimiter struct {
	redis  *RedisService
	local  *cache.Cache
	window time.Duration
	limit  int
}

// NewEventRateLimiter creates a limiter allowing limit events per window. redis may be nil.
func NewEventRateLimiter(redis *RedisService, limit int, window time.Duration) *EventRateLimiter {
	return &EventRateLimiter{
		redis:  redis,
		local:  cache.New(window, 2*window),
		window: window,
		limit:  limit,
	}
}

// Allow counts one event for source and reports whether it may be processed
func (l *EventRateLimiter) Allow(ctx context.Context, source string) bool {
	if l.limit <= 0 || source == "" {
		return true
	}
	key := fmt.Sprintf("paranotes:ratelimit:%s", source)

	if l.redis != nil {
		_, exceeded, err := l.redis.CheckRateLimit(ctx, key, int64(l.limit), l.window)
		if err == nil {
			return !exceeded
		}
		log.Printf("⚠️  [RATE-LIMIT] Redis unavailable, counting locally: %v", err)
	}

	return l.allowLocal(key)
}

// allowLocal is a fixed window: the first hit creates a counter that expires with the window
func (l *EventRateLimiter) allowLocal(key string) bool {
	// Add fails when the window is already open, which is fine
	_ = l.local.Add(key, 0, l.window)
	count, err := l.local.IncrementInt(key, 1)
	if err != nil {
		// Expired between Add and Increment; start a new window
		l.local.Set(key, 1, l.window)
		return true
	}
	return count <= l.limit
}
