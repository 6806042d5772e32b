// Package ratelimit implements the HTTP-facing rate_limit.{enable,window_ms,max}
// control from spec §6.4: a fixed-window counter per caller IP.
//
// Grounded on pkg/application/connectors/redis.go's go-redis wiring: the
// same *redis.Client the asynq modules already require is reused here via
// INCR+PEXPIRE so the limit is shared across replicas. A single-process
// in-memory implementation (Memory, a mutex-guarded map in the style the
// teacher uses for cache.ResultCache) is also provided, but the
// application does not install it: with rate_limit.enable set the Redis
// limiter is used, and otherwise no limit applies.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter reports whether one more request from key is allowed within the
// current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Memory is a single-process fixed-window limiter.
type Memory struct {
	window time.Duration
	max    int

	mu      sync.Mutex
	counts  map[string]int
	resetAt map[string]time.Time
	now     func() time.Time
}

func NewMemory(window time.Duration, max int) *Memory {
	return &Memory{
		window:  window,
		max:     max,
		counts:  make(map[string]int),
		resetAt: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if reset, ok := m.resetAt[key]; !ok || now.After(reset) {
		m.counts[key] = 0
		m.resetAt[key] = now.Add(m.window)
	}

	m.counts[key]++

	return m.counts[key] <= m.max, nil
}

// Redis is a multi-replica fixed-window limiter backed by INCR+PEXPIRE,
// sharing the same client the asynq maintenance modules connect with.
type Redis struct {
	client *redis.Client
	prefix string
	window time.Duration
	max    int
}

func NewRedis(client *redis.Client, prefix string, window time.Duration, max int) *Redis {
	return &Redis{client: client, prefix: prefix, window: window, max: max}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	fullKey := fmt.Sprintf("%s:%s", r.prefix, key)

	count, err := r.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return false, fmt.Errorf("redis.Incr: %w", err)
	}

	if count == 1 {
		if err := r.client.PExpire(ctx, fullKey, r.window).Err(); err != nil {
			return false, fmt.Errorf("redis.PExpire: %w", err)
		}
	}

	return count <= int64(r.max), nil
}
