/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix is the default prefix for the Redis keys of the counters.
const DefaultRedisKeyPrefix = "mobgames:ratelimit:"

// Returns {allowed, count, ttl in milliseconds}. A rejected request doesn't increment the counter.
var fixedWindowScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local ttl = -1
if count > 0 then
	ttl = redis.call('PTTL', KEYS[1])
end
if ttl < 0 then
	redis.call('SET', KEYS[1], 1, 'PX', window)
	return {1, 1, window}
end
if count >= limit then
	return {0, count, ttl}
end
count = redis.call('INCR', KEYS[1])
return {1, count, ttl}
`)

// RedisFixedWindowLimiter implements fixed window rate limiting algorithm with counters stored in Redis.
// It's used when several instances of the site share the same limits.
// Counters are removed by Redis key expiration, so Sweep does nothing.
type RedisFixedWindowLimiter struct {
	client    redis.Scripter
	limits    Limits
	keyPrefix string
	clock     Clock
}

// RedisFixedWindowOption is an option for RedisFixedWindowLimiter.
type RedisFixedWindowOption func(l *RedisFixedWindowLimiter)

// WithRedisKeyPrefix sets the prefix for the Redis keys.
func WithRedisKeyPrefix(prefix string) RedisFixedWindowOption {
	return func(l *RedisFixedWindowLimiter) {
		l.keyPrefix = prefix
	}
}

// WithRedisClock sets the time source used for computing the window reset time.
func WithRedisClock(clock Clock) RedisFixedWindowOption {
	return func(l *RedisFixedWindowLimiter) {
		l.clock = clock
	}
}

// NewRedisFixedWindowLimiter creates a new fixed window rate limiter backed by Redis.
func NewRedisFixedWindowLimiter(
	client redis.Scripter, limits Limits, options ...RedisFixedWindowOption,
) (*RedisFixedWindowLimiter, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if limits.Window < time.Millisecond {
		return nil, fmt.Errorf("window should be at least 1ms for Redis backend, got %s", limits.Window)
	}
	l := &RedisFixedWindowLimiter{
		client:    client,
		limits:    limits,
		keyPrefix: DefaultRedisKeyPrefix,
		clock:     SystemClock,
	}
	for _, opt := range options {
		opt(l)
	}
	return l, nil
}

// Allow checks whether the request identified by the key may proceed and records it if so.
func (l *RedisFixedWindowLimiter) Allow(ctx context.Context, key string, category RouteCategory) (Decision, error) {
	if key == "" {
		return Decision{}, ErrEmptyClientKey
	}
	limit, err := l.limits.LimitFor(category)
	if err != nil {
		return Decision{}, err
	}

	res, err := fixedWindowScript.Run(ctx, l.client,
		[]string{l.keyPrefix + key}, int64(limit), l.limits.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("run fixed window script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("unexpected fixed window script result length %d", len(res))
	}

	ttl := time.Duration(res[2]) * time.Millisecond
	d := Decision{
		Allowed: res[0] == 1,
		Count:   int(res[1]),
		Limit:   limit,
		ResetAt: l.clock.Now().Add(ttl),
	}
	if !d.Allowed {
		d.RetryAfter = ttl
	}
	return d, nil
}

// Sweep is a no-op since Redis expires the counters itself.
func (l *RedisFixedWindowLimiter) Sweep(time.Time) int {
	return 0
}
