/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type windowCounter struct {
	count   int
	resetAt time.Time
}

// FixedWindowOption is an option for FixedWindowLimiter.
type FixedWindowOption func(l *FixedWindowLimiter)

// WithClock sets the time source of the limiter.
func WithClock(clock Clock) FixedWindowOption {
	return func(l *FixedWindowLimiter) {
		l.clock = clock
	}
}

// FixedWindowLimiter implements fixed window rate limiting algorithm with in-memory counters.
//
// Each key has its own window that starts with the first request of the key.
// A client may get up to 2x of the limit admitted in a short interval around a window boundary,
// this is inherent to the algorithm.
type FixedWindowLimiter struct {
	limits Limits
	clock  Clock

	mu       sync.Mutex
	counters map[string]*windowCounter
}

// NewFixedWindowLimiter creates a new in-memory fixed window rate limiter.
func NewFixedWindowLimiter(limits Limits, options ...FixedWindowOption) (*FixedWindowLimiter, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	l := &FixedWindowLimiter{
		limits:   limits,
		clock:    SystemClock,
		counters: make(map[string]*windowCounter),
	}
	for _, opt := range options {
		opt(l)
	}
	return l, nil
}

// Limits returns the policy the limiter was created with.
func (l *FixedWindowLimiter) Limits() Limits {
	return l.limits
}

// Allow checks whether the request identified by the key may proceed and records it if so.
// Rejected requests are not counted.
func (l *FixedWindowLimiter) Allow(_ context.Context, key string, category RouteCategory) (Decision, error) {
	if key == "" {
		return Decision{}, ErrEmptyClientKey
	}
	limit, err := l.limits.LimitFor(category)
	if err != nil {
		return Decision{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()

	c, ok := l.counters[key]
	if !ok {
		c = &windowCounter{}
		l.counters[key] = c
	}
	if !ok || now.After(c.resetAt) {
		c.count = 1
		c.resetAt = now.Add(l.limits.Window)
		return Decision{Allowed: true, Count: c.count, Limit: limit, ResetAt: c.resetAt}, nil
	}

	if c.count >= limit {
		return Decision{
			Allowed:    false,
			Count:      c.count,
			Limit:      limit,
			ResetAt:    c.resetAt,
			RetryAfter: c.resetAt.Sub(now),
		}, nil
	}

	c.count++
	return Decision{Allowed: true, Count: c.count, Limit: limit, ResetAt: c.resetAt}, nil
}

// Sweep removes all counters whose window has ended at or before now.
// It returns the number of removed counters.
func (l *FixedWindowLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for key, c := range l.counters {
		if !c.resetAt.After(now) {
			delete(l.counters, key)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of live counters.
func (l *FixedWindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}

// String implements fmt.Stringer.
func (l *FixedWindowLimiter) String() string {
	return fmt.Sprintf("fixed window limiter (window=%s, general=%d, sensitive=%d)",
		l.limits.Window, l.limits.General, l.limits.Sensitive)
}
