/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Default throttling policy values.
const (
	DefaultWindow          = time.Minute
	DefaultGeneralLimit    = 50
	DefaultSensitiveLimit  = 10
	DefaultCleanupInterval = 5 * time.Minute
)

// ErrEmptyClientKey is returned when the limiter is called with an empty client key.
var ErrEmptyClientKey = errors.New("client key is empty")

// ErrUnknownRouteCategory is returned when the route category is neither general nor sensitive.
var ErrUnknownRouteCategory = errors.New("unknown route category")

// RouteCategory classifies an endpoint for limit selection.
type RouteCategory string

// Route categories.
const (
	RouteCategoryGeneral   RouteCategory = "general"
	RouteCategorySensitive RouteCategory = "sensitive"
)

// Valid reports whether the category is one of the known ones.
func (c RouteCategory) Valid() bool {
	return c == RouteCategoryGeneral || c == RouteCategorySensitive
}

// Limits describes the fixed-window throttling policy.
type Limits struct {
	Window          time.Duration
	General         int
	Sensitive       int
	CleanupInterval time.Duration
}

// DefaultLimits returns the default throttling policy.
func DefaultLimits() Limits {
	return Limits{
		Window:          DefaultWindow,
		General:         DefaultGeneralLimit,
		Sensitive:       DefaultSensitiveLimit,
		CleanupInterval: DefaultCleanupInterval,
	}
}

// Validate checks that all limits are positive.
func (l Limits) Validate() error {
	if l.Window <= 0 {
		return fmt.Errorf("window should be positive, got %s", l.Window)
	}
	if l.General <= 0 {
		return fmt.Errorf("general limit should be positive, got %d", l.General)
	}
	if l.Sensitive <= 0 {
		return fmt.Errorf("sensitive limit should be positive, got %d", l.Sensitive)
	}
	if l.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval should be positive, got %s", l.CleanupInterval)
	}
	return nil
}

// LimitFor returns the maximum number of admitted requests per window for the category.
func (l Limits) LimitFor(category RouteCategory) (int, error) {
	switch category {
	case RouteCategoryGeneral:
		return l.General, nil
	case RouteCategorySensitive:
		return l.Sensitive, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownRouteCategory, category)
	}
}

// Decision is the result of the admission check.
type Decision struct {
	Allowed bool
	// Count is the number of admitted requests in the current window after this check.
	Count   int
	Limit   int
	ResetAt time.Time
	// RetryAfter is the time left until the window resets. Set only for rejected requests.
	RetryAfter time.Duration
}

// Remaining returns how many more requests may be admitted in the current window.
func (d Decision) Remaining() int {
	if d.Count >= d.Limit {
		return 0
	}
	return d.Limit - d.Count
}

// Limiter interface defines the rate limiting contract.
type Limiter interface {
	Allow(ctx context.Context, key string, category RouteCategory) (Decision, error)
}

// MakeClientKey builds the key under which requests of the client are counted.
// Requests from the same identity are counted separately for general and sensitive routes.
func MakeClientKey(identity string, category RouteCategory) string {
	return identity + "|" + string(category)
}
