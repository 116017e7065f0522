/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package retry runs operations against flaky dependencies (Slack, Airtable, Redis)
// with backoff policies built on github.com/cenkalti/backoff/v4.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy creates a fresh backoff for every retried operation.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// PolicyFunc is an adapter to allow the use of ordinary functions as Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff implements Policy.
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// ExponentialBackoffPolicy makes delays grow exponentially (with randomization) between attempts.
// Zero values of the fields mean defaults of backoff.ExponentialBackOff, zero MaxRetries means no limit.
type ExponentialBackoffPolicy struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	MaxRetries      int
}

// NewBackOff implements Policy.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.Multiplier > 0 {
		eb.Multiplier = p.Multiplier
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.Reset()
	return withMaxRetries(eb, p.MaxRetries)
}

// ConstantBackoffPolicy waits the same interval between attempts.
type ConstantBackoffPolicy struct {
	Interval   time.Duration
	MaxRetries int
}

// NewConstantBackoffPolicy returns a constant backoff policy. Zero maxRetries means no limit.
func NewConstantBackoffPolicy(interval time.Duration, maxRetries int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{Interval: interval, MaxRetries: maxRetries}
}

// NewBackOff implements Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	return withMaxRetries(backoff.NewConstantBackOff(p.Interval), p.MaxRetries)
}

func withMaxRetries(b backoff.BackOff, maxRetries int) backoff.BackOff {
	if maxRetries <= 0 {
		return b
	}
	b = backoff.WithMaxRetries(b, uint64(maxRetries))
	b.Reset()
	return b
}

// Do calls fn until it succeeds, the policy gives up or ctx is done.
// isRetryable (may be nil) tells whether an error is worth another attempt,
// notify (may be nil) is called before each delay.
func Do(
	ctx context.Context, p Policy, isRetryable func(err error) bool, notify backoff.Notify, fn func(ctx context.Context) error,
) error {
	b := backoff.WithContext(p.NewBackOff(), ctx)
	return backoff.RetryNotify(func() error {
		err := fn(ctx)
		if err != nil && isRetryable != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, notify)
}
