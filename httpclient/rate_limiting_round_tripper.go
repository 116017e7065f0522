/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Default parameter values for RateLimitingRoundTripper.
const (
	DefaultRateLimitingBurst       = 1
	DefaultRateLimitingWaitTimeout = 15 * time.Second
)

// ErrRateLimitingWaitTooLong means the request would have to wait for a token longer than WaitTimeout.
var ErrRateLimitingWaitTooLong = errors.New("wait time exceeds timeout")

// RateLimitingRoundTripperOpts represents options for RateLimitingRoundTripper.
type RateLimitingRoundTripperOpts struct {
	Burst       int
	WaitTimeout time.Duration
}

// RateLimitingRoundTripper keeps outgoing requests within an upstream quota
// (Airtable allows 5 requests per second per base).
// A request that would wait longer than WaitTimeout fails at once without consuming a token.
type RateLimitingRoundTripper struct {
	Delegate http.RoundTripper

	RateLimit   float64
	Burst       int
	WaitTimeout time.Duration

	limiter *rate.Limiter
}

// NewRateLimitingRoundTripper creates a RateLimitingRoundTripper allowing rateLimit requests per second.
func NewRateLimitingRoundTripper(delegate http.RoundTripper, rateLimit float64) (*RateLimitingRoundTripper, error) {
	return NewRateLimitingRoundTripperWithOpts(delegate, rateLimit, RateLimitingRoundTripperOpts{})
}

// NewRateLimitingRoundTripperWithOpts is like NewRateLimitingRoundTripper but also accepts options.
func NewRateLimitingRoundTripperWithOpts(
	delegate http.RoundTripper, rateLimit float64, opts RateLimitingRoundTripperOpts,
) (*RateLimitingRoundTripper, error) {
	switch {
	case rateLimit <= 0:
		return nil, fmt.Errorf("rate limit must be positive")
	case opts.Burst < 0:
		return nil, fmt.Errorf("burst must be positive")
	}
	rt := &RateLimitingRoundTripper{
		Delegate:    delegate,
		RateLimit:   rateLimit,
		Burst:       opts.Burst,
		WaitTimeout: opts.WaitTimeout,
	}
	if rt.Burst == 0 {
		rt.Burst = DefaultRateLimitingBurst
	}
	if rt.WaitTimeout == 0 {
		rt.WaitTimeout = DefaultRateLimitingWaitTimeout
	}
	rt.limiter = rate.NewLimiter(rate.Limit(rateLimit), rt.Burst)
	return rt, nil
}

// RoundTrip reserves a token, waits for it and passes the request to Delegate.
func (rt *RateLimitingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	fail := func(delay time.Duration, err error) (*http.Response, error) {
		if r.Body != nil {
			_ = r.Body.Close() // Per RoundTripper contract.
		}
		return nil, &RateLimitingWaitError{Delay: delay, Inner: err}
	}

	reservation := rt.limiter.Reserve()
	if !reservation.OK() {
		return fail(0, ErrRateLimitingWaitTooLong)
	}
	delay := reservation.Delay()
	if delay > rt.WaitTimeout {
		reservation.Cancel()
		return fail(delay, ErrRateLimitingWaitTooLong)
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-r.Context().Done():
			reservation.Cancel()
			return fail(delay, r.Context().Err())
		case <-timer.C:
		}
	}
	return rt.Delegate.RoundTrip(r)
}

// RateLimitingWaitError is returned by RateLimitingRoundTripper when the request was not sent
// because of the client side rate limiting.
type RateLimitingWaitError struct {
	Delay time.Duration
	Inner error
}

func (e *RateLimitingWaitError) Error() string {
	return fmt.Sprintf("wait %s due to client side rate limiting: %s", e.Delay, e.Inner)
}

// Unwrap returns the next error in the error chain.
func (e *RateLimitingWaitError) Unwrap() error {
	return e.Inner
}
