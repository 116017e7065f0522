/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mobgames/site/log"
	"github.com/mobgames/site/retry"
)

const (
	DefaultMaxRetryAttempts                  = 10
	DefaultExponentialBackoffInitialInterval = time.Second
	DefaultExponentialBackoffMultiplier      = 2

	// UnlimitedRetryAttempts leaves stopping retries to the backoff policy alone.
	UnlimitedRetryAttempts = -1

	// RetryAttemptNumberHeader carries the number of the retry attempt (starting from 1) in repeated requests.
	RetryAttemptNumberHeader = "X-Retry-Attempt"
)

// Upstream Retry-After values above this are clamped.
const maxRetryAfter = 30 * time.Second

// DefaultBackoffPolicy waits 1s, 2s, 4s and so on between attempts.
var DefaultBackoffPolicy retry.Policy = retry.ExponentialBackoffPolicy{
	InitialInterval: DefaultExponentialBackoffInitialInterval,
	Multiplier:      DefaultExponentialBackoffMultiplier,
}

// CheckRetryFunc decides after every attempt whether the request should be sent again.
type CheckRetryFunc func(ctx context.Context, req *http.Request, resp *http.Response, roundTripErr error) (bool, error)

// RetryableRoundTripperOpts configures RetryableRoundTripper. Zero values mean defaults.
type RetryableRoundTripperOpts struct {
	Logger           log.FieldLogger
	LoggerProvider   func(ctx context.Context) log.FieldLogger
	MaxRetryAttempts int
	CheckRetryFunc   CheckRetryFunc
	IgnoreRetryAfter bool
	BackoffPolicy    retry.Policy
}

// RetryableRoundTripper repeats failed requests to upstream APIs.
// The wait between attempts comes from the Retry-After response header when present
// and from BackoffPolicy otherwise.
type RetryableRoundTripper struct {
	Delegate       http.RoundTripper
	Logger         log.FieldLogger
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// MaxRetryAttempts does not count the first attempt, so up to MaxRetryAttempts+1 requests are sent.
	MaxRetryAttempts int
	CheckRetry       CheckRetryFunc
	IgnoreRetryAfter bool
	BackoffPolicy    retry.Policy
}

func NewRetryableRoundTripper(delegate http.RoundTripper) (*RetryableRoundTripper, error) {
	return NewRetryableRoundTripperWithOpts(delegate, RetryableRoundTripperOpts{})
}

func NewRetryableRoundTripperWithOpts(
	delegate http.RoundTripper, opts RetryableRoundTripperOpts,
) (*RetryableRoundTripper, error) {
	rt := &RetryableRoundTripper{
		Delegate:         delegate,
		Logger:           opts.Logger,
		LoggerProvider:   opts.LoggerProvider,
		MaxRetryAttempts: opts.MaxRetryAttempts,
		CheckRetry:       opts.CheckRetryFunc,
		IgnoreRetryAfter: opts.IgnoreRetryAfter,
		BackoffPolicy:    opts.BackoffPolicy,
	}
	switch {
	case rt.MaxRetryAttempts == 0:
		rt.MaxRetryAttempts = DefaultMaxRetryAttempts
	case rt.MaxRetryAttempts < 0 && rt.MaxRetryAttempts != UnlimitedRetryAttempts:
		return nil, fmt.Errorf("incorrect max retry attempts")
	}
	if rt.Logger == nil {
		rt.Logger = log.NewDisabledLogger()
	}
	if rt.CheckRetry == nil {
		rt.CheckRetry = DefaultCheckRetry
	}
	if rt.BackoffPolicy == nil {
		rt.BackoffPolicy = DefaultBackoffPolicy
	}
	return rt, nil
}

// RoundTrip implements http.RoundTripper.
func (rt *RetryableRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	rewind := bodyRewinder(func(*http.Request) error { return nil })
	if req.Body != nil && req.Body != http.NoBody {
		origBody := req.Body
		defer func() { _ = origBody.Close() }()

		// The caller's request must not be modified.
		req = req.Clone(req.Context())
		var err error
		if rewind, err = makeRequestBodyRewindable(req); err != nil {
			return nil, &RetryableRoundTripperError{Inner: err}
		}
	}

	ctx := req.Context()
	logger := rt.logger(ctx).With(log.String("retry_method", req.Method), log.String("retry_host", req.URL.Host))
	bo := rt.BackoffPolicy.NewBackOff()

	for attemptsDone := 1; ; attemptsDone++ {
		resp, rtErr := rt.Delegate.RoundTrip(req)

		if !rt.shouldRetry(ctx, req, resp, rtErr, attemptsDone, logger) {
			return resp, rtErr
		}
		wait, ok := rt.waitTime(resp, bo)
		if !ok {
			return resp, rtErr
		}
		if resp != nil {
			drainResponseBody(resp, logger)
		}
		logRetry(logger, attemptsDone, wait, resp, rtErr)

		if err := sleepCtx(ctx, wait); err != nil {
			logger.Warn("context is done while waiting for the next retry attempt",
				log.Int("attempts_done", attemptsDone), log.Error(err))
			if rtErr != nil {
				return nil, rtErr
			}
			return nil, err
		}
		if err := rewind(req); err != nil {
			logger.Error("failed to rewind request body for retry", log.Int("attempts_done", attemptsDone), log.Error(err))
			return nil, &RetryableRoundTripperError{Inner: err}
		}
		req = req.Clone(ctx)
		req.Header.Set(RetryAttemptNumberHeader, strconv.Itoa(attemptsDone))
	}
}

func (rt *RetryableRoundTripper) shouldRetry(
	ctx context.Context, req *http.Request, resp *http.Response, rtErr error, attemptsDone int, logger log.FieldLogger,
) bool {
	retryNeeded, err := rt.CheckRetry(ctx, req, resp, rtErr)
	switch {
	case err != nil:
		logger.Error("failed to check if retry is needed", log.Int("attempts_done", attemptsDone), log.Error(err))
		return false
	case !retryNeeded:
		return false
	case rt.MaxRetryAttempts > 0 && attemptsDone > rt.MaxRetryAttempts:
		logger.Warn("max retry attempts exceeded",
			log.Int("max_retry_attempts", rt.MaxRetryAttempts), log.Int("attempts_done", attemptsDone))
		return false
	}
	return true
}

// waitTime returns false when the backoff policy is exhausted.
func (rt *RetryableRoundTripper) waitTime(resp *http.Response, bo backoff.BackOff) (time.Duration, bool) {
	if resp != nil && !rt.IgnoreRetryAfter {
		if d, ok := parseRetryAfterFromResponse(resp); ok {
			return d, true
		}
	}
	d := bo.NextBackOff()
	return d, d != backoff.Stop
}

func (rt *RetryableRoundTripper) logger(ctx context.Context) log.FieldLogger {
	if rt.LoggerProvider == nil {
		return rt.Logger
	}
	if l := rt.LoggerProvider(ctx); l != nil {
		return l
	}
	return rt.Logger
}

func logRetry(logger log.FieldLogger, attemptsDone int, wait time.Duration, resp *http.Response, rtErr error) {
	logger.AtLevel(log.LevelDebug, func(logFn log.LogFunc) {
		fields := make([]log.Field, 0, 4)
		fields = append(fields, log.Int("attempts_done", attemptsDone), log.Duration("wait", wait))
		if resp != nil {
			fields = append(fields, log.Int("status", resp.StatusCode))
		}
		if rtErr != nil {
			fields = append(fields, log.NamedError("round_trip_error", rtErr))
		}
		logFn("retrying request", fields...)
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryableRoundTripperError means the request could not be prepared for retrying.
type RetryableRoundTripperError struct {
	Inner error
}

func (e *RetryableRoundTripperError) Error() string {
	return "retryable round trip: " + e.Inner.Error()
}

func (e *RetryableRoundTripperError) Unwrap() error {
	return e.Inner
}

// DefaultCheckRetry retries 429 responses always. Server errors and temporary network
// errors are retried for idempotent methods only. Other methods (POST, PATCH) count as idempotent
// only when the context carries the idempotent hint (see NewContextWithIdempotentHint).
func DefaultCheckRetry(
	ctx context.Context, req *http.Request, resp *http.Response, roundTripErr error,
) (bool, error) {
	switch {
	case ctx.Err() != nil:
		return false, nil
	case roundTripErr != nil:
		return CheckErrorIsTemporary(roundTripErr) && isIdempotent(ctx, req), nil
	case resp == nil:
		return false, fmt.Errorf("both response and round trip error are nil")
	case resp.StatusCode == http.StatusTooManyRequests:
		return true, nil
	}
	return resp.StatusCode >= 500 && isIdempotent(ctx, req), nil
}

func isIdempotent(ctx context.Context, req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return GetIdempotentHintFromContext(ctx)
}

// CheckErrorIsTemporary reports whether a transport error is worth another attempt.
// Unexpected EOFs (connection closed by the server) are treated as temporary.
func CheckErrorIsTemporary(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var tmp interface{ Temporary() bool }
	return errors.As(err, &tmp) && tmp.Temporary()
}

// parseRetryAfterFromResponse supports both delay-seconds and HTTP-date forms.
// The result is within [0, maxRetryAfter].
func parseRetryAfterFromResponse(resp *http.Response) (time.Duration, bool) {
	val := resp.Header.Get("Retry-After")
	if val == "" {
		return 0, false
	}
	var d time.Duration
	if secs, err := strconv.Atoi(val); err == nil {
		if secs < 0 {
			return 0, false
		}
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(val); err == nil {
		d = time.Until(at)
	} else {
		return 0, false
	}
	return min(max(d, 0), maxRetryAfter), true
}
