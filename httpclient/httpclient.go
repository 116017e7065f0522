/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mobgames/site/httpserver/middleware"
	"github.com/mobgames/site/log"
)

// Opts provides options for NewWithOpts and MustWithOpts functions.
type Opts struct {
	// ClientType identifies the upstream API (e.g. "slack", "airtable") in logs and metrics.
	ClientType string

	// UserAgent is a user agent string.
	UserAgent string

	// Delegate is the last RoundTripper in the chain. A clone of http.DefaultTransport is used if nil.
	Delegate http.RoundTripper

	// AuthProvider, if set, provides the token for the Authorization header
	// of the requests that don't have it yet.
	AuthProvider AuthProvider

	// RateLimit is the maximum number of requests per second. Zero disables client-side rate limiting.
	RateLimit float64

	// RateLimitBurst is passed to RateLimitingRoundTripper.
	RateLimitBurst int

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// RequestIDProvider is a function that provides a request ID.
	RequestIDProvider func(ctx context.Context) string

	// Collector is a metrics collector.
	Collector MetricsCollector
}

// New creates a client for an upstream API configured only by cfg.
func New(cfg *Config) (*http.Client, error) {
	return NewWithOpts(cfg, Opts{})
}

type wrapFunc func(http.RoundTripper) (http.RoundTripper, error)

// NewWithOpts builds the round tripper chain for an upstream API client.
// From the outermost: retries, request id, user agent, auth bearer, rate limiting, metrics, logging.
// So every retry attempt is rate limited, measured and logged on its own.
func NewWithOpts(cfg *Config, opts Opts) (*http.Client, error) {
	if opts.LoggerProvider == nil {
		opts.LoggerProvider = middleware.GetLoggerFromContext
	}
	wraps := []wrapFunc{
		func(next http.RoundTripper) (http.RoundTripper, error) {
			if !cfg.Log.Enabled {
				return next, nil
			}
			return NewLoggingRoundTripperWithOpts(next, opts.ClientType, LoggingRoundTripperOpts{
				LoggerProvider:       opts.LoggerProvider,
				Mode:                 LoggingMode(cfg.Log.Mode),
				SlowRequestThreshold: cfg.Log.SlowRequestThreshold,
			}), nil
		},
		func(next http.RoundTripper) (http.RoundTripper, error) {
			if !cfg.Metrics.Enabled || opts.Collector == nil {
				return next, nil
			}
			return NewMetricsRoundTripperWithOpts(next, MetricsRoundTripperOpts{
				ClientType: opts.ClientType, Collector: opts.Collector,
			}), nil
		},
		func(next http.RoundTripper) (http.RoundTripper, error) {
			if opts.RateLimit <= 0 {
				return next, nil
			}
			rt, err := NewRateLimitingRoundTripperWithOpts(next, opts.RateLimit,
				RateLimitingRoundTripperOpts{Burst: opts.RateLimitBurst})
			if err != nil {
				return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
			}
			return rt, nil
		},
		func(next http.RoundTripper) (http.RoundTripper, error) {
			if opts.AuthProvider == nil {
				return next, nil
			}
			return NewAuthBearerRoundTripper(next, opts.AuthProvider), nil
		},
		func(next http.RoundTripper) (http.RoundTripper, error) {
			if opts.UserAgent == "" {
				return next, nil
			}
			return NewUserAgentRoundTripper(next, opts.UserAgent), nil
		},
		func(next http.RoundTripper) (http.RoundTripper, error) {
			return NewRequestIDRoundTripperWithOpts(next,
				RequestIDRoundTripperOpts{RequestIDProvider: opts.RequestIDProvider}), nil
		},
		func(next http.RoundTripper) (http.RoundTripper, error) {
			if !cfg.Retries.Enabled {
				return next, nil
			}
			rt, err := NewRetryableRoundTripperWithOpts(next, RetryableRoundTripperOpts{
				LoggerProvider:   opts.LoggerProvider,
				MaxRetryAttempts: cfg.Retries.MaxAttempts,
				BackoffPolicy:    cfg.Retries.GetPolicy(),
			})
			if err != nil {
				return nil, fmt.Errorf("create retryable round tripper: %w", err)
			}
			return rt, nil
		},
	}

	transport := opts.Delegate
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	for _, wrap := range wraps {
		var err error
		if transport, err = wrap(transport); err != nil {
			return nil, err
		}
	}
	return &http.Client{Transport: transport, Timeout: cfg.Timeout}, nil
}

// MustWithOpts is like NewWithOpts but panics on error.
func MustWithOpts(cfg *Config, opts Opts) *http.Client {
	c, err := NewWithOpts(cfg, opts)
	if err != nil {
		panic(err)
	}
	return c
}
