/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/mobgames/site/httpserver/middleware"
	"github.com/mobgames/site/log"
)

// LoggingMode selects which upstream requests are logged.
type LoggingMode string

const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed" // plus slow ones, see SlowRequestThreshold
)

func (lm LoggingMode) IsValid() bool {
	return lm == LoggingModeNone || lm == LoggingModeAll || lm == LoggingModeFailed
}

type LoggingRoundTripperOpts struct {
	// LoggerProvider defaults to middleware.GetLoggerFromContext,
	// so requests are logged with the fields of the incoming request.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Mode is LoggingModeAll if empty.
	Mode LoggingMode

	SlowRequestThreshold time.Duration
}

// LoggingRoundTripper logs requests to upstream APIs and adds their durations
// to the "<client type>_request" time slot of the incoming request.
type LoggingRoundTripper struct {
	Delegate   http.RoundTripper
	ClientType string
	Opts       LoggingRoundTripperOpts
}

func NewLoggingRoundTripper(delegate http.RoundTripper, clientType string) *LoggingRoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, clientType, LoggingRoundTripperOpts{})
}

func NewLoggingRoundTripperWithOpts(
	delegate http.RoundTripper, clientType string, opts LoggingRoundTripperOpts,
) *LoggingRoundTripper {
	if opts.Mode == "" {
		opts.Mode = LoggingModeAll
	}
	if opts.LoggerProvider == nil {
		opts.LoggerProvider = middleware.GetLoggerFromContext
	}
	return &LoggingRoundTripper{Delegate: delegate, ClientType: clientType, Opts: opts}
}

func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Mode == LoggingModeNone {
		return rt.Delegate.RoundTrip(r)
	}

	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)

	ctx := r.Context()
	if lp := middleware.GetLoggingParamsFromContext(ctx); lp != nil {
		lp.AddTimeSlotDurationInMs(rt.ClientType+"_request", elapsed)
	}
	if logger := rt.Opts.LoggerProvider(ctx); logger != nil {
		rt.log(logger, r, resp, err, elapsed)
	}
	return resp, err
}

func (rt *LoggingRoundTripper) log(
	logger log.FieldLogger, r *http.Request, resp *http.Response, err error, elapsed time.Duration,
) {
	failed := err != nil || resp.StatusCode >= http.StatusBadRequest
	if !failed && rt.Opts.Mode == LoggingModeFailed && elapsed < rt.Opts.SlowRequestThreshold {
		return
	}

	fields := make([]log.Field, 0, 6)
	fields = append(fields,
		log.String("client_type", rt.ClientType),
		log.String("method", r.Method),
		log.String("uri", r.URL.Redacted()),
		log.Int64("duration_ms", elapsed.Milliseconds()),
	)
	if op := GetOperationFromContext(r.Context()); op != "" {
		fields = append(fields, log.String("operation", op))
	}
	if err != nil {
		logger.Error("client http request failed", append(fields, log.Error(err))...)
		return
	}
	fields = append(fields, log.Int("status", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		logger.Warn("client http request completed with error status", fields...)
		return
	}
	logger.Info("client http request completed", fields...)
}
