/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"time"

	"github.com/mobgames/site/log"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyInternalRequestID
	ctxKeyLogger
	ctxKeyLoggingParams
	ctxKeyRequestStartTime
	ctxKeyClientIdentity
)

// valueOf returns the zero T if the context has no value of this type under the key.
func valueOf[T any](ctx context.Context, key ctxKey) T {
	v, _ := ctx.Value(key).(T)
	return v
}

// Request ids. The external one comes from the X-Request-ID header (or is generated),
// the internal one is always generated by the RequestID middleware.

func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

func GetRequestIDFromContext(ctx context.Context) string {
	return valueOf[string](ctx, ctxKeyRequestID)
}

func NewContextWithInternalRequestID(ctx context.Context, internalRequestID string) context.Context {
	return context.WithValue(ctx, ctxKeyInternalRequestID, internalRequestID)
}

func GetInternalRequestIDFromContext(ctx context.Context) string {
	return valueOf[string](ctx, ctxKeyInternalRequestID)
}

// NewContextWithLogger stores the request-scoped logger. It's done by the Logging middleware.
func NewContextWithLogger(ctx context.Context, logger log.FieldLogger) context.Context {
	return context.WithValue(ctx, ctxKeyLogger, logger)
}

// GetLoggerFromContext returns nil outside of the Logging middleware.
func GetLoggerFromContext(ctx context.Context) log.FieldLogger {
	return valueOf[log.FieldLogger](ctx, ctxKeyLogger)
}

// GetLoggerFromContextOrDisabled never returns nil.
func GetLoggerFromContextOrDisabled(ctx context.Context) log.FieldLogger {
	if logger := GetLoggerFromContext(ctx); logger != nil {
		return logger
	}
	return log.NewDisabledLogger()
}

func NewContextWithLoggingParams(ctx context.Context, loggingParams *LoggingParams) context.Context {
	return context.WithValue(ctx, ctxKeyLoggingParams, loggingParams)
}

func GetLoggingParamsFromContext(ctx context.Context) *LoggingParams {
	return valueOf[*LoggingParams](ctx, ctxKeyLoggingParams)
}

func NewContextWithRequestStartTime(ctx context.Context, startTime time.Time) context.Context {
	return context.WithValue(ctx, ctxKeyRequestStartTime, startTime)
}

func GetRequestStartTimeFromContext(ctx context.Context) time.Time {
	return valueOf[time.Time](ctx, ctxKeyRequestStartTime)
}

// NewContextWithClientIdentity stores the identity the RateLimit middleware counted the request for.
func NewContextWithClientIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, ctxKeyClientIdentity, identity)
}

func GetClientIdentityFromContext(ctx context.Context) string {
	return valueOf[string](ctx, ctxKeyClientIdentity)
}
