/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import "context"

type ctxKey int

const (
	ctxKeyOperation ctxKey = iota
	ctxKeyIdempotentHint
)

// NewContextWithOperation creates a new context with the name of the upstream operation (e.g. "users.info").
// The name is used as a summary in metrics and logs instead of the raw URL.
func NewContextWithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, ctxKeyOperation, operation)
}

// GetOperationFromContext extracts the name of the upstream operation from the context.
func GetOperationFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyOperation).(string); ok {
		return s
	}
	return ""
}

// NewContextWithIdempotentHint returns a derived context that carries an "idempotent request" hint.
// When set to true, RetryableRoundTripper retries POST and PATCH requests on server errors as well.
func NewContextWithIdempotentHint(ctx context.Context, isIdempotent bool) context.Context {
	return context.WithValue(ctx, ctxKeyIdempotentHint, isIdempotent)
}

// GetIdempotentHintFromContext extracts the "idempotent request" hint from context.
// Returns false when the key is not present.
func GetIdempotentHintFromContext(ctx context.Context) bool {
	b, ok := ctx.Value(ctxKeyIdempotentHint).(bool)
	return ok && b
}
