/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"net/http"
	"strings"
	"unicode"
)

// Error represents an error returned to the site's API clients.
// It's serialized as {"error": "<code>", "message": "<message>"}.
type Error struct {
	Domain  string                 `json:"-"`
	Code    string                 `json:"error"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error codes.
// We are using "var" here because some services may want to use different error codes.
var (
	ErrCodeInternal          = "internalError"
	ErrCodeNotFound          = "notFound"
	ErrCodeMethodNotAllowed  = "methodNotAllowed"
	ErrCodeBadRequest        = "badRequest"
	ErrCodeUnauthorized      = "unauthorized"
	ErrCodeRateLimitExceeded = "rateLimitExceeded"
)

// Error messages.
var (
	ErrMessageInternal          = "Internal server error"
	ErrMessageNotFound          = "Not found"
	ErrMessageMethodNotAllowed  = "Method not allowed"
	ErrMessageRateLimitExceeded = "Rate limit exceeded. Please try again later."
)

// NewError creates a new Error with specified params.
func NewError(domain, code, message string) *Error {
	return &Error{Domain: domain, Code: code, Message: message}
}

// NewInternalError creates a new internal error with specified domain.
func NewInternalError(domain string) *Error {
	return NewError(domain, ErrCodeInternal, ErrMessageInternal)
}

// NewMethodNotAllowedError creates a new error for requests with unsupported HTTP method.
func NewMethodNotAllowedError(domain string) *Error {
	return NewError(domain, ErrCodeMethodNotAllowed, ErrMessageMethodNotAllowed)
}

// AddDetail adds value to error details.
func (e *Error) AddDetail(field string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[field] = value
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func httpCode2ErrorCode(httpCode int) string {
	if httpCode == http.StatusInternalServerError {
		return ErrCodeInternal
	}
	var builder strings.Builder
	capitalizeNext := false
	for _, char := range http.StatusText(httpCode) {
		if unicode.IsSpace(char) {
			capitalizeNext = true
			continue
		}
		if capitalizeNext {
			builder.WriteRune(unicode.ToTitle(char))
			capitalizeNext = false
			continue
		}
		builder.WriteRune(unicode.ToLower(char))
	}
	return builder.String()
}
