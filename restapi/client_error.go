/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"fmt"
	"net/url"
)

// ClientError is returned by DoRequestAndUnmarshalJSON when a request to an upstream API fails.
type ClientError struct {
	Message    string
	Method     string
	URL        *url.URL
	StatusCode int
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	u := ""
	if e.URL != nil {
		u = e.URL.Redacted()
	}
	str := fmt.Sprintf("%s %s: %s", e.Method, u, e.Message)
	if e.StatusCode != 0 {
		str += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		str += ": " + e.Err.Error()
	}
	return str
}

// Unwrap allows checking the underlying error with errors.Is and errors.As.
func (e *ClientError) Unwrap() error {
	return e.Err
}
