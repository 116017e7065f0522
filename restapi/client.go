/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mobgames/site/log"
)

const maxErrorBodySnippet = 256

// DoRequestAndUnmarshalJSON sends the request and decodes a successful (2xx) JSON response into result.
// For other statuses *ClientError is returned, its Body contains the beginning of the response body.
func DoRequestAndUnmarshalJSON(client *http.Client, req *http.Request, result interface{}, logger log.FieldLogger) error {
	logger = logger.With(log.String("method", req.Method), log.String("uri", req.URL.Redacted()))

	resp, err := client.Do(req)
	if err != nil {
		return &ClientError{Method: req.Method, URL: req.URL, Message: "do request", Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("failed to close response body", log.Error(closeErr))
		}
	}()

	logger.AtLevel(log.LevelDebug, func(logFn log.LogFunc) {
		logFn("got response", log.Int("status", resp.StatusCode))
	})

	clientErr := &ClientError{Method: req.Method, URL: req.URL, StatusCode: resp.StatusCode}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		clientErr.Message = "read response body"
		clientErr.Err = err
		return clientErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxErrorBodySnippet {
			body = body[:maxErrorBodySnippet]
		}
		clientErr.Message = "unexpected status code"
		clientErr.Body = string(body)
		return clientErr
	}

	if result == nil {
		return nil
	}
	if err = json.Unmarshal(body, result); err != nil {
		clientErr.Message = "unmarshal response"
		clientErr.Err = err
		return clientErr
	}
	return nil
}

// NewJSONRequest performs JSON marshaling of the passed data and creates a new http.Request.
func NewJSONRequest(ctx context.Context, method, url string, data interface{}) (*http.Request, error) {
	if data == nil {
		return nil, fmt.Errorf("data cannot be nil")
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil, fmt.Errorf("method %s is not allowed for json request", method)
	}
	buf, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", ContentTypeAppJSON)
	return req, nil
}
