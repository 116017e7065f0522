/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/mobgames/site/log"
)

// bodyRewinder restores the request body before the next retry attempt.
type bodyRewinder func(r *http.Request) error

// makeRequestBodyRewindable replaces req.Body with one that can be replayed and returns the rewinder.
// Sources in the order of preference: req.GetBody (set by http.NewRequest for in-memory readers),
// the body itself if it's an io.ReadSeeker, a copy read into memory.
func makeRequestBodyRewindable(req *http.Request) (bodyRewinder, error) {
	if req.GetBody != nil {
		return rewindWithGetBody(req)
	}
	if seeker, ok := req.Body.(io.ReadSeeker); ok {
		return rewindWithSeek(req, seeker)
	}
	return rewindWithBuffer(req)
}

func rewindWithGetBody(req *http.Request) (bodyRewinder, error) {
	reset := func(r *http.Request) error {
		body, err := r.GetBody()
		if err != nil {
			return err
		}
		r.Body = body
		return nil
	}
	if err := reset(req); err != nil {
		return nil, fmt.Errorf("get body before doing first request: %w", err)
	}
	return func(r *http.Request) error {
		if err := reset(r); err != nil {
			return fmt.Errorf("get body for retry: %w", err)
		}
		return nil
	}, nil
}

func rewindWithSeek(req *http.Request, seeker io.ReadSeeker) (bodyRewinder, error) {
	start, err := seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("seek request body before doing first request: %w", err)
	}
	// The transport must not close the caller's body between attempts.
	req.Body = io.NopCloser(req.Body)
	return func(*http.Request) error {
		if _, err := seeker.Seek(start, io.SeekStart); err != nil {
			return fmt.Errorf("seek request body to offset %d for retry: %w", start, err)
		}
		return nil
	}, nil
}

func rewindWithBuffer(req *http.Request) (bodyRewinder, error) {
	buf, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("read request body before doing first request: %w", err)
	}
	reset := func(r *http.Request) error {
		r.Body = io.NopCloser(bytes.NewReader(buf))
		return nil
	}
	return reset, reset(req)
}

// drainResponseBody discards the rest of the response so the connection can be reused by the next attempt.
func drainResponseBody(resp *http.Response, logger log.FieldLogger) {
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		logger.Warn("failed to drain response body before retry", log.Error(err))
	}
	if err := resp.Body.Close(); err != nil {
		logger.Warn("failed to close response body before retry", log.Error(err))
	}
}
