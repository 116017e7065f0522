/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequireErrorInRecorder(t *testing.T) {
	newRecorder := func(status int, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		rec.Header().Set("Content-Type", contentTypeAppJSON)
		rec.WriteHeader(status)
		_, _ = rec.WriteString(body)
		return rec
	}

	rec := newRecorder(http.StatusTooManyRequests, `{"error":"rateLimitExceeded","message":"Slow down"}`)
	errResp := RequireErrorInRecorder(t, rec, http.StatusTooManyRequests, "rateLimitExceeded")
	require.Equal(t, "Slow down", errResp.Message)

	mockT := &MockT{}
	RequireErrorInRecorder(mockT, newRecorder(http.StatusBadRequest, `{"error":"badRequest"}`), http.StatusNotFound, "badRequest")
	require.True(t, mockT.Failed)

	mockT = &MockT{}
	RequireErrorInRecorder(mockT, newRecorder(http.StatusNotFound, `{"error":"badRequest"}`), http.StatusNotFound, "notFound")
	require.True(t, mockT.Failed)
}

func TestRequireJSONInRecorder(t *testing.T) {
	type user struct {
		Name string `json:"name"`
	}
	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Type", contentTypeAppJSON)
	_, _ = rec.WriteString(`{"name":"Steve"}`)
	RequireJSONInRecorder(t, rec, &user{Name: "Steve"}, &user{})

	mockT := &MockT{}
	RequireJSONInRecorder(mockT, rec, &user{Name: "Alex"}, &user{})
	require.True(t, mockT.Failed)
}
