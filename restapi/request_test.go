/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeRequestJSON(t *testing.T) {
	type updateRequest struct {
		MinecraftUsername string `json:"minecraftUsername"`
	}

	tests := []struct {
		name           string
		reqContentType string
		reqBody        string
		reqMaxBodySize uint64
		wantErr        error
		want           updateRequest
	}{
		{
			name:    "not a json",
			reqBody: "text",
			wantErr: &MalformedRequestError{http.StatusBadRequest, "Request body contains badly-formed JSON (at position 2)."},
		},
		{
			name:           "unsupported content type",
			reqContentType: "text/html",
			reqBody:        "text",
			wantErr:        &MalformedRequestError{http.StatusUnsupportedMediaType, `Content-Type "text/html" is not supported.`},
		},
		{
			name:           "malformed content type",
			reqContentType: "invalid content type",
			reqBody:        `{}`,
			wantErr:        &MalformedRequestError{http.StatusUnsupportedMediaType, "Content-Type header is malformed."},
		},
		{
			name:           "empty body",
			reqContentType: ContentTypeAppJSON,
			wantErr:        &MalformedRequestError{http.StatusBadRequest, "Request body must not be empty."},
		},
		{
			name:           "unexpected EOF",
			reqContentType: ContentTypeAppJSON,
			reqBody:        `{"minecraftUsername":"Steve"`,
			wantErr:        &MalformedRequestError{http.StatusBadRequest, "Request body contains badly-formed JSON."},
		},
		{
			name:           "invalid field type",
			reqContentType: ContentTypeAppJSON,
			reqBody:        `{"minecraftUsername":[]}`,
			wantErr: &MalformedRequestError{
				http.StatusBadRequest, `Request body contains an invalid value for the "minecraftUsername" field.`},
		},
		{
			name:           "too large",
			reqContentType: ContentTypeAppJSON,
			reqBody:        `{"minecraftUsername":"a very very long name that does not fit"}`,
			reqMaxBodySize: 20,
			wantErr:        &MalformedRequestError{http.StatusRequestEntityTooLarge, "Request body must not be larger than 20B."},
		},
		{
			name:           "several objects",
			reqContentType: ContentTypeAppJSON,
			reqBody:        `{"minecraftUsername":"Steve"}{"minecraftUsername":"Alex"}`,
			wantErr:        &MalformedRequestError{http.StatusBadRequest, "Request body must only contain a single JSON object."},
		},
		{
			name:           "ok",
			reqContentType: ContentTypeAppJSON + "; charset=utf-8",
			reqBody:        `{"minecraftUsername":"Steve","unknown":1}`,
			want:           updateRequest{MinecraftUsername: "Steve"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/", bytes.NewBufferString(tt.reqBody))
			req.Header.Set("Content-Type", tt.reqContentType)
			if tt.reqMaxBodySize != 0 {
				SetRequestMaxBodySize(httptest.NewRecorder(), req, tt.reqMaxBodySize)
			}
			var got updateRequest
			err := DecodeRequestJSON(req, &got)
			assert.Equal(t, tt.wantErr, err)
			if tt.wantErr == nil {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNormalizeURLPath(t *testing.T) {
	tests := map[string]string{
		"":                "/",
		"/":               "/",
		"api/user":        "/api/user",
		"//api//user":     "/api/user",
		"/public/../api/": "/api/",
		"/api/./auth":     "/api/auth",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeURLPath(in), "path %q", in)
	}
}
