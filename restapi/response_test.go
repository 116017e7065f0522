/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/mobgames/site/log"
	"github.com/mobgames/site/log/logtest"
	"github.com/mobgames/site/testutil"
)

const testDomain = "TestDomain"

// failingWriter accepts headers but fails to write the body.
type failingWriter struct {
	*httptest.ResponseRecorder
}

func (w failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestRespondJSON(t *testing.T) {
	type participant struct {
		SlackID           string `json:"slackId"`
		MinecraftUsername string `json:"minecraftUsername"`
	}

	t.Run("body and headers", func(t *testing.T) {
		rec := httptest.NewRecorder()
		logRec := logtest.NewRecorder()
		p := &participant{SlackID: "U123", MinecraftUsername: "Steve_<3"}
		RespondJSON(rec, p, logRec)

		testutil.RequireJSONInRecorder(t, rec, p, &participant{})
		require.Contains(t, rec.Body.String(), "Steve_<3")
		require.False(t, strings.HasSuffix(rec.Body.String(), "\n"))
		require.Empty(t, logRec.Entries())
	})

	t.Run("Content-Type set by caller", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rec.Header().Set("Content-Type", "text/plain")
		RespondJSON(rec, "nothing", nil)
		require.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	})

	for _, withLogger := range []bool{false, true} {
		t.Run("unmarshalable data, logger "+strconv.FormatBool(withLogger), func(t *testing.T) {
			rec := httptest.NewRecorder()
			logRec := logtest.NewRecorder()
			var logger log.FieldLogger
			if withLogger {
				logger = logRec
			}
			RespondJSON(rec, make(chan bool), logger)
			require.Equal(t, http.StatusInternalServerError, rec.Code)
			testutil.RequireEmptyBodyInRecorder(t, rec)
			if withLogger {
				require.Len(t, logRec.Entries(), 1)
				require.Equal(t, log.LevelError, logRec.Entries()[0].Level)
			}
		})
	}

	t.Run("write failure is logged", func(t *testing.T) {
		logRec := logtest.NewRecorder()
		RespondJSON(failingWriter{httptest.NewRecorder()}, "foo", logRec)
		_, found := logRec.FindEntry("error while writing response body")
		require.True(t, found)
	})
}

func TestRespondMessage(t *testing.T) {
	resp := httptest.NewRecorder()
	RespondMessage(resp, http.StatusOK, "Logged out successfully", nil)
	testutil.RequireJSONInRecorder(t, resp, &MessageResponse{"Logged out successfully"}, &MessageResponse{})
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		name           string
		httpStatusCode int
		apiErr         *Error
		wantLogLevel   log.Level
	}{
		{
			name:           "server error",
			httpStatusCode: http.StatusInternalServerError,
			apiErr:         NewInternalError(testDomain),
			wantLogLevel:   log.LevelError,
		},
		{
			name:           "client error",
			httpStatusCode: http.StatusTooManyRequests,
			apiErr:         NewError(testDomain, ErrCodeRateLimitExceeded, ErrMessageRateLimitExceeded),
			wantLogLevel:   log.LevelWarn,
		},
		{
			name:           "client error with details",
			httpStatusCode: http.StatusBadRequest,
			apiErr:         NewError(testDomain, ErrCodeBadRequest, "Invalid username").AddDetail("field", "minecraftUsername"),
			wantLogLevel:   log.LevelWarn,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			MustInitAndRegisterMetrics("")
			defer UnregisterMetrics()

			logger := logtest.NewRecorder()
			resp := httptest.NewRecorder()
			RespondError(resp, tt.httpStatusCode, tt.apiErr, logger)

			errResp := testutil.RequireErrorInRecorder(t, resp, tt.httpStatusCode, tt.apiErr.Code)
			require.Equal(t, tt.apiErr.Message, errResp.Message)

			require.Len(t, logger.Entries(), 1)
			logEntry := logger.Entries()[0]
			require.Equal(t, tt.wantLogLevel, logEntry.Level)
			logField, found := logEntry.FindField("error_code")
			require.True(t, found)
			require.Equal(t, tt.apiErr.Code, string(logField.Bytes))
			for k, v := range tt.apiErr.Details {
				logField, found = logEntry.FindField("error_detail_" + k)
				require.True(t, found)
				require.Equal(t, fmt.Sprintf("%v", v), string(logField.Bytes))
			}

			require.Equal(t, float64(1), promtestutil.ToFloat64(responseErrors.With(prometheus.Labels{
				metricsLabelDomain: testDomain,
				metricsLabelCode:   tt.apiErr.Code,
				metricsLabelStatus: strconv.Itoa(tt.httpStatusCode),
			})))
		})
	}
}

func TestRespondMethodNotAllowed(t *testing.T) {
	resp := httptest.NewRecorder()
	RespondMethodNotAllowed(resp, testDomain, nil)
	errResp := testutil.RequireErrorInRecorder(t, resp, http.StatusMethodNotAllowed, "methodNotAllowed")
	require.Equal(t, "Method not allowed", errResp.Message)
}

func TestRespondMalformedRequestOrInternalError(t *testing.T) {
	t.Run("internal error", func(t *testing.T) {
		resp := httptest.NewRecorder()
		RespondMalformedRequestOrInternalError(resp, testDomain, errors.New("unexpected error"), nil)
		testutil.RequireErrorInRecorder(t, resp, http.StatusInternalServerError, "internalError")
	})

	t.Run("malformed error", func(t *testing.T) {
		resp := httptest.NewRecorder()
		RespondMalformedRequestOrInternalError(resp, testDomain, NewTooLargeMalformedRequestError(1024*1024), nil)
		testutil.RequireErrorInRecorder(t, resp, http.StatusRequestEntityTooLarge, "requestEntityTooLarge")
	})
}

func TestRespondCodeAndJSON_NilData(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondCodeAndJSON(rr, http.StatusNoContent, nil, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Empty(t, rr.Header().Get("Content-Type"))
	require.Empty(t, rr.Body.String())
}
