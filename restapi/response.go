/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mobgames/site/log"
)

const ContentTypeAppJSON = "application/json"

// MessageResponse is the {"message": "..."} body used by endpoints that report a plain outcome (e.g. logout).
type MessageResponse struct {
	Message string `json:"message"`
}

// RespondJSON writes respData as JSON with 200 OK.
func RespondJSON(rw http.ResponseWriter, respData interface{}, logger log.FieldLogger) {
	RespondCodeAndJSON(rw, http.StatusOK, respData, logger)
}

func RespondMessage(rw http.ResponseWriter, statusCode int, message string, logger log.FieldLogger) {
	RespondCodeAndJSON(rw, statusCode, MessageResponse{Message: message}, logger)
}

// RespondCodeAndJSON writes respData as JSON with the given status.
// Nil respData means an empty body. Content-Type set by the caller is kept.
// HTML characters are not escaped, so usernames like "Steve_<3" come back as is.
// Logger may be nil.
func RespondCodeAndJSON(rw http.ResponseWriter, statusCode int, respData interface{}, logger log.FieldLogger) {
	logger = orDisabled(logger)
	if respData == nil {
		rw.WriteHeader(statusCode)
		return
	}
	if rw.Header().Get("Content-Type") == "" {
		rw.Header().Set("Content-Type", ContentTypeAppJSON)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(respData); err != nil {
		logger.Error("error while marshaling json for response body", log.Error(err))
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	body := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	rw.WriteHeader(statusCode)
	if _, err := rw.Write(body); err != nil {
		logger.Error("error while writing response body", log.Error(err))
	}
}

// RespondError writes the API error with the given status. The error is logged
// (as a warning for 4xx and as an error for 5xx) and counted in the errors metric.
func RespondError(rw http.ResponseWriter, httpStatusCode int, err *Error, logger log.FieldLogger) {
	logResponseError(orDisabled(logger), httpStatusCode, err)
	collectResponseError(httpStatusCode, err)
	RespondCodeAndJSON(rw, httpStatusCode, err, logger)
}

func RespondInternalError(rw http.ResponseWriter, domain string, logger log.FieldLogger) {
	RespondError(rw, http.StatusInternalServerError, NewInternalError(domain), logger)
}

func RespondMethodNotAllowed(rw http.ResponseWriter, domain string, logger log.FieldLogger) {
	RespondError(rw, http.StatusMethodNotAllowed, NewMethodNotAllowedError(domain), logger)
}

// RespondMalformedRequestError converts the decoding error into an API error with a matching code.
func RespondMalformedRequestError(
	rw http.ResponseWriter, domain string, reqErr *MalformedRequestError, logger log.FieldLogger,
) {
	apiErr := NewError(domain, httpCode2ErrorCode(reqErr.HTTPStatusCode), reqErr.Message)
	RespondError(rw, reqErr.HTTPStatusCode, apiErr, logger)
}

// RespondMalformedRequestOrInternalError is meant for errors of DecodeRequestJSON:
// anything that is not a *MalformedRequestError becomes 500.
func RespondMalformedRequestOrInternalError(rw http.ResponseWriter, domain string, err error, logger log.FieldLogger) {
	if reqErr := (*MalformedRequestError)(nil); errors.As(err, &reqErr) {
		RespondMalformedRequestError(rw, domain, reqErr, logger)
		return
	}
	orDisabled(logger).Error("unexpected error while handling request", log.Error(err))
	RespondInternalError(rw, domain, logger)
}

func logResponseError(logger log.FieldLogger, status int, err *Error) {
	fields := make([]log.Field, 0, 3+len(err.Details))
	fields = append(fields,
		log.String("error_code", err.Code), log.String("error_message", err.Message), log.Int("status", status))
	for k, v := range err.Details {
		fields = append(fields, log.String("error_detail_"+k, fmt.Sprint(v)))
	}
	logFn := logger.Warn
	if status >= 500 {
		logFn = logger.Error
	}
	logFn("error in response", fields...)
}

func orDisabled(logger log.FieldLogger) log.FieldLogger {
	if logger == nil {
		return log.NewDisabledLogger()
	}
	return logger
}
