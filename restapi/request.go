/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"code.cloudfoundry.org/bytefmt"
)

// MalformedRequestError describes a request the server refuses to process.
// Message is shown to the client as is.
type MalformedRequestError struct {
	HTTPStatusCode int
	Message        string
}

func (e *MalformedRequestError) Error() string {
	return e.Message
}

func NewBadRequestError(message string) *MalformedRequestError {
	return &MalformedRequestError{HTTPStatusCode: http.StatusBadRequest, Message: message}
}

func NewTooLargeMalformedRequestError(maxSizeBytes uint64) *MalformedRequestError {
	return &MalformedRequestError{
		HTTPStatusCode: http.StatusRequestEntityTooLarge,
		Message:        "Request body must not be larger than " + bytefmt.ByteSize(maxSizeBytes) + ".",
	}
}

// RequestBodyTooLargeError is returned from reading a body limited by SetRequestMaxBodySize.
type RequestBodyTooLargeError struct {
	MaxSizeBytes uint64
	Err          error
}

func (e *RequestBodyTooLargeError) Error() string {
	return e.Err.Error()
}

// SetRequestMaxBodySize limits how much of the request body may be read.
// Reading past the limit fails with *RequestBodyTooLargeError.
func SetRequestMaxBodySize(w http.ResponseWriter, r *http.Request, maxSizeBytes uint64) {
	r.Body = &limitedBody{ReadCloser: http.MaxBytesReader(w, r.Body, int64(maxSizeBytes)), limit: maxSizeBytes}
}

type limitedBody struct {
	io.ReadCloser
	limit uint64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if maxErr := (*http.MaxBytesError)(nil); errors.As(err, &maxErr) {
		return n, &RequestBodyTooLargeError{MaxSizeBytes: b.limit, Err: err}
	}
	return n, err
}

// DecodeRequestJSON decodes exactly one JSON value from the request body into dst.
// A Content-Type other than application/json is rejected with 415, but the header may be absent.
// Unknown fields are ignored. All client mistakes are reported as *MalformedRequestError.
func DecodeRequestJSON(r *http.Request, dst interface{}) error {
	if err := checkJSONContentType(r.Header.Get("Content-Type")); err != nil {
		return err
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return decodeErrorToMalformed(err)
	}
	if dec.More() {
		return NewBadRequestError("Request body must only contain a single JSON object.")
	}
	return nil
}

func checkJSONContentType(header string) error {
	if header == "" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return &MalformedRequestError{HTTPStatusCode: http.StatusUnsupportedMediaType, Message: "Content-Type header is malformed."}
	}
	if mediaType != ContentTypeAppJSON {
		return &MalformedRequestError{
			HTTPStatusCode: http.StatusUnsupportedMediaType,
			Message:        fmt.Sprintf("Content-Type %q is not supported.", mediaType),
		}
	}
	return nil
}

func decodeErrorToMalformed(err error) error {
	if tooLarge := (*RequestBodyTooLargeError)(nil); errors.As(err, &tooLarge) {
		return NewTooLargeMalformedRequestError(tooLarge.MaxSizeBytes)
	}
	if errors.Is(err, io.EOF) {
		return NewBadRequestError("Request body must not be empty.")
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return NewBadRequestError("Request body contains badly-formed JSON.")
	}
	if syntaxErr := (*json.SyntaxError)(nil); errors.As(err, &syntaxErr) {
		return NewBadRequestError(fmt.Sprintf("Request body contains badly-formed JSON (at position %d).", syntaxErr.Offset))
	}
	if typeErr := (*json.UnmarshalTypeError)(nil); errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return NewBadRequestError(fmt.Sprintf("Request body contains an invalid value of type %q.", typeErr.Value))
		}
		return NewBadRequestError(fmt.Sprintf("Request body contains an invalid value for the %q field.", typeErr.Field))
	}
	return err
}

// NormalizeURLPath cleans the path ("/api//user/./createUser" becomes "/api/user/createUser")
// and keeps a trailing slash if there was one.
func NormalizeURLPath(urlPath string) string {
	cleaned := path.Clean("/" + urlPath)
	if cleaned != "/" && strings.HasSuffix(urlPath, "/") {
		return cleaned + "/"
	}
	return cleaned
}
