/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ssgreg/logf"

	"github.com/mobgames/site/log"
)

// LoggingSecretQueryPlaceholder replaces values of the secret query parameters in the logged URI.
const LoggingSecretQueryPlaceholder = "_HIDDEN_"

const defaultSlowRequestThreshold = time.Second

// DefaultLoggingSecretQueryParams contains query parameters that are never logged as is.
// Slack passes the OAuth authorization code in the "code" parameter of the callback URL.
var DefaultLoggingSecretQueryParams = []string{"code"}

// LoggingOpts represents options for the Logging middleware.
type LoggingOpts struct {
	// RequestStart enables the "request started" line in addition to the completion one.
	RequestStart bool

	// RequestHeaders maps the request header name to the log field key its value is written to.
	RequestHeaders map[string]string

	// ExcludedEndpoints are logged only when the response status is 4xx or 5xx.
	ExcludedEndpoints []string

	SecretQueryParams []string

	// AddRequestInfoToLogger makes the logger put into the request context carry the request fields too.
	AddRequestInfoToLogger bool

	// SlowRequestThreshold controls when the "time_slots" field group is included into the final line.
	SlowRequestThreshold time.Duration
}

type loggingHandler struct {
	next     http.Handler
	logger   log.FieldLogger
	opts     LoggingOpts
	excluded map[string]struct{}
	secrets  map[string]struct{}
}

// Logging is a middleware that logs info about HTTP request and response.
// The logger with the external and internal request ids is put into the request context.
func Logging(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return LoggingWithOpts(logger, LoggingOpts{SecretQueryParams: DefaultLoggingSecretQueryParams})
}

// LoggingWithOpts is a more configurable version of Logging middleware.
func LoggingWithOpts(logger log.FieldLogger, opts LoggingOpts) func(next http.Handler) http.Handler {
	if opts.SlowRequestThreshold == 0 {
		opts.SlowRequestThreshold = defaultSlowRequestThreshold
	}
	excluded := stringSet(opts.ExcludedEndpoints)
	secrets := stringSet(opts.SecretQueryParams)
	return func(next http.Handler) http.Handler {
		return &loggingHandler{next: next, logger: logger, opts: opts, excluded: excluded, secrets: secrets}
	}
}

func (h *loggingHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startedAt := GetRequestStartTimeFromContext(ctx)
	if startedAt.IsZero() {
		startedAt = time.Now()
		ctx = NewContextWithRequestStartTime(ctx, startedAt)
	}

	ctxLogger := h.logger.With(
		log.String("request_id", GetRequestIDFromContext(ctx)),
		log.String("int_request_id", GetInternalRequestIDFromContext(ctx)),
	)
	reqLogger := ctxLogger.With(h.requestFields(r)...)
	if h.opts.AddRequestInfoToLogger {
		ctxLogger = reqLogger
	}

	_, quiet := h.excluded[r.URL.Path]
	if h.opts.RequestStart && !quiet {
		reqLogger.Info("request started")
	}

	lp := &LoggingParams{}
	ctx = NewContextWithLoggingParams(NewContextWithLogger(ctx, ctxLogger), lp)
	wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
	h.next.ServeHTTP(wrw, r.WithContext(ctx))

	status := responseStatus(wrw)
	if quiet && status < http.StatusBadRequest {
		return
	}

	elapsed := time.Since(startedAt)
	extra, slots := lp.snapshot()
	fields := make([]log.Field, 0, 4+len(extra))
	fields = append(fields,
		log.Int64("duration_ms", elapsed.Milliseconds()),
		log.Int("status", status),
		log.Int("bytes_sent", wrw.BytesWritten()),
	)
	fields = append(fields, extra...)
	if len(slots) != 0 && elapsed >= h.opts.SlowRequestThreshold {
		fields = append(fields, log.Field{Key: "time_slots", Type: logf.FieldTypeObject, Any: slots})
	}
	reqLogger.Info(fmt.Sprintf("response completed in %.3fs", elapsed.Seconds()), fields...)
}

func (h *loggingHandler) requestFields(r *http.Request) []log.Field {
	fields := []log.Field{
		log.String("method", r.Method),
		log.String("uri", redactQuery(r, h.secrets)),
		log.String("remote_addr", r.RemoteAddr),
		log.Int64("content_length", r.ContentLength),
		log.String("user_agent", r.UserAgent()),
	}
	if host, port, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		fields = append(fields, log.String("remote_addr_ip", host))
		if p, convErr := strconv.ParseUint(port, 10, 16); convErr == nil {
			fields = append(fields, log.Int("remote_addr_port", int(p)))
		}
	}
	if origin := getOriginAddr(r); origin != "" {
		fields = append(fields, log.String("origin_addr", origin))
	}
	for header, key := range h.opts.RequestHeaders {
		fields = append(fields, log.String(key, r.Header.Get(header)))
	}
	return fields
}

// redactQuery returns the request URI with non-empty values of the secret query parameters replaced.
func redactQuery(r *http.Request, secrets map[string]struct{}) string {
	if len(secrets) == 0 || r.URL.RawQuery == "" {
		return r.RequestURI
	}
	query := r.URL.Query()
	redacted := false
	for key, values := range query {
		if _, ok := secrets[key]; !ok {
			continue
		}
		for i, v := range values {
			if v != "" {
				values[i] = LoggingSecretQueryPlaceholder
				redacted = true
			}
		}
	}
	if !redacted {
		return r.RequestURI
	}
	return (&url.URL{Path: r.URL.Path, RawQuery: query.Encode()}).RequestURI()
}

func isEndpointExcluded(urlPath string, endpoints []string) bool {
	_, ok := stringSet(endpoints)[urlPath]
	return ok
}

func stringSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
