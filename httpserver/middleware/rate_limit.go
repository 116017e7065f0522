/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vasayxtx/go-glob"

	"github.com/mobgames/site/internal/ratelimit"
	"github.com/mobgames/site/log"
	"github.com/mobgames/site/restapi"
)

// Log field keys used by the RateLimit middleware.
const (
	RateLimitLogFieldKey      = "rate_limit_key"
	RateLimitLogFieldCategory = "rate_limit_category"
)

// DefaultRateLimitProtectedPrefixes contains path prefixes of the throttled endpoints.
var DefaultRateLimitProtectedPrefixes = []string{"/api/"}

// RateLimitParams contains data that relates to the rate limiting procedure
// and could be used for rejecting or handling an occurred error.
type RateLimitParams struct {
	ErrDomain string
	Identity  string
	Category  ratelimit.RouteCategory
	Key       string
	Decision  ratelimit.Decision
}

// RateLimitOnRejectFunc is a function that is called for rejecting HTTP request when the rate limit is exceeded.
type RateLimitOnRejectFunc func(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, next http.Handler, logger log.FieldLogger)

// RateLimitOnErrorFunc is a function that is called when the limiter fails.
type RateLimitOnErrorFunc func(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, err error, next http.Handler, logger log.FieldLogger)

// RateLimitOpts represents an options for the RateLimit middleware.
type RateLimitOpts struct {
	// ProtectedPrefixes restricts throttling to the paths with one of these prefixes.
	// DefaultRateLimitProtectedPrefixes is used if empty.
	ProtectedPrefixes []string

	// SensitiveMarkers are passed to ratelimit.NewRouteClassifier.
	SensitiveMarkers []string

	// ExcludedClients contains glob patterns (e.g. "10.0.*") of client identities that are never throttled.
	ExcludedClients []string

	// GetIdentity resolves the client identity. GetClientIdentity is used if nil.
	GetIdentity func(r *http.Request) string

	// DryRun enables the mode when rejected requests are logged and served anyway.
	DryRun bool

	// AddRateLimitHeaders enables X-RateLimit-* response headers.
	AddRateLimitHeaders bool

	MetricsCollector *RateLimitMetricsCollector

	OnReject         RateLimitOnRejectFunc
	OnRejectInDryRun RateLimitOnRejectFunc
	OnError          RateLimitOnErrorFunc
}

type rateLimitHandler struct {
	next              http.Handler
	processor         *ratelimit.RequestProcessor
	errDomain         string
	protectedPrefixes []string
	excludedClients   []func(s string) bool
	getIdentity       func(r *http.Request) string
	dryRun            bool
	addHeaders        bool
	metrics           *RateLimitMetricsCollector
	onReject          RateLimitOnRejectFunc
	onError           RateLimitOnErrorFunc
}

// RateLimit is a middleware that limits the rate of HTTP requests with the fixed window algorithm.
// Requests are counted per client identity and route category.
func RateLimit(
	limiter ratelimit.Limiter, errDomain string, opts RateLimitOpts,
) (func(next http.Handler) http.Handler, error) {
	processor, err := ratelimit.NewRequestProcessor(limiter, ratelimit.NewRouteClassifier(opts.SensitiveMarkers))
	if err != nil {
		return nil, fmt.Errorf("new rate limit request processor: %w", err)
	}

	protectedPrefixes := opts.ProtectedPrefixes
	if len(protectedPrefixes) == 0 {
		protectedPrefixes = DefaultRateLimitProtectedPrefixes
	}
	excludedClients := make([]func(s string) bool, 0, len(opts.ExcludedClients))
	for _, pattern := range opts.ExcludedClients {
		if pattern = strings.TrimSpace(pattern); pattern == "" {
			return nil, fmt.Errorf("excluded client pattern should not be empty")
		}
		excludedClients = append(excludedClients, glob.Compile(pattern))
	}
	getIdentity := opts.GetIdentity
	if getIdentity == nil {
		getIdentity = GetClientIdentity
	}

	return func(next http.Handler) http.Handler {
		return &rateLimitHandler{
			next:              next,
			processor:         processor,
			errDomain:         errDomain,
			protectedPrefixes: protectedPrefixes,
			excludedClients:   excludedClients,
			getIdentity:       getIdentity,
			dryRun:            opts.DryRun,
			addHeaders:        opts.AddRateLimitHeaders,
			metrics:           opts.MetricsCollector,
			onReject:          makeRateLimitOnRejectFunc(opts),
			onError:           makeRateLimitOnErrorFunc(opts),
		}
	}, nil
}

// MustRateLimit is a version of RateLimit that panics if an error occurs.
func MustRateLimit(limiter ratelimit.Limiter, errDomain string, opts RateLimitOpts) func(next http.Handler) http.Handler {
	mw, err := RateLimit(limiter, errDomain, opts)
	if err != nil {
		panic(err)
	}
	return mw
}

func (h *rateLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	_ = h.processor.ProcessRequest(&rateLimitRequestHandler{rw: rw, r: r, parent: h}) // Errors are handled in callbacks.
}

func (h *rateLimitHandler) isProtected(urlPath string) bool {
	urlPath = restapi.NormalizeURLPath(urlPath)
	for _, prefix := range h.protectedPrefixes {
		if strings.HasPrefix(urlPath, prefix) {
			return true
		}
	}
	return false
}

func (h *rateLimitHandler) isExcludedClient(identity string) bool {
	for _, match := range h.excludedClients {
		if match(identity) {
			return true
		}
	}
	return false
}

// rateLimitRequestHandler implements ratelimit.RequestHandler for HTTP requests.
type rateLimitRequestHandler struct {
	rw     http.ResponseWriter
	r      *http.Request
	parent *rateLimitHandler
}

func (h *rateLimitRequestHandler) GetContext() context.Context {
	return h.r.Context()
}

func (h *rateLimitRequestHandler) GetKey() (identity string, route string, bypass bool, err error) {
	identity = h.parent.getIdentity(h.r)
	bypass = !h.parent.isProtected(h.r.URL.Path) || h.parent.isExcludedClient(identity)
	return identity, h.r.URL.Path, bypass, nil
}

func (h *rateLimitRequestHandler) Execute(params ratelimit.Params) error {
	r := h.r.WithContext(NewContextWithClientIdentity(h.r.Context(), params.Identity))
	if params.Key == "" {
		h.parent.next.ServeHTTP(h.rw, r)
		return nil
	}
	h.parent.metrics.observe(params.Category, rateLimitDecisionAllowed, h.parent.dryRun)
	h.extendLoggingParams(params)
	if h.parent.addHeaders {
		setRateLimitHeaders(h.rw, params.Decision)
	}
	h.parent.next.ServeHTTP(h.rw, r)
	return nil
}

func (h *rateLimitRequestHandler) OnReject(params ratelimit.Params) error {
	h.parent.metrics.observe(params.Category, rateLimitDecisionRejected, h.parent.dryRun)
	h.extendLoggingParams(params)
	if h.parent.addHeaders {
		setRateLimitHeaders(h.rw, params.Decision)
	}
	r := h.r.WithContext(NewContextWithClientIdentity(h.r.Context(), params.Identity))
	h.parent.onReject(h.rw, r, h.convertParams(params), h.parent.next, GetLoggerFromContext(r.Context()))
	return nil
}

func (h *rateLimitRequestHandler) OnError(params ratelimit.Params, err error) error {
	h.parent.metrics.observe(params.Category, rateLimitDecisionError, h.parent.dryRun)
	h.parent.onError(h.rw, h.r, h.convertParams(params), err, h.parent.next, GetLoggerFromContext(h.r.Context()))
	return nil
}

func (h *rateLimitRequestHandler) extendLoggingParams(params ratelimit.Params) {
	if lp := GetLoggingParamsFromContext(h.r.Context()); lp != nil {
		lp.ExtendFields(
			log.String(RateLimitLogFieldKey, params.Key),
			log.String(RateLimitLogFieldCategory, string(params.Category)),
		)
	}
}

func (h *rateLimitRequestHandler) convertParams(params ratelimit.Params) RateLimitParams {
	return RateLimitParams{
		ErrDomain: h.parent.errDomain,
		Identity:  params.Identity,
		Category:  params.Category,
		Key:       params.Key,
		Decision:  params.Decision,
	}
}

func setRateLimitHeaders(rw http.ResponseWriter, decision ratelimit.Decision) {
	rw.Header().Set(headerRateLimitLimit, strconv.Itoa(decision.Limit))
	rw.Header().Set(headerRateLimitRemains, strconv.Itoa(decision.Remaining()))
	rw.Header().Set(headerRateLimitReset, strconv.FormatInt(decision.ResetAt.Unix(), 10))
}

// RetryAfterSeconds returns the value for the Retry-After header:
// the time left until the window resets rounded up to whole seconds.
// A rejection at the very end of the window carries no positive wait, then 1 is returned.
func RetryAfterSeconds(decision ratelimit.Decision) int {
	if decision.RetryAfter <= 0 {
		return 1
	}
	return int(math.Ceil(decision.RetryAfter.Seconds()))
}

// DefaultRateLimitOnReject responds with 429 and the rateLimitExceeded error.
func DefaultRateLimitOnReject(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, _ http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger = logger.With(
			log.String(RateLimitLogFieldKey, params.Key),
			log.String("user_agent", r.UserAgent()),
		)
	}
	rw.Header().Set(headerRetryAfter, strconv.Itoa(RetryAfterSeconds(params.Decision)))
	apiErr := restapi.NewError(params.ErrDomain, restapi.ErrCodeRateLimitExceeded, restapi.ErrMessageRateLimitExceeded)
	restapi.RespondError(rw, http.StatusTooManyRequests, apiErr, logger)
}

// DefaultRateLimitOnRejectInDryRun logs the rejection and serves the request.
func DefaultRateLimitOnRejectInDryRun(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Warn("rate limit exceeded, serving will be continued because of dry run mode",
			log.String(RateLimitLogFieldKey, params.Key),
			log.String("user_agent", r.UserAgent()),
		)
	}
	next.ServeHTTP(rw, r)
}

// DefaultRateLimitOnError logs the error and responds with 500.
// A failing limiter is a fault of the site, so the request is neither rejected with 429 nor served.
func DefaultRateLimitOnError(
	rw http.ResponseWriter, _ *http.Request, params RateLimitParams, err error, _ http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Error("rate limiting failed", log.Error(err), log.String(RateLimitLogFieldKey, params.Key))
	}
	restapi.RespondInternalError(rw, params.ErrDomain, logger)
}

func makeRateLimitOnRejectFunc(opts RateLimitOpts) RateLimitOnRejectFunc {
	if opts.DryRun {
		if opts.OnRejectInDryRun != nil {
			return opts.OnRejectInDryRun
		}
		return DefaultRateLimitOnRejectInDryRun
	}
	if opts.OnReject != nil {
		return opts.OnReject
	}
	return DefaultRateLimitOnReject
}

func makeRateLimitOnErrorFunc(opts RateLimitOpts) RateLimitOnErrorFunc {
	if opts.OnError != nil {
		return opts.OnError
	}
	return DefaultRateLimitOnError
}

const (
	rateLimitDecisionAllowed  = "allowed"
	rateLimitDecisionRejected = "rejected"
	rateLimitDecisionError    = "error"
)

// RateLimitMetricsCollector counts decisions made by the RateLimit middleware.
// Bypassed requests are not counted.
type RateLimitMetricsCollector struct {
	Decisions *prometheus.CounterVec
}

// NewRateLimitMetricsCollector creates a new RateLimitMetricsCollector.
func NewRateLimitMetricsCollector(namespace string) *RateLimitMetricsCollector {
	return &RateLimitMetricsCollector{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Number of rate limiting decisions.",
		}, []string{"category", "decision", "dry_run"}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (c *RateLimitMetricsCollector) MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(c.Decisions)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (c *RateLimitMetricsCollector) Unregister(registerer prometheus.Registerer) {
	registerer.Unregister(c.Decisions)
}

func (c *RateLimitMetricsCollector) observe(category ratelimit.RouteCategory, decision string, dryRun bool) {
	if c == nil {
		return
	}
	c.Decisions.WithLabelValues(string(category), decision, strconv.FormatBool(dryRun)).Inc()
}
