/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mobgames/site/httpserver/middleware"
	"github.com/mobgames/site/internal/ratelimit"
	"github.com/mobgames/site/log"
	"github.com/mobgames/site/restapi"
)

type mwFunc = func(http.Handler) http.Handler

// RouterOpts are the parts of the router that don't depend on the server config.
type RouterOpts struct {
	Routes          Routes
	RootMiddlewares []func(http.Handler) http.Handler
	ErrorDomain     string
	HealthCheck     HealthCheck
	MetricsHandler  http.Handler
}

// NewRouter creates a chi router with the system endpoints (/metrics, /healthz),
// the application routes and JSON 404/405 handlers.
func NewRouter(logger log.FieldLogger, opts RouterOpts) chi.Router {
	router := chi.NewRouter()
	configureRouter(router, logger, opts)
	return router
}

func configureRouter(router chi.Router, logger log.FieldLogger, opts RouterOpts) {
	router.Use(opts.RootMiddlewares...)

	if opts.MetricsHandler == nil {
		opts.MetricsHandler = promhttp.Handler()
	}
	router.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	router.Method(http.MethodGet, "/healthz", NewHealthCheckHandler(opts.HealthCheck))
	if opts.Routes != nil {
		opts.Routes(router)
	}

	router.NotFound(errorHandler(logger, http.StatusNotFound,
		restapi.NewError(opts.ErrorDomain, restapi.ErrCodeNotFound, restapi.ErrMessageNotFound)))
	router.MethodNotAllowed(errorHandler(logger, http.StatusMethodNotAllowed,
		restapi.NewError(opts.ErrorDomain, restapi.ErrCodeMethodNotAllowed, restapi.ErrMessageMethodNotAllowed)))
}

func errorHandler(logger log.FieldLogger, status int, apiErr *restapi.Error) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		reqLogger := middleware.GetLoggerFromContext(r.Context())
		if reqLogger == nil {
			reqLogger = logger
		}
		restapi.RespondError(rw, status, apiErr, reqLogger)
	}
}

// defaultMiddlewares returns the server's middleware chain in the order it's applied:
// start time, request ids, logging, recovery, metrics, throttling and body size limit.
// Recovery goes after logging so that panics are logged with the request fields and a 500 status.
func defaultMiddlewares(
	cfg *Config, logger log.FieldLogger, opts *Opts,
	httpReqMetrics *middleware.HTTPRequestMetricsCollector, rateLimitMetrics *middleware.RateLimitMetricsCollector,
) ([]mwFunc, error) {
	mws := []mwFunc{
		requestStartTime,
		middleware.RequestID(),
		middleware.LoggingWithOpts(logger, loggingOpts(&cfg.Log)),
		middleware.Recovery(opts.ErrorDomain),
	}

	getRoutePattern := opts.HTTPRequestMetrics.GetRoutePattern
	if getRoutePattern == nil {
		getRoutePattern = middleware.GetChiRoutePattern
	}
	mws = append(mws, middleware.HTTPRequestMetricsWithOpts(httpReqMetrics, getRoutePattern,
		middleware.HTTPRequestMetricsOpts{
			GetUserAgentType:  opts.HTTPRequestMetrics.GetUserAgentType,
			ExcludedEndpoints: systemEndpoints,
		}))

	if opts.RateLimit.Limiter != nil {
		rlCfg := opts.RateLimit.Config
		if rlCfg == nil {
			rlCfg = ratelimit.NewDefaultConfig()
		}
		rateLimit, err := middleware.RateLimit(opts.RateLimit.Limiter, opts.ErrorDomain, middleware.RateLimitOpts{
			ProtectedPrefixes:   rlCfg.ProtectedPrefixes,
			SensitiveMarkers:    rlCfg.SensitiveMarkers,
			ExcludedClients:     rlCfg.ExcludedClients,
			DryRun:              rlCfg.DryRun,
			AddRateLimitHeaders: rlCfg.AddHeaders,
			MetricsCollector:    rateLimitMetrics,
		})
		if err != nil {
			return nil, fmt.Errorf("create rate limit middleware: %w", err)
		}
		mws = append(mws, rateLimit)
	}

	if cfg.Limits.MaxBodySize > 0 {
		mws = append(mws, middleware.RequestBodyLimit(uint64(cfg.Limits.MaxBodySize), opts.ErrorDomain))
	}
	return mws, nil
}

// loggingOpts maps header names to log field keys, "X-Forwarded-Host" is logged as "req_header_x_forwarded_host".
func loggingOpts(cfg *LogConfig) middleware.LoggingOpts {
	headers := make(map[string]string, len(cfg.RequestHeaders))
	for _, name := range cfg.RequestHeaders {
		headers[name] = "req_header_" + strings.ToLower(strings.ReplaceAll(name, "-", "_"))
	}
	return middleware.LoggingOpts{
		RequestStart:           cfg.RequestStart,
		RequestHeaders:         headers,
		ExcludedEndpoints:      cfg.ExcludedEndpoints,
		SecretQueryParams:      cfg.SecretQueryParams,
		AddRequestInfoToLogger: cfg.AddRequestInfoToLogger,
		SlowRequestThreshold:   time.Duration(cfg.SlowRequestThreshold),
	}
}

func requestStartTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(rw, r.WithContext(middleware.NewContextWithRequestStartTime(r.Context(), time.Now())))
	})
}
