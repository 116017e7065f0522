/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/mobgames/site/httpserver/middleware"
	"github.com/mobgames/site/internal/ratelimit"
	"github.com/mobgames/site/log"
	"github.com/mobgames/site/service"
)

// systemEndpoints are served by every site instance and never measured by the request metrics.
var systemEndpoints = []string{"/metrics", "/healthz"}

// Routes registers the site's handlers on the root router.
type Routes = func(router chi.Router)

// HTTPRequestMetricsOpts configures the request duration and in-flight metrics.
type HTTPRequestMetricsOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels

	GetUserAgentType middleware.UserAgentTypeGetterFunc
	// GetRoutePattern defaults to middleware.GetChiRoutePattern.
	GetRoutePattern middleware.RoutePatternGetterFunc
}

// RateLimitOpts configures request throttling. Throttling is off when Limiter is nil.
type RateLimitOpts struct {
	Limiter ratelimit.Limiter
	// Config provides protected prefixes, sensitive markers, excluded clients and modes.
	// ratelimit.NewDefaultConfig is used if nil.
	Config *ratelimit.Config
	// Namespace of the rate_limit_decisions_total metric.
	Namespace string
}

// Opts represents options for creating HTTPServer.
type Opts struct {
	Routes          Routes
	RootMiddlewares []func(http.Handler) http.Handler

	// ErrorDomain is put into every error response produced by the server itself.
	ErrorDomain string

	HealthCheck HealthCheck

	// MetricsHandler serves /metrics. promhttp.Handler is used if nil.
	MetricsHandler http.Handler

	HTTPRequestMetrics HTTPRequestMetricsOpts
	RateLimit          RateLimitOpts

	// Registerer defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	// Listener is used instead of listening on Config.Address. Tests pass one bound to a random port.
	Listener net.Listener
}

func (opts *Opts) routerOpts() RouterOpts {
	return RouterOpts{
		Routes:          opts.Routes,
		RootMiddlewares: opts.RootMiddlewares,
		ErrorDomain:     opts.ErrorDomain,
		HealthCheck:     opts.HealthCheck,
		MetricsHandler:  opts.MetricsHandler,
	}
}

// HTTPServer serves the site API with a chi router behind the standard middleware chain:
// request id, logging, recovery, metrics, throttling and the body size limit.
// It implements service.Unit and service.MetricsRegisterer.
type HTTPServer struct {
	URL             string
	HTTPServer      *http.Server
	TLS             TLSConfig
	HTTPRouter      chi.Router
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listener   net.Listener
	port       atomic.Int32
	serving    atomic.Value // chan struct{}, closed when Start returns
	registerer prometheus.Registerer

	httpReqMetrics   *middleware.HTTPRequestMetricsCollector
	rateLimitMetrics *middleware.RateLimitMetricsCollector
}

var _ service.Unit = (*HTTPServer)(nil)
var _ service.MetricsRegisterer = (*HTTPServer)(nil)

// New creates a new HTTPServer.
func New(cfg *Config, logger log.FieldLogger, opts Opts) (*HTTPServer, error) { //nolint:gocritic // hugeParam
	s := &HTTPServer{
		URL:             "http://" + cfg.Address,
		TLS:             cfg.TLS,
		Logger:          logger,
		ShutdownTimeout: time.Duration(cfg.Timeouts.Shutdown),
		listener:        opts.Listener,
		registerer:      opts.Registerer,
		httpReqMetrics: middleware.NewHTTPRequestMetricsCollectorWithOpts(middleware.HTTPRequestMetricsCollectorOpts{
			Namespace:       opts.HTTPRequestMetrics.Namespace,
			DurationBuckets: opts.HTTPRequestMetrics.DurationBuckets,
			ConstLabels:     opts.HTTPRequestMetrics.ConstLabels,
		}),
	}
	if cfg.TLS.Enabled {
		s.URL = "https://" + cfg.Address
	}
	if s.registerer == nil {
		s.registerer = prometheus.DefaultRegisterer
	}
	if opts.RateLimit.Limiter != nil {
		s.rateLimitMetrics = middleware.NewRateLimitMetricsCollector(opts.RateLimit.Namespace)
	}

	mws, err := defaultMiddlewares(cfg, logger, &opts, s.httpReqMetrics, s.rateLimitMetrics)
	if err != nil {
		return nil, err
	}
	router := chi.NewRouter()
	router.Use(mws...)
	configureRouter(router, logger, opts.routerOpts())
	s.HTTPRouter = router

	s.HTTPServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           router,
		ReadTimeout:       time.Duration(cfg.Timeouts.Read),
		ReadHeaderTimeout: time.Duration(cfg.Timeouts.ReadHeader),
		WriteTimeout:      time.Duration(cfg.Timeouts.Write),
		IdleTimeout:       time.Duration(cfg.Timeouts.Idle),
	}
	return s, nil
}

// Start serves requests until the server is stopped. It blocks, so it's run in a separate goroutine.
// A failure other than stopping is logged and sent to fatalError.
func (s *HTTPServer) Start(fatalError chan<- error) {
	done := make(chan struct{})
	defer close(done)
	s.serving.Store(done)

	logger := s.Logger.With(
		log.String("address", s.HTTPServer.Addr),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("read_header_timeout", s.HTTPServer.ReadHeaderTimeout),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("idle_timeout", s.HTTPServer.IdleTimeout),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)
	logger.Info("starting application HTTP server...")

	err := s.listen()
	if err == nil {
		err = s.serve()
	}
	switch {
	case err == nil:
	case errors.Is(err, http.ErrServerClosed):
		logger.Info("application HTTP server closed")
	default:
		logger.Error("application HTTP server error", log.Error(err))
		fatalError <- err
	}
}

func (s *HTTPServer) listen() error {
	if s.listener == nil {
		ln, err := net.Listen("tcp", s.HTTPServer.Addr)
		if err != nil {
			return err
		}
		s.listener = ln
	}
	addr := s.listener.Addr()
	if addr.Network() != "tcp" {
		return nil
	}
	_, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return fmt.Errorf("split TCP listener address %q: %w", addr, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return fmt.Errorf("parse port of TCP listener address %q: %w", addr, err)
	}
	s.port.Store(int32(port))
	return nil
}

func (s *HTTPServer) serve() error {
	if s.TLS.Enabled {
		return s.HTTPServer.ServeTLS(s.listener, s.TLS.Certificate, s.TLS.Key)
	}
	return s.HTTPServer.Serve(s.listener)
}

// Stop stops the server. Graceful stop waits for the active requests up to ShutdownTimeout.
// In both cases Stop returns after Start has returned.
func (s *HTTPServer) Stop(gracefully bool) error {
	if gracefully {
		ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
		defer cancel()
		s.Logger.Info("shutting down application HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
		if err := s.HTTPServer.Shutdown(ctx); err != nil {
			s.Logger.Error("application HTTP server shutting down error", log.Error(err))
			return err
		}
		s.Logger.Info("application HTTP server shut down")
	} else {
		s.Logger.Info("closing application HTTP server...")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("application HTTP server closing error", log.Error(err))
			return err
		}
	}
	if done, ok := s.serving.Load().(chan struct{}); ok {
		<-done
	}
	return nil
}

// MustRegisterMetrics implements service.MetricsRegisterer.
func (s *HTTPServer) MustRegisterMetrics() {
	s.httpReqMetrics.MustRegister(s.registerer)
	if s.rateLimitMetrics != nil {
		s.rateLimitMetrics.MustRegister(s.registerer)
	}
}

// UnregisterMetrics implements service.MetricsRegisterer.
func (s *HTTPServer) UnregisterMetrics() {
	s.httpReqMetrics.Unregister(s.registerer)
	if s.rateLimitMetrics != nil {
		s.rateLimitMetrics.Unregister(s.registerer)
	}
}

// GetPort returns the TCP port the server listens on. It's 0 until the server is started.
func (s *HTTPServer) GetPort() int {
	return int(s.port.Load())
}
