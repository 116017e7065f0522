/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package profserver provides a service unit exposing pprof handlers on a separate address,
// so profiles can be taken without going through the public router and its throttling.
package profserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mobgames/site/httpserver/middleware"
	"github.com/mobgames/site/log"
	"github.com/mobgames/site/service"
)

const shutdownTimeout = 5 * time.Second

// ProfServer is an HTTP server serving /debug/pprof/.
// It implements service.Unit interface.
type ProfServer struct {
	URL        string
	HTTPServer *http.Server
	Logger     log.FieldLogger

	done chan struct{}
}

var _ service.Unit = (*ProfServer)(nil)

// New creates a new ProfServer.
func New(cfg *Config, logger log.FieldLogger) *ProfServer {
	logger = logger.With(log.String("address", cfg.Address))

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID(),
		middleware.LoggingWithOpts(logger, middleware.LoggingOpts{}),
	)
	router.Mount("/debug", chimiddleware.Profiler())

	return &ProfServer{
		URL: "http://" + cfg.Address,
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		Logger: logger,
		done:   make(chan struct{}),
	}
}

// Start serves pprof in a blocking way. A fatal error is sent into the fatalError channel.
func (s *ProfServer) Start(fatalError chan<- error) {
	defer close(s.done)

	s.Logger.Info("starting profiling server")
	err := s.HTTPServer.ListenAndServe()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		s.Logger.Info("profiling server closed")
		return
	}
	s.Logger.Error("profiling server error", log.Error(err))
	fatalError <- err
}

// Stop stops the server. Running profiles (e.g. 30s CPU profile) are waited for a few seconds when gracefully is true.
func (s *ProfServer) Stop(gracefully bool) error {
	var err error
	if gracefully {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = s.HTTPServer.Shutdown(ctx)
	} else {
		err = s.HTTPServer.Close()
	}
	if err != nil {
		s.Logger.Error("profiling server stopping error", log.Error(err))
		_ = s.HTTPServer.Close()
	}
	<-s.done
	return err
}
