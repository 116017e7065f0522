/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	stdlog "log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mobgames/site/internal/ratelimit"
	"github.com/mobgames/site/log"
)

func Example() {
	const errDomain = "MobGames"

	logger, closeFn := log.NewLogger(&log.Config{Output: log.OutputStdout, Format: log.FormatJSON, Level: log.LevelInfo})
	defer closeFn()

	limiter, err := ratelimit.NewFixedWindowLimiter(ratelimit.DefaultLimits())
	if err != nil {
		stdlog.Fatal(err)
	}

	metricsCollector := NewHTTPRequestMetricsCollector()
	metricsCollector.MustRegister(prometheus.DefaultRegisterer)
	defer metricsCollector.Unregister(prometheus.DefaultRegisterer)

	router := chi.NewRouter()
	router.Use(
		RequestID(),
		Logging(logger),
		Recovery(errDomain),
		HTTPRequestMetricsWithOpts(metricsCollector, GetChiRoutePattern, HTTPRequestMetricsOpts{
			ExcludedEndpoints: []string{"/metrics", "/healthz"},
		}),
		// Only /api/ routes are throttled, paths with "auth" or "login" get the stricter limit.
		MustRateLimit(limiter, errDomain, RateLimitOpts{AddRateLimitHeaders: true}),
	)

	router.Route("/api/user", func(r chi.Router) {
		r.Get("/", func(rw http.ResponseWriter, req *http.Request) {
			// Returns the profile of the logged-in user.
		})
		r.With(RequestBodyLimit(1024, errDomain)).Put("/updateUserMinecraftAccount", func(rw http.ResponseWriter, req *http.Request) {
			// Updates the Minecraft username.
		})
	})
}
