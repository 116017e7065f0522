/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobgames/site/testutil"
)

func durationHist(c *HTTPRequestMetricsCollector, method, route, uaType, status string) prometheus.Histogram {
	return c.Durations.WithLabelValues(method, route, uaType, status).(prometheus.Histogram)
}

func urlPathPattern(r *http.Request) string { return r.URL.Path }

func TestHTTPRequestMetrics_Durations(t *testing.T) {
	isBot := func(r *http.Request) string {
		if r.UserAgent() == "mobgames-bot" {
			return "bot"
		}
		return userAgentTypeHTTPClient
	}

	tests := []struct {
		name      string
		method    string
		target    string
		userAgent string
		status    int
		requests  int
		uaGetter  UserAgentTypeGetterFunc
		excluded  []string
		wantUA    string
		wantCount int
	}{
		{
			name: "api client", method: http.MethodGet, target: "/api/user", userAgent: "curl/8.0",
			status: http.StatusOK, requests: 4, wantUA: userAgentTypeHTTPClient, wantCount: 4,
		},
		{
			name: "browser", method: http.MethodPut, target: "/api/user/updateUserMinecraftAccount",
			userAgent: "Mozilla/5.0 (X11; Linux x86_64)", status: http.StatusNotFound, requests: 3,
			wantUA: userAgentTypeBrowser, wantCount: 3,
		},
		{
			name: "custom user agent classifier", method: http.MethodPost, target: "/api/logout",
			userAgent: "mobgames-bot", status: http.StatusTooManyRequests, requests: 2, uaGetter: isBot,
			wantUA: "bot", wantCount: 2,
		},
		{
			name: "excluded probe", method: http.MethodGet, target: "/healthz", userAgent: "kube-probe/1.29",
			status: http.StatusOK, requests: 5, excluded: []string{"/healthz"},
			wantUA: userAgentTypeHTTPClient, wantCount: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := NewHTTPRequestMetricsCollector()
			calls := 0
			next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
				calls++
				rw.WriteHeader(tt.status)
			})
			h := HTTPRequestMetricsWithOpts(collector, urlPathPattern, HTTPRequestMetricsOpts{
				GetUserAgentType:  tt.uaGetter,
				ExcludedEndpoints: tt.excluded,
			})(next)

			for i := 0; i < tt.requests; i++ {
				req := httptest.NewRequest(tt.method, tt.target, nil)
				req.Header.Set("User-Agent", tt.userAgent)
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, req)
				require.Equal(t, tt.status, rec.Code)
			}

			require.Equal(t, tt.requests, calls)
			hist := durationHist(collector, tt.method, tt.target, tt.wantUA, strconv.Itoa(tt.status))
			testutil.AssertSamplesCountInHistogram(t, hist, tt.wantCount)
			testutil.RequireCollectorValue(t, collector.InFlight.WithLabelValues(tt.method, tt.wantUA), 0)
		})
	}
}

func TestHTTPRequestMetrics_InFlight(t *testing.T) {
	collector := NewHTTPRequestMetricsCollector()
	var during float64
	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		during = promtestutil.ToFloat64(collector.InFlight.WithLabelValues(http.MethodGet, userAgentTypeHTTPClient))
	})
	HTTPRequestMetrics(collector, urlPathPattern)(next).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/user", nil))

	require.Equal(t, float64(1), during)
	testutil.RequireCollectorValue(t, collector.InFlight.WithLabelValues(http.MethodGet, userAgentTypeHTTPClient), 0)
}

func TestHTTPRequestMetrics_Panic(t *testing.T) {
	collector := NewHTTPRequestMetricsCollector()
	h := HTTPRequestMetrics(collector, urlPathPattern)(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		panic("airtable client is nil")
	}))

	require.Panics(t, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/user", nil))
	})
	testutil.AssertSamplesCountInHistogram(t,
		durationHist(collector, http.MethodGet, "/api/user", userAgentTypeHTTPClient, "500"), 1)
	testutil.RequireCollectorValue(t, collector.InFlight.WithLabelValues(http.MethodGet, userAgentTypeHTTPClient), 0)

	t.Run("abort handler is not counted", func(t *testing.T) {
		abort := HTTPRequestMetrics(collector, urlPathPattern)(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			panic(http.ErrAbortHandler)
		}))
		assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
			abort.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/logout", nil))
		})
		testutil.AssertSamplesCountInHistogram(t,
			durationHist(collector, http.MethodGet, "/api/logout", userAgentTypeHTTPClient, "500"), 0)
	})
}

func TestHTTPRequestMetrics_ChiRoutePattern(t *testing.T) {
	collector := NewHTTPRequestMetricsCollector()
	router := chi.NewRouter()
	router.Use(HTTPRequestMetrics(collector, GetChiRoutePattern))
	router.Get("/api/users/{id}", func(rw http.ResponseWriter, r *http.Request) {})

	for _, id := range []string{"U01", "U02", "U03"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/users/"+id, nil))
	}
	testutil.AssertSamplesCountInHistogram(t,
		durationHist(collector, http.MethodGet, "/api/users/{id}", userAgentTypeHTTPClient, "200"), 3)
}

func TestHTTPRequestMetricsCollector_Register(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewHTTPRequestMetricsCollectorWithOpts(HTTPRequestMetricsCollectorOpts{Namespace: "mobgames"})
	collector.MustRegister(registry)
	require.Panics(t, func() { collector.MustRegister(registry) })
	collector.Unregister(registry)
	require.NotPanics(t, func() { collector.MustRegister(registry) })
}
