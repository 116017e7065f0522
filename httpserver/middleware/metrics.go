/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Label names of the incoming request metrics.
const (
	httpRequestMetricsLabelMethod        = "method"
	httpRequestMetricsLabelRoutePattern  = "route_pattern"
	httpRequestMetricsLabelUserAgentType = "user_agent_type"
	httpRequestMetricsLabelStatusCode    = "status_code"
)

const (
	userAgentTypeBrowser    = "browser"
	userAgentTypeHTTPClient = "http-client"
)

// DefaultHTTPRequestDurationBuckets are the upper bounds (in seconds) of the request duration histogram.
// The site API calls Slack and Airtable synchronously, hence the long tail.
var DefaultHTTPRequestDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// HTTPRequestMetricsCollectorOpts represents options for HTTPRequestMetricsCollector.
type HTTPRequestMetricsCollectorOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
}

// HTTPRequestMetricsCollector holds Prometheus metrics of the incoming HTTP requests.
type HTTPRequestMetricsCollector struct {
	Durations *prometheus.HistogramVec
	InFlight  *prometheus.GaugeVec
}

// NewHTTPRequestMetricsCollector creates a collector with the default options.
func NewHTTPRequestMetricsCollector() *HTTPRequestMetricsCollector {
	return NewHTTPRequestMetricsCollectorWithOpts(HTTPRequestMetricsCollectorOpts{})
}

// NewHTTPRequestMetricsCollectorWithOpts creates a collector.
func NewHTTPRequestMetricsCollectorWithOpts(opts HTTPRequestMetricsCollectorOpts) *HTTPRequestMetricsCollector {
	buckets := DefaultHTTPRequestDurationBuckets
	if opts.DurationBuckets != nil {
		buckets = opts.DurationBuckets
	}
	durOpts := prometheus.HistogramOpts{
		Namespace:   opts.Namespace,
		Name:        "http_request_duration_seconds",
		Help:        "Duration of serving HTTP requests, labeled by route pattern and response status.",
		Buckets:     buckets,
		ConstLabels: opts.ConstLabels,
	}
	inFlightOpts := prometheus.GaugeOpts{
		Namespace:   opts.Namespace,
		Name:        "http_requests_in_flight",
		Help:        "Number of HTTP requests being served at the moment.",
		ConstLabels: opts.ConstLabels,
	}
	return &HTTPRequestMetricsCollector{
		Durations: prometheus.NewHistogramVec(durOpts, []string{
			httpRequestMetricsLabelMethod,
			httpRequestMetricsLabelRoutePattern,
			httpRequestMetricsLabelUserAgentType,
			httpRequestMetricsLabelStatusCode,
		}),
		InFlight: prometheus.NewGaugeVec(inFlightOpts, []string{
			httpRequestMetricsLabelMethod,
			httpRequestMetricsLabelUserAgentType,
		}),
	}
}

// MustRegister registers the collector metrics and panics on error.
func (c *HTTPRequestMetricsCollector) MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(c.Durations, c.InFlight)
}

// Unregister removes the collector metrics from the registerer.
func (c *HTTPRequestMetricsCollector) Unregister(registerer prometheus.Registerer) {
	for _, m := range []prometheus.Collector{c.Durations, c.InFlight} {
		registerer.Unregister(m)
	}
}

func (c *HTTPRequestMetricsCollector) trackInFlight(method, uaType string) (done func()) {
	g := c.InFlight.WithLabelValues(method, uaType)
	g.Inc()
	return g.Dec
}

func (c *HTTPRequestMetricsCollector) observe(method, routePattern, uaType string, status int, dur time.Duration) {
	c.Durations.WithLabelValues(method, routePattern, uaType, strconv.Itoa(status)).Observe(dur.Seconds())
}

// UserAgentTypeGetterFunc classifies the request by its User-Agent.
// The set of returned values must be small and fixed since it becomes a label.
type UserAgentTypeGetterFunc func(r *http.Request) string

// HTTPRequestMetricsOpts represents options for the HTTPRequestMetrics middleware.
type HTTPRequestMetricsOpts struct {
	GetUserAgentType  UserAgentTypeGetterFunc
	ExcludedEndpoints []string
}

// HTTPRequestMetrics is a middleware that measures durations of the incoming HTTP requests
// and tracks how many of them are in flight.
func HTTPRequestMetrics(
	collector *HTTPRequestMetricsCollector, getRoutePattern RoutePatternGetterFunc,
) func(next http.Handler) http.Handler {
	return HTTPRequestMetricsWithOpts(collector, getRoutePattern, HTTPRequestMetricsOpts{})
}

// HTTPRequestMetricsWithOpts is a more configurable version of HTTPRequestMetrics middleware.
func HTTPRequestMetricsWithOpts(
	collector *HTTPRequestMetricsCollector, getRoutePattern RoutePatternGetterFunc, opts HTTPRequestMetricsOpts,
) func(next http.Handler) http.Handler {
	if getRoutePattern == nil {
		panic("function for getting route pattern cannot be nil")
	}
	uaType := opts.GetUserAgentType
	if uaType == nil {
		uaType = determineUserAgentType
	}
	excluded := stringSet(opts.ExcludedEndpoints)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if _, skip := excluded[r.URL.Path]; skip {
				next.ServeHTTP(rw, r)
				return
			}

			startedAt := GetRequestStartTimeFromContext(r.Context())
			if startedAt.IsZero() {
				startedAt = time.Now()
				r = r.WithContext(NewContextWithRequestStartTime(r.Context(), startedAt))
			}
			ua := uaType(r)
			defer collector.trackInFlight(r.Method, ua)()

			wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
			defer func() {
				status := responseStatus(wrw)
				p := recover()
				if p == http.ErrAbortHandler { //nolint:errorlint
					panic(p)
				}
				if p != nil {
					status = http.StatusInternalServerError
				}
				// chi fills the route pattern while routing, so it's read after next is done.
				collector.observe(r.Method, getRoutePattern(r), ua, status, time.Since(startedAt))
				if p != nil {
					panic(p)
				}
			}()
			next.ServeHTTP(wrw, r)
		})
	}
}

func determineUserAgentType(r *http.Request) string {
	if strings.Contains(strings.ToLower(r.UserAgent()), "mozilla") {
		return userAgentTypeBrowser
	}
	return userAgentTypeHTTPClient
}
