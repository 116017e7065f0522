/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector receives the outcome of every upstream request.
// status is "0" when no response was received.
type MetricsCollector interface {
	RequestDuration(clientType, remoteAddress, summary, status string, startTime time.Time)
}

var clientDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// PrometheusMetricsCollector exposes http_client_request_duration_seconds.
type PrometheusMetricsCollector struct {
	Durations *prometheus.HistogramVec
}

var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)

func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	opts := prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_client_request_duration_seconds",
		Help:      "Durations of requests to upstream APIs (Slack, Airtable).",
		Buckets:   clientDurationBuckets,
	}
	return &PrometheusMetricsCollector{
		Durations: prometheus.NewHistogramVec(opts, []string{"client_type", "remote_address", "summary", "status"}),
	}
}

func (c *PrometheusMetricsCollector) MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(c.Durations)
}

func (c *PrometheusMetricsCollector) Unregister(registerer prometheus.Registerer) {
	registerer.Unregister(c.Durations)
}

func (c *PrometheusMetricsCollector) RequestDuration(clientType, host, summary, status string, start time.Time) {
	c.Durations.WithLabelValues(clientType, host, summary, status).Observe(time.Since(start).Seconds())
}

type MetricsRoundTripperOpts struct {
	ClientType string
	Collector  MetricsCollector
}

// MetricsRoundTripper reports every request to the Collector. Without a Collector it's a no-op.
type MetricsRoundTripper struct {
	Delegate   http.RoundTripper
	ClientType string
	Collector  MetricsCollector
}

func NewMetricsRoundTripperWithOpts(delegate http.RoundTripper, opts MetricsRoundTripperOpts) *MetricsRoundTripper {
	return &MetricsRoundTripper{Delegate: delegate, ClientType: opts.ClientType, Collector: opts.Collector}
}

func (rt *MetricsRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Collector == nil {
		return rt.Delegate.RoundTrip(r)
	}
	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	status := 0
	if err == nil && resp != nil {
		status = resp.StatusCode
	}
	rt.Collector.RequestDuration(rt.ClientType, r.URL.Host, requestSummary(r), strconv.Itoa(status), start)
	return resp, err
}

// requestSummary is a low-cardinality label: URLs carry record and user ids,
// so the operation name from the context is used instead of the path.
func requestSummary(r *http.Request) string {
	op := GetOperationFromContext(r.Context())
	if op == "" {
		return r.Method
	}
	return r.Method + " " + op
}
