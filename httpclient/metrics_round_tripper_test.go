/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/mobgames/site/testutil"
)

func TestMetricsRoundTripper_RoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()
	serverURL, err := url.Parse(server.URL)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	collector := NewPrometheusMetricsCollector("mobgames")
	collector.MustRegister(registry)
	defer collector.Unregister(registry)

	client := &http.Client{Transport: NewMetricsRoundTripperWithOpts(http.DefaultTransport, MetricsRoundTripperOpts{
		ClientType: "airtable",
		Collector:  collector,
	})}

	ctx := NewContextWithOperation(context.Background(), "update minecraft username")
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, server.URL+"/v0/app1/Participants/rec1", http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	req, err = http.NewRequest(http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)
	resp, err = client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	hist := collector.Durations.WithLabelValues("airtable", serverURL.Host, "PATCH update minecraft username", "418")
	testutil.RequireSamplesCountInHistogram(t, hist.(prometheus.Histogram), 1)
	hist = collector.Durations.WithLabelValues("airtable", serverURL.Host, "GET", "418")
	testutil.RequireSamplesCountInHistogram(t, hist.(prometheus.Histogram), 1)

	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Equal(t, "mobgames_http_client_request_duration_seconds", families[0].GetName())
}

func TestMetricsRoundTripper_RoundTrip_Error(t *testing.T) {
	collector := NewPrometheusMetricsCollector("")
	client := &http.Client{Transport: NewMetricsRoundTripperWithOpts(http.DefaultTransport, MetricsRoundTripperOpts{
		ClientType: "slack",
		Collector:  collector,
	})}
	req, err := http.NewRequest(http.MethodGet, "http://127.0.0.1:1/api/users.info", http.NoBody)
	require.NoError(t, err)
	_, err = client.Do(req) //nolint:bodyclose
	require.Error(t, err)

	hist := collector.Durations.WithLabelValues("slack", "127.0.0.1:1", "GET", "0")
	testutil.RequireSamplesCountInHistogram(t, hist.(prometheus.Histogram), 1)
}
