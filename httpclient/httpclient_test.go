/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/mobgames/site/httpserver/middleware"
	"github.com/mobgames/site/log"
	"github.com/mobgames/site/log/logtest"
)

func newTestClientConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Retries.Policy = PolicyConfig{Strategy: RetryPolicyConstant, ConstantBackoffInterval: time.Millisecond}
	cfg.Log.Mode = string(LoggingModeAll)
	return cfg
}

func TestNewWithOpts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if calls.Inc() == 1 {
			rw.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "Bearer pat-token", r.Header.Get("Authorization"))
		assert.Equal(t, "mobgames-site/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "req-1", r.Header.Get("X-Request-ID"))
		assert.Equal(t, "1", r.Header.Get(RetryAttemptNumberHeader))
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := prometheus.NewRegistry()
	collector := NewPrometheusMetricsCollector("")
	collector.MustRegister(registry)

	logger := logtest.NewRecorder()
	client, err := NewWithOpts(newTestClientConfig(), Opts{
		ClientType:   "airtable",
		UserAgent:    "mobgames-site/1.0",
		AuthProvider: StaticTokenProvider("pat-token"),
		RateLimit:    100,
		Collector:    collector,
	})
	require.NoError(t, err)
	require.Equal(t, DefaultClientWaitTimeout, client.Timeout)

	ctx := middleware.NewContextWithLogger(context.Background(), logger)
	ctx = middleware.NewContextWithRequestID(ctx, "req-1")
	ctx = NewContextWithOperation(ctx, "find participant")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/v0/base/Participants", http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int32(2), calls.Load())

	// Every attempt is logged and measured separately.
	require.Len(t, logger.FindAllEntriesByFilter(func(entry logtest.RecordedEntry) bool {
		return entry.Text == "client http request completed" || entry.Text == "client http request completed with error status"
	}), 2)
	entry, found := logger.FindEntry("client http request completed")
	require.True(t, found)
	field, found := entry.FindField("operation")
	require.True(t, found)
	require.Equal(t, log.String("operation", "find participant"), *field)

	require.Equal(t, 2, promtestutil.CollectAndCount(collector.Durations))
}

func TestNew_DisabledFeatures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		calls.Inc()
		assert.Empty(t, r.Header.Get("Authorization"))
		rw.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := newTestClientConfig()
	cfg.Retries.Enabled = false
	cfg.Log.Enabled = false

	logger := logtest.NewRecorder()
	client, err := New(cfg)
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(
		middleware.NewContextWithLogger(context.Background(), logger), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Equal(t, int32(1), calls.Load())
	require.Empty(t, logger.Entries())
}

func TestNewWithOpts_InvalidOptions(t *testing.T) {
	cfg := newTestClientConfig()
	cfg.Retries.MaxAttempts = -5
	_, err := NewWithOpts(cfg, Opts{})
	require.Error(t, err)

	require.Panics(t, func() {
		MustWithOpts(cfg, Opts{})
	})

	_, err = NewWithOpts(NewDefaultConfig(), Opts{RateLimit: 5, RateLimitBurst: -1})
	require.Error(t, err)
}
