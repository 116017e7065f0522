/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobgames/site/config"
	"github.com/mobgames/site/httpserver/middleware"
	"github.com/mobgames/site/internal/ratelimit"
	"github.com/mobgames/site/log"
	"github.com/mobgames/site/log/logtest"
	"github.com/mobgames/site/restapi"
	"github.com/mobgames/site/testutil"
)

const testErrDomain = "MobGames"

// runningServer is an HTTPServer started on a loopback address for the duration of a test.
type runningServer struct {
	*HTTPServer
	t       *testing.T
	baseURL string
	client  *http.Client
}

func runServer(t *testing.T, cfg *Config, logger log.FieldLogger, opts Opts) *runningServer {
	t.Helper()
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:0"
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}
	srv, err := New(cfg, logger, opts)
	require.NoError(t, err)
	srv.MustRegisterMetrics()

	fatalErr := make(chan error, 1)
	go srv.Start(fatalErr)
	require.Eventually(t, func() bool { return srv.GetPort() != 0 }, 3*time.Second, 10*time.Millisecond)
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(srv.GetPort()))
	require.NoError(t, testutil.WaitListeningServer(addr, 3*time.Second))

	t.Cleanup(func() {
		require.NoError(t, srv.Stop(false))
		srv.UnregisterMetrics()
		require.Len(t, fatalErr, 0)
	})

	scheme := "http"
	if cfg.TLS.Enabled {
		scheme = "https"
	}
	return &runningServer{HTTPServer: srv, t: t, baseURL: scheme + "://" + addr, client: &http.Client{}}
}

// do sends the request and returns the response with its body read.
func (rs *runningServer) do(method, path string, body io.Reader, headers map[string]string) (*http.Response, []byte) {
	rs.t.Helper()
	req, err := http.NewRequest(method, rs.baseURL+path, body)
	require.NoError(rs.t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := rs.client.Do(req)
	require.NoError(rs.t, err)
	defer func() { require.NoError(rs.t, resp.Body.Close()) }()
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(rs.t, err)
	return resp, respBody
}

func (rs *runningServer) get(path string, headers map[string]string) (*http.Response, []byte) {
	rs.t.Helper()
	return rs.do(http.MethodGet, path, http.NoBody, headers)
}

func (rs *runningServer) requireAPIError(method, path string, wantStatus int, wantCode string) {
	rs.t.Helper()
	req, err := http.NewRequest(method, rs.baseURL+path, http.NoBody)
	require.NoError(rs.t, err)
	resp, err := rs.client.Do(req)
	require.NoError(rs.t, err)
	defer func() { _ = resp.Body.Close() }()
	testutil.RequireErrorInResponse(rs.t, resp, wantStatus, wantCode)
}

func siteRoutes(router chi.Router) {
	router.Get("/api/hello", func(rw http.ResponseWriter, r *http.Request) {
		restapi.RespondJSON(rw, map[string]string{"message": "hello"}, middleware.GetLoggerFromContext(r.Context()))
	})
	router.Get("/api/auth/slack/callback", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusNoContent)
	})
	router.Post("/api/panic", func(rw http.ResponseWriter, r *http.Request) {
		panic("airtable record is nil")
	})
}

func TestHTTPServer_Routes(t *testing.T) {
	srv := runServer(t, &Config{}, logtest.NewLogger(), Opts{ErrorDomain: testErrDomain, Routes: siteRoutes})
	require.Equal(t, "http://127.0.0.1:0", srv.URL)

	resp, body := srv.get("/api/hello", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"message":"hello"}`, string(body))

	srv.requireAPIError(http.MethodPost, "/api/panic", http.StatusInternalServerError, restapi.ErrCodeInternal)
	srv.requireAPIError(http.MethodPost, "/api/hello", http.StatusMethodNotAllowed, restapi.ErrCodeMethodNotAllowed)
	srv.requireAPIError(http.MethodGet, "/api/unknown", http.StatusNotFound, restapi.ErrCodeNotFound)
}

func TestHTTPServer_SystemEndpoints(t *testing.T) {
	srv := runServer(t, &Config{}, logtest.NewLogger(), Opts{})

	resp, body := srv.get("/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, body)

	resp, body = srv.get("/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"components":{}}`, string(body))
}

func TestHTTPServer_CustomMetricsHandler(t *testing.T) {
	const banner = "# mobgames site\n"
	handler := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(rw, banner)
		promhttp.Handler().ServeHTTP(rw, r)
	})
	srv := runServer(t, &Config{}, logtest.NewLogger(), Opts{MetricsHandler: handler})

	resp, body := srv.get("/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.HasPrefix(string(body), banner))
}

func TestHTTPServer_StaticAddress(t *testing.T) {
	addr := testutil.GetLocalAddrWithFreeTCPPort()
	srv := runServer(t, &Config{Address: addr}, logtest.NewLogger(), Opts{})
	require.Equal(t, "http://"+addr, srv.baseURL)
	require.Equal(t, "http://"+addr, srv.URL)
}

func TestHTTPServer_TLS(t *testing.T) {
	certPath, keyPath := writeSelfSignedCert(t)
	srv := runServer(t, &Config{TLS: TLSConfig{Enabled: true, Certificate: certPath, Key: keyPath}},
		logtest.NewLogger(), Opts{})
	require.True(t, strings.HasPrefix(srv.URL, "https://"))

	certPEM, err := os.ReadFile(certPath)
	require.NoError(t, err)
	roots := x509.NewCertPool()
	require.True(t, roots.AppendCertsFromPEM(certPEM))
	srv.client = &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: roots}}} //nolint:gosec

	resp, _ := srv.get("/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPServer_RateLimit(t *testing.T) {
	limiter, err := ratelimit.NewFixedWindowLimiter(ratelimit.Limits{
		Window: time.Minute, General: 2, Sensitive: 1, CleanupInterval: time.Minute,
	})
	require.NoError(t, err)
	registry := prometheus.NewRegistry()
	srv := runServer(t, &Config{}, logtest.NewLogger(), Opts{
		ErrorDomain: testErrDomain,
		Routes:      siteRoutes,
		RateLimit:   RateLimitOpts{Limiter: limiter},
		Registerer:  registry,
	})
	from := func(ip string) map[string]string { return map[string]string{"X-Forwarded-For": ip} }

	for i := 0; i < 2; i++ {
		resp, _ := srv.get("/api/hello", from("203.0.113.7"))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))
		require.Equal(t, strconv.Itoa(1-i), resp.Header.Get("X-RateLimit-Remaining"))
	}

	req, err := http.NewRequest(http.MethodGet, srv.baseURL+"/api/hello", http.NoBody)
	require.NoError(t, err)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	resp, err := srv.client.Do(req)
	require.NoError(t, err)
	errResp := testutil.RequireErrorInResponse(t, resp, http.StatusTooManyRequests, restapi.ErrCodeRateLimitExceeded)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, restapi.ErrMessageRateLimitExceeded, errResp.Message)
	retryAfter, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	require.NoError(t, err)
	require.True(t, retryAfter > 0 && retryAfter <= 60, "Retry-After is %d", retryAfter)

	// The sensitive category has its own counter.
	resp, _ = srv.get("/api/auth/slack/callback", from("203.0.113.7"))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = srv.get("/api/auth/slack/callback", from("203.0.113.7"))
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, _ = srv.get("/api/hello", from("198.51.100.1"))
	require.Equal(t, http.StatusOK, resp.StatusCode, "another client is counted separately")

	for i := 0; i < 3; i++ {
		resp, _ = srv.get("/healthz", from("203.0.113.7"))
		require.Equal(t, http.StatusOK, resp.StatusCode, "system endpoints are not throttled")
	}

	// general/allowed, general/rejected, sensitive/allowed, sensitive/rejected
	series, err := promtestutil.GatherAndCount(registry, "rate_limit_decisions_total")
	require.NoError(t, err)
	require.Equal(t, 4, series)
}

func TestHTTPServer_MaxBodySize(t *testing.T) {
	routes := func(router chi.Router) {
		router.Put("/api/user/updateUserMinecraftAccount", func(rw http.ResponseWriter, r *http.Request) {
			logger := middleware.GetLoggerFromContext(r.Context())
			var reqData struct {
				MinecraftUsername string `json:"minecraftUsername"`
			}
			err := restapi.DecodeRequestJSON(r, &reqData)
			var malformedErr *restapi.MalformedRequestError
			switch {
			case err == nil:
				rw.WriteHeader(http.StatusNoContent)
			case errors.As(err, &malformedErr):
				restapi.RespondMalformedRequestError(rw, testErrDomain, malformedErr, logger)
			default:
				restapi.RespondInternalError(rw, testErrDomain, logger)
			}
		})
	}
	srv := runServer(t, &Config{Limits: LimitsConfig{MaxBodySize: 32}}, logtest.NewLogger(),
		Opts{ErrorDomain: testErrDomain, Routes: routes})
	jsonHeaders := map[string]string{"Content-Type": restapi.ContentTypeAppJSON}

	resp, _ := srv.do(http.MethodPut, "/api/user/updateUserMinecraftAccount",
		strings.NewReader(`{"minecraftUsername":"Steve"}`), jsonHeaders)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = srv.do(http.MethodPut, "/api/user/updateUserMinecraftAccount",
		strings.NewReader(`{"minecraftUsername":"`+strings.Repeat("a", 64)+`"}`), jsonHeaders)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestHTTPServer_Logging(t *testing.T) {
	recorder := logtest.NewRecorder()
	srv := runServer(t, &Config{Log: LogConfig{
		RequestStart:      true,
		RequestHeaders:    []string{"X-Custom-Header1", "X-Custom-Header2"},
		ExcludedEndpoints: []string{"/metrics", "/healthz"},
		SecretQueryParams: []string{"code", "state"},
	}}, recorder, Opts{ErrorDomain: testErrDomain, Routes: siteRoutes})

	resp, _ := srv.get("/api/hello?code=xoxb-secret&state=abc&foo=bar", map[string]string{
		"X-Custom-Header1": "value1",
		"X-Custom-Header2": "value2",
		"X-Custom-Header3": "value3",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, prefix := range []string{"request started", "response completed"} {
		entry, found := recorder.FindEntryByFilter(func(e logtest.RecordedEntry) bool {
			return strings.HasPrefix(e.Text, prefix)
		})
		require.True(t, found, "%q is not logged", prefix)

		for key, want := range map[string]string{
			"req_header_x_custom_header1": "value1",
			"req_header_x_custom_header2": "value2",
		} {
			f, ok := entry.FindField(key)
			require.True(t, ok, key)
			assert.Equal(t, want, string(f.Bytes))
		}
		_, found = entry.FindField("req_header_x_custom_header3")
		require.False(t, found)

		f, ok := entry.FindField("uri")
		require.True(t, ok)
		loggedURL, err := url.Parse(string(f.Bytes))
		require.NoError(t, err)
		query := loggedURL.Query()
		require.Equal(t, "bar", query.Get("foo"))
		require.Equal(t, middleware.LoggingSecretQueryPlaceholder, query.Get("code"))
		require.Equal(t, middleware.LoggingSecretQueryPlaceholder, query.Get("state"))
	}

	recorder.Reset()
	for _, path := range []string{"/metrics", "/healthz"} {
		resp, _ = srv.get(path, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	require.Empty(t, recorder.Entries(), "successful system requests are not logged")
}

func TestHTTPServer_Stop(t *testing.T) {
	slowRoutes := func(router chi.Router) {
		router.Get("/api/sleep", func(rw http.ResponseWriter, r *http.Request) {
			time.Sleep(time.Second)
			restapi.RespondJSON(rw, map[string]string{"message": "done"}, middleware.GetLoggerFromContext(r.Context()))
		})
	}
	startSlow := func(t *testing.T) (*HTTPServer, chan error) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		srv, err := New(&Config{Address: ln.Addr().String(), Timeouts: TimeoutsConfig{Shutdown: config.TimeDuration(3 * time.Second)}},
			logtest.NewLogger(), Opts{Routes: slowRoutes, Listener: ln, Registerer: prometheus.NewRegistry()})
		require.NoError(t, err)
		fatalErr := make(chan error, 1)
		go srv.Start(fatalErr)
		require.NoError(t, testutil.WaitListeningServer(ln.Addr().String(), 3*time.Second))
		return srv, fatalErr
	}
	callSlow := func(srv *HTTPServer) <-chan error {
		result := make(chan error, 1)
		go func() {
			resp, err := (&http.Client{Timeout: 5 * time.Second}).Get(srv.URL + "/api/sleep")
			if err != nil {
				result <- err
				return
			}
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				err = fmt.Errorf("unexpected status code %d", resp.StatusCode)
			}
			result <- err
		}()
		time.Sleep(500 * time.Millisecond) // the request reaches the handler
		return result
	}

	t.Run("graceful", func(t *testing.T) {
		srv, fatalErr := startSlow(t)
		result := callSlow(srv)
		require.NoError(t, srv.Stop(true))
		require.NoError(t, <-result, "in-flight request must be served")
		require.Len(t, fatalErr, 0)
	})

	t.Run("immediate", func(t *testing.T) {
		srv, fatalErr := startSlow(t)
		result := callSlow(srv)
		require.NoError(t, srv.Stop(false))
		require.Error(t, <-result, "connection must be closed at once")
		require.Len(t, fatalErr, 0)
	})

	t.Run("not started", func(t *testing.T) {
		for _, gracefully := range []bool{true, false} {
			srv, err := New(&Config{Address: testutil.GetLocalAddrWithFreeTCPPort(),
				Timeouts: TimeoutsConfig{Shutdown: config.TimeDuration(time.Second)}}, logtest.NewLogger(), Opts{})
			require.NoError(t, err)
			require.NoError(t, srv.Stop(gracefully))
		}
	})
}

func TestHTTPServer_StartFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = busy.Close() }()

	recorder := logtest.NewRecorder()
	srv, err := New(&Config{Address: busy.Addr().String()}, recorder, Opts{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	fatalErr := make(chan error, 1)
	srv.Start(fatalErr)

	require.Error(t, <-fatalErr)
	_, found := recorder.FindEntry("application HTTP server error")
	require.True(t, found)
	require.NoError(t, srv.Stop(false))
}

func writeSelfSignedCert(t *testing.T) (certPath, keyPath string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{Organization: []string{"Mob Games"}},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	certPath, keyPath = filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certPath, keyPath
}
