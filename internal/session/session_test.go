/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func newTestManager(now *time.Time) *Manager {
	cfg := NewDefaultConfig()
	cfg.Secret = testSecret
	m := NewManager(cfg)
	m.now = func() time.Time { return *now }
	return m
}

func requestWithCookies(cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func TestManager_IssueAndRead(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now)

	rec := httptest.NewRecorder()
	require.NoError(t, m.Issue(rec, Data{SlackID: "U012AB3CD", AccessToken: "xoxp-1"}))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]
	require.Equal(t, "userData", cookie.Name)
	require.Equal(t, "/", cookie.Path)
	require.Equal(t, 3600, cookie.MaxAge)
	require.True(t, cookie.HttpOnly)
	require.False(t, cookie.Secure)
	require.Equal(t, http.SameSiteStrictMode, cookie.SameSite)

	data, err := m.FromRequest(requestWithCookies(cookie))
	require.NoError(t, err)
	require.Equal(t, Data{SlackID: "U012AB3CD", AccessToken: "xoxp-1"}, data)

	now = now.Add(time.Hour + time.Second)
	_, err = m.FromRequest(requestWithCookies(cookie))
	require.ErrorIs(t, err, ErrInvalidSession)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestManager_FromRequest_Errors(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now)

	_, err := m.FromRequest(requestWithCookies())
	require.ErrorIs(t, err, ErrNoSession)

	_, err = m.FromRequest(requestWithCookies(&http.Cookie{Name: "userData", Value: `{"slackId":"U1","accessToken":"x"}`}))
	require.ErrorIs(t, err, ErrInvalidSession)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Data:             Data{SlackID: "U1", AccessToken: "x"},
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	}).SignedString([]byte("another-secret-another-secret-123"))
	require.NoError(t, err)
	_, err = m.FromRequest(requestWithCookies(&http.Cookie{Name: "userData", Value: forged}))
	require.ErrorIs(t, err, ErrInvalidSession)
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims{
		Data:             Data{SlackID: "U1", AccessToken: "x"},
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.FromRequest(requestWithCookies(&http.Cookie{Name: "userData", Value: unsigned}))
	require.ErrorIs(t, err, ErrInvalidSession)

	incomplete, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Data:             Data{SlackID: "U1"},
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = m.FromRequest(requestWithCookies(&http.Cookie{Name: "userData", Value: incomplete}))
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestManager_Clear(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Secret = testSecret
	cfg.Secure = true
	m := NewManager(cfg)

	rec := httptest.NewRecorder()
	m.Clear(rec)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "userData", cookies[0].Name)
	require.Empty(t, cookies[0].Value)
	require.Equal(t, -1, cookies[0].MaxAge)
	require.True(t, cookies[0].Secure)
}
