/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

// Package session keeps the signed-in participant in a cookie.
// The cookie value is an HS256-signed JWT with the Slack user ID and the user token.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoSession is returned when the request has no session cookie.
	ErrNoSession = errors.New("no session")

	// ErrInvalidSession is returned when the session cookie is malformed, forged or expired.
	ErrInvalidSession = errors.New("invalid session")
)

// Data is the payload of the session.
type Data struct {
	SlackID     string `json:"slackId"`
	AccessToken string `json:"accessToken"`
}

type claims struct {
	Data
	jwt.RegisteredClaims
}

// Manager issues, reads and clears session cookies.
type Manager struct {
	secret     []byte
	ttl        time.Duration
	secure     bool
	cookieName string
	now        func() time.Time
}

// NewManager creates a new Manager.
func NewManager(cfg *Config) *Manager {
	return &Manager{
		secret:     []byte(cfg.Secret),
		ttl:        time.Duration(cfg.TTL),
		secure:     cfg.Secure,
		cookieName: cfg.CookieName,
		now:        time.Now,
	}
}

// Issue sets the session cookie.
func (m *Manager) Issue(rw http.ResponseWriter, data Data) error {
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Data: data,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   data.SlackID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return fmt.Errorf("sign session token: %w", err)
	}
	http.SetCookie(rw, m.newCookie(signed, int(m.ttl/time.Second)))
	return nil
}

// Clear expires the session cookie.
func (m *Manager) Clear(rw http.ResponseWriter) {
	http.SetCookie(rw, m.newCookie("", -1))
}

// FromRequest returns the session data of the request.
func (m *Manager) FromRequest(r *http.Request) (Data, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return Data{}, ErrNoSession
	}
	var c claims
	_, err = jwt.ParseWithClaims(cookie.Value, &c, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired(), jwt.WithTimeFunc(m.now))
	if err != nil {
		return Data{}, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	if c.SlackID == "" || c.AccessToken == "" {
		return Data{}, fmt.Errorf("%w: incomplete data", ErrInvalidSession)
	}
	return c.Data, nil
}

func (m *Manager) newCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	}
}
