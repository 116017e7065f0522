/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"strings"
)

// UnknownClientIdentity is used when none of the proxy headers carries the client address.
// All such clients share a single rate limiting bucket.
const UnknownClientIdentity = "unknown"

const (
	headerForwardedFor     = "X-Forwarded-For"
	headerRealIP           = "X-Real-IP"
	headerCFConnectingIP   = "CF-Connecting-IP"
	headerRetryAfter       = "Retry-After"
	headerRateLimitLimit   = "X-RateLimit-Limit"
	headerRateLimitRemains = "X-RateLimit-Remaining"
	headerRateLimitReset   = "X-RateLimit-Reset"
)

// GetClientIdentity resolves the client identity from the proxy headers in the following order:
// the first entry of X-Forwarded-For, X-Real-IP, CF-Connecting-IP.
// UnknownClientIdentity is returned if all of them are empty.
// The socket address is never used since the site is always served behind a proxy.
func GetClientIdentity(r *http.Request) string {
	if identity := getOriginAddr(r); identity != "" {
		return identity
	}
	if cfIP := strings.TrimSpace(r.Header.Get(headerCFConnectingIP)); cfIP != "" {
		return cfIP
	}
	return UnknownClientIdentity
}

func getOriginAddr(r *http.Request) string {
	if forwardFor := r.Header.Get(headerForwardedFor); forwardFor != "" {
		if first := strings.IndexByte(forwardFor, ','); first != -1 {
			forwardFor = forwardFor[:first]
		}
		if addr := strings.TrimSpace(forwardFor); addr != "" {
			return addr
		}
	}
	return strings.TrimSpace(r.Header.Get(headerRealIP))
}
