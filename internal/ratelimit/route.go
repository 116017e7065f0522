/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

package ratelimit

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// DefaultSensitiveMarkers contains path substrings that mark authentication-related routes.
var DefaultSensitiveMarkers = []string{"auth", "login"}

// RouteClassifier maps a request path to a route category.
type RouteClassifier struct {
	matcher *ahocorasick.Matcher
}

// NewRouteClassifier creates a new RouteClassifier.
// Markers are matched case-insensitively anywhere in the path.
// If markers is empty, DefaultSensitiveMarkers are used.
func NewRouteClassifier(markers []string) *RouteClassifier {
	if len(markers) == 0 {
		markers = DefaultSensitiveMarkers
	}
	normalized := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			normalized = append(normalized, m)
		}
	}
	if len(normalized) == 0 {
		return &RouteClassifier{}
	}
	return &RouteClassifier{matcher: ahocorasick.NewStringMatcher(normalized)}
}

// Classify returns RouteCategorySensitive if the path contains at least one sensitive marker.
// A path matching several markers is still sensitive, the most restrictive category always wins.
func (c *RouteClassifier) Classify(path string) RouteCategory {
	if c.matcher != nil && c.matcher.Contains([]byte(strings.ToLower(path))) {
		return RouteCategorySensitive
	}
	return RouteCategoryGeneral
}
