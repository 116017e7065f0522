/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides the request throttler of the site.
//
// Requests are counted per client key (client identity plus route category) in fixed windows.
// Authentication-related routes get a lower limit than the rest of the API.
// The window of a key starts with its first request and lasts for the configured duration,
// after that the next request opens a new window.
//
// Key features:
//   - In-memory and Redis-backed fixed window limiters
//   - Case-insensitive route classification by path markers
//   - Periodic sweeping of expired in-memory counters
//   - Transport-agnostic RequestProcessor used by the HTTP middleware
package ratelimit
