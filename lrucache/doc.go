/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package lrucache provides in-memory cache with LRU eviction policy, expiration of entries,
// deduplicated loading and Prometheus metrics.
package lrucache
