/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

// Options represents options for the cache.
type Options struct {
	// DefaultTTL is the TTL for entries added by Add and GetOrLoad. Zero means no expiration.
	// Expired entries are removed when they are accessed or by RemoveExpired.
	DefaultTTL time.Duration

	// Now returns the current time. time.Now is used if nil.
	Now func() time.Time
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time // zero if the entry never expires
}

func (e *entry[K, V]) expiredAt(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// LRUCache is a size-bounded cache that evicts the least recently used entry when full.
// Entries may have a TTL. It's used for short-living copies of upstream data, e.g. Slack user profiles.
type LRUCache[K comparable, V any] struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time
	metrics  MetricsCollector
	loads    singleFlightGroup[K, V]

	mu      sync.Mutex
	order   *list.List // front is the most recently used, values are *entry[K, V]
	entries map[K]*list.Element
}

// New creates a new LRUCache. The metrics collector may be nil.
func New[K comparable, V any](maxEntries int, metricsCollector MetricsCollector) (*LRUCache[K, V], error) {
	return NewWithOpts[K, V](maxEntries, metricsCollector, Options{})
}

// NewWithOpts creates a new LRUCache with options. The metrics collector may be nil.
func NewWithOpts[K comparable, V any](maxEntries int, metricsCollector MetricsCollector, opts Options) (*LRUCache[K, V], error) {
	switch {
	case maxEntries <= 0:
		return nil, errors.New("maxEntries must be greater than 0")
	case opts.DefaultTTL < 0:
		return nil, errors.New("defaultTTL must be greater or equal to 0 (no expiration)")
	}
	c := &LRUCache[K, V]{
		capacity: maxEntries,
		ttl:      opts.DefaultTTL,
		now:      opts.Now,
		metrics:  metricsCollector,
		order:    list.New(),
		entries:  make(map[K]*list.Element, maxEntries),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.metrics == nil {
		c.metrics = disabledMetrics{}
	}
	return c, nil
}

// Get returns the value stored for key. An expired entry is removed and reported as a miss.
func (c *LRUCache[K, V]) Get(key K) (value V, ok bool) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.lookup(key, now)
	if !found {
		c.metrics.IncMisses()
		return value, false
	}
	c.metrics.IncHits()
	return e.value, true
}

// Add stores the value with the default TTL. The least recently used entry is evicted if the cache is full.
func (c *LRUCache[K, V]) Add(key K, value V) {
	c.AddWithTTL(key, value, c.ttl)
}

// AddWithTTL stores the value with the given TTL. Non-positive TTL means no expiration.
func (c *LRUCache[K, V]) AddWithTTL(key K, value V, ttl time.Duration) {
	e := &entry[K, V]{key: key, value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value = e
		c.order.MoveToFront(elem)
		return
	}
	c.entries[key] = c.order.PushFront(e)
	if c.order.Len() > c.capacity {
		c.unlink(c.order.Back())
		c.metrics.AddEvictions(1)
	}
	c.metrics.SetAmount(len(c.entries))
}

// GetOrLoad returns the cached value or calls load and caches its result with the default TTL.
// Concurrent calls for the same missing key share a single load call.
// Errors are returned to all waiting callers and are not cached.
func (c *LRUCache[K, V]) GetOrLoad(key K, load func(key K) (V, error)) (V, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}
	return c.loads.Do(key, func() (V, error) {
		// A concurrent load of the same key may have finished between Get and Do.
		if value, ok := c.peek(key); ok {
			return value, nil
		}
		value, err := load(key)
		if err == nil {
			c.Add(key, value)
		}
		return value, err
	})
}

// Remove deletes the entry and reports whether it was present.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if ok {
		c.unlink(elem)
		c.metrics.SetAmount(len(c.entries))
	}
	return ok
}

// RemoveExpired removes all expired entries and returns their number.
func (c *LRUCache[K, V]) RemoveExpired() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		if elem.Value.(*entry[K, V]).expiredAt(now) {
			c.unlink(elem)
			removed++
		}
		elem = next
	}
	c.metrics.AddExpirations(removed)
	c.metrics.SetAmount(len(c.entries))
	return removed
}

// Purge removes all entries. They are not counted as evictions.
func (c *LRUCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*list.Element, c.capacity)
	c.order.Init()
	c.metrics.SetAmount(0)
}

// Len returns the number of entries, including expired ones that are not removed yet.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// peek is Get without metrics.
func (c *LRUCache[K, V]) peek(key K) (value V, ok bool) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, found := c.lookup(key, now); found {
		return e.value, true
	}
	return value, false
}

// lookup finds a live entry and marks it as recently used. An expired one is dropped.
// c.mu must be held.
func (c *LRUCache[K, V]) lookup(key K, now time.Time) (*entry[K, V], bool) {
	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := elem.Value.(*entry[K, V])
	if e.expiredAt(now) {
		c.unlink(elem)
		c.metrics.AddExpirations(1)
		c.metrics.SetAmount(len(c.entries))
		return nil, false
	}
	c.order.MoveToFront(elem)
	return e, true
}

// unlink removes the element from both the list and the map. c.mu must be held.
func (c *LRUCache[K, V]) unlink(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.entries, elem.Value.(*entry[K, V]).key)
}
