/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

package slack

import (
	"context"
	"time"

	"github.com/mobgames/site/lrucache"
)

// UserInfoGetter is implemented by Client.
type UserInfoGetter interface {
	UserInfo(ctx context.Context, token, userID string) (*User, error)
}

// ProfileCache caches users.info results by the user ID.
// The page with the participant's data is reloaded often, and Slack rate-limits users.info quite strictly.
type ProfileCache struct {
	getter UserInfoGetter
	cache  *lrucache.LRUCache[string, *User]
}

// NewProfileCache creates a new ProfileCache. Metrics collector can be nil.
func NewProfileCache(getter UserInfoGetter, cfg ProfileCacheConfig, metricsCollector lrucache.MetricsCollector) (*ProfileCache, error) {
	return newProfileCache(getter, cfg, metricsCollector, nil)
}

func newProfileCache(
	getter UserInfoGetter, cfg ProfileCacheConfig, metricsCollector lrucache.MetricsCollector, now func() time.Time,
) (*ProfileCache, error) {
	cache, err := lrucache.NewWithOpts[string, *User](cfg.MaxEntries, metricsCollector, lrucache.Options{
		DefaultTTL: time.Duration(cfg.TTL),
		Now:        now,
	})
	if err != nil {
		return nil, err
	}
	return &ProfileCache{getter: getter, cache: cache}, nil
}

// UserInfo returns the cached user or calls users.info with the passed token.
func (pc *ProfileCache) UserInfo(ctx context.Context, token, userID string) (*User, error) {
	return pc.cache.GetOrLoad(userID, func(userID string) (*User, error) {
		return pc.getter.UserInfo(ctx, token, userID)
	})
}

// Forget drops the cached user, e.g. on logout.
func (pc *ProfileCache) Forget(userID string) {
	pc.cache.Remove(userID)
}

// RemoveExpired implements lrucache.ExpiredRemover.
func (pc *ProfileCache) RemoveExpired() int {
	return pc.cache.RemoveExpired()
}
