/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"context"
	"time"

	"github.com/mobgames/site/log"
	"github.com/mobgames/site/service"
)

// ExpiredRemover is a cache that may drop its expired entries.
type ExpiredRemover interface {
	RemoveExpired() int
}

// NewCleanupWorker creates a service.Worker that removes expired entries of the cache once per run.
func NewCleanupWorker(cache ExpiredRemover, logger log.FieldLogger) service.Worker {
	return service.WorkerFunc(func(_ context.Context) error {
		if removed := cache.RemoveExpired(); removed > 0 {
			logger.Debug("expired cache entries removed", log.Int("removed", removed))
		}
		return nil
	})
}

// NewCleanupUnit creates a service unit that removes expired entries of the cache every interval.
func NewCleanupUnit(cache ExpiredRemover, interval time.Duration, logger log.FieldLogger) *service.WorkerUnit {
	logger = logger.With(log.String("worker", "cache_cleanup"))
	return service.NewWorkerUnit(service.NewPeriodicWorkerWithOpts(
		NewCleanupWorker(cache, logger), interval, logger, service.PeriodicWorkerOpts{InitialDelay: interval}))
}
