/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mobgames/site/log"
	"github.com/mobgames/site/service"
)

// Sweepable is a counters store that may drop expired counters.
type Sweepable interface {
	Sweep(now time.Time) int
}

// SweeperMetrics represents a collector of metrics for the expired counters sweeping.
type SweeperMetrics struct {
	EvictedTotal prometheus.Counter
	RunsTotal    *prometheus.CounterVec
}

// NewSweeperMetrics creates a new instance of SweeperMetrics.
func NewSweeperMetrics(namespace string) *SweeperMetrics {
	return &SweeperMetrics{
		EvictedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_evicted_counters_total",
			Help:      "Number of expired rate limiting counters removed by the sweeper.",
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_sweeps_total",
			Help:      "Number of sweeper runs.",
		}, []string{"status"}),
	}
}

// MustRegister registers metrics in Prometheus client and panics if any error occurs.
func (m *SweeperMetrics) MustRegister() {
	prometheus.MustRegister(m.EvictedTotal, m.RunsTotal)
}

// Unregister cancels registration of metrics collector in Prometheus client.
func (m *SweeperMetrics) Unregister() {
	prometheus.Unregister(m.EvictedTotal)
	prometheus.Unregister(m.RunsTotal)
}

// MustRegisterMetrics is a part of service.MetricsRegisterer interface.
func (m *SweeperMetrics) MustRegisterMetrics() {
	m.MustRegister()
}

// UnregisterMetrics is a part of service.MetricsRegisterer interface.
func (m *SweeperMetrics) UnregisterMetrics() {
	m.Unregister()
}

// Sweeper removes expired counters from the store.
// It implements service.Worker and is supposed to be run periodically.
type Sweeper struct {
	store   Sweepable
	clock   Clock
	logger  log.FieldLogger
	metrics *SweeperMetrics
}

// SweeperOpts contains optional parameters for constructing Sweeper.
type SweeperOpts struct {
	Clock   Clock
	Metrics *SweeperMetrics
}

// NewSweeper creates a new Sweeper.
func NewSweeper(store Sweepable, logger log.FieldLogger, opts SweeperOpts) *Sweeper {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	return &Sweeper{store: store, clock: opts.Clock, logger: logger, metrics: opts.Metrics}
}

// Run removes expired counters once. A panic in the store is converted into an error,
// so the next sweep is still scheduled.
func (s *Sweeper) Run(_ context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			const logStackSize = 8192
			stack := make([]byte, logStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			s.logger.Error("panic while sweeping expired rate limiting counters", log.Bytes("stack", stack))
			err = fmt.Errorf("sweep expired counters: panic: %v", p)
		}
		if s.metrics != nil {
			status := "ok"
			if err != nil {
				status = "error"
			}
			s.metrics.RunsTotal.WithLabelValues(status).Inc()
		}
	}()

	evicted := s.store.Sweep(s.clock.Now())
	if s.metrics != nil {
		s.metrics.EvictedTotal.Add(float64(evicted))
	}
	if evicted > 0 {
		s.logger.Debug("expired rate limiting counters removed", log.Int("evicted", evicted))
	}
	return nil
}

// NewSweeperUnit creates a service unit that sweeps the store every interval until it's stopped.
func NewSweeperUnit(
	store Sweepable, interval time.Duration, logger log.FieldLogger, opts SweeperOpts,
) *service.WorkerUnit {
	logger = logger.With(log.String("worker", "rate_limit_sweeper"))
	sweeper := NewSweeper(store, logger, opts)
	periodic := service.NewPeriodicWorkerWithOpts(sweeper, interval, logger,
		service.PeriodicWorkerOpts{InitialDelay: interval})
	var unitOpts service.WorkerUnitOpts
	if opts.Metrics != nil {
		unitOpts.MetricsRegisterer = opts.Metrics
	}
	return service.NewWorkerUnitWithOpts(periodic, unitOpts)
}

// Countable is a counters store that reports the number of live counters.
type Countable interface {
	Len() int
}

// NewLiveCountersGauge creates a gauge reporting the number of live counters of the store.
func NewLiveCountersGauge(namespace string, store Countable) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rate_limit_live_counters",
		Help:      "Current number of rate limiting counters kept in memory.",
	}, func() float64 {
		return float64(store.Len())
	})
}
