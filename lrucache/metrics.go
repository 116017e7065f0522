/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector receives cache events. Implementations must be safe for concurrent use.
type MetricsCollector interface {
	SetAmount(int)
	IncHits()
	IncMisses()
	// AddEvictions counts entries dropped because the cache was full.
	AddEvictions(int)
	// AddExpirations counts entries dropped because their TTL was over.
	AddExpirations(int)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	Namespace string
	// ConstLabels distinguish several caches of the process, e.g. {"cache": "slack_profiles"}.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics is a MetricsCollector exposing the cache state as Prometheus metrics.
type PrometheusMetrics struct {
	EntriesAmount    prometheus.Gauge
	HitsTotal        prometheus.Counter
	MissesTotal      prometheus.Counter
	EvictionsTotal   prometheus.Counter
	ExpirationsTotal prometheus.Counter
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates PrometheusMetrics without namespace and labels.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates PrometheusMetrics.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace, Name: name, Help: help, ConstLabels: opts.ConstLabels,
		})
	}
	return &PrometheusMetrics{
		EntriesAmount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "cache_entries_amount",
			Help:        "Number of entries in the cache.",
			ConstLabels: opts.ConstLabels,
		}),
		HitsTotal:        counter("cache_hits_total", "Number of lookups that found a live entry."),
		MissesTotal:      counter("cache_misses_total", "Number of lookups that found nothing or an expired entry."),
		EvictionsTotal:   counter("cache_evictions_total", "Number of entries evicted because the cache was full."),
		ExpirationsTotal: counter("cache_expirations_total", "Number of removed expired entries."),
	}
}

func (pm *PrometheusMetrics) all() []prometheus.Collector {
	return []prometheus.Collector{pm.EntriesAmount, pm.HitsTotal, pm.MissesTotal, pm.EvictionsTotal, pm.ExpirationsTotal}
}

// MustRegister registers the metrics and panics on error.
func (pm *PrometheusMetrics) MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(pm.all()...)
}

// Unregister removes the metrics from the registerer.
func (pm *PrometheusMetrics) Unregister(registerer prometheus.Registerer) {
	for _, c := range pm.all() {
		registerer.Unregister(c)
	}
}

// The methods below implement MetricsCollector.
func (pm *PrometheusMetrics) SetAmount(n int)      { pm.EntriesAmount.Set(float64(n)) }
func (pm *PrometheusMetrics) IncHits()             { pm.HitsTotal.Inc() }
func (pm *PrometheusMetrics) IncMisses()           { pm.MissesTotal.Inc() }
func (pm *PrometheusMetrics) AddEvictions(n int)   { pm.EvictionsTotal.Add(float64(n)) }
func (pm *PrometheusMetrics) AddExpirations(n int) { pm.ExpirationsTotal.Add(float64(n)) }

type disabledMetrics struct{}

func (disabledMetrics) SetAmount(int)      {}
func (disabledMetrics) IncHits()           {}
func (disabledMetrics) IncMisses()         {}
func (disabledMetrics) AddEvictions(int)   {}
func (disabledMetrics) AddExpirations(int) {}
