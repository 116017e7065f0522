/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertSamplesCountInHistogram asserts how many observations the histogram has recorded.
func AssertSamplesCountInHistogram(t assert.TestingT, hist prometheus.Histogram, wantSamplesCount int) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	reg := prometheus.NewPedanticRegistry()
	if !assert.NoError(t, reg.Register(hist)) {
		return false
	}
	families, err := reg.Gather()
	if !assert.NoError(t, err) || !assert.Len(t, families, 1) || !assert.Len(t, families[0].GetMetric(), 1) {
		return false
	}
	gotCount := families[0].GetMetric()[0].GetHistogram().GetSampleCount()
	return assert.Equal(t, wantSamplesCount, int(gotCount), "samples in histogram %s", families[0].GetName())
}

// RequireSamplesCountInHistogram is like AssertSamplesCountInHistogram but stops the test on failure.
func RequireSamplesCountInHistogram(t require.TestingT, hist prometheus.Histogram, wantSamplesCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if !AssertSamplesCountInHistogram(t, hist, wantSamplesCount) {
		t.FailNow()
	}
}

// RequireCollectorValue fails the test immediately if the single metric exposed by
// the collector (a counter or a gauge) doesn't have the wanted value.
func RequireCollectorValue(t require.TestingT, c prometheus.Collector, want float64) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, want, promtest.ToFloat64(c))
}
