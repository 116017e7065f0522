/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/mobgames/site/log"
)

func TestWorkerUnit_StartStop(t *testing.T) {
	t.Run("stop gracefully waits for the worker", func(t *testing.T) {
		var finished atomic.Bool
		unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			time.Sleep(time.Millisecond * 50)
			finished.Store(true)
			return nil
		}))

		fatalErr := make(chan error, 1)
		go unit.Start(fatalErr)
		require.Eventually(t, unit.started.Load, time.Second, time.Millisecond*5)

		require.NoError(t, unit.Stop(true))
		require.True(t, finished.Load())
		require.Empty(t, fatalErr)
	})

	t.Run("periodic worker", func(t *testing.T) {
		var runs atomic.Int32
		unit := NewWorkerUnit(NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			runs.Inc()
			return nil
		}), time.Millisecond*10, log.NewDisabledLogger()))

		go unit.Start(make(chan error, 1))
		require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond*5)
		require.NoError(t, unit.Stop(true))
	})

	t.Run("graceful stop timeout", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		unit := NewWorkerUnitWithOpts(WorkerFunc(func(ctx context.Context) error {
			<-release
			return nil
		}), WorkerUnitOpts{GracefulStopTimeout: time.Millisecond * 50})

		go unit.Start(make(chan error, 1))
		require.Eventually(t, unit.started.Load, time.Second, time.Millisecond*5)
		require.ErrorIs(t, unit.Stop(true), ErrWorkerUnitStopTimeoutExceeded)
	})

	t.Run("worker error is fatal", func(t *testing.T) {
		workerErr := errors.New("redis is unreachable")
		unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error { return workerErr }))
		fatalErr := make(chan error, 1)
		unit.Start(fatalErr)
		require.ErrorIs(t, <-fatalErr, workerErr)
		require.NoError(t, unit.Stop(true))
	})

	t.Run("stop without start", func(t *testing.T) {
		unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error { return nil }))
		require.NoError(t, unit.Stop(true))
	})
}

type countingMetrics struct {
	registered, unregistered atomic.Int32
}

func (m *countingMetrics) MustRegisterMetrics() { m.registered.Inc() }

func (m *countingMetrics) UnregisterMetrics() { m.unregistered.Inc() }

func TestWorkerUnit_Metrics(t *testing.T) {
	metrics := &countingMetrics{}
	unit := NewWorkerUnitWithOpts(WorkerFunc(func(ctx context.Context) error { return nil }),
		WorkerUnitOpts{MetricsRegisterer: metrics})
	unit.MustRegisterMetrics()
	unit.UnregisterMetrics()
	require.EqualValues(t, 1, metrics.registered.Load())
	require.EqualValues(t, 1, metrics.unregistered.Load())

	NewWorkerUnit(WorkerFunc(func(ctx context.Context) error { return nil })).MustRegisterMetrics()
}
