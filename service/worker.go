/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/mobgames/site/log"
)

// ErrPeriodicWorkerStop ends the PeriodicWorker loop without an error when returned by the wrapped worker.
var ErrPeriodicWorkerStop = errors.New("stop periodic worker")

// Worker does (usually long-running) work until ctx is done.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc lets an ordinary function be used as a Worker.
type WorkerFunc func(ctx context.Context) error

func (f WorkerFunc) Run(ctx context.Context) error { return f(ctx) }

// PeriodicWorkerOpts are optional parameters of PeriodicWorker.
type PeriodicWorkerOpts struct {
	InitialDelay time.Duration

	// IntervalDelayFunc overrides the constant interval.
	// It gets the result of the last run, so it may back off after failures.
	IntervalDelayFunc func(worker Worker, err error) time.Duration
}

// PeriodicWorker calls the wrapped worker on a timer until the context is done.
// Errors of single runs are logged, they don't stop the loop.
type PeriodicWorker struct {
	worker   Worker
	logger   log.FieldLogger
	interval time.Duration
	opts     PeriodicWorkerOpts
}

func NewPeriodicWorker(worker Worker, intervalDelay time.Duration, logger log.FieldLogger) *PeriodicWorker {
	return NewPeriodicWorkerWithOpts(worker, intervalDelay, logger, PeriodicWorkerOpts{})
}

func NewPeriodicWorkerWithOpts(
	worker Worker, intervalDelay time.Duration, logger log.FieldLogger, opts PeriodicWorkerOpts,
) *PeriodicWorker {
	return &PeriodicWorker{worker: worker, logger: logger, interval: intervalDelay, opts: opts}
}

// Run implements Worker. It returns nil both on context cancellation and on ErrPeriodicWorkerStop.
func (pw *PeriodicWorker) Run(ctx context.Context) (err error) {
	pw.logger.Info("running periodic worker",
		log.Duration("initial_delay", pw.opts.InitialDelay), log.Duration("interval", pw.interval))
	defer pw.logExit(&err)

	timer := time.NewTimer(pw.opts.InitialDelay)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil
		}
		runErr := pw.worker.Run(ctx)
		if errors.Is(runErr, ErrPeriodicWorkerStop) {
			return nil
		}
		if runErr != nil {
			pw.logger.Error("periodically running worker finished with error", log.Error(runErr))
		}
		timer.Reset(pw.nextDelay(runErr))
	}
}

func (pw *PeriodicWorker) nextDelay(lastErr error) time.Duration {
	if pw.opts.IntervalDelayFunc == nil {
		return pw.interval
	}
	return pw.opts.IntervalDelayFunc(pw.worker, lastErr)
}

// logExit is deferred by Run. Panics are logged with a stack and propagated.
func (pw *PeriodicWorker) logExit(errPtr *error) {
	if p := recover(); p != nil {
		stack := make([]byte, 8192)
		stack = stack[:runtime.Stack(stack, false)]
		pw.logger.Error(fmt.Sprintf("panic in periodic worker: %+v", p), log.Bytes("stack", stack))
		panic(p)
	}
	if *errPtr != nil {
		pw.logger.Error("periodic worker stopped with error", log.Error(*errPtr))
		return
	}
	pw.logger.Info("periodic worker stopped")
}
