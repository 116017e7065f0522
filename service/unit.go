/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

// Unit is a component of the service with its own lifecycle.
type Unit interface {
	// Start runs the unit. It may return immediately after initialization or block for the unit's lifetime.
	// A failure is reported by writing to fatalErr; a successful Start never writes to it
	// and doesn't use the channel after returning.
	Start(fatalErr chan<- error)

	// Stop halts the unit, cleanly when gracefully is true.
	// It may be called even if Start has failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is an interface for objects that can register its own metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
