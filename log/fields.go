/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"time"

	"github.com/ssgreg/logf"
)

// Field is a single key-value pair of a structured log entry.
type Field = logf.Field

// Field constructors. They're logf's ones, re-exported so the rest of the code depends on this package only.
var (
	Error      = logf.Error
	NamedError = logf.NamedError
	String     = logf.String
	Strings    = logf.Strings
	Bytes      = logf.Bytes
	Int        = logf.Int
	Int64      = logf.Int64
	Bool       = logf.Bool
	Duration   = logf.Duration
	Any        = logf.Any
)

// DurationIn returns the "duration" field holding val expressed in whole units.
func DurationIn(val, unit time.Duration) Field {
	return Int64("duration", int64(val/unit))
}
