/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"io"
	"os"
	"sync"

	"github.com/ssgreg/logf"
	"github.com/ssgreg/logftext"

	"github.com/mobgames/site/log"
)

// LoggerOpts configures the logger returned by NewLoggerWithOpts.
type LoggerOpts struct {
	// Output defaults to os.Stderr.
	Output io.Writer
	// Text switches the format from JSON to the human-readable one.
	Text bool
}

// NewLogger returns a debug-level logger that writes JSON lines to stderr.
// Entries are written synchronously, so it must not be used outside of tests.
func NewLogger() log.FieldLogger {
	return NewLoggerWithOpts(LoggerOpts{})
}

// NewLoggerWithOpts returns a debug-level logger configured by opts.
func NewLoggerWithOpts(opts LoggerOpts) log.FieldLogger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	var appender logf.Appender
	if opts.Text {
		appender = logftext.NewAppender(out, logftext.EncoderConfig{EncodeTime: logf.RFC3339NanoTimeEncoder})
	} else {
		appender = logf.NewWriteAppender(out, logf.NewJSONEncoder(logf.JSONEncoderConfig{
			EncodeTime:   logf.RFC3339NanoTimeEncoder,
			FieldKeyTime: "time",
		}))
	}
	return &log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, &syncEntryWriter{appender: appender})}
}

type syncEntryWriter struct {
	mu       sync.Mutex
	appender logf.Appender
}

//nolint:gocritic
func (w *syncEntryWriter) WriteEntry(e logf.Entry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.appender.Append(e); err == nil {
		_ = w.appender.Flush()
	}
}
