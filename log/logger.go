/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ssgreg/logf"
	"github.com/ssgreg/logftext"
	"gopkg.in/natefinch/lumberjack.v2"
)

const bytesInMiB = 1 << 20

// CloseFunc flushes and stops the asynchronous writer of the logger.
type CloseFunc logf.ChannelWriterCloseFunc

// LogFunc logs a message at the level it was bound to.
// nolint: revive
type LogFunc = logf.LogFunc

// FieldLogger is the structured logger used across the site.
type FieldLogger interface {
	With(...Field) FieldLogger
	WithLevel(level Level) FieldLogger

	Debug(string, ...Field)
	Info(string, ...Field)
	Warn(string, ...Field)
	Error(string, ...Field)

	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	Errorf(string, ...interface{})

	AtLevel(Level, func(LogFunc))
}

// NewLogger builds a logger from cfg. Entries are written asynchronously,
// the returned CloseFunc must be called before exit so nothing is lost.
func NewLogger(cfg *Config) (FieldLogger, CloseFunc) {
	writer, closeWriter := logf.NewChannelWriter(logf.ChannelWriterConfig{
		Appender:          newAppender(cfg, newOutputWriter(cfg)),
		EnableSyncOnError: true,
	})
	l := logf.NewLogger(toLogfLevel(cfg.Level), writer).With(logf.Int("pid", os.Getpid()))
	if cfg.AddCaller {
		l = l.WithCaller().WithCallerSkip(1) // LogfAdapter's own frame
	}

	var logger FieldLogger = &LogfAdapter{Logger: l}
	if cfg.Masking.Enabled {
		logger = NewMaskingLogger(logger, NewMasker(cfg.Masking.effectiveRules()))
	}
	return logger, CloseFunc(closeWriter)
}

// NewDisabledLogger returns a logger that drops everything.
func NewDisabledLogger() FieldLogger {
	return &LogfAdapter{Logger: logf.NewDisabledLogger()}
}

// LogfAdapter implements FieldLogger on top of logf.Logger.
type LogfAdapter struct {
	Logger *logf.Logger
}

// With returns a logger that adds fs to every entry.
func (l *LogfAdapter) With(fs ...Field) FieldLogger {
	return &LogfAdapter{Logger: l.Logger.With(fs...)}
}

// WithLevel returns a logger with an extra level check. The effective level is the highest one
// of the current and the passed levels, so it can only be raised.
func (l *LogfAdapter) WithLevel(level Level) FieldLogger {
	return &LogfAdapter{Logger: l.Logger.WithLevel(toLogfLevel(level))}
}

// Debug, Info, Warn and Error log msg with fs at the corresponding level.
func (l *LogfAdapter) Debug(msg string, fs ...Field) { l.Logger.Debug(msg, fs...) }
func (l *LogfAdapter) Info(msg string, fs ...Field)  { l.Logger.Info(msg, fs...) }
func (l *LogfAdapter) Warn(msg string, fs ...Field)  { l.Logger.Warn(msg, fs...) }
func (l *LogfAdapter) Error(msg string, fs ...Field) { l.Logger.Error(msg, fs...) }

// Debugf, Infof, Warnf and Errorf format the message first.
func (l *LogfAdapter) Debugf(format string, args ...interface{}) { l.printf(LevelDebug, format, args) }
func (l *LogfAdapter) Infof(format string, args ...interface{})  { l.printf(LevelInfo, format, args) }
func (l *LogfAdapter) Warnf(format string, args ...interface{})  { l.printf(LevelWarn, format, args) }
func (l *LogfAdapter) Errorf(format string, args ...interface{}) { l.printf(LevelError, format, args) }

// AtLevel calls fn only if the level is enabled. Use it to avoid building expensive fields for nothing.
func (l *LogfAdapter) AtLevel(level Level, fn func(LogFunc)) {
	l.Logger.AtLevel(toLogfLevel(level), fn)
}

func (l *LogfAdapter) printf(level Level, format string, args []interface{}) {
	l.AtLevel(level, func(logFn LogFunc) { logFn(fmt.Sprintf(format, args...)) })
}

func toLogfLevel(level Level) logf.Level {
	switch level {
	case LevelError:
		return logf.LevelError
	case LevelWarn:
		return logf.LevelWarn
	case LevelDebug:
		return logf.LevelDebug
	default:
		return logf.LevelInfo
	}
}

func newOutputWriter(cfg *Config) io.Writer {
	if cfg.Output == OutputStderr {
		return os.Stderr
	}
	if cfg.Output != OutputFile {
		return os.Stdout
	}
	rot := cfg.File.Rotation
	return &lumberjack.Logger{
		Filename:   expandFilePath(cfg.File.Path, time.Now()),
		MaxSize:    int(rot.MaxSize / bytesInMiB),
		MaxBackups: rot.MaxBackups,
		MaxAge:     rot.MaxAgeDays,
		Compress:   rot.Compress,
		LocalTime:  rot.LocalTimeInNames,
	}
}

func newAppender(cfg *Config, w io.Writer) logf.Appender {
	var errEncoder logf.ErrorEncoder
	if cfg.Error.NoVerbose || cfg.Error.VerboseSuffix != "" {
		errEncoder = logf.NewErrorEncoder(logf.ErrorEncoderConfig{
			NoVerboseField:     cfg.Error.NoVerbose,
			VerboseFieldSuffix: cfg.Error.VerboseSuffix,
		})
	}
	if cfg.Format == FormatText {
		noColor := cfg.NoColor
		return logftext.NewAppender(w, logftext.EncoderConfig{
			NoColor:     &noColor,
			EncodeTime:  logf.RFC3339NanoTimeEncoder,
			EncodeError: errEncoder,
		})
	}
	enc := logf.NewJSONEncoder(logf.JSONEncoderConfig{
		FieldKeyTime: "time",
		EncodeTime:   logf.RFC3339NanoTimeEncoder,
		EncodeError:  errEncoder,
	})
	return logf.NewWriteAppender(w, enc)
}

// expandFilePath substitutes {{starttime}}, {{pid}} and {{hostname}} in the log file path.
func expandFilePath(path string, start time.Time) string {
	if !strings.Contains(path, "{{") {
		return path
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return strings.NewReplacer(
		"{{starttime}}", start.Format("200601021504"),
		"{{pid}}", strconv.Itoa(os.Getpid()),
		"{{hostname}}", hostname,
	).Replace(path)
}
