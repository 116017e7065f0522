/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"unsafe"

	"github.com/ssgreg/logf"
)

// StringMasker hides secrets in a string.
type StringMasker interface {
	Mask(s string) string
}

// MaskingLogger masks secrets in messages and fields before passing them to the wrapped logger.
// Upstream errors may carry a Slack token or an OAuth code in a URL, so the site logger is always wrapped.
type MaskingLogger struct {
	log    FieldLogger
	masker StringMasker
}

// NewMaskingLogger wraps l.
func NewMaskingLogger(l FieldLogger, m StringMasker) FieldLogger {
	return MaskingLogger{l, m}
}

// With returns a logger that adds the masked fs to every entry.
func (l MaskingLogger) With(fs ...Field) FieldLogger {
	return MaskingLogger{l.log.With(l.maskFields(fs)...), l.masker}
}

// WithLevel raises the level of the wrapped logger.
func (l MaskingLogger) WithLevel(level Level) FieldLogger {
	return MaskingLogger{l.log.WithLevel(level), l.masker}
}

// Debug, Info, Warn and Error mask msg and fs and pass them on.
func (l MaskingLogger) Debug(msg string, fs ...Field) {
	l.log.Debug(l.masker.Mask(msg), l.maskFields(fs)...)
}

func (l MaskingLogger) Info(msg string, fs ...Field) {
	l.log.Info(l.masker.Mask(msg), l.maskFields(fs)...)
}

func (l MaskingLogger) Warn(msg string, fs ...Field) {
	l.log.Warn(l.masker.Mask(msg), l.maskFields(fs)...)
}

func (l MaskingLogger) Error(msg string, fs ...Field) {
	l.log.Error(l.masker.Mask(msg), l.maskFields(fs)...)
}

// Debugf, Infof, Warnf and Errorf mask the formatted message.
func (l MaskingLogger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

func (l MaskingLogger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

func (l MaskingLogger) Warnf(format string, args ...interface{}) {
	l.Warn(fmt.Sprintf(format, args...))
}

func (l MaskingLogger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

// AtLevel calls fn with a masking LogFunc if the level is enabled.
func (l MaskingLogger) AtLevel(level Level, fn func(logFunc LogFunc)) {
	l.log.AtLevel(level, func(inner LogFunc) {
		fn(func(msg string, fs ...Field) { inner(l.masker.Mask(msg), l.maskFields(fs)...) })
	})
}

// maskFields returns fs itself when nothing needs masking and a modified copy otherwise.
func (l MaskingLogger) maskFields(fs []Field) []Field {
	var out []Field
	for i := range fs {
		masked, changed := l.maskField(fs[i])
		if !changed {
			continue
		}
		if out == nil {
			out = append([]Field(nil), fs...)
		}
		out[i] = masked
	}
	if out == nil {
		return fs
	}
	return out
}

var stringSliceType = reflect.TypeOf([]string{})

// maskField handles string, bytes, error and []string fields. Values of FieldTypeAny are not inspected.
func (l MaskingLogger) maskField(f Field) (Field, bool) {
	switch f.Type {
	case logf.FieldTypeBytesToString:
		s := *(*string)(unsafe.Pointer(&f.Bytes)) // nolint: gosec
		if m := l.masker.Mask(s); m != s {
			return String(f.Key, m), true
		}
	case logf.FieldTypeBytes, logf.FieldTypeRawBytes:
		if f.Bytes != nil {
			if m := l.masker.Mask(string(f.Bytes)); m != string(f.Bytes) {
				return logf.ConstBytes(f.Key, []byte(m)), true
			}
		}
	case logf.FieldTypeError:
		if err, ok := f.Any.(error); ok {
			if m := l.masker.Mask(err.Error()); m != err.Error() {
				return NamedError(f.Key, l.newMaskedError(err, m)), true
			}
		}
	case logf.FieldTypeArray:
		if f.Any == nil {
			break
		}
		v := reflect.ValueOf(f.Any)
		if !v.CanConvert(stringSliceType) {
			break
		}
		src := v.Convert(stringSliceType).Interface().([]string)
		dst := make([]string, len(src))
		changed := false
		for i := range src {
			dst[i] = l.masker.Mask(src[i])
			changed = changed || dst[i] != src[i]
		}
		if changed {
			return Strings(f.Key, dst), true
		}
	}
	return f, false
}

func (l MaskingLogger) newMaskedError(err error, masked string) error {
	if _, ok := err.(fmt.Formatter); !ok {
		return errors.New(masked)
	}
	return maskedError{msg: masked, verbose: l.masker.Mask(fmt.Sprintf("%+v", err))}
}

// maskedError keeps the logf "error_verbose" field masked too.
type maskedError struct {
	msg     string
	verbose string
}

func (e maskedError) Error() string { return e.msg }

func (e maskedError) Format(f fmt.State, _ rune) { _, _ = io.WriteString(f, e.verbose) }
