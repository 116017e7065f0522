/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DataType is a format of configuration data.
type DataType string

// Supported data formats.
const (
	DataTypeYAML DataType = "yaml"
	DataTypeJSON DataType = "json"
)

// DataSetter fills the provider with values. The later source wins:
// explicit Set values override environment variables, which override files, which override defaults.
type DataSetter interface {
	UseEnvVars(prefix string)
	Set(key string, value interface{})
	SetDefault(key string, value interface{})
	SetFromFile(path string, dataType DataType) error
	SetFromReader(reader io.Reader, dataType DataType) error
}

// DataGetter reads typed values. Getters return an error (already wrapped with the key)
// when the value can't be converted to the requested type.
type DataGetter interface {
	IsSet(key string) bool
	Get(key string) interface{}
	GetBool(key string) (bool, error)
	GetInt(key string) (int, error)
	GetFloat64(key string) (float64, error)
	GetString(key string) (string, error)
	GetStringFromSet(key string, set []string, ignoreCase bool) (string, error)
	GetStringSlice(key string) ([]string, error)
	GetDuration(key string) (time.Duration, error)
	GetByteSize(key string) (ByteSize, error)
	UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error
}

// DataProvider is what Config implementations read their sections from.
type DataProvider interface {
	DataSetter
	DataGetter

	// WrapKeyErr attaches the full key (with the section prefix, if any) to err.
	WrapKeyErr(key string, err error) error
}

// DecoderConfigOption tunes mapstructure decoding in UnmarshalKey.
type DecoderConfigOption func(*mapstructure.DecoderConfig)

// WrapKeyErrIfNeeded is like WrapKeyErr but keeps nil errors nil.
func WrapKeyErrIfNeeded(key string, err error) error {
	if err != nil {
		return WrapKeyErr(key, err)
	}
	return nil
}

// WrapKeyErr returns err prefixed with the key it relates to.
func WrapKeyErr(key string, err error) error {
	return fmt.Errorf("%s: %w", key, err)
}
