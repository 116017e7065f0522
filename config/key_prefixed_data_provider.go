/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"io"
	"strings"
	"time"
)

// KeyPrefixedDataProvider is a DataProvider that prepends a key prefix (e.g. "rateLimit") to every key.
// Config sections use it to read their parameters with short relative keys.
type KeyPrefixedDataProvider struct {
	inner  DataProvider
	prefix string
}

var _ DataProvider = (*KeyPrefixedDataProvider)(nil)

// NewKeyPrefixedDataProvider creates a new KeyPrefixedDataProvider.
func NewKeyPrefixedDataProvider(delegate DataProvider, keyPrefix string) *KeyPrefixedDataProvider {
	return &KeyPrefixedDataProvider{inner: delegate, prefix: keyPrefix}
}

func (p *KeyPrefixedDataProvider) fullKey(key string) string {
	return strings.Trim(p.prefix+"."+key, ".")
}

func (p *KeyPrefixedDataProvider) UseEnvVars(prefix string) { p.inner.UseEnvVars(prefix) }

func (p *KeyPrefixedDataProvider) Set(key string, value interface{}) {
	p.inner.Set(p.fullKey(key), value)
}

func (p *KeyPrefixedDataProvider) SetDefault(key string, value interface{}) {
	p.inner.SetDefault(p.fullKey(key), value)
}

func (p *KeyPrefixedDataProvider) SetFromFile(path string, dataType DataType) error {
	return p.inner.SetFromFile(path, dataType)
}

func (p *KeyPrefixedDataProvider) SetFromReader(reader io.Reader, dataType DataType) error {
	return p.inner.SetFromReader(reader, dataType)
}

func (p *KeyPrefixedDataProvider) IsSet(key string) bool { return p.inner.IsSet(p.fullKey(key)) }

func (p *KeyPrefixedDataProvider) Get(key string) interface{} {
	return p.inner.Get(p.fullKey(key))
}

func (p *KeyPrefixedDataProvider) GetBool(key string) (bool, error) {
	return p.inner.GetBool(p.fullKey(key))
}

func (p *KeyPrefixedDataProvider) GetInt(key string) (int, error) {
	return p.inner.GetInt(p.fullKey(key))
}

func (p *KeyPrefixedDataProvider) GetFloat64(key string) (float64, error) {
	return p.inner.GetFloat64(p.fullKey(key))
}

func (p *KeyPrefixedDataProvider) GetString(key string) (string, error) {
	return p.inner.GetString(p.fullKey(key))
}

func (p *KeyPrefixedDataProvider) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	return p.inner.GetStringFromSet(p.fullKey(key), set, ignoreCase)
}

func (p *KeyPrefixedDataProvider) GetStringSlice(key string) ([]string, error) {
	return p.inner.GetStringSlice(p.fullKey(key))
}

func (p *KeyPrefixedDataProvider) GetDuration(key string) (time.Duration, error) {
	return p.inner.GetDuration(p.fullKey(key))
}

func (p *KeyPrefixedDataProvider) GetByteSize(key string) (ByteSize, error) {
	return p.inner.GetByteSize(p.fullKey(key))
}

func (p *KeyPrefixedDataProvider) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	return p.inner.UnmarshalKey(p.fullKey(key), rawVal, opts...)
}

// WrapKeyErr wraps error adding the full (prefixed) key.
func (p *KeyPrefixedDataProvider) WrapKeyErr(key string, err error) error {
	return p.inner.WrapKeyErr(p.fullKey(key), err)
}
