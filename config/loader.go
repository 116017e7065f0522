/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"errors"
	"io"
	"io/fs"
	"os"
)

// Loader fills Config sections from a DataProvider.
// Defaults of all sections are registered first, so a section may read keys of another one.
type Loader struct {
	DataProvider DataProvider
}

// NewDefaultLoader creates a Loader backed by viper that also reads <envVarsPrefix>_* environment variables.
func NewDefaultLoader(envVarsPrefix string) *Loader {
	dp := NewViperAdapter()
	dp.UseEnvVars(envVarsPrefix)
	return &Loader{DataProvider: dp}
}

func NewLoader(dp DataProvider) *Loader {
	return &Loader{DataProvider: dp}
}

// Load uses only defaults and environment variables.
func (l *Loader) Load(cfg Config, cfgs ...Config) error {
	return l.apply(cfg, cfgs)
}

func (l *Loader) LoadFromFile(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromFile(path, dataType); err != nil {
		return err
	}
	return l.apply(cfg, cfgs)
}

// LoadFromFileIfExists is LoadFromFile when the file exists and Load otherwise.
// The site runs from environment variables alone in most deployments.
func (l *Loader) LoadFromFileIfExists(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return l.LoadFromFile(path, dataType, cfg, cfgs...)
	case errors.Is(err, fs.ErrNotExist):
		return l.Load(cfg, cfgs...)
	default:
		return err
	}
}

func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromReader(reader, dataType); err != nil {
		return err
	}
	return l.apply(cfg, cfgs)
}

func (l *Loader) apply(first Config, rest []Config) error {
	all := append([]Config{first}, rest...)
	providers := make([]DataProvider, len(all))
	for i, cfg := range all {
		providers[i] = l.sectionProvider(cfg)
		cfg.SetProviderDefaults(providers[i])
	}
	for i, cfg := range all {
		if err := cfg.Set(providers[i]); err != nil {
			return err
		}
	}
	return nil
}

// sectionProvider scopes the provider to the section's key prefix, if it has one.
func (l *Loader) sectionProvider(cfg Config) DataProvider {
	if kp, ok := cfg.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
		return NewKeyPrefixedDataProvider(l.DataProvider, kp.KeyPrefix())
	}
	return l.DataProvider
}
