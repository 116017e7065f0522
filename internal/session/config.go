/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/mobgames/site/config"
)

const cfgDefaultKeyPrefix = "session"

const (
	cfgKeySecret     = "secret" //nolint:gosec
	cfgKeyTTL        = "ttl"
	cfgKeySecure     = "secure"
	cfgKeyCookieName = "cookieName"
)

// Default values of the configuration parameters.
const (
	DefaultTTL        = time.Hour
	DefaultCookieName = "userData"
)

// MinSecretLength is the minimal length of the HMAC secret.
const MinSecretLength = 32

// Config represents parameters of the session cookie.
type Config struct {
	Secret string              `mapstructure:"secret" yaml:"secret" json:"-"`
	TTL    config.TimeDuration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`

	// Secure marks the cookie as Secure. Must be enabled in production (HTTPS).
	Secure     bool   `mapstructure:"secure" yaml:"secure" json:"secure"`
	CookieName string `mapstructure:"cookieName" yaml:"cookieName" json:"cookieName"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new Config read from the "session" section.
func NewConfig() *Config {
	return &Config{}
}

// NewDefaultConfig creates a new Config with default values and no secret.
func NewDefaultConfig() *Config {
	return &Config{TTL: config.TimeDuration(DefaultTTL), CookieName: DefaultCookieName}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyTTL, DefaultTTL.String())
	dp.SetDefault(cfgKeySecure, false)
	dp.SetDefault(cfgKeyCookieName, DefaultCookieName)
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Secret, err = dp.GetString(cfgKeySecret); err != nil {
		return err
	}
	if len(c.Secret) < MinSecretLength {
		return dp.WrapKeyErr(cfgKeySecret, fmt.Errorf("must be at least %d characters long", MinSecretLength))
	}
	var ttl time.Duration
	if ttl, err = dp.GetDuration(cfgKeyTTL); err != nil {
		return err
	}
	if ttl <= 0 {
		return dp.WrapKeyErr(cfgKeyTTL, errors.New("must be positive"))
	}
	c.TTL = config.TimeDuration(ttl)
	if c.Secure, err = dp.GetBool(cfgKeySecure); err != nil {
		return err
	}
	if c.CookieName, err = dp.GetString(cfgKeyCookieName); err != nil {
		return err
	}
	if c.CookieName == "" {
		return dp.WrapKeyErr(cfgKeyCookieName, errors.New("must not be empty"))
	}
	return nil
}
