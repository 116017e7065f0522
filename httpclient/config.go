/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"errors"
	"time"

	"github.com/mobgames/site/config"
	"github.com/mobgames/site/retry"
)

const (
	// DefaultClientWaitTimeout is a default timeout for a client to wait for a request.
	DefaultClientWaitTimeout = 10 * time.Second

	// DefaultMaxAttempts is a default number of retry attempts for upstream APIs.
	DefaultMaxAttempts = 3

	// RetryPolicyExponential is a policy for exponential retries.
	RetryPolicyExponential = "exponential"

	// RetryPolicyConstant is a policy for constant retries.
	RetryPolicyConstant = "constant"
)

const cfgDefaultKeyPrefix = "httpClient"

const (
	cfgKeyRetriesEnabled                          = "retries.enabled"
	cfgKeyRetriesMax                              = "retries.maxAttempts"
	cfgKeyRetriesPolicyStrategy                   = "retries.policy.strategy"
	cfgKeyRetriesPolicyExponentialInitialInterval = "retries.policy.exponentialBackoffInitialInterval"
	cfgKeyRetriesPolicyExponentialMultiplier      = "retries.policy.exponentialBackoffMultiplier"
	cfgKeyRetriesPolicyConstantInterval           = "retries.policy.constantBackoffInterval"
	cfgKeyLogEnabled                              = "log.enabled"
	cfgKeyLogMode                                 = "log.mode"
	cfgKeyLogSlowRequestThreshold                 = "log.slowRequestThreshold"
	cfgKeyMetricsEnabled                          = "metrics.enabled"
	cfgKeyTimeout                                 = "timeout"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// PolicyConfig represents configuration options for policy retry.
type PolicyConfig struct {
	Strategy                          string        `mapstructure:"strategy"`
	ExponentialBackoffInitialInterval time.Duration `mapstructure:"exponentialBackoffInitialInterval"`
	ExponentialBackoffMultiplier      float64       `mapstructure:"exponentialBackoffMultiplier"`
	ConstantBackoffInterval           time.Duration `mapstructure:"constantBackoffInterval"`
}

// Set is part of config interface implementation.
func (c *PolicyConfig) Set(dp config.DataProvider) (err error) {
	if c.Strategy, err = dp.GetStringFromSet(cfgKeyRetriesPolicyStrategy,
		[]string{RetryPolicyExponential, RetryPolicyConstant}, false); err != nil {
		return err
	}

	switch c.Strategy {
	case RetryPolicyExponential:
		if c.ExponentialBackoffInitialInterval, err = dp.GetDuration(cfgKeyRetriesPolicyExponentialInitialInterval); err != nil {
			return err
		}
		if c.ExponentialBackoffInitialInterval < 0 {
			return dp.WrapKeyErr(cfgKeyRetriesPolicyExponentialInitialInterval, errors.New("must not be negative"))
		}
		if c.ExponentialBackoffMultiplier, err = dp.GetFloat64(cfgKeyRetriesPolicyExponentialMultiplier); err != nil {
			return err
		}
		if c.ExponentialBackoffMultiplier <= 1 {
			return dp.WrapKeyErr(cfgKeyRetriesPolicyExponentialMultiplier, errors.New("must be greater than 1"))
		}
	case RetryPolicyConstant:
		if c.ConstantBackoffInterval, err = dp.GetDuration(cfgKeyRetriesPolicyConstantInterval); err != nil {
			return err
		}
		if c.ConstantBackoffInterval < 0 {
			return dp.WrapKeyErr(cfgKeyRetriesPolicyConstantInterval, errors.New("must not be negative"))
		}
	}
	return nil
}

// RetriesConfig represents configuration options for HTTP client retries policy.
type RetriesConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// MaxAttempts is the maximum number of retry attempts (the first request is not counted).
	MaxAttempts int `mapstructure:"maxAttempts"`

	Policy PolicyConfig `mapstructure:"policy"`
}

// GetPolicy returns a retry policy based on strategy.
func (c *RetriesConfig) GetPolicy() retry.Policy {
	switch c.Policy.Strategy {
	case RetryPolicyExponential:
		return retry.ExponentialBackoffPolicy{
			InitialInterval: c.Policy.ExponentialBackoffInitialInterval,
			Multiplier:      c.Policy.ExponentialBackoffMultiplier,
		}
	case RetryPolicyConstant:
		return retry.NewConstantBackoffPolicy(c.Policy.ConstantBackoffInterval, 0)
	}
	return nil
}

// Set is part of config interface implementation.
func (c *RetriesConfig) Set(dp config.DataProvider) (err error) {
	if c.Enabled, err = dp.GetBool(cfgKeyRetriesEnabled); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}
	if c.MaxAttempts, err = dp.GetInt(cfgKeyRetriesMax); err != nil {
		return err
	}
	if c.MaxAttempts < 0 {
		return dp.WrapKeyErr(cfgKeyRetriesMax, errors.New("must not be negative"))
	}
	return c.Policy.Set(dp)
}

// LogConfig represents configuration options for HTTP client logs.
type LogConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	SlowRequestThreshold time.Duration `mapstructure:"slowRequestThreshold"`
	Mode                 string        `mapstructure:"mode"`
}

// Set is part of config interface implementation.
func (c *LogConfig) Set(dp config.DataProvider) (err error) {
	if c.Enabled, err = dp.GetBool(cfgKeyLogEnabled); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}
	if c.SlowRequestThreshold, err = dp.GetDuration(cfgKeyLogSlowRequestThreshold); err != nil {
		return err
	}
	if c.SlowRequestThreshold < 0 {
		return dp.WrapKeyErr(cfgKeyLogSlowRequestThreshold, errors.New("must not be negative"))
	}
	c.Mode, err = dp.GetStringFromSet(cfgKeyLogMode,
		[]string{string(LoggingModeNone), string(LoggingModeAll), string(LoggingModeFailed)}, false)
	return err
}

// MetricsConfig represents configuration options for HTTP client metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Config represents options for HTTP clients of upstream APIs.
type Config struct {
	Retries RetriesConfig `mapstructure:"retries"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Timeout is the maximum time to wait for a request to be made, retries included.
	Timeout time.Duration `mapstructure:"timeout"`

	keyPrefix string
}

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{keyPrefix: cfgDefaultKeyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		keyPrefix: cfgDefaultKeyPrefix,
		Timeout:   DefaultClientWaitTimeout,
		Retries: RetriesConfig{
			Enabled:     true,
			MaxAttempts: DefaultMaxAttempts,
			Policy: PolicyConfig{
				Strategy:                          RetryPolicyExponential,
				ExponentialBackoffInitialInterval: DefaultExponentialBackoffInitialInterval,
				ExponentialBackoffMultiplier:      DefaultExponentialBackoffMultiplier,
			},
		},
		Log:     LogConfig{Enabled: true, Mode: string(LoggingModeFailed), SlowRequestThreshold: time.Second},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults is part of config interface implementation.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	def := NewDefaultConfig()
	dp.SetDefault(cfgKeyTimeout, def.Timeout)
	dp.SetDefault(cfgKeyRetriesEnabled, def.Retries.Enabled)
	dp.SetDefault(cfgKeyRetriesMax, def.Retries.MaxAttempts)
	dp.SetDefault(cfgKeyRetriesPolicyStrategy, def.Retries.Policy.Strategy)
	dp.SetDefault(cfgKeyRetriesPolicyExponentialInitialInterval, def.Retries.Policy.ExponentialBackoffInitialInterval)
	dp.SetDefault(cfgKeyRetriesPolicyExponentialMultiplier, def.Retries.Policy.ExponentialBackoffMultiplier)
	dp.SetDefault(cfgKeyLogEnabled, def.Log.Enabled)
	dp.SetDefault(cfgKeyLogMode, def.Log.Mode)
	dp.SetDefault(cfgKeyLogSlowRequestThreshold, def.Log.SlowRequestThreshold)
	dp.SetDefault(cfgKeyMetricsEnabled, def.Metrics.Enabled)
}

// Set is part of config interface implementation.
func (c *Config) Set(dp config.DataProvider) (err error) {
	if c.Timeout, err = dp.GetDuration(cfgKeyTimeout); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, errors.New("must not be negative"))
	}
	if err = c.Retries.Set(dp); err != nil {
		return err
	}
	if err = c.Log.Set(dp); err != nil {
		return err
	}
	c.Metrics.Enabled, err = dp.GetBool(cfgKeyMetricsEnabled)
	return err
}
