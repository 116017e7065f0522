/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/mobgames/site/config"
	"github.com/mobgames/site/httpserver/middleware"
)

const cfgDefaultKeyPrefix = "server"

const (
	cfgKeyAddress                 = "address"
	cfgKeyTLSEnabled              = "tls.enabled"
	cfgKeyTLSCert                 = "tls.cert"
	cfgKeyTLSKey                  = "tls.key"
	cfgKeyTimeoutsWrite           = "timeouts.write"
	cfgKeyTimeoutsRead            = "timeouts.read"
	cfgKeyTimeoutsReadHeader      = "timeouts.readHeader"
	cfgKeyTimeoutsIdle            = "timeouts.idle"
	cfgKeyTimeoutsShutdown        = "timeouts.shutdown"
	cfgKeyLimitsMaxBodySize       = "limits.maxBodySize"
	cfgKeyLogRequestStart         = "log.requestStart"
	cfgKeyLogRequestHeaders       = "log.requestHeaders"
	cfgKeyLogExcludedEndpoints    = "log.excludedEndpoints"
	cfgKeyLogSecretQueryParams    = "log.secretQueryParams" // nolint:gosec // false positive
	cfgKeyLogAddRequestInfo       = "log.addRequestInfo"
	cfgKeyLogSlowRequestThreshold = "log.slowRequestThreshold"
)

// Defaults of the server section. OAuth callbacks and user updates are small JSON documents,
// so 1M for a body is plenty.
const (
	DefaultAddress              = ":8080"
	DefaultWriteTimeout         = time.Minute
	DefaultReadTimeout          = 15 * time.Second
	DefaultReadHeaderTimeout    = 10 * time.Second
	DefaultIdleTimeout          = time.Minute
	DefaultShutdownTimeout      = 5 * time.Second
	DefaultSlowRequestThreshold = time.Second
	DefaultMaxBodySize          = config.ByteSize(1024 * 1024)
)

// Config is the "server" section: where the site API listens and how requests are served and logged.
type Config struct {
	Address  string         `mapstructure:"address" yaml:"address" json:"address"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Limits   LimitsConfig   `mapstructure:"limits" yaml:"limits" json:"limits"`
	Log      LogConfig      `mapstructure:"log" yaml:"log" json:"log"`
	TLS      TLSConfig      `mapstructure:"tls" yaml:"tls" json:"tls"`
}

// TimeoutsConfig holds the timeouts of http.Server and the graceful shutdown timeout.
type TimeoutsConfig struct {
	Write      config.TimeDuration `mapstructure:"write" yaml:"write" json:"write"`
	Read       config.TimeDuration `mapstructure:"read" yaml:"read" json:"read"`
	ReadHeader config.TimeDuration `mapstructure:"readHeader" yaml:"readHeader" json:"readHeader"`
	Idle       config.TimeDuration `mapstructure:"idle" yaml:"idle" json:"idle"`
	Shutdown   config.TimeDuration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

// LimitsConfig restricts incoming requests.
type LimitsConfig struct {
	// MaxBodySize is the maximum size of the request body. Zero disables the limit.
	MaxBodySize config.ByteSize `mapstructure:"maxBodySize" yaml:"maxBodySize" json:"maxBodySize"`
}

// LogConfig configures the request logging middleware.
type LogConfig struct {
	RequestStart           bool                `mapstructure:"requestStart" yaml:"requestStart" json:"requestStart"`
	RequestHeaders         []string            `mapstructure:"requestHeaders" yaml:"requestHeaders" json:"requestHeaders"`
	ExcludedEndpoints      []string            `mapstructure:"excludedEndpoints" yaml:"excludedEndpoints" json:"excludedEndpoints"`
	SecretQueryParams      []string            `mapstructure:"secretQueryParams" yaml:"secretQueryParams" json:"secretQueryParams"`
	AddRequestInfoToLogger bool                `mapstructure:"addRequestInfo" yaml:"addRequestInfo" json:"addRequestInfo"`
	SlowRequestThreshold   config.TimeDuration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`
}

// TLSConfig enables serving HTTPS directly, without a terminating proxy in front of the site.
type TLSConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Certificate string `mapstructure:"cert" yaml:"cert" json:"cert"`
	Key         string `mapstructure:"key" yaml:"key" json:"key"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates an empty Config to be filled by config.Loader.
func NewConfig() *Config {
	return &Config{}
}

// NewDefaultConfig creates a Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Address: DefaultAddress,
		Timeouts: TimeoutsConfig{
			Write:      config.TimeDuration(DefaultWriteTimeout),
			Read:       config.TimeDuration(DefaultReadTimeout),
			ReadHeader: config.TimeDuration(DefaultReadHeaderTimeout),
			Idle:       config.TimeDuration(DefaultIdleTimeout),
			Shutdown:   config.TimeDuration(DefaultShutdownTimeout),
		},
		Limits: LimitsConfig{MaxBodySize: DefaultMaxBodySize},
		Log: LogConfig{
			SecretQueryParams:    append([]string(nil), middleware.DefaultLoggingSecretQueryParams...),
			SlowRequestThreshold: config.TimeDuration(DefaultSlowRequestThreshold),
		},
	}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	for key, val := range map[string]interface{}{
		cfgKeyAddress:                 DefaultAddress,
		cfgKeyTimeoutsWrite:           DefaultWriteTimeout,
		cfgKeyTimeoutsRead:            DefaultReadTimeout,
		cfgKeyTimeoutsReadHeader:      DefaultReadHeaderTimeout,
		cfgKeyTimeoutsIdle:            DefaultIdleTimeout,
		cfgKeyTimeoutsShutdown:        DefaultShutdownTimeout,
		cfgKeyLimitsMaxBodySize:       DefaultMaxBodySize,
		cfgKeyLogRequestStart:         false,
		cfgKeyLogAddRequestInfo:       false,
		cfgKeyLogSecretQueryParams:    middleware.DefaultLoggingSecretQueryParams,
		cfgKeyLogSlowRequestThreshold: DefaultSlowRequestThreshold,
	} {
		dp.SetDefault(key, val)
	}
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.Address == "" {
		return dp.WrapKeyErr(cfgKeyAddress, errors.New("cannot be empty"))
	}
	if _, _, err = net.SplitHostPort(c.Address); err != nil {
		return dp.WrapKeyErr(cfgKeyAddress, fmt.Errorf("must be in host:port form: %w", err))
	}

	for _, set := range []func(config.DataProvider) error{c.TLS.set, c.Timeouts.set, c.Limits.set, c.Log.set} {
		if err = set(dp); err != nil {
			return err
		}
	}
	return nil
}

func (t *TimeoutsConfig) set(dp config.DataProvider) error {
	for key, dst := range map[string]*config.TimeDuration{
		cfgKeyTimeoutsWrite:      &t.Write,
		cfgKeyTimeoutsRead:       &t.Read,
		cfgKeyTimeoutsReadHeader: &t.ReadHeader,
		cfgKeyTimeoutsIdle:       &t.Idle,
		cfgKeyTimeoutsShutdown:   &t.Shutdown,
	} {
		dur, err := dp.GetDuration(key)
		if err != nil {
			return err
		}
		if dur < 0 {
			return dp.WrapKeyErr(key, errors.New("must not be negative"))
		}
		*dst = config.TimeDuration(dur)
	}
	return nil
}

func (l *LimitsConfig) set(dp config.DataProvider) (err error) {
	l.MaxBodySize, err = dp.GetByteSize(cfgKeyLimitsMaxBodySize)
	return err
}

func (l *LogConfig) set(dp config.DataProvider) error {
	var err error
	if l.RequestStart, err = dp.GetBool(cfgKeyLogRequestStart); err != nil {
		return err
	}
	if l.AddRequestInfoToLogger, err = dp.GetBool(cfgKeyLogAddRequestInfo); err != nil {
		return err
	}
	for key, dst := range map[string]*[]string{
		cfgKeyLogRequestHeaders:    &l.RequestHeaders,
		cfgKeyLogExcludedEndpoints: &l.ExcludedEndpoints,
		cfgKeyLogSecretQueryParams: &l.SecretQueryParams,
	} {
		if *dst, err = dp.GetStringSlice(key); err != nil {
			return err
		}
	}
	threshold, err := dp.GetDuration(cfgKeyLogSlowRequestThreshold)
	if err != nil {
		return err
	}
	l.SlowRequestThreshold = config.TimeDuration(threshold)
	return nil
}

func (t *TLSConfig) set(dp config.DataProvider) error {
	var err error
	if t.Enabled, err = dp.GetBool(cfgKeyTLSEnabled); err != nil {
		return err
	}
	if t.Certificate, err = dp.GetString(cfgKeyTLSCert); err != nil {
		return err
	}
	if t.Key, err = dp.GetString(cfgKeyTLSKey); err != nil {
		return err
	}
	if t.Enabled && (t.Certificate == "" || t.Key == "") {
		return dp.WrapKeyErr(cfgKeyTLSKey, errors.New("both cert and key should be set"))
	}
	return nil
}
