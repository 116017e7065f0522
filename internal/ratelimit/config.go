/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"strings"
	"time"

	"github.com/mobgames/site/config"
)

const cfgDefaultKeyPrefix = "rateLimit"

const (
	cfgKeyBackend           = "backend"
	cfgKeyWindow            = "window"
	cfgKeyGeneralLimit      = "generalLimit"
	cfgKeySensitiveLimit    = "sensitiveLimit"
	cfgKeyCleanupInterval   = "cleanupInterval"
	cfgKeyProtectedPrefixes = "protectedPrefixes"
	cfgKeySensitiveMarkers  = "sensitiveMarkers"
	cfgKeyExcludedClients   = "excludedClients"
	cfgKeyAddHeaders        = "addHeaders"
	cfgKeyDryRun            = "dryRun"
	cfgKeyRedisAddress      = "redis.address"
	cfgKeyRedisPassword     = "redis.password" //nolint:gosec
	cfgKeyRedisDB           = "redis.db"
	cfgKeyRedisKeyPrefix    = "redis.keyPrefix"
)

// Storage backends for the counters.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

const defaultRedisAddress = "localhost:6379"

// Config represents a set of configuration parameters for the request throttling.
type Config struct {
	Backend           string              `mapstructure:"backend" yaml:"backend" json:"backend"`
	Window            config.TimeDuration `mapstructure:"window" yaml:"window" json:"window"`
	GeneralLimit      int                 `mapstructure:"generalLimit" yaml:"generalLimit" json:"generalLimit"`
	SensitiveLimit    int                 `mapstructure:"sensitiveLimit" yaml:"sensitiveLimit" json:"sensitiveLimit"`
	CleanupInterval   config.TimeDuration `mapstructure:"cleanupInterval" yaml:"cleanupInterval" json:"cleanupInterval"`
	ProtectedPrefixes []string            `mapstructure:"protectedPrefixes" yaml:"protectedPrefixes" json:"protectedPrefixes"`
	SensitiveMarkers  []string            `mapstructure:"sensitiveMarkers" yaml:"sensitiveMarkers" json:"sensitiveMarkers"`
	ExcludedClients   []string            `mapstructure:"excludedClients" yaml:"excludedClients" json:"excludedClients"`
	AddHeaders        bool                `mapstructure:"addHeaders" yaml:"addHeaders" json:"addHeaders"`
	DryRun            bool                `mapstructure:"dryRun" yaml:"dryRun" json:"dryRun"`
	Redis             RedisConfig         `mapstructure:"redis" yaml:"redis" json:"redis"`
}

// RedisConfig contains parameters of the connection to Redis used by the redis backend.
type RedisConfig struct {
	Address   string `mapstructure:"address" yaml:"address" json:"address"`
	Password  string `mapstructure:"password" yaml:"password" json:"-"`
	DB        int    `mapstructure:"db" yaml:"db" json:"db"`
	KeyPrefix string `mapstructure:"keyPrefix" yaml:"keyPrefix" json:"keyPrefix"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new Config read from the "rateLimit" section.
func NewConfig() *Config {
	return &Config{}
}

// NewDefaultConfig creates a new Config with the default policy and the in-memory backend.
func NewDefaultConfig() *Config {
	return &Config{
		Backend:           BackendMemory,
		Window:            config.TimeDuration(DefaultWindow),
		GeneralLimit:      DefaultGeneralLimit,
		SensitiveLimit:    DefaultSensitiveLimit,
		CleanupInterval:   config.TimeDuration(DefaultCleanupInterval),
		ProtectedPrefixes: []string{"/api/"},
		SensitiveMarkers:  append([]string(nil), DefaultSensitiveMarkers...),
		AddHeaders:        true,
		Redis:             RedisConfig{Address: defaultRedisAddress, KeyPrefix: DefaultRedisKeyPrefix},
	}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyBackend, BackendMemory)
	dp.SetDefault(cfgKeyWindow, DefaultWindow.String())
	dp.SetDefault(cfgKeyGeneralLimit, DefaultGeneralLimit)
	dp.SetDefault(cfgKeySensitiveLimit, DefaultSensitiveLimit)
	dp.SetDefault(cfgKeyCleanupInterval, DefaultCleanupInterval.String())
	dp.SetDefault(cfgKeyProtectedPrefixes, []string{"/api/"})
	dp.SetDefault(cfgKeySensitiveMarkers, DefaultSensitiveMarkers)
	dp.SetDefault(cfgKeyAddHeaders, true)
	dp.SetDefault(cfgKeyDryRun, false)
	dp.SetDefault(cfgKeyRedisAddress, defaultRedisAddress)
	dp.SetDefault(cfgKeyRedisKeyPrefix, DefaultRedisKeyPrefix)
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Backend, err = dp.GetStringFromSet(cfgKeyBackend, []string{BackendMemory, BackendRedis}, true); err != nil {
		return err
	}
	c.Backend = strings.ToLower(c.Backend)

	var dur time.Duration
	if dur, err = dp.GetDuration(cfgKeyWindow); err != nil {
		return err
	}
	c.Window = config.TimeDuration(dur)
	if dur, err = dp.GetDuration(cfgKeyCleanupInterval); err != nil {
		return err
	}
	c.CleanupInterval = config.TimeDuration(dur)

	if c.GeneralLimit, err = dp.GetInt(cfgKeyGeneralLimit); err != nil {
		return err
	}
	if c.SensitiveLimit, err = dp.GetInt(cfgKeySensitiveLimit); err != nil {
		return err
	}
	if err = c.Limits().Validate(); err != nil {
		return dp.WrapKeyErr("", err)
	}

	if c.ProtectedPrefixes, err = dp.GetStringSlice(cfgKeyProtectedPrefixes); err != nil {
		return err
	}
	for _, prefix := range c.ProtectedPrefixes {
		if len(prefix) == 0 || prefix[0] != '/' {
			return dp.WrapKeyErr(cfgKeyProtectedPrefixes, fmt.Errorf("prefix %q should start with a slash", prefix))
		}
	}
	if c.SensitiveMarkers, err = dp.GetStringSlice(cfgKeySensitiveMarkers); err != nil {
		return err
	}
	if c.ExcludedClients, err = dp.GetStringSlice(cfgKeyExcludedClients); err != nil {
		return err
	}
	if c.AddHeaders, err = dp.GetBool(cfgKeyAddHeaders); err != nil {
		return err
	}
	if c.DryRun, err = dp.GetBool(cfgKeyDryRun); err != nil {
		return err
	}

	return c.setRedisConfig(dp)
}

func (c *Config) setRedisConfig(dp config.DataProvider) error {
	var err error
	if c.Redis.Address, err = dp.GetString(cfgKeyRedisAddress); err != nil {
		return err
	}
	if c.Backend == BackendRedis && c.Redis.Address == "" {
		return dp.WrapKeyErr(cfgKeyRedisAddress, fmt.Errorf("cannot be empty for %q backend", BackendRedis))
	}
	if c.Redis.Password, err = dp.GetString(cfgKeyRedisPassword); err != nil {
		return err
	}
	if c.Redis.DB, err = dp.GetInt(cfgKeyRedisDB); err != nil {
		return err
	}
	if c.Redis.DB < 0 {
		return dp.WrapKeyErr(cfgKeyRedisDB, fmt.Errorf("cannot be negative"))
	}
	c.Redis.KeyPrefix, err = dp.GetString(cfgKeyRedisKeyPrefix)
	return err
}

// Limits returns the throttling policy described by the config.
func (c *Config) Limits() Limits {
	return Limits{
		Window:          time.Duration(c.Window),
		General:         c.GeneralLimit,
		Sensitive:       c.SensitiveLimit,
		CleanupInterval: time.Duration(c.CleanupInterval),
	}
}
