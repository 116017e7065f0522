/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

package airtable

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/mobgames/site/config"
)

const cfgDefaultKeyPrefix = "airtable"

const (
	cfgKeyAPIURL         = "apiURL"
	cfgKeyBaseID         = "baseID"
	cfgKeyTableID        = "tableID"
	cfgKeyToken          = "token" //nolint:gosec
	cfgKeyRateLimit      = "rateLimit"
	cfgKeyRateLimitBurst = "rateLimitBurst"
)

// Default values of the configuration parameters.
const (
	DefaultAPIURL  = "https://api.airtable.com/v0"
	DefaultBaseID  = "appu0BNsDItqYZrMl"
	DefaultTableID = "tblK44riCxwsWenUq"

	// DefaultRateLimit is the number of requests per second Airtable allows for a base.
	DefaultRateLimit      = 5
	DefaultRateLimitBurst = 1
)

// Config represents parameters of the participants table in Airtable.
type Config struct {
	APIURL  string `mapstructure:"apiURL" yaml:"apiURL" json:"apiURL"`
	BaseID  string `mapstructure:"baseID" yaml:"baseID" json:"baseID"`
	TableID string `mapstructure:"tableID" yaml:"tableID" json:"tableID"`

	// Token is a personal access token.
	Token string `mapstructure:"token" yaml:"token" json:"-"`

	RateLimit      float64 `mapstructure:"rateLimit" yaml:"rateLimit" json:"rateLimit"`
	RateLimitBurst int     `mapstructure:"rateLimitBurst" yaml:"rateLimitBurst" json:"rateLimitBurst"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new Config read from the "airtable" section.
func NewConfig() *Config {
	return &Config{}
}

// NewDefaultConfig creates a new Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		APIURL:         DefaultAPIURL,
		BaseID:         DefaultBaseID,
		TableID:        DefaultTableID,
		RateLimit:      DefaultRateLimit,
		RateLimitBurst: DefaultRateLimitBurst,
	}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyAPIURL, DefaultAPIURL)
	dp.SetDefault(cfgKeyBaseID, DefaultBaseID)
	dp.SetDefault(cfgKeyTableID, DefaultTableID)
	dp.SetDefault(cfgKeyRateLimit, DefaultRateLimit)
	dp.SetDefault(cfgKeyRateLimitBurst, DefaultRateLimitBurst)
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.APIURL, err = dp.GetString(cfgKeyAPIURL); err != nil {
		return err
	}
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return dp.WrapKeyErr(cfgKeyAPIURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return dp.WrapKeyErr(cfgKeyAPIURL, fmt.Errorf("%q is not an absolute http(s) URL", c.APIURL))
	}
	if c.BaseID, err = dp.GetString(cfgKeyBaseID); err != nil {
		return err
	}
	if c.BaseID == "" {
		return dp.WrapKeyErr(cfgKeyBaseID, errors.New("must not be empty"))
	}
	if c.TableID, err = dp.GetString(cfgKeyTableID); err != nil {
		return err
	}
	if c.TableID == "" {
		return dp.WrapKeyErr(cfgKeyTableID, errors.New("must not be empty"))
	}
	if c.Token, err = dp.GetString(cfgKeyToken); err != nil {
		return err
	}
	if c.RateLimit, err = dp.GetFloat64(cfgKeyRateLimit); err != nil {
		return err
	}
	if c.RateLimit < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimit, errors.New("must not be negative"))
	}
	if c.RateLimitBurst, err = dp.GetInt(cfgKeyRateLimitBurst); err != nil {
		return err
	}
	if c.RateLimitBurst < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitBurst, errors.New("must not be negative"))
	}
	return nil
}

// TableURL returns the URL of the participants table.
func (c *Config) TableURL() string {
	return fmt.Sprintf("%s/%s/%s", c.APIURL, url.PathEscape(c.BaseID), url.PathEscape(c.TableID))
}
