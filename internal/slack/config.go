/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

package slack

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/mobgames/site/config"
)

const cfgDefaultKeyPrefix = "slack"

const (
	cfgKeyClientID         = "clientID"
	cfgKeyClientSecret     = "clientSecret" //nolint:gosec
	cfgKeyRedirectURL      = "redirectURL"
	cfgKeyAPIURL           = "apiURL"
	cfgKeyAuthorizeURL     = "authorizeURL"
	cfgKeyScopes           = "scopes"
	cfgKeyProfileCacheTTL  = "profileCache.ttl"
	cfgKeyProfileCacheSize = "profileCache.maxEntries"
)

// Default values of the configuration parameters.
const (
	DefaultAPIURL           = "https://slack.com/api"
	DefaultAuthorizeURL     = "https://slack.com/oauth/v2/authorize"
	DefaultScopes           = "users:read,users.profile:read"
	DefaultProfileCacheTTL  = 5 * time.Minute
	DefaultProfileCacheSize = 10000
)

// ProfileCacheConfig contains parameters of the users.info results cache.
type ProfileCacheConfig struct {
	TTL        config.TimeDuration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
	MaxEntries int                 `mapstructure:"maxEntries" yaml:"maxEntries" json:"maxEntries"`
}

// Config represents parameters of the Slack OAuth application and Web API.
type Config struct {
	ClientID     string `mapstructure:"clientID" yaml:"clientID" json:"clientID"`
	ClientSecret string `mapstructure:"clientSecret" yaml:"clientSecret" json:"-"`

	// RedirectURL is the OAuth redirect URI. If empty, it's built from the Host
	// and X-Forwarded-Proto headers of the incoming request.
	RedirectURL string `mapstructure:"redirectURL" yaml:"redirectURL" json:"redirectURL"`

	APIURL       string             `mapstructure:"apiURL" yaml:"apiURL" json:"apiURL"`
	AuthorizeURL string             `mapstructure:"authorizeURL" yaml:"authorizeURL" json:"authorizeURL"`
	Scopes       string             `mapstructure:"scopes" yaml:"scopes" json:"scopes"`
	ProfileCache ProfileCacheConfig `mapstructure:"profileCache" yaml:"profileCache" json:"profileCache"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new Config read from the "slack" section.
func NewConfig() *Config {
	return &Config{}
}

// NewDefaultConfig creates a new Config with the public Slack endpoints.
func NewDefaultConfig() *Config {
	return &Config{
		APIURL:       DefaultAPIURL,
		AuthorizeURL: DefaultAuthorizeURL,
		Scopes:       DefaultScopes,
		ProfileCache: ProfileCacheConfig{
			TTL:        config.TimeDuration(DefaultProfileCacheTTL),
			MaxEntries: DefaultProfileCacheSize,
		},
	}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyAPIURL, DefaultAPIURL)
	dp.SetDefault(cfgKeyAuthorizeURL, DefaultAuthorizeURL)
	dp.SetDefault(cfgKeyScopes, DefaultScopes)
	dp.SetDefault(cfgKeyProfileCacheTTL, DefaultProfileCacheTTL.String())
	dp.SetDefault(cfgKeyProfileCacheSize, DefaultProfileCacheSize)
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.ClientID, err = dp.GetString(cfgKeyClientID); err != nil {
		return err
	}
	if c.ClientSecret, err = dp.GetString(cfgKeyClientSecret); err != nil {
		return err
	}
	if c.RedirectURL, err = dp.GetString(cfgKeyRedirectURL); err != nil {
		return err
	}
	if c.RedirectURL != "" {
		if err = validateAbsoluteURL(c.RedirectURL); err != nil {
			return dp.WrapKeyErr(cfgKeyRedirectURL, err)
		}
	}
	if c.APIURL, err = dp.GetString(cfgKeyAPIURL); err != nil {
		return err
	}
	if err = validateAbsoluteURL(c.APIURL); err != nil {
		return dp.WrapKeyErr(cfgKeyAPIURL, err)
	}
	if c.AuthorizeURL, err = dp.GetString(cfgKeyAuthorizeURL); err != nil {
		return err
	}
	if err = validateAbsoluteURL(c.AuthorizeURL); err != nil {
		return dp.WrapKeyErr(cfgKeyAuthorizeURL, err)
	}
	if c.Scopes, err = dp.GetString(cfgKeyScopes); err != nil {
		return err
	}

	var ttl time.Duration
	if ttl, err = dp.GetDuration(cfgKeyProfileCacheTTL); err != nil {
		return err
	}
	if ttl < 0 {
		return dp.WrapKeyErr(cfgKeyProfileCacheTTL, errors.New("must not be negative"))
	}
	c.ProfileCache.TTL = config.TimeDuration(ttl)
	if c.ProfileCache.MaxEntries, err = dp.GetInt(cfgKeyProfileCacheSize); err != nil {
		return err
	}
	if c.ProfileCache.MaxEntries <= 0 {
		return dp.WrapKeyErr(cfgKeyProfileCacheSize, errors.New("must be positive"))
	}
	return nil
}

// LoginURL returns the URL of the Slack authorization page the user is redirected to on login.
func (c *Config) LoginURL(redirectURI string) string {
	return fmt.Sprintf("%s?client_id=%s&scope=%s&redirect_uri=%s",
		c.AuthorizeURL, url.QueryEscape(c.ClientID), c.Scopes, url.QueryEscape(redirectURI))
}

func validateAbsoluteURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", s)
	}
	return nil
}
