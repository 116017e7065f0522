/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

package main

import (
	"github.com/mobgames/site/config"
	"github.com/mobgames/site/httpclient"
	"github.com/mobgames/site/httpserver"
	"github.com/mobgames/site/internal/airtable"
	"github.com/mobgames/site/internal/ratelimit"
	"github.com/mobgames/site/internal/session"
	"github.com/mobgames/site/internal/slack"
	"github.com/mobgames/site/log"
	"github.com/mobgames/site/profserver"
)

// envVarsPrefix is the prefix of environment variables overriding the config file,
// e.g. MOBGAMES_SESSION_SECRET or MOBGAMES_AIRTABLE_TOKEN.
const envVarsPrefix = "mobgames"

// AppConfig is the configuration of the site backend.
type AppConfig struct {
	Server     *httpserver.Config
	Log        *log.Config
	RateLimit  *ratelimit.Config
	Slack      *slack.Config
	Airtable   *airtable.Config
	Session    *session.Config
	HTTPClient *httpclient.Config
	ProfServer *profserver.Config
}

var _ config.Config = (*AppConfig)(nil)

// NewAppConfig creates a new AppConfig.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Server:     httpserver.NewConfig(),
		Log:        log.NewConfig(),
		RateLimit:  ratelimit.NewConfig(),
		Slack:      slack.NewConfig(),
		Airtable:   airtable.NewConfig(),
		Session:    session.NewConfig(),
		HTTPClient: httpclient.NewConfig(),
		ProfServer: profserver.NewConfig(),
	}
}

// SetProviderDefaults implements config.Config.
func (c *AppConfig) SetProviderDefaults(dp config.DataProvider) {
	config.CallSetProviderDefaultsForFields(c, dp)
}

// Set implements config.Config.
func (c *AppConfig) Set(dp config.DataProvider) error {
	return config.CallSetForFields(c, dp)
}

func loadAppConfig(path string) (*AppConfig, error) {
	cfg := NewAppConfig()
	if err := config.NewDefaultLoader(envVarsPrefix).LoadFromFileIfExists(path, config.DataTypeYAML, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
