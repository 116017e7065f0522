/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

package slack

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mobgames/site/config"
)

func TestConfig(t *testing.T) {
	cfgData := `
slack:
  clientID: "123.456"
  clientSecret: s3cr3t
  redirectURL: https://mobgames.example.com/api/auth/slack/callback
  profileCache:
    ttl: 1m
    maxEntries: 100
`
	cfg := NewConfig()
	err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(cfgData), config.DataTypeYAML, cfg)
	require.NoError(t, err)

	expected := NewDefaultConfig()
	expected.ClientID = "123.456"
	expected.ClientSecret = "s3cr3t"
	expected.RedirectURL = "https://mobgames.example.com/api/auth/slack/callback"
	expected.ProfileCache.TTL = config.TimeDuration(time.Minute)
	expected.ProfileCache.MaxEntries = 100
	require.Equal(t, expected, cfg)
}

func TestConfigValidationErrors(t *testing.T) {
	tests := []struct {
		name           string
		cfgData        string
		expectedErrMsg string
	}{
		{
			name: "relative redirect URL",
			cfgData: `
slack:
  redirectURL: /api/auth/slack/callback
`,
			expectedErrMsg: `slack.redirectURL: "/api/auth/slack/callback" is not an absolute http(s) URL`,
		},
		{
			name: "non-http API URL",
			cfgData: `
slack:
  apiURL: ftp://slack.com/api
`,
			expectedErrMsg: `slack.apiURL: "ftp://slack.com/api" is not an absolute http(s) URL`,
		},
		{
			name: "negative cache TTL",
			cfgData: `
slack:
  profileCache:
    ttl: -1s
`,
			expectedErrMsg: `slack.profileCache.ttl: must not be negative`,
		},
		{
			name: "zero cache size",
			cfgData: `
slack:
  profileCache:
    maxEntries: 0
`,
			expectedErrMsg: `slack.profileCache.maxEntries: must be positive`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(tt.cfgData), config.DataTypeYAML, NewConfig())
			require.EqualError(t, err, tt.expectedErrMsg)
		})
	}
}

func TestConfig_LoginURL(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.ClientID = "123.456"
	require.Equal(t,
		"https://slack.com/oauth/v2/authorize?client_id=123.456&scope=users:read,users.profile:read"+
			"&redirect_uri=https%3A%2F%2Fmobgames.example.com%2Fapi%2Fauth%2Fslack%2Fcallback",
		cfg.LoginURL("https://mobgames.example.com/api/auth/slack/callback"))
}
