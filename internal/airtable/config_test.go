/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

package airtable

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mobgames/site/config"
)

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := NewConfig()
		err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(`
airtable:
  token: patXYZ
`), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		expected := NewDefaultConfig()
		expected.Token = "patXYZ"
		require.Equal(t, expected, cfg)
		require.Equal(t, "https://api.airtable.com/v0/appu0BNsDItqYZrMl/tblK44riCxwsWenUq", cfg.TableURL())
	})

	t.Run("custom", func(t *testing.T) {
		cfg := NewConfig()
		err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(`
airtable:
  apiURL: http://localhost:8181/v0
  baseID: appTest
  tableID: tblTest
  rateLimit: 0.5
  rateLimitBurst: 2
`), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, &Config{
			APIURL: "http://localhost:8181/v0", BaseID: "appTest", TableID: "tblTest", RateLimit: 0.5, RateLimitBurst: 2,
		}, cfg)
	})
}

func TestConfigValidationErrors(t *testing.T) {
	tests := []struct {
		name           string
		cfgData        string
		expectedErrMsg string
	}{
		{
			name:           "relative API URL",
			cfgData:        "airtable:\n  apiURL: v0\n",
			expectedErrMsg: `airtable.apiURL: "v0" is not an absolute http(s) URL`,
		},
		{
			name:           "empty base",
			cfgData:        "airtable:\n  baseID: \"\"\n",
			expectedErrMsg: `airtable.baseID: must not be empty`,
		},
		{
			name:           "empty table",
			cfgData:        "airtable:\n  tableID: \"\"\n",
			expectedErrMsg: `airtable.tableID: must not be empty`,
		},
		{
			name:           "negative rate limit",
			cfgData:        "airtable:\n  rateLimit: -5\n",
			expectedErrMsg: `airtable.rateLimit: must not be negative`,
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
