// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("FM_SERVER", "https://fms.example.com/")
	t.Setenv("FM_DATABASE", "Inventory")
	t.Setenv("FM_USERNAME", "admin")
	t.Setenv("FM_PASSWORD", "pw")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fmmcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromEnvWithDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "Inventory", cfg.Database)
	assert.Equal(t, DefaultAPIVersion, cfg.APIVersion)
	assert.True(t, cfg.VerifySSL)
	assert.Equal(t, DefaultSessionTimeout, cfg.SessionTimeout)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Zero(t, cfg.MaxRetries)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Empty(t, cfg.Warnings)

	cc := cfg.ClientConfig()
	assert.Equal(t, "https://fms.example.com", cc.Server)
	assert.Equal(t, 30*time.Second, cc.Timeout)
	assert.False(t, cc.InsecureSkipVerify)
	assert.Equal(t, 14*time.Minute, cfg.SessionTimeoutDuration())
	assert.Equal(t, "admin", cfg.Credentials().Username)
}

func TestLoadFilePrecedence(t *testing.T) {
	path := writeConfig(t, `
server: https://file.example.com
database: FromFile
username: fileuser
password: filepass
request_timeout: 5
max_retries: 2
verify_ssl: false
`)
	t.Setenv("FM_DATABASE", "FromEnv")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("username", "", "")
	flags.String("log-level", "info", "")
	flags.Int("max-retries", 0, "")
	require.NoError(t, flags.Parse([]string{"--username", "flaguser", "--log-level", "debug"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "https://file.example.com", cfg.Server)
	assert.Equal(t, "FromEnv", cfg.Database, "env overrides file")
	assert.Equal(t, "flaguser", cfg.Username, "flag overrides file")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2, cfg.MaxRetries, "unset flag does not override file")
	assert.Equal(t, 5, cfg.RequestTimeout)

	require.Len(t, cfg.Warnings, 1)
	assert.Contains(t, cfg.Warnings[0], "verify_ssl")
	assert.True(t, cfg.ClientConfig().InsecureSkipVerify)
}

func TestLoadMissingFile(t *testing.T) {
	setBaseEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:         "https://fms.example.com",
			Database:       "Inventory",
			Username:       "admin",
			Password:       "pw",
			VerifySSL:      true,
			SessionTimeout: 840,
			RequestTimeout: 30,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"plain http", func(c *Config) { c.Server = "http://fms.example.com" }, "must use https"},
		{"no scheme", func(c *Config) { c.Server = "fms.example.com" }, "invalid server URL"},
		{"ftp", func(c *Config) { c.Server = "ftp://fms.example.com" }, "scheme must be https"},
		{"missing database", func(c *Config) { c.Database = "" }, "database"},
		{"missing password", func(c *Config) { c.Password = " " }, "password"},
		{"zero session timeout", func(c *Config) { c.SessionTimeout = 0 }, "session_timeout"},
		{"zero request timeout", func(c *Config) { c.RequestTimeout = 0 }, "request_timeout"},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, "max_retries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, DefaultAPIVersion, cfg.APIVersion)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResolveValue(t *testing.T) {
	t.Setenv("FMMCP_TEST_SECRET", "from-env")

	got, err := ResolveValue("plain-value")
	require.NoError(t, err)
	assert.Equal(t, "plain-value", got)

	got, err = ResolveValue("${ENV:FMMCP_TEST_SECRET}")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	_, err = ResolveValue("${ENV:FMMCP_TEST_UNSET_VARIABLE}")
	assert.Error(t, err)
}

func TestLoadResolvesPasswordReference(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("FMMCP_TEST_PASSWORD", "resolved")
	t.Setenv("FM_PASSWORD", "${ENV:FMMCP_TEST_PASSWORD}")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "resolved", cfg.Password)
}
