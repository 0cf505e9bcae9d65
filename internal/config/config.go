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

// Package config loads the server configuration from an optional YAML file,
// FM_* environment variables and command-line flags, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kraklabs/fmmcp/pkg/fmclient"
	"github.com/kraklabs/fmmcp/pkg/session"
)

// EnvPrefix is prepended to every environment variable, e.g. FM_SERVER.
const EnvPrefix = "FM"

// Defaults.
const (
	DefaultAPIVersion     = "vLatest"
	DefaultSessionTimeout = 840
	DefaultRequestTimeout = 30
	DefaultLogLevel       = "info"
)

// Config holds everything needed to reach one hosted database.
type Config struct {
	Server     string `mapstructure:"server" yaml:"server"`
	Database   string `mapstructure:"database" yaml:"database"`
	Username   string `mapstructure:"username" yaml:"username"`
	Password   string `mapstructure:"password" yaml:"password"`
	APIVersion string `mapstructure:"api_version" yaml:"api_version"`
	VerifySSL  bool   `mapstructure:"verify_ssl" yaml:"verify_ssl"`

	// SessionTimeout and RequestTimeout are in seconds.
	SessionTimeout int `mapstructure:"session_timeout" yaml:"session_timeout"`
	RequestTimeout int `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxRetries     int `mapstructure:"max_retries" yaml:"max_retries"`

	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`

	// Warnings collects non-fatal findings from Validate.
	Warnings []string `mapstructure:"-" yaml:"-"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"server":          "server",
	"database":        "database",
	"username":        "username",
	"api-version":     "api_version",
	"verify-ssl":      "verify_ssl",
	"session-timeout": "session_timeout",
	"request-timeout": "request_timeout",
	"max-retries":     "max_retries",
	"log-level":       "log_level",
	"metrics-addr":    "metrics_addr",
}

// Load reads the configuration. path may be empty, in which case only the
// environment and flags are consulted. flags may be nil; only flags that
// were explicitly set override other sources.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("server", "")
	v.SetDefault("database", "")
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("api_version", DefaultAPIVersion)
	v.SetDefault("verify_ssl", true)
	v.SetDefault("session_timeout", DefaultSessionTimeout)
	v.SetDefault("request_timeout", DefaultRequestTimeout)
	v.SetDefault("max_retries", 0)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("metrics_addr", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found", path)
			}
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding flag --%s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required keys and value ranges. It resets Warnings.
func (c *Config) Validate() error {
	c.Warnings = nil

	var missing []string
	for _, kv := range []struct{ key, val string }{
		{"server", c.Server},
		{"database", c.Database},
		{"username", c.Username},
		{"password", c.Password},
	} {
		if strings.TrimSpace(kv.val) == "" {
			missing = append(missing, kv.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s (set FM_%s)",
			strings.Join(missing, ", "), strings.ToUpper(missing[0]))
	}

	u, err := url.Parse(c.Server)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid server URL %q", c.Server)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
	case "http":
		return fmt.Errorf("server %q must use https; credentials are sent with every login", c.Server)
	default:
		return fmt.Errorf("invalid server URL %q: scheme must be https", c.Server)
	}

	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("session_timeout must be positive, got %d", c.SessionTimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %d", c.RequestTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}

	if !c.VerifySSL {
		c.Warnings = append(c.Warnings, "TLS certificate verification is disabled (verify_ssl=false)")
	}
	return nil
}

// ClientConfig returns the transport configuration.
func (c *Config) ClientConfig() fmclient.Config {
	return fmclient.Config{
		Server:             strings.TrimRight(c.Server, "/"),
		Database:           c.Database,
		Version:            c.APIVersion,
		Timeout:            time.Duration(c.RequestTimeout) * time.Second,
		InsecureSkipVerify: !c.VerifySSL,
		MaxRetries:         c.MaxRetries,
	}
}

// Credentials returns the login credentials.
func (c *Config) Credentials() session.Credentials {
	return session.Credentials{Username: c.Username, Password: c.Password}
}

// SessionTimeoutDuration returns SessionTimeout as a duration.
func (c *Config) SessionTimeoutDuration() time.Duration {
	return time.Duration(c.SessionTimeout) * time.Second
}
