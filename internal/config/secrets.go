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
	"fmt"
	"os"
	"regexp"
)

// secretPattern matches ${PROVIDER:reference}.
var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

func (c *Config) resolveSecrets() error {
	var err error
	c.Password, err = ResolveValue(c.Password)
	if err != nil {
		return fmt.Errorf("password: %w", err)
	}
	c.Username, err = ResolveValue(c.Username)
	if err != nil {
		return fmt.Errorf("username: %w", err)
	}
	return nil
}

// ResolveValue resolves a secret reference. Values without a reference are
// returned unchanged.
//
//	${ENV:NAME}             environment variable NAME
//	${VAULT:path#key}       key of a Vault secret (KV v1 or v2)
//	${AWS_SM:secret-name}   string value of an AWS Secrets Manager secret
func ResolveValue(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	provider, ref := matches[1], matches[2]
	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ref)
	case "AWS_SM":
		return resolveAWSSecretsManager(ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}
