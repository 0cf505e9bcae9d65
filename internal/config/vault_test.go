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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vaultServer(t *testing.T, data map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/secret/data/fmmcp" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Vault-Token") != "test-token" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"data": data},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolveVault(t *testing.T) {
	srv := vaultServer(t, map[string]interface{}{"password": "s3cret", "port": 5003})
	t.Setenv("VAULT_ADDR", srv.URL)
	t.Setenv("VAULT_TOKEN", "test-token")

	val, err := ResolveValue("${VAULT:secret/data/fmmcp#password}")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", val)

	_, err = resolveVault("secret/data/fmmcp#missing")
	assert.ErrorContains(t, err, "not found")

	_, err = resolveVault("secret/data/fmmcp#port")
	assert.ErrorContains(t, err, "not a string")
}

func TestResolveVaultBadToken(t *testing.T) {
	srv := vaultServer(t, map[string]interface{}{"password": "s3cret"})
	t.Setenv("VAULT_ADDR", srv.URL)
	t.Setenv("VAULT_TOKEN", "wrong")

	_, err := resolveVault("secret/data/fmmcp#password")
	assert.Error(t, err)
}

func TestResolveVaultInvalidReference(t *testing.T) {
	t.Setenv("VAULT_ADDR", "http://127.0.0.1:8200")
	t.Setenv("VAULT_TOKEN", "test-token")

	for _, ref := range []string{"no-hash", "#key", "path#"} {
		_, err := resolveVault(ref)
		assert.ErrorContains(t, err, "expected format", ref)
	}
}

func TestResolveVaultMissingEnv(t *testing.T) {
	t.Setenv("VAULT_ADDR", "")
	t.Setenv("VAULT_TOKEN", "")

	_, err := resolveVault("secret/data/fmmcp#password")
	assert.ErrorContains(t, err, "VAULT_ADDR")
}
