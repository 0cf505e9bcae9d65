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

package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestIsSensitiveKey(t *testing.T) {
	sensitive := []string{
		"password", "Password", "db_passwd", "pwd", "client_secret",
		"access-token", "X-FM-Data-Access-Token", "credentials", "Authorization",
		"api_key", "API-Key", "apikey", "private_key",
	}
	for _, k := range sensitive {
		assert.True(t, IsSensitiveKey(k), k)
	}

	plain := []string{"layout", "database", "server", "username", "status", "code"}
	for _, k := range plain {
		assert.False(t, IsSensitiveKey(k), k)
	}
}

func TestRedactNested(t *testing.T) {
	in := map[string]any{
		"server":   "https://fms.example.com",
		"password": "hunter2",
		"nested": map[string]any{
			"token": "abc",
			"items": []any{
				map[string]any{"apiKey": "k1", "name": "first"},
				"plain",
			},
		},
	}

	out := Redact(in).(map[string]any)
	assert.Equal(t, "https://fms.example.com", out["server"])
	assert.Equal(t, Mask, out["password"])

	nested := out["nested"].(map[string]any)
	assert.Equal(t, Mask, nested["token"])
	items := nested["items"].([]any)
	assert.Equal(t, Mask, items[0].(map[string]any)["apiKey"])
	assert.Equal(t, "first", items[0].(map[string]any)["name"])
	assert.Equal(t, "plain", items[1])

	assert.Equal(t, "hunter2", in["password"], "input must not be modified")
}

func TestRedactStruct(t *testing.T) {
	type creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	type wrapper struct {
		Database string  `json:"database"`
		Creds    creds   `json:"creds"`
		Others   []creds `json:"others"`
	}

	out := Redact(wrapper{
		Database: "Inventory",
		Creds:    creds{Username: "admin", Password: "p1"},
		Others:   []creds{{Username: "u", Password: "p2"}},
	}).(map[string]any)

	assert.Equal(t, "Inventory", out["database"])
	assert.Equal(t, Mask, out["creds"].(map[string]any)["password"])
	assert.Equal(t, "admin", out["creds"].(map[string]any)["username"])
	assert.Equal(t, Mask, out["others"].([]any)[0].(map[string]any)["password"])
}

func TestRedactScalars(t *testing.T) {
	assert.Nil(t, Redact(nil))
	assert.Equal(t, "x", Redact("x"))
	assert.Equal(t, 3, Redact(3))
	assert.Equal(t, true, Redact(true))
}

func TestRedactingCore(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(NewRedactingCore(core)).With(zap.String("token", "t-123"))

	logger.Info("login",
		zap.String("username", "admin"),
		zap.String("password", "hunter2"),
		zap.Any("request", map[string]any{"authorization": "Basic abc", "path": "/sessions"}),
	)

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, Mask, ctx["token"])
	assert.Equal(t, "admin", ctx["username"])
	assert.Equal(t, Mask, ctx["password"])

	req := ctx["request"].(map[string]any)
	assert.Equal(t, Mask, req["authorization"])
	assert.Equal(t, "/sessions", req["path"])
}

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("debug", &buf)
	require.NoError(t, err)

	logger.Debug("probe", zap.String("secret", "s3"), zap.String("layout", "Contacts"))
	require.NoError(t, logger.Sync())

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "probe", entry["msg"])
	assert.Equal(t, Mask, entry["secret"])
	assert.Equal(t, "Contacts", entry["layout"])
	assert.NotContains(t, line, "s3\"")

	_, err = NewWithWriter("loud", &buf)
	assert.Error(t, err)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("warn", &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	require.NoError(t, logger.Sync())

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
