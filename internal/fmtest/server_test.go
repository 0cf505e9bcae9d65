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

package fmtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/fmmcp/pkg/apierror"
	"github.com/kraklabs/fmmcp/pkg/fmclient"
)

func seeded(t *testing.T) *Server {
	srv := New(t)
	srv.AddLayout(Layout{
		Name:   "Contacts",
		Fields: []fmclient.FieldMeta{Text("Name"), Number("Age")},
		Records: []fmclient.Record{
			Row("1", map[string]any{"Name": "Ada Lovelace", "Age": 36}),
			Row("2", map[string]any{"Name": "Alan Turing", "Age": 41}),
			Row("3", map[string]any{"Name": "Grace Hopper", "Age": 85}),
		},
	})
	srv.AddLayout(Layout{Name: "Invoices", Folder: "Billing"})
	return srv
}

// TestServerLogin verifies tokens are issued only for the known account.
func TestServerLogin(t *testing.T) {
	srv := seeded(t)
	client := srv.Client()
	ctx := context.Background()

	token, err := client.Login(ctx, Username, Password)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, 1, srv.ActiveTokens())

	_, err = client.Login(ctx, Username, "wrong")
	require.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.InvalidCredentials))
}

// TestServerLayoutTree verifies folders wrap their layouts.
func TestServerLayoutTree(t *testing.T) {
	srv := seeded(t)
	client := srv.Client()
	ctx := context.Background()
	token, err := client.Login(ctx, Username, Password)
	require.NoError(t, err)

	nodes, err := client.ListLayouts(ctx, token)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.True(t, nodes[1].IsFolder)
	assert.Equal(t, []string{"Contacts", "Invoices"}, fmclient.FlattenLayouts(nodes))
}

// TestServerFind covers the supported find operators.
func TestServerFind(t *testing.T) {
	srv := seeded(t)
	client := srv.Client()
	ctx := context.Background()
	token, err := client.Login(ctx, Username, Password)
	require.NoError(t, err)

	tests := []struct {
		name     string
		criteria string
		want     int
	}{
		{"contains", "*an*", 1},
		{"starts with", "a*", 2},
		{"exact", "==grace hopper", 1},
		{"equality", "ada lovelace", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := client.Find(ctx, token, "Contacts", fmclient.FindRequest{
				Query: []map[string]string{{"Name": tt.criteria}},
			})
			require.NoError(t, err)
			assert.Len(t, rs.Data, tt.want)
		})
	}

	_, err = client.Find(ctx, token, "Contacts", fmclient.FindRequest{
		Query: []map[string]string{{"Name": "nobody"}},
	})
	assert.True(t, apierror.IsNoRecords(err))
	assert.Len(t, srv.FindBodies("Contacts"), len(tests)+1)
}

// TestServerExpireTokens verifies an expired token yields code 952.
func TestServerExpireTokens(t *testing.T) {
	srv := seeded(t)
	client := srv.Client()
	ctx := context.Background()
	token, err := client.Login(ctx, Username, Password)
	require.NoError(t, err)

	srv.ExpireTokens()
	_, err = client.ListLayouts(ctx, token)
	assert.True(t, apierror.IsSessionExpired(err))
	assert.Equal(t, 2, srv.Count("GET", "/layouts")+srv.Count("POST", "/sessions"))
}

// TestServerMissingLayout verifies unknown layouts yield code 105.
func TestServerMissingLayout(t *testing.T) {
	srv := seeded(t)
	client := srv.Client()
	ctx := context.Background()
	token, err := client.Login(ctx, Username, Password)
	require.NoError(t, err)

	_, err = client.LayoutMetadata(ctx, token, "Nope")
	assert.True(t, apierror.IsCode(err, apierror.LayoutMissing))
}
