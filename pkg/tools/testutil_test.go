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

package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kraklabs/fmmcp/internal/fmtest"
	"github.com/kraklabs/fmmcp/pkg/fmclient"
	"github.com/kraklabs/fmmcp/pkg/session"
)

// loggedIn returns a session manager with an open session on srv.
func loggedIn(t *testing.T, srv *fmtest.Server) *session.Manager {
	t.Helper()
	mgr := session.NewManager(srv.Client(), session.Credentials{
		Username: fmtest.Username,
		Password: fmtest.Password,
	}, session.Options{})
	_, err := mgr.Login(context.Background())
	require.NoError(t, err)
	return mgr
}

func field(name string, result fmclient.FieldType) fmclient.FieldMeta {
	return fmtest.Field(name, result, fmclient.FieldKindNormal)
}

func calc(name string, result fmclient.FieldType) fmclient.FieldMeta {
	return fmtest.Field(name, result, fmclient.FieldKindCalculation)
}

func global(name string) fmclient.FieldMeta {
	f := fmtest.Text(name)
	f.Global = true
	return f
}

// contactsLayout is a small layout with one field of every searchable kind
// plus fields a search must ignore.
func contactsLayout() fmtest.Layout {
	return fmtest.Layout{
		Name: "Contacts",
		Fields: []fmclient.FieldMeta{
			fmtest.Number("Contact_ID"),
			fmtest.Text("Name"),
			fmtest.Text("City"),
			field("Photo", fmclient.FieldTypeBinary),
			calc("FullLabel", fmclient.FieldTypeText),
			global("gSearch"),
		},
		Records: []fmclient.Record{
			fmtest.Row("1", map[string]any{"Contact_ID": 1, "Name": "Ada Smith", "City": "London"}),
			fmtest.Row("2", map[string]any{"Contact_ID": 2, "Name": "Alan Jones", "City": "Smithfield"}),
			fmtest.Row("3", map[string]any{"Contact_ID": 3, "Name": "Grace Brown", "City": "Arlington"}),
		},
	}
}
