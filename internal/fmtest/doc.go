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

// Package fmtest provides an in-process fake of the FileMaker Data API for
// tests.
//
// # Quick Start
//
// Use New to start a fake server, seed it with layouts, and hand the
// matching client to the code under test:
//
//	func TestMyFeature(t *testing.T) {
//	    srv := fmtest.New(t)
//	    srv.AddLayout(fmtest.Layout{
//	        Name:   "Contacts",
//	        Fields: []fmclient.FieldMeta{fmtest.Text("Name")},
//	        Records: []fmclient.Record{fmtest.Row("1", map[string]any{"Name": "Ada"})},
//	    })
//
//	    client := srv.Client()
//	    token, err := client.Login(ctx, fmtest.Username, fmtest.Password)
//	    require.NoError(t, err)
//	}
//
// # Failure Injection
//
// Every route can be made to fail with a given HTTP status and Data API
// message code:
//   - FailLogin, FailLogout, FailListLayouts, FailScripts: whole-route failures
//   - Layout.MetadataFailure, Layout.FindFailure: per-layout failures
//   - ExpireTokens: invalidate every issued token (next call gets 401/952)
//   - SetDelay: stall every response, for timeout tests
//
// # Inspecting Traffic
//
// Requests and Count expose what the client actually sent, including find
// bodies, so tests can assert on query construction.
package fmtest
