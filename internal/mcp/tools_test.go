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

package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/fmmcp/internal/fmtest"
	"github.com/kraklabs/fmmcp/pkg/apierror"
	"github.com/kraklabs/fmmcp/pkg/fmclient"
	"github.com/kraklabs/fmmcp/pkg/session"
)

var toolNames = []string{
	"fm_login", "fm_logout", "fm_validate_session", "fm_session_status",
	"fm_list_layouts", "fm_get_layout_metadata", "fm_list_scripts",
	"fm_get_records", "fm_get_record_by_id", "fm_find_records", "fm_get_record_count",
	"fm_analyze_relationships", "fm_export_metadata", "fm_global_search",
}

func fileMakerServer(t *testing.T) (*Server, *fmtest.Server) {
	t.Helper()
	fm := fmtest.New(t)
	fm.AddLayout(fmtest.Layout{
		Name: "Customers",
		Fields: []fmclient.FieldMeta{
			fmtest.Number("Customer_ID"),
			fmtest.Text("Name"),
			fmtest.Number("Region_ID"),
		},
		Portals: fmclient.Portals{{Name: "Orders", Fields: []fmclient.FieldMeta{fmtest.Number("Orders::Customer_ID")}}},
		Records: []fmclient.Record{
			fmtest.Row("1", map[string]any{"Customer_ID": 1, "Name": "Acme Corp", "Region_ID": 4}),
			fmtest.Row("2", map[string]any{"Customer_ID": 2, "Name": "Globex", "Region_ID": 4}),
		},
	})

	mgr := session.NewManager(fm.Client(), session.Credentials{
		Username: fmtest.Username,
		Password: fmtest.Password,
	}, session.Options{})

	s := NewServer("fmmcp", "test")
	require.NoError(t, s.Register(FileMakerTools(mgr, nil)...))
	return s, fm
}

func callTool(t *testing.T, s *Server, name string, args map[string]any) (map[string]any, bool) {
	t.Helper()
	params := map[string]any{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	return toolText(t, rpc(t, s, 1, "tools/call", params))
}

func errorCode(t *testing.T, body map[string]any) apierror.Code {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected an error body, got %v", body)
	return apierror.Code(e["code"].(float64))
}

func TestFileMakerToolsRegistered(t *testing.T) {
	s, _ := fileMakerServer(t)
	var names []string
	for _, tool := range s.Tools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description, tool.Name)
		assert.Equal(t, "object", tool.InputSchema["type"], tool.Name)
	}
	assert.Equal(t, toolNames, names)
}

func TestFileMakerToolsRequireLogin(t *testing.T) {
	s, fm := fileMakerServer(t)

	body, isError := callTool(t, s, "fm_list_layouts", nil)
	assert.True(t, isError)
	assert.Equal(t, apierror.NoSession, errorCode(t, body))

	body, isError = callTool(t, s, "fm_logout", nil)
	assert.True(t, isError)
	assert.Equal(t, apierror.NoSession, errorCode(t, body))

	body, isError = callTool(t, s, "fm_validate_session", nil)
	assert.False(t, isError)
	assert.Equal(t, false, body["valid"])

	assert.Empty(t, fm.Requests())
}

func TestFileMakerToolsSessionLifecycle(t *testing.T) {
	s, fm := fileMakerServer(t)

	body, isError := callTool(t, s, "fm_login", nil)
	require.False(t, isError, "login failed: %v", body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["session"].(map[string]any)["active"])

	body, _ = callTool(t, s, "fm_session_status", nil)
	assert.Equal(t, true, body["active"])
	assert.Equal(t, fmtest.Database, body["database"])

	body, _ = callTool(t, s, "fm_validate_session", nil)
	assert.Equal(t, true, body["valid"])

	fm.ExpireTokens()
	body, isError = callTool(t, s, "fm_list_layouts", nil)
	assert.True(t, isError)
	assert.Equal(t, apierror.SessionExpired, errorCode(t, body))
	assert.Equal(t, true, body["error"].(map[string]any)["retryable"])

	body, _ = callTool(t, s, "fm_session_status", nil)
	assert.Equal(t, false, body["active"], "an expired session is cleared")

	_, isError = callTool(t, s, "fm_login", nil)
	require.False(t, isError)
	_, isError = callTool(t, s, "fm_logout", nil)
	assert.False(t, isError)
	assert.Zero(t, fm.ActiveTokens())
}

func TestFileMakerToolsData(t *testing.T) {
	s, _ := fileMakerServer(t)
	_, isError := callTool(t, s, "fm_login", nil)
	require.False(t, isError)

	body, isError := callTool(t, s, "fm_list_layouts", nil)
	require.False(t, isError)
	assert.Equal(t, []any{"Customers"}, body["layouts"])

	body, isError = callTool(t, s, "fm_get_records", map[string]any{"layout": "Customers", "limit": 1})
	require.False(t, isError)
	assert.Len(t, body["records"], 1)

	body, isError = callTool(t, s, "fm_get_record_by_id", map[string]any{"layout": "Customers", "recordId": "2"})
	require.False(t, isError)
	assert.Equal(t, "Globex", body["fieldData"].(map[string]any)["Name"])

	body, isError = callTool(t, s, "fm_find_records", map[string]any{
		"layout": "Customers",
		"query":  []any{map[string]any{"Name": "acme*"}},
	})
	require.False(t, isError)
	assert.Len(t, body["records"], 1)

	body, isError = callTool(t, s, "fm_get_record_count", map[string]any{"layout": "Customers"})
	require.False(t, isError)
	assert.Equal(t, float64(2), body["totalRecordCount"])

	body, isError = callTool(t, s, "fm_get_layout_metadata", map[string]any{"layout": "Nowhere"})
	assert.True(t, isError)
	assert.Equal(t, apierror.LayoutMissing, errorCode(t, body))
}

func TestFileMakerToolsAggregates(t *testing.T) {
	s, _ := fileMakerServer(t)
	_, isError := callTool(t, s, "fm_login", nil)
	require.False(t, isError)

	body, isError := callTool(t, s, "fm_analyze_relationships", map[string]any{"layout": "Customers"})
	require.False(t, isError)
	assert.NotEmpty(t, body["relationships"])
	assert.NotEmpty(t, body["disclaimer"])

	body, isError = callTool(t, s, "fm_export_metadata", map[string]any{"includeRelationships": true})
	require.False(t, isError)
	assert.Equal(t, float64(1), body["layoutCount"])
	assert.NotEmpty(t, body["limitations"])

	body, isError = callTool(t, s, "fm_global_search", map[string]any{
		"searchText": "globex",
		"layouts":    []any{"Customers"},
	})
	require.False(t, isError)
	summary := body["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["totalRecordsFound"])

	body, isError = callTool(t, s, "fm_global_search", map[string]any{"searchText": "x", "layouts": []any{}})
	assert.True(t, isError)
	assert.Equal(t, apierror.BadRequest, errorCode(t, body))
}
