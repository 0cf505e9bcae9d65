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
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/kraklabs/fmmcp/pkg/apierror"
	"github.com/kraklabs/fmmcp/pkg/fmclient"
	"github.com/kraklabs/fmmcp/pkg/session"
	"github.com/kraklabs/fmmcp/pkg/tools"
)

// Instructions is sent to clients on initialize.
const Instructions = "Read-only access to one FileMaker database through the Data API. " +
	"Call fm_login first; every other data tool needs an open session. " +
	"If a tool reports a session error, call fm_login again."

// loginResult is returned by fm_login.
type loginResult struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Session session.Info `json:"session"`
}

type layoutArgs struct {
	Layout string `json:"layout"`
}

type getRecordsArgs struct {
	Layout string `json:"layout"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

type recordByIDArgs struct {
	Layout   string `json:"layout"`
	RecordID string `json:"recordId"`
}

type findArgs struct {
	Layout string              `json:"layout"`
	Query  []map[string]string `json:"query"`
	Sort   []fmclient.SortRule `json:"sort"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

type exportArgs struct {
	IncludeScripts       bool `json:"includeScripts"`
	IncludeValueLists    bool `json:"includeValueLists"`
	IncludeRelationships bool `json:"includeRelationships"`
}

type searchArgs struct {
	SearchText           string   `json:"searchText"`
	Layouts              []string `json:"layouts"`
	Mode                 string   `json:"mode"`
	IncludeCalculations  bool     `json:"includeCalculations"`
	MaxFieldsPerLayout   int      `json:"maxFieldsPerLayout"`
	MaxRecordsPerLayout  int      `json:"maxRecordsPerLayout"`
	IncludeMatchedFields bool     `json:"includeMatchedFields"`
}

// bind decodes tool arguments into dst.
func bind(args json.RawMessage, dst any) error {
	if err := json.Unmarshal(args, dst); err != nil {
		return apierror.InvalidInput("invalid arguments: " + err.Error())
	}
	return nil
}

var layoutProp = propString("Layout name exactly as returned by fm_list_layouts.")

// FileMakerTools returns the fm_* tools bound to mgr.
func FileMakerTools(mgr *session.Manager, logger *zap.Logger) []Tool {
	if logger == nil {
		logger = zap.NewNop()
	}

	return []Tool{
		{
			Name:        "fm_login",
			Description: "Open a Data API session with the configured credentials. An existing session is closed first.",
			InputSchema: jsonSchema(map[string]any{}, nil),
			Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				info, err := mgr.Login(ctx)
				if err != nil {
					return nil, err
				}
				return loginResult{Success: true, Message: "session opened", Session: info}, nil
			},
		},
		{
			Name:        "fm_logout",
			Description: "Close the current Data API session.",
			InputSchema: jsonSchema(map[string]any{}, nil),
			Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				if err := mgr.Logout(ctx); err != nil {
					return nil, err
				}
				return map[string]any{"success": true, "message": "session closed"}, nil
			},
		},
		{
			Name:        "fm_validate_session",
			Description: "Check with the server whether the current session is still valid.",
			InputSchema: jsonSchema(map[string]any{}, nil),
			Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				return mgr.Validate(ctx), nil
			},
		},
		{
			Name:        "fm_session_status",
			Description: "Report the local session state (age, assumed remaining lifetime) without contacting the server.",
			InputSchema: jsonSchema(map[string]any{}, nil),
			Handler: func(_ context.Context, _ json.RawMessage) (any, error) {
				return mgr.Info(), nil
			},
		},
		{
			Name:        "fm_list_layouts",
			Description: "List the layouts of the database. Folders are flattened into the layouts list; the raw tree is included.",
			InputSchema: jsonSchema(map[string]any{}, nil),
			Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				return tools.ListLayouts(ctx, mgr)
			},
		},
		{
			Name:        "fm_get_layout_metadata",
			Description: "Return field, portal and value list metadata of one layout.",
			InputSchema: jsonSchema(map[string]any{"layout": layoutProp}, []string{"layout"}),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var a layoutArgs
				if err := bind(raw, &a); err != nil {
					return nil, err
				}
				return tools.LayoutMetadata(ctx, mgr, a.Layout)
			},
		},
		{
			Name:        "fm_list_scripts",
			Description: "List script names. Folders are flattened.",
			InputSchema: jsonSchema(map[string]any{}, nil),
			Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				return tools.ListScripts(ctx, mgr)
			},
		},
		{
			Name:        "fm_get_records",
			Description: "Return a page of records from a layout.",
			InputSchema: jsonSchema(map[string]any{
				"layout": layoutProp,
				"offset": propInteger("First record to return, starting at 1.", 1, 1<<31-1),
				"limit":  propInteger("Records per page (default 100).", 1, tools.MaxPageLimit),
			}, []string{"layout"}),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var a getRecordsArgs
				if err := bind(raw, &a); err != nil {
					return nil, err
				}
				return tools.GetRecords(ctx, mgr, a.Layout, a.Offset, a.Limit)
			},
		},
		{
			Name:        "fm_get_record_by_id",
			Description: "Return one record by its internal record id.",
			InputSchema: jsonSchema(map[string]any{
				"layout":   layoutProp,
				"recordId": propString("Internal record id (recordId), not a primary key field."),
			}, []string{"layout", "recordId"}),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var a recordByIDArgs
				if err := bind(raw, &a); err != nil {
					return nil, err
				}
				return tools.GetRecordByID(ctx, mgr, a.Layout, a.RecordID)
			},
		},
		{
			Name: "fm_find_records",
			Description: "Run a FileMaker find. Each query object is one find request (fields ANDed); " +
				"multiple objects are ORed. No matches returns an empty page.",
			InputSchema: jsonSchema(map[string]any{
				"layout": layoutProp,
				"query": propObjectArray("Find requests: field name to criterion, e.g. {\"City\": \"==Boston\"}.",
					map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}}),
				"sort": propObjectArray("Sort rules.", jsonSchema(map[string]any{
					"fieldName": propString("Field to sort on."),
					"sortOrder": propStringEnum("Sort direction.", []string{"ascend", "descend"}),
				}, []string{"fieldName"})),
				"limit":  propInteger("Maximum records (default 100).", 1, tools.MaxPageLimit),
				"offset": propInteger("First record to return, starting at 1.", 1, 1<<31-1),
			}, []string{"layout", "query"}),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var a findArgs
				if err := bind(raw, &a); err != nil {
					return nil, err
				}
				return tools.FindRecords(ctx, mgr, a.Layout, tools.FindOptions{
					Query:  a.Query,
					Sort:   a.Sort,
					Limit:  a.Limit,
					Offset: a.Offset,
				})
			},
		},
		{
			Name:        "fm_get_record_count",
			Description: "Return the total record count of a layout's table.",
			InputSchema: jsonSchema(map[string]any{"layout": layoutProp}, []string{"layout"}),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var a layoutArgs
				if err := bind(raw, &a); err != nil {
					return nil, err
				}
				return tools.GetRecordCount(ctx, mgr, a.Layout)
			},
		},
		{
			Name: "fm_analyze_relationships",
			Description: "Infer relationships of one layout from its portals and foreign-key-like field names. " +
				"Results are heuristic.",
			InputSchema: jsonSchema(map[string]any{"layout": layoutProp}, []string{"layout"}),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var a layoutArgs
				if err := bind(raw, &a); err != nil {
					return nil, err
				}
				return tools.AnalyzeRelationships(ctx, mgr, a.Layout)
			},
		},
		{
			Name: "fm_export_metadata",
			Description: "Export metadata of every layout in one document. Layouts that cannot be read are " +
				"listed in skippedLayouts.",
			InputSchema: jsonSchema(map[string]any{
				"includeScripts":       propBoolean("Include script names."),
				"includeValueLists":    propBoolean("Include value lists, merged by name."),
				"includeRelationships": propBoolean("Include inferred portal relationships."),
			}, nil),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var a exportArgs
				if err := bind(raw, &a); err != nil {
					return nil, err
				}
				return tools.ExportMetadata(ctx, mgr, tools.ExportOptions{
					IncludeScripts:       a.IncludeScripts,
					IncludeValueLists:    a.IncludeValueLists,
					IncludeRelationships: a.IncludeRelationships,
					Logger:               logger,
				})
			},
		},
		{
			Name: "fm_global_search",
			Description: "Search text across several layouts, one find per layout over its searchable fields. " +
				"Failing layouts are skipped and reported.",
			InputSchema: jsonSchema(map[string]any{
				"searchText": propString("Text to search for."),
				"layouts":    propStringArray("Layouts to search."),
				"mode": propStringEnum("Match mode for text fields (default contains).",
					[]string{string(tools.ModeContains), string(tools.ModeStartsWith), string(tools.ModeExact)}),
				"includeCalculations":  propBoolean("Also search calculation and summary fields."),
				"maxFieldsPerLayout":   propInteger("Fields searched per layout (default 20).", 1, tools.MaxFieldsCeiling),
				"maxRecordsPerLayout":  propInteger("Records returned per layout (default 10).", 1, tools.MaxRecordsCeiling),
				"includeMatchedFields": propBoolean("Report which searched fields contain the text."),
			}, []string{"searchText", "layouts"}),
			Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var a searchArgs
				if err := bind(raw, &a); err != nil {
					return nil, err
				}
				return tools.SearchAcross(ctx, mgr, a.SearchText, a.Layouts, tools.SearchOptions{
					Mode:                 tools.SearchMode(strings.TrimSpace(a.Mode)),
					IncludeCalculations:  a.IncludeCalculations,
					MaxFieldsPerLayout:   a.MaxFieldsPerLayout,
					MaxRecordsPerLayout:  a.MaxRecordsPerLayout,
					IncludeMatchedFields: a.IncludeMatchedFields,
					Logger:               logger,
				})
			},
		},
	}
}
