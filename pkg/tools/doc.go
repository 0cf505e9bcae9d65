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

// Package tools implements the FileMaker operations exposed over MCP.
//
// Every function takes a Runner (normally a *session.Manager) and returns a
// typed result or an error that is, or wraps, an *apierror.Descriptor.
// Functions never log in or out themselves; they fail with
// apierror.NoSession when no session is open.
//
// # Quick Start
//
//	client := fmclient.New(fmclient.Config{
//		Server:   "https://fms.example.com",
//		Database: "Inventory",
//	})
//	mgr := session.NewManager(client, session.Credentials{
//		Username: "api",
//		Password: os.Getenv("FM_PASSWORD"),
//	}, session.Options{})
//
//	if _, err := mgr.Login(ctx); err != nil {
//		log.Fatal(err)
//	}
//	res, err := tools.SearchAcross(ctx, mgr, "Smith", []string{"Contacts", "Invoices"}, tools.SearchOptions{})
//
// # Available Operations
//
// Passthrough:
//   - ListLayouts, LayoutMetadata, ListScripts
//   - GetRecords, GetRecordByID, FindRecords, GetRecordCount
//
// Analysis:
//   - DetectForeignKey, InferRelationships, AnalyzeRelationships: naming
//     convention based relationship guesses, always with a disclaimer
//   - ExportMetadata: every layout's fields, portals and value lists in one
//     structure, tolerating per-layout failures
//   - SearchAcross: type-aware OR find across many layouts, one at a time
//
// # Failure Tolerance
//
// ExportMetadata and SearchAcross skip a layout that fails and report it in
// their result. Two failures are never skipped: an expired session, which
// the caller must handle by logging in again, and a failure listing layouts
// or scripts in ExportMetadata.
//
// # Inference Caveats
//
// The Data API exposes no relationship graph. Relationships are inferred
// from portal names (portal_, rel_ prefixes and _portal, _rel suffixes are
// removed) and from field names matching, in order:
//   - <name>_id or <name>_ID
//   - <name>ID
//   - fk_<name> or FK_<name>
//   - id_<name> or ID_<name>
//
// Only text and number fields are considered. Confidence is high only for a
// number field whose name ends in _id.
package tools
