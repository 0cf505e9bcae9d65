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

	"go.uber.org/zap"

	"github.com/kraklabs/fmmcp/pkg/apierror"
	"github.com/kraklabs/fmmcp/pkg/fmclient"
)

// ExportLimitations lists what the Data API cannot report, so an export is
// never mistaken for a complete schema.
var ExportLimitations = []string{
	"Table and field definitions are only visible through layouts; fields not placed on any layout are missing.",
	"Calculation formulas, auto-enter options and validation rules are not exposed.",
	"Script steps are not exposed; only script names are listed.",
	"Relationship graph definitions are not exposed; relationships are inferred from portal and field names.",
	"Privilege sets, accounts and access control settings are not exposed.",
}

// ExportOptions selects optional parts of a metadata export.
type ExportOptions struct {
	IncludeScripts       bool
	IncludeValueLists    bool
	IncludeRelationships bool

	// Logger receives per-layout skip diagnostics.
	Logger *zap.Logger

	// Progress, when set, is called after each layout is processed.
	Progress func(done, total int, layout string)
}

// LayoutExport is the exported metadata of one layout.
type LayoutExport struct {
	Name        string               `json:"name"`
	Table       string               `json:"table,omitempty"`
	FieldCount  int                  `json:"fieldCount"`
	PortalCount int                  `json:"portalCount"`
	Fields      []fmclient.FieldMeta `json:"fields"`
	Portals     fmclient.Portals     `json:"portals"`
}

// MetadataExport is the combined metadata of a database.
type MetadataExport struct {
	Database       string               `json:"database"`
	LayoutCount    int                  `json:"layoutCount"`
	Layouts        []LayoutExport       `json:"layouts"`
	Scripts        []string             `json:"scripts,omitempty"`
	ValueLists     []fmclient.ValueList `json:"valueLists,omitempty"`
	Relationships  []Relationship       `json:"relationships,omitempty"`
	SkippedLayouts []SkippedLayout      `json:"skippedLayouts"`
	Limitations    []string             `json:"limitations"`
	Disclaimer     string               `json:"disclaimer,omitempty"`
}

// ExportMetadata walks every queryable layout and collects its metadata.
// Failing to list layouts or, when requested, scripts fails the export. A
// layout whose metadata cannot be read is recorded in SkippedLayouts,
// except for an expired session, which ends the export.
func ExportMetadata(ctx context.Context, r Runner, opts ExportOptions) (*MetadataExport, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var out *MetadataExport
	err := r.RunAuthenticated(ctx, func(ctx context.Context, c *fmclient.Client, token string) error {
		nodes, err := c.ListLayouts(ctx, token)
		if err != nil {
			return err
		}
		tables := layoutTables(nodes)
		names := fmclient.FlattenLayouts(nodes)

		exp := &MetadataExport{
			Database:       c.Database(),
			Layouts:        []LayoutExport{},
			SkippedLayouts: []SkippedLayout{},
			Limitations:    ExportLimitations,
		}
		seenLists := make(map[string]bool)

		for i, name := range names {
			meta, err := c.LayoutMetadata(ctx, token, name)
			if err != nil {
				if apierror.IsSessionExpired(err) {
					return err
				}
				logger.Warn("skipping layout", zap.String("layout", name), zap.Error(err))
				exp.SkippedLayouts = append(exp.SkippedLayouts, skipped(name, err))
				progress(opts, i+1, len(names), name)
				continue
			}

			exp.Layouts = append(exp.Layouts, LayoutExport{
				Name:        name,
				Table:       tables[name],
				FieldCount:  len(meta.Fields),
				PortalCount: len(meta.Portals),
				Fields:      nonNilFields(meta.Fields),
				Portals:     meta.Portals,
			})

			if opts.IncludeValueLists {
				for _, vl := range meta.ValueLists {
					if seenLists[vl.Name] {
						continue
					}
					seenLists[vl.Name] = true
					exp.ValueLists = append(exp.ValueLists, vl)
				}
			}
			if opts.IncludeRelationships {
				exp.Relationships = append(exp.Relationships, PortalRelationships(name, meta.Portals)...)
			}
			progress(opts, i+1, len(names), name)
		}

		if opts.IncludeScripts {
			scripts, err := c.ListScripts(ctx, token)
			if err != nil {
				return err
			}
			exp.Scripts = fmclient.FlattenScripts(scripts)
			if exp.Scripts == nil {
				exp.Scripts = []string{}
			}
		}
		if opts.IncludeRelationships {
			if exp.Relationships == nil {
				exp.Relationships = []Relationship{}
			}
			exp.Disclaimer = RelationshipDisclaimer
		}
		if opts.IncludeValueLists && exp.ValueLists == nil {
			exp.ValueLists = []fmclient.ValueList{}
		}

		exp.LayoutCount = len(exp.Layouts)
		out = exp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func progress(opts ExportOptions, done, total int, layout string) {
	if opts.Progress != nil {
		opts.Progress(done, total, layout)
	}
}

// layoutTables maps layout names to their base table occurrence.
func layoutTables(nodes []fmclient.LayoutNode) map[string]string {
	out := make(map[string]string)
	var walk func([]fmclient.LayoutNode)
	walk = func(ns []fmclient.LayoutNode) {
		for _, n := range ns {
			if n.IsFolder {
				walk(n.FolderLayoutNames)
				continue
			}
			out[n.Name] = n.Table
		}
	}
	walk(nodes)
	return out
}

func nonNilFields(f []fmclient.FieldMeta) []fmclient.FieldMeta {
	if f == nil {
		return []fmclient.FieldMeta{}
	}
	return f
}

// skipped describes why layout was left out, using the resolved error
// message when one is available.
func skipped(layout string, err error) SkippedLayout {
	s := SkippedLayout{Layout: layout, Reason: err.Error()}
	if d, ok := apierror.As(err); ok {
		s.Code = int(d.Code)
	}
	return s
}
