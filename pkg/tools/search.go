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
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kraklabs/fmmcp/pkg/apierror"
	"github.com/kraklabs/fmmcp/pkg/fmclient"
)

// SearchMode controls how text fields are matched.
type SearchMode string

const (
	ModeContains   SearchMode = "contains"
	ModeStartsWith SearchMode = "startsWith"
	ModeExact      SearchMode = "exact"
)

// Search limits. Caller-supplied values above the ceilings are lowered.
const (
	DefaultMaxFields  = 20
	MaxFieldsCeiling  = 50
	DefaultMaxRecords = 10
	MaxRecordsCeiling = 100
)

// SearchDisclaimer accompanies every search result.
const SearchDisclaimer = "This is a field-level partial match search built from Data API find requests, " +
	"not a full-text index. Records can match in fields that were not searched and be missed."

// SearchLimitations lists the known gaps of SearchAcross.
var SearchLimitations = []string{
	"Layouts are searched one at a time, not in parallel.",
	"Container fields are never searched.",
	"Calculation and summary fields are only searched when includeCalculations is set.",
	"Global fields are never searched.",
	"Only the first fields of each layout up to maxFieldsPerLayout are searched.",
	"FileMaker find operators in the search text (such as @, #, <, >, ...) are interpreted by the server.",
}

// SearchOptions tune SearchAcross. Zero values select defaults.
type SearchOptions struct {
	Mode                 SearchMode
	IncludeCalculations  bool
	MaxFieldsPerLayout   int
	MaxRecordsPerLayout  int
	IncludeMatchedFields bool

	Logger *zap.Logger
}

// SearchHit is one matching record.
type SearchHit struct {
	RecordID      string         `json:"recordId"`
	Fields        map[string]any `json:"fields"`
	MatchedFields []string       `json:"matchedFields,omitempty"`
}

// LayoutResult is the outcome for one searched layout.
type LayoutResult struct {
	Layout         string      `json:"layout"`
	SearchedFields []string    `json:"searchedFields"`
	FoundCount     int         `json:"foundCount"`
	Records        []SearchHit `json:"records"`
}

// SearchSummary totals a search across layouts.
type SearchSummary struct {
	Query             string          `json:"query"`
	Mode              SearchMode      `json:"mode"`
	LayoutsRequested  int             `json:"layoutsRequested"`
	LayoutsSearched   []string        `json:"layoutsSearched"`
	LayoutsSkipped    []SkippedLayout `json:"layoutsSkipped"`
	TotalRecordsFound int             `json:"totalRecordsFound"`
}

// SearchResult is the response of SearchAcross.
type SearchResult struct {
	Results     []LayoutResult `json:"results"`
	Summary     SearchSummary  `json:"summary"`
	Limitations []string       `json:"limitations"`
	Disclaimer  string         `json:"disclaimer"`
}

var searchableTypes = map[fmclient.FieldType]bool{
	fmclient.FieldTypeText:      true,
	fmclient.FieldTypeNumber:    true,
	fmclient.FieldTypeDate:      true,
	fmclient.FieldTypeTime:      true,
	fmclient.FieldTypeTimestamp: true,
}

// SearchableFields returns the fields a search may query, in
// layout order, capped at limit.
func SearchableFields(fields []fmclient.FieldMeta, includeCalculations bool, limit int) []fmclient.FieldMeta {
	var out []fmclient.FieldMeta
	for _, f := range fields {
		if len(out) >= limit {
			break
		}
		if f.Global || !searchableTypes[f.Result] {
			continue
		}
		if f.Kind.Computed() && !includeCalculations {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Criterion formats the find value for one field. Only text fields get
// wildcard decoration; every other type receives text verbatim.
func Criterion(f fmclient.FieldMeta, text string, mode SearchMode) string {
	if f.Result != fmclient.FieldTypeText {
		return text
	}
	switch mode {
	case ModeStartsWith:
		return text + "*"
	case ModeExact:
		return "==" + text
	default:
		return "*" + text + "*"
	}
}

// BuildQuery returns one OR'd find request per field.
func BuildQuery(fields []fmclient.FieldMeta, text string, mode SearchMode) []map[string]string {
	q := make([]map[string]string, 0, len(fields))
	for _, f := range fields {
		q = append(q, map[string]string{f.Name: Criterion(f, text, mode)})
	}
	return q
}

// SearchAcross searches text in every listed layout, one layout at a time.
// A layout whose metadata or find fails is skipped with a reason; an empty
// find counts as searched with no records. An expired session ends the
// search. The text is sent as given; blank text is rejected.
func SearchAcross(ctx context.Context, r Runner, text string, layouts []string, opts SearchOptions) (*SearchResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apierror.InvalidInput("search text is required")
	}
	if len(layouts) == 0 {
		return nil, apierror.InvalidInput("at least one layout is required")
	}
	switch opts.Mode {
	case "":
		opts.Mode = ModeContains
	case ModeContains, ModeStartsWith, ModeExact:
	default:
		return nil, apierror.InvalidInput(fmt.Sprintf("unknown search mode %q (use contains, startsWith or exact)", opts.Mode))
	}
	maxFields := clamp(opts.MaxFieldsPerLayout, DefaultMaxFields, MaxFieldsCeiling)
	maxRecords := clamp(opts.MaxRecordsPerLayout, DefaultMaxRecords, MaxRecordsCeiling)
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	res := &SearchResult{
		Results: []LayoutResult{},
		Summary: SearchSummary{
			Query:            text,
			Mode:             opts.Mode,
			LayoutsRequested: len(layouts),
			LayoutsSearched:  []string{},
			LayoutsSkipped:   []SkippedLayout{},
		},
		Limitations: SearchLimitations,
		Disclaimer:  SearchDisclaimer,
	}

	err := r.RunAuthenticated(ctx, func(ctx context.Context, c *fmclient.Client, token string) error {
		for _, layout := range layouts {
			lr, skip, err := searchLayout(ctx, c, token, layout, text, opts, maxFields, maxRecords)
			if err != nil {
				return err
			}
			if skip != nil {
				logger.Debug("search skipped layout", zap.String("layout", layout), zap.String("reason", skip.Reason))
				res.Summary.LayoutsSkipped = append(res.Summary.LayoutsSkipped, *skip)
				continue
			}
			res.Results = append(res.Results, *lr)
			res.Summary.LayoutsSearched = append(res.Summary.LayoutsSearched, layout)
			res.Summary.TotalRecordsFound += lr.FoundCount
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// searchLayout searches one layout. It returns an error only for failures
// that must end the whole search.
func searchLayout(ctx context.Context, c *fmclient.Client, token, layout, text string, opts SearchOptions, maxFields, maxRecords int) (*LayoutResult, *SkippedLayout, error) {
	meta, err := c.LayoutMetadata(ctx, token, layout)
	if err != nil {
		if apierror.IsSessionExpired(err) {
			return nil, nil, err
		}
		s := skipped(layout, err)
		return nil, &s, nil
	}

	fields := SearchableFields(meta.Fields, opts.IncludeCalculations, maxFields)
	if len(fields) == 0 {
		return nil, &SkippedLayout{Layout: layout, Reason: "no searchable fields"}, nil
	}

	lr := &LayoutResult{
		Layout:         layout,
		SearchedFields: make([]string, 0, len(fields)),
		Records:        []SearchHit{},
	}
	for _, f := range fields {
		lr.SearchedFields = append(lr.SearchedFields, f.Name)
	}

	rs, err := c.Find(ctx, token, layout, fmclient.FindRequest{
		Query: BuildQuery(fields, text, opts.Mode),
		Limit: maxRecords,
	})
	switch {
	case apierror.IsNoRecords(err):
		return lr, nil, nil
	case apierror.IsSessionExpired(err):
		return nil, nil, err
	case err != nil:
		s := skipped(layout, err)
		return nil, &s, nil
	}

	for _, rec := range rs.Data {
		lr.Records = append(lr.Records, SearchHit{RecordID: rec.RecordID, Fields: rec.FieldData})
	}
	lr.FoundCount = rs.DataInfo.FoundCount
	if lr.FoundCount < len(lr.Records) {
		lr.FoundCount = len(lr.Records)
	}
	if opts.IncludeMatchedFields && len(lr.Records) > 0 {
		lr.Records[0].MatchedFields = matchedFields(lr.Records[0].Fields, lr.SearchedFields, text)
	}
	return lr, nil, nil
}

// matchedFields lists the searched fields whose value contains text,
// ignoring case.
func matchedFields(values map[string]any, searched []string, text string) []string {
	needle := strings.ToLower(text)
	var out []string
	for _, name := range searched {
		v, ok := values[name]
		if !ok || v == nil {
			continue
		}
		if strings.Contains(strings.ToLower(fmt.Sprint(v)), needle) {
			out = append(out, name)
		}
	}
	return out
}
