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

package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kraklabs/fmmcp/internal/errors"
	"github.com/kraklabs/fmmcp/internal/ui"
	"github.com/kraklabs/fmmcp/pkg/tools"
)

// valueWidth caps field values in text output.
const valueWidth = 60

func (c *cli) runSearch(ctx context.Context, args []string) error {
	fs := c.newCommandFlags("search", "search TEXT [--layouts A,B] [--mode contains|startsWith|exact]")
	layouts := fs.StringSlice("layouts", nil, "Layouts to search (default: all layouts)")
	mode := fs.String("mode", string(tools.ModeContains), "Match mode: contains, startsWith or exact")
	maxFields := fs.Int("max-fields", tools.DefaultMaxFields, "Fields searched per layout")
	maxRecords := fs.Int("max-records", tools.DefaultMaxRecords, "Records returned per layout")
	calcs := fs.Bool("calculations", false, "Also search calculation and summary fields")
	matched := fs.Bool("matched-fields", false, "Report which fields matched")
	format := fs.StringP("format", "f", "", "Output format: json or yaml (default: text)")
	if err := parseCommandFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.NewInputError("Missing search text", "search needs the text to look for", "Run: fmmcp search \"text\"")
	}
	text := strings.Join(fs.Args(), " ")
	f, err := c.outputFormat(*format)
	if err != nil {
		return err
	}

	app, err := c.loadApp()
	if err != nil {
		return err
	}
	defer closeApp(app)

	if _, err := app.Session.Login(ctx); err != nil {
		return errors.Wrap("Cannot log in", err)
	}

	targets := *layouts
	if len(targets) == 0 {
		list, err := tools.ListLayouts(ctx, app.Session)
		if err != nil {
			return errors.Wrap("Cannot list layouts", err)
		}
		targets = list.Layouts
	}

	spinner := NewSpinner(NewProgressConfig(c.globals, c.stderr), fmt.Sprintf("Searching %d layouts", len(targets)))
	res, err := tools.SearchAcross(ctx, app.Session, text, targets, tools.SearchOptions{
		Mode:                 tools.SearchMode(*mode),
		IncludeCalculations:  *calcs,
		MaxFieldsPerLayout:   *maxFields,
		MaxRecordsPerLayout:  *maxRecords,
		IncludeMatchedFields: *matched,
		Logger:               app.Logger,
	})
	if spinner != nil {
		_ = spinner.Finish()
	}
	if err != nil {
		return errors.Wrap("Search failed", err)
	}

	if c.globals.JSON || *format != "" {
		return c.write(f, res)
	}
	c.printSearch(res)
	return nil
}

func (c *cli) printSearch(res *tools.SearchResult) {
	p := ui.NewPrinter(c.stdout)
	for _, lr := range res.Results {
		if len(lr.Records) == 0 {
			continue
		}
		p.Header(fmt.Sprintf("%s (%d found)", lr.Layout, lr.FoundCount))
		for _, hit := range lr.Records {
			p.Line("record %s", hit.RecordID)
			for _, name := range hitFields(hit) {
				p.Field(name, tools.Truncate(fmt.Sprint(hit.Fields[name]), valueWidth))
			}
		}
		p.Line("")
	}

	s := res.Summary
	if !c.globals.Quiet {
		for _, sk := range s.LayoutsSkipped {
			ui.NewPrinter(c.stderr).Warning("skipped layout %s: %s", sk.Layout, sk.Reason)
		}
	}
	p.Line("%s records in %s of %s layouts %s",
		ui.CountText(s.TotalRecordsFound), ui.CountText(len(s.LayoutsSearched)), ui.CountText(s.LayoutsRequested),
		ui.DimText(fmt.Sprintf("(mode %s)", s.Mode)))
}

// hitFields lists the matched fields of a hit when known, else all of its
// fields in name order.
func hitFields(hit tools.SearchHit) []string {
	if len(hit.MatchedFields) > 0 {
		return hit.MatchedFields
	}
	names := make([]string, 0, len(hit.Fields))
	for name := range hit.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
