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
	"os"

	"github.com/kraklabs/fmmcp/internal/errors"
	"github.com/kraklabs/fmmcp/internal/output"
	"github.com/kraklabs/fmmcp/internal/ui"
	"github.com/kraklabs/fmmcp/pkg/tools"
)

func (c *cli) runExport(ctx context.Context, args []string) error {
	fs := c.newCommandFlags("export", "export [--scripts] [--value-lists] [--relationships] [-o FILE]")
	format := fs.StringP("format", "f", "json", "Output format: json or yaml")
	scripts := fs.Bool("scripts", false, "Include script names")
	valueLists := fs.Bool("value-lists", false, "Include value lists")
	relationships := fs.Bool("relationships", false, "Include inferred relationships")
	outPath := fs.StringP("output", "o", "", "Write to FILE instead of stdout")
	if err := parseCommandFlags(fs, args); err != nil {
		return err
	}
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

	update, finish := layoutProgress(NewProgressConfig(c.globals, c.stderr))
	exp, err := tools.ExportMetadata(ctx, app.Session, tools.ExportOptions{
		IncludeScripts:       *scripts,
		IncludeValueLists:    *valueLists,
		IncludeRelationships: *relationships,
		Logger:               app.Logger,
		Progress:             update,
	})
	finish()
	if err != nil {
		return errors.Wrap("Metadata export failed", err)
	}

	if !c.globals.Quiet {
		p := ui.NewPrinter(c.stderr)
		for _, s := range exp.SkippedLayouts {
			p.Warning("skipped layout %s: %s", s.Layout, s.Reason)
		}
	}

	if *outPath == "" {
		return c.write(f, exp)
	}
	if err := writeFile(*outPath, f, exp); err != nil {
		return errors.NewInternalError("Cannot write export", err.Error(), "Check that the output directory exists and is writable", err)
	}
	if !c.globals.Quiet {
		ui.NewPrinter(c.stderr).Success("exported %s layouts to %s", ui.CountText(exp.LayoutCount), *outPath)
	}
	return nil
}

func writeFile(path string, f output.Format, v any) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return output.WriteTo(file, f, v)
}
