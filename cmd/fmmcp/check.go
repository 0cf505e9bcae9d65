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

	"github.com/kraklabs/fmmcp/internal/errors"
	"github.com/kraklabs/fmmcp/internal/output"
	"github.com/kraklabs/fmmcp/internal/ui"
	"github.com/kraklabs/fmmcp/pkg/tools"
)

// CheckResult is the --json output of check.
type CheckResult struct {
	Server       string   `json:"server"`
	Database     string   `json:"database"`
	APIVersion   string   `json:"apiVersion"`
	LoggedIn     bool     `json:"loggedIn"`
	SessionValid bool     `json:"sessionValid"`
	LayoutCount  int      `json:"layoutCount"`
	Warnings     []string `json:"warnings,omitempty"`
}

// runCheck logs in, lists layouts, validates the session and logs out.
func (c *cli) runCheck(ctx context.Context, args []string) error {
	fs := c.newCommandFlags("check", "check")
	if err := parseCommandFlags(fs, args); err != nil {
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
	layouts, err := tools.ListLayouts(ctx, app.Session)
	if err != nil {
		return errors.Wrap("Cannot list layouts", err)
	}
	v := app.Session.Validate(ctx)

	res := CheckResult{
		Server:       app.Config.Server,
		Database:     app.Config.Database,
		APIVersion:   app.Config.APIVersion,
		LoggedIn:     true,
		SessionValid: v.Valid,
		LayoutCount:  layouts.Count,
		Warnings:     app.Config.Warnings,
	}
	if c.globals.JSON {
		return output.JSONTo(c.stdout, res)
	}

	p := ui.NewPrinter(c.stdout)
	p.Header("Connection")
	p.Field("Server", res.Server)
	p.Field("Database", res.Database)
	p.Field("API version", res.APIVersion)
	p.Field("Layouts", ui.CountText(res.LayoutCount))
	for _, w := range res.Warnings {
		p.Warning("%s", w)
	}
	if !v.Valid {
		p.Error("session did not validate: %s", v.Message)
		return errors.NewNetworkError("Session validation failed", v.Message, "Run the check again", nil)
	}
	p.Success("logged in to %s", res.Database)
	return nil
}

// runLayouts prints the layout names, one per line, or the full listing as
// JSON or YAML.
func (c *cli) runLayouts(ctx context.Context, args []string) error {
	fs := c.newCommandFlags("layouts", "layouts [--format json|yaml]")
	format := fs.StringP("format", "f", "", "Output format: json or yaml (default: plain names)")
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
	list, err := tools.ListLayouts(ctx, app.Session)
	if err != nil {
		return errors.Wrap("Cannot list layouts", err)
	}

	if c.globals.JSON || *format != "" {
		return c.write(f, list)
	}
	p := ui.NewPrinter(c.stdout)
	for _, name := range list.Layouts {
		p.Line("%s", name)
	}
	return nil
}

// outputFormat resolves --format; --json forces JSON.
func (c *cli) outputFormat(format string) (output.Format, error) {
	if c.globals.JSON {
		return output.FormatJSON, nil
	}
	f, err := output.ParseFormat(format)
	if err != nil {
		return "", errors.NewInputError("Invalid --format", err.Error(), "Use --format json or --format yaml")
	}
	return f, nil
}

// write encodes v to stdout.
func (c *cli) write(f output.Format, v any) error {
	if err := output.WriteTo(c.stdout, f, v); err != nil {
		return errors.NewInternalError("Cannot write output", err.Error(), "", err)
	}
	return nil
}
