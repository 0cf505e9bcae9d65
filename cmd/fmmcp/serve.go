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
	stderrors "errors"
	"time"

	"go.uber.org/zap"

	"github.com/kraklabs/fmmcp/internal/bootstrap"
	"github.com/kraklabs/fmmcp/internal/errors"
)

const shutdownTimeout = 5 * time.Second

// runServe serves MCP on the process streams until stdin closes or a signal
// arrives.
func (c *cli) runServe(ctx context.Context, args []string) error {
	fs := c.newCommandFlags("serve", "serve")
	if err := parseCommandFlags(fs, args); err != nil {
		return err
	}

	app, err := c.loadApp()
	if err != nil {
		return err
	}
	defer closeApp(app)

	if addr := app.Config.MetricsAddr; addr != "" {
		go func() {
			if err := app.ServeMetrics(ctx, addr); err != nil {
				app.Logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	app.Logger.Info("serving MCP on stdio", zap.Int("tools", len(app.Server.Tools())))
	err = app.Server.Serve(ctx, c.stdin, c.stdout)
	if err != nil && !stderrors.Is(err, context.Canceled) {
		return errors.NewInternalError("MCP server stopped", err.Error(), "", err)
	}
	app.Logger.Info("stdin closed, shutting down")
	return nil
}

// closeApp logs out with a fresh deadline; the command context may already
// be cancelled.
func closeApp(app *bootstrap.App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	app.Close(ctx)
}
