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
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/kraklabs/fmmcp/internal/ui"
)

// ProgressConfig decides whether progress is drawn.
type ProgressConfig struct {
	// Enabled is false with --quiet or --json, or when Writer is not a
	// terminal.
	Enabled bool

	Writer  io.Writer
	NoColor bool
}

// NewProgressConfig derives a ProgressConfig from the global flags.
func NewProgressConfig(globals GlobalFlags, w io.Writer) ProgressConfig {
	f, isFile := w.(*os.File)
	return ProgressConfig{
		Enabled: !globals.Quiet && !globals.JSON && isFile && ui.IsTerminal(f),
		Writer:  w,
		NoColor: globals.NoColor,
	}
}

// NewProgressBar returns nil when progress is disabled.
func NewProgressBar(cfg ProgressConfig, total int64, description string) *progressbar.ProgressBar {
	if !cfg.Enabled {
		return nil
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(cfg.Writer),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(!cfg.NoColor),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// NewSpinner returns an indeterminate spinner, or nil when progress is
// disabled.
func NewSpinner(cfg ProgressConfig, description string) *progressbar.ProgressBar {
	if !cfg.Enabled {
		return nil
	}
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(cfg.Writer),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionEnableColorCodes(!cfg.NoColor),
	)
}

// layoutProgress adapts a bar to the per-layout callback of the metadata
// export. The bar is created on the first call, when the total is known.
// The returned finish function clears it.
func layoutProgress(cfg ProgressConfig) (update func(done, total int, layout string), finish func()) {
	var bar *progressbar.ProgressBar
	update = func(done, total int, layout string) {
		if !cfg.Enabled {
			return
		}
		if bar == nil {
			bar = NewProgressBar(cfg, int64(total), "Exporting layouts")
		}
		bar.Describe(layout)
		_ = bar.Set(done)
	}
	finish = func() {
		if bar != nil {
			_ = bar.Finish()
		}
	}
	return update, finish
}
