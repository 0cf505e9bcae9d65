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

// Package ui prints human-readable command output.
//
// Colors follow fatih/color: they are off when NO_COLOR is set, when
// --no-color is given, or when the destination is not a terminal.
//   - Red: failures
//   - Yellow: warnings
//   - Green: success
//   - Cyan: counts and neutral information
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	green  = color.New(color.FgGreen)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
	dim    = color.New(color.Faint)
)

// InitColors sets the global color switch. Colors stay off when noColor is
// set or stdout is not a terminal.
func InitColors(noColor bool) {
	color.NoColor = noColor || os.Getenv("NO_COLOR") != "" || !IsTerminal(os.Stdout)
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printer writes decorated lines to one destination.
type Printer struct {
	w io.Writer
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Success prints "✓ msg" in green.
func (p *Printer) Success(format string, args ...any) {
	_, _ = green.Fprintf(p.w, "✓ "+format+"\n", args...)
}

// Warning prints "⚠ msg" in yellow.
func (p *Printer) Warning(format string, args ...any) {
	_, _ = yellow.Fprintf(p.w, "⚠ "+format+"\n", args...)
}

// Error prints "✗ msg" in red.
func (p *Printer) Error(format string, args ...any) {
	_, _ = red.Fprintf(p.w, "✗ "+format+"\n", args...)
}

// Header prints text in bold, underlined with '='.
func (p *Printer) Header(text string) {
	_, _ = bold.Fprintln(p.w, text)
	fmt.Fprintln(p.w, strings.Repeat("=", len([]rune(text))))
}

// Field prints an indented "label: value" line with a bold label.
func (p *Printer) Field(label string, value any) {
	fmt.Fprintf(p.w, "  %s %v\n", bold.Sprint(label+":"), value)
}

// Line prints a plain line.
func (p *Printer) Line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

// DimText returns text in faint style.
func DimText(text string) string {
	return dim.Sprint(text)
}

// CountText returns a count in cyan.
func CountText(count int) string {
	return cyan.Sprint(count)
}
