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

	"github.com/kraklabs/fmmcp/pkg/session"
)

// Runner runs a function with a live session. *session.Manager implements
// it; tests may substitute their own.
type Runner interface {
	RunAuthenticated(ctx context.Context, fn session.AuthenticatedFunc) error
}

var _ Runner = (*session.Manager)(nil)

// SkippedLayout records a layout left out of an aggregate result.
type SkippedLayout struct {
	Layout string `json:"layout"`
	Reason string `json:"reason"`
	Code   int    `json:"code,omitempty"`
}

// clamp returns def for non-positive v and caps v at ceiling.
func clamp(v, def, ceiling int) int {
	if v <= 0 {
		return def
	}
	if v > ceiling {
		return ceiling
	}
	return v
}

// Truncate shortens s to maxLen runes, marking the cut with "...". The cut
// never splits a multibyte character.
func Truncate(s string, maxLen int) string {
	if maxLen < 0 {
		maxLen = 0
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
