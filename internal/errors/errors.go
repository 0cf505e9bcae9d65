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

// Package errors turns failures into messages a terminal user can act on.
//
// A UserError carries three pieces of text (what failed, why, how to fix it)
// and the process exit code. Data API failures arrive as
// apierror.Descriptor values and are converted with FromDescriptor, which
// picks the exit code from the error category:
//
//	auth                         ExitAuth
//	permission                   ExitPermission
//	session, server, rate_limit  ExitNetwork
//	request                      ExitInput
//	not_found, result            ExitNotFound
//	internal                     ExitInternal
//
// Format renders colored output and honors NO_COLOR; ToJSON is used with
// --json.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/kraklabs/fmmcp/pkg/apierror"
)

// Exit codes.
const (
	ExitSuccess = 0

	// ExitConfig: missing or invalid configuration.
	ExitConfig = 1

	// ExitAuth: the server rejected the credentials.
	ExitAuth = 2

	// ExitNetwork: the server was unreachable, failed, or the session ended.
	ExitNetwork = 3

	// ExitInput: invalid arguments.
	ExitInput = 4

	// ExitPermission: the account lacks a privilege.
	ExitPermission = 5

	// ExitNotFound: a layout, record or result set was not found.
	ExitNotFound = 6

	// ExitInternal signals a bug.
	ExitInternal = 10
)

// UserError is an error with user-facing context.
type UserError struct {
	// Message says what went wrong.
	Message string

	// Cause says why, when known.
	Cause string

	// Fix suggests what to do next.
	Fix string

	ExitCode int

	// Err is the wrapped error, if any.
	Err error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Err
}

func newUserError(code int, msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: code, Err: err}
}

// NewConfigError reports a configuration problem.
func NewConfigError(msg, cause, fix string, err error) *UserError {
	return newUserError(ExitConfig, msg, cause, fix, err)
}

// NewNetworkError reports a failure reaching or using the server.
func NewNetworkError(msg, cause, fix string, err error) *UserError {
	return newUserError(ExitNetwork, msg, cause, fix, err)
}

// NewInputError reports invalid command-line input.
func NewInputError(msg, cause, fix string) *UserError {
	return newUserError(ExitInput, msg, cause, fix, nil)
}

// NewInternalError reports an unexpected condition.
func NewInternalError(msg, cause, fix string, err error) *UserError {
	return newUserError(ExitInternal, msg, cause, fix, err)
}

var categoryExit = map[apierror.Category]int{
	apierror.CategoryAuth:       ExitAuth,
	apierror.CategoryPermission: ExitPermission,
	apierror.CategorySession:    ExitNetwork,
	apierror.CategoryServer:     ExitNetwork,
	apierror.CategoryRateLimit:  ExitNetwork,
	apierror.CategoryRequest:    ExitInput,
	apierror.CategoryNotFound:   ExitNotFound,
	apierror.CategoryResult:     ExitNotFound,
	apierror.CategoryInternal:   ExitInternal,
}

var categoryFix = map[apierror.Category]string{
	apierror.CategoryAuth:       "Check FM_USERNAME and FM_PASSWORD, and that the account has the fmrest extended privilege",
	apierror.CategoryPermission: "Grant the account access to this layout or record in its privilege set",
	apierror.CategorySession:    "Run the command again to open a new session",
	apierror.CategoryServer:     "Check that FileMaker Server is running and the Data API is enabled, then retry",
	apierror.CategoryRateLimit:  "Wait a moment and retry",
	apierror.CategoryRequest:    "Check the command arguments",
	apierror.CategoryNotFound:   "Check the layout name with: fmmcp layouts",
	apierror.CategoryResult:     "Try a broader search",
	apierror.CategoryInternal:   "This is a bug. Please report it with the command you ran",
}

// ExitCodeFor returns the exit code for a Data API error category.
func ExitCodeFor(c apierror.Category) int {
	if code, ok := categoryExit[c]; ok {
		return code
	}
	return ExitInternal
}

// FromDescriptor wraps d. action names what was being attempted, e.g.
// "Cannot export metadata".
func FromDescriptor(action string, d *apierror.Descriptor) *UserError {
	cause := d.Message
	if d.Detail != "" {
		cause = d.Message + ": " + d.Detail
	}
	if d.RemoteCode != nil {
		cause = fmt.Sprintf("%s (FileMaker code %d)", cause, *d.RemoteCode)
	}
	return &UserError{
		Message:  action,
		Cause:    cause,
		Fix:      categoryFix[d.Category],
		ExitCode: ExitCodeFor(d.Category),
		Err:      d,
	}
}

// Wrap converts any error to a UserError. UserErrors pass through,
// descriptors go through FromDescriptor and everything else is internal.
func Wrap(action string, err error) *UserError {
	if err == nil {
		return nil
	}
	var ue *UserError
	if stderrors.As(err, &ue) {
		return ue
	}
	if d, ok := apierror.As(err); ok {
		return FromDescriptor(action, d)
	}
	return NewInternalError(action, err.Error(), categoryFix[apierror.CategoryInternal], err)
}

var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format renders the error for a terminal. Empty Cause and Fix lines are
// left out. NO_COLOR disables color like noColor does.
func (e *UserError) Format(noColor bool) string {
	original := color.NoColor
	defer func() { color.NoColor = original }()
	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Message)
	out.WriteString("\n")
	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}
	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}
	return out.String()
}

// ErrorJSON is the --json form of a UserError.
type ErrorJSON struct {
	Error    string `json:"error"`
	Cause    string `json:"cause,omitempty"`
	Fix      string `json:"fix,omitempty"`
	ExitCode int    `json:"exit_code"`
}

func (e *UserError) ToJSON() ErrorJSON {
	return ErrorJSON{Error: e.Message, Cause: e.Cause, Fix: e.Fix, ExitCode: e.ExitCode}
}

// Report writes err to w and returns the exit code to use. A nil error
// writes nothing and returns ExitSuccess.
func Report(w io.Writer, err error, jsonOutput bool) int {
	if err == nil {
		return ExitSuccess
	}
	ue := Wrap("Command failed", err)
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(ue.ToJSON())
	} else {
		fmt.Fprint(w, ue.Format(false))
	}
	return ue.ExitCode
}

// FatalError reports err on stderr and exits. It returns only for a nil
// error.
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}
	os.Exit(Report(os.Stderr, err, jsonOutput))
}
