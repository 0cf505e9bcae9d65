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

// Command fmmcp serves a FileMaker database to MCP clients and offers a few
// terminal commands over the same read-only tools.
//
// Usage:
//
//	fmmcp serve                       MCP server on stdin/stdout
//	fmmcp check                       Log in, list layouts, log out
//	fmmcp layouts                     List layouts
//	fmmcp export [--format yaml]      Export metadata of every layout
//	fmmcp search <text> --layouts A,B Search text across layouts
//	fmmcp version                     Print version information
//
// Connection settings come from --config, FM_* environment variables and
// global flags. FM_PASSWORD may be a secret reference such as
// ${VAULT:secret/data/fm#password}.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/kraklabs/fmmcp/internal/bootstrap"
	"github.com/kraklabs/fmmcp/internal/config"
	"github.com/kraklabs/fmmcp/internal/errors"
	"github.com/kraklabs/fmmcp/internal/ui"
)

// Set via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags are accepted before the command name.
type GlobalFlags struct {
	ConfigPath string
	JSON       bool
	NoColor    bool
	Quiet      bool
	Version    bool
}

// cli carries the process streams so commands can be tested.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	globals GlobalFlags
	flags   *pflag.FlagSet

	// appOptions is passed to bootstrap.New; tests set the HTTP client.
	appOptions bootstrap.Options
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

const usage = `fmmcp - read-only MCP server for the FileMaker Data API

Usage:
  fmmcp [global options] <command> [options]

Commands:
  serve      Serve MCP over stdin/stdout
  check      Verify the connection and credentials
  layouts    List layouts
  export     Export metadata of every layout
  search     Search text across layouts
  version    Show version information

Environment:
  FM_SERVER, FM_DATABASE, FM_USERNAME, FM_PASSWORD (required)
  FM_API_VERSION, FM_VERIFY_SSL, FM_SESSION_TIMEOUT, FM_REQUEST_TIMEOUT,
  FM_MAX_RETRIES, FM_LOG_LEVEL, FM_METRICS_ADDR

Global Options:
`

func newGlobalFlags(stderr io.Writer) (*pflag.FlagSet, *GlobalFlags) {
	g := &GlobalFlags{}
	fs := pflag.NewFlagSet("fmmcp", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(stderr)

	fs.StringVarP(&g.ConfigPath, "config", "c", "", "Path to a YAML configuration file")
	fs.BoolVar(&g.JSON, "json", false, "Machine-readable output (errors included)")
	fs.BoolVar(&g.NoColor, "no-color", false, "Disable colored output")
	fs.BoolVarP(&g.Quiet, "quiet", "q", false, "Hide progress output")
	fs.BoolVar(&g.Version, "version", false, "Show version and exit")

	fs.String("server", "", "Server URL, https only (FM_SERVER)")
	fs.String("database", "", "Hosted file name without extension (FM_DATABASE)")
	fs.String("username", "", "Account name (FM_USERNAME)")
	fs.String("api-version", config.DefaultAPIVersion, "Data API version segment (FM_API_VERSION)")
	fs.Bool("verify-ssl", true, "Verify the server TLS certificate (FM_VERIFY_SSL)")
	fs.Int("session-timeout", config.DefaultSessionTimeout, "Assumed session lifetime in seconds (FM_SESSION_TIMEOUT)")
	fs.Int("request-timeout", config.DefaultRequestTimeout, "Per-request timeout in seconds (FM_REQUEST_TIMEOUT)")
	fs.Int("max-retries", 0, "Retries for transient server errors (FM_MAX_RETRIES)")
	fs.String("log-level", config.DefaultLogLevel, "debug, info, warn or error (FM_LOG_LEVEL)")
	fs.String("metrics-addr", "", "Serve Prometheus metrics on this address during serve (FM_METRICS_ADDR)")

	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	return fs, g
}

// run executes one command line and returns the exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return (&cli{stdin: stdin, stdout: stdout, stderr: stderr}).run(ctx, args)
}

func (c *cli) run(ctx context.Context, args []string) int {
	fs, g := newGlobalFlags(c.stderr)
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return errors.ExitSuccess
		}
		return errors.ExitInput
	}
	c.flags, c.globals = fs, *g
	ui.InitColors(g.NoColor)

	if g.Version {
		c.printVersion()
		return errors.ExitSuccess
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return errors.ExitInput
	}

	var err error
	switch cmd, cmdArgs := rest[0], rest[1:]; cmd {
	case "serve":
		err = c.runServe(ctx, cmdArgs)
	case "check":
		err = c.runCheck(ctx, cmdArgs)
	case "layouts":
		err = c.runLayouts(ctx, cmdArgs)
	case "export":
		err = c.runExport(ctx, cmdArgs)
	case "search":
		err = c.runSearch(ctx, cmdArgs)
	case "version":
		c.printVersion()
	case "help":
		fs.Usage()
	default:
		err = errors.NewInputError(
			fmt.Sprintf("Unknown command: %s", cmd),
			"",
			"Run 'fmmcp help' to list commands",
		)
	}
	if err == errHelp {
		return errors.ExitSuccess
	}
	return errors.Report(c.stderr, err, c.globals.JSON)
}

func (c *cli) printVersion() {
	fmt.Fprintf(c.stdout, "fmmcp version %s\n", version)
	fmt.Fprintf(c.stdout, "commit: %s\n", commit)
	fmt.Fprintf(c.stdout, "built: %s\n", date)
}

// loadApp loads the configuration and assembles the runtime.
func (c *cli) loadApp() (*bootstrap.App, error) {
	cfg, err := config.Load(c.globals.ConfigPath, c.flags)
	if err != nil {
		return nil, errors.NewConfigError(
			"Cannot load configuration",
			err.Error(),
			"Set FM_SERVER, FM_DATABASE, FM_USERNAME and FM_PASSWORD, or pass --config",
			err,
		)
	}
	opts := c.appOptions
	opts.Version = version
	app, err := bootstrap.New(cfg, opts)
	if err != nil {
		return nil, errors.NewConfigError("Cannot start", err.Error(), "Check --log-level", err)
	}
	return app, nil
}

// newCommandFlags returns a flag set for a command that reports errors on
// stderr.
func (c *cli) newCommandFlags(name, synopsis string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() {
		fmt.Fprintf(c.stderr, "Usage: fmmcp %s\n\nOptions:\n", synopsis)
		fs.PrintDefaults()
	}
	return fs
}

// parseCommandFlags parses args and converts a parse failure into an input
// error. Help returns errHelp.
func parseCommandFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return errHelp
		}
		return errors.NewInputError("Invalid arguments", err.Error(), fmt.Sprintf("Run 'fmmcp %s --help'", fs.Name()))
	}
	return nil
}

// errHelp ends a command after usage was printed.
var errHelp = &errors.UserError{Message: "help requested", ExitCode: errors.ExitSuccess}
