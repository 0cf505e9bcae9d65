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

// Package bootstrap assembles the runtime from a loaded configuration:
// logger, Data API client, session manager, metrics registry and the MCP
// tool server.
//
//	app, err := bootstrap.New(cfg, bootstrap.Options{Version: version})
//	if err != nil {
//	    return err
//	}
//	defer app.Close(context.Background())
//
// Close logs out an open session so the server does not keep a seat
// occupied until the session times out.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kraklabs/fmmcp/internal/config"
	"github.com/kraklabs/fmmcp/internal/logging"
	"github.com/kraklabs/fmmcp/internal/mcp"
	"github.com/kraklabs/fmmcp/pkg/fmclient"
	"github.com/kraklabs/fmmcp/pkg/session"
)

// ServerName is reported to MCP clients.
const ServerName = "fmmcp"

// Options tune New.
type Options struct {
	// Version is reported to MCP clients.
	Version string

	// Logger overrides the logger built from the configured level.
	Logger *zap.Logger

	// HTTPClient overrides the pooled Data API client, e.g. in tests.
	HTTPClient *http.Client
}

// App is the assembled runtime.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Client   *fmclient.Client
	Session  *session.Manager
	Server   *mcp.Server
}

// New builds an App. Configuration warnings are logged.
func New(cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
	}
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	clientOpts := []fmclient.Option{
		fmclient.WithLogger(logger.Named("dataapi")),
		fmclient.WithMetrics(fmclient.NewMetrics(reg)),
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, fmclient.WithHTTPClient(opts.HTTPClient))
	}
	client := fmclient.New(cfg.ClientConfig(), clientOpts...)

	mgr := session.NewManager(client, cfg.Credentials(), session.Options{
		Timeout: cfg.SessionTimeoutDuration(),
		Logger:  logger.Named("session"),
	})

	version := opts.Version
	if version == "" {
		version = "dev"
	}
	srv := mcp.NewServer(ServerName, version,
		mcp.WithLogger(logger.Named("mcp")),
		mcp.WithMetrics(mcp.NewMetrics(reg)),
		mcp.WithInstructions(mcp.Instructions),
	)
	if err := srv.Register(mcp.FileMakerTools(mgr, logger.Named("tools"))...); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	logger.Info("configured",
		zap.String("server", cfg.Server),
		zap.String("database", cfg.Database),
		zap.String("api_version", cfg.APIVersion),
		zap.Int("max_retries", cfg.MaxRetries))

	return &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Client:   client,
		Session:  mgr,
		Server:   srv,
	}, nil
}

// MetricsHandler exposes the registry at /metrics and a liveness probe at
// /healthz.
func (a *App) MetricsHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if a.Session.Active() {
			_, _ = w.Write([]byte(`{"status":"ok","session":"active"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok","session":"none"}`))
	})
	return r
}

// ServeMetrics serves MetricsHandler on addr until ctx is done.
func (a *App) ServeMetrics(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	srv := &http.Server{
		Handler:           a.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.Logger.Info("metrics listening", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close ends an open session and flushes the logger.
func (a *App) Close(ctx context.Context) {
	if a.Session.Active() {
		if err := a.Session.Logout(ctx); err != nil {
			a.Logger.Warn("logout on shutdown failed", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}
