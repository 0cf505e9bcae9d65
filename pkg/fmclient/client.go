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

// Package fmclient is the HTTP transport for the FileMaker Data API.
//
// Every call is database scoped, carries its own deadline and, on failure,
// returns an *apierror.Descriptor resolved from the HTTP status and the Data
// API message code found in the error envelope.
package fmclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"

	"github.com/kraklabs/fmmcp/pkg/apierror"
)

const (
	// APINamespace is the fixed path segment in front of every Data API route.
	APINamespace = "fmi/data"

	// DefaultVersion selects the newest API version the server supports.
	DefaultVersion = "vLatest"

	// DefaultTimeout bounds a single request, including reading the body.
	DefaultTimeout = 30 * time.Second

	// tokenHeader is set by the server on a successful login.
	tokenHeader = "X-FM-Data-Access-Token"

	maxResponseBytes = 32 << 20
)

// Config describes how to reach one hosted database.
type Config struct {
	// Server is the scheme and host, e.g. https://fms.example.com
	Server string

	// Database is the hosted file name without extension.
	Database string

	// Version is the API version segment (default: vLatest).
	Version string

	// Timeout applies to every request independently (default: 30s).
	Timeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// MaxRetries re-attempts retryable failures other than an expired
	// session. Zero disables retries.
	MaxRetries int
}

// Message is one entry of the Data API messages array.
type Message struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is an unwrapped success envelope.
type Result struct {
	Response json.RawMessage
	Messages []Message
	Header   http.Header
}

type envelope struct {
	Response json.RawMessage `json:"response"`
	Messages []Message       `json:"messages"`
}

// Client issues Data API requests. It holds no session state; tokens are
// passed per call by the session manager.
type Client struct {
	cfg        Config
	baseURL    string
	host       string
	HTTPClient *http.Client
	logger     *zap.Logger
	metrics    *Metrics
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records request counts and latencies.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithHTTPClient replaces the default pooled HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.HTTPClient = h }
}

// New creates a Client for cfg.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := cleanhttp.DefaultPooledTransport()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via FM_VERIFY_SSL=false
	}

	server := strings.TrimRight(cfg.Server, "/")
	host := server
	if u, err := url.Parse(server); err == nil && u.Host != "" {
		host = u.Host
	}

	c := &Client{
		cfg:        cfg,
		baseURL:    fmt.Sprintf("%s/%s/%s/databases/%s", server, APINamespace, cfg.Version, url.PathEscape(cfg.Database)),
		host:       host,
		HTTPClient: &http.Client{Transport: transport},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Database returns the configured database name.
func (c *Client) Database() string { return c.cfg.Database }

// Server returns the configured server address.
func (c *Client) Server() string { return c.cfg.Server }

// URL returns the full request target for a database-scoped path.
func (c *Client) URL(path string) string {
	return c.baseURL + path
}

// Call performs an authenticated request. token may be empty for routes
// that do not require one. body, when non-nil, is sent as JSON.
func (c *Client) Call(ctx context.Context, method, path, token string, body any) (*Result, error) {
	return c.do(ctx, method, path, body, func(req *http.Request) {
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	})
}

// Login opens a Data API session with basic credentials and returns the
// session token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	res, err := c.do(ctx, http.MethodPost, "/sessions", struct{}{}, func(req *http.Request) {
		req.SetBasicAuth(username, password)
	})
	if err != nil {
		return "", err
	}

	var body struct {
		Token string `json:"token"`
	}
	if len(res.Response) > 0 {
		_ = json.Unmarshal(res.Response, &body)
	}
	if body.Token == "" {
		body.Token = res.Header.Get(tokenHeader)
	}
	if body.Token == "" {
		return "", apierror.New(apierror.InvalidResponse, "login response carried no session token")
	}
	return body.Token, nil
}

// Logout closes the session identified by token.
func (c *Client) Logout(ctx context.Context, token string) error {
	_, err := c.Call(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(token), "", nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body any, auth func(*http.Request)) (*Result, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, apierror.InvalidInput(fmt.Sprintf("encode request body: %v", err))
		}
	}

	attempt := func() (*Result, error) {
		res, err := c.once(ctx, method, path, payload, auth)
		if err != nil && !shouldRetry(err) {
			return nil, backoff.Permanent(err)
		}
		return res, err
	}

	if c.cfg.MaxRetries <= 0 {
		return c.once(ctx, method, path, payload, auth)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.cfg.MaxRetries)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("retrying data api request",
			zap.String("method", method),
			zap.String("path", logPath(path)),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	res, err := backoff.RetryNotifyWithData(attempt, policy, notify)
	if err != nil {
		if _, ok := apierror.As(err); !ok {
			return nil, c.transportFailure(ctx, err)
		}
		return nil, err
	}
	return res, nil
}

// shouldRetry allows a retry only for transient failures. An expired session
// is retryable for the caller after a new login, never with the same token.
func shouldRetry(err error) bool {
	d, ok := apierror.As(err)
	if !ok {
		return false
	}
	return d.Retryable && d.Code != apierror.SessionExpired
}

func (c *Client) once(parent context.Context, method, path string, payload []byte, auth func(*http.Request)) (*Result, error) {
	ctx, cancel := context.WithTimeout(parent, c.cfg.Timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), reader)
	if err != nil {
		return nil, apierror.InvalidInput(fmt.Sprintf("build request: %v", err))
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	auth(req)

	requestID := uuid.NewString()
	start := time.Now()

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		d := c.transportFailure(ctx, err)
		c.metrics.observe(method, time.Since(start), d)
		c.logger.Debug("data api request failed",
			zap.String("request_id", requestID),
			zap.String("method", method),
			zap.String("path", logPath(path)),
			zap.Int("code", int(d.Code)),
		)
		return nil, d
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		d := c.transportFailure(ctx, err)
		c.metrics.observe(method, time.Since(start), d)
		return nil, d
	}

	c.logger.Debug("data api request",
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("path", logPath(path)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code, text := extractMessageCode(raw)
		d := apierror.Resolve(resp.StatusCode, code)
		if text != "" {
			d.Detail = text
		}
		c.metrics.observe(method, time.Since(start), d)
		return nil, d
	}

	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			d := apierror.New(apierror.InvalidResponse, fmt.Sprintf("decode response envelope: %v", err))
			c.metrics.observe(method, time.Since(start), d)
			return nil, d
		}
	}

	c.metrics.observe(method, time.Since(start), nil)
	return &Result{Response: env.Response, Messages: env.Messages, Header: resp.Header}, nil
}

// transportFailure classifies a failure that produced no HTTP response. The
// returned message names only the host; request URLs and credentials are
// never echoed.
func (c *Client) transportFailure(ctx context.Context, err error) *apierror.Descriptor {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return apierror.Timeout(fmt.Sprintf("no response from %s within %s", c.host, c.cfg.Timeout))
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apierror.Timeout(fmt.Sprintf("no response from %s within %s", c.host, c.cfg.Timeout))
	}
	if errors.Is(err, context.Canceled) {
		return apierror.New(apierror.Cancelled, "")
	}
	return apierror.Unavailable(fmt.Sprintf("unable to reach %s", c.host))
}

// extractMessageCode returns the first non-zero message code in an error
// envelope together with its text.
func extractMessageCode(raw []byte) (*int, string) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ""
	}
	for _, m := range env.Messages {
		if m.Code == "" || m.Code == "0" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(m.Code))
		if err != nil {
			continue
		}
		return &n, m.Message
	}
	return nil, ""
}

// logPath hides the session token embedded in logout routes.
func logPath(path string) string {
	if strings.HasPrefix(path, "/sessions/") {
		return "/sessions/{token}"
	}
	return path
}
