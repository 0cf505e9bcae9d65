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

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.lsp.dev/jsonrpc2"
	"go.uber.org/zap"

	"github.com/kraklabs/fmmcp/pkg/apierror"
)

// ProtocolVersion is the newest MCP revision the server speaks.
const ProtocolVersion = "2025-06-18"

var supportedVersions = map[string]bool{
	"2025-06-18": true,
	"2025-03-26": true,
	"2024-11-05": true,
}

// Handler executes a tool. args is the raw "arguments" object, never nil.
// The returned value is encoded as JSON into the text content of the result.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Tool is a registered tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
	Handler     Handler        `json:"-"`
}

// Content is one block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult is the result of tools/call.
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`
}

// NewResult creates a successful tool result.
func NewResult(text string) *ToolResult {
	return &ToolResult{Content: []Content{{Type: "text", Text: text}}}
}

// NewError creates an error tool result.
func NewError(text string) *ToolResult {
	return &ToolResult{Content: []Content{{Type: "text", Text: text}}, IsError: true}
}

// ErrorBody is the JSON text of a failed tool call.
type ErrorBody struct {
	Success bool                 `json:"success"`
	Error   *apierror.Descriptor `json:"error"`
}

// Server dispatches MCP requests to registered tools.
type Server struct {
	name         string
	version      string
	instructions string
	logger       *zap.Logger
	metrics      *Metrics

	tools map[string]Tool
	order []string

	writeMu sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for protocol and tool diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records tool call counts and latencies.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithInstructions sets the instructions returned by initialize.
func WithInstructions(text string) Option {
	return func(s *Server) { s.instructions = text }
}

// NewServer creates a server that reports name and version to clients.
func NewServer(name, version string, opts ...Option) *Server {
	s := &Server{
		name:    name,
		version: version,
		logger:  zap.NewNop(),
		tools:   make(map[string]Tool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds tools. Names must be unique and handlers non-nil.
func (s *Server) Register(tools ...Tool) error {
	for _, t := range tools {
		if t.Name == "" || t.Handler == nil {
			return fmt.Errorf("tool %q: name and handler are required", t.Name)
		}
		if _, dup := s.tools[t.Name]; dup {
			return fmt.Errorf("tool %q registered twice", t.Name)
		}
		if t.InputSchema == nil {
			t.InputSchema = jsonSchema(map[string]any{}, nil)
		}
		s.tools[t.Name] = t
		s.order = append(s.order, t.Name)
	}
	return nil
}

// Tools returns the registered tools in registration order.
func (s *Server) Tools() []Tool {
	out := make([]Tool, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tools[name])
	}
	return out
}

// Serve reads requests from r and writes responses to w until r is
// exhausted or ctx is cancelled. Blank lines are ignored.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := bufio.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			if out := s.HandleMessage(ctx, line); out != nil {
				if werr := s.write(w, out); werr != nil {
					return fmt.Errorf("writing response: %w", werr)
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading request: %w", err)
		}
	}
}

func (s *Server) write(w io.Writer, msg []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := w.Write(msg); err != nil {
		return err
	}
	_, err := w.Write([]byte{'\n'})
	return err
}

// HandleMessage processes one encoded JSON-RPC message and returns the
// encoded response, or nil when none is due.
func (s *Server) HandleMessage(ctx context.Context, data []byte) []byte {
	data = bytes.TrimSpace(data)
	msg, err := jsonrpc2.DecodeMessage(data)
	if err != nil {
		s.logger.Warn("undecodable message", zap.Error(err))
		if !json.Valid(data) {
			return errorWithoutID(jsonrpc2.ParseError, "parse error: "+err.Error())
		}
		return errorWithoutID(jsonrpc2.InvalidRequest, "invalid request: "+err.Error())
	}

	switch m := msg.(type) {
	case *jsonrpc2.Call:
		result, rpcErr := s.handleCall(ctx, m.Method(), m.Params())
		var resp *jsonrpc2.Response
		if rpcErr != nil {
			resp, err = jsonrpc2.NewResponse(m.ID(), nil, rpcErr)
		} else {
			resp, err = jsonrpc2.NewResponse(m.ID(), result, nil)
		}
		if err != nil {
			resp, _ = jsonrpc2.NewResponse(m.ID(), nil, &jsonrpc2.Error{Code: jsonrpc2.InternalError, Message: err.Error()})
		}
		out, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error("encoding response", zap.String("method", m.Method()), zap.Error(err))
			return nil
		}
		return out

	case *jsonrpc2.Notification:
		s.handleNotification(m.Method())
		return nil

	default:
		// Responses to server-initiated requests; none are sent.
		s.logger.Debug("ignoring unexpected response message")
		return nil
	}
}

// errorWithoutID is written by hand: the request id is unknown, so it is null.
func errorWithoutID(code jsonrpc2.Code, message string) []byte {
	out, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      nil,
		"error":   map[string]any{"code": code, "message": message},
	})
	return out
}

func (s *Server) handleNotification(method string) {
	switch method {
	case "notifications/initialized":
		s.logger.Info("client initialized")
	case "notifications/cancelled":
		s.logger.Debug("cancellation notice ignored; requests run to completion")
	default:
		s.logger.Debug("ignoring notification", zap.String("method", method))
	}
}

func (s *Server) handleCall(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case "initialize":
		return s.initialize(params), nil
	case "ping":
		return map[string]any{}, nil
	case "tools/list":
		return map[string]any{"tools": s.Tools()}, nil
	case "tools/call":
		return s.callTool(ctx, params)
	default:
		return nil, &jsonrpc2.Error{Code: jsonrpc2.MethodNotFound, Message: "method not found: " + method}
	}
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

func (s *Server) initialize(params json.RawMessage) map[string]any {
	var p initializeParams
	if len(params) > 0 {
		_ = json.Unmarshal(params, &p)
	}

	version := ProtocolVersion
	if supportedVersions[p.ProtocolVersion] {
		version = p.ProtocolVersion
	}
	s.logger.Info("initialize",
		zap.String("client", p.ClientInfo.Name),
		zap.String("client_version", p.ClientInfo.Version),
		zap.String("protocol", version))

	result := map[string]any{
		"protocolVersion": version,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]any{"name": s.name, "version": s.version},
	}
	if s.instructions != "" {
		result["instructions"] = s.instructions
	}
	return result
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var p callParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.InvalidParams, Message: "invalid tools/call params: " + err.Error()}
	}
	tool, ok := s.tools[p.Name]
	if !ok {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.InvalidParams, Message: "unknown tool: " + p.Name}
	}
	args := p.Arguments
	if len(bytes.TrimSpace(args)) == 0 || bytes.Equal(bytes.TrimSpace(args), []byte("null")) {
		args = json.RawMessage("{}")
	}

	start := time.Now()
	value, err := tool.Handler(ctx, args)
	elapsed := time.Since(start)

	if err != nil {
		d := describe(err)
		s.metrics.observe(tool.Name, elapsed, d)
		s.logger.Warn("tool failed",
			zap.String("tool", tool.Name),
			zap.Any("arguments", json.RawMessage(args)),
			zap.Int("code", int(d.Code)),
			zap.String("category", string(d.Category)),
			zap.Duration("elapsed", elapsed))
		return NewError(encode(ErrorBody{Success: false, Error: d})), nil
	}

	s.metrics.observe(tool.Name, elapsed, nil)
	s.logger.Debug("tool done", zap.String("tool", tool.Name), zap.Duration("elapsed", elapsed))
	return NewResult(encode(value)), nil
}

// describe converts any handler error into a Descriptor.
func describe(err error) *apierror.Descriptor {
	if d, ok := apierror.As(err); ok {
		return d
	}
	if errors.Is(err, context.Canceled) {
		return apierror.New(apierror.Cancelled, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apierror.Timeout(err.Error())
	}
	return apierror.Internal(err.Error())
}

func encode(v any) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		out, _ = json.Marshal(ErrorBody{Error: apierror.Internal("encoding result: " + err.Error())})
	}
	return string(out)
}
