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

package fmtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kraklabs/fmmcp/pkg/fmclient"
)

// Credentials accepted by every fake server.
const (
	Username = "admin"
	Password = "s3cret-pass"
	Database = "Inventory"
)

// Failure is an injected error response.
type Failure struct {
	Status  int
	Code    int
	Message string
}

// Layout seeds one layout on the fake server.
type Layout struct {
	Name       string
	Folder     string
	Fields     []fmclient.FieldMeta
	Portals    fmclient.Portals
	ValueLists []fmclient.ValueList
	Records    []fmclient.Record

	MetadataFailure *Failure
	FindFailure     *Failure
}

// Request is one request received by the fake server.
type Request struct {
	Method string
	Path   string
	Body   []byte
	Auth   string
}

// Server is a fake Data API backed by httptest.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	layouts   []*Layout
	scripts   []fmclient.ScriptNode
	tokens    map[string]bool
	issued    int
	delay     time.Duration
	requests  []Request
	failLogin *Failure
	failOut   *Failure
	failList  *Failure
	failScr   *Failure
}

// New starts a fake server and closes it when the test finishes.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{tokens: make(map[string]bool)}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// NewTLS is New over HTTPS with a self-signed certificate. Clients must
// skip verification or use the embedded server's Client transport.
func NewTLS(t testing.TB) *Server {
	t.Helper()

	s := &Server{tokens: make(map[string]bool)}
	s.Server = httptest.NewTLSServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// Client returns a Data API client pointed at the fake server.
func (s *Server) Client(opts ...fmclient.Option) *fmclient.Client {
	return s.ClientWithConfig(fmclient.Config{}, opts...)
}

// ClientWithConfig fills in Server and Database on cfg.
func (s *Server) ClientWithConfig(cfg fmclient.Config, opts ...fmclient.Option) *fmclient.Client {
	cfg.Server = s.URL
	cfg.Database = Database
	return fmclient.New(cfg, opts...)
}

// AddLayout registers a layout. Layouts with a Folder are listed inside a
// folder node of that name.
func (s *Server) AddLayout(l Layout) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layouts = append(s.layouts, &l)
	return s
}

// SetScripts replaces the script tree.
func (s *Server) SetScripts(nodes ...fmclient.ScriptNode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts = nodes
}

// FailLogin makes POST /sessions fail.
func (s *Server) FailLogin(f *Failure) { s.set(func() { s.failLogin = f }) }

// FailLogout makes DELETE /sessions/{token} fail.
func (s *Server) FailLogout(f *Failure) { s.set(func() { s.failOut = f }) }

// FailListLayouts makes GET /layouts fail.
func (s *Server) FailListLayouts(f *Failure) { s.set(func() { s.failList = f }) }

// FailScripts makes GET /scripts fail.
func (s *Server) FailScripts(f *Failure) { s.set(func() { s.failScr = f }) }

// SetDelay stalls every response by d.
func (s *Server) SetDelay(d time.Duration) { s.set(func() { s.delay = d }) }

// ExpireTokens invalidates every issued token.
func (s *Server) ExpireTokens() {
	s.set(func() { s.tokens = make(map[string]bool) })
}

// ActiveTokens returns the number of tokens the server still honours.
func (s *Server) ActiveTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Count returns how many requests matched method and ended with suffix.
func (s *Server) Count(method, suffix string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasSuffix(r.Path, suffix) {
			n++
		}
	}
	return n
}

// FindBodies returns the decoded bodies of every find sent to layout.
func (s *Server) FindBodies(layout string) []fmclient.FindRequest {
	var out []fmclient.FindRequest
	for _, r := range s.Requests() {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.Path, "/layouts/"+layout+"/_find") {
			continue
		}
		var fr fmclient.FindRequest
		if err := json.Unmarshal(r.Body, &fr); err == nil {
			out = append(out, fr)
		}
	}
	return out
}

func (s *Server) set(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.capture)

	r.Route("/fmi/data/{version}/databases/{database}", func(r chi.Router) {
		r.Post("/sessions", s.login)
		r.Delete("/sessions/{token}", s.logout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)
			r.Get("/layouts", s.listLayouts)
			r.Get("/layouts/{layout}", s.layoutMetadata)
			r.Get("/layouts/{layout}/records", s.records)
			r.Get("/layouts/{layout}/records/{id}", s.record)
			r.Post("/layouts/{layout}/_find", s.find)
			r.Get("/scripts", s.listScripts)
		})
	})
	return r
}

func (s *Server) capture(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Body:   body,
			Auth:   r.Header.Get("Authorization"),
		})
		delay := s.delay
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		ok := s.tokens[token]
		s.mu.Unlock()
		if !ok {
			writeFailure(w, Failure{Status: http.StatusUnauthorized, Code: 952, Message: "Invalid FileMaker Data API token (*)"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	fail := s.failLogin
	s.mu.Unlock()
	if fail != nil {
		writeFailure(w, *fail)
		return
	}

	user, pass, ok := r.BasicAuth()
	if !ok || user != Username || pass != Password {
		writeFailure(w, Failure{Status: http.StatusUnauthorized, Code: 212, Message: "Invalid user account and/or password; please try again"})
		return
	}

	s.mu.Lock()
	s.issued++
	token := fmt.Sprintf("token-%d", s.issued)
	s.tokens[token] = true
	s.mu.Unlock()

	w.Header().Set("X-FM-Data-Access-Token", token)
	writeOK(w, map[string]any{"token": token})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	token := param(r, "token")

	s.mu.Lock()
	fail := s.failOut
	known := s.tokens[token]
	delete(s.tokens, token)
	s.mu.Unlock()

	if fail != nil {
		writeFailure(w, *fail)
		return
	}
	if !known {
		writeFailure(w, Failure{Status: http.StatusUnauthorized, Code: 952, Message: "Invalid FileMaker Data API token (*)"})
		return
	}
	writeOK(w, map[string]any{})
}

func (s *Server) listLayouts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList != nil {
		writeFailure(w, *s.failList)
		return
	}

	var nodes []fmclient.LayoutNode
	folders := map[string]int{}
	for _, l := range s.layouts {
		node := fmclient.LayoutNode{Name: l.Name, Table: l.Name}
		if l.Folder == "" {
			nodes = append(nodes, node)
			continue
		}
		i, ok := folders[l.Folder]
		if !ok {
			nodes = append(nodes, fmclient.LayoutNode{Name: l.Folder, IsFolder: true})
			i = len(nodes) - 1
			folders[l.Folder] = i
		}
		nodes[i].FolderLayoutNames = append(nodes[i].FolderLayoutNames, node)
	}
	writeOK(w, map[string]any{"layouts": nodes})
}

func (s *Server) listScripts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failScr != nil {
		writeFailure(w, *s.failScr)
		return
	}
	writeOK(w, map[string]any{"scripts": s.scripts})
}

func (s *Server) layoutMetadata(w http.ResponseWriter, r *http.Request) {
	l, ok := s.layout(w, r)
	if !ok {
		return
	}
	if l.MetadataFailure != nil {
		writeFailure(w, *l.MetadataFailure)
		return
	}
	writeOK(w, fmclient.LayoutMetadata{
		Fields:     l.Fields,
		Portals:    l.Portals,
		ValueLists: l.ValueLists,
	})
}

func (s *Server) records(w http.ResponseWriter, r *http.Request) {
	l, ok := s.layout(w, r)
	if !ok {
		return
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("_offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("_limit"))
	writeOK(w, page(l.Records, len(l.Records), offset, limit))
}

func (s *Server) record(w http.ResponseWriter, r *http.Request) {
	l, ok := s.layout(w, r)
	if !ok {
		return
	}
	id := param(r, "id")
	for _, rec := range l.Records {
		if rec.RecordID == id {
			writeOK(w, fmclient.RecordSet{
				DataInfo: fmclient.DataInfo{Layout: l.Name, TotalRecordCount: len(l.Records), FoundCount: 1, ReturnedCount: 1},
				Data:     []fmclient.Record{rec},
			})
			return
		}
	}
	writeFailure(w, Failure{Status: http.StatusInternalServerError, Code: 101, Message: "Record is missing"})
}

func (s *Server) find(w http.ResponseWriter, r *http.Request) {
	l, ok := s.layout(w, r)
	if !ok {
		return
	}
	if l.FindFailure != nil {
		writeFailure(w, *l.FindFailure)
		return
	}

	var req fmclient.FindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, Failure{Status: http.StatusBadRequest, Code: 960, Message: "Parameter is invalid"})
		return
	}
	if len(req.Query) == 0 {
		writeFailure(w, Failure{Status: http.StatusInternalServerError, Code: 400, Message: "Find criteria are empty"})
		return
	}

	var matched []fmclient.Record
	for _, rec := range l.Records {
		for _, q := range req.Query {
			if matchRequest(rec, q) {
				matched = append(matched, rec)
				break
			}
		}
	}
	if len(matched) == 0 {
		writeFailure(w, Failure{Status: http.StatusUnauthorized, Code: 401, Message: "No records match the request"})
		return
	}
	if len(req.Sort) > 0 {
		field := req.Sort[0].FieldName
		desc := strings.EqualFold(req.Sort[0].SortOrder, "descend")
		sort.SliceStable(matched, func(i, j int) bool {
			a, b := fmt.Sprint(matched[i].FieldData[field]), fmt.Sprint(matched[j].FieldData[field])
			if desc {
				return a > b
			}
			return a < b
		})
	}
	rs := page(matched, len(l.Records), req.Offset, req.Limit)
	rs.DataInfo.Layout = l.Name
	writeOK(w, rs)
}

// layout resolves the {layout} route parameter or writes error 105.
func (s *Server) layout(w http.ResponseWriter, r *http.Request) (*Layout, bool) {
	name := param(r, "layout")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.layouts {
		if l.Name == name {
			return l, true
		}
	}
	writeFailure(w, Failure{Status: http.StatusInternalServerError, Code: 105, Message: "Layout is missing"})
	return nil, false
}

func page(recs []fmclient.Record, total, offset, limit int) fmclient.RecordSet {
	if offset < 1 {
		offset = 1
	}
	if limit <= 0 {
		limit = 100
	}
	start := offset - 1
	if start > len(recs) {
		start = len(recs)
	}
	end := start + limit
	if end > len(recs) {
		end = len(recs)
	}
	data := recs[start:end]
	return fmclient.RecordSet{
		DataInfo: fmclient.DataInfo{
			Database:         Database,
			TotalRecordCount: total,
			FoundCount:       len(recs),
			ReturnedCount:    len(data),
		},
		Data: data,
	}
}

// matchRequest applies one find request: every criterion must match.
// Supported operators: "==x" exact, "*x*" contains, "x*" starts with,
// bare "x" equality. All comparisons ignore case.
func matchRequest(rec fmclient.Record, q map[string]string) bool {
	for field, crit := range q {
		if field == "omit" {
			continue
		}
		v, ok := rec.FieldData[field]
		if !ok {
			return false
		}
		val := strings.ToLower(fmt.Sprint(v))
		c := strings.ToLower(crit)
		switch {
		case strings.HasPrefix(c, "=="):
			if val != strings.TrimPrefix(c, "==") {
				return false
			}
		case strings.HasPrefix(c, "*") && strings.HasSuffix(c, "*") && len(c) >= 2:
			if !strings.Contains(val, strings.Trim(c, "*")) {
				return false
			}
		case strings.HasSuffix(c, "*"):
			if !strings.HasPrefix(val, strings.TrimSuffix(c, "*")) {
				return false
			}
		default:
			if val != c {
				return false
			}
		}
	}
	return true
}

func param(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func writeOK(w http.ResponseWriter, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"response": response,
		"messages": []map[string]string{{"code": "0", "message": "OK"}},
	})
}

func writeFailure(w http.ResponseWriter, f Failure) {
	status := f.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	messages := []map[string]string{}
	if f.Code != 0 {
		messages = append(messages, map[string]string{"code": strconv.Itoa(f.Code), "message": f.Message})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"response": map[string]any{},
		"messages": messages,
	})
}

// Field builds field metadata.
func Field(name string, result fmclient.FieldType, kind fmclient.FieldKind) fmclient.FieldMeta {
	return fmclient.FieldMeta{Name: name, Kind: kind, Result: result, DisplayType: "editText"}
}

// Text builds a stored text field.
func Text(name string) fmclient.FieldMeta {
	return Field(name, fmclient.FieldTypeText, fmclient.FieldKindNormal)
}

// Number builds a stored number field.
func Number(name string) fmclient.FieldMeta {
	return Field(name, fmclient.FieldTypeNumber, fmclient.FieldKindNormal)
}

// Row builds a record.
func Row(id string, data map[string]any) fmclient.Record {
	return fmclient.Record{RecordID: id, ModID: "0", FieldData: data}
}
