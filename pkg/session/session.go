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

// Package session owns the single Data API session of a running server.
//
// A Manager is either Absent (no token) or Active (token plus creation
// time). Login moves it to Active, Logout and any call that fails with an
// expired session move it back to Absent. Everything else reads the state
// without changing it.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kraklabs/fmmcp/pkg/apierror"
	"github.com/kraklabs/fmmcp/pkg/fmclient"
)

// DefaultTimeout is the client-side session lifetime. It is kept below the
// server's own 15 minute idle timeout so expiry is noticed locally first.
const DefaultTimeout = 840 * time.Second

// ExpiringSoonBuffer is the margin used by Info.ExpiringSoon.
const ExpiringSoonBuffer = 60 * time.Second

// Credentials are the account used for every login.
type Credentials struct {
	Username string
	Password string
}

// Options tune a Manager. Zero values select defaults.
type Options struct {
	// Timeout is the assumed session lifetime (default: DefaultTimeout).
	Timeout time.Duration

	// Logger receives teardown and expiry diagnostics.
	Logger *zap.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Info is a snapshot of the session state.
type Info struct {
	Active           bool      `json:"active"`
	Database         string    `json:"database"`
	Server           string    `json:"server"`
	CreatedAt        time.Time `json:"createdAt,omitempty"`
	AgeSeconds       int64     `json:"ageSeconds"`
	TimeoutSeconds   int64     `json:"timeoutSeconds"`
	RemainingSeconds int64     `json:"remainingSeconds"`
	ExpiringSoon     bool      `json:"expiringSoon"`
}

// ValidationResult is the outcome of Validate.
// SessionAgeSeconds is set only for a valid session, and is then always
// present, zero included.
type ValidationResult struct {
	Valid             bool   `json:"valid"`
	SessionAgeSeconds *int64 `json:"sessionAgeSeconds,omitempty"`
	Message           string `json:"message,omitempty"`
}

// AuthenticatedFunc runs with the live client and token.
type AuthenticatedFunc func(ctx context.Context, client *fmclient.Client, token string) error

// Manager holds at most one Data API session.
type Manager struct {
	client  *fmclient.Client
	creds   Credentials
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	token     string
	createdAt time.Time
}

// NewManager creates a Manager in the Absent state.
func NewManager(client *fmclient.Client, creds Credentials, opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		client:  client,
		creds:   creds,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		now:     opts.Now,
	}
}

// Client returns the underlying transport client.
func (m *Manager) Client() *fmclient.Client { return m.client }

// Login opens a new session. An existing session is closed first; a failure
// to close it is logged and does not stop the new login.
func (m *Manager) Login(ctx context.Context) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" {
		if err := m.client.Logout(ctx, m.token); err != nil && !apierror.IsSessionExpired(err) {
			m.logger.Warn("closing previous session failed", zap.Error(err))
		}
		m.clear()
	}

	token, err := m.client.Login(ctx, m.creds.Username, m.creds.Password)
	if err != nil {
		return m.infoLocked(), err
	}
	m.token = token
	m.createdAt = m.now()
	m.logger.Info("session opened", zap.String("database", m.client.Database()))
	return m.infoLocked(), nil
}

// Logout closes the session. Without a session it fails with NoSession and
// sends nothing. A session the server already expired counts as closed.
// Local state is cleared whatever the server answers.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == "" {
		return apierror.NoActiveSession()
	}
	token := m.token
	m.clear()

	if err := m.client.Logout(ctx, token); err != nil {
		if apierror.IsSessionExpired(err) {
			m.logger.Debug("session already expired on logout")
			return nil
		}
		return err
	}
	m.logger.Info("session closed", zap.String("database", m.client.Database()))
	return nil
}

// Validate probes the session with a layout listing. It never returns an
// error: failures are reported through the result. An expired session is
// cleared; any other failure leaves the state alone.
func (m *Manager) Validate(ctx context.Context) ValidationResult {
	token, _, ok := m.snapshot()
	if !ok {
		return ValidationResult{Valid: false, Message: "no active session"}
	}

	if _, err := m.client.ListLayouts(ctx, token); err != nil {
		if apierror.IsSessionExpired(err) {
			m.expire(token)
			return ValidationResult{Valid: false, Message: "session expired"}
		}
		return ValidationResult{Valid: false, Message: err.Error()}
	}
	age := int64(m.Age().Seconds())
	return ValidationResult{Valid: true, SessionAgeSeconds: &age}
}

// RunAuthenticated calls fn with the current token. Without a session it
// fails with NoSession. Errors from fn are returned unchanged; an expired
// session error also clears the state, unless a new login replaced the
// token in the meantime.
func (m *Manager) RunAuthenticated(ctx context.Context, fn AuthenticatedFunc) error {
	token, _, ok := m.snapshot()
	if !ok {
		return apierror.NoActiveSession()
	}

	err := fn(ctx, m.client, token)
	if err != nil && apierror.IsSessionExpired(err) {
		m.expire(token)
	}
	return err
}

// Active reports whether a session is open.
func (m *Manager) Active() bool {
	_, _, ok := m.snapshot()
	return ok
}

// Age is the time since login, or zero without a session.
func (m *Manager) Age() time.Duration {
	_, created, ok := m.snapshot()
	if !ok {
		return 0
	}
	return m.now().Sub(created)
}

// IsExpiringSoon reports whether the session has less than buffer left
// before the configured timeout. It is advisory and never changes state.
func (m *Manager) IsExpiringSoon(buffer time.Duration) bool {
	if !m.Active() {
		return false
	}
	return m.Age()+buffer >= m.timeout
}

// Info returns a snapshot of the session state.
func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.infoLocked()
}

func (m *Manager) infoLocked() Info {
	info := Info{
		Active:         m.token != "",
		Database:       m.client.Database(),
		Server:         m.client.Server(),
		TimeoutSeconds: int64(m.timeout.Seconds()),
	}
	if !info.Active {
		return info
	}
	age := m.now().Sub(m.createdAt)
	remaining := m.timeout - age
	if remaining < 0 {
		remaining = 0
	}
	info.CreatedAt = m.createdAt
	info.AgeSeconds = int64(age.Seconds())
	info.RemainingSeconds = int64(remaining.Seconds())
	info.ExpiringSoon = age+ExpiringSoonBuffer >= m.timeout
	return info
}

func (m *Manager) snapshot() (string, time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.createdAt, m.token != ""
}

// expire clears the session if it still holds token.
func (m *Manager) expire(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != token {
		return
	}
	m.logger.Info("session expired", zap.String("database", m.client.Database()))
	m.clear()
}

func (m *Manager) clear() {
	m.token = ""
	m.createdAt = time.Time{}
}
