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

package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/fmmcp/internal/fmtest"
	"github.com/kraklabs/fmmcp/pkg/apierror"
	"github.com/kraklabs/fmmcp/pkg/fmclient"
	"github.com/kraklabs/fmmcp/pkg/session"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newManager(t *testing.T, srv *fmtest.Server, clk *clock) *session.Manager {
	t.Helper()
	opts := session.Options{Timeout: 10 * time.Minute}
	if clk != nil {
		opts.Now = clk.now
	}
	return session.NewManager(srv.Client(), session.Credentials{
		Username: fmtest.Username,
		Password: fmtest.Password,
	}, opts)
}

func TestLoginActivates(t *testing.T) {
	srv := fmtest.New(t)
	m := newManager(t, srv, nil)

	assert.False(t, m.Active())
	info, err := m.Login(context.Background())
	require.NoError(t, err)
	assert.True(t, info.Active)
	assert.True(t, m.Active())
	assert.Equal(t, fmtest.Database, info.Database)
}

func TestLoginFailureStaysAbsent(t *testing.T) {
	srv := fmtest.New(t)
	m := session.NewManager(srv.Client(), session.Credentials{Username: fmtest.Username, Password: "nope"}, session.Options{})

	_, err := m.Login(context.Background())
	assert.True(t, apierror.IsCode(err, apierror.InvalidCredentials))
	assert.False(t, m.Active())
}

// TestLogoutIdempotent verifies logout without a session fails locally and
// never reaches the server.
func TestLogoutIdempotent(t *testing.T) {
	srv := fmtest.New(t)
	m := newManager(t, srv, nil)
	ctx := context.Background()

	err := m.Logout(ctx)
	require.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.NoSession))
	d, _ := apierror.As(err)
	assert.False(t, d.Retryable)
	assert.Empty(t, srv.Requests())

	_, err = m.Login(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Logout(ctx))

	assert.NotPanics(t, func() {
		err = m.Logout(ctx)
	})
	assert.True(t, apierror.IsCode(err, apierror.NoSession))
	assert.Equal(t, 1, srv.Count(http.MethodDelete, "/sessions/token-1"))
}

func TestLogoutExpiredIsSuccess(t *testing.T) {
	srv := fmtest.New(t)
	m := newManager(t, srv, nil)
	ctx := context.Background()

	_, err := m.Login(ctx)
	require.NoError(t, err)
	srv.ExpireTokens()

	assert.NoError(t, m.Logout(ctx))
	assert.False(t, m.Active())
}

func TestLogoutFailureClearsState(t *testing.T) {
	srv := fmtest.New(t)
	m := newManager(t, srv, nil)
	ctx := context.Background()

	_, err := m.Login(ctx)
	require.NoError(t, err)
	srv.FailLogout(&fmtest.Failure{Status: http.StatusInternalServerError})

	err = m.Logout(ctx)
	assert.True(t, apierror.IsCode(err, apierror.ServerError))
	assert.False(t, m.Active())
}

// TestReloginTearsDown verifies login while active closes the old session
// first and proceeds even when that fails.
func TestReloginTearsDown(t *testing.T) {
	t.Run("teardown succeeds", func(t *testing.T) {
		srv := fmtest.New(t)
		m := newManager(t, srv, nil)
		ctx := context.Background()

		_, err := m.Login(ctx)
		require.NoError(t, err)
		_, err = m.Login(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, srv.Count(http.MethodDelete, "/sessions/token-1"))
		assert.Equal(t, 1, srv.ActiveTokens())
	})

	t.Run("teardown fails", func(t *testing.T) {
		srv := fmtest.New(t)
		m := newManager(t, srv, nil)
		ctx := context.Background()

		_, err := m.Login(ctx)
		require.NoError(t, err)
		srv.FailLogout(&fmtest.Failure{Status: http.StatusServiceUnavailable})

		info, err := m.Login(ctx)
		require.NoError(t, err)
		assert.True(t, info.Active)
		assert.Equal(t, 2, srv.Count(http.MethodPost, "/sessions"))
	})
}

func TestRunAuthenticated(t *testing.T) {
	srv := fmtest.New(t)
	srv.AddLayout(fmtest.Layout{Name: "Contacts"})
	m := newManager(t, srv, nil)
	ctx := context.Background()

	err := m.RunAuthenticated(ctx, func(context.Context, *fmclient.Client, string) error {
		t.Fatal("fn must not run without a session")
		return nil
	})
	assert.True(t, apierror.IsCode(err, apierror.NoSession))

	_, err = m.Login(ctx)
	require.NoError(t, err)

	var names []string
	err = m.RunAuthenticated(ctx, func(ctx context.Context, c *fmclient.Client, token string) error {
		nodes, err := c.ListLayouts(ctx, token)
		names = fmclient.FlattenLayouts(nodes)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Contacts"}, names)

	sentinel := errors.New("boom")
	err = m.RunAuthenticated(ctx, func(context.Context, *fmclient.Client, string) error { return sentinel })
	assert.Same(t, sentinel, err)
	assert.True(t, m.Active())
}

func TestRunAuthenticatedExpiryClears(t *testing.T) {
	srv := fmtest.New(t)
	m := newManager(t, srv, nil)
	ctx := context.Background()

	_, err := m.Login(ctx)
	require.NoError(t, err)
	srv.ExpireTokens()

	err = m.RunAuthenticated(ctx, func(ctx context.Context, c *fmclient.Client, token string) error {
		_, err := c.ListLayouts(ctx, token)
		return err
	})
	assert.True(t, apierror.IsSessionExpired(err))
	assert.False(t, m.Active())
}

// TestExpiryKeepsNewerSession verifies a stale expiry does not clear a
// session opened while the failing call was in flight.
func TestExpiryKeepsNewerSession(t *testing.T) {
	srv := fmtest.New(t)
	m := newManager(t, srv, nil)
	ctx := context.Background()

	_, err := m.Login(ctx)
	require.NoError(t, err)

	err = m.RunAuthenticated(ctx, func(ctx context.Context, _ *fmclient.Client, _ string) error {
		if _, err := m.Login(ctx); err != nil {
			return err
		}
		return apierror.New(apierror.SessionExpired, "")
	})
	assert.True(t, apierror.IsSessionExpired(err))
	assert.True(t, m.Active())
}

func TestValidate(t *testing.T) {
	clk := &clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	srv := fmtest.New(t)
	m := newManager(t, srv, clk)
	ctx := context.Background()

	res := m.Validate(ctx)
	assert.False(t, res.Valid)
	assert.Nil(t, res.SessionAgeSeconds)
	assert.Empty(t, srv.Requests())

	_, err := m.Login(ctx)
	require.NoError(t, err)
	clk.advance(90 * time.Second)

	res = m.Validate(ctx)
	assert.True(t, res.Valid)
	require.NotNil(t, res.SessionAgeSeconds)
	assert.Equal(t, int64(90), *res.SessionAgeSeconds)

	srv.FailListLayouts(&fmtest.Failure{Status: http.StatusInternalServerError, Code: 802, Message: "Unable to open file"})
	res = m.Validate(ctx)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Message)
	assert.True(t, m.Active())

	srv.FailListLayouts(nil)
	srv.ExpireTokens()
	res = m.Validate(ctx)
	assert.False(t, res.Valid)
	assert.False(t, m.Active())
}

// TestValidateFreshSessionReportsAge verifies a zero age is still encoded.
func TestValidateFreshSessionReportsAge(t *testing.T) {
	clk := &clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	srv := fmtest.New(t)
	m := newManager(t, srv, clk)
	ctx := context.Background()

	_, err := m.Login(ctx)
	require.NoError(t, err)

	raw, err := json.Marshal(m.Validate(ctx))
	require.NoError(t, err)
	assert.JSONEq(t, `{"valid":true,"sessionAgeSeconds":0}`, string(raw))

	require.NoError(t, m.Logout(ctx))
	raw, err = json.Marshal(m.Validate(ctx))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sessionAgeSeconds")
}

func TestAgeAndExpiringSoon(t *testing.T) {
	clk := &clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	srv := fmtest.New(t)
	m := newManager(t, srv, clk)
	ctx := context.Background()

	assert.Zero(t, m.Age())
	assert.False(t, m.IsExpiringSoon(time.Minute))

	_, err := m.Login(ctx)
	require.NoError(t, err)

	clk.advance(8 * time.Minute)
	assert.Equal(t, 8*time.Minute, m.Age())
	assert.False(t, m.IsExpiringSoon(time.Minute))
	assert.True(t, m.IsExpiringSoon(3*time.Minute))
	assert.True(t, m.Active(), "expiring soon never changes state")

	info := m.Info()
	assert.Equal(t, int64(480), info.AgeSeconds)
	assert.Equal(t, int64(120), info.RemainingSeconds)
	assert.False(t, info.ExpiringSoon)

	clk.advance(90 * time.Second)
	assert.True(t, m.Info().ExpiringSoon)
}
