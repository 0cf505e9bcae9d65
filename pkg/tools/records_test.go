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
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/fmmcp/internal/fmtest"
	"github.com/kraklabs/fmmcp/pkg/apierror"
	"github.com/kraklabs/fmmcp/pkg/fmclient"
)

func TestListLayoutsAndScripts(t *testing.T) {
	srv := fmtest.New(t)
	srv.AddLayout(contactsLayout())
	srv.AddLayout(fmtest.Layout{Name: "Invoices", Folder: "Billing"})
	srv.SetScripts(fmclient.ScriptNode{Name: "Reports", IsFolder: true, FolderScriptNames: []fmclient.ScriptNode{{Name: "Monthly"}}})
	mgr := loggedIn(t, srv)
	ctx := context.Background()

	layouts, err := ListLayouts(ctx, mgr)
	require.NoError(t, err)
	assert.Equal(t, []string{"Contacts", "Invoices"}, layouts.Layouts)
	assert.Equal(t, 2, layouts.Count)
	assert.Len(t, layouts.Tree, 2)

	scripts, err := ListScripts(ctx, mgr)
	require.NoError(t, err)
	assert.Equal(t, []string{"Monthly"}, scripts.Scripts)
}

func TestLayoutMetadataPassthrough(t *testing.T) {
	srv := fmtest.New(t)
	srv.AddLayout(contactsLayout())
	mgr := loggedIn(t, srv)

	meta, err := LayoutMetadata(context.Background(), mgr, "Contacts")
	require.NoError(t, err)
	assert.Equal(t, "Contacts", meta.Name)
	require.Len(t, meta.Fields, 6)
	assert.Equal(t, fmclient.FieldTypeBinary, meta.Fields[3].Result)
	assert.True(t, meta.Fields[5].Global)
}

func TestGetRecordsPaging(t *testing.T) {
	srv := fmtest.New(t)
	srv.AddLayout(contactsLayout())
	mgr := loggedIn(t, srv)
	ctx := context.Background()

	page, err := GetRecords(ctx, mgr, "Contacts", 2, 1)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "2", page.Records[0].RecordID)
	assert.Equal(t, 3, page.DataInfo.TotalRecordCount)

	page, err = GetRecords(ctx, mgr, "Contacts", 0, 5000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Offset)
	assert.Equal(t, MaxPageLimit, page.Limit)

	page, err = GetRecords(ctx, mgr, "Contacts", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultPageLimit, page.Limit)
	assert.Len(t, page.Records, 3)
}

func TestGetRecordByID(t *testing.T) {
	srv := fmtest.New(t)
	srv.AddLayout(contactsLayout())
	mgr := loggedIn(t, srv)
	ctx := context.Background()

	rec, err := GetRecordByID(ctx, mgr, "Contacts", "3")
	require.NoError(t, err)
	assert.Equal(t, "Grace Brown", rec.FieldData["Name"])

	_, err = GetRecordByID(ctx, mgr, "Contacts", "99")
	assert.True(t, apierror.IsCode(err, apierror.RecordMissing))

	_, err = GetRecordByID(ctx, mgr, "Contacts", "")
	assert.True(t, apierror.IsCode(err, apierror.BadRequest))
}

func TestFindRecords(t *testing.T) {
	srv := fmtest.New(t)
	srv.AddLayout(contactsLayout())
	mgr := loggedIn(t, srv)
	ctx := context.Background()

	page, err := FindRecords(ctx, mgr, "Contacts", FindOptions{
		Query: []map[string]string{{"Name": "a*"}},
		Sort:  []fmclient.SortRule{{FieldName: "Name", SortOrder: "descend"}},
	})
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "2", page.Records[0].RecordID)

	page, err = FindRecords(ctx, mgr, "Contacts", FindOptions{Query: []map[string]string{{"Name": "nobody"}}})
	require.NoError(t, err, "an empty find is not an error")
	assert.Empty(t, page.Records)

	_, err = FindRecords(ctx, mgr, "Contacts", FindOptions{})
	assert.True(t, apierror.IsCode(err, apierror.EmptyFindCriteria))
}

func TestGetRecordCount(t *testing.T) {
	srv := fmtest.New(t)
	srv.AddLayout(contactsLayout())
	mgr := loggedIn(t, srv)

	count, err := GetRecordCount(context.Background(), mgr, "Contacts")
	require.NoError(t, err)
	assert.Equal(t, 3, count.TotalRecordCount)
	assert.Equal(t, 3, count.FoundCount)

	reqs := srv.Requests()
	assert.Contains(t, reqs[len(reqs)-1].Path, "/layouts/Contacts/records")
}

func TestPassthroughNeedsSession(t *testing.T) {
	srv := fmtest.New(t)
	srv.AddLayout(contactsLayout())
	mgr := loggedIn(t, srv)
	ctx := context.Background()
	require.NoError(t, mgr.Logout(ctx))

	_, err := ListLayouts(ctx, mgr)
	assert.True(t, apierror.IsCode(err, apierror.NoSession))
	_, err = GetRecords(ctx, mgr, "Contacts", 1, 10)
	assert.True(t, apierror.IsCode(err, apierror.NoSession))
	assert.Zero(t, srv.Count(http.MethodGet, "/layouts"))
}
