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

package fmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kraklabs/fmmcp/pkg/apierror"
)

// ListLayouts returns the layout tree, folders included.
func (c *Client) ListLayouts(ctx context.Context, token string) ([]LayoutNode, error) {
	var body struct {
		Layouts []LayoutNode `json:"layouts"`
	}
	if err := c.get(ctx, "/layouts", token, &body); err != nil {
		return nil, err
	}
	return body.Layouts, nil
}

// LayoutMetadata returns field, portal and value list metadata for layout.
func (c *Client) LayoutMetadata(ctx context.Context, token, layout string) (*LayoutMetadata, error) {
	var meta LayoutMetadata
	if err := c.get(ctx, "/layouts/"+url.PathEscape(layout), token, &meta); err != nil {
		return nil, err
	}
	meta.Name = layout
	return &meta, nil
}

// ListScripts returns the script tree, folders included.
func (c *Client) ListScripts(ctx context.Context, token string) ([]ScriptNode, error) {
	var body struct {
		Scripts []ScriptNode `json:"scripts"`
	}
	if err := c.get(ctx, "/scripts", token, &body); err != nil {
		return nil, err
	}
	return body.Scripts, nil
}

// GetRecords returns a page of records. offset is 1-based as in the API.
func (c *Client) GetRecords(ctx context.Context, token, layout string, offset, limit int) (*RecordSet, error) {
	q := url.Values{}
	if offset > 0 {
		q.Set("_offset", strconv.Itoa(offset))
	}
	if limit > 0 {
		q.Set("_limit", strconv.Itoa(limit))
	}
	path := "/layouts/" + url.PathEscape(layout) + "/records"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var rs RecordSet
	if err := c.get(ctx, path, token, &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

// GetRecord returns a single record by its internal record id.
func (c *Client) GetRecord(ctx context.Context, token, layout, recordID string) (*RecordSet, error) {
	path := fmt.Sprintf("/layouts/%s/records/%s", url.PathEscape(layout), url.PathEscape(recordID))
	var rs RecordSet
	if err := c.get(ctx, path, token, &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

// Find runs a find request on layout. A find that matches nothing fails
// with apierror.NoRecordsMatch; callers decide whether that is an error.
func (c *Client) Find(ctx context.Context, token, layout string, req FindRequest) (*RecordSet, error) {
	if len(req.Query) == 0 {
		return nil, apierror.New(apierror.EmptyFindCriteria, "query must contain at least one request")
	}
	res, err := c.Call(ctx, http.MethodPost, "/layouts/"+url.PathEscape(layout)+"/_find", token, req)
	if err != nil {
		return nil, err
	}
	var rs RecordSet
	if err := decodeResponse(res, &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

func (c *Client) get(ctx context.Context, path, token string, out any) error {
	res, err := c.Call(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return err
	}
	return decodeResponse(res, out)
}

func decodeResponse(res *Result, out any) error {
	if len(res.Response) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Response, out); err != nil {
		return apierror.New(apierror.InvalidResponse, fmt.Sprintf("decode response: %v", err))
	}
	return nil
}
