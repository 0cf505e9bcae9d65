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
	"fmt"
	"strings"

	"github.com/kraklabs/fmmcp/pkg/apierror"
	"github.com/kraklabs/fmmcp/pkg/fmclient"
)

// Page limits for record reads.
const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

// LayoutList is the response of ListLayouts.
type LayoutList struct {
	Layouts []string              `json:"layouts"`
	Count   int                   `json:"count"`
	Tree    []fmclient.LayoutNode `json:"tree"`
}

// ScriptList is the response of ListScripts.
type ScriptList struct {
	Scripts []string `json:"scripts"`
	Count   int      `json:"count"`
}

// RecordPage is a page of records from one layout.
type RecordPage struct {
	Layout   string            `json:"layout"`
	Offset   int               `json:"offset"`
	Limit    int               `json:"limit"`
	DataInfo fmclient.DataInfo `json:"dataInfo"`
	Records  []fmclient.Record `json:"records"`
}

// RecordCount is the response of GetRecordCount.
type RecordCount struct {
	Layout           string `json:"layout"`
	TotalRecordCount int    `json:"totalRecordCount"`
	FoundCount       int    `json:"foundCount"`
}

// FindOptions are the parameters of FindRecords.
type FindOptions struct {
	Query  []map[string]string
	Sort   []fmclient.SortRule
	Limit  int
	Offset int
}

// ListLayouts returns the queryable layouts and the raw folder tree.
func ListLayouts(ctx context.Context, r Runner) (*LayoutList, error) {
	var out LayoutList
	err := r.RunAuthenticated(ctx, func(ctx context.Context, c *fmclient.Client, token string) error {
		nodes, err := c.ListLayouts(ctx, token)
		if err != nil {
			return err
		}
		out.Tree = nodes
		out.Layouts = fmclient.FlattenLayouts(nodes)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Layouts == nil {
		out.Layouts = []string{}
	}
	out.Count = len(out.Layouts)
	return &out, nil
}

// LayoutMetadata returns the field, portal and value list metadata of layout.
func LayoutMetadata(ctx context.Context, r Runner, layout string) (*fmclient.LayoutMetadata, error) {
	if err := requireLayout(layout); err != nil {
		return nil, err
	}
	var meta *fmclient.LayoutMetadata
	err := r.RunAuthenticated(ctx, func(ctx context.Context, c *fmclient.Client, token string) error {
		var err error
		meta, err = c.LayoutMetadata(ctx, token, layout)
		return err
	})
	if err != nil {
		return nil, err
	}
	return meta, nil
}

// ListScripts returns script names without folders.
func ListScripts(ctx context.Context, r Runner) (*ScriptList, error) {
	var out ScriptList
	err := r.RunAuthenticated(ctx, func(ctx context.Context, c *fmclient.Client, token string) error {
		nodes, err := c.ListScripts(ctx, token)
		if err != nil {
			return err
		}
		out.Scripts = fmclient.FlattenScripts(nodes)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Scripts == nil {
		out.Scripts = []string{}
	}
	out.Count = len(out.Scripts)
	return &out, nil
}

// GetRecords reads one page of records. offset is 1-based; limit is clamped
// to 1..MaxPageLimit.
func GetRecords(ctx context.Context, r Runner, layout string, offset, limit int) (*RecordPage, error) {
	if err := requireLayout(layout); err != nil {
		return nil, err
	}
	if offset < 1 {
		offset = 1
	}
	limit = clamp(limit, DefaultPageLimit, MaxPageLimit)

	page := &RecordPage{Layout: layout, Offset: offset, Limit: limit}
	err := r.RunAuthenticated(ctx, func(ctx context.Context, c *fmclient.Client, token string) error {
		rs, err := c.GetRecords(ctx, token, layout, offset, limit)
		if err != nil {
			return err
		}
		page.DataInfo = rs.DataInfo
		page.Records = rs.Data
		return nil
	})
	if err != nil {
		return nil, err
	}
	if page.Records == nil {
		page.Records = []fmclient.Record{}
	}
	return page, nil
}

// GetRecordByID reads one record by its internal record id.
func GetRecordByID(ctx context.Context, r Runner, layout, recordID string) (*fmclient.Record, error) {
	if err := requireLayout(layout); err != nil {
		return nil, err
	}
	if strings.TrimSpace(recordID) == "" {
		return nil, apierror.InvalidInput("recordId is required")
	}
	var rec *fmclient.Record
	err := r.RunAuthenticated(ctx, func(ctx context.Context, c *fmclient.Client, token string) error {
		rs, err := c.GetRecord(ctx, token, layout, recordID)
		if err != nil {
			return err
		}
		if len(rs.Data) == 0 {
			return apierror.New(apierror.RecordMissing, fmt.Sprintf("record %s not found on layout %s", recordID, layout))
		}
		rec = &rs.Data[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// FindRecords runs a find request. A find that matches nothing returns an
// empty page rather than an error.
func FindRecords(ctx context.Context, r Runner, layout string, opts FindOptions) (*RecordPage, error) {
	if err := requireLayout(layout); err != nil {
		return nil, err
	}
	if len(opts.Query) == 0 {
		return nil, apierror.New(apierror.EmptyFindCriteria, "query must contain at least one find request")
	}
	offset := opts.Offset
	if offset < 1 {
		offset = 1
	}
	limit := clamp(opts.Limit, DefaultPageLimit, MaxPageLimit)

	page := &RecordPage{Layout: layout, Offset: offset, Limit: limit, Records: []fmclient.Record{}}
	err := r.RunAuthenticated(ctx, func(ctx context.Context, c *fmclient.Client, token string) error {
		rs, err := c.Find(ctx, token, layout, fmclient.FindRequest{
			Query:  opts.Query,
			Sort:   opts.Sort,
			Limit:  limit,
			Offset: offset,
		})
		if apierror.IsNoRecords(err) {
			return nil
		}
		if err != nil {
			return err
		}
		page.DataInfo = rs.DataInfo
		if rs.Data != nil {
			page.Records = rs.Data
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// GetRecordCount reads a single record to learn the layout's counts.
func GetRecordCount(ctx context.Context, r Runner, layout string) (*RecordCount, error) {
	if err := requireLayout(layout); err != nil {
		return nil, err
	}
	out := &RecordCount{Layout: layout}
	err := r.RunAuthenticated(ctx, func(ctx context.Context, c *fmclient.Client, token string) error {
		rs, err := c.GetRecords(ctx, token, layout, 1, 1)
		if apierror.IsNoRecords(err) {
			return nil
		}
		if err != nil {
			return err
		}
		out.TotalRecordCount = rs.DataInfo.TotalRecordCount
		out.FoundCount = rs.DataInfo.FoundCount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func requireLayout(layout string) error {
	if strings.TrimSpace(layout) == "" {
		return apierror.InvalidInput("layout is required")
	}
	return nil
}
