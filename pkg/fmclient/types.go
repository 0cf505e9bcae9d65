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
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FieldKind is how a field gets its value.
type FieldKind string

const (
	FieldKindNormal      FieldKind = "normal"
	FieldKindCalculation FieldKind = "calculation"
	FieldKindSummary     FieldKind = "summary"
)

// Computed reports whether values are derived rather than stored.
func (k FieldKind) Computed() bool {
	return k == FieldKindCalculation || k == FieldKindSummary
}

// FieldType is the declared value type of a field.
type FieldType string

const (
	FieldTypeText      FieldType = "text"
	FieldTypeNumber    FieldType = "number"
	FieldTypeDate      FieldType = "date"
	FieldTypeTime      FieldType = "time"
	FieldTypeTimestamp FieldType = "timestamp"
	FieldTypeBinary    FieldType = "binary"
)

// UnmarshalJSON maps the Data API result names onto FieldType. The API
// reports timestamps as "timeStamp" and binary fields as "container".
func (t *FieldType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch strings.ToLower(s) {
	case "timestamp":
		*t = FieldTypeTimestamp
	case "container", "binary":
		*t = FieldTypeBinary
	default:
		*t = FieldType(strings.ToLower(s))
	}
	return nil
}

// FieldMeta describes one field on a layout or portal.
type FieldMeta struct {
	Name          string    `json:"name"`
	Kind          FieldKind `json:"type"`
	DisplayType   string    `json:"displayType,omitempty"`
	Result        FieldType `json:"result"`
	Global        bool      `json:"global"`
	NotEmpty      bool      `json:"notEmpty"`
	Numeric       bool      `json:"numeric"`
	MaxCharacters int       `json:"maxCharacters,omitempty"`
	MaxRepeat     int       `json:"maxRepeat,omitempty"`
}

// BaseName strips a "TableOccurrence::" qualifier from portal field names.
func (f FieldMeta) BaseName() string {
	if i := strings.LastIndex(f.Name, "::"); i >= 0 {
		return f.Name[i+2:]
	}
	return f.Name
}

// Portal is a named related set of fields on a layout.
type Portal struct {
	Name   string      `json:"name"`
	Fields []FieldMeta `json:"fields"`
}

// Portals keeps portalMetaData in server order. The wire form is a JSON
// object keyed by portal name.
type Portals []Portal

// UnmarshalJSON decodes the portal object without losing key order.
func (p *Portals) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*p = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("portalMetaData: expected object, got %v", tok)
	}

	var out Portals
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("portalMetaData: expected key, got %v", keyTok)
		}
		var fields []FieldMeta
		if err := dec.Decode(&fields); err != nil {
			return fmt.Errorf("portalMetaData %q: %w", name, err)
		}
		out = append(out, Portal{Name: name, Fields: fields})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = out
	return nil
}

// MarshalJSON writes portals back as an ordered JSON object.
func (p Portals) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, portal := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(portal.Name)
		if err != nil {
			return nil, err
		}
		fields := portal.Fields
		if fields == nil {
			fields = []FieldMeta{}
		}
		val, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ValueListItem is one entry of a value list.
type ValueListItem struct {
	Value        string `json:"value"`
	DisplayValue string `json:"displayValue,omitempty"`
}

// ValueList is a named list of allowed values attached to a layout.
type ValueList struct {
	Name   string          `json:"name"`
	Type   string          `json:"type,omitempty"`
	Values []ValueListItem `json:"values"`
}

// LayoutMetadata is the response of GET /layouts/{layout}.
type LayoutMetadata struct {
	Name       string      `json:"name,omitempty"`
	Fields     []FieldMeta `json:"fieldMetaData"`
	Portals    Portals     `json:"portalMetaData"`
	ValueLists []ValueList `json:"valueLists,omitempty"`
}

// LayoutNode is an entry of the layout tree. Folder nodes are grouping only
// and cannot be queried.
type LayoutNode struct {
	Name              string       `json:"name"`
	Table             string       `json:"table,omitempty"`
	IsFolder          bool         `json:"isFolder,omitempty"`
	FolderLayoutNames []LayoutNode `json:"folderLayoutNames,omitempty"`
}

// ScriptNode is an entry of the script tree.
type ScriptNode struct {
	Name              string       `json:"name"`
	IsFolder          bool         `json:"isFolder,omitempty"`
	FolderScriptNames []ScriptNode `json:"folderScriptNames,omitempty"`
}

// FlattenLayouts returns the queryable layout names depth-first, skipping
// folder nodes.
func FlattenLayouts(nodes []LayoutNode) []string {
	var out []string
	for _, n := range nodes {
		if n.IsFolder {
			out = append(out, FlattenLayouts(n.FolderLayoutNames)...)
			continue
		}
		out = append(out, n.Name)
	}
	return out
}

// FlattenScripts returns script names depth-first, skipping folder nodes.
func FlattenScripts(nodes []ScriptNode) []string {
	var out []string
	for _, n := range nodes {
		if n.IsFolder {
			out = append(out, FlattenScripts(n.FolderScriptNames)...)
			continue
		}
		out = append(out, n.Name)
	}
	return out
}

// Record is one row returned by a records or find request.
type Record struct {
	RecordID   string                      `json:"recordId"`
	ModID      string                      `json:"modId,omitempty"`
	FieldData  map[string]any              `json:"fieldData"`
	PortalData map[string][]map[string]any `json:"portalData,omitempty"`
}

// DataInfo carries the counts the server reports alongside records.
type DataInfo struct {
	Database         string `json:"database,omitempty"`
	Layout           string `json:"layout,omitempty"`
	Table            string `json:"table,omitempty"`
	TotalRecordCount int    `json:"totalRecordCount"`
	FoundCount       int    `json:"foundCount"`
	ReturnedCount    int    `json:"returnedCount"`
}

// RecordSet is the response body of records and find requests.
type RecordSet struct {
	DataInfo DataInfo `json:"dataInfo"`
	Data     []Record `json:"data"`
}

// SortRule orders find results.
type SortRule struct {
	FieldName string `json:"fieldName"`
	SortOrder string `json:"sortOrder,omitempty"`
}

// FindRequest is the body of POST /layouts/{layout}/_find. Each query map
// is one find request; the server ORs them together.
type FindRequest struct {
	Query  []map[string]string `json:"query"`
	Sort   []SortRule          `json:"sort,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}
