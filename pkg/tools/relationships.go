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
	"regexp"
	"strings"
	"unicode"

	"github.com/kraklabs/fmmcp/pkg/fmclient"
)

// RelationshipDisclaimer accompanies every inferred relationship set.
const RelationshipDisclaimer = "These relationships are guesses derived from field and portal naming conventions. " +
	"They are not the authoritative relationship graph, which the Data API does not expose. " +
	"Verify them in the Manage Database dialog of FileMaker Pro before relying on them."

// Confidence is a coarse trust label for an inferred fact.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Cardinality is the guessed shape of a relationship.
type Cardinality string

const (
	OneToOne           Cardinality = "one-to-one"
	OneToMany          Cardinality = "one-to-many"
	ManyToMany         Cardinality = "many-to-many"
	UnknownCardinality Cardinality = "unknown"
)

// ForeignKey is a field whose name looks like a reference to another table.
type ForeignKey struct {
	Field       string             `json:"field"`
	Portal      string             `json:"portal,omitempty"`
	TargetTable string             `json:"targetTable"`
	Type        fmclient.FieldType `json:"type"`
	Pattern     string             `json:"pattern"`
	Confidence  Confidence         `json:"confidence"`
}

// Relationship is a guessed link between the analyzed layout and another
// table.
type Relationship struct {
	SourceLayout string      `json:"sourceLayout"`
	TargetTable  string      `json:"targetTable"`
	SourceField  string      `json:"sourceField,omitempty"`
	TargetField  string      `json:"targetField,omitempty"`
	Portal       string      `json:"portal,omitempty"`
	Cardinality  Cardinality `json:"cardinality"`
	Confidence   Confidence  `json:"confidence"`
	Method       string      `json:"method"`
}

// RelationshipAnalysis is the inferred structure of one layout.
type RelationshipAnalysis struct {
	Layout        string         `json:"layout"`
	Relationships []Relationship `json:"relationships"`
	ForeignKeys   []ForeignKey   `json:"foreignKeys"`
	Disclaimer    string         `json:"disclaimer"`
}

// keyPattern pairs a matcher with a human name. The first capture group is
// the guessed table name.
type keyPattern struct {
	name string
	re   *regexp.Regexp
}

// keyPatterns are tried in order; the first match wins. The camel-case
// pattern also matches names the "_ID" pattern already covers, which only
// matters when the earlier pattern fails.
var keyPatterns = []keyPattern{
	{name: "<name>_id suffix", re: regexp.MustCompile(`^(.+)_(?:id|ID)$`)},
	{name: "<name>ID suffix", re: regexp.MustCompile(`^(.+)ID$`)},
	{name: "fk_<name> prefix", re: regexp.MustCompile(`^(?:fk|FK)_(.+)$`)},
	{name: "id_<name> prefix", re: regexp.MustCompile(`^(?:id|ID)_(.+)$`)},
}

// DetectForeignKey reports whether f looks like a foreign key. Only text and
// number fields qualify. Portal field names are matched on the part after
// "::". It returns nil when no pattern matches.
func DetectForeignKey(f fmclient.FieldMeta) *ForeignKey {
	if f.Result != fmclient.FieldTypeText && f.Result != fmclient.FieldTypeNumber {
		return nil
	}
	name := f.BaseName()
	for _, p := range keyPatterns {
		m := p.re.FindStringSubmatch(name)
		if m == nil || !hasAlnum(m[1]) {
			continue
		}
		conf := ConfidenceMedium
		if strings.HasSuffix(strings.ToLower(name), "_id") && f.Result == fmclient.FieldTypeNumber {
			conf = ConfidenceHigh
		}
		return &ForeignKey{
			Field:       f.Name,
			TargetTable: m[1],
			Type:        f.Result,
			Pattern:     p.name,
			Confidence:  conf,
		}
	}
	return nil
}

// hasAlnum reports whether s can name a table: at least one letter or digit.
func hasAlnum(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

var portalAffixes = struct {
	prefixes []string
	suffixes []string
}{
	prefixes: []string{"portal_", "rel_"},
	suffixes: []string{"_portal", "_rel"},
}

// portalTarget guesses the related table behind a portal name by removing
// a portal_/rel_ prefix or a _portal/_rel suffix, in any letter case.
func portalTarget(portal string) string {
	lower := strings.ToLower(portal)
	for _, p := range portalAffixes.prefixes {
		if strings.HasPrefix(lower, p) && len(portal) > len(p) {
			return portal[len(p):]
		}
	}
	for _, s := range portalAffixes.suffixes {
		if strings.HasSuffix(lower, s) && len(portal) > len(s) {
			return portal[:len(portal)-len(s)]
		}
	}
	return portal
}

// PortalRelationships infers one one-to-many relationship per portal, in
// portal order.
func PortalRelationships(layout string, portals fmclient.Portals) []Relationship {
	out := make([]Relationship, 0, len(portals))
	for _, p := range portals {
		target := portalTarget(p.Name)
		rel := Relationship{
			SourceLayout: layout,
			TargetTable:  target,
			Portal:       p.Name,
			Cardinality:  OneToMany,
			Confidence:   ConfidenceMedium,
			Method:       "portal name",
		}
		if strings.EqualFold(target, p.Name) {
			rel.Confidence = ConfidenceHigh
		} else {
			rel.Method = "portal name with affix removed"
		}
		for _, f := range p.Fields {
			if fk := DetectForeignKey(f); fk != nil {
				rel.TargetField = f.Name
				rel.Method += ", linked by " + fk.Pattern
				break
			}
		}
		out = append(out, rel)
	}
	return out
}

// InferRelationships analyzes one layout's metadata. Portal relationships
// come first; a field-level foreign key only adds a relationship when no
// portal already targets the same table. The output depends only on meta.
func InferRelationships(meta *fmclient.LayoutMetadata) RelationshipAnalysis {
	analysis := RelationshipAnalysis{
		Layout:        meta.Name,
		Relationships: PortalRelationships(meta.Name, meta.Portals),
		ForeignKeys:   []ForeignKey{},
		Disclaimer:    RelationshipDisclaimer,
	}

	targets := make(map[string]bool, len(analysis.Relationships))
	for _, r := range analysis.Relationships {
		targets[tableKey(r.TargetTable)] = true
	}

	for _, f := range meta.Fields {
		fk := DetectForeignKey(f)
		if fk == nil {
			continue
		}
		analysis.ForeignKeys = append(analysis.ForeignKeys, *fk)

		key := tableKey(fk.TargetTable)
		if targets[key] {
			continue
		}
		targets[key] = true
		analysis.Relationships = append(analysis.Relationships, Relationship{
			SourceLayout: meta.Name,
			TargetTable:  fk.TargetTable,
			SourceField:  fk.Field,
			Cardinality:  UnknownCardinality,
			Confidence:   fk.Confidence,
			Method:       "field name, " + fk.Pattern,
		})
	}

	for _, p := range meta.Portals {
		for _, f := range p.Fields {
			if fk := DetectForeignKey(f); fk != nil {
				fk.Portal = p.Name
				analysis.ForeignKeys = append(analysis.ForeignKeys, *fk)
			}
		}
	}
	return analysis
}

// AnalyzeRelationships fetches layout metadata and infers its relationships.
func AnalyzeRelationships(ctx context.Context, r Runner, layout string) (*RelationshipAnalysis, error) {
	if err := requireLayout(layout); err != nil {
		return nil, err
	}
	var analysis RelationshipAnalysis
	err := r.RunAuthenticated(ctx, func(ctx context.Context, c *fmclient.Client, token string) error {
		meta, err := c.LayoutMetadata(ctx, token, layout)
		if err != nil {
			return err
		}
		analysis = InferRelationships(meta)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &analysis, nil
}

// tableKey normalizes a table name for duplicate detection: lower case and
// singular, so "Orders", "order" and "Order" compare equal.
func tableKey(name string) string {
	s := strings.ToLower(name)
	switch {
	case strings.HasSuffix(s, "ies") && len(s) > 3:
		return s[:len(s)-3] + "y"
	case strings.HasSuffix(s, "ses"), strings.HasSuffix(s, "xes"),
		strings.HasSuffix(s, "ches"), strings.HasSuffix(s, "shes"):
		return s[:len(s)-2]
	case strings.HasSuffix(s, "ss"):
		return s
	case strings.HasSuffix(s, "s") && len(s) > 1:
		return s[:len(s)-1]
	}
	return s
}
