/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package geonames turns tab-delimited GeoNames dump files into rows ready for upsert.
//
// Each dump format is described by a Schema: one Column per tab-separated field,
// in file order, where every column is either kept under a destination column name
// or explicitly omitted.
package geonames

import (
	"fmt"
)

// Column maps one field position of a dump file to a destination column.
// The zero value is an omitted column.
type Column struct {
	name string
	keep bool
}

// Keep retains the field under the given destination column name.
func Keep(name string) Column { return Column{name: name, keep: true} }

// Omit drops the field.
func Omit() Column { return Column{} }

// Name returns the destination column name, or "" for omitted columns.
func (c Column) Name() string { return c.name }

// Kept reports whether the field is written to the destination.
func (c Column) Kept() bool { return c.keep }

func (c Column) String() string {
	if !c.keep {
		return "<omit>"
	}
	return c.name
}

// Schema describes the field layout of one dump format.
type Schema struct {
	Name       string
	Columns    []Column
	PrimaryKey []string

	retained []string
}

// NewSchema validates the column layout and precomputes the retained column list.
func NewSchema(name string, primaryKey []string, columns ...Column) (*Schema, error) {
	s := &Schema{Name: name, Columns: columns, PrimaryKey: primaryKey}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	for _, c := range columns {
		if c.keep {
			s.retained = append(s.retained, c.name)
		}
	}
	return s, nil
}

// MustSchema is NewSchema for package-level schema definitions.
func MustSchema(name string, primaryKey []string, columns ...Column) *Schema {
	s, err := NewSchema(name, primaryKey, columns...)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks that the schema is usable for projection and upsert.
func (s *Schema) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("schema %s: no columns", s.Name)
	}
	seen := make(map[string]bool, len(s.Columns))
	for i, c := range s.Columns {
		if !c.keep {
			continue
		}
		if c.name == "" {
			return fmt.Errorf("schema %s: column %d is kept but has no name", s.Name, i)
		}
		if seen[c.name] {
			return fmt.Errorf("schema %s: duplicate column %s", s.Name, c.name)
		}
		seen[c.name] = true
	}
	if len(seen) == 0 {
		return fmt.Errorf("schema %s: every column is omitted", s.Name)
	}
	if len(s.PrimaryKey) == 0 {
		return fmt.Errorf("schema %s: no primary key", s.Name)
	}
	for _, pk := range s.PrimaryKey {
		if !seen[pk] {
			return fmt.Errorf("schema %s: primary key column %s is not retained", s.Name, pk)
		}
	}
	return nil
}

// Len is the number of tab-separated fields a valid line carries.
func (s *Schema) Len() int { return len(s.Columns) }

// RetainedColumns returns the kept column names in file order.
// The returned slice is a copy.
func (s *Schema) RetainedColumns() []string {
	out := make([]string, len(s.retained))
	copy(out, s.retained)
	return out
}

// GeonamesSchema is the layout of the per-country dumps (e.g. US.txt) and allCountries.txt.
// asciiname and alternatenames are not loaded.
var GeonamesSchema = MustSchema("geonames", []string{"GeonameId"},
	Keep("GeonameId"),
	Keep("Name"),
	Omit(), // asciiname
	Omit(), // alternatenames
	Keep("Latitude"),
	Keep("Longitude"),
	Keep("FeatureClass"),
	Keep("FeatureCode"),
	Keep("CountryCode"),
	Keep("CountryCodesAlt"),
	Keep("Admin1"),
	Keep("Admin2"),
	Keep("Admin3"),
	Keep("Admin4"),
	Keep("Population"),
	Keep("Elevation"),
	Keep("DEM"),
	Keep("Timezone"),
	Keep("LastModified"),
)

// AlternateNamesSchema is the layout of alternateNamesV2.txt. Every field is loaded.
var AlternateNamesSchema = MustSchema("alternate-names", []string{"AlternateNameId"},
	Keep("AlternateNameId"),
	Keep("GeonameId"),
	Keep("ISOLanguage"),
	Keep("AlternateName"),
	Keep("isPreferredName"),
	Keep("isShortName"),
	Keep("isColloquial"),
	Keep("isHistoric"),
	Keep("inUseFrom"),
	Keep("inUseTo"),
)

// SchemaByName resolves the dataset names accepted on the command line.
func SchemaByName(name string) (*Schema, error) {
	switch name {
	case GeonamesSchema.Name:
		return GeonamesSchema, nil
	case AlternateNamesSchema.Name, "alternatenames":
		return AlternateNamesSchema, nil
	default:
		return nil, fmt.Errorf("unknown dataset %q (want %s or %s)", name, GeonamesSchema.Name, AlternateNamesSchema.Name)
	}
}
