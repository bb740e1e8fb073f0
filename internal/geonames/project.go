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
package geonames

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFieldCount is matched by every *FieldCountError.
var ErrFieldCount = errors.New("unexpected number of fields")

// FieldCountError reports a line whose tab-separated field count differs from the schema.
type FieldCountError struct {
	Line int
	Got  int
	Want int
}

func (e *FieldCountError) Error() string {
	return fmt.Sprintf("line %d: %s: got %d, want %d", e.Line, ErrFieldCount, e.Got, e.Want)
}

func (e *FieldCountError) Is(target error) bool { return target == ErrFieldCount }

// Row is a projected line: retained values aligned with the retained column names.
// Columns is shared between all rows of a schema and must not be modified.
type Row struct {
	Line    int
	Columns []string
	Values  []any
}

// Pairs returns the (column, value) pairs of the row in column order.
func (r Row) Pairs() [][2]any {
	out := make([][2]any, len(r.Columns))
	for i, c := range r.Columns {
		out[i] = [2]any{c, r.Values[i]}
	}
	return out
}

// QuoteField wraps v in double quotes when it contains a comma.
// Embedded double quotes are not escaped.
func QuoteField(v string) string {
	if strings.Contains(v, ",") {
		return `"` + v + `"`
	}
	return v
}

// Project splits line on tabs, drops omitted fields and quotes the rest.
func Project(line Line, s *Schema) (Row, error) {
	fields := strings.Split(line.Text, "\t")
	if len(fields) != len(s.Columns) {
		return Row{}, &FieldCountError{Line: line.Number, Got: len(fields), Want: len(s.Columns)}
	}

	values := make([]any, 0, len(s.retained))
	for i, c := range s.Columns {
		if !c.keep {
			continue
		}
		values = append(values, QuoteField(fields[i]))
	}
	return Row{Line: line.Number, Columns: s.retained, Values: values}, nil
}
