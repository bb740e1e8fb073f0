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
package loader

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DryRunExecutor writes each statement with its bound values to w, one per line.
type DryRunExecutor struct {
	w     io.Writer
	query string
}

var _ Executor = (*DryRunExecutor)(nil)

func NewDryRunExecutor(w io.Writer) *DryRunExecutor {
	return &DryRunExecutor{w: w}
}

// ExecContext prints the statement the first time it is seen and afterwards only
// the values, as a comment line.
func (d *DryRunExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if query != d.query {
		if _, err := fmt.Fprintf(d.w, "%s;\n", query); err != nil {
			return nil, err
		}
		d.query = query
	}
	vals := make([]string, len(args))
	for i, a := range args {
		vals[i] = strconv.Quote(fmt.Sprint(a))
	}
	if _, err := fmt.Fprintf(d.w, "-- (%s)\n", strings.Join(vals, ", ")); err != nil {
		return nil, err
	}
	return driver.RowsAffected(1), nil
}
