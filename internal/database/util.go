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
package database

import (
	"fmt"
	"os"
	"strings"

	"github.com/GoogleCloudPlatform/geonames-loader/internal/config"
)

// ValidateUpsertInput checks the arguments shared by every GenerateUpsertSQL implementation.
func ValidateUpsertInput(table string, columns, primaryKey []string) error {
	if strings.TrimSpace(table) == "" {
		return fmt.Errorf("table name is empty")
	}
	if len(columns) == 0 {
		return fmt.Errorf("no columns for table %s", table)
	}
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if c == "" {
			return fmt.Errorf("empty column name for table %s", table)
		}
		seen[c] = true
	}
	if len(primaryKey) == 0 {
		return fmt.Errorf("no primary key for table %s", table)
	}
	for _, pk := range primaryKey {
		if !seen[pk] {
			return fmt.Errorf("primary key column %s is not among the columns of table %s", pk, table)
		}
	}
	return nil
}

// QuoteQualified quotes each dot-separated part of a possibly schema-qualified name.
func QuoteQualified(h DialectHandler, name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = h.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// QuoteList quotes names and joins them with ", ". prefix is prepended to every
// quoted name, e.g. "source.".
func QuoteList(h DialectHandler, prefix string, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = prefix + h.QuoteIdentifier(n)
	}
	return strings.Join(quoted, ", ")
}

// PlaceholderList returns n placeholders starting at position 1.
func PlaceholderList(h DialectHandler, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = h.Placeholder(i + 1)
	}
	return strings.Join(ph, ", ")
}

// NonKeyColumns returns columns minus primaryKey, in column order.
func NonKeyColumns(columns, primaryKey []string) []string {
	pk := make(map[string]bool, len(primaryKey))
	for _, c := range primaryKey {
		pk[c] = true
	}
	var out []string
	for _, c := range columns {
		if !pk[c] {
			out = append(out, c)
		}
	}
	return out
}

// CloudSQLParams are the connection parameters of a Cloud SQL instance.
type CloudSQLParams struct {
	User       string
	Password   string
	DBName     string
	Instance   string
	UsePrivate bool
}

// ResolveCloudSQLParams takes values from cfg and falls back to the environment
// variables used by the Cloud SQL connector samples (DB_USER, DB_PASS, DB_NAME,
// INSTANCE_CONNECTION_NAME, PRIVATE_IP).
func ResolveCloudSQLParams(cfg config.DatabaseConfig) (CloudSQLParams, error) {
	getenv := func(v, key string) string {
		if v != "" {
			return v
		}
		return os.Getenv(key)
	}
	p := CloudSQLParams{
		User:     getenv(cfg.User, "DB_USER"),
		Password: getenv(cfg.Password, "DB_PASS"),
		DBName:   getenv(cfg.DBName, "DB_NAME"),
		Instance: getenv(cfg.CloudSQLInstanceConnectionName, "INSTANCE_CONNECTION_NAME"),
	}
	if cfg.UsePrivateIP {
		p.UsePrivate = true
	} else {
		v := strings.ToLower(os.Getenv("PRIVATE_IP"))
		p.UsePrivate = v != "" && v != "false" && v != "0"
	}
	if p.User == "" || p.DBName == "" || p.Instance == "" {
		return p, fmt.Errorf("missing required Cloud SQL connection parameter (user, database, instance)")
	}
	return p, nil
}
