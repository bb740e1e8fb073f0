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
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/GoogleCloudPlatform/geonames-loader/internal/config"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/database"
)

type sqliteHandler struct{}

var _ database.DialectHandler = (*sqliteHandler)(nil)

func (h sqliteHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	return nil, fmt.Errorf("sqlite has no Cloud SQL variant")
}

// CreateStandardPool opens the database file named by cfg.DBName (":memory:" for an
// in-memory database). A single connection is used; SQLite has one writer.
func (h sqliteHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DBName == "" {
		return nil, fmt.Errorf("sqlite requires a database file path")
	}
	dbPool, err := sql.Open("sqlite", DSN(cfg.DBName))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	dbPool.SetMaxOpenConns(1)
	return dbPool, nil
}

// DSN appends the pragmas used for file databases.
func DSN(path string) string {
	if path == ":memory:" || strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (h sqliteHandler) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (h sqliteHandler) Placeholder(int) string { return "?" }

func (h sqliteHandler) GenerateUpsertSQL(table string, columns, primaryKey []string) (string, error) {
	if err := database.ValidateUpsertInput(table, columns, primaryKey); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) ",
		database.QuoteQualified(h, table),
		database.QuoteList(h, "", columns),
		database.PlaceholderList(h, len(columns)),
		database.QuoteList(h, "", primaryKey))

	updates := database.NonKeyColumns(columns, primaryKey)
	if len(updates) == 0 {
		b.WriteString("DO NOTHING")
		return b.String(), nil
	}
	set := make([]string, len(updates))
	for i, c := range updates {
		q := h.QuoteIdentifier(c)
		set[i] = fmt.Sprintf("%s = excluded.%s", q, q)
	}
	b.WriteString("DO UPDATE SET ")
	b.WriteString(strings.Join(set, ", "))
	return b.String(), nil
}

func init() {
	database.RegisterDialectHandler("sqlite", sqliteHandler{})
}
