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

// Package hana registers the SAP HANA dialect, whose native
// UPSERT ... WITH PRIMARY KEY statement needs no conflict clause.
package hana

import (
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/SAP/go-hdb/driver"

	"github.com/GoogleCloudPlatform/geonames-loader/internal/config"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/database"
)

type hanaHandler struct{}

var _ database.DialectHandler = (*hanaHandler)(nil)

func (h hanaHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	return nil, fmt.Errorf("hana has no Cloud SQL variant")
}

func (h hanaHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	connector, err := driver.NewDSNConnector(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("hdb connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

// DSN builds an hdb:// URL. DBName selects a tenant database of a multi-container system.
func DSN(cfg config.DatabaseConfig) string {
	u := &url.URL{
		Scheme: "hdb",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
	if cfg.DBName != "" {
		q := url.Values{}
		q.Set("databaseName", cfg.DBName)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

var plainIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// QuoteIdentifier leaves plain names bare so HANA folds them to upper case, matching
// tables deployed from CDS models (GeonameId resolves to GEONAMEID). Anything else is
// quoted and matched exactly.
func (h hanaHandler) QuoteIdentifier(name string) string {
	if plainIdentifier.MatchString(name) {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (h hanaHandler) Placeholder(int) string { return "?" }

func (h hanaHandler) GenerateUpsertSQL(table string, columns, primaryKey []string) (string, error) {
	if err := database.ValidateUpsertInput(table, columns, primaryKey); err != nil {
		return "", err
	}
	return fmt.Sprintf("UPSERT %s (%s) VALUES (%s) WITH PRIMARY KEY",
		database.QuoteQualified(h, table),
		database.QuoteList(h, "", columns),
		database.PlaceholderList(h, len(columns))), nil
}

func init() {
	database.RegisterDialectHandler("hana", hanaHandler{})
}
