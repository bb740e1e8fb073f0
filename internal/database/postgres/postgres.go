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
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/GoogleCloudPlatform/geonames-loader/internal/config"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/database"
)

// postgresHandler struct implements database.DialectHandler for PostgreSQL.
type postgresHandler struct{}

var _ database.DialectHandler = (*postgresHandler)(nil)

// CreateCloudSQLPool for PostgreSQL
func (h postgresHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	p, err := database.ResolveCloudSQLParams(cfg)
	if err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("user=%s password=%s database=%s", p.User, p.Password, p.DBName)
	pgxCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	var opts []cloudsqlconn.Option
	if p.UsePrivate {
		opts = append(opts, cloudsqlconn.WithDefaultDialOptions(cloudsqlconn.WithPrivateIP()))
	}
	d, err := cloudsqlconn.NewDialer(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	pgxCfg.DialFunc = func(ctx context.Context, network, instance string) (net.Conn, error) {
		return d.Dial(ctx, p.Instance)
	}
	dbURI := stdlib.RegisterConnConfig(pgxCfg)
	dbPool, err := sql.Open("pgx", dbURI)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	return dbPool, nil
}

// CreateStandardPool creates a standard PostgreSQL connection pool
func (h postgresHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	dbPool, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	return dbPool, nil
}

func (h postgresHandler) QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

func (h postgresHandler) Placeholder(position int) string {
	return fmt.Sprintf("$%d", position)
}

// GenerateUpsertSQL builds INSERT ... ON CONFLICT (pk) DO UPDATE. When every column
// is part of the key there is nothing to update and the conflict is ignored.
func (h postgresHandler) GenerateUpsertSQL(table string, columns, primaryKey []string) (string, error) {
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
		set[i] = fmt.Sprintf("%s = EXCLUDED.%s", q, q)
	}
	b.WriteString("DO UPDATE SET ")
	b.WriteString(strings.Join(set, ", "))
	return b.String(), nil
}

func init() {
	handler := postgresHandler{}
	database.RegisterDialectHandler("postgres", handler)
	database.RegisterDialectHandler("cloudsqlpostgres", handler)
}
