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
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/geonames-loader/internal/config"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/database"
)

type mysqlHandler struct{}

var _ database.DialectHandler = (*mysqlHandler)(nil)

func (h mysqlHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	p, err := database.ResolveCloudSQLParams(cfg)
	if err != nil {
		return nil, err
	}

	d, err := cloudsqlconn.NewDialer(context.Background())
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn.NewDialer: %w", err)
	}

	var opts []cloudsqlconn.DialOption
	if p.UsePrivate {
		opts = append(opts, cloudsqlconn.WithPrivateIP())
	}

	network := fmt.Sprintf("cloudsql-%s", p.Instance)
	mysql.RegisterDialContext(network,
		func(ctx context.Context, addr string) (net.Conn, error) {
			conn, dialErr := d.Dial(ctx, p.Instance, opts...)
			if dialErr != nil {
				zap.L().Error("Cloud SQL dial failed", zap.String("instance", p.Instance), zap.Error(dialErr))
			}
			return conn, dialErr
		})

	mysqlCfg := newConfig(p.User, p.Password, network, p.Instance, p.DBName)
	dbPool, err := sql.Open("mysql", mysqlCfg.FormatDSN())
	if err != nil {
		mysql.DeregisterDialContext(network)
		d.Close()
		return nil, fmt.Errorf("sql.Open failed for CloudSQL MySQL: %w", err)
	}
	return dbPool, nil
}

func (h mysqlHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	mysqlCfg := newConfig(cfg.User, cfg.Password, "tcp", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), cfg.DBName)
	dbPool, err := sql.Open("mysql", mysqlCfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("sql.Open (standard mysql): %w", err)
	}
	return dbPool, nil
}

// newConfig returns the driver config used for both pool kinds. GeoNames names are
// full Unicode, hence utf8mb4.
func newConfig(user, pass, network, addr, dbName string) *mysql.Config {
	c := mysql.NewConfig()
	c.User = user
	c.Passwd = pass
	c.Net = network
	c.Addr = addr
	c.DBName = dbName
	c.AllowNativePasswords = true
	c.ParseTime = true
	c.Params = map[string]string{"charset": "utf8mb4"}
	return c
}

func (h mysqlHandler) QuoteIdentifier(name string) string {
	name = strings.ReplaceAll(name, "`", "``")
	return fmt.Sprintf("`%s`", name)
}

func (h mysqlHandler) Placeholder(int) string { return "?" }

// GenerateUpsertSQL builds INSERT ... ON DUPLICATE KEY UPDATE. With no non-key
// column the key is assigned to itself so the statement stays a no-op update.
func (h mysqlHandler) GenerateUpsertSQL(table string, columns, primaryKey []string) (string, error) {
	if err := database.ValidateUpsertInput(table, columns, primaryKey); err != nil {
		return "", err
	}

	updates := database.NonKeyColumns(columns, primaryKey)
	if len(updates) == 0 {
		updates = primaryKey[:1]
	}
	set := make([]string, len(updates))
	for i, c := range updates {
		q := h.QuoteIdentifier(c)
		set[i] = fmt.Sprintf("%s = VALUES(%s)", q, q)
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		database.QuoteQualified(h, table),
		database.QuoteList(h, "", columns),
		database.PlaceholderList(h, len(columns)),
		strings.Join(set, ", ")), nil
}

func init() {
	database.RegisterDialectHandler("mysql", mysqlHandler{})
	database.RegisterDialectHandler("cloudsqlmysql", mysqlHandler{})
}
