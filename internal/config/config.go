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
package config

import (
	"fmt"
	"strings"
	"time"
)

// SupportedDialects lists every dialect name accepted by --dialect.
var SupportedDialects = []string{
	"postgres", "cloudsqlpostgres",
	"mysql", "cloudsqlmysql",
	"sqlserver", "cloudsqlsqlserver",
	"sqlite",
	"hana",
}

// Config holds all configuration for the application
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Import   ImportConfig   `mapstructure:"import"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Dialect                        string `mapstructure:"dialect"`
	Host                           string `mapstructure:"host"`
	Port                           int    `mapstructure:"port"`
	User                           string `mapstructure:"user"`
	Password                       string `mapstructure:"password"`
	DBName                         string `mapstructure:"name"` // file path for sqlite
	SSLMode                        string `mapstructure:"sslmode"`
	CloudSQLInstanceConnectionName string `mapstructure:"cloudsql_instance_connection_name"`
	UsePrivateIP                   bool   `mapstructure:"cloudsql_use_private_ip"`
}

// ImportConfig controls how a source file is turned into upserts.
type ImportConfig struct {
	// GeonamesTable receives rows of the per-country geonames dumps.
	GeonamesTable string `mapstructure:"geonames_table"`
	// AlternateNamesTable has no default; loading alternate names fails until it is set.
	AlternateNamesTable string `mapstructure:"alternate_names_table"`

	// BatchSize of 1 writes every row on its own; larger values commit rows in transactions of that size.
	BatchSize           int    `mapstructure:"batch_size"`
	MaxLineSize         int    `mapstructure:"max_line_size"`
	Encoding            string `mapstructure:"encoding"`
	FailFast            bool   `mapstructure:"fail_fast"`
	MaxReportedFailures int    `mapstructure:"max_reported_failures"`

	Retry RetryConfig `mapstructure:"retry"`
}

// RetryConfig configures per-statement retries against the database.
type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig selects where run summaries are reported.
type MetricsConfig struct {
	Backend string   `mapstructure:"backend"` // none or datadog
	Tags    []string `mapstructure:"tags"`
}

// Default returns the configuration used when nothing is overridden by file, env or flags.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Dialect: "postgres",
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		Import: ImportConfig{
			GeonamesTable:       "ORG_GEONAMES_GEONAMES",
			AlternateNamesTable: "",
			BatchSize:           1,
			MaxLineSize:         1024 * 1024,
			Encoding:            "utf-8",
			MaxReportedFailures: 100,
			Retry: RetryConfig{
				MaxAttempts:       3,
				InitialBackoff:    100 * time.Millisecond,
				MaxBackoff:        2 * time.Second,
				BackoffMultiplier: 2.0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Backend: "none",
		},
	}
}

// IsCloudSQL reports whether the dialect connects through the Cloud SQL connector.
func (c DatabaseConfig) IsCloudSQL() bool {
	return strings.HasPrefix(c.Dialect, "cloudsql")
}

// Validate checks the whole configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if !isSupportedDialect(c.Database.Dialect) {
		errs = append(errs, fmt.Sprintf("unsupported dialect: %q (only %s are supported)",
			c.Database.Dialect, strings.Join(SupportedDialects, ", ")))
	}

	switch {
	case c.Database.Dialect == "sqlite":
		if c.Database.DBName == "" {
			errs = append(errs, "database name (sqlite file path) is required")
		}
	case c.Database.IsCloudSQL():
		if c.Database.CloudSQLInstanceConnectionName == "" {
			errs = append(errs, "cloudsql instance connection name is required for Cloud SQL dialects")
		}
	default:
		if c.Database.Host == "" {
			errs = append(errs, "database host is required")
		}
		if c.Database.Port < 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database port (%d) must be 0-65535", c.Database.Port))
		}
	}

	if c.Import.BatchSize < 1 {
		errs = append(errs, fmt.Sprintf("batch size (%d) must be at least 1", c.Import.BatchSize))
	}
	if c.Import.MaxLineSize < 1024 {
		errs = append(errs, fmt.Sprintf("max line size (%d) must be at least 1024 bytes", c.Import.MaxLineSize))
	}
	if c.Import.MaxReportedFailures < 0 {
		errs = append(errs, "max reported failures must be non-negative")
	}
	if c.Import.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry max attempts must be at least 1")
	}
	if c.Import.Retry.InitialBackoff < 0 || c.Import.Retry.MaxBackoff < 0 {
		errs = append(errs, "retry backoff durations must be non-negative")
	}
	if c.Import.Retry.BackoffMultiplier < 1 {
		errs = append(errs, "retry backoff multiplier must be >= 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("log level (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("log format (%q) must be one of: console, json", c.Logging.Format))
	}

	switch strings.ToLower(c.Metrics.Backend) {
	case "", "none", "datadog":
	default:
		errs = append(errs, fmt.Sprintf("metrics backend (%q) must be one of: none, datadog", c.Metrics.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// String returns a representation safe for logs; the password is masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Database: {Dialect: %q, Host: %q, Port: %d, User: %q, Password: [MASKED], Name: %q}, ",
		c.Database.Dialect, c.Database.Host, c.Database.Port, c.Database.User, c.Database.DBName))
	b.WriteString(fmt.Sprintf("Import: {GeonamesTable: %q, AlternateNamesTable: %q, BatchSize: %d, Encoding: %q}, ",
		c.Import.GeonamesTable, c.Import.AlternateNamesTable, c.Import.BatchSize, c.Import.Encoding))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}, ", c.Logging.Level, c.Logging.Format))
	b.WriteString(fmt.Sprintf("Metrics: {Backend: %q}", c.Metrics.Backend))
	b.WriteString("}")
	return b.String()
}

func isSupportedDialect(dialect string) bool {
	for _, d := range SupportedDialects {
		if d == dialect {
			return true
		}
	}
	return false
}
