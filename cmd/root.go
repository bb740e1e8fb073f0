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
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/geonames-loader/internal/config"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/database"
	_ "github.com/GoogleCloudPlatform/geonames-loader/internal/database/hana"
	_ "github.com/GoogleCloudPlatform/geonames-loader/internal/database/mysql"
	_ "github.com/GoogleCloudPlatform/geonames-loader/internal/database/postgres"
	_ "github.com/GoogleCloudPlatform/geonames-loader/internal/database/sqlite"
	_ "github.com/GoogleCloudPlatform/geonames-loader/internal/database/sqlserver"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/logging"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/metrics"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/metrics/datadog"
)

// app holds the state of one command tree: flags, the viper instance they are bound
// to and what initFlagsAndConfig loads from them.
type app struct {
	v       *viper.Viper
	cfgFile string
	dryRun  bool

	cfg    *config.Config
	logger *zap.Logger
}

func newApp() *app {
	return &app{v: config.NewViper(), logger: zap.NewNop()}
}

// rootCmd builds the command tree. Every call returns fresh commands and flags.
func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "geonames_loader",
		Short: "Load GeoNames dump files into a relational database",
		Long: `geonames_loader streams the tab-delimited GeoNames dumps (per-country files,
allCountries.txt and alternateNamesV2.txt) into a database table, inserting new
rows and updating existing ones by primary key.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.initFlagsAndConfig,
	}

	d := config.Default()
	pf := root.PersistentFlags()

	pf.StringVar(&a.cfgFile, "config", "", "Config file (yaml, toml or json)")
	pf.BoolVar(&a.dryRun, "dry-run", false, "Write the generated statements to --out_file instead of the database")

	// Database connection flags
	pf.String("dialect", d.Database.Dialect, fmt.Sprintf("Database dialect (%s)", strings.Join(config.SupportedDialects, ", ")))
	pf.String("host", d.Database.Host, "Database host")
	pf.Int("port", d.Database.Port, "Database port")
	pf.String("username", "", "Database username")
	pf.String("password", "", "Database password")
	pf.String("database", "", "Database name (file path for sqlite)")
	pf.String("cloudsql-instance-connection-name", "", "Cloud SQL instance connection name (for Cloud SQL dialects)")
	pf.Bool("cloudsql-use-private-ip", false, "Use private IP for Cloud SQL connection (Cloud SQL)")

	pf.String("log-level", d.Logging.Level, "Log level (debug, info, warn, error)")
	pf.String("log-format", d.Logging.Format, "Log format (console or json)")
	pf.String("metrics", d.Metrics.Backend, "Metrics backend (none or datadog)")

	for key, flag := range map[string]string{
		"database.dialect":  "dialect",
		"database.host":     "host",
		"database.port":     "port",
		"database.user":     "username",
		"database.password": "password",
		"database.name":     "database",
		"database.cloudsql_instance_connection_name": "cloudsql-instance-connection-name",
		"database.cloudsql_use_private_ip":           "cloudsql-use-private-ip",
		"logging.level":   "log-level",
		"logging.format":  "log-format",
		"metrics.backend": "metrics",
	} {
		if err := a.v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	// Add subcommands
	root.AddCommand(a.loadGeonamesCmd())
	root.AddCommand(a.loadAlternateNamesCmd())
	root.AddCommand(a.printSQLCmd())
	return root
}

// initFlagsAndConfig loads .env, the optional config file, environment and flags
// into cfg and sets up the logger.
func (a *app) initFlagsAndConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	loaded, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	l, err := logging.New(loaded.Logging.Level, loaded.Logging.Format)
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(l)

	a.cfg = loaded
	a.logger = l
	a.logger.Debug("configuration loaded", zap.Stringer("config", a.cfg))
	return nil
}

func (a *app) setupDatabase(ctx context.Context) (*database.DB, error) {
	if a.cfg == nil {
		return nil, fmt.Errorf("config is not initialized")
	}
	db, err := database.New(ctx, a.cfg.Database)
	if err != nil {
		a.logger.Error("failed to connect to database", zap.String("dialect", a.cfg.Database.Dialect), zap.Error(err))
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	dbCfg := db.GetConfig()
	a.logger.Info("connected to database",
		zap.String("dialect", dbCfg.Dialect),
		zap.String("host", dbCfg.Host),
		zap.String("database", dbCfg.DBName))
	return db, nil
}

func newReporter(mc config.MetricsConfig) metrics.Reporter {
	switch strings.ToLower(mc.Backend) {
	case "datadog":
		return datadog.New(datadog.Options{Tags: mc.Tags})
	default:
		return metrics.Nop{}
	}
}

// Execute runs the root command. SIGINT and SIGTERM cancel the running load.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a := newApp()
	defer func() { _ = a.logger.Sync() }()
	return a.rootCmd().ExecuteContext(ctx)
}
