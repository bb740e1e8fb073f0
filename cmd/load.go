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
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/geonames-loader/internal/config"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/database"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/geonames"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/loader"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/utils"
)

type loadFunc func(s *loader.Service, ctx context.Context, entry io.Reader, countryCode, path, etag string) (loader.Summary, error)

func (a *app) loadGeonamesCmd() *cobra.Command {
	return a.newLoadCmd(geonames.GeonamesSchema, (*loader.Service).LoadGeonames, &cobra.Command{
		Use:   "load-geonames",
		Short: "Load a per-country or allCountries dump",
		Long: `Reads a GeoNames dump (e.g. US.zip, US.txt or allCountries.zip), keeps the columns
the geonames table stores and upserts every line keyed on GeonameId.`,
		Example: `./geonames_loader load-geonames --dialect postgres --host localhost --port 5432 --username user --password pass --database geo --file ./US.zip`,
	})
}

func (a *app) loadAlternateNamesCmd() *cobra.Command {
	return a.newLoadCmd(geonames.AlternateNamesSchema, (*loader.Service).LoadAlternateNames, &cobra.Command{
		Use:   "load-alternate-names",
		Short: "Load alternateNamesV2.txt",
		Long: `Reads alternateNamesV2 and upserts every line keyed on AlternateNameId. The target table
has no default and must be set with --table or import.alternate_names_table.`,
		Example: `./geonames_loader load-alternate-names --dialect sqlite --database ./geo.db --file ./alternateNamesV2.zip --entry alternateNamesV2.txt --table ALTERNATE_NAMES`,
	})
}

// loadFlags are the per-command flags of the load commands. Unset flags fall back to the
// import section of the configuration.
type loadFlags struct {
	file        string
	entry       string
	countryCode string
	etag        string
	table       string
	encoding    string
	outFile     string
	batchSize   int
	failFast    bool
}

func (a *app) newLoadCmd(schema *geonames.Schema, load loadFunc, cmd *cobra.Command) *cobra.Command {
	f := &loadFlags{}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return a.runLoad(cmd, schema, load, f)
	}

	d := config.Default().Import
	fl := cmd.Flags()
	fl.StringVarP(&f.file, "file", "f", "", "Dump file to load: .txt, .zip or - for stdin - MANDATORY")
	fl.StringVar(&f.entry, "entry", "", "Entry to read from a zip archive (default: its only data file)")
	fl.StringVar(&f.countryCode, "country-code", "", "Country code recorded for the run (default: derived from the file name)")
	fl.StringVar(&f.etag, "etag", "", "ETag of the downloaded file, recorded for the run")
	fl.StringVar(&f.table, "table", "", "Target table (overrides the configured table)")
	fl.StringVar(&f.encoding, "encoding", d.Encoding, "Character encoding of the input")
	fl.IntVar(&f.batchSize, "batch-size", d.BatchSize, "Rows per transaction; 1 writes each row on its own")
	fl.BoolVar(&f.failFast, "fail-fast", false, "Stop at the first malformed or failed line")
	fl.StringVarP(&f.outFile, "out_file", "o", "", "File to write statements to in dry-run mode (optional, defaults to <dataset>_dry_run.sql)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// importConfig applies the flags the user set on top of the configured import section.
func (f *loadFlags) importConfig(cmd *cobra.Command, schema *geonames.Schema, base config.ImportConfig) config.ImportConfig {
	imp := base
	fl := cmd.Flags()
	if fl.Changed("table") {
		if schema == geonames.AlternateNamesSchema {
			imp.AlternateNamesTable = f.table
		} else {
			imp.GeonamesTable = f.table
		}
	}
	if fl.Changed("encoding") {
		imp.Encoding = f.encoding
	}
	if fl.Changed("batch-size") {
		imp.BatchSize = f.batchSize
	}
	if fl.Changed("fail-fast") {
		imp.FailFast = f.failFast
	}
	return imp
}

func (a *app) runLoad(cmd *cobra.Command, schema *geonames.Schema, load loadFunc, f *loadFlags) error {
	if a.cfg == nil {
		return fmt.Errorf("config is not initialized")
	}
	merged := *a.cfg
	merged.Import = f.importConfig(cmd, schema, a.cfg.Import)
	if err := merged.Validate(); err != nil {
		return err
	}

	in, err := utils.OpenInput(f.file, f.entry)
	if err != nil {
		return err
	}
	defer in.Close()

	countryCode := f.countryCode
	if countryCode == "" && schema == geonames.GeonamesSchema {
		countryCode = utils.CountryFromPath(f.file)
	}

	reporter := newReporter(merged.Metrics)
	defer reporter.Close()

	opts := []loader.Option{loader.WithLogger(a.logger), loader.WithReporter(reporter)}
	ctx := cmd.Context()

	a.logger.Info("starting load",
		zap.String("command", cmd.Name()),
		zap.String("dialect", merged.Database.Dialect),
		zap.String("file", in.Path),
		zap.Bool("dry_run", a.dryRun))

	var svc *loader.Service
	if a.dryRun {
		handler, err := database.GetDialectHandler(merged.Database.Dialect)
		if err != nil {
			return err
		}
		outputFile := f.outFile
		if outputFile == "" {
			outputFile = utils.GetDefaultOutputFilePath(schema.Name, cmd.Name())
		}
		out, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer out.Close()
		svc = loader.NewDryRunService(out, handler, merged.Import, opts...)
		defer fmt.Fprintf(cmd.OutOrStdout(), "Statements written to: %s\n", outputFile)
	} else {
		db, err := a.setupDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		svc = loader.NewService(db, db.Handler, merged.Import, opts...)
	}

	summary, err := load(svc, ctx, in, countryCode, in.Path, f.etag)
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d lines, %d upserted, %d skipped, %d malformed, %d failed in %s\n",
		summary.Dataset, summary.Lines, summary.Upserted, summary.Skipped, summary.Malformed, summary.Failed,
		summary.Duration.Round(time.Millisecond))
	if summary.Replaced > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d lines held bytes invalid in encoding %q and were altered\n",
			summary.Replaced, merged.Import.Encoding)
	}
	for _, rf := range summary.Failures {
		fmt.Fprintf(cmd.ErrOrStderr(), "  line %d: %v\n", rf.Line, rf.Err)
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", cmd.Name(), err)
	}
	return nil
}
