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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GoogleCloudPlatform/geonames-loader/internal/database"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/geonames"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/loader"
)

func (a *app) printSQLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "print-sql",
		Short:   "Print the upsert statement generated for a dataset",
		Long:    `Prints the parameterized upsert statement the loader executes for every line of the dataset, in the selected dialect. No database connection is made.`,
		Example: `./geonames_loader print-sql --dialect sqlserver --dataset alternate-names --table dbo.ALTERNATE_NAMES`,
		RunE:    a.runPrintSQL,
	}
	cmd.Flags().String("dataset", geonames.GeonamesSchema.Name, "Dataset: geonames or alternate-names")
	cmd.Flags().String("table", "", "Target table (overrides the configured table)")
	cmd.Flags().StringP("out_file", "o", "", "File path to save the statement to (optional, defaults to stdout)")
	return cmd
}

func (a *app) runPrintSQL(cmd *cobra.Command, args []string) error {
	if a.cfg == nil {
		return fmt.Errorf("config is not initialized")
	}
	cfg := a.cfg

	dataset, _ := cmd.Flags().GetString("dataset")
	schema, err := geonames.SchemaByName(dataset)
	if err != nil {
		return err
	}

	table := cfg.Import.GeonamesTable
	if schema == geonames.AlternateNamesSchema {
		table = cfg.Import.AlternateNamesTable
	}
	if cmd.Flags().Changed("table") {
		table, _ = cmd.Flags().GetString("table")
	}

	handler, err := database.GetDialectHandler(cfg.Database.Dialect)
	if err != nil {
		return err
	}
	stmt, err := loader.UpsertStatement(handler, schema, table)
	if err != nil {
		return err
	}

	outputFile, _ := cmd.Flags().GetString("out_file")
	if outputFile == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "%s;\n", stmt)
		return nil
	}
	if err := os.WriteFile(outputFile, []byte(stmt+";\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write statement to file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Statement written to: %s\n", outputFile)
	return nil
}
