// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"odcspipeline/internal/mapping"
	"odcspipeline/internal/types"
)

// NewTransformCommand returns the `odcspipeline transform` command: renders
// a mapping document into one or more executable transform scripts.
func NewTransformCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transform --mapping <mapping.json>",
		Short: "Generate transform scripts from a mapping document",
	}

	cmd.Flags().String("mapping", "mapping.json", "path to a mapping document produced by map")
	cmd.Flags().String("output-dir", ".", "directory to write generated scripts into")
	cmd.Flags().String("format", "all", "sql, jq, python, dataframe, or all")
	cmd.Flags().String("source-table", "staged_records", "source table/relation name used by the sql and dataframe generators")
	cmd.Flags().String("target-table", "target", "target table name used by the sql generator")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		mappingPath, _ := cmd.Flags().GetString("mapping")
		outputDir, _ := cmd.Flags().GetString("output-dir")
		format, _ := cmd.Flags().GetString("format")
		sourceTable, _ := cmd.Flags().GetString("source-table")
		targetTable, _ := cmd.Flags().GetString("target-table")

		doc, err := readJSONFile(mappingPath)
		if err != nil {
			return &ValidationError{Cause: fmt.Errorf("transform: loading mapping: %w", err)}
		}
		b, err := json.Marshal(doc)
		if err != nil {
			return &RuntimeError{Cause: err}
		}
		var m types.SchemaMapping
		if err := json.Unmarshal(b, &m); err != nil {
			return &ValidationError{Cause: fmt.Errorf("transform: parsing mapping: %w", err)}
		}

		generators := map[string]func() string{
			"sql":       func() string { return mapping.GenerateSQL(m, sourceTable, targetTable) },
			"jq":        func() string { return mapping.GenerateJQ(m) },
			"python":    func() string { return mapping.GenerateScript(m) },
			"dataframe": func() string { return mapping.GenerateDataframe(m, sourceTable) },
		}
		extensions := map[string]string{
			"sql": "transform.sql", "jq": "transform.jq", "python": "transform.py", "dataframe": "transform_df.py",
		}

		selected := []string{format}
		if format == "all" {
			selected = []string{"sql", "jq", "python", "dataframe"}
		}

		out := cmd.OutOrStdout()
		for _, kind := range selected {
			gen, ok := generators[kind]
			if !ok {
				return &ValidationError{Cause: fmt.Errorf("transform: unknown format %q", kind)}
			}
			path := filepath.Join(outputDir, extensions[kind])
			if err := os.WriteFile(path, []byte(gen()), 0o600); err != nil {
				return &RuntimeError{Cause: err}
			}
			fmt.Fprintf(out, "wrote %s\n", path)
		}
		return nil
	}

	return cmd
}
