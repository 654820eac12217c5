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

	"github.com/spf13/cobra"

	"odcspipeline/internal/mapping"
)

// NewMapCommand returns the `odcspipeline map` command: matches a source
// schema onto a target schema and writes the resulting mapping document.
func NewMapCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map --source <schema.json> --target <schema.json>",
		Short: "Match a source schema onto a target schema",
	}

	cmd.Flags().String("source", "", "path to the source (inferred or refined) schema document")
	cmd.Flags().String("target", "", "path to the target ODCS schema document")
	cmd.Flags().String("output", "mapping.json", "path to write the resulting mapping document")
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("target")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		sourcePath, _ := cmd.Flags().GetString("source")
		targetPath, _ := cmd.Flags().GetString("target")
		outputPath, _ := cmd.Flags().GetString("output")

		sourceDoc, err := readJSONFile(sourcePath)
		if err != nil {
			return &ValidationError{Cause: fmt.Errorf("map: loading source schema: %w", err)}
		}
		targetDoc, err := readJSONFile(targetPath)
		if err != nil {
			return &ValidationError{Cause: fmt.Errorf("map: loading target schema: %w", err)}
		}

		sourceFields := mapping.Flatten(sourceDoc)
		targetFields := mapping.Flatten(targetDoc)

		result := mapping.Match(sourceFields, targetFields, mapping.DefaultConfig())

		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return &RuntimeError{Cause: err}
		}
		if err := os.WriteFile(outputPath, data, 0o600); err != nil {
			return &RuntimeError{Cause: err}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "compatibility score: %.2f\n", result.CompatibilityScore)
		fmt.Fprintf(out, "direct: %d, transforms: %d, gaps: %d, extras: %d\n",
			result.Stats.DirectCount, result.Stats.TransformCount, result.Stats.GapCount, result.Stats.ExtraCount)
		fmt.Fprintf(out, "wrote mapping to %s\n", outputPath)
		return nil
	}

	return cmd
}
