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

	"odcspipeline/internal/llm"
	"odcspipeline/internal/types"
)

// NewValidateCommand returns the `odcspipeline validate <format>` command.
//
// format selects which pipeline artifact to validate: "schema" checks the
// refined schema against the original under the additive-only rule, and
// "mapping" checks the schema mapping for required target fields that are
// still unmapped and lack a default value.
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <format>",
		Short: "Validate a pipeline artifact (schema or mapping)",
		Args:  cobra.ExactArgs(1),
	}

	cmd.Flags().String("output-dir", ".", "directory containing pipeline artifacts")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		outputDir, _ := cmd.Flags().GetString("output-dir")

		switch args[0] {
		case "schema":
			return validateSchemaArtifact(cmd, outputDir)
		case "mapping":
			return validateMappingArtifact(cmd, outputDir)
		default:
			return &ValidationError{Cause: fmt.Errorf("validate: unknown format %q; available: schema, mapping", args[0])}
		}
	}

	return cmd
}

func validateSchemaArtifact(cmd *cobra.Command, outputDir string) error {
	original, err := readJSONFile(filepath.Join(outputDir, "schema.json"))
	if err != nil {
		return &ValidationError{Cause: fmt.Errorf("validate: loading schema.json: %w", err)}
	}
	refined, err := readJSONFile(filepath.Join(outputDir, "refined_schema.json"))
	if err != nil {
		return &ValidationError{Cause: fmt.Errorf("validate: loading refined_schema.json: %w", err)}
	}

	result, err := llm.ValidateRefinement(original, refined)
	out := cmd.OutOrStdout()
	for _, w := range result.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	if err != nil {
		for _, e := range result.Errors {
			fmt.Fprintf(out, "error: %s\n", e.Error())
		}
		return &ValidationError{Cause: fmt.Errorf("validate: refined schema is not additive")}
	}

	fmt.Fprintln(out, "schema valid: refined schema is additive over the original")
	return nil
}

func validateMappingArtifact(cmd *cobra.Command, outputDir string) error {
	doc, err := readJSONFile(filepath.Join(outputDir, "mapping.json"))
	if err != nil {
		return &ValidationError{Cause: fmt.Errorf("validate: loading mapping.json: %w", err)}
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return &ValidationError{Cause: err}
	}
	var m types.SchemaMapping
	if err := json.Unmarshal(b, &m); err != nil {
		return &ValidationError{Cause: fmt.Errorf("validate: parsing mapping.json: %w", err)}
	}

	out := cmd.OutOrStdout()
	var unresolved int
	for _, g := range m.Gaps {
		if g.Required && g.SuggestedDefault == nil {
			fmt.Fprintf(out, "error: required field %q has no mapping and no default\n", g.TargetPath)
			unresolved++
		}
	}
	if unresolved > 0 {
		return &ValidationError{Cause: fmt.Errorf("validate: %d required field(s) unresolved", unresolved)}
	}

	fmt.Fprintln(out, "mapping valid: every required field is mapped or has a default")
	return nil
}

func readJSONFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v map[string]any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
