// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package cli wires together the odcspipeline root Cobra command and
// global CLI options.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"odcspipeline/internal/cli/commands"
)

// NewRootCommand constructs the odcspipeline root Cobra command, wiring
// every subcommand documented for the pipeline CLI.
func NewRootCommand() *cobra.Command {
	version := os.Getenv("ODCSPIPELINE_VERSION")
	if version == "" {
		version = "0.0.0-dev"
	}

	cmd := &cobra.Command{
		Use:           "odcspipeline",
		Short:         "odcspipeline – data-contract modelling pipeline",
		Long:          "odcspipeline ingests semi-structured records, infers and refines schemas, maps them onto target contracts, and generates executable transformation scripts.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags - registered in lexicographic order for deterministic help output.
	cmd.PersistentFlags().StringP("config", "c", "", "path to odcspipeline.yml")
	cmd.PersistentFlags().StringP("database", "d", "", "path to the staging database")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of odcspipeline",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "odcspipeline version %s\n", version)
		},
	})

	// Subcommands - kept in lexicographic order by .Use for deterministic help output.
	cmd.AddCommand(commands.NewInferenceCommand())
	cmd.AddCommand(commands.NewMapCommand())
	cmd.AddCommand(commands.NewPipelineCommand())
	cmd.AddCommand(commands.NewStagingCommand())
	cmd.AddCommand(commands.NewTransformCommand())
	cmd.AddCommand(commands.NewValidateCommand())

	return cmd
}
