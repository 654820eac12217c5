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

	"odcspipeline/internal/inference"
)

// NewInferenceCommand returns the `odcspipeline inference` command group.
func NewInferenceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inference",
		Short: "Infer JSON schemas from staged records",
	}

	cmd.PersistentFlags().String("backend", "sqlite", "staging backend: sqlite or postgres")

	cmd.AddCommand(newInferenceInferCommand())
	cmd.AddCommand(newInferenceSchemasCommand())

	return cmd
}

func newInferenceInferCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Build an inferred schema from a sample of staged records",
	}

	cmd.Flags().Int("sample-size", 0, "records to sample (0 = use the default)")
	cmd.Flags().String("partition", "", "restrict sampling to one partition key")
	cmd.Flags().String("output", "", "write the schema document to this path instead of stdout")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		flags, err := ResolveFlags(cmd, nil)
		if err != nil {
			return &ValidationError{Cause: err}
		}

		store, err := openStagingStore(cmd, flags.Database)
		if err != nil {
			return err
		}
		defer store.Close()

		sampleSize, _ := cmd.Flags().GetInt("sample-size")
		if sampleSize <= 0 {
			sampleSize = inference.DefaultConfig().SampleSize
		}
		partition, _ := cmd.Flags().GetString("partition")

		raws, err := store.GetSample(cmd.Context(), sampleSize, partition)
		if err != nil {
			return &RuntimeError{Cause: err}
		}

		inf := inference.New(inference.DefaultConfig())
		for _, raw := range raws {
			if err := inf.Add(raw); err != nil {
				continue
			}
		}

		schema := inf.Build()
		schema.Partition = partition
		doc := inference.ExportJSONSchema(schema)

		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return &RuntimeError{Cause: err}
		}

		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		if err := os.WriteFile(output, data, 0o600); err != nil {
			return &RuntimeError{Cause: err}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote schema to %s\n", output)
		return nil
	}

	return cmd
}

func newInferenceSchemasCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schemas",
		Short: "List partitions available for inference, with their record counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags, err := ResolveFlags(cmd, nil)
			if err != nil {
				return &ValidationError{Cause: err}
			}

			store, err := openStagingStore(cmd, flags.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.PartitionStats(cmd.Context())
			if err != nil {
				return &RuntimeError{Cause: err}
			}

			out := cmd.OutOrStdout()
			for _, s := range stats {
				partition := s.Partition
				if partition == "" {
					partition = "(default)"
				}
				fmt.Fprintf(out, "%-24s %d records\n", partition, s.Count)
			}
			return nil
		},
	}
}
