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

	"github.com/spf13/cobra"

	"odcspipeline/internal/ingest"
	"odcspipeline/internal/staging"
	"odcspipeline/internal/types"
	"odcspipeline/pkg/logging"
)

// NewStagingCommand returns the `odcspipeline staging` command group.
func NewStagingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staging",
		Short: "Manage the durable staging store",
	}

	cmd.PersistentFlags().String("backend", "sqlite", "staging backend: sqlite or postgres")

	cmd.AddCommand(newStagingInitCommand())
	cmd.AddCommand(newStagingIngestCommand())
	cmd.AddCommand(newStagingListBatchesCommand())
	cmd.AddCommand(newStagingQueryCommand())
	cmd.AddCommand(newStagingSampleCommand())

	return cmd
}

func openStagingStore(cmd *cobra.Command, database string) (*staging.Store, error) {
	backendID, _ := cmd.Flags().GetString("backend")
	store, err := staging.Open(cmd.Context(), backendID, database)
	if err != nil {
		return nil, &ValidationError{Cause: err}
	}
	return store, nil
}

func newStagingInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the staging schema if it does not already exist",
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

			if err := store.Init(cmd.Context()); err != nil {
				return &RuntimeError{Cause: err}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "initialised staging store at %s\n", flags.Database)
			return nil
		},
	}
}

func newStagingIngestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <source>",
		Short: "Ingest JSON/JSONL files under source into the staging store",
		Args:  cobra.ExactArgs(1),
	}

	cmd.Flags().String("pattern", "", "glob pattern restricting which files are ingested")
	cmd.Flags().String("partition", "", "partition key recorded with each staged record")
	cmd.Flags().String("dedup", "by_path", "dedup strategy: none, by_path, by_content, both")
	cmd.Flags().Int("batch-size", 500, "records per staging-store insert batch")
	cmd.Flags().Int("workers", 0, "parallel file-hash workers (0 = GOMAXPROCS)")
	cmd.Flags().Bool("resume", false, "resume the most recent interrupted batch for this source")

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

		if err := store.Init(cmd.Context()); err != nil {
			return &RuntimeError{Cause: err}
		}

		pattern, _ := cmd.Flags().GetString("pattern")
		partition, _ := cmd.Flags().GetString("partition")
		dedup, _ := cmd.Flags().GetString("dedup")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		workers, _ := cmd.Flags().GetInt("workers")
		resume, _ := cmd.Flags().GetBool("resume")

		logger := logging.NewLogger(flags.Verbose)
		engine := ingest.NewEngine(store, logger)
		engine.Workers = workers

		stats, err := engine.Run(cmd.Context(), ingest.Config{
			Source:    args[0],
			Pattern:   pattern,
			Partition: partition,
			Dedup:     types.DedupStrategy(dedup),
			BatchSize: batchSize,
			Resume:    resume,
		})
		if err != nil {
			return &RuntimeError{Cause: err}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "files processed: %d, skipped: %d\n", stats.FilesProcessed, stats.FilesSkipped)
		fmt.Fprintf(out, "records ingested: %d\n", stats.RecordsIngested)
		if stats.ErrorsCount > 0 {
			fmt.Fprintf(out, "parse errors: %d\n", stats.ErrorsCount)
		}
		return nil
	}

	return cmd
}

func newStagingSampleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Print a sample of raw staged records as newline-delimited JSON",
	}

	cmd.Flags().Int("limit", 20, "maximum number of records to print")
	cmd.Flags().String("partition", "", "restrict the sample to one partition key")

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

		limit, _ := cmd.Flags().GetInt("limit")
		partition, _ := cmd.Flags().GetString("partition")

		raws, err := store.GetSample(cmd.Context(), limit, partition)
		if err != nil {
			return &RuntimeError{Cause: err}
		}

		out := cmd.OutOrStdout()
		for _, raw := range raws {
			fmt.Fprintln(out, raw)
		}
		return nil
	}

	return cmd
}

func newStagingQueryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a read-only SQL query against the staging store",
		Args:  cobra.ExactArgs(1),
	}

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

		rows, err := store.Query(cmd.Context(), args[0])
		if err != nil {
			return &RuntimeError{Cause: err}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				return &RuntimeError{Cause: err}
			}
		}
		return nil
	}

	return cmd
}

func newStagingListBatchesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-batches",
		Short: "List ingestion batches recorded in the staging store",
	}

	cmd.Flags().Int("limit", 50, "maximum number of batches to list")

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

		limit, _ := cmd.Flags().GetInt("limit")
		batches, err := store.ListBatches(cmd.Context(), limit)
		if err != nil {
			return &RuntimeError{Cause: err}
		}

		out := cmd.OutOrStdout()
		for _, b := range batches {
			fmt.Fprintf(out, "%s  %-10s  %s  files=%d/%d  records=%d  errors=%d\n",
				b.ID, b.Status, b.SourcePath, b.FilesProcessed, b.FilesTotal, b.RecordsIngested, b.ErrorsCount)
		}
		return nil
	}

	return cmd
}
