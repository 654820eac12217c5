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
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"odcspipeline/internal/llm"
	"odcspipeline/internal/pipeline"
	"odcspipeline/internal/types"
	"odcspipeline/pkg/config"
	"odcspipeline/pkg/logging"
)

// NewPipelineCommand returns the `odcspipeline pipeline` command group.
func NewPipelineCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run the end-to-end ingest/infer/refine/map/export/generate pipeline",
	}

	cmd.AddCommand(newPipelineRunCommand())

	return cmd
}

func newPipelineRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run (or resume) the pipeline against the configured source and staging store",
	}

	cmd.Flags().String("backend", "sqlite", "staging backend: sqlite or postgres")
	cmd.Flags().String("source", "", "path or glob root to ingest from")
	cmd.Flags().String("pattern", "", "glob pattern restricting which files are ingested")
	cmd.Flags().String("partition", "", "partition key applied throughout the run")
	cmd.Flags().String("output-dir", ".", "directory pipeline artifacts are written to")
	cmd.Flags().String("target-schema", "", "path to the target ODCS schema document, required for the map stage")
	cmd.Flags().StringSlice("stages", nil, "stages to run, in order (default: the full DAG)")
	cmd.Flags().String("dedup", "by_path", "dedup strategy: none, by_path, by_content, both")
	cmd.Flags().Int("batch-size", 500, "records per staging-store insert batch")
	cmd.Flags().Int("workers", 0, "parallel file-hash workers (0 = GOMAXPROCS)")
	cmd.Flags().Int("sample-size", 0, "records to sample for inference (0 = use the default)")
	cmd.Flags().Bool("resume", false, "resume the in-progress run recorded in the checkpoint")
	cmd.Flags().Bool("dry-run", false, "validate inputs only, without running any stage")

	cmd.RunE = runPipeline

	return cmd
}

func runPipeline(cmd *cobra.Command, args []string) error {
	flags, err := ResolveFlags(cmd, nil)
	if err != nil {
		return &ValidationError{Cause: err}
	}

	cfgFile, err := loadOptionalConfig(flags.Config)
	if err != nil {
		return &ValidationError{Cause: err}
	}
	flags, err = ResolveFlags(cmd, cfgFile)
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

	source, _ := cmd.Flags().GetString("source")
	pattern, _ := cmd.Flags().GetString("pattern")
	partition, _ := cmd.Flags().GetString("partition")
	outputDir, _ := cmd.Flags().GetString("output-dir")
	targetSchema, _ := cmd.Flags().GetString("target-schema")
	stageNames, _ := cmd.Flags().GetStringSlice("stages")
	dedup, _ := cmd.Flags().GetString("dedup")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	workers, _ := cmd.Flags().GetInt("workers")
	sampleSize, _ := cmd.Flags().GetInt("sample-size")
	resume, _ := cmd.Flags().GetBool("resume")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if cfgFile != nil && cfgFile.Pipeline != nil {
		p := cfgFile.Pipeline
		if source == "" {
			source = p.Source
		}
		if pattern == "" {
			pattern = p.Pattern
		}
		if partition == "" {
			partition = p.Partition
		}
		if targetSchema == "" {
			targetSchema = p.TargetSchema
		}
		if outputDir == "." {
			outputDir = p.OutputDir
		}
	}
	if cfgFile != nil && cfgFile.Ingest != nil {
		if source == "" {
			source = cfgFile.Ingest.Source
		}
		if pattern == "" {
			pattern = cfgFile.Ingest.Pattern
		}
	}

	var stages []types.Stage
	for _, s := range stageNames {
		stages = append(stages, types.Stage(s))
	}

	client, err := resolveLLMClient(cfgFile)
	if err != nil {
		return &ValidationError{Cause: err}
	}

	runCfg := pipeline.Config{
		Source:       source,
		Pattern:      pattern,
		Partition:    partition,
		Database:     flags.Database,
		OutputDir:    outputDir,
		Stages:       stages,
		TargetSchema: targetSchema,
		DryRun:       dryRun,
		Resume:       resume,
		Dedup:        types.DedupStrategy(dedup),
		BatchSize:    batchSize,
		Workers:      workers,
		SampleSize:   sampleSize,
		LLM:          client,
	}
	if cfgFile != nil && cfgFile.LLM != nil {
		runCfg.RefinementConfig = llm.RefinementConfig{
			Documentation: cfgFile.LLM.DocumentationText,
			MaxSamples:    cfgFile.LLM.MaxSamples,
		}
	}

	logger := logging.NewLogger(flags.Verbose)
	orchestrator := pipeline.NewOrchestrator(store, logger)

	report, err := orchestrator.Run(cmd.Context(), runCfg)
	if err != nil {
		if resumeErr, ok := err.(*pipeline.ResumeError); ok {
			fmt.Fprintln(cmd.ErrOrStderr(), "hint: re-run without --resume to start fresh, or delete the checkpoint file")
			return resumeErr
		}
		return &RuntimeError{Cause: err}
	}

	printReport(cmd, report)
	return nil
}

func resolveLLMClient(cfgFile *config.Config) (llm.Client, error) {
	if cfgFile == nil || cfgFile.LLM == nil || !cfgFile.LLM.Enabled() {
		return nil, nil
	}
	return llm.Get(cfgFile.LLM.Mode, cfgFile.LLM.ProviderConfig())
}

func printReport(cmd *cobra.Command, report *types.PipelineReport) {
	out := cmd.OutOrStdout()

	statusColor := color.New(color.FgGreen)
	if !report.IsSuccess() {
		statusColor = color.New(color.FgRed)
	}
	statusColor.Fprintf(out, "run %s: %s\n", report.RunID, report.Status)
	fmt.Fprintf(out, "stages completed: %d, duration: %s\n", report.StagesCompleted, report.DurationFormatted())

	for _, stage := range types.DefaultStages {
		output, ok := report.Outputs[stage]
		if !ok {
			continue
		}
		switch {
		case output.Skipped:
			color.New(color.FgYellow).Fprintf(out, "  - %-10s skipped (%s)\n", stage, output.Reason)
		case output.Success:
			color.New(color.FgGreen).Fprintf(out, "  - %-10s ok (%dms)\n", stage, output.DurationMs)
		default:
			color.New(color.FgRed).Fprintf(out, "  - %-10s failed\n", stage)
		}
	}
}
