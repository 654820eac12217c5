// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package pipeline orchestrates the fixed ingest/infer/refine/map/export/
// generate stage DAG against a checkpoint file, so a run can be resumed
// after an interruption.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"odcspipeline/internal/inference"
	"odcspipeline/internal/ingest"
	"odcspipeline/internal/llm"
	"odcspipeline/internal/mapping"
	"odcspipeline/internal/metrics"
	"odcspipeline/internal/staging"
	"odcspipeline/internal/types"
	"odcspipeline/pkg/logging"
)

// ResumeError is returned when --resume cannot proceed against whatever
// checkpoint is found on disk.
type ResumeError struct {
	Reason string
}

func (e *ResumeError) Error() string {
	return fmt.Sprintf("pipeline: cannot resume: %s", e.Reason)
}

// Config controls one orchestrated run.
type Config struct {
	Source       string
	Pattern      string
	Partition    string
	Database     string
	OutputDir    string
	Stages       []types.Stage
	TargetSchema string
	DryRun       bool
	Resume       bool

	Dedup      types.DedupStrategy
	BatchSize  int
	Workers    int
	SampleSize int

	LLM              llm.Client
	RefinementConfig llm.RefinementConfig
}

func (c *Config) effectiveStages() []types.Stage {
	if len(c.Stages) > 0 {
		return c.Stages
	}
	return types.DefaultStages
}

// checkpointPath returns the sibling checkpoint file for a staging database.
func checkpointPath(database string) string {
	return database + ".pipeline.checkpoint.json"
}

func configHash(cfg Config) string {
	h := sha256.New()
	h.Write([]byte(strings.Join([]string{cfg.Database, cfg.Source, cfg.Pattern, cfg.Partition}, "|")))
	return hex.EncodeToString(h.Sum(nil))
}

// Orchestrator runs pipeline stages against a staging store.
type Orchestrator struct {
	Store  *staging.Store
	Logger logging.Logger
}

// NewOrchestrator constructs an Orchestrator bound to store.
func NewOrchestrator(store *staging.Store, logger logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewLogger(false)
	}
	return &Orchestrator{Store: store, Logger: logger}
}

// loadCheckpoint reads the checkpoint file at path, returning (nil, nil) if
// it does not exist.
func loadCheckpoint(path string) (*types.PipelineCheckpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("pipeline: reading checkpoint: %w", err)
	}
	var cp types.PipelineCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("pipeline: parsing checkpoint: %w", err)
	}
	return &cp, nil
}

// saveCheckpoint persists cp atomically: write to a temp file in the same
// directory, then rename.
func saveCheckpoint(path string, cp *types.PipelineCheckpoint) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("pipeline: creating checkpoint directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("pipeline: marshaling checkpoint: %w", err)
	}

	tmp := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("pipeline: writing temporary checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("pipeline: renaming checkpoint: %w", err)
	}
	return nil
}

// Run executes cfg's stage DAG, persisting a checkpoint after every state
// transition, and returns the final report.
func (o *Orchestrator) Run(ctx context.Context, cfg Config) (*types.PipelineReport, error) {
	started := time.Now()
	cpPath := checkpointPath(cfg.Database)
	hash := configHash(cfg)

	cp, err := o.setupCheckpoint(cpPath, hash, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.DryRun {
		if err := o.validateDryRun(cfg); err != nil {
			cp.Status = types.RunFailed
			cp.Error = err.Error()
			cp.UpdatedAt = time.Now()
			_ = saveCheckpoint(cpPath, cp)
			return nil, err
		}
		o.Logger.Info("validation passed")
		cp.Status = types.RunCompleted
		cp.UpdatedAt = time.Now()
		if err := saveCheckpoint(cpPath, cp); err != nil {
			return nil, err
		}
		return o.report(cp, started), nil
	}

	for _, stage := range cfg.effectiveStages() {
		if cp.HasCompleted(stage) {
			continue
		}

		if reason, skip := skipReason(stage, cfg); skip {
			cp.StageOutputs[stage] = types.StageOutput{Skipped: true, Reason: reason}
			cp.CompletedStages = append(cp.CompletedStages, stage)
			cp.UpdatedAt = time.Now()
			if err := saveCheckpoint(cpPath, cp); err != nil {
				return nil, err
			}
			continue
		}

		cp.CurrentStage = stage
		cp.Status = types.RunRunning
		cp.UpdatedAt = time.Now()
		if err := saveCheckpoint(cpPath, cp); err != nil {
			return nil, err
		}

		stageStarted := time.Now()
		output, stageErr := o.runStage(ctx, stage, cfg)
		if stageErr != nil {
			cp.Status = types.RunFailed
			cp.Error = stageErr.Error()
			cp.UpdatedAt = time.Now()
			_ = saveCheckpoint(cpPath, cp)
			metrics.RecordRunStatus(string(cp.Status))
			return nil, fmt.Errorf("pipeline: stage %s: %w", stage, stageErr)
		}

		stageDuration := time.Since(stageStarted)
		output.DurationMs = stageDuration.Milliseconds()
		metrics.ObserveStageDuration(string(stage), stageDuration)
		cp.StageOutputs[stage] = *output
		cp.CompletedStages = append(cp.CompletedStages, stage)
		cp.CurrentStage = ""
		cp.UpdatedAt = time.Now()
		if err := saveCheckpoint(cpPath, cp); err != nil {
			return nil, err
		}
	}

	cp.Status = types.RunCompleted
	cp.UpdatedAt = time.Now()
	if err := saveCheckpoint(cpPath, cp); err != nil {
		return nil, err
	}
	metrics.RecordRunStatus(string(cp.Status))

	return o.report(cp, started), nil
}

func (o *Orchestrator) setupCheckpoint(cpPath, hash string, cfg Config) (*types.PipelineCheckpoint, error) {
	existing, err := loadCheckpoint(cpPath)
	if err != nil {
		return nil, err
	}

	if cfg.Resume && existing != nil {
		if existing.Status == types.RunCompleted {
			return nil, &ResumeError{Reason: "already completed"}
		}
		if existing.ConfigHash != hash {
			return nil, &ResumeError{Reason: "configuration changed"}
		}
		return existing, nil
	}

	now := time.Now()
	return &types.PipelineCheckpoint{
		RunID:           uuid.NewString(),
		ConfigHash:      hash,
		Status:          types.RunRunning,
		CompletedStages: nil,
		StageOutputs:    map[types.Stage]types.StageOutput{},
		StartedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (o *Orchestrator) report(cp *types.PipelineCheckpoint, started time.Time) *types.PipelineReport {
	return &types.PipelineReport{
		RunID:           cp.RunID,
		Status:          cp.Status,
		StagesCompleted: len(cp.CompletedStages),
		DurationMs:      time.Since(started).Milliseconds(),
		Outputs:         cp.StageOutputs,
	}
}

func (o *Orchestrator) validateDryRun(cfg Config) error {
	if cfg.Source != "" {
		if _, err := os.Stat(cfg.Source); err != nil {
			return fmt.Errorf("pipeline: source %q not accessible: %w", cfg.Source, err)
		}
	}
	if scheduledStage(cfg, types.StageMap) {
		if cfg.TargetSchema == "" {
			return fmt.Errorf("pipeline: map stage scheduled but no target_schema configured")
		}
		if _, err := os.Stat(cfg.TargetSchema); err != nil {
			return fmt.Errorf("pipeline: target schema %q not accessible: %w", cfg.TargetSchema, err)
		}
	}
	return nil
}

func scheduledStage(cfg Config, s types.Stage) bool {
	for _, st := range cfg.effectiveStages() {
		if st == s {
			return true
		}
	}
	return false
}

// skipReason implements the stage skip rules: Refine with no LLM client,
// Map with no target schema.
func skipReason(stage types.Stage, cfg Config) (string, bool) {
	switch stage {
	case types.StageRefine:
		if cfg.LLM == nil {
			return "no LLM provider configured", true
		}
	case types.StageMap:
		if cfg.TargetSchema == "" {
			return "no target schema configured", true
		}
	}
	return "", false
}

func (o *Orchestrator) runStage(ctx context.Context, stage types.Stage, cfg Config) (*types.StageOutput, error) {
	switch stage {
	case types.StageIngest:
		return o.runIngest(ctx, cfg)
	case types.StageInfer:
		return o.runInfer(ctx, cfg)
	case types.StageRefine:
		return o.runRefine(ctx, cfg)
	case types.StageMap:
		return o.runMap(ctx, cfg)
	case types.StageExport:
		return o.runExport(ctx, cfg)
	case types.StageGenerate:
		return o.runGenerate(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
}

func (o *Orchestrator) schemaPath(cfg Config) string {
	return filepath.Join(cfg.OutputDir, "schema.json")
}

func (o *Orchestrator) refinedSchemaPath(cfg Config) string {
	return filepath.Join(cfg.OutputDir, "refined_schema.json")
}

func (o *Orchestrator) mappingPath(cfg Config) string {
	return filepath.Join(cfg.OutputDir, "mapping.json")
}

func (o *Orchestrator) runIngest(ctx context.Context, cfg Config) (*types.StageOutput, error) {
	if cfg.Source == "" {
		return nil, fmt.Errorf("ingest: source not configured")
	}
	if _, err := os.Stat(cfg.Source); err != nil {
		return nil, fmt.Errorf("ingest: source %q not accessible: %w", cfg.Source, err)
	}

	engine := ingest.NewEngine(o.Store, o.Logger)
	engine.Workers = cfg.Workers

	stats, err := engine.Run(ctx, ingest.Config{
		Source:    cfg.Source,
		Pattern:   cfg.Pattern,
		Partition: cfg.Partition,
		Dedup:     cfg.Dedup,
		BatchSize: cfg.BatchSize,
		Resume:    cfg.Resume,
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordIngest(stats.RecordsIngested, stats.FilesSkipped, stats.ErrorsCount)

	return &types.StageOutput{
		Success: true,
		Metadata: map[string]any{
			"files_processed":  stats.FilesProcessed,
			"files_skipped":    stats.FilesSkipped,
			"records_ingested": stats.RecordsIngested,
			"errors_count":     stats.ErrorsCount,
		},
	}, nil
}

func (o *Orchestrator) runInfer(ctx context.Context, cfg Config) (*types.StageOutput, error) {
	sampleSize := cfg.SampleSize
	if sampleSize <= 0 {
		sampleSize = inference.DefaultConfig().SampleSize
	}

	raws, err := o.Store.GetSample(ctx, sampleSize, cfg.Partition)
	if err != nil {
		return nil, fmt.Errorf("infer: sampling staged records: %w", err)
	}

	inf := inference.New(inference.DefaultConfig())
	for _, raw := range raws {
		if err := inf.Add(raw); err != nil {
			o.Logger.Warn("skipping unparseable record during inference", logging.NewField("error", err.Error()))
		}
	}

	schema := inf.Build()
	schema.Partition = cfg.Partition

	doc := inference.ExportJSONSchema(schema)
	if err := writeJSON(o.schemaPath(cfg), doc); err != nil {
		return nil, err
	}

	return &types.StageOutput{
		Success: true,
		Files:   []string{o.schemaPath(cfg)},
		Metadata: map[string]any{
			"record_count": schema.RecordCount,
		},
	}, nil
}

func (o *Orchestrator) runRefine(ctx context.Context, cfg Config) (*types.StageOutput, error) {
	original, err := readJSON(o.schemaPath(cfg))
	if err != nil {
		return nil, fmt.Errorf("refine: loading inferred schema: %w", err)
	}

	rcfg := cfg.RefinementConfig
	if len(rcfg.Samples) == 0 {
		samples, err := o.Store.GetSample(ctx, rcfg.MaxSamples, cfg.Partition)
		if err == nil {
			rcfg.Samples = samples
		}
	}

	result, err := llm.RefineSchema(ctx, cfg.LLM, original, rcfg)
	if err != nil {
		return nil, fmt.Errorf("refine: %w", err)
	}

	if err := writeJSON(o.refinedSchemaPath(cfg), result.Schema); err != nil {
		return nil, err
	}

	return &types.StageOutput{
		Success: true,
		Files:   []string{o.refinedSchemaPath(cfg)},
		Metadata: map[string]any{
			"model_used": result.ModelUsed,
			"retries":    result.Retries,
			"warnings":   result.Warnings,
		},
	}, nil
}

func (o *Orchestrator) runMap(ctx context.Context, cfg Config) (*types.StageOutput, error) {
	sourceSchemaPath := o.refinedSchemaPath(cfg)
	if _, err := os.Stat(sourceSchemaPath); err != nil {
		sourceSchemaPath = o.schemaPath(cfg)
	}

	sourceDoc, err := readJSON(sourceSchemaPath)
	if err != nil {
		return nil, fmt.Errorf("map: loading source schema: %w", err)
	}
	targetDoc, err := readJSON(cfg.TargetSchema)
	if err != nil {
		return nil, fmt.Errorf("map: loading target schema: %w", err)
	}

	sourceFields := mapping.Flatten(sourceDoc)
	targetFields := mapping.Flatten(targetDoc)

	mcfg := mapping.DefaultConfig()
	result := mapping.Match(sourceFields, targetFields, mcfg)

	if cfg.LLM != nil {
		if err := mapping.AugmentWithLLM(ctx, cfg.LLM, &result, sourceFields, targetFields, mcfg); err != nil {
			o.Logger.Warn("llm-assisted matching failed, continuing with core matches", logging.NewField("error", err.Error()))
		}
	}

	if err := writeJSON(o.mappingPath(cfg), result); err != nil {
		return nil, err
	}

	transformPath := filepath.Join(cfg.OutputDir, "transform.sql")
	sqlScript := mapping.GenerateSQL(result, "staged_records", "target")
	if err := os.WriteFile(transformPath, []byte(sqlScript), 0o600); err != nil {
		return nil, fmt.Errorf("map: writing default transform artifact: %w", err)
	}

	return &types.StageOutput{
		Success: true,
		Files:   []string{o.mappingPath(cfg), transformPath},
		Metadata: map[string]any{
			"compatibility_score": result.CompatibilityScore,
			"direct_count":        result.Stats.DirectCount,
			"transform_count":     result.Stats.TransformCount,
			"gap_count":           result.Stats.GapCount,
		},
	}, nil
}

// runExport materialises the staged records (transformed by the direct
// mappings, where one exists) as newline-delimited JSON.
func (o *Orchestrator) runExport(ctx context.Context, cfg Config) (*types.StageOutput, error) {
	total, err := o.Store.RecordCount(ctx, cfg.Partition)
	if err != nil {
		return nil, fmt.Errorf("export: counting staged records: %w", err)
	}
	raws, err := o.Store.GetSample(ctx, int(total), cfg.Partition)
	if err != nil {
		return nil, fmt.Errorf("export: reading staged records: %w", err)
	}

	var m *types.SchemaMapping
	if doc, err := readJSON(o.mappingPath(cfg)); err == nil {
		var sm types.SchemaMapping
		if b, err := json.Marshal(doc); err == nil {
			if err := json.Unmarshal(b, &sm); err == nil {
				m = &sm
			}
		}
	}

	exportPath := filepath.Join(cfg.OutputDir, "export.jsonl")
	f, err := os.Create(exportPath)
	if err != nil {
		return nil, fmt.Errorf("export: creating output file: %w", err)
	}
	defer f.Close()

	for _, raw := range raws {
		record, err := applyDirectMappings(raw, m)
		if err != nil {
			record = raw
		}
		if _, err := f.WriteString(record + "\n"); err != nil {
			return nil, fmt.Errorf("export: writing record: %w", err)
		}
	}

	return &types.StageOutput{
		Success: true,
		Files:   []string{exportPath},
		Metadata: map[string]any{
			"records_exported": len(raws),
		},
	}, nil
}

func applyDirectMappings(raw string, m *types.SchemaMapping) (string, error) {
	if m == nil || len(m.DirectMappings) == 0 {
		return raw, nil
	}
	var source map[string]any
	if err := json.Unmarshal([]byte(raw), &source); err != nil {
		return "", err
	}

	target := map[string]any{}
	for _, d := range m.DirectMappings {
		if v, ok := source[d.SourcePath]; ok {
			target[d.TargetPath] = v
		}
	}
	out, err := json.Marshal(target)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// runGenerate emits the transformation scripts for every target language
// plus a summary contract document describing the final mapping.
func (o *Orchestrator) runGenerate(_ context.Context, cfg Config) (*types.StageOutput, error) {
	doc, err := readJSON(o.mappingPath(cfg))
	if err != nil {
		return nil, fmt.Errorf("generate: loading mapping: %w", err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m types.SchemaMapping
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("generate: parsing mapping: %w", err)
	}

	files := map[string]string{
		"transform.sql":   mapping.GenerateSQL(m, "staged_records", "target"),
		"transform.jq":    mapping.GenerateJQ(m),
		"transform.py":    mapping.GenerateScript(m),
		"transform_df.py": mapping.GenerateDataframe(m, "df"),
	}

	var written []string
	for name, content := range files {
		path := filepath.Join(cfg.OutputDir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			return nil, fmt.Errorf("generate: writing %s: %w", name, err)
		}
		written = append(written, path)
	}

	contract := map[string]any{
		"mapping":             m,
		"compatibility_score": m.CompatibilityScore,
	}
	contractPath := filepath.Join(cfg.OutputDir, "contract.json")
	if err := writeJSON(contractPath, contract); err != nil {
		return nil, err
	}
	written = append(written, contractPath)

	return &types.StageOutput{
		Success: true,
		Files:   written,
	}, nil
}

func writeJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("pipeline: creating output directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("pipeline: marshaling %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o600)
}

func readJSON(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v map[string]any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("pipeline: parsing %s: %w", path, err)
	}
	return v, nil
}
