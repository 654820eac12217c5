// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package types

import "time"

// Stage is one element of the pipeline's fixed execution DAG.
type Stage string

const (
	StageIngest   Stage = "ingest"
	StageInfer    Stage = "infer"
	StageRefine   Stage = "refine"
	StageMap      Stage = "map"
	StageExport   Stage = "export"
	StageGenerate Stage = "generate"
)

// DefaultStages is the full, ordered set of stages a pipeline run executes
// absent an explicit override.
var DefaultStages = []Stage{StageIngest, StageInfer, StageRefine, StageMap, StageExport, StageGenerate}

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunPaused    RunStatus = "paused"
)

// StageOutput records the outcome of one executed (or skipped) stage.
type StageOutput struct {
	Success    bool           `json:"success"`
	Skipped    bool           `json:"skipped"`
	Reason     string         `json:"reason,omitempty"`
	Files      []string       `json:"files,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// PipelineCheckpoint is the orchestrator's persisted view of progress for a
// single run. It is written atomically after every stage transition.
type PipelineCheckpoint struct {
	RunID           string                `json:"run_id"`
	ConfigHash      string                `json:"config_hash"`
	Status          RunStatus             `json:"status"`
	CompletedStages []Stage               `json:"completed_stages"`
	CurrentStage    Stage                 `json:"current_stage,omitempty"`
	StageOutputs    map[Stage]StageOutput `json:"stage_outputs"`
	StartedAt       time.Time             `json:"started_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
	Error           string                `json:"error,omitempty"`
}

// HasCompleted reports whether the given stage is already recorded as done.
func (c *PipelineCheckpoint) HasCompleted(s Stage) bool {
	for _, done := range c.CompletedStages {
		if done == s {
			return true
		}
	}
	return false
}

// PipelineReport is the final, human-facing summary of a run.
type PipelineReport struct {
	RunID           string                `json:"run_id"`
	Status          RunStatus             `json:"status"`
	StagesCompleted int                   `json:"stages_completed"`
	DurationMs      int64                 `json:"duration_ms"`
	Outputs         map[Stage]StageOutput `json:"outputs"`
}

// IsSuccess reports whether the run completed without failure.
func (r *PipelineReport) IsSuccess() bool {
	return r.Status == RunCompleted
}

// DurationFormatted renders the run duration as a human-readable string.
func (r *PipelineReport) DurationFormatted() string {
	d := time.Duration(r.DurationMs) * time.Millisecond
	return d.String()
}
