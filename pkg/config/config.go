// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package config defines the odcspipeline configuration schema and helpers
// for loading and validating config files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"odcspipeline/internal/types"
)

// ErrConfigNotFound is returned when the config file does not exist at the
// given path.
var ErrConfigNotFound = errors.New("odcspipeline config not found")

// Config represents the top-level odcspipeline configuration.
type Config struct {
	Project  ProjectConfig   `yaml:"project"`
	Staging  *StagingConfig  `yaml:"staging,omitempty"`
	Ingest   *IngestConfig   `yaml:"ingest,omitempty"`
	LLM      *LLMConfig      `yaml:"llm,omitempty"`
	Pipeline *PipelineConfig `yaml:"pipeline,omitempty"`
}

// ProjectConfig describes project-level settings.
type ProjectConfig struct {
	Name string `yaml:"name"`
}

// StagingConfig describes the embedded or shared staging backend.
type StagingConfig struct {
	Backend string `yaml:"backend"` // "sqlite" or "postgres"
	DSN     string `yaml:"dsn"`
}

// IngestConfig mirrors ingest.Config for YAML-driven invocations.
type IngestConfig struct {
	Source    string `yaml:"source"`
	Pattern   string `yaml:"pattern,omitempty"`
	Partition string `yaml:"partition,omitempty"`
	Dedup     string `yaml:"dedup,omitempty"` // none, by_path, by_content, both
	BatchSize int    `yaml:"batch_size,omitempty"`
	Workers   int    `yaml:"workers,omitempty"`
}

// DedupStrategy converts the YAML dedup string to types.DedupStrategy,
// defaulting to DedupByPath when unset.
func (c *IngestConfig) DedupStrategy() types.DedupStrategy {
	switch types.DedupStrategy(c.Dedup) {
	case types.DedupNone, types.DedupByPath, types.DedupByContent, types.DedupPathAndCon:
		return types.DedupStrategy(c.Dedup)
	default:
		return types.DedupByPath
	}
}

// LLMConfig describes the configured LLM provider, matching the enumerated
// {mode: online|offline|none} shape.
type LLMConfig struct {
	Mode        string  `yaml:"mode"` // online, offline, none
	URL         string  `yaml:"url,omitempty"`
	Model       string  `yaml:"model,omitempty"`
	ModelPath   string  `yaml:"model_path,omitempty"`
	GPULayers   int     `yaml:"gpu_layers,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`

	MaxContextTokens int `yaml:"max_context_tokens,omitempty"`
	TimeoutSeconds   int `yaml:"timeout_seconds,omitempty"`
	MaxRetries       int `yaml:"max_retries,omitempty"`

	IncludeSamples bool `yaml:"include_samples,omitempty"`
	MaxSamples     int  `yaml:"max_samples,omitempty"`

	DocumentationPath string `yaml:"documentation_path,omitempty"`
	DocumentationText string `yaml:"documentation_text,omitempty"`
}

// ProviderConfig flattens the LLM config into the map[string]any shape the
// llm.Registry's factories expect.
func (c *LLMConfig) ProviderConfig() map[string]any {
	return map[string]any{
		"url":                c.URL,
		"model":              c.Model,
		"model_path":         c.ModelPath,
		"gpu_layers":         float64(c.GPULayers),
		"temperature":        c.Temperature,
		"timeout_seconds":    float64(c.TimeoutSeconds),
		"max_context_tokens": float64(c.MaxContextTokens),
	}
}

// Enabled reports whether an LLM client should be constructed at all.
func (c *LLMConfig) Enabled() bool {
	return c != nil && c.Mode != "" && c.Mode != "none"
}

// PipelineConfig mirrors types' pipeline configuration for YAML-driven runs.
type PipelineConfig struct {
	Source       string   `yaml:"source,omitempty"`
	Pattern      string   `yaml:"pattern,omitempty"`
	Database     string   `yaml:"database"`
	OutputDir    string   `yaml:"output_dir"`
	Stages       []string `yaml:"stages,omitempty"`
	TargetSchema string   `yaml:"target_schema,omitempty"`
	Partition    string   `yaml:"partition,omitempty"`
	DryRun       bool     `yaml:"dry_run,omitempty"`
	Resume       bool     `yaml:"resume,omitempty"`
	Verbose      bool     `yaml:"verbose,omitempty"`
}

// DefaultConfigPath returns the default config path for the current working
// directory.
func DefaultConfigPath() string {
	return "odcspipeline.yml"
}

// Exists reports whether a regular config file is present at path.
func Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, err
	}
	return !info.IsDir(), nil
}

// Load reads, parses, and validates the config at path. A missing file is
// reported as ErrConfigNotFound so callers can treat the config as
// optional.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Project.Name == "" {
		return errors.New("config: project.name must be non-empty")
	}

	if cfg.Staging != nil {
		if err := validateStaging(cfg.Staging); err != nil {
			return err
		}
	}

	if cfg.LLM != nil {
		if err := validateLLM(cfg.LLM); err != nil {
			return err
		}
	}

	if cfg.Pipeline != nil {
		if err := validatePipeline(cfg.Pipeline); err != nil {
			return err
		}
	}

	return nil
}

func validateStaging(cfg *StagingConfig) error {
	switch cfg.Backend {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("config: staging.backend %q is not one of: sqlite, postgres", cfg.Backend)
	}
	return nil
}

func validateLLM(cfg *LLMConfig) error {
	switch cfg.Mode {
	case "", "none":
		return nil
	case "online":
		if cfg.URL == "" {
			return errors.New("config: llm.url is required when llm.mode is online")
		}
	case "offline":
		// The offline provider has no bundled inference runtime; reject the
		// mode up front rather than letting the refine stage fail mid-run.
		return errors.New("config: llm.mode offline is not supported in this build; use online or none")
	default:
		return fmt.Errorf("config: llm.mode %q is not one of: online, offline, none", cfg.Mode)
	}

	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return fmt.Errorf("config: llm.temperature %v must be within [0, 2]", cfg.Temperature)
	}

	return nil
}

func validatePipeline(cfg *PipelineConfig) error {
	if cfg.Database == "" {
		return errors.New("config: pipeline.database is required")
	}
	if cfg.OutputDir == "" {
		return errors.New("config: pipeline.output_dir is required")
	}
	for _, s := range cfg.Stages {
		if !validStage(s) {
			return fmt.Errorf("config: pipeline.stages contains unknown stage %q", s)
		}
	}
	return nil
}

func validStage(s string) bool {
	for _, st := range types.DefaultStages {
		if string(st) == s {
			return true
		}
	}
	return false
}
