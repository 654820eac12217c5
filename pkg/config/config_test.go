// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigPath(t *testing.T) {
	assert.Equal(t, "odcspipeline.yml", DefaultConfigPath())
}

func TestExists_ReportsCorrectly(t *testing.T) {
	tmpDir := t.TempDir()

	nonExisting := filepath.Join(tmpDir, "nope.yml")
	ok, err := Exists(nonExisting)
	require.NoError(t, err)
	assert.False(t, ok)

	existing := filepath.Join(tmpDir, "config.yml")
	require.NoError(t, os.WriteFile(existing, []byte("project:\n  name: test\n"), 0o600))

	ok, err = Exists(existing)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoad_ReturnsErrConfigNotFoundWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "missing.yml")

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoad_ParsesValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "odcspipeline.yml")

	content := []byte(`
project:
  name: "contracts"
ingest:
  source: ./data
  pattern: "*.jsonl"
  dedup: by_content
llm:
  mode: online
  url: "http://localhost:11434/api/generate"
  model: "llama3"
pipeline:
  database: ./staging.db
  output_dir: ./out
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "contracts", cfg.Project.Name)
	require.NotNil(t, cfg.Ingest)
	assert.Equal(t, "./data", cfg.Ingest.Source)
	assert.Equal(t, "*.jsonl", cfg.Ingest.Pattern)

	require.NotNil(t, cfg.LLM)
	assert.True(t, cfg.LLM.Enabled())
	assert.Equal(t, "online", cfg.LLM.Mode)

	require.NotNil(t, cfg.Pipeline)
	assert.Equal(t, "./staging.db", cfg.Pipeline.Database)
}

func TestLoad_ValidatesProjectName(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "odcspipeline.yml")

	require.NoError(t, os.WriteFile(path, []byte("project:\n  name: \"\"\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_ValidatesLLM_UnknownMode(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "odcspipeline.yml")

	content := []byte(`
project:
  name: "contracts"
llm:
  mode: bogus
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.mode")
}

func TestLoad_ValidatesLLM_OnlineRequiresURL(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "odcspipeline.yml")

	content := []byte(`
project:
  name: "contracts"
llm:
  mode: online
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.url")
}

func TestLoad_ValidatesLLM_OfflineModeRejected(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "odcspipeline.yml")

	content := []byte(`
project:
  name: "contracts"
llm:
  mode: offline
  model_path: ./model.bin
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported in this build")
}

func TestLoad_ValidatesLLM_TemperatureRange(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "odcspipeline.yml")

	content := []byte(`
project:
  name: "contracts"
llm:
  mode: online
  url: "http://localhost"
  temperature: 5
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temperature")
}

func TestLoad_ValidatesPipeline_RequiresDatabaseAndOutputDir(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "odcspipeline.yml")

	content := []byte(`
project:
  name: "contracts"
pipeline:
  output_dir: ./out
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.database")

	content = []byte(`
project:
  name: "contracts"
pipeline:
  database: ./staging.db
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.output_dir")
}

func TestLoad_ValidatesPipeline_UnknownStage(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "odcspipeline.yml")

	content := []byte(`
project:
  name: "contracts"
pipeline:
  database: ./staging.db
  output_dir: ./out
  stages: ["ingest", "bogus"]
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage")
}

func TestLoad_ValidatesStaging_UnknownBackend(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "odcspipeline.yml")

	content := []byte(`
project:
  name: "contracts"
staging:
  backend: oracle
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staging.backend")
}

func TestIngestConfig_DedupStrategy_DefaultsToByPath(t *testing.T) {
	cfg := &IngestConfig{}
	assert.Equal(t, "by_path", string(cfg.DedupStrategy()))
}
