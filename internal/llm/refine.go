// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ErrMaxRetriesExceeded is returned when the refiner exhausts its retry
// budget without producing a valid refinement.
var ErrMaxRetriesExceeded = fmt.Errorf("llm: max retries exceeded")

// refineBaseBackoff is the initial retry delay; it doubles on each attempt.
const refineBaseBackoff = 500 * time.Millisecond

// RefinementConfig controls one refinement call.
type RefinementConfig struct {
	Documentation    string
	Samples          []string
	MaxSamples       int
	MaxContextTokens int
	MaxRetries       int
}

// RefinementBuilder builds a RefinementConfig fluently.
type RefinementBuilder struct {
	cfg RefinementConfig
}

// NewRefinementBuilder starts a new builder with sensible defaults.
func NewRefinementBuilder() *RefinementBuilder {
	return &RefinementBuilder{cfg: RefinementConfig{MaxSamples: 5, MaxContextTokens: 4000, MaxRetries: 3}}
}

func (b *RefinementBuilder) WithDocumentation(doc string) *RefinementBuilder {
	b.cfg.Documentation = doc
	return b
}

func (b *RefinementBuilder) WithSamples(samples []string) *RefinementBuilder {
	b.cfg.Samples = samples
	return b
}

func (b *RefinementBuilder) WithMaxSamples(n int) *RefinementBuilder {
	b.cfg.MaxSamples = n
	return b
}

func (b *RefinementBuilder) WithMaxRetries(n int) *RefinementBuilder {
	b.cfg.MaxRetries = n
	return b
}

func (b *RefinementBuilder) Build() RefinementConfig {
	return b.cfg
}

// RefinementResult is the outcome of a successful refinement call.
type RefinementResult struct {
	Schema     map[string]any
	WasRefined bool
	ModelUsed  string
	Retries    int
	Warnings   []string
	Duration   time.Duration
}

// SchemaRefiner wraps an LLM client to enhance a JSON schema's descriptions
// and formats without ever weakening it structurally.
type SchemaRefiner struct {
	Client Client
}

// NewSchemaRefiner constructs a SchemaRefiner over client.
func NewSchemaRefiner(client Client) *SchemaRefiner {
	return &SchemaRefiner{Client: client}
}

// Refine enhances original against cfg, retrying on invalid responses with
// exponential backoff starting at 500ms.
func (r *SchemaRefiner) Refine(ctx context.Context, original map[string]any, cfg RefinementConfig) (*RefinementResult, error) {
	started := time.Now()

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	prompt := buildRefinementPrompt(original, cfg)

	var lastErr error
	backoff := refineBaseBackoff
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		raw, err := r.Client.Complete(ctx, prompt)
		if err != nil {
			lastErr = err
			continue
		}

		extracted, err := extractJSON(raw)
		if err != nil {
			lastErr = err
			continue
		}

		var refined map[string]any
		if err := json.Unmarshal([]byte(extracted), &refined); err != nil {
			lastErr = fmt.Errorf("llm: parsing refined schema: %w", err)
			continue
		}

		result, err := ValidateRefinement(original, refined)
		if err != nil {
			lastErr = err
			continue
		}

		return &RefinementResult{
			Schema:     refined,
			WasRefined: true,
			ModelUsed:  r.Client.ModelName(),
			Retries:    attempt,
			Warnings:   result.Warnings,
			Duration:   time.Since(started),
		}, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
	}
	return nil, ErrMaxRetriesExceeded
}

// RefineSchema is a convenience wrapper for one-shot refinement without
// constructing a SchemaRefiner first.
func RefineSchema(ctx context.Context, client Client, original map[string]any, cfg RefinementConfig) (*RefinementResult, error) {
	return NewSchemaRefiner(client).Refine(ctx, original, cfg)
}

func buildRefinementPrompt(original map[string]any, cfg RefinementConfig) string {
	var b strings.Builder
	b.WriteString("You are enhancing a JSON schema. Add helpful descriptions and string ")
	b.WriteString("formats where appropriate. Do not remove any property. Do not change any ")
	b.WriteString("existing type in a way that narrows or breaks compatibility. Do not change ")
	b.WriteString("which properties are required. Return only the refined JSON schema object.\n\n")

	schemaJSON, _ := json.MarshalIndent(original, "", "  ")
	b.WriteString("Schema:\n")
	b.Write(schemaJSON)
	b.WriteString("\n\n")

	if cfg.Documentation != "" {
		doc := cfg.Documentation
		if cfg.MaxContextTokens > 0 && len(doc) > cfg.MaxContextTokens*4 {
			doc = doc[:cfg.MaxContextTokens*4]
		}
		b.WriteString("Documentation:\n")
		b.WriteString(doc)
		b.WriteString("\n\n")
	}

	maxSamples := cfg.MaxSamples
	if maxSamples <= 0 {
		maxSamples = 5
	}
	if len(cfg.Samples) > 0 {
		n := maxSamples
		if n > len(cfg.Samples) {
			n = len(cfg.Samples)
		}
		b.WriteString("Example records:\n")
		for _, s := range cfg.Samples[:n] {
			b.WriteString(s)
			b.WriteString("\n")
		}
	}

	return b.String()
}

// extractJSON pulls a JSON object out of a model response: accepts raw
// JSON, a fenced ```json block, a bare fenced block, or the substring
// between the first '{' and the last '}'.
func extractJSON(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)

	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	if extracted, ok := extractFenced(trimmed, "```json"); ok {
		return extracted, nil
	}
	if extracted, ok := extractFenced(trimmed, "```"); ok {
		return extracted, nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("llm: no JSON object found in response")
	}
	return trimmed[start : end+1], nil
}

func extractFenced(s, marker string) (string, bool) {
	start := strings.Index(s, marker)
	if start == -1 {
		return "", false
	}
	rest := s[start+len(marker):]
	end := strings.Index(rest, "```")
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}
