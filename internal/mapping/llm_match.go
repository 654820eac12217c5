// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"odcspipeline/internal/llm"
	"odcspipeline/internal/types"
)

// llmSuggestion is one source-to-target correspondence proposed by the
// model.
type llmSuggestion struct {
	SourceField       string  `json:"source_field"`
	TargetField       string  `json:"target_field"`
	Confidence        float64 `json:"confidence"`
	Reasoning         string  `json:"reasoning"`
	RequiresTransform bool    `json:"requires_transform"`
	TransformHint     string  `json:"transform_hint"`
}

type llmMatchResponse struct {
	Suggestions       []llmSuggestion `json:"suggestions"`
	UnmatchedSource   []string        `json:"unmatched_source"`
	UnmatchedTarget   []string        `json:"unmatched_target"`
	OverallConfidence float64         `json:"overall_confidence"`
}

// AugmentWithLLM invokes client over m's remaining gaps and extras, merging
// any accepted suggestions back into m and recomputing stats.
func AugmentWithLLM(ctx context.Context, client llm.Client, m *types.SchemaMapping, source, target map[string]FieldInfo, cfg Config) error {
	if len(m.Gaps) == 0 && len(m.Extras) == 0 {
		return nil
	}

	unmatchedTargets := make([]string, 0, len(m.Gaps))
	for _, g := range m.Gaps {
		unmatchedTargets = append(unmatchedTargets, g.TargetPath)
	}
	unmatchedSources := append([]string(nil), m.Extras...)

	maxFields := cfg.MaxFieldsPerCall
	if maxFields <= 0 {
		maxFields = 20
	}

	batches := batchTargets(unmatchedTargets, maxFields)
	alreadyMatchedTarget := map[string]bool{}
	alreadyMatchedSource := map[string]bool{}
	for _, d := range m.DirectMappings {
		alreadyMatchedTarget[d.TargetPath] = true
		alreadyMatchedSource[d.SourcePath] = true
	}
	for _, tr := range m.Transformations {
		alreadyMatchedTarget[tr.TargetPath] = true
		for _, sp := range tr.SourcePaths {
			alreadyMatchedSource[sp] = true
		}
	}

	var confidenceSum float64
	var confidenceCount int
	remainingGaps := map[string]types.FieldGap{}
	for _, g := range m.Gaps {
		remainingGaps[g.TargetPath] = g
	}
	coveredSource := map[string]bool{}
	coveredTarget := map[string]bool{}

	for _, batch := range batches {
		prompt := buildMatchPrompt(batch, unmatchedSources, source, target)
		raw, err := client.Complete(ctx, prompt)
		if err != nil {
			return fmt.Errorf("mapping: llm-assisted match: %w", err)
		}

		resp, err := parseMatchResponse(raw)
		if err != nil {
			return fmt.Errorf("mapping: parsing llm match response: %w", err)
		}
		confidenceSum += resp.OverallConfidence
		confidenceCount++

		for _, s := range resp.Suggestions {
			if s.Confidence < cfg.MinConfidence {
				continue
			}
			if alreadyMatchedSource[s.SourceField] || alreadyMatchedTarget[s.TargetField] ||
				coveredSource[s.SourceField] || coveredTarget[s.TargetField] {
				continue
			}

			if s.RequiresTransform {
				m.Transformations = append(m.Transformations, types.TransformMapping{
					SourcePaths: []string{s.SourceField},
					TargetPath:  s.TargetField,
					Transform:   classifyTransformHint(s.TransformHint, target[s.TargetField].Type),
					Description: s.Reasoning,
					Confidence:  s.Confidence,
				})
			} else {
				tf := target[s.TargetField]
				sf := source[s.SourceField]
				m.DirectMappings = append(m.DirectMappings, types.FieldMapping{
					SourcePath:     s.SourceField,
					TargetPath:     s.TargetField,
					Confidence:     s.Confidence,
					TypeCompatible: typeCompatible(sf.Type, tf.Type),
					Method:         types.MatchLlm,
				})
			}

			coveredSource[s.SourceField] = true
			coveredTarget[s.TargetField] = true
			delete(remainingGaps, s.TargetField)
		}
	}

	m.Gaps = m.Gaps[:0]
	for _, g := range remainingGaps {
		m.Gaps = append(m.Gaps, g)
	}
	var extras []string
	for _, sp := range unmatchedSources {
		if !coveredSource[sp] {
			extras = append(extras, sp)
		}
	}
	m.Extras = extras

	recomputeStats(m, m.Stats.TotalTargetFields)
	return nil
}

func batchTargets(targets []string, size int) [][]string {
	var batches [][]string
	for i := 0; i < len(targets); i += size {
		end := i + size
		if end > len(targets) {
			end = len(targets)
		}
		batches = append(batches, targets[i:end])
	}
	if len(batches) == 0 {
		batches = [][]string{{}}
	}
	return batches
}

func buildMatchPrompt(targetBatch, sourceFields []string, source, target map[string]FieldInfo) string {
	var b strings.Builder
	b.WriteString("You are matching fields between a source schema and a target schema. ")
	b.WriteString("For each target field, propose the best matching source field if one exists. ")
	b.WriteString("Return a JSON object: {\"suggestions\":[{\"source_field\",\"target_field\",\"confidence\",")
	b.WriteString("\"reasoning\",\"requires_transform\",\"transform_hint\"}],\"unmatched_source\":[],")
	b.WriteString("\"unmatched_target\":[],\"overall_confidence\":0.0}.\n\n")

	b.WriteString("Unmatched target fields:\n")
	for _, t := range targetBatch {
		fmt.Fprintf(&b, "- %s (%s)\n", t, target[t].Type)
	}

	b.WriteString("\nUnmatched source fields:\n")
	for _, s := range sourceFields {
		fmt.Fprintf(&b, "- %s (%s)\n", s, source[s].Type)
	}

	return b.String()
}

func parseMatchResponse(raw string) (*llmMatchResponse, error) {
	trimmed := strings.TrimSpace(raw)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var resp llmMatchResponse
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// classifyTransformHint maps a model's free-text transform_hint to a
// TransformType by keyword.
func classifyTransformHint(hint string, targetType types.TypeKind) types.TransformType {
	h := strings.ToLower(hint)

	switch {
	case strings.Contains(h, "to_int") || strings.Contains(h, "parse_int"):
		return types.TransformType{Kind: types.TransformTypeCast, ToType: types.KindInteger}
	case strings.Contains(h, "to_float") || strings.Contains(h, "to_number"):
		return types.TransformType{Kind: types.TransformTypeCast, ToType: types.KindNumber}
	case strings.Contains(h, "to_string"):
		return types.TransformType{Kind: types.TransformTypeCast, ToType: types.KindString}
	case strings.Contains(h, "to_bool"):
		return types.TransformType{Kind: types.TransformTypeCast, ToType: types.KindBoolean}
	case strings.Contains(h, "date") || strings.Contains(h, "parse_date"):
		return types.TransformType{Kind: types.TransformFormatChange, ToFormat: string(types.FormatDateTime)}
	case strings.Contains(h, "split"):
		return types.TransformType{Kind: types.TransformSplit, Delimiter: ","}
	case strings.Contains(h, "join") || strings.Contains(h, "concat") || strings.Contains(h, "merge"):
		return types.TransformType{Kind: types.TransformMerge, Separator: " "}
	case strings.Contains(h, "extract") || strings.Contains(h, "json_path"):
		return types.TransformType{Kind: types.TransformExtract, JSONPath: hint}
	case strings.Contains(h, "default") || strings.Contains(h, "fallback"):
		return types.TransformType{Kind: types.TransformDefault, DefaultValue: defaultByType[targetType]}
	case strings.Contains(h, "rename"):
		return types.TransformType{Kind: types.TransformRename}
	case strings.Contains(h, "upper") || strings.Contains(h, "lower") || strings.Contains(h, "trim"):
		return types.TransformType{Kind: types.TransformCustom, Expression: hint}
	default:
		return types.TransformType{Kind: types.TransformCustom, Expression: hint}
	}
}
