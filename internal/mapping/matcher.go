// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package mapping matches a source JSON schema onto a target JSON schema and
// generates executable transformation scripts from the resulting mapping.
package mapping

import (
	"fmt"
	"sort"
	"strings"

	"odcspipeline/internal/types"
)

// FieldInfo is one flattened schema field.
type FieldInfo struct {
	Path     string
	Type     types.TypeKind
	Required bool
	Format   types.StringFormat
}

// Config controls the matcher's phase behaviour.
type Config struct {
	CaseInsensitive  bool
	Fuzzy            bool
	MaxEditDistance  int
	MinConfidence    float64
	LLMAssisted      bool
	MaxFieldsPerCall int
}

// DefaultConfig returns sensible matcher defaults.
func DefaultConfig() Config {
	return Config{
		CaseInsensitive:  true,
		Fuzzy:            true,
		MaxEditDistance:  3,
		MinConfidence:    0.6,
		LLMAssisted:      false,
		MaxFieldsPerCall: 20,
	}
}

// Flatten reduces a JSON-schema-compatible object to path -> FieldInfo.
// Dotted paths represent nested objects; arrays are not descended beyond
// their "items".
func Flatten(schema map[string]any) map[string]FieldInfo {
	out := map[string]FieldInfo{}
	required := stringSlice(schema["required"])
	flattenObject("", schema, required, out)
	return out
}

func flattenObject(prefix string, schema map[string]any, required []string, out map[string]FieldInfo) {
	props, _ := schema["properties"].(map[string]any)
	for name, raw := range props {
		field, _ := raw.(map[string]any)
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		kind := typeKind(field)
		out[path] = FieldInfo{
			Path:     path,
			Type:     kind,
			Required: contains(required, name),
			Format:   types.StringFormat(stringOf(field["format"])),
		}

		if kind == types.KindObject {
			childRequired := stringSlice(field["required"])
			flattenObject(path, field, childRequired, out)
		}
	}
}

func typeKind(field map[string]any) types.TypeKind {
	switch stringOf(field["type"]) {
	case "string":
		return types.KindString
	case "integer":
		return types.KindInteger
	case "number":
		return types.KindNumber
	case "boolean":
		return types.KindBoolean
	case "array":
		return types.KindArray
	case "object":
		return types.KindObject
	case "null":
		return types.KindNull
	default:
		return types.KindUnknown
	}
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func stringSlice(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// typeCompatible implements the direct-match compatibility matrix:
// identical types are compatible, integer source widening to a number
// target is compatible, and "any" on either side is compatible.
func typeCompatible(source, target types.TypeKind) bool {
	if source == target {
		return true
	}
	if source == types.KindInteger && target == types.KindNumber {
		return true
	}
	if source == types.KindUnknown || target == types.KindUnknown {
		return true
	}
	return false
}

// coercionTable lists the (source, target) type pairs the coercion phase may
// bridge with a TypeCast transform. Neither side may be KindNull.
var coercionTable = map[[2]types.TypeKind]bool{
	{types.KindString, types.KindInteger}:  true,
	{types.KindInteger, types.KindString}:  true,
	{types.KindString, types.KindNumber}:   true,
	{types.KindNumber, types.KindString}:   true,
	{types.KindNumber, types.KindInteger}:  true,
	{types.KindString, types.KindBoolean}:  true,
	{types.KindBoolean, types.KindString}:  true,
	{types.KindInteger, types.KindBoolean}: true,
}

func coercible(source, target types.TypeKind) bool {
	if source == types.KindNull || target == types.KindNull {
		return false
	}
	return coercionTable[[2]types.TypeKind{source, target}]
}

var defaultByType = map[types.TypeKind]any{
	types.KindString:  "",
	types.KindInteger: 0,
	types.KindNumber:  0,
	types.KindBoolean: false,
	types.KindArray:   []any{},
	types.KindObject:  map[string]any{},
}

// Match runs the full seven-phase matcher (exact, case-insensitive, fuzzy,
// coercion, gaps, extras, stats) over flattened source and target field sets.
func Match(source, target map[string]FieldInfo, cfg Config) types.SchemaMapping {
	if cfg.MaxEditDistance <= 0 {
		cfg.MaxEditDistance = 3
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.6
	}

	sourcePaths := sortedKeys(source)
	targetPaths := sortedKeys(target)

	matchedSource := map[string]bool{}
	matchedTarget := map[string]bool{}
	var direct []types.FieldMapping

	// Phase 1: exact match.
	for _, tp := range targetPaths {
		if sf, ok := source[tp]; ok {
			tf := target[tp]
			direct = append(direct, types.FieldMapping{
				SourcePath:     tp,
				TargetPath:     tp,
				Confidence:     1.0,
				TypeCompatible: typeCompatible(sf.Type, tf.Type),
				Method:         types.MatchExact,
			})
			matchedSource[tp] = true
			matchedTarget[tp] = true
		}
	}

	// Phase 2: case-insensitive match.
	if cfg.CaseInsensitive {
		lowerSource := map[string]string{}
		for _, sp := range sourcePaths {
			if matchedSource[sp] {
				continue
			}
			lowerSource[strings.ToLower(sp)] = sp
		}
		for _, tp := range targetPaths {
			if matchedTarget[tp] {
				continue
			}
			if sp, ok := lowerSource[strings.ToLower(tp)]; ok && !matchedSource[sp] {
				sf, tf := source[sp], target[tp]
				direct = append(direct, types.FieldMapping{
					SourcePath:     sp,
					TargetPath:     tp,
					Confidence:     0.95,
					TypeCompatible: typeCompatible(sf.Type, tf.Type),
					Method:         types.MatchCaseInsensitive,
				})
				matchedSource[sp] = true
				matchedTarget[tp] = true
			}
		}
	}

	// Phase 3: fuzzy match.
	if cfg.Fuzzy {
		for _, tp := range targetPaths {
			if matchedTarget[tp] {
				continue
			}
			bestSource, bestDist, found := "", 0, false
			for _, sp := range sourcePaths {
				if matchedSource[sp] {
					continue
				}
				dist := Levenshtein(strings.ToLower(sp), strings.ToLower(tp))
				if !found || dist < bestDist {
					bestSource, bestDist, found = sp, dist, true
				}
			}
			if !found {
				continue
			}
			maxLen := maxInt(len(bestSource), len(tp))
			if maxLen == 0 {
				continue
			}
			similarity := 1 - float64(bestDist)/float64(maxLen)
			if bestDist <= cfg.MaxEditDistance && similarity >= cfg.MinConfidence {
				sf, tf := source[bestSource], target[tp]
				direct = append(direct, types.FieldMapping{
					SourcePath:     bestSource,
					TargetPath:     tp,
					Confidence:     similarity,
					TypeCompatible: typeCompatible(sf.Type, tf.Type),
					Method:         types.MatchFuzzy,
				})
				matchedSource[bestSource] = true
				matchedTarget[tp] = true
			}
		}
	}

	// Phase 4: type coercion. Replace incompatible direct mappings with a
	// TypeCast transform where coercible; otherwise withdraw and re-surface
	// as a gap in phase 5.
	var transforms []types.TransformMapping
	var stillDirect []types.FieldMapping
	withdrawn := map[string]string{} // target path -> withdrawn source path

	for _, fm := range direct {
		if fm.TypeCompatible {
			stillDirect = append(stillDirect, fm)
			continue
		}
		sf, tf := source[fm.SourcePath], target[fm.TargetPath]
		if coercible(sf.Type, tf.Type) {
			transforms = append(transforms, types.TransformMapping{
				SourcePaths: []string{fm.SourcePath},
				TargetPath:  fm.TargetPath,
				Transform:   types.TransformType{Kind: types.TransformTypeCast, ToType: tf.Type},
				Confidence:  0.9 * fm.Confidence,
			})
			continue
		}
		// Incompatible and not coercible: withdraw the mapping and free the
		// source path, so the target re-surfaces as a gap rather than
		// silently dropping out of the mapping.
		matchedTarget[fm.TargetPath] = false
		matchedSource[fm.SourcePath] = false
		withdrawn[fm.TargetPath] = fm.SourcePath
	}
	direct = stillDirect

	// Phase 5: gap detection.
	var gaps []types.FieldGap
	for _, tp := range targetPaths {
		if matchedTarget[tp] {
			continue
		}
		tf := target[tp]
		gap := types.FieldGap{
			TargetPath: tp,
			TargetType: tf.Type,
			Required:   tf.Required,
		}
		if withdrawnSource, ok := withdrawn[tp]; ok {
			gap.Suggestions = []string{withdrawnSource}
			gap.Reason = "incompatible type"
		} else {
			gap.Suggestions = suggestionsWithin(tp, sourcePaths, matchedSource, cfg.MaxEditDistance+2)
			gap.Reason = "no matching source field"
		}
		if def, ok := defaultByType[tf.Type]; ok {
			gap.SuggestedDefault = def
		}
		gaps = append(gaps, gap)
	}

	// Phase 6: extras.
	var extras []string
	for _, sp := range sourcePaths {
		if !matchedSource[sp] {
			extras = append(extras, sp)
		}
	}
	sort.Strings(extras)

	mapping := types.SchemaMapping{
		DirectMappings:  direct,
		Transformations: transforms,
		Gaps:            gaps,
		Extras:          extras,
	}
	recomputeStats(&mapping, len(targetPaths))
	return mapping
}

// suggestionsWithin returns unmatched source paths within maxDist of target
// (lowercased Levenshtein distance), sorted by distance then path.
func suggestionsWithin(target string, sourcePaths []string, matchedSource map[string]bool, maxDist int) []string {
	type candidate struct {
		path string
		dist int
	}
	var candidates []candidate
	lowerTarget := strings.ToLower(target)
	for _, sp := range sourcePaths {
		if matchedSource[sp] {
			continue
		}
		dist := Levenshtein(strings.ToLower(sp), lowerTarget)
		if dist <= maxDist {
			candidates = append(candidates, candidate{sp, dist})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].path < candidates[j].path
	})
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.path
	}
	return out
}

// recomputeStats fills in Stats and CompatibilityScore; called after the
// core phases and again after LLM augmentation.
func recomputeStats(m *types.SchemaMapping, totalTargetFields int) {
	requiredGaps := 0
	for _, g := range m.Gaps {
		if g.Required {
			requiredGaps++
		}
	}

	var numerator float64
	for _, d := range m.DirectMappings {
		weight := 0.8
		if d.TypeCompatible {
			weight = 1.0
		}
		numerator += d.Confidence * weight
	}
	for _, tr := range m.Transformations {
		numerator += tr.Confidence * 0.9
	}

	score := 0.0
	if totalTargetFields > 0 {
		score = numerator/float64(totalTargetFields) - 0.2*float64(requiredGaps)
	}
	score = clamp01(score)

	m.Stats = types.MappingStats{
		TotalTargetFields: totalTargetFields,
		DirectCount:       len(m.DirectMappings),
		TransformCount:    len(m.Transformations),
		GapCount:          len(m.Gaps),
		RequiredGapCount:  requiredGaps,
		ExtraCount:        len(m.Extras),
	}
	m.CompatibilityScore = score
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func sortedKeys(m map[string]FieldInfo) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Levenshtein computes the classic edit distance between a and b using the
// two-row dynamic-programming formulation.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minInt3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func minInt3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// ValidationError describes a malformed schema — no "properties" object at
// the root. No function in this module constructs or returns it.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("mapping: invalid schema: %s", e.Detail)
}
