// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package inference

import "odcspipeline/internal/types"

// DefaultSimilarityThreshold is the Jaccard threshold above which two
// schemas are grouped together by GroupSimilar.
const DefaultSimilarityThreshold = 0.8

// rootPropertySet returns the set of root-level property names of a schema.
func rootPropertySet(s *types.InferredSchema) map[string]struct{} {
	set := make(map[string]struct{}, len(s.Root.Properties))
	for k := range s.Root.Properties {
		set[k] = struct{}{}
	}
	return set
}

// jaccard computes |a ∩ b| / |a ∪ b| for two string sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

// SchemaGroup is a cluster of schemas judged similar by GroupSimilar, plus
// their merged representative schema.
type SchemaGroup struct {
	Schemas []*types.InferredSchema
	Merged  *types.InferredSchema
}

// GroupSimilar clusters schemas by Jaccard similarity of their root-level
// property-path sets, at or above threshold (<=0 selects
// DefaultSimilarityThreshold). Nested-structure similarity is not
// considered; this only compares root keys, per the implementation's
// resolved open question on schema-grouping similarity.
func GroupSimilar(schemas []*types.InferredSchema, threshold float64) []SchemaGroup {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}

	var groups []SchemaGroup
	assigned := make([]bool, len(schemas))
	sets := make([]map[string]struct{}, len(schemas))
	for i, s := range schemas {
		sets[i] = rootPropertySet(s)
	}

	for i, s := range schemas {
		if assigned[i] {
			continue
		}
		group := []*types.InferredSchema{s}
		assigned[i] = true

		for j := i + 1; j < len(schemas); j++ {
			if assigned[j] {
				continue
			}
			if jaccard(sets[i], sets[j]) >= threshold {
				group = append(group, schemas[j])
				assigned[j] = true
			}
		}

		groups = append(groups, SchemaGroup{Schemas: group, Merged: mergeSchemas(group)})
	}

	return groups
}

// mergeSchemas folds a group of schemas into one representative schema
// using the same type-merge lattice applied during inference.
func mergeSchemas(schemas []*types.InferredSchema) *types.InferredSchema {
	if len(schemas) == 0 {
		return nil
	}
	if len(schemas) == 1 {
		return schemas[0]
	}

	merged := types.NewObjectType()
	recordCount := 0
	present := map[string]int{}
	for _, s := range schemas {
		recordCount += s.RecordCount
		for key, field := range s.Root.Properties {
			present[key]++
			existing, ok := merged.Properties[key]
			if !ok {
				fieldCopy := *field
				merged.Properties[key] = &fieldCopy
				merged.Order = append(merged.Order, key)
				continue
			}
			mergedType := merge(existing.Type, field.Type)
			existing.Type = mergedType
			existing.Nullable = existing.Nullable || field.Nullable
			existing.Required = existing.Required && field.Required
			existing.Occurrences += field.Occurrences
		}
	}
	// A field missing from any schema of the group is not required.
	for key, n := range present {
		if n < len(schemas) {
			merged.Properties[key].Required = false
		}
	}

	return &types.InferredSchema{
		Root:        merged,
		RecordCount: recordCount,
		FieldStats:  map[string]*types.FieldStats{},
	}
}
