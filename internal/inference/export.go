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

// ExportJSONSchema renders an InferredSchema as a JSON-Schema-compatible
// document: the root is always an object schema, and per-path FieldStats
// are attached as a sibling "x-field-stats" map rather than interleaved
// into the type tree, per the documented export format.
func ExportJSONSchema(schema *types.InferredSchema) map[string]any {
	doc := typeToSchema(&schema.Root)

	if len(schema.FieldStats) > 0 {
		stats := make(map[string]any, len(schema.FieldStats))
		for path, fs := range schema.FieldStats {
			entry := map[string]any{
				"occurrences":    fs.Occurrences,
				"null_count":     fs.NullCount,
				"distinct_count": fs.DistinctN,
			}
			if fs.Min != nil {
				entry["min"] = *fs.Min
			}
			if fs.Max != nil {
				entry["max"] = *fs.Max
			}
			if fs.Mean != nil {
				entry["mean"] = *fs.Mean
			}
			stats[path] = entry
		}
		doc["x-field-stats"] = stats
	}

	return doc
}

func typeToSchema(t *types.InferredType) map[string]any {
	switch t.Kind {
	case types.KindObject:
		props := make(map[string]any, len(t.Properties))
		var required []string
		for _, name := range t.Order {
			field, ok := t.Properties[name]
			if !ok {
				continue
			}
			props[name] = fieldToSchema(field)
			if field.Required {
				required = append(required, name)
			}
		}
		doc := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			doc["required"] = required
		}
		return doc

	case types.KindArray:
		doc := map[string]any{"type": "array"}
		if t.Items != nil {
			doc["items"] = typeToSchema(t.Items)
		}
		return doc

	case types.KindString:
		doc := map[string]any{"type": "string"}
		if t.Format != types.FormatNone {
			doc["format"] = string(t.Format)
		}
		return doc

	case types.KindMixed:
		variants := make([]any, len(t.Variants))
		for i, v := range t.Variants {
			variants[i] = typeToSchema(v)
		}
		return map[string]any{"anyOf": variants}

	case types.KindNull, types.KindUnknown:
		return map[string]any{"type": "null"}

	default:
		return map[string]any{"type": string(t.Kind)}
	}
}

func fieldToSchema(f *types.InferredField) map[string]any {
	doc := typeToSchema(&f.Type)
	if f.Description != "" {
		doc["description"] = f.Description
	}
	if f.Nullable {
		doc["nullable"] = true
	}
	return doc
}
