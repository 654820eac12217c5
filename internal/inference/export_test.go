// SPDX-License-Identifier: AGPL-3.0-or-later

package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odcspipeline/internal/types"
)

func TestExportJSONSchema_ObjectWithFieldStats(t *testing.T) {
	mean := 42.5
	schema := &types.InferredSchema{
		Root: types.InferredType{
			Kind:  types.KindObject,
			Order: []string{"id", "tags", "name"},
			Properties: map[string]*types.InferredField{
				"id":   {Type: types.InferredType{Kind: types.KindInteger}, Required: true},
				"tags": {Type: types.InferredType{Kind: types.KindArray, Items: &types.InferredType{Kind: types.KindString}}},
				"name": {Type: types.InferredType{Kind: types.KindString, Format: types.FormatEmail}, Nullable: true, Description: "contact email"},
			},
		},
		RecordCount: 10,
		FieldStats: map[string]*types.FieldStats{
			"id": {Occurrences: 10, NullCount: 0, DistinctN: 10, Mean: &mean},
		},
	}

	doc := ExportJSONSchema(schema)

	assert.Equal(t, "object", doc["type"])
	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok)

	idSchema := props["id"].(map[string]any)
	assert.Equal(t, "integer", idSchema["type"])

	nameSchema := props["name"].(map[string]any)
	assert.Equal(t, "string", nameSchema["type"])
	assert.Equal(t, "email", nameSchema["format"])
	assert.Equal(t, "contact email", nameSchema["description"])
	assert.Equal(t, true, nameSchema["nullable"])

	tagsSchema := props["tags"].(map[string]any)
	assert.Equal(t, "array", tagsSchema["type"])
	items := tagsSchema["items"].(map[string]any)
	assert.Equal(t, "string", items["type"])

	required, ok := doc["required"].([]string)
	require.True(t, ok)
	assert.Contains(t, required, "id")
	assert.NotContains(t, required, "name")

	stats, ok := doc["x-field-stats"].(map[string]any)
	require.True(t, ok)
	idStats := stats["id"].(map[string]any)
	assert.Equal(t, 10, idStats["occurrences"])
	assert.Equal(t, mean, idStats["mean"])
}

func TestExportJSONSchema_MixedType(t *testing.T) {
	schema := &types.InferredSchema{
		Root: types.InferredType{
			Kind: types.KindMixed,
			Variants: []*types.InferredType{
				{Kind: types.KindString},
				{Kind: types.KindInteger},
			},
		},
	}

	doc := ExportJSONSchema(schema)
	variants, ok := doc["anyOf"].([]any)
	require.True(t, ok)
	require.Len(t, variants, 2)
}

func TestExportJSONSchema_NoFieldStats(t *testing.T) {
	schema := &types.InferredSchema{Root: types.NewObjectType()}
	doc := ExportJSONSchema(schema)
	_, ok := doc["x-field-stats"]
	assert.False(t, ok)
}
