// SPDX-License-Identifier: AGPL-3.0-or-later

package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odcspipeline/internal/types"
)

func schemaDoc(required []string, props map[string]any) map[string]any {
	doc := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		reqs := make([]any, len(required))
		for i, r := range required {
			reqs[i] = r
		}
		doc["required"] = reqs
	}
	return doc
}

func TestFlatten_NestedObjectAndRequired(t *testing.T) {
	doc := schemaDoc([]string{"id"}, map[string]any{
		"id": map[string]any{"type": "integer"},
		"address": map[string]any{
			"type":     "object",
			"required": []any{"city"},
			"properties": map[string]any{
				"city": map[string]any{"type": "string"},
				"zip":  map[string]any{"type": "string"},
			},
		},
	})

	fields := Flatten(doc)

	require.Contains(t, fields, "id")
	assert.Equal(t, types.KindInteger, fields["id"].Type)
	assert.True(t, fields["id"].Required)

	require.Contains(t, fields, "address.city")
	assert.True(t, fields["address.city"].Required)
	require.Contains(t, fields, "address.zip")
	assert.False(t, fields["address.zip"].Required)
}

func TestMatch_ExactPhase(t *testing.T) {
	source := map[string]FieldInfo{"user_id": {Path: "user_id", Type: types.KindInteger}}
	target := map[string]FieldInfo{"user_id": {Path: "user_id", Type: types.KindInteger, Required: true}}

	m := Match(source, target, DefaultConfig())

	require.Len(t, m.DirectMappings, 1)
	assert.Equal(t, types.MatchExact, m.DirectMappings[0].Method)
	assert.Equal(t, 1.0, m.DirectMappings[0].Confidence)
	assert.Empty(t, m.Gaps)
}

func TestMatch_CaseInsensitivePhase(t *testing.T) {
	source := map[string]FieldInfo{"UserID": {Path: "UserID", Type: types.KindInteger}}
	target := map[string]FieldInfo{"userid": {Path: "userid", Type: types.KindInteger}}

	m := Match(source, target, DefaultConfig())

	require.Len(t, m.DirectMappings, 1)
	assert.Equal(t, types.MatchCaseInsensitive, m.DirectMappings[0].Method)
	assert.Equal(t, 0.95, m.DirectMappings[0].Confidence)
}

func TestMatch_FuzzyPhase(t *testing.T) {
	source := map[string]FieldInfo{"emial": {Path: "emial", Type: types.KindString}}
	target := map[string]FieldInfo{"email": {Path: "email", Type: types.KindString}}

	m := Match(source, target, DefaultConfig())

	require.Len(t, m.DirectMappings, 1)
	assert.Equal(t, types.MatchFuzzy, m.DirectMappings[0].Method)
	assert.Equal(t, "emial", m.DirectMappings[0].SourcePath)
}

func TestMatch_TypeCoercionBecomesTransform(t *testing.T) {
	source := map[string]FieldInfo{"age": {Path: "age", Type: types.KindString}}
	target := map[string]FieldInfo{"age": {Path: "age", Type: types.KindInteger}}

	m := Match(source, target, DefaultConfig())

	assert.Empty(t, m.DirectMappings)
	require.Len(t, m.Transformations, 1)
	assert.Equal(t, types.TransformTypeCast, m.Transformations[0].Transform.Kind)
	assert.Equal(t, types.KindInteger, m.Transformations[0].Transform.ToType)
}

func TestMatch_IncompatibleAndNotCoercibleBecomesGapAndExtra(t *testing.T) {
	source := map[string]FieldInfo{"payload": {Path: "payload", Type: types.KindObject}}
	target := map[string]FieldInfo{"payload": {Path: "payload", Type: types.KindArray, Required: true}}

	m := Match(source, target, DefaultConfig())

	assert.Empty(t, m.DirectMappings)
	assert.Empty(t, m.Transformations)
	require.Len(t, m.Gaps, 1)
	assert.Equal(t, "payload", m.Gaps[0].TargetPath)
	assert.True(t, m.Gaps[0].Required)
	assert.Equal(t, "incompatible type", m.Gaps[0].Reason)
	assert.Contains(t, m.Gaps[0].Suggestions, "payload")
	assert.Contains(t, m.Extras, "payload")
}

func TestMatch_GapGetsSuggestedDefault(t *testing.T) {
	source := map[string]FieldInfo{}
	target := map[string]FieldInfo{"status": {Path: "status", Type: types.KindString, Required: true}}

	m := Match(source, target, DefaultConfig())

	require.Len(t, m.Gaps, 1)
	assert.Equal(t, "", m.Gaps[0].SuggestedDefault)
}

func TestMatch_UnmatchedSourceBecomesExtra(t *testing.T) {
	source := map[string]FieldInfo{"legacy": {Path: "legacy", Type: types.KindString}}
	target := map[string]FieldInfo{}

	m := Match(source, target, DefaultConfig())

	assert.Equal(t, []string{"legacy"}, m.Extras)
}

func TestMatch_CompatibilityScoreAndRequiredGapPenalty(t *testing.T) {
	source := map[string]FieldInfo{"id": {Path: "id", Type: types.KindInteger}}
	target := map[string]FieldInfo{
		"id":       {Path: "id", Type: types.KindInteger},
		"required": {Path: "required", Type: types.KindString, Required: true},
	}

	m := Match(source, target, DefaultConfig())

	assert.Equal(t, 2, m.Stats.TotalTargetFields)
	assert.Equal(t, 1, m.Stats.DirectCount)
	assert.Equal(t, 1, m.Stats.RequiredGapCount)
	// numerator 1.0 / 2 targets - 0.2 required-gap penalty = 0.3
	assert.InDelta(t, 0.3, m.CompatibilityScore, 0.0001)
}

func TestTypeCompatible(t *testing.T) {
	assert.True(t, typeCompatible(types.KindString, types.KindString))
	assert.True(t, typeCompatible(types.KindInteger, types.KindNumber))
	assert.False(t, typeCompatible(types.KindNumber, types.KindInteger))
	assert.True(t, typeCompatible(types.KindUnknown, types.KindString))
}

func TestCoercible(t *testing.T) {
	assert.True(t, coercible(types.KindString, types.KindInteger))
	assert.True(t, coercible(types.KindNumber, types.KindInteger))
	assert.False(t, coercible(types.KindNull, types.KindInteger))
	assert.False(t, coercible(types.KindObject, types.KindArray))
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"email", "emial", 2},
		{"same", "same", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Levenshtein(tc.a, tc.b), "Levenshtein(%q, %q)", tc.a, tc.b)
	}
}
