// SPDX-License-Identifier: AGPL-3.0-or-later

package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"odcspipeline/internal/types"
)

func sampleMapping() types.SchemaMapping {
	return types.SchemaMapping{
		DirectMappings: []types.FieldMapping{
			{SourcePath: "user.id", TargetPath: "user_id", Confidence: 1, TypeCompatible: true, Method: types.MatchExact},
		},
		Transformations: []types.TransformMapping{
			{
				SourcePaths: []string{"user.age"},
				TargetPath:  "age_years",
				Transform:   types.TransformType{Kind: types.TransformTypeCast, ToType: types.KindInteger},
				Confidence:  0.9,
			},
			{
				SourcePaths: []string{"first_name", "last_name"},
				TargetPath:  "full_name",
				Transform:   types.TransformType{Kind: types.TransformMerge, Separator: " "},
				Confidence:  0.8,
			},
			{
				SourcePaths: []string{"created"},
				TargetPath:  "created_at",
				Transform:   types.TransformType{Kind: types.TransformFormatChange, ToFormat: string(types.FormatDateTime)},
				Confidence:  0.7,
			},
		},
		Gaps: []types.FieldGap{
			{TargetPath: "missing_required", TargetType: types.KindString, Required: true},
			{TargetPath: "missing_optional", TargetType: types.KindString, Required: false, SuggestedDefault: "n/a"},
		},
		Extras: []string{"legacy_field"},
	}
}

func TestGenerateSQL(t *testing.T) {
	m := sampleMapping()
	sql := GenerateSQL(m, "staged_records", "target")

	assert.Contains(t, sql, "INSERT INTO")
	assert.Contains(t, sql, `"user_id"`)
	assert.Contains(t, sql, "CAST(")
	assert.Contains(t, sql, "CONCAT_WS(")
	assert.Contains(t, sql, "STRFTIME(")
	assert.Contains(t, sql, "legacy_field")
	assert.Contains(t, sql, "WARNING:")
	assert.Contains(t, sql, "missing_required")
}

func TestGenerateJQ(t *testing.T) {
	m := sampleMapping()
	jq := GenerateJQ(m)

	assert.Contains(t, jq, "tonumber")
	assert.Contains(t, jq, "join(")
	assert.Contains(t, jq, "strftime(")
	assert.Contains(t, jq, ".user.id")
}

func TestGenerateScript(t *testing.T) {
	m := sampleMapping()
	script := GenerateScript(m)

	assert.Contains(t, script, "def transform_record(")
	assert.Contains(t, script, "def transform_batch(")
	assert.Contains(t, script, "int(")
	assert.Contains(t, script, "reformat_date(")
	assert.Contains(t, script, `.join([`)
}

func TestGenerateDataframe(t *testing.T) {
	m := sampleMapping()
	df := GenerateDataframe(m, "df")

	assert.Contains(t, df, "df.select(")
	assert.Contains(t, df, ".cast(")
	assert.Contains(t, df, "concat_ws(")
	assert.Contains(t, df, "date_format(")
	assert.Contains(t, df, ".alias(")
}

func TestGenerateSQL_NoGapsOrExtras(t *testing.T) {
	m := types.SchemaMapping{
		DirectMappings: []types.FieldMapping{
			{SourcePath: "id", TargetPath: "id", Confidence: 1, TypeCompatible: true, Method: types.MatchExact},
		},
	}
	sql := GenerateSQL(m, "src", "dst")
	assert.NotContains(t, sql, "WARNING:")
	assert.Contains(t, sql, "INSERT INTO")
}
