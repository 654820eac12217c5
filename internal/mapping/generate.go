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
	"fmt"
	"strconv"
	"strings"

	"odcspipeline/internal/types"
)

// lastSegment returns the final dotted component of a path; nested source
// and target paths reduce to this when used as a flat SQL/dataframe column
// identifier.
func lastSegment(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx == -1 {
		return path
	}
	return path[idx+1:]
}

func sqlIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqlType(k types.TypeKind) string {
	switch k {
	case types.KindInteger:
		return "INTEGER"
	case types.KindNumber:
		return "DOUBLE"
	case types.KindBoolean:
		return "BOOLEAN"
	default:
		return "VARCHAR"
	}
}

func sqlLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// GenerateSQL emits an INSERT INTO ... SELECT ... statement in a
// DuckDB-compatible dialect (also valid against the SQLite staging backend).
func GenerateSQL(m types.SchemaMapping, sourceTable, targetTable string) string {
	var cols, exprs []string

	for _, d := range m.DirectMappings {
		cols = append(cols, sqlIdent(lastSegment(d.TargetPath)))
		exprs = append(exprs, sqlIdent(lastSegment(d.SourcePath)))
	}
	for _, tr := range m.Transformations {
		cols = append(cols, sqlIdent(lastSegment(tr.TargetPath)))
		exprs = append(exprs, sqlTransformExpr(tr))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s)\n", sqlIdent(targetTable), strings.Join(cols, ", "))
	fmt.Fprintf(&b, "SELECT %s\nFROM %s;\n", strings.Join(exprs, ", "), sqlIdent(sourceTable))

	if len(m.Extras) > 0 {
		b.WriteString("\n-- Unmapped source fields:\n")
		for _, e := range m.Extras {
			fmt.Fprintf(&b, "--   %s\n", e)
		}
	}

	var gapsLackingDefaults []string
	for _, g := range m.Gaps {
		if g.Required && g.SuggestedDefault == nil {
			gapsLackingDefaults = append(gapsLackingDefaults, g.TargetPath)
		}
	}
	if len(gapsLackingDefaults) > 0 {
		b.WriteString("\n-- WARNING: required target fields with no default:\n")
		for _, g := range gapsLackingDefaults {
			fmt.Fprintf(&b, "--   %s\n", g)
		}
	}

	return b.String()
}

func sqlTransformExpr(tr types.TransformMapping) string {
	src := func(i int) string {
		if i < len(tr.SourcePaths) {
			return sqlIdent(lastSegment(tr.SourcePaths[i]))
		}
		return "NULL"
	}

	switch tr.Transform.Kind {
	case types.TransformTypeCast:
		return fmt.Sprintf("CAST(%s AS %s)", src(0), sqlType(tr.Transform.ToType))
	case types.TransformMerge:
		parts := make([]string, len(tr.SourcePaths))
		for i := range tr.SourcePaths {
			parts[i] = src(i)
		}
		return fmt.Sprintf("CONCAT_WS('%s', %s)", tr.Transform.Separator, strings.Join(parts, ", "))
	case types.TransformSplit:
		return fmt.Sprintf("STRING_SPLIT(%s, '%s')", src(0), tr.Transform.Delimiter)
	case types.TransformFormatChange:
		return fmt.Sprintf("STRFTIME(%s, '%s')", src(0), tr.Transform.ToFormat)
	case types.TransformExtract:
		return fmt.Sprintf("JSON_EXTRACT(%s, '%s')", src(0), tr.Transform.JSONPath)
	case types.TransformDefault:
		return sqlLiteral(tr.Transform.DefaultValue)
	case types.TransformCustom:
		return tr.Transform.Expression
	case types.TransformRename:
		return src(0)
	default:
		return src(0)
	}
}

func jqLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// GenerateJQ emits a jq-compatible object-construction filter.
func GenerateJQ(m types.SchemaMapping) string {
	var lines []string

	for _, d := range m.DirectMappings {
		lines = append(lines, fmt.Sprintf("  %s: .%s", strconv.Quote(d.TargetPath), d.SourcePath))
	}
	for _, tr := range m.Transformations {
		lines = append(lines, fmt.Sprintf("  %s: %s", strconv.Quote(tr.TargetPath), jqTransformExpr(tr)))
	}

	var b strings.Builder
	b.WriteString("{\n")
	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n}\n")
	return b.String()
}

func jqTransformExpr(tr types.TransformMapping) string {
	src := func(i int) string {
		if i < len(tr.SourcePaths) {
			return "." + tr.SourcePaths[i]
		}
		return "null"
	}

	switch tr.Transform.Kind {
	case types.TransformTypeCast:
		switch tr.Transform.ToType {
		case types.KindInteger, types.KindNumber:
			return fmt.Sprintf("(%s | tonumber)", src(0))
		case types.KindString:
			return fmt.Sprintf("(%s | tostring)", src(0))
		case types.KindBoolean:
			return fmt.Sprintf("(%s | tostring | test(\"^(1|true)$\"))", src(0))
		default:
			return src(0)
		}
	case types.TransformMerge:
		parts := make([]string, len(tr.SourcePaths))
		for i := range tr.SourcePaths {
			parts[i] = src(i)
		}
		return fmt.Sprintf("[ %s ] | join(%s)", strings.Join(parts, ", "), strconv.Quote(tr.Transform.Separator))
	case types.TransformSplit:
		return fmt.Sprintf("%s | split(%s)", src(0), strconv.Quote(tr.Transform.Delimiter))
	case types.TransformFormatChange:
		return fmt.Sprintf("%s | strftime(%s)", src(0), strconv.Quote(tr.Transform.ToFormat))
	case types.TransformExtract:
		return "." + tr.Transform.JSONPath
	case types.TransformDefault:
		return jqLiteral(tr.Transform.DefaultValue)
	case types.TransformCustom:
		return tr.Transform.Expression
	case types.TransformRename:
		return src(0)
	default:
		return src(0)
	}
}

func pyLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case string:
		return strconv.Quote(val)
	case bool:
		if val {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprintf("%v", val)
	}
}

func pyGet(path string) string {
	return fmt.Sprintf("_get(source, %s)", strconv.Quote(path))
}

// GenerateScript emits an imperative transform_record/transform_batch pair.
func GenerateScript(m types.SchemaMapping) string {
	var b strings.Builder
	b.WriteString("def _get(d, path):\n")
	b.WriteString("    cur = d\n")
	b.WriteString("    for part in path.split(\".\"):\n")
	b.WriteString("        if not isinstance(cur, dict) or part not in cur:\n")
	b.WriteString("            return None\n")
	b.WriteString("        cur = cur[part]\n")
	b.WriteString("    return cur\n\n")

	b.WriteString("def transform_record(source):\n")
	b.WriteString("    target = {}\n")

	for _, d := range m.DirectMappings {
		fmt.Fprintf(&b, "    target[%s] = %s\n", strconv.Quote(d.TargetPath), pyGet(d.SourcePath))
	}
	for _, tr := range m.Transformations {
		fmt.Fprintf(&b, "    target[%s] = %s\n", strconv.Quote(tr.TargetPath), pyTransformExpr(tr))
	}

	b.WriteString("    return target\n\n")
	b.WriteString("def transform_batch(records):\n")
	b.WriteString("    return [transform_record(r) for r in records]\n")

	return b.String()
}

func pyTransformExpr(tr types.TransformMapping) string {
	src := func(i int) string {
		if i < len(tr.SourcePaths) {
			return pyGet(tr.SourcePaths[i])
		}
		return "None"
	}

	switch tr.Transform.Kind {
	case types.TransformTypeCast:
		switch tr.Transform.ToType {
		case types.KindInteger:
			return fmt.Sprintf("int(%s)", src(0))
		case types.KindNumber:
			return fmt.Sprintf("float(%s)", src(0))
		case types.KindString:
			return fmt.Sprintf("str(%s)", src(0))
		case types.KindBoolean:
			return fmt.Sprintf("bool(%s)", src(0))
		default:
			return src(0)
		}
	case types.TransformMerge:
		parts := make([]string, len(tr.SourcePaths))
		for i := range tr.SourcePaths {
			parts[i] = fmt.Sprintf("str(%s)", src(i))
		}
		return fmt.Sprintf("%s.join([%s])", strconv.Quote(tr.Transform.Separator), strings.Join(parts, ", "))
	case types.TransformSplit:
		return fmt.Sprintf("%s.split(%s)", src(0), strconv.Quote(tr.Transform.Delimiter))
	case types.TransformFormatChange:
		return fmt.Sprintf("reformat_date(%s, %s)", src(0), strconv.Quote(tr.Transform.ToFormat))
	case types.TransformExtract:
		return fmt.Sprintf("extract_json_path(%s, %s)", src(0), strconv.Quote(tr.Transform.JSONPath))
	case types.TransformDefault:
		return pyLiteral(tr.Transform.DefaultValue)
	case types.TransformCustom:
		return tr.Transform.Expression
	case types.TransformRename:
		return src(0)
	default:
		return src(0)
	}
}

// GenerateDataframe emits a Spark-column-flavoured select() expression.
func GenerateDataframe(m types.SchemaMapping, sourceTable string) string {
	var cols []string

	for _, d := range m.DirectMappings {
		cols = append(cols, fmt.Sprintf(`col(%s).alias(%s)`, strconv.Quote(d.SourcePath), strconv.Quote(d.TargetPath)))
	}
	for _, tr := range m.Transformations {
		cols = append(cols, dataframeTransformExpr(tr))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s.select(\n", sourceTable)
	for _, c := range cols {
		fmt.Fprintf(&b, "    %s,\n", c)
	}
	b.WriteString(")\n")
	return b.String()
}

func dataframeTransformExpr(tr types.TransformMapping) string {
	src := func(i int) string {
		if i < len(tr.SourcePaths) {
			return fmt.Sprintf("col(%s)", strconv.Quote(tr.SourcePaths[i]))
		}
		return "lit(None)"
	}
	alias := strconv.Quote(tr.TargetPath)

	switch tr.Transform.Kind {
	case types.TransformTypeCast:
		return fmt.Sprintf("%s.cast(%s).alias(%s)", src(0), strconv.Quote(sparkType(tr.Transform.ToType)), alias)
	case types.TransformMerge:
		parts := make([]string, len(tr.SourcePaths))
		for i := range tr.SourcePaths {
			parts[i] = src(i)
		}
		return fmt.Sprintf("concat_ws(%s, %s).alias(%s)", strconv.Quote(tr.Transform.Separator), strings.Join(parts, ", "), alias)
	case types.TransformSplit:
		return fmt.Sprintf("split(%s, %s).alias(%s)", src(0), strconv.Quote(tr.Transform.Delimiter), alias)
	case types.TransformFormatChange:
		return fmt.Sprintf("date_format(%s, %s).alias(%s)", src(0), strconv.Quote(tr.Transform.ToFormat), alias)
	case types.TransformExtract:
		return fmt.Sprintf("get_json_object(%s, %s).alias(%s)", src(0), strconv.Quote(tr.Transform.JSONPath), alias)
	case types.TransformDefault:
		return fmt.Sprintf("lit(%s).alias(%s)", pyLiteral(tr.Transform.DefaultValue), alias)
	case types.TransformCustom:
		return fmt.Sprintf("%s.alias(%s)", tr.Transform.Expression, alias)
	case types.TransformRename:
		return fmt.Sprintf("%s.alias(%s)", src(0), alias)
	default:
		return fmt.Sprintf("%s.alias(%s)", src(0), alias)
	}
}

func sparkType(k types.TypeKind) string {
	switch k {
	case types.KindInteger:
		return "int"
	case types.KindNumber:
		return "double"
	case types.KindBoolean:
		return "boolean"
	default:
		return "string"
	}
}
