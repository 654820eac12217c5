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
	"fmt"
	"sort"
)

// ValidationErrorKind discriminates why a refinement was rejected.
type ValidationErrorKind string

const (
	FieldRemoved     ValidationErrorKind = "field_removed"
	FieldRenamed     ValidationErrorKind = "field_renamed"
	TypeChanged      ValidationErrorKind = "type_changed"
	StructureChanged ValidationErrorKind = "structure_changed"
	RequiredChanged  ValidationErrorKind = "required_changed"
	InvalidStructure ValidationErrorKind = "invalid_structure"
)

// ValidationError describes one additive-only-rule violation.
type ValidationError struct {
	Kind   ValidationErrorKind
	Path   string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("llm: %s at %s: %s", e.Kind, e.Path, e.Detail)
}

// ValidationResult holds every error found (empty means valid) plus
// informational warnings about additive changes.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []string
}

func (r *ValidationResult) Valid() bool { return len(r.Errors) == 0 }

// compatibleTypes reports whether a refinement may change a field's single
// type: identical types are compatible, and number may narrow to integer
// (the refined type only tightens what the original already allowed).
// Every other change, including integer to number, is incompatible.
func compatibleTypes(original, refined string) bool {
	if original == refined {
		return true
	}
	if original == "number" && refined == "integer" {
		return true
	}
	return false
}

// ValidateRefinement checks that refined only adds to original: no
// property removed, no required field un-required, and no incompatible
// type change. Returns an error wrapping the first violation it finds in
// addition to the full ValidationResult for callers that want every
// violation.
func ValidateRefinement(original, refined map[string]any) (*ValidationResult, error) {
	result := &ValidationResult{}

	origProps, _ := original["properties"].(map[string]any)
	refProps, _ := refined["properties"].(map[string]any)

	if origProps != nil {
		if refProps == nil {
			result.Errors = append(result.Errors, &ValidationError{
				Kind: StructureChanged, Path: "$", Detail: "refined schema has no properties",
			})
		} else {
			validateProperties("$", origProps, refProps, original, refined, result)
		}
	}

	if len(result.Errors) > 0 {
		return result, result.Errors[0]
	}
	return result, nil
}

func validateProperties(path string, origProps, refProps map[string]any, origParent, refParent map[string]any, result *ValidationResult) {
	origRequired := stringSet(origParent["required"])
	refRequired := stringSet(refParent["required"])

	names := make([]string, 0, len(origProps))
	for name := range origProps {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fieldPath := path + "." + name
		origField, _ := origProps[name].(map[string]any)
		refField, ok := refProps[name]
		if !ok {
			result.Errors = append(result.Errors, &ValidationError{
				Kind: FieldRemoved, Path: fieldPath, Detail: "property present in original is missing from refined",
			})
			continue
		}

		refFieldMap, ok := refField.(map[string]any)
		if !ok {
			result.Errors = append(result.Errors, &ValidationError{
				Kind: InvalidStructure, Path: fieldPath, Detail: "refined property is not an object",
			})
			continue
		}

		validateField(fieldPath, origField, refFieldMap, result)

		if _, required := origRequired[name]; required {
			if _, stillRequired := refRequired[name]; !stillRequired {
				result.Errors = append(result.Errors, &ValidationError{
					Kind: RequiredChanged, Path: fieldPath, Detail: "field is no longer required",
				})
			}
		}
	}

	for name := range refProps {
		if _, existed := origProps[name]; !existed {
			result.Warnings = append(result.Warnings, fmt.Sprintf("new field added: %s.%s", path, name))
		}
	}
	for name := range refRequired {
		if _, existed := origRequired[name]; !existed {
			result.Warnings = append(result.Warnings, fmt.Sprintf("field newly required: %s.%s", path, name))
		}
	}
}

func validateField(path string, orig, refined map[string]any, result *ValidationResult) {
	origType, _ := orig["type"].(string)
	refType, _ := refined["type"].(string)
	_, origIsList := orig["type"].([]any)
	_, refIsList := refined["type"].([]any)

	if (origType != "" || origIsList) && (refType != "" || refIsList) &&
		!compatibleTypes(origType, refType) && !arrayNarrowingCompatible(orig, refined) {
		result.Errors = append(result.Errors, &ValidationError{
			Kind: TypeChanged, Path: path,
			Detail: fmt.Sprintf("type changed from %v to %v", orig["type"], refined["type"]),
		})
		return
	}

	if _, hadDescription := orig["description"]; !hadDescription {
		if _, hasDescription := refined["description"]; hasDescription {
			result.Warnings = append(result.Warnings, fmt.Sprintf("description added: %s", path))
		}
	}
	if _, hadFormat := orig["format"]; !hadFormat {
		if _, hasFormat := refined["format"]; hasFormat {
			result.Warnings = append(result.Warnings, fmt.Sprintf("format added: %s", path))
		}
	}

	if origType == "object" {
		origChildProps, _ := orig["properties"].(map[string]any)
		refChildProps, _ := refined["properties"].(map[string]any)
		if origChildProps != nil {
			if refChildProps == nil {
				result.Errors = append(result.Errors, &ValidationError{
					Kind: StructureChanged, Path: path, Detail: "nested properties removed",
				})
				return
			}
			validateProperties(path, origChildProps, refChildProps, orig, refined, result)
		}
	}
}

// arrayNarrowingCompatible allows an array-of-types original to be
// narrowed to a single member type present in the original union, and
// allows a single type to widen into an array that still contains it.
func arrayNarrowingCompatible(orig, refined map[string]any) bool {
	origTypes, origIsList := orig["type"].([]any)
	refTypes, refIsList := refined["type"].([]any)

	if origIsList && !refIsList {
		refType, _ := refined["type"].(string)
		for _, t := range origTypes {
			if s, ok := t.(string); ok && s == refType {
				return true
			}
		}
		return false
	}

	if !origIsList && refIsList {
		origType, _ := orig["type"].(string)
		for _, t := range refTypes {
			if s, ok := t.(string); ok && s == origType {
				return true
			}
		}
		return false
	}

	return false
}

func stringSet(v any) map[string]struct{} {
	out := map[string]struct{}{}
	list, _ := v.([]any)
	for _, item := range list {
		if s, ok := item.(string); ok {
			out[s] = struct{}{}
		}
	}
	return out
}
