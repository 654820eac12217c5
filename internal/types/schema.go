// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package types

import "fmt"

// TypeKind discriminates the variant an InferredType holds.
type TypeKind string

const (
	KindUnknown TypeKind = "unknown"
	KindNull    TypeKind = "null"
	KindBoolean TypeKind = "boolean"
	KindInteger TypeKind = "integer"
	KindNumber  TypeKind = "number"
	KindString  TypeKind = "string"
	KindArray   TypeKind = "array"
	KindObject  TypeKind = "object"
	KindMixed   TypeKind = "mixed"
)

// StringFormat is a detected semantic format for a KindString value.
type StringFormat string

const (
	FormatNone     StringFormat = ""
	FormatUUID     StringFormat = "uuid"
	FormatDate     StringFormat = "date"
	FormatDateTime StringFormat = "date-time"
	FormatEmail    StringFormat = "email"
	FormatURL      StringFormat = "url"
	FormatIPv4     StringFormat = "ipv4"
	FormatIPv6     StringFormat = "ipv6"
)

// InferredType is a tagged union describing the structural type observed
// for a JSON value. Only the fields relevant to Kind are populated.
type InferredType struct {
	Kind TypeKind `json:"type"`

	// KindString only.
	Format StringFormat `json:"format,omitempty"`

	// KindArray only.
	Items *InferredType `json:"items,omitempty"`

	// KindObject only. Preserves insertion order via Order.
	Properties map[string]*InferredField `json:"properties,omitempty"`
	Order      []string                  `json:"-"`

	// KindMixed only: the distinct member kinds observed, order-preserving.
	Variants []*InferredType `json:"anyOf,omitempty"`
}

// InferredField is one property of an object type plus observation stats.
type InferredField struct {
	Type        InferredType `json:"type"`
	Nullable    bool         `json:"nullable"`
	Required    bool         `json:"required"`
	Occurrences int          `json:"occurrences"`
	Examples    []string     `json:"examples,omitempty"`
	Description string       `json:"description,omitempty"`
}

// FieldStats holds per-JSON-path observation statistics gathered during
// inference, independent of the finalised type tree.
type FieldStats struct {
	Occurrences int      `json:"occurrences"`
	NullCount   int      `json:"null_count"`
	DistinctN   int      `json:"distinct_count"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Mean        *float64 `json:"mean,omitempty"`
}

// InferredSchema is the finalised result of schema inference over a sample
// of records.
type InferredSchema struct {
	Root        InferredType           `json:"root"`
	RecordCount int                    `json:"record_count"`
	Partition   string                 `json:"partition,omitempty"`
	FieldStats  map[string]*FieldStats `json:"field_stats"`
}

// NewObjectType returns an empty, ready-to-populate object InferredType.
func NewObjectType() InferredType {
	return InferredType{Kind: KindObject, Properties: map[string]*InferredField{}}
}

// String renders a compact human-readable description of the type, used in
// CLI summaries and test assertions.
func (t InferredType) String() string {
	switch t.Kind {
	case KindString:
		if t.Format != FormatNone {
			return fmt.Sprintf("string<%s>", t.Format)
		}
		return "string"
	case KindArray:
		if t.Items != nil {
			return fmt.Sprintf("array<%s>", t.Items.String())
		}
		return "array"
	case KindObject:
		return fmt.Sprintf("object{%d}", len(t.Properties))
	case KindMixed:
		return fmt.Sprintf("mixed(%d)", len(t.Variants))
	default:
		return string(t.Kind)
	}
}
