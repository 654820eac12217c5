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

import (
	"net"
	"net/mail"
	"net/url"
	"regexp"
	"time"

	"odcspipeline/internal/types"
)

var (
	uuidRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// detectFormat classifies a string value's semantic format, in the fixed
// priority order UUID > datetime > date > email > URL > IPv4 > IPv6.
func detectFormat(s string) types.StringFormat {
	if uuidRe.MatchString(s) {
		return types.FormatUUID
	}
	if _, err := time.Parse(time.RFC3339, s); err == nil {
		return types.FormatDateTime
	}
	if dateRe.MatchString(s) {
		if _, err := time.Parse("2006-01-02", s); err == nil {
			return types.FormatDate
		}
	}
	if _, err := mail.ParseAddress(s); err == nil {
		return types.FormatEmail
	}
	if u, err := url.ParseRequestURI(s); err == nil && u.Scheme != "" && u.Host != "" {
		return types.FormatURL
	}
	if ip := net.ParseIP(s); ip != nil {
		if ip.To4() != nil {
			return types.FormatIPv4
		}
		return types.FormatIPv6
	}
	return types.FormatNone
}

// classify returns the immediate structural type of a decoded JSON value.
// Nested array/object contents are not descended here; the caller recurses
// separately and merges children into Items/Properties.
func classify(val any, detectFormats bool) types.InferredType {
	switch v := val.(type) {
	case nil:
		return types.InferredType{Kind: types.KindNull}
	case bool:
		return types.InferredType{Kind: types.KindBoolean}
	case float64:
		if v == float64(int64(v)) {
			return types.InferredType{Kind: types.KindInteger}
		}
		return types.InferredType{Kind: types.KindNumber}
	case string:
		format := types.FormatNone
		if detectFormats {
			format = detectFormat(v)
		}
		return types.InferredType{Kind: types.KindString, Format: format}
	case []any:
		return types.InferredType{Kind: types.KindArray}
	case map[string]any:
		return types.InferredType{Kind: types.KindObject}
	default:
		return types.InferredType{Kind: types.KindUnknown}
	}
}

// merge combines two InferredTypes per the type-merge lattice: identical
// types merge to themselves; Integer/Number widen to Number; Null never
// contributes a variant (nullability is tracked at the field level, not
// inside the type); anything else becomes Mixed.
func merge(a, b types.InferredType) types.InferredType {
	if a.Kind == types.KindUnknown {
		return b
	}
	if b.Kind == types.KindUnknown {
		return a
	}
	if b.Kind == types.KindNull {
		return a
	}
	if a.Kind == types.KindNull {
		return b
	}

	if a.Kind == b.Kind {
		if a.Kind == types.KindString && a.Format != b.Format {
			return types.InferredType{Kind: types.KindString, Format: types.FormatNone}
		}
		return a
	}

	if (a.Kind == types.KindInteger && b.Kind == types.KindNumber) ||
		(a.Kind == types.KindNumber && b.Kind == types.KindInteger) {
		return types.InferredType{Kind: types.KindNumber}
	}

	return mergeMixed(a, b)
}

func mergeMixed(a, b types.InferredType) types.InferredType {
	variants := []*types.InferredType{}
	// Integer and Number coalesce to Number inside a union just as they do
	// in a direct pairwise merge; without this, the variant set would
	// depend on the order observations arrived in.
	add := func(t types.InferredType) {
		for i, v := range variants {
			if v.Kind == t.Kind {
				return
			}
			if v.Kind == types.KindInteger && t.Kind == types.KindNumber {
				variants[i] = &types.InferredType{Kind: types.KindNumber}
				return
			}
			if v.Kind == types.KindNumber && t.Kind == types.KindInteger {
				return
			}
		}
		tc := t
		variants = append(variants, &tc)
	}

	if a.Kind == types.KindMixed {
		for _, v := range a.Variants {
			add(*v)
		}
	} else {
		add(a)
	}

	if b.Kind == types.KindMixed {
		for _, v := range b.Variants {
			add(*v)
		}
	} else {
		add(b)
	}

	if len(variants) == 1 {
		return *variants[0]
	}
	return types.InferredType{Kind: types.KindMixed, Variants: variants}
}

// mergeAll folds a slice of observed InferredTypes into one, in order.
func mergeAll(ts []types.InferredType) types.InferredType {
	result := types.InferredType{Kind: types.KindUnknown}
	for _, t := range ts {
		result = merge(result, t)
	}
	return result
}
