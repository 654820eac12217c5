// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package inference builds an InferredSchema from a stream of sampled JSON
// records by merging each record's structural type into a running schema.
package inference

import (
	"encoding/json"
	"fmt"
	"sort"

	"odcspipeline/internal/types"
)

// ErrInvalidStructure is returned when a record's root value is not a JSON
// object.
var ErrInvalidStructure = fmt.Errorf("inference: record root must be a JSON object")

// ErrMaxDepthExceeded is returned when a nested structure exceeds Config.MaxDepth.
type ErrMaxDepthExceeded struct {
	Depth, Max int
}

func (e *ErrMaxDepthExceeded) Error() string {
	return fmt.Sprintf("inference: max depth %d exceeded (reached %d)", e.Max, e.Depth)
}

// Config controls inference behaviour.
type Config struct {
	SampleSize        int
	MinFieldFrequency float64
	DetectFormats     bool
	MaxDepth          int
	CollectExamples   bool
	MaxExamples       int
}

// DefaultConfig returns sensible defaults for Config.
func DefaultConfig() Config {
	return Config{
		SampleSize:        10000,
		MinFieldFrequency: 0,
		DetectFormats:     true,
		MaxDepth:          32,
		CollectExamples:   true,
		MaxExamples:       5,
	}
}

type pathStats struct {
	occurrences   int
	nulls         int
	distinct      map[string]struct{}
	min, max, sum float64
	numericCount  int
	hasNumeric    bool
	examples      []string
	types         []types.InferredType
}

// Inferrer accumulates observations across records and finalises them into
// an InferredSchema.
type Inferrer struct {
	cfg         Config
	recordCount int
	paths       map[string]*pathStats
	order       []string
}

// New creates an Inferrer with the given configuration.
func New(cfg Config) *Inferrer {
	return &Inferrer{cfg: cfg, paths: make(map[string]*pathStats)}
}

// Add ingests one record's raw JSON. Once Config.SampleSize records have
// been added, subsequent calls are no-ops (silent drop, matching the
// documented sample_size overflow behaviour).
func (inf *Inferrer) Add(raw string) error {
	if inf.cfg.SampleSize > 0 && inf.recordCount >= inf.cfg.SampleSize {
		return nil
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return fmt.Errorf("inference: parsing record: %w", err)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return ErrInvalidStructure
	}

	if err := inf.walkObject("$", obj, 0); err != nil {
		return err
	}
	inf.recordCount++
	return nil
}

func (inf *Inferrer) stat(path string) *pathStats {
	s, ok := inf.paths[path]
	if !ok {
		s = &pathStats{distinct: make(map[string]struct{})}
		inf.paths[path] = s
		inf.order = append(inf.order, path)
	}
	return s
}

func (inf *Inferrer) walkObject(prefix string, obj map[string]any, depth int) error {
	if inf.cfg.MaxDepth > 0 && depth > inf.cfg.MaxDepth {
		return &ErrMaxDepthExceeded{Depth: depth, Max: inf.cfg.MaxDepth}
	}

	for key, val := range obj {
		path := prefix + "." + key
		if err := inf.walkValue(path, val, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (inf *Inferrer) walkValue(path string, val any, depth int) error {
	s := inf.stat(path)
	s.occurrences++

	t := classify(val, inf.cfg.DetectFormats)
	s.types = append(s.types, t)

	switch vv := val.(type) {
	case nil:
		s.nulls++
	case float64:
		s.hasNumeric = true
		if s.numericCount == 0 {
			s.min, s.max = vv, vv
		} else {
			if vv < s.min {
				s.min = vv
			}
			if vv > s.max {
				s.max = vv
			}
		}
		s.sum += vv
		s.numericCount++
	case []any:
		for _, item := range vv {
			if err := inf.walkValue(path+"[]", item, depth+1); err != nil {
				return err
			}
		}
	case map[string]any:
		if err := inf.walkObject(path, vv, depth); err != nil {
			return err
		}
	}

	if ex, ok := exampleString(val); ok {
		s.distinct[ex] = struct{}{}

		if inf.cfg.CollectExamples && len(s.examples) < maxExamples(inf.cfg) {
			dup := false
			for _, e := range s.examples {
				if e == ex {
					dup = true
					break
				}
			}
			if !dup {
				s.examples = append(s.examples, ex)
			}
		}
	}

	return nil
}

func maxExamples(cfg Config) int {
	if cfg.MaxExamples <= 0 {
		return 5
	}
	return cfg.MaxExamples
}

func exampleString(val any) (string, bool) {
	switch v := val.(type) {
	case string:
		return v, true
	case float64, bool:
		b, _ := json.Marshal(v)
		return string(b), true
	default:
		return "", false
	}
}

// Build finalises the accumulated observations into an InferredSchema.
func (inf *Inferrer) Build() *types.InferredSchema {
	root := types.NewObjectType()

	topKeys := childKeys(inf.order, "$")
	sort.Strings(topKeys)

	for _, key := range topKeys {
		path := "$." + key
		field := inf.buildField(path, inf.recordCount)
		if field == nil {
			continue
		}
		freq := float64(field.Occurrences) / float64(maxInt(inf.recordCount, 1))
		if freq < inf.cfg.MinFieldFrequency {
			continue
		}
		root.Properties[key] = field
		root.Order = append(root.Order, key)
	}

	fieldStats := make(map[string]*types.FieldStats, len(inf.paths))
	for path, s := range inf.paths {
		fs := &types.FieldStats{
			Occurrences: s.occurrences,
			NullCount:   s.nulls,
			DistinctN:   len(s.distinct),
		}
		if s.hasNumeric {
			mean := s.sum / float64(maxInt(s.numericCount, 1))
			minV, maxV := s.min, s.max
			fs.Min, fs.Max, fs.Mean = &minV, &maxV, &mean
		}
		fieldStats[path] = fs
	}

	return &types.InferredSchema{
		Root:        root,
		RecordCount: inf.recordCount,
		FieldStats:  fieldStats,
	}
}

// buildField finalises the field observed at path. denom is the number of
// records containing path's parent: required is true iff the field was
// observed in every one of them, not in every sampled record overall.
func (inf *Inferrer) buildField(path string, denom int) *types.InferredField {
	s, ok := inf.paths[path]
	if !ok {
		return nil
	}

	merged := mergeAll(s.types)

	if merged.Kind == types.KindObject {
		childKeysAt := childKeys(inf.order, path)
		sort.Strings(childKeysAt)
		merged.Properties = map[string]*types.InferredField{}
		for _, key := range childKeysAt {
			childField := inf.buildField(path+"."+key, s.occurrences)
			if childField == nil {
				continue
			}
			merged.Properties[key] = childField
			merged.Order = append(merged.Order, key)
		}
	}
	if merged.Kind == types.KindArray {
		itemPath := path + "[]"
		if itemStat, ok := inf.paths[itemPath]; ok {
			itemType := mergeAll(itemStat.types)
			if itemType.Kind == types.KindObject {
				childKeysAt := childKeys(inf.order, itemPath)
				sort.Strings(childKeysAt)
				itemType.Properties = map[string]*types.InferredField{}
				for _, key := range childKeysAt {
					childField := inf.buildField(itemPath+"."+key, itemStat.occurrences)
					if childField == nil {
						continue
					}
					itemType.Properties[key] = childField
					itemType.Order = append(itemType.Order, key)
				}
			}
			merged.Items = &itemType
		}
	}

	return &types.InferredField{
		Type:        merged,
		Nullable:    s.nulls > 0,
		Required:    denom > 0 && s.occurrences == denom,
		Occurrences: s.occurrences,
		Examples:    s.examples,
	}
}

// childKeys returns the direct children of parent among the observed
// paths, e.g. childKeys(order, "$.user") -> ["name", "email"] given
// "$.user.name" and "$.user.email" were observed.
func childKeys(order []string, parent string) []string {
	seen := map[string]struct{}{}
	var out []string
	prefix := parent + "."
	for _, p := range order {
		if len(p) <= len(prefix) || p[:len(prefix)] != prefix {
			continue
		}
		rest := p[len(prefix):]
		// direct child only: no further '.' or unmatched '[]' before end.
		key := rest
		for i := 0; i < len(rest); i++ {
			if rest[i] == '.' || rest[i] == '[' {
				key = rest[:i]
				break
			}
		}
		if _, ok := seen[key]; !ok && key != "" {
			seen[key] = struct{}{}
			out = append(out, key)
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
