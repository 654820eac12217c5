// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package ingest discovers source files, deduplicates and parses their
// records, and writes them to the staging store behind a resumable batch.
package ingest

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"odcspipeline/internal/staging"
	"odcspipeline/internal/types"
	"odcspipeline/pkg/logging"
)

// persistCursorEvery controls how often (in files processed) the batch row
// is persisted mid-run, so a crash leaves a recent resume cursor.
const persistCursorEvery = 100

// maxRecordedErrors bounds the per-file parse errors retained in IngestStats.
const maxRecordedErrors = 100

// Config controls one ingestion invocation.
type Config struct {
	Source    string
	Pattern   string
	Partition string
	Dedup     types.DedupStrategy
	BatchSize int
	Resume    bool
	BatchID   string
}

// RecordError describes one per-record parse failure; collected, not fatal.
type RecordError struct {
	File   string `json:"file"`
	Index  int    `json:"record_index"`
	Detail string `json:"detail"`
}

// Stats summarises the outcome of an ingestion run.
type Stats struct {
	FilesProcessed  int
	FilesSkipped    int
	RecordsIngested int64
	BytesProcessed  int64
	ErrorsCount     int
	Errors          []RecordError
	Duration        time.Duration
	Batch           *types.ProcessingBatch
}

// discoveredFile is one file found by Discover, pre-hash.
type discoveredFile struct {
	path string
	size int64
}

// Engine runs ingestion against a staging.Store.
type Engine struct {
	Store  *staging.Store
	Logger logging.Logger
	// Workers bounds the parallel file-hash/parse fan-out. 0 selects
	// runtime.GOMAXPROCS(0).
	Workers int
}

// NewEngine constructs an Engine bound to store.
func NewEngine(store *staging.Store, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewLogger(false)
	}
	return &Engine{Store: store, Logger: logger}
}

// Run executes one ingestion invocation per cfg, returning aggregate stats.
func (e *Engine) Run(ctx context.Context, cfg Config) (*Stats, error) {
	started := time.Now()

	batch, err := e.bootstrapBatch(ctx, cfg)
	if err != nil {
		return nil, err
	}

	files, err := Discover(cfg.Source, cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("ingest: discovering files: %w", err)
	}
	batch.FilesTotal = len(files)

	files = skipToResumePoint(files, batch.Cursor.LastFilePath)

	knownPaths, knownHashes, err := e.loadDedupSets(ctx, cfg)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Batch: batch}
	buf := newRecordBuffer(cfg.BatchSize, e.Store)

	var hashes map[string]string
	if contentDeduped(cfg.Dedup) {
		hashes, err = ParallelHash(ctx, files, e.Workers)
		if err != nil {
			return nil, fmt.Errorf("ingest: hashing files: %w", err)
		}
	}

	// Dedup decisions are sequential (later files' ByContent skip depends on
	// earlier files' observed hashes), but the actual parse of every
	// surviving file is independent and runs in parallel: a data-parallel
	// fork/join over the file vector, mirroring ParallelHash above. Parse
	// results are handed to the single writer in sorted-file order so that
	// a file's own records stay in ascending record_index order and the
	// resume cursor still advances monotonically.
	var toParse []discoveredFile
	skipped := make(map[string]bool, len(files))
	for _, f := range files {
		if pathDeduped(cfg.Dedup) && knownPaths != nil {
			if _, seen := knownPaths[f.path]; seen {
				skipped[f.path] = true
				continue
			}
		}
		if contentDeduped(cfg.Dedup) {
			if knownHashes != nil {
				if _, seen := knownHashes[hashes[f.path]]; seen {
					skipped[f.path] = true
					continue
				}
				knownHashes[hashes[f.path]] = struct{}{}
			}
		}
		toParse = append(toParse, f)
	}

	parsed, err := e.parseFiles(ctx, toParse, cfg.Partition, hashes)
	if err != nil {
		return nil, fmt.Errorf("ingest: parsing files: %w", err)
	}

	processed := 0
	for _, f := range files {
		if skipped[f.path] {
			stats.FilesSkipped++
			batch.FilesSkipped++
			continue
		}

		res := parsed[f.path]
		for _, r := range res.records {
			if err := buf.append(ctx, r); err != nil {
				batch.Status = types.BatchFailed
				batch.ErrorMessage = err.Error()
				_ = e.Store.UpdateBatch(ctx, batch)
				return nil, fmt.Errorf("ingest: writing records from %s: %w", f.path, err)
			}
		}

		stats.RecordsIngested += int64(len(res.records))
		stats.BytesProcessed += f.size
		batch.RecordsIngested += int64(len(res.records))
		batch.BytesProcessed += f.size
		stats.FilesProcessed++
		batch.FilesProcessed++

		for _, re := range res.errs {
			stats.ErrorsCount++
			batch.ErrorsCount++
			if len(stats.Errors) < maxRecordedErrors {
				stats.Errors = append(stats.Errors, re)
			}
		}

		batch.Cursor.LastFilePath = f.path
		processed++
		if processed%persistCursorEvery == 0 {
			if err := e.Store.UpdateBatch(ctx, batch); err != nil {
				return nil, fmt.Errorf("ingest: persisting batch cursor: %w", err)
			}
		}
	}

	if err := buf.flush(ctx); err != nil {
		batch.Status = types.BatchFailed
		batch.ErrorMessage = err.Error()
		_ = e.Store.UpdateBatch(ctx, batch)
		return nil, fmt.Errorf("ingest: final flush: %w", err)
	}

	now := time.Now().UTC()
	batch.Status = types.BatchCompleted
	batch.CompletedAt = &now
	if err := e.Store.UpdateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("ingest: completing batch: %w", err)
	}

	stats.Duration = time.Since(started)
	e.Logger.Info("ingestion complete",
		logging.NewField("batch_id", batch.ID),
		logging.NewField("files_processed", stats.FilesProcessed),
		logging.NewField("records_ingested", stats.RecordsIngested))

	return stats, nil
}

func (e *Engine) bootstrapBatch(ctx context.Context, cfg Config) (*types.ProcessingBatch, error) {
	if cfg.Resume && cfg.BatchID != "" {
		batch, err := e.Store.GetBatch(ctx, cfg.BatchID)
		if err != nil {
			return nil, err
		}
		if batch.Status == types.BatchCompleted {
			return nil, fmt.Errorf("ingest: batch %s is already completed", cfg.BatchID)
		}
		batch.Status = types.BatchRunning
		if err := e.Store.UpdateBatch(ctx, batch); err != nil {
			return nil, err
		}
		return batch, nil
	}

	sourceType := "local"
	batch := &types.ProcessingBatch{
		ID:           newBatchID(),
		SourcePath:   cfg.Source,
		SourceType:   sourceType,
		PartitionKey: cfg.Partition,
		Pattern:      cfg.Pattern,
	}
	if err := e.Store.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (e *Engine) loadDedupSets(ctx context.Context, cfg Config) (map[string]struct{}, map[string]struct{}, error) {
	var paths, hashes map[string]struct{}
	var err error

	if pathDeduped(cfg.Dedup) {
		paths, err = e.Store.KnownFilePaths(ctx, cfg.Partition)
		if err != nil {
			return nil, nil, err
		}
	}
	if contentDeduped(cfg.Dedup) {
		hashes, err = e.Store.KnownContentHashes(ctx)
		if err != nil {
			return nil, nil, err
		}
	}
	return paths, hashes, nil
}

func pathDeduped(d types.DedupStrategy) bool {
	return d == types.DedupByPath || d == types.DedupPathAndCon
}

func contentDeduped(d types.DedupStrategy) bool {
	return d == types.DedupByContent || d == types.DedupPathAndCon
}

// skipToResumePoint drops every file whose sorted path is <= resumeAfter.
func skipToResumePoint(files []discoveredFile, resumeAfter string) []discoveredFile {
	if resumeAfter == "" {
		return files
	}
	idx := sort.Search(len(files), func(i int) bool { return files[i].path > resumeAfter })
	return files[idx:]
}

// Discover expands pattern against source, returning files sorted by path.
func Discover(source, pattern string) ([]discoveredFile, error) {
	if pattern == "" {
		pattern = "*"
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("accessing source %s: %w", source, err)
	}

	var matches []string
	if info.IsDir() {
		matches, err = filepath.Glob(filepath.Join(source, pattern))
	} else {
		matches = []string{source}
	}
	if err != nil {
		return nil, err
	}

	sort.Strings(matches)

	out := make([]discoveredFile, 0, len(matches))
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil || fi.IsDir() {
			continue
		}
		out = append(out, discoveredFile{path: m, size: fi.Size()})
	}
	return out, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// parseResult is one file's parse outcome, produced by a parallel worker
// and later handed, in sorted-file order, to the single buffered writer.
type parseResult struct {
	records []types.StagedRecord
	errs    []RecordError
}

// parseFiles parses every file in files concurrently (bounded fork/join,
// mirroring ParallelHash) and returns each file's result keyed by path.
// Parsing has no shared mutable state across files, so no synchronization
// beyond collecting into a map keyed by path is required.
func (e *Engine) parseFiles(ctx context.Context, files []discoveredFile, partition string, hashes map[string]string) (map[string]parseResult, error) {
	workers := e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	results := make(map[string]parseResult, len(files))
	var mu sync.Mutex

	for _, f := range files {
		f := f
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			records, errs, err := parseFile(f, partition, hashes[f.path])
			if err != nil {
				return err
			}
			mu.Lock()
			results[f.path] = parseResult{records: records, errs: errs}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// parseFile parses one file's records, returning non-fatal per-record
// errors alongside the successfully parsed records. A streaming line
// reader is used for JSONL sources regardless of size, since it already
// yields one record at a time without buffering the whole file.
func parseFile(f discoveredFile, partition, hash string) ([]types.StagedRecord, []RecordError, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	jsonl := isJSONLByExt(f.path)

	var records []types.StagedRecord
	var errs []RecordError

	if jsonl || (!isJSONByExt(f.path) && firstNonSpaceByte(f.path) != '[') {
		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		idx := 0
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if !json.Valid([]byte(line)) {
				if len(errs) < maxRecordedErrors {
					errs = append(errs, RecordError{File: f.path, Index: idx, Detail: "invalid json"})
				}
				idx++
				continue
			}
			records = append(records, types.StagedRecord{
				FilePath: f.path, RecordIndex: idx, PartitionKey: partition,
				RawJSON: line, ContentHash: hash, FileSizeBytes: f.size,
			})
			idx++
		}
		if err := scanner.Err(); err != nil {
			return records, errs, fmt.Errorf("scanning %s: %w", f.path, err)
		}
		return records, errs, nil
	}

	// Single JSON document: either one object, or an array of objects.
	var raw json.RawMessage
	dec := json.NewDecoder(file)
	if err := dec.Decode(&raw); err != nil {
		if len(errs) < maxRecordedErrors {
			errs = append(errs, RecordError{File: f.path, Index: 0, Detail: err.Error()})
		}
		return records, errs, nil
	}

	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			if len(errs) < maxRecordedErrors {
				errs = append(errs, RecordError{File: f.path, Index: 0, Detail: err.Error()})
			}
			return records, errs, nil
		}
		for i, item := range items {
			records = append(records, types.StagedRecord{
				FilePath: f.path, RecordIndex: i, PartitionKey: partition,
				RawJSON: string(item), ContentHash: hash, FileSizeBytes: f.size,
			})
		}
		return records, errs, nil
	}

	records = append(records, types.StagedRecord{
		FilePath: f.path, RecordIndex: 0, PartitionKey: partition,
		RawJSON: trimmed, ContentHash: hash, FileSizeBytes: f.size,
	})
	return records, errs, nil
}

func isJSONLByExt(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".jsonl" || ext == ".ndjson"
}

func isJSONByExt(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".json"
}

func firstNonSpaceByte(path string) byte {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0
		}
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		return b
	}
}

func newBatchID() string {
	return fmt.Sprintf("batch-%s", time.Now().UTC().Format("20060102-150405.000000000"))
}

// ParallelHash computes content hashes for every file concurrently, bounded
// by workers (0 selects runtime.GOMAXPROCS(0)).
func ParallelHash(ctx context.Context, files []discoveredFile, workers int) (map[string]string, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	results := make(map[string]string, len(files))
	var mu sync.Mutex

	for _, f := range files {
		f := f
		g.Go(func() error {
			h, err := hashFile(f.path)
			if err != nil {
				return err
			}
			mu.Lock()
			results[f.path] = h
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
