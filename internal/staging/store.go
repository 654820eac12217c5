// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package staging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"odcspipeline/internal/types"
)

// ErrNotInitialised is returned by Store operations when Init has not been
// called (or failed) for this handle.
var ErrNotInitialised = errors.New("staging: store not initialised")

// ErrBatchNotFound is returned when a batch ID has no matching row.
var ErrBatchNotFound = errors.New("staging: batch not found")

// Store is the backend-agnostic facade over a registered Backend. All
// mutating operations are serialised through mu, mirroring the
// single-writer discipline the ingestion engine (internal/ingest) relies on.
type Store struct {
	mu          sync.Mutex
	db          *sql.DB
	backend     Backend
	initialised bool
}

// Open acquires a handle to the staging database identified by dsn, using
// the named backend from the registry (e.g. "sqlite", "postgres").
func Open(ctx context.Context, backendID, dsn string) (*Store, error) {
	b, err := Get(backendID)
	if err != nil {
		return nil, err
	}

	db, err := b.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}

	return &Store{db: db, backend: b}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Init applies the backend's DDL, idempotently. Must be called once before
// any other Store method.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("staging: beginning init transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range s.backend.DDL() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("staging: applying DDL: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("staging: committing init transaction: %w", err)
	}

	s.initialised = true
	return nil
}

func (s *Store) requireInit() error {
	if !s.initialised {
		return ErrNotInitialised
	}
	return nil
}

// ph builds a backend-correct "$1, $2, ..." (or "?, ?, ...") placeholder
// list of count entries starting at position start (1-based).
func (s *Store) ph(start, count int) string {
	parts := make([]string, count)
	for i := 0; i < count; i++ {
		parts[i] = s.backend.Placeholder(start + i)
	}
	return strings.Join(parts, ", ")
}

// CreateBatch inserts a new ProcessingBatch row with status Running.
func (s *Store) CreateBatch(ctx context.Context, b *types.ProcessingBatch) error {
	if err := s.requireInit(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	b.StartedAt, b.UpdatedAt = now, now
	b.Status = types.BatchRunning

	q := fmt.Sprintf(`INSERT INTO processing_batches
		(id, source_path, source_type, partition_key, pattern, status,
		 files_total, files_processed, files_skipped, records_ingested,
		 bytes_processed, errors_count, last_file_path, last_record_idx,
		 started_at, updated_at)
		VALUES (%s)`, s.ph(1, 16))

	_, err := s.db.ExecContext(ctx, q,
		b.ID, b.SourcePath, b.SourceType, nullable(b.PartitionKey), b.Pattern, string(b.Status),
		b.FilesTotal, b.FilesProcessed, b.FilesSkipped, b.RecordsIngested,
		b.BytesProcessed, b.ErrorsCount, nullable(b.Cursor.LastFilePath), b.Cursor.LastRecordIndex,
		now, now)
	if err != nil {
		return fmt.Errorf("staging: creating batch: %w", err)
	}
	return nil
}

// UpdateBatch persists the current state of an existing batch row.
func (s *Store) UpdateBatch(ctx context.Context, b *types.ProcessingBatch) error {
	if err := s.requireInit(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b.UpdatedAt = time.Now().UTC()

	q := fmt.Sprintf(`UPDATE processing_batches SET
		status = %s, files_total = %s, files_processed = %s, files_skipped = %s,
		records_ingested = %s, bytes_processed = %s, errors_count = %s,
		last_file_path = %s, last_record_idx = %s, updated_at = %s,
		completed_at = %s, error_message = %s
		WHERE id = %s`,
		s.backend.Placeholder(1), s.backend.Placeholder(2), s.backend.Placeholder(3),
		s.backend.Placeholder(4), s.backend.Placeholder(5), s.backend.Placeholder(6),
		s.backend.Placeholder(7), s.backend.Placeholder(8), s.backend.Placeholder(9),
		s.backend.Placeholder(10), s.backend.Placeholder(11), s.backend.Placeholder(12),
		s.backend.Placeholder(13))

	_, err := s.db.ExecContext(ctx, q,
		string(b.Status), b.FilesTotal, b.FilesProcessed, b.FilesSkipped,
		b.RecordsIngested, b.BytesProcessed, b.ErrorsCount,
		nullable(b.Cursor.LastFilePath), b.Cursor.LastRecordIndex, b.UpdatedAt,
		b.CompletedAt, nullable(b.ErrorMessage), b.ID)
	if err != nil {
		return fmt.Errorf("staging: updating batch %s: %w", b.ID, err)
	}
	return nil
}

// GetBatch loads a batch by ID.
func (s *Store) GetBatch(ctx context.Context, id string) (*types.ProcessingBatch, error) {
	if err := s.requireInit(); err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`SELECT id, source_path, source_type, partition_key, pattern, status,
		files_total, files_processed, files_skipped, records_ingested, bytes_processed,
		errors_count, last_file_path, last_record_idx, started_at, updated_at, completed_at, error_message
		FROM processing_batches WHERE id = %s`, s.backend.Placeholder(1))

	row := s.db.QueryRowContext(ctx, q, id)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrBatchNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("staging: loading batch %s: %w", id, err)
	}
	return b, nil
}

// ListBatches returns up to limit batches, most recently started first.
func (s *Store) ListBatches(ctx context.Context, limit int) ([]*types.ProcessingBatch, error) {
	if err := s.requireInit(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	q := fmt.Sprintf(`SELECT id, source_path, source_type, partition_key, pattern, status,
		files_total, files_processed, files_skipped, records_ingested, bytes_processed,
		errors_count, last_file_path, last_record_idx, started_at, updated_at, completed_at, error_message
		FROM processing_batches ORDER BY started_at DESC LIMIT %s`, s.backend.Placeholder(1))

	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("staging: listing batches: %w", err)
	}
	defer rows.Close()

	var out []*types.ProcessingBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("staging: scanning batch row: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanBatch(row scannable) (*types.ProcessingBatch, error) {
	var b types.ProcessingBatch
	var status string
	var partitionKey, lastFilePath, errorMessage sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&b.ID, &b.SourcePath, &b.SourceType, &partitionKey, &b.Pattern, &status,
		&b.FilesTotal, &b.FilesProcessed, &b.FilesSkipped, &b.RecordsIngested, &b.BytesProcessed,
		&b.ErrorsCount, &lastFilePath, &b.Cursor.LastRecordIndex, &b.StartedAt, &b.UpdatedAt,
		&completedAt, &errorMessage)
	if err != nil {
		return nil, err
	}

	b.Status = types.BatchStatus(status)
	b.PartitionKey = partitionKey.String
	b.Cursor.LastFilePath = lastFilePath.String
	b.ErrorMessage = errorMessage.String
	if completedAt.Valid {
		t := completedAt.Time
		b.CompletedAt = &t
	}
	return &b, nil
}

// InsertRecords writes a batch of StagedRecords in a single transaction.
// Record IDs are assigned by the backend's auto-incrementing primary key,
// not by the caller; StagedRecord.ID is left zero on the argument slice.
func (s *Store) InsertRecords(ctx context.Context, records []types.StagedRecord) error {
	if err := s.requireInit(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("staging: beginning insert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := fmt.Sprintf(`INSERT INTO staged_json
		(file_path, record_index, partition_key, raw_json, content_hash, file_size_bytes, ingested_at)
		VALUES (%s)`, s.ph(1, 7))

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("staging: preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range records {
		r := &records[i]
		r.IngestedAt = now
		if _, err := stmt.ExecContext(ctx, r.FilePath, r.RecordIndex, nullable(r.PartitionKey),
			r.RawJSON, nullable(r.ContentHash), r.FileSizeBytes, r.IngestedAt); err != nil {
			return fmt.Errorf("staging: inserting record %s#%d: %w", r.FilePath, r.RecordIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("staging: committing insert transaction: %w", err)
	}
	return nil
}

// RecordCount returns the number of staged records, optionally restricted
// to a partition.
func (s *Store) RecordCount(ctx context.Context, partition string) (int64, error) {
	if err := s.requireInit(); err != nil {
		return 0, err
	}

	var count int64
	var err error
	if partition == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM staged_json`).Scan(&count)
	} else {
		q := fmt.Sprintf(`SELECT COUNT(*) FROM staged_json WHERE partition_key = %s`, s.backend.Placeholder(1))
		err = s.db.QueryRowContext(ctx, q, partition).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("staging: counting records: %w", err)
	}
	return count, nil
}

// PartitionCount is one row of PartitionStats.
type PartitionCount struct {
	Partition string
	Count     int64
}

// PartitionStats returns the record count grouped by partition key.
func (s *Store) PartitionStats(ctx context.Context) ([]PartitionCount, error) {
	if err := s.requireInit(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(partition_key, ''), COUNT(*) FROM staged_json GROUP BY partition_key`)
	if err != nil {
		return nil, fmt.Errorf("staging: computing partition stats: %w", err)
	}
	defer rows.Close()

	var out []PartitionCount
	for rows.Next() {
		var pc PartitionCount
		if err := rows.Scan(&pc.Partition, &pc.Count); err != nil {
			return nil, fmt.Errorf("staging: scanning partition stats: %w", err)
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

// GetSample returns up to limit raw JSON strings, uniformly sampled without
// replacement from the given partition (or the whole store, if empty).
func (s *Store) GetSample(ctx context.Context, limit int, partition string) ([]string, error) {
	if err := s.requireInit(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	total, err := s.RecordCount(ctx, partition)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}

	var raws []string
	var queryErr error
	if partition == "" {
		queryErr = queryRaws(ctx, s.db, `SELECT raw_json FROM staged_json`, &raws)
	} else {
		q := fmt.Sprintf(`SELECT raw_json FROM staged_json WHERE partition_key = %s`, s.backend.Placeholder(1))
		queryErr = queryRaws(ctx, s.db, q, &raws, partition)
	}
	if queryErr != nil {
		return nil, fmt.Errorf("staging: sampling records: %w", queryErr)
	}

	if len(raws) <= limit {
		return raws, nil
	}

	rand.Shuffle(len(raws), func(i, j int) { raws[i], raws[j] = raws[j], raws[i] })
	return raws[:limit], nil
}

func queryRaws(ctx context.Context, db *sql.DB, q string, out *[]string, args ...any) error {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		*out = append(*out, raw)
	}
	return rows.Err()
}

// Query executes a read-only ad-hoc SQL statement and returns each row as
// a column-name -> value map (maps carry no column order).
func (s *Store) Query(ctx context.Context, sqlText string) ([]map[string]any, error) {
	if err := s.requireInit(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("staging: executing query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("staging: reading columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("staging: scanning query row: %w", err)
		}

		rowMap := make(map[string]any, len(cols))
		for i, c := range cols {
			rowMap[c] = vals[i]
		}
		out = append(out, rowMap)
	}
	return out, rows.Err()
}

// KnownFilePaths returns the distinct file_path values already staged,
// optionally restricted to a partition. Used by the ingestion engine's
// by-path dedup strategy.
func (s *Store) KnownFilePaths(ctx context.Context, partition string) (map[string]struct{}, error) {
	if err := s.requireInit(); err != nil {
		return nil, err
	}

	var rows *sql.Rows
	var err error
	if partition == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT DISTINCT file_path FROM staged_json`)
	} else {
		q := fmt.Sprintf(`SELECT DISTINCT file_path FROM staged_json WHERE partition_key = %s`, s.backend.Placeholder(1))
		rows, err = s.db.QueryContext(ctx, q, partition)
	}
	if err != nil {
		return nil, fmt.Errorf("staging: loading known file paths: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("staging: scanning file path: %w", err)
		}
		out[p] = struct{}{}
	}
	return out, rows.Err()
}

// KnownContentHashes returns the distinct, non-empty content_hash values
// already staged. Used by the by-content dedup strategy.
func (s *Store) KnownContentHashes(ctx context.Context) (map[string]struct{}, error) {
	if err := s.requireInit(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT content_hash FROM staged_json WHERE content_hash IS NOT NULL AND content_hash <> ''`)
	if err != nil {
		return nil, fmt.Errorf("staging: loading known content hashes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("staging: scanning content hash: %w", err)
		}
		out[h] = struct{}{}
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
