// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package types holds the data model shared across every pipeline stage:
// staged records and batches, inferred schemas, schema mappings, and
// pipeline checkpoints.
package types

import "time"

// StagedRecord is one JSON record extracted from a source file and
// persisted to the staging store. It is immutable once inserted.
type StagedRecord struct {
	ID            int64     `json:"id"`
	FilePath      string    `json:"file_path"`
	RecordIndex   int       `json:"record_index"`
	PartitionKey  string    `json:"partition_key,omitempty"`
	RawJSON       string    `json:"raw_json"`
	ContentHash   string    `json:"content_hash,omitempty"`
	FileSizeBytes int64     `json:"file_size_bytes"`
	IngestedAt    time.Time `json:"ingested_at"`
}

// BatchStatus is the lifecycle state of a ProcessingBatch.
type BatchStatus string

const (
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
	BatchPaused    BatchStatus = "paused"
)

// ResumeCursor marks the point an interrupted ingestion can resume from.
type ResumeCursor struct {
	LastFilePath    string `json:"last_file_path,omitempty"`
	LastRecordIndex int    `json:"last_record_index"`
}

// ProcessingBatch is the metadata record for one ingestion invocation.
type ProcessingBatch struct {
	ID              string       `json:"id"`
	SourcePath      string       `json:"source_path"`
	SourceType      string       `json:"source_type"`
	PartitionKey    string       `json:"partition_key,omitempty"`
	Pattern         string       `json:"pattern"`
	Status          BatchStatus  `json:"status"`
	FilesTotal      int          `json:"files_total"`
	FilesProcessed  int          `json:"files_processed"`
	FilesSkipped    int          `json:"files_skipped"`
	RecordsIngested int64        `json:"records_ingested"`
	BytesProcessed  int64        `json:"bytes_processed"`
	ErrorsCount     int          `json:"errors_count"`
	Cursor          ResumeCursor `json:"cursor"`
	StartedAt       time.Time    `json:"started_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	ErrorMessage    string       `json:"error_message,omitempty"`
}

// Resumable reports whether this batch can be resumed.
func (b *ProcessingBatch) Resumable() bool {
	if b.Status != BatchFailed && b.Status != BatchPaused {
		return false
	}
	return b.Cursor.LastFilePath != ""
}

// DedupStrategy controls how the ingestion engine avoids re-ingesting data.
type DedupStrategy string

const (
	DedupNone       DedupStrategy = "none"
	DedupByPath     DedupStrategy = "by_path"
	DedupByContent  DedupStrategy = "by_content"
	DedupPathAndCon DedupStrategy = "both"
)
