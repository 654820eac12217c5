// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package sqlite registers the embedded SQLite staging backend.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"odcspipeline/internal/staging"
)

const backendID = "sqlite"

// Engine is the embedded-SQLite staging.Backend.
type Engine struct{}

func (Engine) ID() string { return backendID }

// Open opens (creating if absent) a SQLite database file at dsn, which is a
// plain filesystem path. ":memory:" opens an in-process ephemeral database.
func (Engine) Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite staging database: %w", err)
	}

	// SQLite allows only one writer at a time; with a single pooled
	// connection database/sql queues concurrent callers instead of letting
	// them fail with busy-database errors.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite staging database: %w", err)
	}

	return db, nil
}

func (Engine) DDL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS schema_info (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS staged_json (
			id              INTEGER PRIMARY KEY,
			file_path       TEXT NOT NULL,
			record_index    INTEGER NOT NULL,
			partition_key   TEXT,
			raw_json        TEXT NOT NULL,
			content_hash    TEXT,
			file_size_bytes INTEGER NOT NULL DEFAULT 0,
			ingested_at     TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_staged_json_partition ON staged_json(partition_key)`,
		`CREATE INDEX IF NOT EXISTS idx_staged_json_content_hash ON staged_json(content_hash)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_staged_json_file_record ON staged_json(file_path, record_index, partition_key)`,
		`CREATE TABLE IF NOT EXISTS processing_batches (
			id               TEXT PRIMARY KEY,
			source_path      TEXT NOT NULL,
			source_type      TEXT NOT NULL,
			partition_key    TEXT,
			pattern          TEXT NOT NULL,
			status           TEXT NOT NULL,
			files_total      INTEGER NOT NULL DEFAULT 0,
			files_processed  INTEGER NOT NULL DEFAULT 0,
			files_skipped    INTEGER NOT NULL DEFAULT 0,
			records_ingested INTEGER NOT NULL DEFAULT 0,
			bytes_processed  INTEGER NOT NULL DEFAULT 0,
			errors_count     INTEGER NOT NULL DEFAULT 0,
			last_file_path   TEXT,
			last_record_idx  INTEGER NOT NULL DEFAULT 0,
			started_at       TIMESTAMP NOT NULL,
			updated_at       TIMESTAMP NOT NULL,
			completed_at     TIMESTAMP,
			error_message    TEXT
		)`,
		`INSERT OR IGNORE INTO schema_info(key, value) VALUES ('version', '1')`,
	}
}

// Placeholder returns "?" for every position; the sqlite3 driver does not
// use numbered placeholders.
func (Engine) Placeholder(i int) string { return "?" }

func init() {
	staging.Register(Engine{})
}
