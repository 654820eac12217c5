// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package ingest

import (
	"context"

	"odcspipeline/internal/staging"
	"odcspipeline/internal/types"
)

const defaultBatchSize = 500

// recordBuffer accumulates StagedRecords and flushes them to the staging
// store once it reaches its configured size, forming the backpressure
// boundary between file parsing and the single staging-store writer.
type recordBuffer struct {
	store   *staging.Store
	size    int
	pending []types.StagedRecord
}

func newRecordBuffer(size int, store *staging.Store) *recordBuffer {
	if size <= 0 {
		size = defaultBatchSize
	}
	return &recordBuffer{store: store, size: size}
}

// append adds one record, flushing automatically once the buffer is full.
func (b *recordBuffer) append(ctx context.Context, r types.StagedRecord) error {
	b.pending = append(b.pending, r)
	if len(b.pending) >= b.size {
		return b.flush(ctx)
	}
	return nil
}

// flush writes any buffered records to the store.
func (b *recordBuffer) flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}

	if err := b.store.InsertRecords(ctx, b.pending); err != nil {
		return err
	}
	b.pending = b.pending[:0]
	return nil
}
