// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odcspipeline/internal/staging"
	_ "odcspipeline/internal/staging/sqlite"
	"odcspipeline/internal/types"
	"odcspipeline/pkg/logging"
)

func newMemStore(t *testing.T) *staging.Store {
	t.Helper()
	ctx := context.Background()
	store, err := staging.Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Init(ctx))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// writeFiles materialises n JSONL files, each with recordsPerFile records,
// in a fresh temp directory, named so lexicographic sort matches creation
// order (test_0000.jsonl, test_0001.jsonl, ...).
func writeFiles(t *testing.T, n, recordsPerFile int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		var lines string
		for j := 0; j < recordsPerFile; j++ {
			lines += fmt.Sprintf(`{"id":%d,"name":"test_%d","value":%d,"active":true}`+"\n", j, i, j*10)
		}
		path := filepath.Join(dir, fmt.Sprintf("test_%04d.jsonl", i))
		require.NoError(t, os.WriteFile(path, []byte(lines), 0o600))
	}
	return dir
}

func readOrderedKeys(t *testing.T, store *staging.Store) []string {
	t.Helper()
	rows, err := store.Query(context.Background(),
		`SELECT file_path, record_index FROM staged_json ORDER BY file_path, record_index`)
	require.NoError(t, err)
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = fmt.Sprintf("%v#%v", r["file_path"], r["record_index"])
	}
	return out
}

// Scenario A + property 1: ingesting 10 files of 10 records each under
// dedup=ByPath is idempotent on re-run.
func TestEngine_IngestThenRerunIsIdempotentUnderByPathDedup(t *testing.T) {
	dir := writeFiles(t, 10, 10)
	store := newMemStore(t)
	engine := NewEngine(store, logging.NewLogger(false))
	ctx := context.Background()

	cfg := Config{Source: dir, Pattern: "*.jsonl", Partition: "t", Dedup: types.DedupByPath, BatchSize: 50}

	stats1, err := engine.Run(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 10, stats1.FilesProcessed)
	assert.Equal(t, int64(100), stats1.RecordsIngested)
	assert.Equal(t, 0, stats1.ErrorsCount)

	count, err := store.RecordCount(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(100), count)

	stats2, err := engine.Run(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, stats2.FilesProcessed)
	assert.Equal(t, 10, stats2.FilesSkipped)
	assert.Equal(t, int64(0), stats2.RecordsIngested)

	count, err = store.RecordCount(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(100), count)
}

// Property 2: interrupting after a prefix of files and resuming yields the
// same StagedRecord set (by file_path, record_index) as an uninterrupted
// run over the same file set.
func TestEngine_ResumeEquivalence(t *testing.T) {
	dir := writeFiles(t, 4, 2)
	ctx := context.Background()

	fullStore := newMemStore(t)
	fullEngine := NewEngine(fullStore, logging.NewLogger(false))
	_, err := fullEngine.Run(ctx, Config{Source: dir, Pattern: "*.jsonl", Dedup: types.DedupNone, BatchSize: 50})
	require.NoError(t, err)
	fullKeys := readOrderedKeys(t, fullStore)
	require.Len(t, fullKeys, 8)

	// Simulate a crash after the first two files were already committed:
	// pre-insert their records directly, then create a Failed batch whose
	// cursor points at the second file.
	resumeStore := newMemStore(t)
	files, err := Discover(dir, "*.jsonl")
	require.NoError(t, err)
	require.Len(t, files, 4)

	var preRecords []types.StagedRecord
	for _, f := range files[:2] {
		records, _, err := parseFile(f, "", "")
		require.NoError(t, err)
		preRecords = append(preRecords, records...)
	}
	require.NoError(t, resumeStore.InsertRecords(ctx, preRecords))

	batch := &types.ProcessingBatch{
		ID:         "batch-resume-test",
		SourcePath: dir,
		SourceType: "local",
		Pattern:    "*.jsonl",
		Status:     types.BatchFailed,
	}
	batch.Cursor.LastFilePath = files[1].path
	batch.FilesProcessed = 2
	batch.RecordsIngested = int64(len(preRecords))
	require.NoError(t, resumeStore.CreateBatch(ctx, batch))
	batch.Status = types.BatchFailed
	require.NoError(t, resumeStore.UpdateBatch(ctx, batch))

	resumeEngine := NewEngine(resumeStore, logging.NewLogger(false))
	stats, err := resumeEngine.Run(ctx, Config{
		Source: dir, Pattern: "*.jsonl", Dedup: types.DedupNone, BatchSize: 50,
		Resume: true, BatchID: batch.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesProcessed, "only the two files after the cursor should be (re-)processed")
	assert.Equal(t, int64(4), stats.RecordsIngested)

	resumedKeys := readOrderedKeys(t, resumeStore)
	assert.ElementsMatch(t, fullKeys, resumedKeys)
}

func TestDiscover_SortsFilesByPath(t *testing.T) {
	dir := writeFiles(t, 3, 1)
	files, err := Discover(dir, "*.jsonl")
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.True(t, files[0].path < files[1].path)
	assert.True(t, files[1].path < files[2].path)
}

func TestSkipToResumePoint(t *testing.T) {
	files := []discoveredFile{{path: "a"}, {path: "b"}, {path: "c"}, {path: "d"}}
	out := skipToResumePoint(files, "b")
	require.Len(t, out, 2)
	assert.Equal(t, "c", out[0].path)
	assert.Equal(t, "d", out[1].path)

	assert.Equal(t, files, skipToResumePoint(files, ""))
}

func TestParseFile_JSONLWithInvalidLineRecordsNonFatalError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mixed.jsonl")
	content := "{\"a\":1}\nnot json\n{\"a\":2}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	records, errs, err := parseFile(discoveredFile{path: path, size: int64(len(content))}, "", "")
	require.NoError(t, err)
	assert.Len(t, records, 2)
	require.Len(t, errs, 1)
	assert.Equal(t, 1, errs[0].Index)
}

func TestParseFile_SingleJSONDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "single.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1,"b":2}`), 0o600))

	records, errs, err := parseFile(discoveredFile{path: path}, "", "")
	require.NoError(t, err)
	assert.Empty(t, errs)
	require.Len(t, records, 1)
	assert.Equal(t, 0, records[0].RecordIndex)
}

func TestParseFile_JSONArrayDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "array.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"a":1},{"a":2},{"a":3}]`), 0o600))

	records, errs, err := parseFile(discoveredFile{path: path}, "", "")
	require.NoError(t, err)
	assert.Empty(t, errs)
	require.Len(t, records, 3)
	assert.Equal(t, 2, records[2].RecordIndex)
}
