package operations

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAppendAndReadAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "operations.jsonl")

	fixed := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	log := Open(path)
	log.now = func() time.Time { return fixed }

	require.NoError(t, log.Append(KindEntryCreated, "e1", map[string]any{"source": "scrape"}))
	require.NoError(t, log.Append(KindManualAdd, "e2", nil))

	records, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, KindEntryCreated, records[0].Kind)
	require.Equal(t, "e1", records[0].EntryID)
	require.Equal(t, "2026-01-15T12:00:00Z", records[0].Timestamp)
	require.Equal(t, "scrape", records[0].Detail["source"])
	require.Equal(t, KindManualAdd, records[1].Kind)
}

func TestReadAllNonexistentFileYieldsEmptySlice(t *testing.T) {
	records, err := ReadAll(filepath.Join(t.TempDir(), "missing.jsonl"))
	require.NoError(t, err)
	require.NotNil(t, records)
	require.Len(t, records, 0)
}

func TestAppendCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "operations.jsonl")
	log := Open(path)

	require.NoError(t, log.Append(KindPost, "gl-1", nil))

	records, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
}
