// Package operations implements the single append-only JSONL writer used
// by both the dedup engine (account-side operations) and the
// reconciliation engine (general-ledger-side operations). Every mutating
// path in either engine records its operations through Append, so the "one line of
// JSON per operation, ISO-8601 UTC timestamp" contract lives in one place
// rather than being reimplemented per caller.
package operations

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/yonran/refreshmint/internal/rmerrors"
)

// Kind identifies the operation being recorded.
type Kind string

const (
	// Account-side (dedup engine) kinds.
	KindEntryCreated  Kind = "entry_created"
	KindManualAdd     Kind = "manual_add"
	KindDedupOverride Kind = "dedup_override"
	KindScrapeRemoval Kind = "scrape_removal"

	// GL-side (reconciliation engine) kinds.
	KindPost            Kind = "post"
	KindTransferMatch   Kind = "transfer_match"
	KindUndoPost        Kind = "undo_post"
	KindSyncTransaction Kind = "sync_transaction"
	KindMerge           Kind = "merge"
	KindRecategorize    Kind = "recategorize"
)

// Record is one JSONL line in an operations log.
type Record struct {
	Timestamp string         `json:"timestamp"`
	Kind      Kind           `json:"kind"`
	EntryID   string         `json:"entry_id,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// Log appends Records to a single operations.jsonl file.
type Log struct {
	path string
	now  func() time.Time
}

// Open returns a Log bound to path. The file is created lazily on first
// Append; Open itself performs no I/O.
func Open(path string) *Log {
	return &Log{path: path, now: time.Now}
}

// Append writes one Record as a single JSON line, opening the file in
// append mode and fsyncing before returning so the log entry is durable
// before the caller's filesystem mutation is considered committed.
func (l *Log) Append(kind Kind, entryID string, detail map[string]any) error {
	rec := Record{
		Timestamp: l.now().UTC().Format(time.RFC3339),
		Kind:      kind,
		EntryID:   entryID,
		Detail:    detail,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return rmerrors.Wrap(rmerrors.KindIOFault, "marshal operation record", err)
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return rmerrors.IOFault("create operations log directory", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return rmerrors.IOFault("open operations log", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return rmerrors.IOFault("append operations log", err)
	}
	return f.Sync()
}

// ReadAll parses every record in the log, in append order. A nonexistent
// file yields an empty, non-nil slice.
func ReadAll(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, rmerrors.IOFault("read operations log", err)
	}

	var records []Record
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return nil, rmerrors.Wrap(rmerrors.KindParseError, "decode operation record", err)
		}
		records = append(records, rec)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}
