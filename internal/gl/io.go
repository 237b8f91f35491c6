package gl

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/yonran/refreshmint/internal/journal"
	"github.com/yonran/refreshmint/internal/rmerrors"
)

// Read loads and parses general.journal. A nonexistent file yields an
// empty, non-nil slice.
func Read(path string) ([]*Transaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*Transaction{}, nil
		}
		return nil, rmerrors.IOFault("read general journal", err)
	}
	return ParseBlocks(filepath.Base(path), string(data))
}

// WriteAtomic serializes transactions and atomically replaces path, using
// the same sibling-temp-file-then-rename protocol as journal.WriteAtomic.
func WriteAtomic(path string, txns []*Transaction) error {
	return journal.WriteAtomicRaw(path, FormatAll(txns))
}

// AppendTransaction appends a single transaction block.
func AppendTransaction(path string, t *Transaction) error {
	info, statErr := os.Stat(path)
	nonEmpty := statErr == nil && info.Size() > 0

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return rmerrors.IOFault("open general journal for append", err)
	}
	defer f.Close()

	block := Format(t)
	if nonEmpty {
		block = "\n" + block
	}
	if _, err := f.WriteString(block); err != nil {
		return rmerrors.IOFault("append general journal", err)
	}
	return f.Sync()
}

// RemoveByID removes the transaction with the given id from txns,
// returning the filtered slice and whether a match was found.
func RemoveByID(txns []*Transaction, id string) ([]*Transaction, bool) {
	out := make([]*Transaction, 0, len(txns))
	found := false
	for _, t := range txns {
		if t.ID == id {
			found = true
			continue
		}
		out = append(out, t)
	}
	return out, found
}

// ReplaceByID replaces the transaction with the given id with replacement,
// returning the updated slice and whether a match was found.
func ReplaceByID(txns []*Transaction, id string, replacement *Transaction) ([]*Transaction, bool) {
	out := make([]*Transaction, len(txns))
	found := false
	for i, t := range txns {
		if t.ID == id {
			out[i] = replacement
			found = true
			continue
		}
		out[i] = t
	}
	return out, found
}

// FindByID returns the transaction with the given id, if present.
func FindByID(txns []*Transaction, id string) (*Transaction, bool) {
	for _, t := range txns {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}
