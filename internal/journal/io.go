package journal

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yonran/refreshmint/internal/rmerrors"
)

// Read loads and parses a journal file. A nonexistent file yields an
// empty, non-nil slice rather than an error.
func Read(path string) ([]*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*Entry{}, nil
		}
		return nil, rmerrors.IOFault("read journal", err)
	}
	entries, err := ParseBlocks(filepath.Base(path), string(data))
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// WriteAtomic serializes entries and atomically replaces path: it writes
// to a sibling temp file with a randomized suffix in the same directory,
// flushes, and renames over the target (removing the target first on
// platforms that refuse rename-over-existing), then best-effort fsyncs
// the containing directory.
func WriteAtomic(path string, entries []*Entry) error {
	return WriteAtomicRaw(path, FormatAll(entries))
}

// WriteAtomicRaw performs the same atomic write protocol as WriteAtomic
// for an already-serialized content string. It is exported so that the gl
// package's general-journal writer can share the exact same protocol
// without duplicating it: one atomic-write mechanism is shared by every
// file the engine writes this way.
func WriteAtomicRaw(path, content string) error {
	dir := filepath.Dir(path)
	tmp, err := tempSibling(dir)
	if err != nil {
		return rmerrors.IOFault("create temp file", err)
	}

	if err := writeAndSync(tmp, content); err != nil {
		os.Remove(tmp)
		return rmerrors.IOFault("write temp file", err)
	}

	if err := renameOver(tmp, path); err != nil {
		os.Remove(tmp)
		return rmerrors.IOFault("rename journal", err)
	}

	syncDir(dir)
	return nil
}

// AppendEntry appends a single entry to the journal at path without
// rewriting the rest of the file: a direct open-append, with a leading
// blank line when the file is already non-empty.
func AppendEntry(path string, e *Entry) error {
	info, statErr := os.Stat(path)
	nonEmpty := statErr == nil && info.Size() > 0

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return rmerrors.IOFault("open journal for append", err)
	}
	defer f.Close()

	var block string
	if nonEmpty {
		block = "\n" + Format(e)
	} else {
		block = Format(e)
	}
	if _, err := f.WriteString(block); err != nil {
		return rmerrors.IOFault("append journal", err)
	}
	if err := f.Sync(); err != nil {
		return rmerrors.IOFault("sync journal", err)
	}
	syncDir(filepath.Dir(path))
	return nil
}

func tempSibling(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	var suffix [8]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", err
	}
	name := fmt.Sprintf(".journal-%s.tmp", hex.EncodeToString(suffix[:]))
	return filepath.Join(dir, name), nil
}

func writeAndSync(path, content string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return err
	}
	return f.Sync()
}

func renameOver(tmp, target string) error {
	err := os.Rename(tmp, target)
	if err == nil {
		return nil
	}
	// Some platforms (historically Windows) refuse to rename over an
	// existing file; remove the target first and retry.
	if removeErr := os.Remove(target); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		return err
	}
	return os.Rename(tmp, target)
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync() // best-effort; not all OS/filesystems support fsync on directories
}
