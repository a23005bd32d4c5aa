// Package notes stores dictated notes in a plain-text file. Entries are
// appended, never rewritten:
//
//	[2026-10-19 15:04]
//	buy milk
package notes

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TimeLayout is the timestamp format of an entry header.
const TimeLayout = "2006-01-02 15:04"

// FileStore appends notes to a file. Safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore that writes to path. The file and its
// directory are created on the first append.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the note file.
func (fs *FileStore) Path() string { return fs.path }

// Format renders one entry.
func Format(at time.Time, text string) string {
	return fmt.Sprintf("[%s]\n%s\n", at.Format(TimeLayout), text)
}

// Append writes one entry stamped with at and returns the file size after
// the write.
func (fs *FileStore) Append(at time.Time, text string) (int64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(fs.path), 0o755); err != nil {
		return 0, fmt.Errorf("notes: create dir: %w", err)
	}
	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("notes: open file: %w", err)
	}
	if _, err := f.WriteString(Format(at, text)); err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("notes: write: %w", err)
	}
	fi, statErr := f.Stat()
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("notes: close file: %w", err)
	}
	if statErr != nil {
		return 0, nil
	}
	return fi.Size(), nil
}
