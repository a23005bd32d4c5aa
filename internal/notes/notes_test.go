package notes_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/internal/notes"
)

var at = time.Date(2026, time.October, 19, 15, 4, 0, 0, time.UTC)

func TestAppend(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sub", "notes.txt")
	fs := notes.NewFileStore(path)

	if _, err := fs.Append(at, "buy milk"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	size, err := fs.Append(at.Add(time.Hour), "call mom")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "[2026-10-19 15:04]\nbuy milk\n[2026-10-19 16:04]\ncall mom\n"
	if string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}
	if size != int64(len(want)) {
		t.Errorf("size = %d, want %d", size, len(want))
	}
}

func TestAppend_Concurrent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "notes.txt")
	fs := notes.NewFileStore(path)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := fs.Append(at, "x"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 20*len(notes.Format(at, "x")) {
		t.Errorf("len = %d, entries interleaved or lost", len(data))
	}
}

func TestAppend_Unwritable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	fs := notes.NewFileStore(filepath.Join(blocker, "notes.txt"))
	if _, err := fs.Append(at, "x"); err == nil {
		t.Fatal("expected error when the parent is a file")
	}
}
