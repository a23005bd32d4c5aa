package input

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestConsole_Capture(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	c := NewConsole(strings.NewReader("  open firefox  \n\nwhat time is it\n"), &out)
	defer c.Close()
	ctx := context.Background()

	want := []string{"open firefox", "", "what time is it"}
	for i, w := range want {
		got, err := c.Capture(ctx)
		if err != nil {
			t.Fatalf("Capture %d: %v", i, err)
		}
		if got != w {
			t.Errorf("Capture %d = %q, want %q", i, got, w)
		}
	}
	if _, err := c.Capture(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("Capture at end = %v, want io.EOF", err)
	}
	if n := strings.Count(out.String(), DefaultPrompt); n != 4 {
		t.Errorf("prompt printed %d times, want 4", n)
	}
}

func TestConsole_CancelledContext(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()
	c := NewConsole(pr, io.Discard)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Capture(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestConsole_Closed(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()
	c := NewConsole(pr, io.Discard)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Capture(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	// Close is idempotent.
	_ = c.Close()
}
