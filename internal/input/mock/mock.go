// Package mock provides a scripted input.Source for tests.
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/MrWong99/jarvis/internal/input"
)

var _ input.Source = (*Source)(nil)

// Source returns Lines in order, then io.EOF. An entry of Err, if set at the
// same index, is returned instead of the line.
type Source struct {
	mu       sync.Mutex
	Lines    []string
	Errs     map[int]error
	pos      int
	captures int
	Closed   bool
}

// New returns a Source that yields lines.
func New(lines ...string) *Source {
	return &Source{Lines: lines}
}

// Capture returns the next scripted line.
func (s *Source) Capture(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captures++
	if s.Closed {
		return "", input.ErrClosed
	}
	if s.pos >= len(s.Lines) {
		return "", io.EOF
	}
	i := s.pos
	s.pos++
	if err, ok := s.Errs[i]; ok {
		return "", err
	}
	return s.Lines[i], nil
}

// Close marks the source closed.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// CaptureCount returns how many times Capture was called.
func (s *Source) CaptureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captures
}
