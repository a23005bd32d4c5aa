// Package null provides the print-only speech backend used when no audio
// engine is available. The speech queue prints every request regardless of
// the backend, so this engine only has to accept calls and stay idle.
package null

import (
	"context"

	"github.com/MrWong99/jarvis/pkg/speech"
)

// Compile-time interface assertion.
var _ speech.Backend = (*Backend)(nil)

// Backend is a [speech.Backend] that produces no audio. The zero value is
// ready to use.
type Backend struct{}

// New returns a null backend.
func New() *Backend { return &Backend{} }

// Kind returns [speech.KindNone].
func (*Backend) Kind() speech.Kind { return speech.KindNone }

// Initialize always succeeds.
func (*Backend) Initialize(context.Context, speech.Settings) error { return nil }

// SpeakText does nothing.
func (*Backend) SpeakText(context.Context, string) error { return nil }

// WaitUntilIdle returns immediately; the engine is never busy.
func (*Backend) WaitUntilIdle(context.Context) error { return nil }

// Purge does nothing.
func (*Backend) Purge() error { return nil }

// Dispose does nothing.
func (*Backend) Dispose() error { return nil }
