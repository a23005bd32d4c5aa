// Package input provides the sources the assistant listens to. A [Source]
// yields one utterance per Capture call; speech recognition itself happens
// outside this process.
package input

import (
	"context"
	"errors"
)

// ErrClosed is returned by Capture after Close.
var ErrClosed = errors.New("input: source closed")

// Phrases passed to an error handler when recognition fails.
const (
	PhraseNotUnderstood = "Sorry, I did not understand that."
	PhraseServiceError  = "Speech service error."
)

// Source produces user utterances.
type Source interface {
	// Capture blocks until the next utterance. It returns "" with a nil
	// error when nothing usable was heard; callers simply try again.
	// io.EOF means the input has ended for good.
	Capture(ctx context.Context) (string, error)

	// Close releases the source. Pending Capture calls return.
	Close() error
}
