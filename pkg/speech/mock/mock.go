// Package mock provides a test double for the speech.Backend interface.
//
// Use Backend to force initialisation or synthesis failures and to verify
// which texts reached the engine and in what order.
//
// Example:
//
//	b := &mock.Backend{KindValue: speech.KindPrimary, Busy: true}
//	q, _ := speaker.Open(ctx, []speech.Backend{b}, speech.Settings{})
//	q.Speak("hello")
//	// ... b.Spoken() == []string{"hello"}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/jarvis/pkg/speech"
)

// Compile-time interface assertion.
var _ speech.Backend = (*Backend)(nil)

// Backend is a mock implementation of speech.Backend. All exported methods
// are safe for concurrent use.
type Backend struct {
	mu sync.Mutex

	// --- Configurable behaviour ---

	// KindValue is returned by Kind.
	KindValue speech.Kind

	// InitErr, if non-nil, is returned by Initialize.
	InitErr error

	// SpeakErr, if non-nil, is returned by SpeakText after recording the call.
	SpeakErr error

	// Busy makes every utterance stay in progress until Purge or Release is
	// called. When false, utterances finish instantly.
	Busy bool

	// Started, if non-nil, receives each text passed to SpeakText. Sends do
	// not block; use a buffered channel.
	Started chan string

	// --- Call records ---

	// InitializeCalls records the settings of every Initialize call.
	InitializeCalls []speech.Settings

	// SpeakCalls records every text passed to SpeakText in order.
	SpeakCalls []string

	// PurgeCalls counts Purge calls.
	PurgeCalls int

	// DisposeCalls counts Dispose calls.
	DisposeCalls int

	idle chan struct{}
}

// Kind returns KindValue.
func (b *Backend) Kind() speech.Kind {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.KindValue
}

// Initialize records the call and returns InitErr.
func (b *Backend) Initialize(_ context.Context, settings speech.Settings) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.InitializeCalls = append(b.InitializeCalls, settings)
	return b.InitErr
}

// SpeakText records the call and returns SpeakErr. When Busy is set the
// utterance remains in progress until Purge or Release.
func (b *Backend) SpeakText(_ context.Context, text string) error {
	b.mu.Lock()
	b.SpeakCalls = append(b.SpeakCalls, text)
	err := b.SpeakErr
	if err == nil && b.Busy {
		b.idle = make(chan struct{})
	}
	started := b.Started
	b.mu.Unlock()

	if started != nil {
		select {
		case started <- text:
		default:
		}
	}
	return err
}

// WaitUntilIdle blocks while an utterance is in progress.
func (b *Backend) WaitUntilIdle(ctx context.Context) error {
	b.mu.Lock()
	idle := b.idle
	b.mu.Unlock()

	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Purge records the call and ends the current utterance.
func (b *Backend) Purge() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.PurgeCalls++
	b.finishLocked()
	return nil
}

// Dispose records the call and ends the current utterance.
func (b *Backend) Dispose() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.DisposeCalls++
	b.finishLocked()
	return nil
}

// SetBusy changes Busy for subsequent utterances.
func (b *Backend) SetBusy(busy bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Busy = busy
}

// SetSpeakErr changes SpeakErr for subsequent utterances.
func (b *Backend) SetSpeakErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.SpeakErr = err
}

// Release finishes the current utterance as if playback ended naturally.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finishLocked()
}

// Spoken returns a copy of SpeakCalls.
func (b *Backend) Spoken() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.SpeakCalls))
	copy(out, b.SpeakCalls)
	return out
}

// Purges returns PurgeCalls.
func (b *Backend) Purges() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.PurgeCalls
}

// Disposes returns DisposeCalls.
func (b *Backend) Disposes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.DisposeCalls
}

// Initializations returns the number of Initialize calls.
func (b *Backend) Initializations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.InitializeCalls)
}

func (b *Backend) finishLocked() {
	if b.idle != nil {
		close(b.idle)
		b.idle = nil
	}
}
