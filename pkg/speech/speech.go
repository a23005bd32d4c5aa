// Package speech defines the contract between the speech queue and the
// concrete synthesis engines.
//
// A [Backend] is driven by exactly one goroutine at a time: the queue worker
// that owns it. Implementations therefore do not need to guard their
// lifecycle methods against concurrent calls, but [Backend.Purge] must be able
// to abort an utterance started by a previous [Backend.SpeakText].
//
// Three engine kinds exist, tried in preference order at startup:
//
//   - [KindPrimary]: the platform's native synthesizer (see package native).
//   - [KindSecondary]: a portable engine that does not depend on OS speech
//     support (see package coqui).
//   - [KindNone]: print-only output (see package null).
package speech

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned by [Backend.Initialize] when the engine cannot be
// used on this machine (missing binary, unreachable server, no audio device).
var ErrUnavailable = errors.New("speech: engine unavailable")

// Kind identifies the class of a [Backend].
type Kind int

const (
	// KindNone is the print-only fallback.
	KindNone Kind = iota

	// KindPrimary is the platform-native engine.
	KindPrimary

	// KindSecondary is the portable fallback engine.
	KindSecondary
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindPrimary:
		return "primary"
	case KindSecondary:
		return "secondary"
	case KindNone:
		return "none"
	default:
		return "unknown"
	}
}

// Phase is the lifecycle phase of an [EngineState].
type Phase int

const (
	// PhaseUninitialized means selection has not run yet.
	PhaseUninitialized Phase = iota

	// PhaseReady means a backend has been selected and initialised.
	PhaseReady

	// PhaseUnavailable means no backend could be used. With a null engine in
	// the chain this is only reached after disposal.
	PhaseUnavailable
)

// String returns the lower-case name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseReady:
		return "ready"
	case PhaseUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// EngineState describes which engine is active. Kind is only meaningful when
// Phase is [PhaseReady].
type EngineState struct {
	Phase Phase
	Kind  Kind
}

// String renders the state as "ready(primary)", "uninitialized", etc.
func (s EngineState) String() string {
	if s.Phase == PhaseReady {
		return s.Phase.String() + "(" + s.Kind.String() + ")"
	}
	return s.Phase.String()
}

// Settings are optional voice parameters applied best-effort by a backend.
// The zero value means "engine defaults".
type Settings struct {
	// Rate is the speaking rate in words per minute. 0 keeps the default.
	Rate int

	// Volume is the output volume in the range (0, 1]. 0 keeps the default.
	Volume float64

	// Voice is a case-insensitive substring of the desired voice name.
	// Empty keeps the default voice.
	Voice string
}

// Backend is a concrete speech synthesis engine.
type Backend interface {
	// Kind reports the engine class.
	Kind() Kind

	// Initialize prepares the engine and applies settings. It returns an error
	// wrapping [ErrUnavailable] when the engine cannot be used. Failure to
	// apply an individual setting must not make Initialize fail.
	Initialize(ctx context.Context, settings Settings) error

	// SpeakText starts speaking text. It may return before playback ends.
	SpeakText(ctx context.Context, text string) error

	// WaitUntilIdle blocks until the current utterance has finished or ctx is
	// done. It returns nil when the engine is idle and ctx.Err() if ctx ended
	// first. Engines that synthesize asynchronously report a failure of the
	// finished utterance here instead of from SpeakText.
	WaitUntilIdle(ctx context.Context) error

	// Purge aborts the current utterance, if any.
	Purge() error

	// Dispose releases all resources. The backend must not be used afterwards.
	Dispose() error
}

// Wait caps for a single utterance.
const (
	MinUtteranceWait = 1500 * time.Millisecond
	MaxUtteranceWait = 30 * time.Second
	PerCharWait      = 60 * time.Millisecond
)

// UtteranceWait returns how long the worker waits for text to be spoken before
// moving on: proportional to its length, clamped to
// [MinUtteranceWait, MaxUtteranceWait].
func UtteranceWait(text string) time.Duration {
	d := time.Duration(len(text)) * PerCharWait
	return min(max(d, MinUtteranceWait), MaxUtteranceWait)
}
