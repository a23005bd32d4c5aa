// Package native provides the primary speech backend: the operating system's
// own synthesizer driven as a subprocess.
//
// On Linux the engine tries espeak-ng, espeak and spd-say in that order; on
// macOS it uses say; on Windows it drives System.Speech (SAPI) through
// PowerShell. Each utterance runs as one process that receives the text on
// standard input. Purge kills that process.
//
// Typical usage:
//
//	b := native.New()
//	if err := b.Initialize(ctx, speech.Settings{Rate: 180, Voice: "english"}); err != nil {
//	    // errors.Is(err, speech.ErrUnavailable)
//	}
package native

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/MrWong99/jarvis/pkg/speech"
)

// Compile-time interface assertion.
var _ speech.Backend = (*Backend)(nil)

const (
	voiceListTimeout = 5 * time.Second
	purgeWait        = time.Second
)

// Option is a functional option for configuring a native Backend.
type Option func(*Backend)

// WithProfiles replaces the host's default synthesizer list.
func WithProfiles(profiles ...Profile) Option {
	return func(b *Backend) {
		b.profiles = profiles
	}
}

// WithLookPath replaces exec.LookPath for locating synthesizer binaries.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(b *Backend) {
		b.lookPath = fn
	}
}

// Backend implements speech.Backend with a command-line synthesizer.
type Backend struct {
	profiles []Profile
	lookPath func(string) (string, error)

	profile Profile
	path    string
	args    []string

	cur *process
}

// process is one running utterance. err is set before done is closed.
type process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// New returns a native backend for the host operating system.
func New(opts ...Option) *Backend {
	b := &Backend{
		profiles: hostProfiles(),
		lookPath: exec.LookPath,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Kind returns [speech.KindPrimary].
func (b *Backend) Kind() speech.Kind { return speech.KindPrimary }

// Program returns the synthesizer selected by Initialize, or "".
func (b *Backend) Program() string { return b.profile.Name }

// Initialize selects the first synthesizer present on PATH and resolves the
// requested voice. A voice that cannot be resolved is ignored.
func (b *Backend) Initialize(ctx context.Context, settings speech.Settings) error {
	var tried []string
	for _, p := range b.profiles {
		path, err := b.lookPath(p.Name)
		if err != nil {
			tried = append(tried, p.Name)
			continue
		}
		b.profile = p
		b.path = path
		break
	}
	if b.path == "" {
		return fmt.Errorf("native: no synthesizer found (tried %s): %w", strings.Join(tried, ", "), speech.ErrUnavailable)
	}

	voice := ""
	if settings.Voice != "" {
		v, err := b.resolveVoice(ctx, settings.Voice)
		if err != nil {
			slog.Debug("native: voice selection skipped", "program", b.profile.Name, "voice", settings.Voice, "err", err)
		} else {
			voice = v
		}
	}
	b.args = b.profile.Args(settings, voice)

	slog.Debug("native: synthesizer ready", "program", b.profile.Name, "path", b.path, "voice", voice)
	return nil
}

func (b *Backend) resolveVoice(ctx context.Context, want string) (string, error) {
	if b.profile.VoicesArgs == nil || b.profile.ParseVoices == nil {
		return "", errors.New("voice listing not supported")
	}
	ctx, cancel := context.WithTimeout(ctx, voiceListTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, b.path, b.profile.VoicesArgs...).Output()
	if err != nil {
		return "", fmt.Errorf("list voices: %w", err)
	}
	v, ok := matchVoice(b.profile.ParseVoices(string(out)), want)
	if !ok {
		return "", fmt.Errorf("no voice matching %q", want)
	}
	return v, nil
}

// SpeakText starts one synthesizer process for text and returns once it is
// running.
func (b *Backend) SpeakText(ctx context.Context, text string) error {
	if b.path == "" {
		return fmt.Errorf("native: not initialised: %w", speech.ErrUnavailable)
	}
	if b.cur != nil {
		_ = b.killCurrent()
	}

	cmd := exec.CommandContext(ctx, b.path, b.args...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("native: start %s: %w", b.profile.Name, err)
	}

	p := &process{cmd: cmd, done: make(chan struct{})}
	b.cur = p
	program := b.profile.Name
	go func() {
		defer close(p.done)
		err := cmd.Wait()
		if err == nil || ctx.Err() != nil {
			return
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		p.err = fmt.Errorf("native: %s: %w", program, err)
	}()
	return nil
}

// WaitUntilIdle waits for the current synthesizer process to exit and
// returns its failure, if any. A purged process is not a failure.
func (b *Backend) WaitUntilIdle(ctx context.Context) error {
	p := b.cur
	if p == nil {
		return nil
	}
	select {
	case <-p.done:
		b.cur = nil
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Purge kills the current synthesizer process.
func (b *Backend) Purge() error {
	if b.cur == nil {
		return nil
	}
	return b.killCurrent()
}

// Dispose kills any running synthesizer.
func (b *Backend) Dispose() error {
	return b.Purge()
}

func (b *Backend) killCurrent() error {
	cmd, done := b.cur.cmd, b.cur.done
	b.cur = nil

	var err error
	if cmd.Process != nil {
		if kerr := cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			err = fmt.Errorf("native: kill %s: %w", b.profile.Name, kerr)
		}
	}
	select {
	case <-done:
	case <-time.After(purgeWait):
		slog.Warn("native: synthesizer did not exit after kill", "program", b.profile.Name)
	}
	return err
}
