// Package coqui provides the secondary speech backend: a locally running
// Coqui TTS server for synthesis and the host's audio device (via oto) for
// playback. It does not depend on any OS speech support, which makes it the
// portable fallback when the native synthesizer is missing.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis via GET /api/tts; voices from
//     GET /details.
//
//   - APIModeXTTS: the Coqui XTTS v2 API server. Synthesis via
//     POST /tts_to_audio/; voices from GET /studio_speakers.
//
// Synthesis runs asynchronously after [Backend.SpeakText]; a synthesis or
// playback failure is reported by the following [Backend.WaitUntilIdle].
//
// Typical usage:
//
//	b, err := coqui.New("http://localhost:5002", coqui.WithLanguage("en"))
//	if err != nil { ... }
//	err = b.Initialize(ctx, speech.Settings{Voice: "p225"})
package coqui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrWong99/jarvis/pkg/speech"
)

// Compile-time interface assertion.
var _ speech.Backend = (*Backend)(nil)

const (
	defaultLanguage     = "en"
	defaultTimeout      = 30 * time.Second
	defaultPlaybackRate = 22050
	defaultRequestEvery = 200 * time.Millisecond
)

// Option is a functional option for configuring a Coqui Backend.
type Option func(*Backend)

// WithLanguage sets the language code sent to the server. Default "en".
func WithLanguage(lang string) Option {
	return func(b *Backend) {
		b.client.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Default 30s.
func WithTimeout(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.client.httpClient.Timeout = d
		}
	}
}

// WithAPIMode selects the server API. Default [APIModeStandard].
func WithAPIMode(mode APIMode) Option {
	return func(b *Backend) {
		b.client.apiMode = mode
	}
}

// WithPlaybackRate sets the sample rate of the audio device. Synthesised audio
// is resampled to it. Default 22050.
func WithPlaybackRate(hz int) Option {
	return func(b *Backend) {
		if hz > 0 {
			b.playbackRate = hz
		}
	}
}

// WithPlayerFactory replaces the oto audio output. Used by tests.
func WithPlayerFactory(f PlayerFactory) Option {
	return func(b *Backend) {
		b.newPlayer = f
	}
}

// WithRequestInterval sets the minimum spacing between synthesis requests.
func WithRequestInterval(d time.Duration) Option {
	return func(b *Backend) {
		b.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// Backend implements speech.Backend on top of a Coqui TTS server.
type Backend struct {
	client       *client
	playbackRate int
	newPlayer    PlayerFactory
	limiter      *rate.Limiter

	player  Player
	speaker string

	cancel context.CancelFunc
	done   chan struct{}
	err    error // result of the last utterance; read after done is closed
}

// New creates a Coqui backend for the server at serverURL
// (e.g. "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Backend, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	b := &Backend{
		client: &client{
			serverURL:  strings.TrimRight(serverURL, "/"),
			language:   defaultLanguage,
			apiMode:    APIModeStandard,
			httpClient: &http.Client{Timeout: defaultTimeout},
		},
		playbackRate: defaultPlaybackRate,
		newPlayer:    NewOtoPlayer,
		limiter:      rate.NewLimiter(rate.Every(defaultRequestEvery), 2),
	}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// Kind returns [speech.KindSecondary].
func (b *Backend) Kind() speech.Kind { return speech.KindSecondary }

// Speaker returns the voice selected by Initialize, or "".
func (b *Backend) Speaker() string { return b.speaker }

// Initialize probes the server by listing its voices, resolves the requested
// voice and opens the audio device.
func (b *Backend) Initialize(ctx context.Context, settings speech.Settings) error {
	voices, err := b.client.listVoices(ctx)
	if err != nil {
		return fmt.Errorf("coqui: probe %s: %w: %w", b.client.serverURL, speech.ErrUnavailable, err)
	}

	switch {
	case settings.Voice != "":
		if v, ok := matchVoice(voices, settings.Voice); ok {
			b.speaker = v
		} else {
			slog.Debug("coqui: no voice matching request, using default", "voice", settings.Voice, "available", len(voices))
		}
	case b.client.apiMode == APIModeXTTS && len(voices) > 0:
		b.speaker = voices[0]
	}
	if b.client.apiMode == APIModeXTTS && b.speaker == "" {
		return fmt.Errorf("coqui: xtts server offers no speakers: %w", speech.ErrUnavailable)
	}
	if settings.Rate > 0 {
		slog.Debug("coqui: speaking rate is not adjustable, ignoring", "rate", settings.Rate)
	}

	player, err := b.newPlayer(b.playbackRate)
	if err != nil {
		return fmt.Errorf("coqui: %w: %w", speech.ErrUnavailable, err)
	}
	if settings.Volume > 0 {
		player.SetVolume(min(settings.Volume, 1))
	}
	b.player = player
	return nil
}

// SpeakText starts synthesis and playback of text in the background.
func (b *Backend) SpeakText(ctx context.Context, text string) error {
	if b.player == nil {
		return fmt.Errorf("coqui: not initialised: %w", speech.ErrUnavailable)
	}
	if b.done != nil {
		_ = b.Purge()
		<-b.done
	}

	uctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.cancel = cancel
	b.done = done
	b.err = nil

	go func() {
		defer close(done)
		b.err = b.speak(uctx, text)
	}()
	return nil
}

func (b *Backend) speak(ctx context.Context, text string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	c, err := b.client.synthesize(ctx, text, b.speaker)
	if err != nil {
		return err
	}
	pcm := c.pcm
	if c.channels == 1 {
		pcm = resampleMono16(pcm, c.sampleRate, b.player.SampleRate())
	}
	return b.player.Play(ctx, pcm)
}

// WaitUntilIdle waits for the current utterance and returns its error, if any.
// An utterance aborted by Purge reports no error.
func (b *Backend) WaitUntilIdle(ctx context.Context) error {
	if b.done == nil {
		return nil
	}
	select {
	case <-b.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	err := b.err
	b.cancel()
	b.cancel, b.done, b.err = nil, nil, nil
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Purge cancels the in-flight request or playback.
func (b *Backend) Purge() error {
	if b.cancel != nil {
		b.cancel()
	}
	return nil
}

// Dispose aborts playback and releases the audio device.
func (b *Backend) Dispose() error {
	if b.done != nil {
		b.cancel()
		<-b.done
		b.cancel, b.done = nil, nil
	}
	if b.player != nil {
		return b.player.Close()
	}
	return nil
}
