package coqui

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Player plays mono 16-bit little-endian PCM at a fixed sample rate.
type Player interface {
	// Play blocks until pcm has been played or ctx is done.
	Play(ctx context.Context, pcm []byte) error

	// SampleRate is the rate Play expects.
	SampleRate() int

	// SetVolume sets the output volume in [0, 1].
	SetVolume(v float64)

	// Close releases the audio device.
	Close() error
}

// PlayerFactory opens a [Player] at the given sample rate.
type PlayerFactory func(sampleRate int) (Player, error)

const playbackPoll = 20 * time.Millisecond

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

// NewOtoPlayer opens the process-wide oto audio context. The first call fixes
// the sample rate; later calls reuse the context and report its rate.
func NewOtoPlayer(sampleRate int) (Player, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			otoErr = fmt.Errorf("coqui: open audio device: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
		otoRate = sampleRate
	})
	if otoErr != nil {
		return nil, otoErr
	}
	return &otoPlayer{ctx: otoCtx, rate: otoRate, volume: 1}, nil
}

type otoPlayer struct {
	ctx  *oto.Context
	rate int

	mu     sync.Mutex
	volume float64
}

func (p *otoPlayer) SampleRate() int { return p.rate }

func (p *otoPlayer) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
}

func (p *otoPlayer) Play(ctx context.Context, pcm []byte) error {
	player := p.ctx.NewPlayer(bytes.NewReader(pcm))
	defer player.Close()

	p.mu.Lock()
	player.SetVolume(p.volume)
	p.mu.Unlock()

	player.Play()

	ticker := time.NewTicker(playbackPoll)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return player.Err()
}

// Close is a no-op: an oto context cannot be closed and is reused by later
// players.
func (p *otoPlayer) Close() error { return nil }
