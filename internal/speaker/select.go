package speaker

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/MrWong99/jarvis/internal/resilience"
	"github.com/MrWong99/jarvis/pkg/speech"
	"github.com/MrWong99/jarvis/pkg/speech/null"
)

var warnNullOnce sync.Once

// Select initialises candidates in order and returns the first that
// succeeds. A null engine is appended when the list does not already end
// with one, so Select only fails if that last resort fails too. Choosing the
// null engine logs a warning once per process.
func Select(ctx context.Context, candidates []speech.Backend, settings speech.Settings) (speech.Backend, error) {
	if len(candidates) == 0 || candidates[len(candidates)-1].Kind() != speech.KindNone {
		candidates = append(slices.Clip(candidates), null.New())
	}

	fg := resilience.NewFallbackGroup(candidates[0], candidateName(0, candidates[0]), resilience.FallbackConfig{})
	for i, c := range candidates[1:] {
		fg.AddFallback(candidateName(i+1, c), c)
	}

	b, err := resilience.ExecuteWithResult(fg, func(b speech.Backend) (speech.Backend, error) {
		if err := b.Initialize(ctx, settings); err != nil {
			return nil, err
		}
		return b, nil
	})
	if err != nil {
		return nil, fmt.Errorf("speaker: select: %w", err)
	}

	if b.Kind() == speech.KindNone {
		warnNullOnce.Do(func() {
			slog.Warn("no speech engine available, responses will only be printed")
		})
	}
	slog.Info("speech engine selected", "kind", b.Kind().String())
	return b, nil
}

// Open selects an engine from candidates and starts a [Queue] on it.
func Open(ctx context.Context, candidates []speech.Backend, settings speech.Settings, opts ...Option) (*Queue, error) {
	b, err := Select(ctx, candidates, settings)
	if err != nil {
		return nil, err
	}
	q := New(b, opts...)
	q.Start()
	return q, nil
}

func candidateName(i int, b speech.Backend) string {
	return fmt.Sprintf("%d:%s", i, b.Kind())
}
