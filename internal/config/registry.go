package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/jarvis/pkg/speech"
)

// Speech engine names accepted in speech.engines.
const (
	EngineNative = "native"
	EngineCoqui  = "coqui"
	EngineNull   = "null"
)

// EngineNames lists the engines [Validate] recognises.
var EngineNames = []string{EngineNative, EngineCoqui, EngineNull}

// ErrEngineNotRegistered is returned by [Registry.Create] when no factory has
// been registered under the requested engine name.
var ErrEngineNotRegistered = errors.New("config: speech engine not registered")

// EngineFactory constructs a speech backend from the speech section.
type EngineFactory func(SpeechConfig) (speech.Backend, error)

// Registry maps speech engine names to their constructors. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]EngineFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]EngineFactory)}
}

// Register registers a factory under name. Subsequent calls with the same
// name overwrite the previous registration.
func (r *Registry) Register(name string, factory EngineFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[name] = factory
}

// Create instantiates the engine registered under name.
// Returns [ErrEngineNotRegistered] if no factory has been registered for it.
func (r *Registry) Create(name string, cfg SpeechConfig) (speech.Backend, error) {
	r.mu.RLock()
	factory, ok := r.engines[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEngineNotRegistered, name)
	}
	return factory(cfg)
}

// Candidates builds the engines listed in cfg.Engines, in order. Engines
// that are unknown or fail to construct are logged and left out; the
// caller's selection falls through to the next one.
func (r *Registry) Candidates(cfg SpeechConfig) []speech.Backend {
	out := make([]speech.Backend, 0, len(cfg.Engines))
	for _, name := range cfg.Engines {
		b, err := r.Create(name, cfg)
		if err != nil {
			slog.Warn("speech engine skipped", "engine", name, "err", err)
			continue
		}
		out = append(out, b)
	}
	return out
}
