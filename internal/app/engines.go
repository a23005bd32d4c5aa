package app

import (
	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/pkg/speech"
	"github.com/MrWong99/jarvis/pkg/speech/coqui"
	"github.com/MrWong99/jarvis/pkg/speech/native"
	"github.com/MrWong99/jarvis/pkg/speech/null"
)

// NewEngineRegistry returns a registry holding the built-in speech engines.
func NewEngineRegistry() *config.Registry {
	reg := config.NewRegistry()

	reg.Register(config.EngineNative, func(config.SpeechConfig) (speech.Backend, error) {
		return native.New(), nil
	})

	reg.Register(config.EngineCoqui, func(c config.SpeechConfig) (speech.Backend, error) {
		var opts []coqui.Option
		if c.Coqui.Language != "" {
			opts = append(opts, coqui.WithLanguage(c.Coqui.Language))
		}
		if c.Coqui.APIMode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(c.Coqui.APIMode)))
		}
		if c.Coqui.Timeout > 0 {
			opts = append(opts, coqui.WithTimeout(c.Coqui.Timeout))
		}
		return coqui.New(c.Coqui.URL, opts...)
	})

	reg.Register(config.EngineNull, func(config.SpeechConfig) (speech.Backend, error) {
		return null.New(), nil
	})

	return reg
}

func speechSettings(c config.SpeechConfig) speech.Settings {
	return speech.Settings{Rate: c.Rate, Volume: c.Volume, Voice: c.Voice}
}
