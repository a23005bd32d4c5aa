// Package config provides the configuration schema, loader, hot-reload
// watcher and speech engine registry for Jarvis.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the log handler.
type LogFormat string

const (
	// LogFormatAuto uses coloured output on a terminal and plain text
	// otherwise.
	LogFormatAuto LogFormat = "auto"
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	switch f {
	case LogFormatAuto, LogFormatText, LogFormatJSON:
		return true
	}
	return false
}

// InputSource selects where utterances come from.
type InputSource string

const (
	InputConsole   InputSource = "console"
	InputWebSocket InputSource = "websocket"
)

// IsValid reports whether s is a recognised input source.
func (s InputSource) IsValid() bool {
	return s == InputConsole || s == InputWebSocket
}

// Config is the root configuration structure for Jarvis. It is typically
// obtained with [Load], [LoadFromReader] or [Resolve].
type Config struct {
	Log       LogConfig       `yaml:"log"       envPrefix:"LOG_"`
	Speech    SpeechConfig    `yaml:"speech"    envPrefix:"SPEECH_"`
	Router    RouterConfig    `yaml:"router"    envPrefix:"ROUTER_"`
	Input     InputConfig     `yaml:"input"     envPrefix:"INPUT_"`
	Apps      AppsConfig      `yaml:"apps"      envPrefix:"APPS_"`
	Notes     NotesConfig     `yaml:"notes"     envPrefix:"NOTES_"`
	Server    ServerConfig    `yaml:"server"    envPrefix:"SERVER_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  LogLevel  `yaml:"level"  env:"LEVEL"`
	Format LogFormat `yaml:"format" env:"FORMAT"`
}

// SpeechConfig controls engine selection and voice settings.
type SpeechConfig struct {
	// Engines lists engine names in order of preference. The silent null
	// engine is always tried last, whether listed or not.
	Engines []string `yaml:"engines" env:"ENGINES" envSeparator:","`

	// Rate is the speaking rate in words per minute. 0 keeps the engine
	// default.
	Rate int `yaml:"rate" env:"RATE"`

	// Volume is in (0, 1]. 0 keeps the engine default.
	Volume float64 `yaml:"volume" env:"VOLUME"`

	// Voice is a case-insensitive substring of the preferred voice name.
	Voice string `yaml:"voice" env:"VOICE"`

	// ShutdownTimeout bounds how long shutdown waits for the last utterance.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// PollSlice is how often a speaking engine is checked for a stop request.
	PollSlice time.Duration `yaml:"poll_slice" env:"POLL_SLICE"`

	Coqui CoquiConfig `yaml:"coqui" envPrefix:"COQUI_"`
}

// CoquiConfig points the coqui engine at a Coqui TTS server.
type CoquiConfig struct {
	URL      string        `yaml:"url"      env:"URL"`
	Language string        `yaml:"language" env:"LANGUAGE"`
	APIMode  string        `yaml:"api_mode" env:"API_MODE"`
	Timeout  time.Duration `yaml:"timeout"  env:"TIMEOUT"`
}

// RouterConfig tunes intent classification.
type RouterConfig struct {
	// StrictOpenPrefix routes every "open X" that is not a known site or
	// folder to an application launch, including hostnames like "example.com".
	StrictOpenPrefix bool `yaml:"strict_open_prefix" env:"STRICT_OPEN_PREFIX"`

	// Farewell is spoken before exiting.
	Farewell string `yaml:"farewell" env:"FAREWELL"`
}

// InputConfig selects and configures the utterance source.
type InputConfig struct {
	Source    InputSource          `yaml:"source"    env:"SOURCE"`
	WebSocket WebSocketInputConfig `yaml:"websocket" envPrefix:"WEBSOCKET_"`
}

// WebSocketInputConfig configures the transcript stream source.
type WebSocketInputConfig struct {
	URL           string        `yaml:"url"            env:"URL"`
	ListenTimeout time.Duration `yaml:"listen_timeout" env:"LISTEN_TIMEOUT"`
}

// AppsConfig controls the application index.
type AppsConfig struct {
	// ExtraDirs are scanned in addition to the platform defaults.
	ExtraDirs []string `yaml:"extra_dirs" env:"EXTRA_DIRS" envSeparator:","`

	// Watch enables filesystem notifications for the scanned directories.
	Watch bool `yaml:"watch" env:"WATCH"`

	// RebuildInterval rebuilds the index periodically. 0 disables it.
	RebuildInterval time.Duration `yaml:"rebuild_interval" env:"REBUILD_INTERVAL"`
}

// NotesConfig locates the note file.
type NotesConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

// ServerConfig configures the status server exposing health and metrics.
type ServerConfig struct {
	// ListenAddr is the TCP address of the status server (e.g. ":9090").
	// Empty disables the server.
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`
}

// TelemetryConfig configures tracing export.
type TelemetryConfig struct {
	// OTLPEndpoint is an OTLP/HTTP traces URL. Empty disables export.
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string `yaml:"service_name"  env:"SERVICE_NAME"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields of cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = LogInfo
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = LogFormatAuto
	}
	if len(cfg.Speech.Engines) == 0 {
		cfg.Speech.Engines = []string{EngineNative, EngineCoqui}
	}
	if cfg.Speech.ShutdownTimeout == 0 {
		cfg.Speech.ShutdownTimeout = 3 * time.Second
	}
	if cfg.Speech.PollSlice == 0 {
		cfg.Speech.PollSlice = 150 * time.Millisecond
	}
	if cfg.Speech.Coqui.URL == "" {
		cfg.Speech.Coqui.URL = "http://localhost:5002"
	}
	if cfg.Speech.Coqui.Language == "" {
		cfg.Speech.Coqui.Language = "en"
	}
	if cfg.Speech.Coqui.APIMode == "" {
		cfg.Speech.Coqui.APIMode = "standard"
	}
	if cfg.Speech.Coqui.Timeout == 0 {
		cfg.Speech.Coqui.Timeout = 30 * time.Second
	}
	if cfg.Router.Farewell == "" {
		cfg.Router.Farewell = "Goodbye!"
	}
	if cfg.Input.Source == "" {
		cfg.Input.Source = InputConsole
	}
	if cfg.Input.WebSocket.ListenTimeout == 0 {
		cfg.Input.WebSocket.ListenTimeout = 5 * time.Second
	}
	if cfg.Notes.Path == "" {
		cfg.Notes.Path = "~/voice_ai_notes.txt"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "jarvis"
	}
}
