package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable override, e.g.
// JARVIS_LOG_LEVEL or JARVIS_SPEECH_COQUI_URL.
const EnvPrefix = "JARVIS_"

// PathEnv names the variable holding an explicit config file path.
const PathEnv = EnvPrefix + "CONFIG"

// FileName is the config file looked up in the user config directory.
const FileName = "jarvis.yaml"

// Resolve loads the effective configuration: a .env file in the working
// directory is applied to the environment, then the config file is read
// from $JARVIS_CONFIG or the user config directory, then JARVIS_*
// variables override it. A missing file yields the defaults. The returned
// path is empty when no file was read.
func Resolve() (*Config, string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config: could not load .env", "err", err)
	}

	path, explicit, err := DefaultPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(path)
	switch {
	case err == nil:
		return cfg, path, nil
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		slog.Debug("config: no config file, using defaults", "path", path)
		cfg, err := parse(strings.NewReader(""), true)
		return cfg, "", err
	default:
		return nil, "", err
	}
}

// DefaultPath returns the config file location. explicit reports whether
// it came from $JARVIS_CONFIG, in which case the file must exist.
func DefaultPath() (path string, explicit bool, err error) {
	if p := os.Getenv(PathEnv); p != "" {
		p, err := homedir.Expand(p)
		if err != nil {
			return "", true, fmt.Errorf("config: expand %s: %w", PathEnv, err)
		}
		return p, true, nil
	}
	p, err := gap.NewScope(gap.User, "jarvis").ConfigPath(FileName)
	if err != nil {
		return "", false, fmt.Errorf("config: locate user config dir: %w", err)
	}
	return p, false, nil
}

// Load reads the YAML file at path, applies JARVIS_* environment overrides
// and defaults, and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := parse(f, true)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. The environment is not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	return parse(r, false)
}

func parse(r io.Reader, withEnv bool) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if withEnv {
		if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
			return nil, fmt.Errorf("config: environment overrides: %w", err)
		}
	}
	ApplyDefaults(cfg)
	if err := expandPaths(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func expandPaths(cfg *Config) error {
	for i, d := range cfg.Apps.ExtraDirs {
		p, err := homedir.Expand(strings.TrimSpace(d))
		if err != nil {
			return fmt.Errorf("config: apps.extra_dirs[%d]: %w", i, err)
		}
		cfg.Apps.ExtraDirs[i] = p
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Log.Level != "" && !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}
	if cfg.Log.Format != "" && !cfg.Log.Format.IsValid() {
		errs = append(errs, fmt.Errorf("log.format %q is invalid; valid values: auto, text, json", cfg.Log.Format))
	}

	// Speech
	for i, name := range cfg.Speech.Engines {
		if name == "" {
			errs = append(errs, fmt.Errorf("speech.engines[%d] is empty", i))
			continue
		}
		validateEngineName(name)
	}
	if cfg.Speech.Rate < 0 {
		errs = append(errs, fmt.Errorf("speech.rate %d must not be negative", cfg.Speech.Rate))
	}
	if cfg.Speech.Volume < 0 || cfg.Speech.Volume > 1 {
		errs = append(errs, fmt.Errorf("speech.volume %.2f is out of range [0, 1]", cfg.Speech.Volume))
	}
	if cfg.Speech.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("speech.shutdown_timeout %s must not be negative", cfg.Speech.ShutdownTimeout))
	}
	if cfg.Speech.PollSlice < 0 {
		errs = append(errs, fmt.Errorf("speech.poll_slice %s must not be negative", cfg.Speech.PollSlice))
	}
	if m := cfg.Speech.Coqui.APIMode; m != "" && m != "standard" && m != "xtts" {
		errs = append(errs, fmt.Errorf("speech.coqui.api_mode %q is invalid; valid values: standard, xtts", m))
	}

	// Input
	if cfg.Input.Source != "" && !cfg.Input.Source.IsValid() {
		errs = append(errs, fmt.Errorf("input.source %q is invalid; valid values: console, websocket", cfg.Input.Source))
	}
	if cfg.Input.Source == InputWebSocket && cfg.Input.WebSocket.URL == "" {
		errs = append(errs, errors.New("input.websocket.url is required when input.source is websocket"))
	}
	if cfg.Input.WebSocket.ListenTimeout < 0 {
		errs = append(errs, fmt.Errorf("input.websocket.listen_timeout %s must not be negative", cfg.Input.WebSocket.ListenTimeout))
	}

	if cfg.Apps.RebuildInterval < 0 {
		errs = append(errs, fmt.Errorf("apps.rebuild_interval %s must not be negative", cfg.Apps.RebuildInterval))
	}

	return errors.Join(errs...)
}

// validateEngineName logs a warning if name is not one of [EngineNames].
// Unknown engines are skipped at selection time.
func validateEngineName(name string) {
	if slices.Contains(EngineNames, name) {
		return
	}
	slog.Warn("unknown speech engine, it will be skipped",
		"name", name,
		"known", EngineNames,
	)
}
