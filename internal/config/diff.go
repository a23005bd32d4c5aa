package config

import "slices"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RouterChanged is set when the open-prefix mode or the farewell changed.
	RouterChanged bool

	AppDirsChanged bool
	NewAppDirs     []string

	// RestartRequired names changed sections that only take effect on the
	// next start.
	RestartRequired []string
}

// Changed reports whether d carries any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.RouterChanged || d.AppDirsChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Log.Level != new.Log.Level {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Log.Level
	}

	if old.Router != new.Router {
		d.RouterChanged = true
	}

	if !slices.Equal(old.Apps.ExtraDirs, new.Apps.ExtraDirs) {
		d.AppDirsChanged = true
		d.NewAppDirs = slices.Clone(new.Apps.ExtraDirs)
	}

	// The speech engine is selected once at startup and never swapped.
	if !equalSpeech(old.Speech, new.Speech) {
		d.RestartRequired = append(d.RestartRequired, "speech")
	}
	if old.Input != new.Input {
		d.RestartRequired = append(d.RestartRequired, "input")
	}
	if old.Server != new.Server {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}
	if old.Log.Format != new.Log.Format {
		d.RestartRequired = append(d.RestartRequired, "log.format")
	}
	return d
}

func equalSpeech(a, b SpeechConfig) bool {
	if !slices.Equal(a.Engines, b.Engines) {
		return false
	}
	return a.Rate == b.Rate &&
		a.Volume == b.Volume &&
		a.Voice == b.Voice &&
		a.ShutdownTimeout == b.ShutdownTimeout &&
		a.PollSlice == b.PollSlice &&
		a.Coqui == b.Coqui
}
