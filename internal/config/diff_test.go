package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/jarvis/internal/config"
)

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(t *testing.T, d config.ConfigDiff)
	}{
		{
			name:   "identical",
			mutate: func(*config.Config) {},
			check: func(t *testing.T, d config.ConfigDiff) {
				if d.Changed() {
					t.Errorf("diff = %+v, want no change", d)
				}
			},
		},
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Log.Level = config.LogDebug },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
					t.Errorf("diff = %+v", d)
				}
			},
		},
		{
			name:   "router mode",
			mutate: func(c *config.Config) { c.Router.StrictOpenPrefix = true },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.RouterChanged || len(d.RestartRequired) != 0 {
					t.Errorf("diff = %+v", d)
				}
			},
		},
		{
			name:   "app dirs",
			mutate: func(c *config.Config) { c.Apps.ExtraDirs = []string{"/opt/apps"} },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.AppDirsChanged || !slices.Equal(d.NewAppDirs, []string{"/opt/apps"}) {
					t.Errorf("diff = %+v", d)
				}
			},
		},
		{
			name: "restart-only sections",
			mutate: func(c *config.Config) {
				c.Speech.Engines = []string{config.EngineCoqui}
				c.Input.Source = config.InputWebSocket
				c.Server.ListenAddr = ":9999"
			},
			check: func(t *testing.T, d config.ConfigDiff) {
				want := []string{"speech", "input", "server"}
				if !slices.Equal(d.RestartRequired, want) {
					t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
				}
				if d.LogLevelChanged || d.RouterChanged || d.AppDirsChanged {
					t.Errorf("unexpected hot change: %+v", d)
				}
			},
		},
		{
			name:   "speech voice",
			mutate: func(c *config.Config) { c.Speech.Voice = "zira" },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !slices.Equal(d.RestartRequired, []string{"speech"}) {
					t.Errorf("RestartRequired = %v", d.RestartRequired)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old := config.Default()
			next := config.Default()
			tt.mutate(next)
			tt.check(t, config.Diff(old, next))
		})
	}
}
