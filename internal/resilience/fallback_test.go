package resilience

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func newEngineGroup(cfg FallbackConfig) *FallbackGroup[string] {
	fg := NewFallbackGroup("espeak", "native", cfg)
	fg.AddFallback("coqui", "coqui")
	fg.AddFallback("null", "null")
	return fg
}

func TestFallbackGroup_Execute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		failing []string
		want    string
		wantErr bool
	}{
		{name: "head succeeds", want: "espeak"},
		{name: "falls through to second", failing: []string{"espeak"}, want: "coqui"},
		{name: "falls through to last", failing: []string{"espeak", "coqui"}, want: "null"},
		{name: "all fail", failing: []string{"espeak", "coqui", "null"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fg := newEngineGroup(FallbackConfig{})
			var tried []string
			got, err := ExecuteWithResult(fg, func(v string) (string, error) {
				tried = append(tried, v)
				if slices.Contains(tt.failing, v) {
					return "", errSynth
				}
				return v, nil
			})
			if tt.wantErr {
				if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errSynth) {
					t.Fatalf("err = %v, want ErrAllFailed wrapping the cause", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("result = %q, want %q", got, tt.want)
			}
			if want := len(tt.failing) + 1; len(tried) != want {
				t.Errorf("tried %v, want %d attempts", tried, want)
			}
		})
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()

	fg := newEngineGroup(FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})

	for range 2 {
		_ = fg.Execute(func(v string) error {
			if v == "espeak" {
				return errSynth
			}
			return nil
		})
	}

	headCalled := false
	err := fg.Execute(func(v string) error {
		if v == "espeak" {
			headCalled = true
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if headCalled {
		t.Error("head candidate called despite open breaker")
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	t.Parallel()

	got := newEngineGroup(FallbackConfig{}).Names()
	want := []string{"native", "coqui", "null"}
	if !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}
