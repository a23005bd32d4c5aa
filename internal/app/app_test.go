package app_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/internal/app"
	"github.com/MrWong99/jarvis/internal/appindex"
	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/executor"
	"github.com/MrWong99/jarvis/internal/input"
	inputmock "github.com/MrWong99/jarvis/internal/input/mock"
	"github.com/MrWong99/jarvis/pkg/intent"
	"github.com/MrWong99/jarvis/pkg/speech"
	speechmock "github.com/MrWong99/jarvis/pkg/speech/mock"
)

// syncBuffer is a bytes.Buffer safe for the speech worker and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// scriptedExecutor answers every action with "did <action>".
type scriptedExecutor struct {
	mu      sync.Mutex
	actions []intent.Action
}

func (x *scriptedExecutor) Execute(_ context.Context, a intent.Action) executor.Result {
	x.mu.Lock()
	x.actions = append(x.actions, a)
	x.mu.Unlock()
	if a.Kind == intent.KindExit {
		return executor.Result{Exit: true}
	}
	return executor.Result{Text: "did " + a.String()}
}

func (x *scriptedExecutor) kinds() []intent.Kind {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]intent.Kind, len(x.actions))
	for i, a := range x.actions {
		out[i] = a.Kind
	}
	return out
}

type fixture struct {
	app     *app.App
	engine  *speechmock.Backend
	source  *inputmock.Source
	exec    *scriptedExecutor
	out     *syncBuffer
	cfg     *config.Config
	applied *slog.LevelVar
}

func newFixture(t *testing.T, cfg *config.Config, lines ...string) fixture {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	f := fixture{
		engine:  &speechmock.Backend{KindValue: speech.KindPrimary},
		source:  inputmock.New(lines...),
		exec:    &scriptedExecutor{},
		out:     &syncBuffer{},
		cfg:     cfg,
		applied: new(slog.LevelVar),
	}
	a, err := app.New(context.Background(), cfg,
		app.WithOutput(f.out),
		app.WithInput(f.source),
		app.WithSpeechEngines(f.engine),
		app.WithAppIndex(appindex.New(nil)),
		app.WithExecutor(f.exec),
		app.WithLogLevel(f.applied),
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	f.app = a
	return f
}

func TestRun_Conversation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, "what's the time?", "", "open youtube", "exit", "never reached")

	if err := f.app.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		app.PhraseIndexing,
		app.PhraseOnline,
		app.PhraseGreeting,
		"did tell_time",
		"did open_site(youtube)",
		"Goodbye!",
	}
	if got := f.engine.Spoken(); !slices.Equal(got, want) {
		t.Errorf("spoken = %q\nwant     %q", got, want)
	}
	wantKinds := []intent.Kind{intent.KindTellTime, intent.KindOpenSite, intent.KindExit}
	if got := f.exec.kinds(); !slices.Equal(got, wantKinds) {
		t.Errorf("executed = %v, want %v", got, wantKinds)
	}
	if n := f.source.CaptureCount(); n != 4 {
		t.Errorf("captures = %d, want 4: the loop must stop after exit", n)
	}
	if !strings.Contains(f.out.String(), "[Assistant]: Goodbye!") {
		t.Errorf("output = %q, want the farewell printed", f.out.String())
	}
	if f.app.Queue().State().String() != "stopped" {
		t.Errorf("queue state = %v, want stopped after Run", f.app.Queue().State())
	}
}

func TestRun_EndOfInputExits(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Router.Farewell = "Bye for now."
	f := newFixture(t, cfg, "search for cats")

	if err := f.app.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := f.engine.Spoken()
	if len(got) == 0 || got[len(got)-1] != "Bye for now." {
		t.Errorf("spoken = %q, want the configured farewell last", got)
	}
	if !slices.Contains(got, "did search(cats)") {
		t.Errorf("spoken = %q, missing the search reply", got)
	}
}

func TestRun_ConsoleInputIsNormalized(t *testing.T) {
	t.Parallel()

	engine := &speechmock.Backend{KindValue: speech.KindPrimary}
	exec := &scriptedExecutor{}
	console := input.NewConsole(strings.NewReader("  Open Visual Studio Code\nEXIT\nnever reached\n"), io.Discard)
	a, err := app.New(context.Background(), config.Default(),
		app.WithOutput(io.Discard),
		app.WithInput(console),
		app.WithSpeechEngines(engine),
		app.WithAppIndex(appindex.New(nil)),
		app.WithExecutor(exec),
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	exec.mu.Lock()
	got := slices.Clone(exec.actions)
	exec.mu.Unlock()
	want := []intent.Action{intent.LaunchApp("visual studio code"), intent.Exit()}
	if !slices.Equal(got, want) {
		t.Errorf("executed = %v, want %v", got, want)
	}
	spoken := engine.Spoken()
	if len(spoken) == 0 || spoken[len(spoken)-1] != "Goodbye!" {
		t.Errorf("spoken = %q, want the farewell after EXIT", spoken)
	}
}

// blockingSource blocks in Capture until ctx is done.
type blockingSource struct{}

func (blockingSource) Capture(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (blockingSource) Close() error { return nil }

func TestRun_CancelledContext(t *testing.T) {
	t.Parallel()

	engine := &speechmock.Backend{KindValue: speech.KindPrimary}
	a, err := app.New(context.Background(), config.Default(),
		app.WithOutput(io.Discard),
		app.WithInput(blockingSource{}),
		app.WithSpeechEngines(engine),
		app.WithAppIndex(appindex.New(nil)),
		app.WithExecutor(&scriptedExecutor{}),
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := a.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run = %v, want DeadlineExceeded", err)
	}
	if slices.Contains(engine.Spoken(), "Goodbye!") {
		t.Error("a cancelled run must not say goodbye")
	}
}

func TestNew_FallsBackToSilentEngine(t *testing.T) {
	t.Parallel()

	broken := &speechmock.Backend{KindValue: speech.KindPrimary, InitErr: speech.ErrUnavailable}
	out := &syncBuffer{}
	a, err := app.New(context.Background(), config.Default(),
		app.WithOutput(out),
		app.WithInput(inputmock.New("exit")),
		app.WithSpeechEngines(broken),
		app.WithAppIndex(appindex.New(nil)),
		app.WithExecutor(&scriptedExecutor{}),
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	if k := a.Queue().Engine().Kind; k != speech.KindNone {
		t.Fatalf("engine kind = %v, want none", k)
	}
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "[Assistant]: "+app.PhraseGreeting) {
		t.Errorf("output = %q, replies must still be printed", out.String())
	}
}

func TestNew_EngineRegistry(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	engine := &speechmock.Backend{KindValue: speech.KindSecondary}
	reg.Register("fake", func(config.SpeechConfig) (speech.Backend, error) { return engine, nil })

	cfg := config.Default()
	cfg.Speech.Engines = []string{"fake"}
	cfg.Speech.Voice = "zira"
	a, err := app.New(context.Background(), cfg,
		app.WithOutput(io.Discard),
		app.WithInput(inputmock.New()),
		app.WithEngineRegistry(reg),
		app.WithAppIndex(appindex.New(nil)),
		app.WithExecutor(&scriptedExecutor{}),
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	defer a.Queue().Shutdown(context.Background())

	if k := a.Queue().Engine().Kind; k != speech.KindSecondary {
		t.Errorf("engine kind = %v, want secondary", k)
	}
	if calls := engine.InitializeCalls; len(calls) != 1 || calls[0].Voice != "zira" {
		t.Errorf("initialize calls = %+v", calls)
	}
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, "open example.com", "exit")
	next := config.Default()
	next.Log.Level = config.LogDebug
	next.Router.StrictOpenPrefix = true
	next.Router.Farewell = "Later."

	f.app.ApplyConfig(f.cfg, next)

	if f.applied.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", f.applied.Level())
	}
	if err := f.app.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if kinds := f.exec.kinds(); len(kinds) == 0 || kinds[0] != intent.KindLaunchApp {
		t.Errorf("executed = %v, want strict mode to launch example.com", kinds)
	}
	got := f.engine.Spoken()
	if got[len(got)-1] != "Later." {
		t.Errorf("spoken = %q, want the reloaded farewell", got)
	}
}

func TestStatusHandler(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	h := f.app.StatusHandler()

	get := func(path string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	if code := get("/healthz"); code != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", code)
	}
	if code := get("/readyz"); code != http.StatusServiceUnavailable {
		t.Errorf("/readyz before indexing = %d, want 503", code)
	}
	if _, err := f.app.Index().Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if code := get("/readyz"); code != http.StatusOK {
		t.Errorf("/readyz after indexing = %d, want 200", code)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := app.SlogLevel(tt.in); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
