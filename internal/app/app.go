// Package app wires the Jarvis subsystems into a running assistant.
//
// New selects a speech engine, builds the application index, executor and
// input source from the config. Run speaks the greeting, then listens,
// classifies, executes and answers until the user says goodbye, the input
// ends or ctx is cancelled. Background work (status server, index watcher
// and periodic rebuilds) runs in the same errgroup and stops with the loop.
//
// Tests inject doubles with the With* options.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/jarvis/internal/appindex"
	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/executor"
	"github.com/MrWong99/jarvis/internal/input"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/speaker"
	"github.com/MrWong99/jarvis/pkg/intent"
	"github.com/MrWong99/jarvis/pkg/speech"
)

// Startup and status phrases.
const (
	PhraseIndexing = "Indexing the apps."
	PhraseOnline   = "Jarvis is Online"
	PhraseGreeting = "Hello! What do you need?"
)

// Executor runs a classified action. *executor.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, a intent.Action) executor.Result
}

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	out       io.Writer
	registry  *config.Registry
	engines   []speech.Backend
	queue     *speaker.Queue
	index     *appindex.Index
	exec      Executor
	source    input.Source
	metrics   *observe.Metrics
	telemetry *observe.Provider
	logLevel  *slog.LevelVar

	router   atomic.Pointer[intent.Router]
	farewell atomic.Pointer[string]

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithOutput sets where spoken replies and prompts are printed.
// Default os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithInput injects the utterance source instead of creating one from config.
func WithInput(s input.Source) Option {
	return func(a *App) { a.source = s }
}

// WithSpeechEngines replaces the configured engine candidates.
func WithSpeechEngines(engines ...speech.Backend) Option {
	return func(a *App) { a.engines = engines }
}

// WithEngineRegistry replaces [NewEngineRegistry].
func WithEngineRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithAppIndex injects the application index.
func WithAppIndex(ix *appindex.Index) Option {
	return func(a *App) { a.index = ix }
}

// WithExecutor injects the action executor.
func WithExecutor(x Executor) Option {
	return func(a *App) { a.exec = x }
}

// WithMetrics sets the metrics sink. Default [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithTelemetry exposes the provider's Prometheus registry on /metrics and
// shuts it down with the app.
func WithTelemetry(p *observe.Provider) Option {
	return func(a *App) { a.telemetry = p }
}

// WithLogLevel lets config reloads adjust the log level.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// New creates an App from cfg. Speech engine selection happens here and
// never fails: without a working engine replies are only printed.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, out: os.Stdout}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.router.Store(newRouter(cfg.Router))
	farewell := cfg.Router.Farewell
	a.farewell.Store(&farewell)

	if err := a.initIndex(); err != nil {
		return nil, fmt.Errorf("app: init app index: %w", err)
	}
	if err := a.initExecutor(); err != nil {
		return nil, fmt.Errorf("app: init executor: %w", err)
	}
	if err := a.initSpeech(ctx); err != nil {
		return nil, fmt.Errorf("app: init speech: %w", err)
	}
	if err := a.initInput(); err != nil {
		_ = a.queue.Shutdown(ctx)
		return nil, fmt.Errorf("app: init input: %w", err)
	}
	return a, nil
}

func newRouter(c config.RouterConfig) *intent.Router {
	return intent.NewRouter(intent.WithStrictOpenPrefix(c.StrictOpenPrefix))
}

func (a *App) initIndex() error {
	if a.index != nil {
		return nil
	}
	dirs, err := appDirs(a.cfg.Apps.ExtraDirs)
	if err != nil {
		return err
	}
	a.index = appindex.New(dirs,
		appindex.WithListers(appindex.DefaultListers(runtime.GOOS)...),
		appindex.WithMetrics(a.metrics),
	)
	return nil
}

// appDirs returns the platform application directories plus extra.
func appDirs(extra []string) ([]appindex.Dir, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, fmt.Errorf("home directory: %w", err)
	}
	dirs := appindex.DefaultDirs(runtime.GOOS, home, os.Getenv)
	for _, d := range extra {
		dirs = append(dirs, appindex.Dir{Path: d, MaxDepth: 2})
	}
	return dirs, nil
}

func (a *App) initExecutor() error {
	if a.exec != nil {
		return nil
	}
	x, err := executor.New(a.index,
		executor.WithNotesPath(a.cfg.Notes.Path),
		executor.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	a.exec = x
	return nil
}

func (a *App) initSpeech(ctx context.Context) error {
	if a.engines == nil {
		if a.registry == nil {
			a.registry = NewEngineRegistry()
		}
		a.engines = a.registry.Candidates(a.cfg.Speech)
	}
	q, err := speaker.Open(ctx, a.engines, speechSettings(a.cfg.Speech),
		speaker.WithOutput(a.out),
		speaker.WithPollSlice(a.cfg.Speech.PollSlice),
		speaker.WithShutdownTimeout(a.cfg.Speech.ShutdownTimeout),
		speaker.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	a.queue = q
	return nil
}

func (a *App) initInput() error {
	if a.source == nil {
		switch a.cfg.Input.Source {
		case config.InputWebSocket:
			ws, err := input.NewWebSocket(a.cfg.Input.WebSocket.URL,
				input.WithListenTimeout(a.cfg.Input.WebSocket.ListenTimeout),
				input.WithErrorHandler(a.say),
				input.WithEcho(a.out),
			)
			if err != nil {
				return err
			}
			a.source = ws
		default:
			a.source = input.NewConsole(os.Stdin, a.out)
		}
	}
	a.closers = append(a.closers, a.source.Close)
	return nil
}

// Queue returns the speech queue.
func (a *App) Queue() *speaker.Queue { return a.queue }

// Index returns the application index.
func (a *App) Index() *appindex.Index { return a.index }

// Run speaks the greeting and handles utterances until the user exits, the
// input ends or ctx is cancelled. It returns nil on a requested exit,
// ctx.Err() on cancellation and the error of a failed background task such
// as the status server. The speech queue is drained before Run returns.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !a.index.Ready() {
		a.say(PhraseIndexing)
		if _, err := a.index.Rebuild(runCtx); err != nil {
			slog.Warn("initial app index build failed", "err", err)
		}
	}

	g, gctx := errgroup.WithContext(runCtx)
	if a.cfg.Server.ListenAddr != "" {
		g.Go(func() error { return a.serveStatus(gctx) })
	}
	if a.cfg.Apps.Watch {
		g.Go(func() error {
			if err := a.index.Watch(gctx); err != nil {
				slog.Warn("app directory watch disabled", "err", err)
			}
			return nil
		})
	}
	if a.cfg.Apps.RebuildInterval > 0 {
		g.Go(func() error { return a.index.Refresh(gctx, a.cfg.Apps.RebuildInterval) })
	}

	var loopErr error
	g.Go(func() error {
		defer cancel()
		loopErr = a.loop(gctx)
		return nil
	})
	bgErr := g.Wait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Speech.ShutdownTimeout+time.Second)
	defer cancelShutdown()
	if err := a.queue.Shutdown(shutdownCtx); err != nil {
		slog.Warn("speech shutdown incomplete", "err", err)
	}

	switch {
	case bgErr != nil && ctx.Err() == nil:
		// A failed background task cancelled the loop.
		return bgErr
	case loopErr != nil:
		return loopErr
	}
	return ctx.Err()
}

// loop is the Listening state. It returns nil when the user asks to exit or
// the input ends.
func (a *App) loop(ctx context.Context) error {
	a.say(PhraseOnline)
	a.say(PhraseGreeting)

	for {
		text, err := a.source.Capture(ctx)
		switch {
		case errors.Is(err, io.EOF):
			slog.Info("input ended")
			a.say(*a.farewell.Load())
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			slog.Warn("capture failed", "err", err)
			continue
		}
		text = intent.Normalize(text)
		if text == "" {
			continue
		}
		a.metrics.RecordUtterance(ctx, string(a.cfg.Input.Source))

		if exit := a.handle(ctx, text); exit {
			a.say(*a.farewell.Load())
			return nil
		}
	}
}

// handle classifies and executes one utterance and queues the reply.
func (a *App) handle(ctx context.Context, text string) (exit bool) {
	ctx, span := observe.StartSpan(ctx, "assistant.utterance")
	defer span.End()

	action, rule := a.router.Load().ClassifyRule(text)
	a.metrics.RecordIntent(ctx, action.Kind.String(), rule)
	span.SetAttributes(
		attribute.String("intent.kind", action.Kind.String()),
		attribute.String("intent.rule", rule),
	)
	observe.Logger(ctx).Debug("utterance classified", "text", text, "action", action.String(), "rule", rule)

	res := a.exec.Execute(ctx, action)
	if res.Exit {
		span.AddEvent("exit requested", trace.WithAttributes(attribute.String("text", text)))
		return true
	}
	a.say(res.Text)
	return false
}

func (a *App) say(text string) {
	if err := a.queue.Speak(text); err != nil {
		slog.Debug("reply dropped", "text", text, "err", err)
	}
}

// ApplyConfig applies the hot-reloadable parts of a changed config: log
// level, router mode and farewell, and application directories. Other
// changes are logged and take effect on the next start.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.RouterChanged {
		a.router.Store(newRouter(new.Router))
		farewell := new.Router.Farewell
		a.farewell.Store(&farewell)
		slog.Info("router reconfigured", "strict_open_prefix", new.Router.StrictOpenPrefix)
	}
	if d.AppDirsChanged {
		dirs, err := appDirs(d.NewAppDirs)
		if err != nil {
			slog.Warn("app directories not updated", "err", err)
		} else {
			a.index.SetDirs(dirs)
			a.index.Invalidate()
			slog.Info("app directories changed", "extra_dirs", d.NewAppDirs)
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// SlogLevel converts a config log level.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Shutdown releases the input source and telemetry. Run must have returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		for i, closer := range a.closers {
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		if a.telemetry != nil {
			if err := a.telemetry.Shutdown(ctx); err != nil {
				shutdownErr = fmt.Errorf("app: telemetry shutdown: %w", err)
			}
		}
	})
	return shutdownErr
}
