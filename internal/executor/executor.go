// Package executor performs the side effects behind an [intent.Action] and
// phrases the outcome as a sentence for the speech queue. Failures are
// reported in that sentence and never returned as errors.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/go-homedir"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/jarvis/internal/appindex"
	"github.com/MrWong99/jarvis/internal/notes"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/pkg/intent"
)

// DefaultNotesFile is the note file name inside the home directory.
const DefaultNotesFile = "voice_ai_notes.txt"

// Unrecognized is the reply for utterances no rule matched.
const Unrecognized = "Sorry, I don't have an action for that yet."

// SiteURLs maps the router's site aliases to their URLs.
var SiteURLs = map[string]string{
	"youtube": "https://www.youtube.com",
	"gmail":   "https://mail.google.com",
	"google":  "https://www.google.com",
	"github":  "https://github.com",
	"notion":  "https://www.notion.so",
	"spotify": "https://open.spotify.com",
}

var folderDirs = map[string]string{
	"downloads": "Downloads",
	"documents": "Documents",
	"desktop":   "Desktop",
}

// Resolver finds an application by spoken name. *appindex.Index implements it.
type Resolver interface {
	Resolve(ctx context.Context, name string) (appindex.Entry, appindex.Match)
}

// Result is the outcome of [Executor.Execute].
type Result struct {
	// Text is the reply to speak. Empty for Exit.
	Text string

	// Exit is set when the user asked to quit.
	Exit bool
}

// Option configures an [Executor].
type Option func(*Executor)

// WithOpener replaces the [SystemOpener].
func WithOpener(o Opener) Option {
	return func(x *Executor) { x.opener = o }
}

// WithLauncher replaces the [ProcessLauncher].
func WithLauncher(l Launcher) Option {
	return func(x *Executor) { x.launcher = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(x *Executor) { x.now = now }
}

// WithHome sets the home directory used for folders and the default note
// file.
func WithHome(dir string) Option {
	return func(x *Executor) { x.home = dir }
}

// WithNotesPath sets the note file. A leading ~ is expanded.
func WithNotesPath(path string) Option {
	return func(x *Executor) { x.notesPath = path }
}

// WithMetrics sets the metrics sink. Default [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(x *Executor) { x.metrics = m }
}

// Executor runs actions. It is safe for concurrent use as long as its
// collaborators are.
type Executor struct {
	apps      Resolver
	opener    Opener
	launcher  Launcher
	now       func() time.Time
	home      string
	notesPath string
	notes     *notes.FileStore
	metrics   *observe.Metrics
}

// New creates an executor that resolves applications through apps.
func New(apps Resolver, opts ...Option) (*Executor, error) {
	x := &Executor{
		apps:     apps,
		opener:   SystemOpener{},
		launcher: ProcessLauncher{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(x)
	}
	if x.home == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("executor: home directory: %w", err)
		}
		x.home = home
	}
	if x.notesPath == "" {
		x.notesPath = filepath.Join(x.home, DefaultNotesFile)
	} else {
		p, err := homedir.Expand(x.notesPath)
		if err != nil {
			return nil, fmt.Errorf("executor: notes path: %w", err)
		}
		x.notesPath = p
	}
	x.notes = notes.NewFileStore(x.notesPath)
	if x.metrics == nil {
		x.metrics = observe.DefaultMetrics()
	}
	return x, nil
}

// NotesPath returns the resolved note file.
func (x *Executor) NotesPath() string { return x.notesPath }

// Execute performs a and returns the reply.
func (x *Executor) Execute(ctx context.Context, a intent.Action) Result {
	ctx, span := observe.StartSpan(ctx, "executor.execute",
		trace.WithAttributes(attribute.String("action.kind", a.Kind.String())))
	defer span.End()

	start := time.Now()
	var (
		res Result
		err error
	)
	switch a.Kind {
	case intent.KindExit:
		res = Result{Exit: true}
	case intent.KindLaunchApp:
		res.Text, err = x.LaunchApp(ctx, a.Arg)
	case intent.KindOpenSite:
		res.Text, err = x.OpenSite(ctx, a.Arg)
	case intent.KindSearch:
		res.Text, err = x.Search(ctx, a.Arg)
	case intent.KindTellTime:
		res.Text = x.TellTime()
	case intent.KindTellDate:
		res.Text = x.TellDate()
	case intent.KindMakeNote:
		res.Text, err = x.MakeNote(a.Arg)
	case intent.KindOpenFolder:
		res.Text, err = x.OpenFolder(ctx, a.Arg)
	default:
		res.Text = Unrecognized
	}

	x.metrics.RecordAction(ctx, a.Kind.String(), time.Since(start).Seconds(), err)
	if err != nil {
		span.RecordError(err)
		observe.Logger(ctx).Warn("action failed", "action", a.String(), "error", err)
	}
	return res
}

// LaunchApp starts the application best matching name. The error, if any,
// is already phrased into the reply.
func (x *Executor) LaunchApp(ctx context.Context, name string) (string, error) {
	app, match := x.apps.Resolve(ctx, name)
	if match == appindex.MatchNone {
		return "Could not find " + name, nil
	}
	observe.Logger(ctx).Debug("app resolved", "query", name, "app", app.Name, "match", match.String())
	if err := x.launcher.Launch(ctx, app); err != nil {
		return "Failed to launch " + name, err
	}
	return "Launching " + displayName(app), nil
}

// OpenSite opens an alias or a host in the browser. A bare folder name opens
// the folder, and a dotless word naming an installed application launches
// it.
func (x *Executor) OpenSite(ctx context.Context, target string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(target))
	if _, ok := folderDirs[key]; ok {
		return x.OpenFolder(ctx, key)
	}
	u, alias := SiteURLs[key]
	if !alias && !strings.ContainsAny(key, ".:/") {
		if app, match := x.apps.Resolve(ctx, key); match != appindex.MatchNone {
			if err := x.launcher.Launch(ctx, app); err != nil {
				return "Failed to launch " + target, err
			}
			return "Launching " + displayName(app), nil
		}
	}
	if !alias {
		u = target
		if !strings.HasPrefix(u, "http") {
			u = "https://" + u
		}
	}
	if err := x.opener.Open(ctx, u); err != nil {
		return "Failed to open " + u, err
	}
	return "Opening " + u, nil
}

// Search opens a Google search for query.
func (x *Executor) Search(ctx context.Context, query string) (string, error) {
	u := "https://www.google.com/search?q=" + url.QueryEscape(query)
	if err := x.opener.Open(ctx, u); err != nil {
		return "Failed to open " + u, err
	}
	return "Searching Google for " + query, nil
}

// TellTime reports the local time on a 12-hour clock.
func (x *Executor) TellTime() string {
	return "The current time is " + x.now().Format("03:04 PM")
}

// TellDate reports today's date.
func (x *Executor) TellDate() string {
	return "Today's date is " + x.now().Format("Monday, January 02, 2006")
}

// MakeNote appends a timestamped entry to the note file.
func (x *Executor) MakeNote(text string) (string, error) {
	size, err := x.notes.Append(x.now(), text)
	if err != nil {
		return "I couldn't save your note.", err
	}
	slog.Debug("note saved", "path", x.notesPath, "size", humanize.Bytes(uint64(size)))
	return "Saved your note.", nil
}

// OpenFolder opens one of the well-known folders in the home directory.
func (x *Executor) OpenFolder(ctx context.Context, name string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	sub, ok := folderDirs[key]
	if !ok {
		return fmt.Sprintf("I couldn't find the %s folder.", name), nil
	}
	dir := filepath.Join(x.home, sub)
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return fmt.Sprintf("I couldn't find the %s folder.", key), nil
	}
	if err := x.opener.Open(ctx, dir); err != nil {
		return fmt.Sprintf("I couldn't open the %s folder.", key), err
	}
	return fmt.Sprintf("Opening %s folder.", key), nil
}

func displayName(app appindex.Entry) string {
	if app.DisplayName != "" {
		return app.DisplayName
	}
	return app.Name
}
