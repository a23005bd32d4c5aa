package appindex

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/MrWong99/jarvis/internal/observe"
)

const (
	defaultMissRebuildEvery = 30 * time.Second
	defaultWatchDebounce    = 2 * time.Second
)

// Option configures an [Index].
type Option func(*Index)

// WithListers adds non-directory sources to every build.
func WithListers(l ...Lister) Option {
	return func(ix *Index) { ix.listers = append(ix.listers, l...) }
}

// WithMissRebuildInterval sets the minimum time between rebuilds triggered
// by failed lookups. Default 30s.
func WithMissRebuildInterval(d time.Duration) Option {
	return func(ix *Index) {
		if d > 0 {
			ix.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithWatchDebounce sets how long Watch waits after the last file system
// event before rebuilding. Default 2s.
func WithWatchDebounce(d time.Duration) Option {
	return func(ix *Index) {
		if d > 0 {
			ix.debounce = d
		}
	}
}

// WithMetrics sets the metrics sink. Default [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(ix *Index) { ix.metrics = m }
}

// Index owns the current [Snapshot]. Lookups read the snapshot without
// locking; rebuilds are serialised and swap it atomically.
type Index struct {
	listers  []Lister
	limiter  *rate.Limiter
	debounce time.Duration
	metrics  *observe.Metrics

	buildMu sync.Mutex

	dirsMu      sync.Mutex
	dirs        []Dir
	dirsChanged chan struct{}

	snap  atomic.Pointer[Snapshot]
	stale atomic.Bool
}

// New creates an index over dirs. It is empty until the first rebuild.
func New(dirs []Dir, opts ...Option) *Index {
	ix := &Index{
		dirs:        slices.Clone(dirs),
		limiter:     rate.NewLimiter(rate.Every(defaultMissRebuildEvery), 1),
		debounce:    defaultWatchDebounce,
		dirsChanged: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(ix)
	}
	if ix.metrics == nil {
		ix.metrics = observe.DefaultMetrics()
	}
	return ix
}

// Rebuild scans all sources and replaces the current snapshot. Errors for
// individual files or listers are logged; only cancellation fails the call.
func (ix *Index) Rebuild(ctx context.Context) (*Snapshot, error) {
	ix.buildMu.Lock()
	defer ix.buildMu.Unlock()

	start := time.Now()
	snap, err := Build(ctx, ix.Dirs(), ix.listers...)
	if snap == nil {
		return nil, err
	}
	if err != nil {
		slog.Debug("app index built with errors", "error", err)
	}
	ix.snap.Store(snap)
	ix.stale.Store(false)
	ix.metrics.AppsIndexed.Record(ctx, int64(snap.Len()))
	slog.Info("app index built",
		"apps", humanize.Comma(int64(snap.Len())),
		"took", time.Since(start).Round(time.Millisecond),
	)
	return snap, nil
}

// Current returns the current snapshot, or an empty one before the first
// rebuild.
func (ix *Index) Current() *Snapshot {
	if s := ix.snap.Load(); s != nil {
		return s
	}
	return newSnapshot(nil, time.Time{})
}

// Ready reports whether a snapshot has been built.
func (ix *Index) Ready() bool { return ix.snap.Load() != nil }

// Resolve looks name up in the current snapshot. A stale or missing snapshot
// is rebuilt first. On a miss the index is rebuilt once, at most once per
// miss-rebuild interval, and the lookup repeated.
func (ix *Index) Resolve(ctx context.Context, name string) (Entry, Match) {
	if !ix.Ready() || ix.stale.Load() {
		if _, err := ix.Rebuild(ctx); err != nil {
			slog.Warn("app index rebuild failed", "error", err)
		}
	}
	if e, m := ix.Current().Lookup(name); m != MatchNone {
		return e, m
	}
	if !ix.limiter.Allow() {
		return Entry{}, MatchNone
	}
	slog.Debug("app not found, rebuilding index", "name", name)
	snap, err := ix.Rebuild(ctx)
	if err != nil {
		slog.Warn("app index rebuild failed", "error", err)
		return Entry{}, MatchNone
	}
	return snap.Lookup(name)
}

// Invalidate marks the snapshot stale so the next Resolve rebuilds it.
func (ix *Index) Invalidate() { ix.stale.Store(true) }

// Dirs returns the scanned directories.
func (ix *Index) Dirs() []Dir {
	ix.dirsMu.Lock()
	defer ix.dirsMu.Unlock()
	return slices.Clone(ix.dirs)
}

// SetDirs replaces the scanned directories and invalidates the snapshot.
// A running Watch picks up the new set.
func (ix *Index) SetDirs(dirs []Dir) {
	ix.dirsMu.Lock()
	ix.dirs = slices.Clone(dirs)
	ix.dirsMu.Unlock()
	ix.Invalidate()
	select {
	case ix.dirsChanged <- struct{}{}:
	default:
	}
}

// Refresh rebuilds the index every interval until ctx is done. A
// non-positive interval disables periodic rebuilds.
func (ix *Index) Refresh(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := ix.Rebuild(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("periodic app index rebuild failed", "error", err)
			}
		}
	}
}
