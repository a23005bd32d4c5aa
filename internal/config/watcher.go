package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher keeps a validated copy of a config file and reports changes to it.
//
// Changes are noticed through fsnotify events on the file's directory, which
// survives editors that save by renaming a temp file over the original. A
// slow mtime poll runs alongside for filesystems that do not deliver events.
// Content is hashed so a touch without edits is not reported.
type Watcher struct {
	path     string
	interval time.Duration
	debounce time.Duration
	onChange func(old, new *Config)

	mu      sync.Mutex
	current *Config
	seen    fileState

	fsw      *fsnotify.Watcher
	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// fileState identifies one version of the file.
type fileState struct {
	mod time.Time
	sum [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the fallback polling interval. Default 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithDebounce sets how long the watcher waits after the last file event
// before reloading. Default 100ms.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher loads path, which must hold a valid config, and starts watching
// it. onChange may be nil; it runs on the watcher goroutine with the previous
// and the new config.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher path: %w", err)
	}
	w := &Watcher{
		path:     abs,
		interval: 5 * time.Second,
		debounce: 100 * time.Millisecond,
		onChange: onChange,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, st, err := readState(w.path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.seen = cfg, st

	if fsw, err := fsnotify.NewWatcher(); err != nil {
		slog.Warn("config watcher: file events unavailable, polling only", "err", err)
	} else if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		slog.Warn("config watcher: cannot watch directory, polling only", "dir", filepath.Dir(w.path), "err", err)
		_ = fsw.Close()
	} else {
		w.fsw = fsw
	}

	go w.run()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends watching and waits for the watcher goroutine. Safe to call more
// than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		<-w.stopped
		if w.fsw != nil {
			_ = w.fsw.Close()
		}
	})
}

func (w *Watcher) run() {
	defer close(w.stopped)

	poll := time.NewTicker(w.interval)
	defer poll.Stop()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
		settle *time.Timer
		fire   <-chan time.Time
	)
	if w.fsw != nil {
		events, errs = w.fsw.Events, w.fsw.Errors
	}
	defer func() {
		if settle != nil {
			settle.Stop()
		}
	}()

	for {
		select {
		case <-w.stop:
			return

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if settle == nil {
				settle = time.NewTimer(w.debounce)
			} else {
				settle.Reset(w.debounce)
			}
			fire = settle.C

		case <-fire:
			fire = nil
			w.reload(true)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Debug("config watcher: event error", "err", err)

		case <-poll.C:
			w.reload(false)
		}
	}
}

// reload re-reads the file. Without force it returns early while the mtime
// is unchanged. An invalid file keeps the previous config.
func (w *Watcher) reload(force bool) {
	if !force {
		info, err := os.Stat(w.path)
		if err != nil {
			slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
			return
		}
		w.mu.Lock()
		same := info.ModTime().Equal(w.seen.mod)
		w.mu.Unlock()
		if same {
			return
		}
	}

	cfg, st, err := readState(w.path)
	if err != nil {
		slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if st.sum == w.seen.sum {
		w.seen.mod = st.mod
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current, w.seen = cfg, st
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

func readState(path string) (*Config, fileState, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fileState{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileState{}, err
	}
	cfg, err := parse(bytes.NewReader(data), true)
	if err != nil {
		return nil, fileState{}, err
	}
	return cfg, fileState{mod: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
