// Package speaker serialises spoken responses onto a single speech engine.
//
// A [Queue] is a FIFO of pending texts drained by one worker goroutine that
// owns the selected [speech.Backend]. Producers never block: [Queue.Speak]
// appends and signals. [Queue.Stop] discards everything not yet started and
// asks the worker to purge the current utterance; [Queue.Shutdown] lets the
// queue drain and disposes the engine, bounded by a timeout.
package speaker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/pkg/speech"
)

// Defaults for a [Queue].
const (
	DefaultPollSlice       = 150 * time.Millisecond
	DefaultShutdownTimeout = 3 * time.Second
)

var (
	// ErrClosed is returned by [Queue.Speak] once Shutdown has been called.
	ErrClosed = errors.New("speaker: queue closed")

	// ErrShutdownTimeout is returned by [Queue.Shutdown] when the worker did
	// not finish within the shutdown timeout.
	ErrShutdownTimeout = errors.New("speaker: shutdown timed out")
)

// State is the lifecycle state of a [Queue].
type State int

const (
	// StateRunning accepts new requests.
	StateRunning State = iota

	// StateDraining rejects new requests while the worker finishes the ones
	// queued before Shutdown.
	StateDraining

	// StateStopped means the worker has exited and the engine is disposed.
	StateStopped
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// request is one queue entry. The sentinel tells the worker to exit.
type request struct {
	text     string
	sentinel bool
}

// Option configures a [Queue].
type Option func(*Queue)

// WithOutput sets where "[Assistant]: ..." lines are printed. Default os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(q *Queue) { q.out = w }
}

// WithPollSlice sets how long each WaitUntilIdle call may block. Stop is
// honoured within one slice.
func WithPollSlice(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.pollSlice = d
		}
	}
}

// WithShutdownTimeout bounds [Queue.Shutdown].
func WithShutdownTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.shutdownTimeout = d
		}
	}
}

// WithWaitCap replaces [speech.UtteranceWait] as the per-utterance wait limit.
func WithWaitCap(f func(text string) time.Duration) Option {
	return func(q *Queue) {
		if f != nil {
			q.waitCap = f
		}
	}
}

// WithMetrics sets the metrics sink. Default [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// Queue is a single-consumer speech queue. All methods are safe for
// concurrent use.
type Queue struct {
	backend         speech.Backend
	out             io.Writer
	pollSlice       time.Duration
	shutdownTimeout time.Duration
	waitCap         func(string) time.Duration
	metrics         *observe.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	notify chan struct{}
	done   chan struct{}

	startOnce sync.Once

	mu       sync.Mutex
	pending  []request
	state    State
	engine   speech.EngineState
	inflight chan struct{} // closed by Stop to abort the current utterance
}

// New creates a queue driving backend, which must already be initialised.
// Requests may be queued immediately; nothing is spoken until [Queue.Start].
func New(backend speech.Backend, opts ...Option) *Queue {
	q := &Queue{
		backend:         backend,
		out:             os.Stdout,
		pollSlice:       DefaultPollSlice,
		shutdownTimeout: DefaultShutdownTimeout,
		waitCap:         speech.UtteranceWait,
		notify:          make(chan struct{}, 1),
		done:            make(chan struct{}),
		engine:          speech.EngineState{Phase: speech.PhaseReady, Kind: backend.Kind()},
	}
	for _, o := range opts {
		o(q)
	}
	if q.metrics == nil {
		q.metrics = observe.DefaultMetrics()
	}
	q.ctx, q.cancel = context.WithCancel(context.Background())
	return q
}

// Start launches the worker goroutine. Subsequent calls are no-ops.
func (q *Queue) Start() {
	q.startOnce.Do(func() {
		go q.run()
	})
}

// Speak enqueues text. Empty text is ignored. After Shutdown it returns
// [ErrClosed] and drops text.
func (q *Queue) Speak(text string) error {
	if text == "" {
		return nil
	}
	q.mu.Lock()
	if q.state != StateRunning {
		q.mu.Unlock()
		return ErrClosed
	}
	q.pending = append(q.pending, request{text: text})
	q.mu.Unlock()

	q.metrics.SpeechQueueDepth.Add(q.ctx, 1)
	q.signal()
	return nil
}

// Stop discards every request that has not started and interrupts the one
// being spoken. The worker keeps running.
func (q *Queue) Stop() {
	q.mu.Lock()
	kept := q.pending[:0]
	dropped := 0
	for _, r := range q.pending {
		if r.sentinel {
			kept = append(kept, r)
			continue
		}
		dropped++
	}
	clear(q.pending[len(kept):])
	q.pending = kept
	if q.inflight != nil {
		close(q.inflight)
		q.inflight = nil
	}
	q.mu.Unlock()

	q.metrics.SpeechPurged.Add(q.ctx, 1)
	if dropped > 0 {
		q.metrics.SpeechQueueDepth.Add(q.ctx, int64(-dropped))
	}
	slog.Debug("speech queue purged", "dropped", dropped)
}

// Shutdown stops accepting requests and waits for the worker to speak what
// is already queued, dispose the engine and exit. Queued replies are drained
// rather than dropped so that a farewell queued just before Shutdown is
// still heard. It gives up after the
// shutdown timeout or when ctx ends, aborts the worker and returns
// [ErrShutdownTimeout].
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.state == StateRunning {
		q.state = StateDraining
		q.pending = append(q.pending, request{sentinel: true})
	}
	q.mu.Unlock()
	q.signal()

	timer := time.NewTimer(q.shutdownTimeout)
	defer timer.Stop()
	select {
	case <-q.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}
	q.cancel()
	slog.Warn("speech worker did not stop in time", "timeout", q.shutdownTimeout, "pending", q.Len())
	return ErrShutdownTimeout
}

// State returns the queue state.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Engine returns the state of the speech engine.
func (q *Queue) Engine() speech.EngineState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.engine
}

// Len returns the number of queued requests that have not started.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, r := range q.pending {
		if !r.sentinel {
			n++
		}
	}
	return n
}

// Done is closed when the worker has exited.
func (q *Queue) Done() <-chan struct{} { return q.done }

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	defer close(q.done)
	defer q.finish()

	for {
		req, abort, ok := q.next()
		if !ok || req.sentinel {
			return
		}
		q.handle(req.text, abort)
	}
}

// next blocks until a request is available or the worker is cancelled. For
// a regular request it also returns the channel Stop closes to abort it.
func (q *Queue) next() (request, <-chan struct{}, bool) {
	for {
		if q.ctx.Err() != nil {
			return request{}, nil, false
		}
		q.mu.Lock()
		if len(q.pending) > 0 {
			req := q.pending[0]
			q.pending[0] = request{}
			q.pending = q.pending[1:]
			var abort chan struct{}
			if !req.sentinel {
				abort = make(chan struct{})
				q.inflight = abort
			}
			q.mu.Unlock()
			if !req.sentinel {
				q.metrics.SpeechQueueDepth.Add(q.ctx, -1)
			}
			return req, abort, true
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-q.ctx.Done():
		}
	}
}

func (q *Queue) handle(text string, abort <-chan struct{}) {
	engine := q.backend.Kind().String()
	select {
	case <-abort:
		q.metrics.RecordSpeech(q.ctx, engine, observe.SpeechPurged)
		return
	default:
	}

	fmt.Fprintf(q.out, "[Assistant]: %s\n", text)

	// A failure only costs this utterance; the next one is tried as usual.
	purged, err := q.speakOne(text, abort)
	switch {
	case err == nil && purged:
		q.metrics.RecordSpeech(q.ctx, engine, observe.SpeechPurged)
	case err == nil:
		q.metrics.RecordSpeech(q.ctx, engine, observe.SpeechSpoken)
	default:
		slog.Warn("speech failed", "engine", engine, "error", err)
		q.metrics.RecordSpeech(q.ctx, engine, observe.SpeechFailed)
	}

	q.mu.Lock()
	if q.inflight == abort {
		q.inflight = nil
	}
	q.mu.Unlock()
}

// speakOne speaks text and waits for the engine to go idle, polling in
// slices so that an abort is noticed promptly. It reports whether the
// utterance was purged. Reaching the wait cap purges the engine but is not
// an error.
func (q *Queue) speakOne(text string, abort <-chan struct{}) (bool, error) {
	start := time.Now()
	if err := q.backend.SpeakText(q.ctx, text); err != nil {
		return false, fmt.Errorf("speaker: speak: %w", err)
	}

	deadline := start.Add(q.waitCap(text))
	for {
		select {
		case <-abort:
			q.purge("stopped")
			return true, nil
		case <-q.ctx.Done():
			q.purge("shutdown")
			return true, nil
		default:
		}

		slice := min(q.pollSlice, time.Until(deadline))
		if slice <= 0 {
			q.purge("wait cap reached")
			return false, nil
		}
		sliceCtx, cancel := context.WithTimeout(q.ctx, slice)
		err := q.backend.WaitUntilIdle(sliceCtx)
		timedOut := sliceCtx.Err() != nil
		cancel()

		switch {
		case err == nil:
			q.metrics.SpeechDuration.Record(q.ctx, time.Since(start).Seconds())
			return false, nil
		case timedOut && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)):
			continue
		default:
			return false, fmt.Errorf("speaker: wait: %w", err)
		}
	}
}

func (q *Queue) purge(reason string) {
	if err := q.backend.Purge(); err != nil {
		slog.Debug("speech purge failed", "reason", reason, "error", err)
		return
	}
	slog.Debug("speech purged", "reason", reason)
}

func (q *Queue) finish() {
	if err := q.backend.Dispose(); err != nil {
		slog.Warn("speech engine dispose failed", "error", err)
	}
	q.mu.Lock()
	dropped := 0
	for _, r := range q.pending {
		if !r.sentinel {
			dropped++
		}
	}
	q.pending = nil
	q.state = StateStopped
	q.engine = speech.EngineState{Phase: speech.PhaseUnavailable}
	q.mu.Unlock()
	if dropped > 0 {
		q.metrics.SpeechQueueDepth.Add(context.Background(), int64(-dropped))
	}
	slog.Debug("speech worker stopped", "dropped", dropped)
}
