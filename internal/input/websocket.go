package input

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
)

// DefaultListenTimeout is how long Capture waits for a final transcript.
const DefaultListenTimeout = 5 * time.Second

// Message is one transcript event on the stream.
//
//	{"text": "open firefox", "is_final": true}
//	{"type": "error", "code": "unintelligible", "error": "no speech recognised"}
type Message struct {
	Type    string `json:"type,omitempty"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WebSocketOption configures a [WebSocket].
type WebSocketOption func(*WebSocket)

// WithListenTimeout sets how long Capture waits before returning "".
func WithListenTimeout(d time.Duration) WebSocketOption {
	return func(w *WebSocket) {
		if d > 0 {
			w.listenTimeout = d
		}
	}
}

// WithErrorHandler receives [PhraseNotUnderstood] or [PhraseServiceError]
// when the stream reports a recognition failure.
func WithErrorHandler(f func(phrase string)) WebSocketOption {
	return func(w *WebSocket) { w.onError = f }
}

// WithEcho prints "You said: ..." for every delivered transcript.
func WithEcho(out io.Writer) WebSocketOption {
	return func(w *WebSocket) { w.echo = out }
}

// WithReconnectBackOff replaces the reconnect policy.
func WithReconnectBackOff(b *backoff.ExponentialBackOff) WebSocketOption {
	return func(w *WebSocket) { w.backoff = b }
}

// WebSocket consumes final transcripts from a speech recognition service
// that pushes JSON [Message] frames. A dropped connection is re-dialled
// lazily on the next Capture, spaced by exponential back-off.
type WebSocket struct {
	url           string
	listenTimeout time.Duration
	onError       func(string)
	echo          io.Writer

	mu       sync.Mutex
	backoff  *backoff.ExponentialBackOff
	nextDial time.Time
	sess     *wsSession
	closed   bool
}

type wsSession struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
	finals chan string
	errs   chan Message
	done   chan struct{}
}

// NewWebSocket creates a source for the stream at url (ws:// or wss://).
// No connection is made until the first Capture.
func NewWebSocket(url string, opts ...WebSocketOption) (*WebSocket, error) {
	if url == "" {
		return nil, errors.New("input: websocket url must not be empty")
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second

	w := &WebSocket{url: url, listenTimeout: DefaultListenTimeout, backoff: bo}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Capture waits up to the listen timeout for the next final, non-empty
// transcript.
func (w *WebSocket) Capture(ctx context.Context) (string, error) {
	timer := time.NewTimer(w.listenTimeout)
	defer timer.Stop()

	s, err := w.session(ctx)
	if err != nil {
		if errors.Is(err, ErrClosed) || ctx.Err() != nil {
			return "", err
		}
		slog.Debug("transcript stream unavailable", "url", w.url, "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
			return "", nil
		}
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", nil
	case text := <-s.finals:
		if w.echo != nil {
			fmt.Fprintf(w.echo, "You said: %s\n", text)
		}
		return text, nil
	case msg := <-s.errs:
		w.reportError(msg)
		return "", nil
	case <-s.done:
		w.drop(s)
		slog.Warn("transcript stream disconnected", "url", w.url)
		return "", nil
	}
}

// Close closes the connection. Subsequent Capture calls return [ErrClosed].
func (w *WebSocket) Close() error {
	w.mu.Lock()
	s := w.sess
	w.sess = nil
	w.closed = true
	w.mu.Unlock()
	if s != nil {
		s.close()
	}
	return nil
}

// session returns the live session, dialling when there is none and the
// back-off delay has passed.
func (w *WebSocket) session(ctx context.Context) (*wsSession, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}
	if w.sess != nil {
		return w.sess, nil
	}
	if wait := time.Until(w.nextDial); wait > 0 {
		return nil, fmt.Errorf("input: next reconnect in %s", wait.Round(time.Millisecond))
	}

	dialCtx, cancel := context.WithTimeout(ctx, w.listenTimeout)
	conn, _, err := websocket.Dial(dialCtx, w.url, nil)
	cancel()
	if err != nil {
		w.nextDial = time.Now().Add(w.backoff.NextBackOff())
		return nil, fmt.Errorf("input: dial %s: %w", w.url, err)
	}
	w.backoff.Reset()
	w.nextDial = time.Time{}

	sctx, scancel := context.WithCancel(context.Background())
	s := &wsSession{
		conn:   conn,
		cancel: scancel,
		finals: make(chan string, 8),
		errs:   make(chan Message, 1),
		done:   make(chan struct{}),
	}
	go s.readLoop(sctx)
	w.sess = s
	slog.Info("transcript stream connected", "url", w.url)
	return s, nil
}

func (w *WebSocket) drop(s *wsSession) {
	w.mu.Lock()
	if w.sess == s {
		w.sess = nil
		w.nextDial = time.Now().Add(w.backoff.NextBackOff())
	}
	w.mu.Unlock()
	s.close()
}

func (w *WebSocket) reportError(msg Message) {
	phrase := PhraseServiceError
	if msg.Code == "unintelligible" {
		phrase = PhraseNotUnderstood
	}
	slog.Debug("speech recognition error", "code", msg.Code, "error", msg.Error)
	if w.onError != nil {
		w.onError(phrase)
	}
}

func (s *wsSession) readLoop(ctx context.Context) {
	defer close(s.done)
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				slog.Debug("transcript stream read failed", "error", err)
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("ignoring malformed transcript frame", "error", err)
			continue
		}

		if msg.Type == "error" || msg.Error != "" {
			select {
			case s.errs <- msg:
			default:
			}
			continue
		}
		text := strings.TrimSpace(msg.Text)
		if !msg.IsFinal || text == "" {
			continue
		}
		select {
		case s.finals <- text:
		case <-ctx.Done():
			return
		}
	}
}

func (s *wsSession) close() {
	s.cancel()
	_ = s.conn.Close(websocket.StatusNormalClosure, "closing")
}
