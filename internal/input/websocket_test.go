package input

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// newTranscriptServer accepts one websocket client and sends msgs, then
// holds the connection open until the test ends.
func newTranscriptServer(t *testing.T, msgs ...Message) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		for _, m := range msgs {
			data, _ := json.Marshal(m)
			if err := conn.Write(r.Context(), websocket.MessageText, data); err != nil {
				return
			}
		}
		// Block until the client goes away.
		_, _, _ = conn.Read(r.Context())
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestNewWebSocket_EmptyURL(t *testing.T) {
	t.Parallel()
	if _, err := NewWebSocket(""); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestWebSocket_DeliversFinalTranscripts(t *testing.T) {
	t.Parallel()

	url := newTranscriptServer(t,
		Message{Text: "open fire", IsFinal: false},
		Message{Text: "   ", IsFinal: true},
		Message{Text: "open firefox", IsFinal: true},
	)
	var echo bytes.Buffer
	w, err := NewWebSocket(url, WithListenTimeout(2*time.Second), WithEcho(&echo))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	got, err := w.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if got != "open firefox" {
		t.Errorf("Capture = %q, want %q", got, "open firefox")
	}
	if !strings.Contains(echo.String(), "You said: open firefox") {
		t.Errorf("echo = %q", echo.String())
	}
}

func TestWebSocket_ListenTimeoutReturnsEmpty(t *testing.T) {
	t.Parallel()

	url := newTranscriptServer(t)
	w, err := NewWebSocket(url, WithListenTimeout(100*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	got, err := w.Capture(context.Background())
	if err != nil || got != "" {
		t.Fatalf("Capture = %q, %v; want empty, nil", got, err)
	}
}

func TestWebSocket_ErrorFrames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{name: "unintelligible", msg: Message{Type: "error", Code: "unintelligible"}, want: PhraseNotUnderstood},
		{name: "service failure", msg: Message{Type: "error", Error: "upstream 503"}, want: PhraseServiceError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			url := newTranscriptServer(t, tt.msg)
			var (
				mu      sync.Mutex
				phrases []string
			)
			w, err := NewWebSocket(url,
				WithListenTimeout(2*time.Second),
				WithErrorHandler(func(p string) {
					mu.Lock()
					phrases = append(phrases, p)
					mu.Unlock()
				}),
			)
			if err != nil {
				t.Fatal(err)
			}
			defer w.Close()

			got, err := w.Capture(context.Background())
			if err != nil || got != "" {
				t.Fatalf("Capture = %q, %v; want empty, nil", got, err)
			}
			mu.Lock()
			defer mu.Unlock()
			if len(phrases) != 1 || phrases[0] != tt.want {
				t.Errorf("phrases = %v, want [%q]", phrases, tt.want)
			}
		})
	}
}

func TestWebSocket_UnreachableServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	w, err := NewWebSocket(url, WithListenTimeout(100*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	got, err := w.Capture(context.Background())
	if err != nil || got != "" {
		t.Fatalf("Capture = %q, %v; want empty, nil", got, err)
	}
	w.mu.Lock()
	next := w.nextDial
	w.mu.Unlock()
	if next.IsZero() {
		t.Error("failed dial must schedule a back-off before the next attempt")
	}
}

func TestWebSocket_ClosedSource(t *testing.T) {
	t.Parallel()

	w, err := NewWebSocket("ws://127.0.0.1:1")
	if err != nil {
		t.Fatal(err)
	}
	_ = w.Close()
	if _, err := w.Capture(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}
