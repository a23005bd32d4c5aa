package speaker_test

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/internal/speaker"
	"github.com/MrWong99/jarvis/pkg/speech"
	"github.com/MrWong99/jarvis/pkg/speech/mock"
)

func shutdown(t *testing.T, q *speaker.Queue) {
	t.Helper()
	if err := q.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestSpeak_EmptyTextIsIgnored(t *testing.T) {
	t.Parallel()

	q := speaker.New(&mock.Backend{KindValue: speech.KindPrimary})
	if err := q.Speak(""); err != nil {
		t.Fatalf("Speak(\"\") = %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d, want 0", q.Len())
	}
	if q.State() != speaker.StateRunning {
		t.Errorf("State = %v, want running", q.State())
	}
}

func TestQueue_SpeaksInOrderAndDrainsOnShutdown(t *testing.T) {
	t.Parallel()

	b := &mock.Backend{KindValue: speech.KindPrimary}
	var out bytes.Buffer
	q := speaker.New(b, speaker.WithOutput(&out))
	if got := q.Engine(); got.Phase != speech.PhaseReady || got.Kind != speech.KindPrimary {
		t.Fatalf("Engine = %v, want ready(primary)", got)
	}
	q.Start()

	for _, s := range []string{"a", "b", "c", "Goodbye!"} {
		if err := q.Speak(s); err != nil {
			t.Fatalf("Speak(%q): %v", s, err)
		}
	}
	shutdown(t, q)

	if got, want := b.Spoken(), []string{"a", "b", "c", "Goodbye!"}; !slices.Equal(got, want) {
		t.Errorf("spoken = %v, want %v", got, want)
	}
	wantOut := "[Assistant]: a\n[Assistant]: b\n[Assistant]: c\n[Assistant]: Goodbye!\n"
	if out.String() != wantOut {
		t.Errorf("output = %q, want %q", out.String(), wantOut)
	}
	if b.Disposes() != 1 {
		t.Errorf("Dispose calls = %d, want 1", b.Disposes())
	}
	if q.State() != speaker.StateStopped {
		t.Errorf("State = %v, want stopped", q.State())
	}
	if q.Engine().Phase != speech.PhaseUnavailable {
		t.Errorf("Engine = %v, want unavailable", q.Engine())
	}
}

func TestStop_BeforeWorkerStartsDiscardsEverything(t *testing.T) {
	t.Parallel()

	b := &mock.Backend{KindValue: speech.KindPrimary}
	q := speaker.New(b, speaker.WithOutput(&bytes.Buffer{}))
	for _, s := range []string{"a", "b", "c"} {
		_ = q.Speak(s)
	}
	if q.Len() != 3 {
		t.Fatalf("Len = %d, want 3", q.Len())
	}

	q.Stop()
	if q.Len() != 0 {
		t.Errorf("Len after Stop = %d, want 0", q.Len())
	}
	q.Start()
	shutdown(t, q)

	if got := b.Spoken(); len(got) != 0 {
		t.Errorf("spoken = %v, want nothing", got)
	}
}

func TestStop_InterruptsCurrentUtterance(t *testing.T) {
	t.Parallel()

	b := &mock.Backend{KindValue: speech.KindPrimary, Busy: true, Started: make(chan string, 4)}
	q := speaker.New(b,
		speaker.WithOutput(&bytes.Buffer{}),
		speaker.WithPollSlice(10*time.Millisecond),
		speaker.WithWaitCap(func(string) time.Duration { return time.Hour }),
	)
	q.Start()

	_ = q.Speak("a very long answer")
	_ = q.Speak("never spoken")
	<-b.Started

	q.Stop()
	if q.State() != speaker.StateRunning {
		t.Fatalf("State after Stop = %v, want running", q.State())
	}

	// The worker keeps going after Stop.
	b.SetBusy(false)
	_ = q.Speak("after stop")
	select {
	case got := <-b.Started:
		if got != "after stop" {
			t.Fatalf("next utterance = %q, want %q", got, "after stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not continue after Stop")
	}
	shutdown(t, q)

	if got, want := b.Spoken(), []string{"a very long answer", "after stop"}; !slices.Equal(got, want) {
		t.Errorf("spoken = %v, want %v", got, want)
	}
	if b.Purges() < 1 {
		t.Error("backend was not purged")
	}
}

func TestQueue_WaitCapPurgesStuckEngine(t *testing.T) {
	t.Parallel()

	b := &mock.Backend{KindValue: speech.KindPrimary, Busy: true}
	q := speaker.New(b,
		speaker.WithOutput(&bytes.Buffer{}),
		speaker.WithPollSlice(5*time.Millisecond),
		speaker.WithWaitCap(func(string) time.Duration { return 20 * time.Millisecond }),
	)
	q.Start()
	_ = q.Speak("one")
	_ = q.Speak("two")
	shutdown(t, q)

	if got := b.Spoken(); len(got) != 2 {
		t.Errorf("spoken = %v, want both utterances", got)
	}
	if b.Purges() != 2 {
		t.Errorf("Purge calls = %d, want 2", b.Purges())
	}
}

func TestShutdown_IsBounded(t *testing.T) {
	t.Parallel()

	b := &mock.Backend{KindValue: speech.KindPrimary, Busy: true, Started: make(chan string, 1)}
	q := speaker.New(b,
		speaker.WithOutput(&bytes.Buffer{}),
		speaker.WithPollSlice(10*time.Millisecond),
		speaker.WithShutdownTimeout(50*time.Millisecond),
		speaker.WithWaitCap(func(string) time.Duration { return time.Hour }),
	)
	q.Start()
	_ = q.Speak("endless")
	<-b.Started

	start := time.Now()
	err := q.Shutdown(context.Background())
	if !errors.Is(err, speaker.ErrShutdownTimeout) {
		t.Fatalf("Shutdown = %v, want ErrShutdownTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Shutdown took %v", elapsed)
	}
	if err := q.Speak("too late"); !errors.Is(err, speaker.ErrClosed) {
		t.Errorf("Speak after Shutdown = %v, want ErrClosed", err)
	}

	select {
	case <-q.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after shutdown timeout")
	}
	if q.State() != speaker.StateStopped {
		t.Errorf("State = %v, want stopped", q.State())
	}
	if got := b.Spoken(); !slices.Equal(got, []string{"endless"}) {
		t.Errorf("spoken = %v", got)
	}
}

func TestQueue_FailuresNeverSkipLaterRequests(t *testing.T) {
	t.Parallel()

	started := make(chan string, 16)
	b := &mock.Backend{KindValue: speech.KindSecondary, SpeakErr: errors.New("server down"), Started: started}
	var out bytes.Buffer
	q := speaker.New(b, speaker.WithOutput(&out))
	q.Start()

	failing := []string{"1", "2", "3", "4", "5", "6"}
	for _, s := range failing {
		if err := q.Speak(s); err != nil {
			t.Fatalf("Speak(%q): %v", s, err)
		}
	}
	for range failing {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatalf("engine received only %v", b.Spoken())
		}
	}

	b.SetSpeakErr(nil)
	if err := q.Speak("good"); err != nil {
		t.Fatalf("Speak(good): %v", err)
	}
	shutdown(t, q)

	want := append(slices.Clone(failing), "good")
	if got := b.Spoken(); !slices.Equal(got, want) {
		t.Errorf("engine received %v, want %v", got, want)
	}
	if n := strings.Count(out.String(), "[Assistant]: "); n != len(want) {
		t.Errorf("printed %d lines, want %d", n, len(want))
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	for s, want := range map[speaker.State]string{
		speaker.StateRunning:  "running",
		speaker.StateDraining: "draining",
		speaker.StateStopped:  "stopped",
		speaker.State(42):     "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
