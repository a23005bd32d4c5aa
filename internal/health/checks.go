package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/jarvis/internal/speaker"
	"github.com/MrWong99/jarvis/pkg/speech"
)

// SpeechQueue is the part of [speaker.Queue] the speech check reads.
type SpeechQueue interface {
	State() speaker.State
	Engine() speech.EngineState
}

// AppIndex is the part of the application index the apps check reads.
type AppIndex interface {
	Ready() bool
}

// Speech reports ready while the speech queue accepts requests. A queue
// running on the silent engine is ready; it only degrades output.
func Speech(q SpeechQueue) Checker {
	return Checker{
		Name: "speech",
		Check: func(context.Context) error {
			if st := q.State(); st != speaker.StateRunning {
				return fmt.Errorf("speech queue is %s", st)
			}
			if q.Engine().Phase == speech.PhaseUnavailable {
				return errors.New("speech engine unavailable")
			}
			return nil
		},
	}
}

// Apps reports ready once the first application index has been built.
func Apps(ix AppIndex) Checker {
	return Checker{
		Name: "apps",
		Check: func(context.Context) error {
			if !ix.Ready() {
				return errors.New("application index not built yet")
			}
			return nil
		},
	}
}
