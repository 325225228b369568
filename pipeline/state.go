// Package pipeline drives record → transcribe → translate → speak as an
// explicit state machine. Every transition takes the current State and
// returns the next one plus an optional Task; a Task's completion Event is
// folded back in with Apply. Transitions and Apply must run on a single
// goroutine (the bubbletea Update loop or a Runner).
package pipeline

import (
	"context"

	"tolk/audio"
	"tolk/language"
	"tolk/transcriber"
	"tolk/translator"
)

type State struct {
	Transcript  string
	Translation string
	// Language produced Translation. Zero until the first translation.
	Language language.Target

	Recording    bool
	Transcribing bool
	Translating  bool
	Playing      bool
	PlaybackID   string

	// Notice is a one-shot message for the user, cleared by the next action.
	Notice string
	// Err is the last failure, for the status line. Cleared like Notice.
	Err error

	// gen counts resets. In-flight counters only track tasks started in
	// the current generation.
	gen            int
	transcriptions int
	translations   int
}

// Idle reports whether nothing is in flight.
func (s State) Idle() bool {
	return !s.Recording && !s.Transcribing && !s.Translating && !s.Playing
}

func (s *State) clearNotice() {
	s.Notice = ""
	s.Err = nil
}

// Task is deferred work started by a transition. It runs off the event
// loop and reports exactly one Event, or nil when there is nothing to
// fold back.
type Task func(ctx context.Context) Event

type Event interface{ pipelineEvent() }

type TranscriptionDone struct {
	Asset  *audio.Asset // nil when the recording was too short to upload
	Result *transcriber.Result
	Err    error
	gen    int
}

type TranslationDone struct {
	Language language.Target
	Result   *translator.Result
	Err      error
	gen      int
}

type PlaybackDone struct {
	ID      string
	Stopped bool
	Err     error
}

func (TranscriptionDone) pipelineEvent() {}
func (TranslationDone) pipelineEvent()   {}
func (PlaybackDone) pipelineEvent()      {}

// Transition is any state change; the Runner accepts these.
type Transition func(State) (State, Task)
