package speech

import (
	"context"
	"sync"
	"time"
)

// FakeEngine "speaks" for Duration per utterance and records what it
// was asked to say.
type FakeEngine struct {
	Duration  time.Duration
	Err       error
	VoiceList []Voice

	mu     sync.Mutex
	spoken []Utterance
}

type Utterance struct {
	Text        string
	Voice       Voice
	Interrupted bool
}

func (f *FakeEngine) Name() string { return "fake" }

func (f *FakeEngine) Voices(context.Context) ([]Voice, error) {
	return f.VoiceList, nil
}

func (f *FakeEngine) Speak(ctx context.Context, text string, voice Voice) error {
	u := Utterance{Text: text, Voice: voice}
	var err error
	select {
	case <-time.After(f.Duration):
		err = f.Err
	case <-ctx.Done():
		u.Interrupted = true
		err = ctx.Err()
	}
	f.mu.Lock()
	f.spoken = append(f.spoken, u)
	f.mu.Unlock()
	return err
}

func (f *FakeEngine) Spoken() []Utterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Utterance(nil), f.spoken...)
}
