package translator

import (
	"context"
	"sync"
	"time"

	"tolk/language"
	"tolk/netclient"
)

// Fake answers "[CODE] text" unless Responses has an entry for the
// language. Delays let tests reorder concurrent responses.
type Fake struct {
	Responses map[language.Target]string
	Delays    map[language.Target]time.Duration
	Err       error

	mu      sync.Mutex
	prompts []string
}

func NewFake() *Fake { return &Fake{} }

func (f *Fake) Name() string  { return "fake" }
func (f *Fake) Model() string { return "fake-1" }

func (f *Fake) Translate(ctx context.Context, text string, target language.Target, credential string) (*Result, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, Prompt(text, target))
	f.mu.Unlock()

	if credential == "" {
		return nil, netclient.MissingCredential("fake")
	}
	if d := f.Delays[target]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, netclient.Network("fake", ctx.Err())
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	out, ok := f.Responses[target]
	if !ok {
		out = "[" + target.Code + "] " + text
	}
	return &Result{Text: out, Language: target, Model: f.Model()}, nil
}

// Prompts returns every instruction sent so far.
func (f *Fake) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}
