package transcriber

import (
	"context"
	"sync"
	"time"

	"tolk/audio"
	"tolk/netclient"
)

// Fake returns scripted results. With several texts queued, each call
// consumes the next one; the last one repeats.
type Fake struct {
	Delay time.Duration
	Err   error

	mu    sync.Mutex
	texts []string
	calls int
	creds []string
}

func NewFake(texts ...string) *Fake {
	return &Fake{texts: texts}
}

func (f *Fake) Name() string { return "fake" }
func (f *Fake) Warm()        {}

func (f *Fake) Transcribe(ctx context.Context, asset *audio.Asset, credential string) (*Result, error) {
	f.mu.Lock()
	f.calls++
	f.creds = append(f.creds, credential)
	text := ""
	if len(f.texts) > 0 {
		text = f.texts[0]
		if len(f.texts) > 1 {
			f.texts = f.texts[1:]
		}
	}
	err := f.Err
	f.mu.Unlock()

	if credential == "" {
		return nil, netclient.MissingCredential("fake")
	}
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, netclient.Network("fake", ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}
	return finish(&Result{Text: text, Metrics: &netclient.NetworkMetrics{Total: 10 * time.Millisecond}}), nil
}

func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Credentials lists the credential passed to each call, in order.
func (f *Fake) Credentials() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.creds...)
}
