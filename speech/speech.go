// Package speech speaks the translation aloud through a pluggable engine
// and keeps at most one playback session alive.
package speech

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"tolk/language"
)

var ErrEmptyText = errors.New("nothing to speak")

type Voice struct {
	Name   string
	Locale string // BCP-47, e.g. ja-JP
}

func (v Voice) IsZero() bool { return v.Name == "" }

// Engine is a text-to-speech backend. Speak blocks until the utterance
// has finished or ctx is cancelled.
type Engine interface {
	Name() string
	Voices(ctx context.Context) ([]Voice, error)
	Speak(ctx context.Context, text string, voice Voice) error
}

func normLocale(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", "-"))
}

// MatchVoice picks the voice for locale: an exact locale match first,
// then the first voice of the same language. ok is false when neither
// exists and the engine default should be used.
func MatchVoice(voices []Voice, locale string) (Voice, bool) {
	want := normLocale(locale)
	for _, v := range voices {
		if normLocale(v.Locale) == want {
			return v, true
		}
	}
	lang, _, _ := strings.Cut(want, "-")
	for _, v := range voices {
		vlang, _, _ := strings.Cut(normLocale(v.Locale), "-")
		if vlang == lang {
			return v, true
		}
	}
	return Voice{}, false
}

// Playback is one utterance. Done closes when it finished, failed or was
// stopped.
type Playback struct {
	ID       string
	Language language.Target

	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
	stopped bool
	err     error
}

func (p *Playback) Done() <-chan struct{} { return p.done }

// Err is the engine error, nil when the playback completed or was stopped.
// Only meaningful after Done.
func (p *Playback) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Playback) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// Wait blocks until the playback ends or ctx is done.
func (p *Playback) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Playback) stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.cancel()
}

// Controller owns the output. A new Speak interrupts the current one.
type Controller struct {
	engine Engine

	mu      sync.Mutex
	current *Playback
	voices  []Voice
	loaded  bool
	onEvent func(id, event string)
}

func NewController(engine Engine) *Controller {
	return &Controller{engine: engine}
}

func (c *Controller) Engine() Engine { return c.engine }

// OnEvent registers a hook for playback transitions: start, done,
// stopped, error.
func (c *Controller) OnEvent(fn func(id, event string)) {
	c.mu.Lock()
	c.onEvent = fn
	c.mu.Unlock()
}

func (c *Controller) emit(id, event string) {
	c.mu.Lock()
	fn := c.onEvent
	c.mu.Unlock()
	if fn != nil {
		fn(id, event)
	}
}

func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Speak starts speaking text with the voice for lang, interrupting any
// playback in progress.
func (c *Controller) Speak(text string, lang language.Target) (*Playback, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Playback{
		ID:       uuid.NewString(),
		Language: lang,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	c.mu.Lock()
	prev := c.current
	c.current = p
	c.mu.Unlock()

	if prev != nil {
		prev.stop()
	}
	go c.run(ctx, p, prev, text)
	return p, nil
}

func (c *Controller) run(ctx context.Context, p, prev *Playback, text string) {
	defer p.cancel()
	if prev != nil {
		<-prev.done
	}

	var err error
	if ctx.Err() == nil {
		c.emit(p.ID, "start")
		err = c.engine.Speak(ctx, text, c.voiceFor(ctx, p.Language))
	}

	p.mu.Lock()
	stopped := p.stopped
	if stopped {
		err = nil
	}
	p.err = err
	p.mu.Unlock()

	c.mu.Lock()
	if c.current == p {
		c.current = nil
	}
	c.mu.Unlock()

	switch {
	case stopped:
		c.emit(p.ID, "stopped")
	case err != nil:
		c.emit(p.ID, "error")
	default:
		c.emit(p.ID, "done")
	}
	close(p.done)
}

// voiceFor resolves the voice for lang from the engine's voice list,
// fetched once. A failed lookup falls back to the engine default and is
// retried on the next playback.
func (c *Controller) voiceFor(ctx context.Context, lang language.Target) Voice {
	c.mu.Lock()
	voices, loaded := c.voices, c.loaded
	c.mu.Unlock()

	if !loaded {
		vs, err := c.engine.Voices(ctx)
		if err != nil {
			return Voice{Locale: lang.Locale}
		}
		c.mu.Lock()
		c.voices, c.loaded = vs, true
		c.mu.Unlock()
		voices = vs
	}
	if v, ok := MatchVoice(voices, lang.Locale); ok {
		return v
	}
	return Voice{Locale: lang.Locale}
}

// Stop cancels the current playback, if any. Safe to call repeatedly.
func (c *Controller) Stop() {
	c.mu.Lock()
	p := c.current
	c.current = nil
	c.mu.Unlock()
	if p != nil {
		p.stop()
	}
}
