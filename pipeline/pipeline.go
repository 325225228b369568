package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"tolk/audio"
	"tolk/language"
	"tolk/log"
	"tolk/speech"
	"tolk/store"
	"tolk/transcriber"
	"tolk/translator"
)

// NoticeNothingToPlay is shown when playback is requested before there is
// a translation.
const NoticeNothingToPlay = "Nothing to play yet. Translate something first."

type Recorder interface {
	Start() error
	Stop() (*audio.Asset, error)
	Release()
	Acquire() error
}

type Speaker interface {
	Speak(text string, lang language.Target) (*speech.Playback, error)
	Stop()
}

type Cue int

const (
	CueStart Cue = iota
	CueStop
	CueError
)

type Options struct {
	Recorder    Recorder
	Transcriber transcriber.Transcriber
	Translator  translator.Translator
	Speaker     Speaker
	Store       store.Store
	// Cue, if set, is called for audible feedback.
	Cue func(Cue)
}

type Pipeline struct {
	rec     Recorder
	tr      transcriber.Transcriber
	tl      translator.Translator
	speaker Speaker
	store   store.Store
	cue     func(Cue)

	credential atomic.Pointer[string]
}

func New(o Options) *Pipeline {
	p := &Pipeline{
		rec:     o.Recorder,
		tr:      o.Transcriber,
		tl:      o.Translator,
		speaker: o.Speaker,
		store:   o.Store,
		cue:     o.Cue,
	}
	empty := ""
	p.credential.Store(&empty)
	return p
}

// Load restores the persisted transcript and credential.
func (p *Pipeline) Load() State {
	if cred, ok := p.store.Get(store.KeyCredential); ok {
		p.credential.Store(&cred)
	}
	transcript, _ := p.store.Get(store.KeyTranscript)
	return State{Transcript: transcript}
}

// Credential is the value the next outbound call will use.
func (p *Pipeline) Credential() string { return *p.credential.Load() }

func (p *Pipeline) emit(c Cue) {
	if p.cue != nil {
		p.cue(c)
	}
}

func (p *Pipeline) persistTranscript(s *State) {
	if err := p.store.Set(store.KeyTranscript, s.Transcript); err != nil {
		log.Failure("persist transcript", err)
		s.Err = err
	}
}

func (p *Pipeline) StartRecording(s State) (State, Task) {
	s.clearNotice()
	if s.Recording {
		return s, nil
	}
	if err := p.rec.Start(); err != nil {
		if errors.Is(err, audio.ErrBusy) {
			s.Recording = true
			return s, nil
		}
		log.Failure("start recording", err)
		p.emit(CueError)
		s.Err = err
		return s, nil
	}
	s.Recording = true
	p.emit(CueStart)

	tr := p.tr
	return s, func(context.Context) Event {
		tr.Warm()
		return nil
	}
}

// StopRecording ends capture and schedules transcription of what was
// captured. A recording too short to upload still produces a (textless)
// TranscriptionDone so the flag round-trips.
func (p *Pipeline) StopRecording(s State) (State, Task) {
	s.clearNotice()
	if !s.Recording {
		return s, nil
	}
	s.Recording = false
	asset, err := p.rec.Stop()
	p.emit(CueStop)
	if err != nil {
		log.Failure("stop recording", err)
		s.Err = err
		return s, nil
	}

	s.transcriptions++
	s.Transcribing = true

	tr, cred, gen := p.tr, p.Credential(), s.gen
	return s, func(ctx context.Context) Event {
		if asset == nil {
			return TranscriptionDone{gen: gen}
		}
		res, err := tr.Transcribe(ctx, asset, cred)
		return TranscriptionDone{Asset: asset, Result: res, Err: err, gen: gen}
	}
}

// ToggleRecording starts or stops depending on the current state.
func (p *Pipeline) ToggleRecording(s State) (State, Task) {
	if s.Recording {
		return p.StopRecording(s)
	}
	return p.StartRecording(s)
}

// Translate sends the current transcript, whatever it is, to the
// translator. Concurrent requests are not serialized.
func (p *Pipeline) Translate(s State, lang language.Target) (State, Task) {
	s.clearNotice()
	s.translations++
	s.Translating = true

	tl, text, cred, gen := p.tl, s.Transcript, p.Credential(), s.gen
	return s, func(ctx context.Context) Event {
		res, err := tl.Translate(ctx, text, lang, cred)
		return TranslationDone{Language: lang, Result: res, Err: err, gen: gen}
	}
}

// Play speaks the current translation, interrupting any playback.
func (p *Pipeline) Play(s State) (State, Task) {
	s.clearNotice()
	if strings.TrimSpace(s.Translation) == "" {
		s.Notice = NoticeNothingToPlay
		return s, nil
	}
	pb, err := p.speaker.Speak(s.Translation, s.Language)
	if err != nil {
		log.Failure("speak", err)
		s.Err = err
		return s, nil
	}
	s.Playing = true
	s.PlaybackID = pb.ID

	return s, func(ctx context.Context) Event {
		select {
		case <-pb.Done():
		case <-ctx.Done():
			return nil
		}
		return PlaybackDone{ID: pb.ID, Stopped: pb.Stopped(), Err: pb.Err()}
	}
}

func (p *Pipeline) StopPlayback(s State) (State, Task) {
	s.clearNotice()
	p.speaker.Stop()
	s.Playing = false
	s.PlaybackID = ""
	return s, nil
}

func (p *Pipeline) TogglePlayback(s State) (State, Task) {
	if s.Playing {
		return p.StopPlayback(s)
	}
	return p.Play(s)
}

// Reset clears the transcript and translation and drops every in-flight
// flag. Network calls already running are left alone; if they finish their
// text is applied like any other completion, but they no longer count
// toward Transcribing or Translating.
func (p *Pipeline) Reset(s State) (State, Task) {
	if s.Recording {
		if _, err := p.rec.Stop(); err != nil {
			log.Failure("stop recording", err)
		}
	}
	p.speaker.Stop()

	s = State{gen: s.gen + 1}
	p.persistTranscript(&s)
	return s, nil
}

// EditTranscript replaces the transcript with the user's text.
func (p *Pipeline) EditTranscript(s State, text string) (State, Task) {
	if text == s.Transcript {
		return s, nil
	}
	s.Transcript = text
	p.persistTranscript(&s)
	return s, nil
}

// Save writes the transcript explicitly.
func (p *Pipeline) Save(s State) (State, Task) {
	s.clearNotice()
	p.persistTranscript(&s)
	if s.Err == nil {
		s.Notice = "Transcript saved."
	}
	return s, nil
}

// SetCredential applies to the next outbound call. Calls already in
// flight keep the credential they started with.
func (p *Pipeline) SetCredential(s State, cred string) (State, Task) {
	p.credential.Store(&cred)
	if err := p.store.Set(store.KeyCredential, cred); err != nil {
		log.Failure("persist credential", err)
		s.Err = err
	}
	return s, nil
}

// FocusLost hands the microphone back to the system, discarding any
// recording in progress.
func (p *Pipeline) FocusLost(s State) (State, Task) {
	p.rec.Release()
	s.Recording = false
	return s, nil
}

// FocusGained reopens the microphone ahead of the next recording.
func (p *Pipeline) FocusGained(s State) (State, Task) {
	if err := p.rec.Acquire(); err != nil {
		log.Warnf("reacquire microphone: %v", err)
	}
	return s, nil
}

// Apply folds a task's completion into the state.
func (p *Pipeline) Apply(s State, ev Event) (State, Task) {
	switch ev := ev.(type) {
	case TranscriptionDone:
		if ev.gen == s.gen {
			s.transcriptions = max(s.transcriptions-1, 0)
			s.Transcribing = s.transcriptions > 0
		}
		if ev.Err != nil {
			log.Failure("transcribe", ev.Err)
			p.emit(CueError)
			s.Err = ev.Err
			return s, nil
		}
		if ev.Result == nil {
			return s, nil
		}
		logTranscription(p.tr.Name(), ev.Asset, ev.Result)
		if ev.Result.Text == "" {
			return s, nil
		}
		if s.Transcript == "" {
			s.Transcript = ev.Result.Text
		} else {
			s.Transcript += "\n" + ev.Result.Text
		}
		p.persistTranscript(&s)

	case TranslationDone:
		if ev.gen == s.gen {
			s.translations = max(s.translations-1, 0)
			s.Translating = s.translations > 0
		}
		if ev.Err != nil {
			log.Failure("translate", ev.Err)
			s.Err = ev.Err
			return s, nil
		}
		s.Translation = ev.Result.Text
		s.Language = ev.Language
		log.TranslationMetrics(p.tl.Name(), ev.Result.Model, ev.Language.Code,
			len([]rune(s.Transcript)), len([]rune(ev.Result.Text)), ev.Result.Elapsed)
		log.TranslationText(ev.Language.Code, ev.Result.Text)

	case PlaybackDone:
		if ev.Err != nil {
			log.Failure("playback", ev.Err)
			s.Err = ev.Err
		}
		if ev.ID == s.PlaybackID {
			s.Playing = false
			s.PlaybackID = ""
		}
	}
	return s, nil
}

func logTranscription(provider string, asset *audio.Asset, r *transcriber.Result) {
	if r.NoSpeech {
		log.Info("no speech detected")
	} else {
		log.TranscriptionText(r.Text)
	}
	if asset == nil {
		return
	}
	m := log.Metrics{
		AudioLengthS:     asset.Duration.Seconds(),
		RawSizeKB:        float64(asset.Frames*2) / 1024,
		CompressedSizeKB: float64(len(asset.Data)) / 1024,
		EncodeTimeMs:     float64(asset.EncodeTime.Milliseconds()),
		Confidence:       r.Confidence,
	}
	if m.RawSizeKB > 0 {
		m.CompressionPct = (1 - m.CompressedSizeKB/m.RawSizeKB) * 100
	}
	var reused bool
	var proto string
	if n := r.Metrics; n != nil {
		m.DNSTimeMs = float64(n.DNS.Milliseconds())
		m.TLSTimeMs = float64(n.TLS.Milliseconds())
		m.TTFBMs = float64(n.TTFB.Milliseconds())
		m.TotalTimeMs = float64(n.Total.Milliseconds())
		reused, proto = n.ConnReused, n.TLSProtocol
	}
	log.TranscriptionMetrics(m, provider, asset.Format, reused, proto)
}
