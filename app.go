package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"tolk/audio"
	"tolk/beep"
	"tolk/config"
	"tolk/log"
	"tolk/pipeline"
	"tolk/speech"
	"tolk/store"
	"tolk/transcriber"
	"tolk/translator"
)

// app is everything one session needs, wired from config.
type app struct {
	cfg      *config.Config
	audioCtx audio.Context
	rec      *audio.Recorder
	store    store.Store
	tr       *countingTranscriber
	tl       translator.Translator
	speaker  *speech.Controller
	beeper   *beep.Beeper
	p        *pipeline.Pipeline
}

type appOptions struct {
	audioCtx audio.Context
	device   *audio.DeviceInfo
	player   audio.Player
	// engine replaces the configured speech engine (headless mode).
	engine speech.Engine
	// store replaces the file store (headless mode keeps state in memory).
	store store.Store
	// transcriber and translator replace the configured services in tests.
	transcriber transcriber.Transcriber
	translator  translator.Translator
}

// countingTranscriber tallies successful transcriptions for the session
// summary.
type countingTranscriber struct {
	transcriber.Transcriber
	n atomic.Int64
}

func (c *countingTranscriber) Transcribe(ctx context.Context, asset *audio.Asset, credential string) (*transcriber.Result, error) {
	r, err := c.Transcriber.Transcribe(ctx, asset, credential)
	if err == nil {
		c.n.Add(1)
	}
	return r, err
}

func newApp(cfg *config.Config, o appOptions) (*app, error) {
	a := &app{cfg: cfg, audioCtx: o.audioCtx}

	st := o.store
	if st == nil {
		path := cfg.Store.Path
		if path == "" {
			var err error
			if path, err = store.DefaultPath(); err != nil {
				return nil, fmt.Errorf("store path: %w", err)
			}
		}
		f, err := store.Open(path)
		if err != nil {
			return nil, err
		}
		st = f
	}
	a.store = st
	if _, ok := st.Get(store.KeyCredential); !ok && cfg.Credential != "" {
		if err := st.Set(store.KeyCredential, cfg.Credential); err != nil {
			log.Warnf("seeding credential: %v", err)
		}
	}

	var err error
	tr := o.transcriber
	if tr == nil {
		tr, err = transcriber.New(transcriber.Config{
			Provider: cfg.Transcriber.Provider,
			Language: cfg.Transcriber.Language,
			Endpoint: cfg.Transcriber.Endpoint,
			Model:    cfg.Transcriber.Model,
		})
		if err != nil {
			return nil, err
		}
	}
	a.tr = &countingTranscriber{Transcriber: tr}

	a.tl = o.translator
	if a.tl == nil {
		a.tl, err = translator.New(translator.Config{
			Provider: cfg.Translator.Provider,
			Model:    cfg.Translator.Model,
			Endpoint: cfg.Translator.Endpoint,
		})
		if err != nil {
			return nil, err
		}
	}

	engine := o.engine
	if engine == nil {
		engine, err = newEngine(cfg.Speech, o.player, func() string { return a.p.Credential() })
		if err != nil {
			return nil, err
		}
	}
	a.speaker = speech.NewController(engine)
	a.speaker.OnEvent(func(id, event string) {
		log.PlaybackEvent(engine.Name(), id, event)
	})

	a.beeper = beep.New(o.player)
	if !cfg.Audio.Beep {
		a.beeper.Disable()
	}

	a.rec = audio.NewRecorder(o.audioCtx, o.device, cfg.Audio.Format)

	a.p = pipeline.New(pipeline.Options{
		Recorder:    a.rec,
		Transcriber: a.tr,
		Translator:  a.tl,
		Speaker:     a.speaker,
		Store:       a.store,
		Cue:         a.cue,
	})
	return a, nil
}

func newEngine(cfg config.SpeechConfig, player audio.Player, credential func() string) (speech.Engine, error) {
	switch cfg.Engine {
	case "cloud":
		if player == nil {
			return nil, fmt.Errorf("cloud speech needs an audio output")
		}
		return speech.NewCloud(cfg.Endpoint, player, credential, cfg.SpeakingRate), nil
	default:
		return speech.NewNative()
	}
}

func (a *app) cue(c pipeline.Cue) {
	switch c {
	case pipeline.CueStart:
		a.beeper.Start()
	case pipeline.CueStop:
		a.beeper.End()
	case pipeline.CueError:
		a.beeper.Error()
	}
}

func (a *app) logSessionStart() {
	log.SessionStart(a.tr.Name(), a.tl.Name(), a.speaker.Engine().Name(), a.rec.Format())
}

// close stops playback, releases the microphone and waits briefly for
// cues still playing.
func (a *app) close() {
	a.speaker.Stop()
	a.rec.Close()
	done := make(chan struct{})
	go func() {
		a.beeper.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
	}
	log.SessionEnd(int(a.tr.n.Load()))
}
