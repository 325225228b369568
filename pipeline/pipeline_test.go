package pipeline

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tolk/audio"
	"tolk/encoder"
	"tolk/language"
	"tolk/netclient"
	"tolk/speech"
	"tolk/store"
	"tolk/transcriber"
	"tolk/translator"
)

func speechPCM(seconds float64) []byte {
	n := int(float64(encoder.SampleRate) * seconds)
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := int16(6000 * math.Sin(2*math.Pi*220*float64(i)/encoder.SampleRate))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

type harness struct {
	audio   *audio.FakeContext
	rec     *audio.Recorder
	tr      *transcriber.Fake
	tl      *translator.Fake
	engine  *speech.FakeEngine
	speaker *speech.Controller
	store   *store.Memory
	cues    []Cue
	p       *Pipeline
}

func newHarness(t *testing.T, pcm []byte, texts ...string) *harness {
	t.Helper()
	h := &harness{
		audio:  audio.NewFakeContextPCM(pcm, false),
		tr:     transcriber.NewFake(texts...),
		tl:     translator.NewFake(),
		engine: &speech.FakeEngine{Duration: 10 * time.Millisecond},
		store:  store.NewMemory(),
	}
	h.rec = audio.NewRecorder(h.audio, nil, encoder.FormatFLAC)
	h.speaker = speech.NewController(h.engine)
	h.p = New(Options{
		Recorder:    h.rec,
		Transcriber: h.tr,
		Translator:  h.tl,
		Speaker:     h.speaker,
		Store:       h.store,
		Cue:         func(c Cue) { h.cues = append(h.cues, c) },
	})
	h.store.Set(store.KeyCredential, "VALIDKEY")
	return h
}

func (h *harness) runner(t *testing.T) *Runner {
	t.Helper()
	r := NewRunner(h.p, h.p.Load())
	t.Cleanup(r.Close)
	return r
}

func (h *harness) saved() string {
	v, _ := h.store.Get(store.KeyTranscript)
	return v
}

func assertIdle(t *testing.T, s State) {
	t.Helper()
	if !s.Idle() {
		t.Errorf("flags not clear: %+v", s)
	}
}

func TestRecordAppendsTranscript(t *testing.T) {
	h := newHarness(t, speechPCM(0.5), "Hello", "World")
	r := h.runner(t)

	r.StartRecording()
	if s := r.StopRecording(); !s.Transcribing || s.Recording {
		t.Fatalf("after stop: %+v", s)
	}
	r.Wait()
	if got := r.State().Transcript; got != "Hello" {
		t.Fatalf("first transcript = %q, want no leading newline", got)
	}

	r.StartRecording()
	r.StopRecording()
	r.Wait()

	s := r.State()
	if s.Transcript != "Hello\nWorld" {
		t.Errorf("Transcript = %q", s.Transcript)
	}
	if h.saved() != s.Transcript {
		t.Errorf("persisted %q, in memory %q", h.saved(), s.Transcript)
	}
	assertIdle(t, s)
	if got := h.tr.Credentials(); len(got) != 2 || got[0] != "VALIDKEY" {
		t.Errorf("credentials = %v", got)
	}
}

func TestTranscriptionFailureLeavesTranscript(t *testing.T) {
	for _, kind := range []error{netclient.ErrAuth, netclient.ErrNetwork, netclient.ErrService} {
		t.Run(kind.Error(), func(t *testing.T) {
			h := newHarness(t, speechPCM(0.5), "never")
			h.store.Set(store.KeyTranscript, "Hello")
			h.tr.Err = &netclient.Error{Kind: kind, Service: "fake"}
			r := h.runner(t)

			r.StartRecording()
			r.StopRecording()
			r.Wait()

			s := r.State()
			if s.Transcript != "Hello" || h.saved() != "Hello" {
				t.Errorf("transcript = %q, saved = %q", s.Transcript, h.saved())
			}
			if !errors.Is(s.Err, kind) {
				t.Errorf("Err = %v", s.Err)
			}
			assertIdle(t, s)
			if h.cues[len(h.cues)-1] != CueError {
				t.Errorf("cues = %v", h.cues)
			}
		})
	}
}

func TestZeroAudioLeavesTranscript(t *testing.T) {
	h := newHarness(t, nil, "should not be used")
	h.store.Set(store.KeyTranscript, "Hello")
	r := h.runner(t)

	r.StartRecording()
	s := r.StopRecording()
	if !s.Transcribing {
		t.Error("transcribing flag not raised")
	}
	r.Wait()

	s = r.State()
	if s.Transcript != "Hello" {
		t.Errorf("Transcript = %q", s.Transcript)
	}
	if s.Transcribing {
		t.Error("transcribing flag stuck")
	}
	if h.tr.Calls() != 0 {
		t.Errorf("transcriber called %d times for empty audio", h.tr.Calls())
	}
}

func TestNoSpeechLeavesTranscript(t *testing.T) {
	h := newHarness(t, speechPCM(0.5), "   ")
	h.store.Set(store.KeyTranscript, "Hello")
	r := h.runner(t)

	r.StartRecording()
	r.StopRecording()
	r.Wait()

	if s := r.State(); s.Transcript != "Hello" || s.Err != nil {
		t.Errorf("state = %+v", s)
	}
}

func TestSingleRecording(t *testing.T) {
	h := newHarness(t, speechPCM(0.5), "once")
	r := h.runner(t)

	r.StartRecording()
	s := r.StartRecording()
	if !s.Recording || s.Err != nil {
		t.Errorf("second start: %+v", s)
	}
	if n := h.audio.Open(); n != 1 {
		t.Errorf("open captures = %d", n)
	}
	r.StopRecording()
	r.StopRecording()
	r.Wait()
	if h.tr.Calls() != 1 {
		t.Errorf("transcriber calls = %d", h.tr.Calls())
	}
}

func TestStartRecordingDeviceErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*audio.FakeContext)
		want  error
	}{
		{"no device", func(c *audio.FakeContext) { c.NoDevices = true }, audio.ErrDeviceUnavailable},
		{"denied", func(c *audio.FakeContext) { c.StartErr = errors.New("permission denied") }, audio.ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			tt.setup(h.audio)
			r := h.runner(t)
			s := r.StartRecording()
			if s.Recording || !errors.Is(s.Err, tt.want) {
				t.Errorf("state = %+v", s)
			}
		})
	}
}

func TestTranslateEnglishScenario(t *testing.T) {
	var key string
	var body struct {
		Contents []struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("X-Goog-Api-Key")
		json.NewDecoder(r.Body).Decode(&body)
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"Hello."}]}}]}`)
	}))
	defer srv.Close()

	h := newHarness(t, nil)
	h.store.Set(store.KeyTranscript, "Hello")
	h.p.tl = translator.NewGemini(srv.URL, "")
	r := h.runner(t)

	if s := r.Translate(language.English); !s.Translating {
		t.Error("translating flag not raised")
	}
	r.Wait()

	s := r.State()
	if s.Translation != "Hello." {
		t.Errorf("Translation = %q", s.Translation)
	}
	if s.Language.Locale != "en-US" {
		t.Errorf("Language = %+v", s.Language)
	}
	if s.Translating {
		t.Error("translating flag stuck")
	}
	if key != "VALIDKEY" {
		t.Errorf("key = %q", key)
	}
	if got := body.Contents[0].Parts[0].Text; !strings.Contains(got, "to English") || !strings.Contains(got, `"Hello"`) {
		t.Errorf("prompt = %q", got)
	}
}

func TestTranslateEmptyTranscriptIsSent(t *testing.T) {
	h := newHarness(t, nil)
	r := h.runner(t)

	r.Translate(language.Chinese)
	r.Wait()

	prompts := h.tl.Prompts()
	if len(prompts) != 1 || prompts[0] != translator.Prompt("", language.Chinese) {
		t.Errorf("prompts = %q", prompts)
	}
	if s := r.State(); s.Err != nil || s.Language != language.Chinese {
		t.Errorf("state = %+v", s)
	}
}

func TestTranslateLastResponseWins(t *testing.T) {
	h := newHarness(t, nil)
	h.store.Set(store.KeyTranscript, "good morning")
	h.tl.Delays = map[language.Target]time.Duration{language.Japanese: 80 * time.Millisecond}
	r := h.runner(t)

	r.Translate(language.Japanese)
	r.Translate(language.English)
	time.Sleep(20 * time.Millisecond)
	if s := r.State(); s.Language != language.English || !s.Translating {
		t.Fatalf("after first response: %+v", s)
	}
	r.Wait()

	s := r.State()
	if s.Language != language.Japanese || s.Translation != "[JP] good morning" {
		t.Errorf("last response should win: %+v", s)
	}
	if s.Translating {
		t.Error("translating flag stuck")
	}
}

func TestTranslateFailureKeepsTranslation(t *testing.T) {
	h := newHarness(t, nil)
	h.store.Set(store.KeyTranscript, "hi")
	r := h.runner(t)

	r.Translate(language.Japanese)
	r.Wait()
	h.tl.Err = netclient.NoText("fake")
	r.Translate(language.English)
	r.Wait()

	s := r.State()
	if s.Translation != "[JP] hi" || s.Language != language.Japanese {
		t.Errorf("state = %+v", s)
	}
	if !errors.Is(s.Err, netclient.ErrNoText) {
		t.Errorf("Err = %v", s.Err)
	}
}

func TestPlayEmptyTranslationNotifies(t *testing.T) {
	h := newHarness(t, nil)
	r := h.runner(t)

	s := r.Play()
	if s.Playing || s.PlaybackID != "" {
		t.Errorf("playback started: %+v", s)
	}
	if s.Notice != NoticeNothingToPlay {
		t.Errorf("Notice = %q", s.Notice)
	}
	if len(h.engine.Spoken()) != 0 {
		t.Error("engine was asked to speak")
	}
	// the notice is one-shot
	if s := r.Save(); s.Notice == NoticeNothingToPlay {
		t.Error("notice not cleared")
	}
}

func TestPlayback(t *testing.T) {
	h := newHarness(t, nil)
	h.store.Set(store.KeyTranscript, "hello")
	r := h.runner(t)
	r.Translate(language.Japanese)
	r.Wait()

	s := r.Play()
	if !s.Playing || s.PlaybackID == "" {
		t.Fatalf("state = %+v", s)
	}
	r.Wait()
	assertIdle(t, r.State())

	spoken := h.engine.Spoken()
	if len(spoken) != 1 || spoken[0].Text != "[JP] hello" || spoken[0].Voice.Locale != "ja-JP" {
		t.Errorf("spoken = %+v", spoken)
	}
}

func TestSinglePlayback(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.Duration = time.Hour
	h.store.Set(store.KeyTranscript, "hello")
	r := h.runner(t)
	r.Translate(language.English)
	r.Wait()

	first := r.Play()
	second := r.Play()
	if first.PlaybackID == second.PlaybackID {
		t.Fatal("expected a new playback session")
	}
	// the interrupted session's completion must not clear the new one
	time.Sleep(30 * time.Millisecond)
	if s := r.State(); !s.Playing || s.PlaybackID != second.PlaybackID {
		t.Errorf("state = %+v", s)
	}

	s := r.StopPlayback()
	if s.Playing {
		t.Error("Playing after stop")
	}
	r.StopPlayback()
	r.Wait()
	if r.State().Playing {
		t.Error("Playing after stop completed")
	}
	if n := len(h.engine.Spoken()); n != 2 {
		t.Errorf("utterances = %d", n)
	}
}

func TestResetFromAnyState(t *testing.T) {
	h := newHarness(t, speechPCM(0.5), "spoken words")
	h.engine.Duration = time.Hour
	h.store.Set(store.KeyTranscript, "Hello")
	r := h.runner(t)

	r.Translate(language.English)
	r.Wait()
	r.Play()
	r.StartRecording()
	r.Translate(language.Japanese)

	s := r.Reset()
	if s.Transcript != "" || s.Translation != "" {
		t.Errorf("text not cleared: %+v", s)
	}
	assertIdle(t, s)
	if h.saved() != "" {
		t.Errorf("persisted %q", h.saved())
	}
	if h.rec.Recording() {
		t.Error("recorder still running")
	}
	r.Wait()
	if r.State().Playing {
		t.Error("playback survived reset")
	}
}

func TestCompletionAfterResetKeepsNewFlags(t *testing.T) {
	h := newHarness(t, speechPCM(0.5), "one", "two")
	ctx := context.Background()
	s := h.p.Load()

	s, _ = h.p.StartRecording(s)
	s, first := h.p.StopRecording(s)
	s, firstTl := h.p.Translate(s, language.English)
	s, _ = h.p.Reset(s)

	s, _ = h.p.StartRecording(s)
	s, second := h.p.StopRecording(s)
	s, secondTl := h.p.Translate(s, language.Japanese)

	// calls from before the reset finish while the new ones are in flight
	s, _ = h.p.Apply(s, first(ctx))
	s, _ = h.p.Apply(s, firstTl(ctx))
	if !s.Transcribing || !s.Translating {
		t.Fatalf("stale completion cleared flags: %+v", s)
	}
	if s.Transcript != "one" {
		t.Errorf("Transcript = %q, stale text should still apply", s.Transcript)
	}

	s, _ = h.p.Apply(s, second(ctx))
	s, _ = h.p.Apply(s, secondTl(ctx))
	if s.Transcribing || s.Translating {
		t.Errorf("flags still set: %+v", s)
	}
	if s.Transcript != "one\ntwo" || s.Language != language.Japanese {
		t.Errorf("state = %+v", s)
	}
}

func TestResetIdle(t *testing.T) {
	h := newHarness(t, nil)
	r := h.runner(t)
	s := r.Reset()
	if s.Transcript != "" || s.Translation != "" || !s.Idle() {
		t.Errorf("state = %+v", s)
	}
}

func TestEditAndSavePersist(t *testing.T) {
	h := newHarness(t, nil)
	r := h.runner(t)

	r.EditTranscript("typed by hand")
	if h.saved() != "typed by hand" {
		t.Errorf("saved = %q", h.saved())
	}
	s := r.Save()
	if s.Notice == "" || s.Err != nil {
		t.Errorf("state = %+v", s)
	}

	h.store.Err = errors.New("disk full")
	s = r.EditTranscript("lost?")
	if s.Transcript != "lost?" || s.Err == nil {
		t.Errorf("state = %+v", s)
	}
}

func TestCredentialChangeAppliesToNextCall(t *testing.T) {
	h := newHarness(t, speechPCM(0.5), "a", "b")
	h.tr.Delay = 50 * time.Millisecond
	r := h.runner(t)

	r.StartRecording()
	r.StopRecording() // in flight with VALIDKEY
	r.SetCredential("NEWKEY")
	r.StartRecording()
	r.StopRecording()
	r.Wait()

	got := h.tr.Credentials()
	if len(got) != 2 || got[0] != "VALIDKEY" || got[1] != "NEWKEY" {
		t.Errorf("credentials = %v", got)
	}
	if v, _ := h.store.Get(store.KeyCredential); v != "NEWKEY" {
		t.Errorf("persisted credential = %q", v)
	}
}

func TestMissingCredential(t *testing.T) {
	h := newHarness(t, speechPCM(0.5), "x")
	r := h.runner(t)
	r.SetCredential("")

	r.StartRecording()
	r.StopRecording()
	r.Translate(language.English)
	r.Wait()

	s := r.State()
	if !errors.Is(s.Err, netclient.ErrAuth) {
		t.Errorf("Err = %v", s.Err)
	}
	assertIdle(t, s)
}

func TestFocusReleasesMicrophone(t *testing.T) {
	h := newHarness(t, speechPCM(0.5), "x")
	r := h.runner(t)

	r.StartRecording()
	s := r.FocusLost()
	if s.Recording {
		t.Error("Recording after focus loss")
	}
	if h.audio.Open() != 0 {
		t.Error("microphone still held")
	}
	r.FocusGained()
	if h.audio.Open() != 1 {
		t.Error("microphone not reacquired")
	}
	r.StartRecording()
	r.StopRecording()
	r.Wait()
	if got := r.State().Transcript; got != "x" {
		t.Errorf("Transcript = %q", got)
	}
}

func TestTranscriptRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	st, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	st.Set(store.KeyCredential, "VALIDKEY")

	build := func(st store.Store, texts ...string) *Runner {
		p := New(Options{
			Recorder:    audio.NewRecorder(audio.NewFakeContextPCM(speechPCM(0.5), false), nil, ""),
			Transcriber: transcriber.NewFake(texts...),
			Translator:  translator.NewFake(),
			Speaker:     speech.NewController(&speech.FakeEngine{}),
			Store:       st,
		})
		r := NewRunner(p, p.Load())
		t.Cleanup(r.Close)
		return r
	}

	r := build(st, "第一句", "second line")
	r.StartRecording()
	r.StopRecording()
	r.Wait()
	r.StartRecording()
	r.StopRecording()
	r.Wait()
	want := r.State().Transcript

	reopened, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	r2 := build(reopened)
	if got := r2.State().Transcript; got != want || got != "第一句\nsecond line" {
		t.Errorf("reloaded %q, want %q", got, want)
	}
	if r2.p.Credential() != "VALIDKEY" {
		t.Errorf("credential = %q", r2.p.Credential())
	}
}

func TestObserve(t *testing.T) {
	h := newHarness(t, nil)
	r := h.runner(t)
	var seen []State
	r.Observe(func(s State) { seen = append(seen, s) })

	r.EditTranscript("a")
	r.Translate(language.English)
	r.Wait()

	if len(seen) != 3 {
		t.Fatalf("observed %d states", len(seen))
	}
	if !seen[1].Translating || seen[2].Translation != "[EN] a" {
		t.Errorf("seen = %+v", seen)
	}
}
