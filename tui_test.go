package main

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"tolk/audio"
	"tolk/config"
	"tolk/netclient"
	"tolk/pipeline"
	"tolk/speech"
	"tolk/store"
	"tolk/transcriber"
	"tolk/translator"
)

func tonePCM(seconds float64) []byte {
	n := int(16000 * seconds)
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func testApp(t *testing.T, texts ...string) (*app, *store.Memory) {
	t.Helper()
	return testAppWith(t, audio.NewFakeContextPCM(tonePCM(0.5), false), texts...)
}

func testAppWith(t *testing.T, audioCtx audio.Context, texts ...string) (*app, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	st.Set(store.KeyCredential, "VALIDKEY")
	cfg := &config.Config{Audio: config.AudioConfig{Format: "flac"}}
	cfg.Transcriber.Language = "en-US"
	a, err := newApp(cfg, appOptions{
		audioCtx:    audioCtx,
		engine:      &speech.FakeEngine{Duration: 5 * time.Millisecond},
		store:       st,
		transcriber: transcriber.NewFake(texts...),
		translator:  translator.NewFake(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(a.close)
	return a, st
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	case "ctrl+r":
		return tea.KeyMsg{Type: tea.KeyCtrlR}
	case "ctrl+x":
		return tea.KeyMsg{Type: tea.KeyCtrlX}
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// send feeds msg to m and runs every resulting command to completion,
// the way the bubbletea runtime would. Ticks are not followed.
func send(t *testing.T, m tuiModel, msg tea.Msg) tuiModel {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(tuiModel)
	for cmd != nil {
		out := cmd()
		if out == nil {
			return m
		}
		if _, ok := out.(tickMsg); ok {
			return m
		}
		next, cmd = m.Update(out)
		m = next.(tuiModel)
	}
	return m
}

func TestTUIRecordTranslatePlay(t *testing.T) {
	a, st := testApp(t, "good morning")
	m := newTUIModel(a)

	m = send(t, m, key("ctrl+r"))
	if !m.state.Recording {
		t.Fatal("not recording after ctrl+r")
	}
	m = send(t, m, key("ctrl+r"))
	if m.state.Transcript != "good morning" || m.state.Transcribing {
		t.Fatalf("state = %+v", m.state)
	}
	if v, _ := st.Get(store.KeyTranscript); v != "good morning" {
		t.Errorf("persisted %q", v)
	}

	m = send(t, m, key("3"))
	if m.state.Translation != "[JP] good morning" || m.state.Language.Code != "JP" {
		t.Fatalf("state = %+v", m.state)
	}

	m = send(t, m, key("p"))
	if m.state.Playing {
		t.Error("playback flag not cleared after completion")
	}
	spoken := a.speaker.Engine().(*speech.FakeEngine).Spoken()
	if len(spoken) != 1 || spoken[0].Text != "[JP] good morning" {
		t.Errorf("spoken = %+v", spoken)
	}
}

func TestTUIPlayWithoutTranslation(t *testing.T) {
	a, _ := testApp(t)
	m := send(t, newTUIModel(a), key("p"))
	if m.state.Notice != pipeline.NoticeNothingToPlay {
		t.Errorf("Notice = %q", m.state.Notice)
	}
	m.width, m.height = 100, 40
	if !strings.Contains(m.View(), pipeline.NoticeNothingToPlay) {
		t.Error("notice not rendered")
	}
}

func TestTUIEditTranscript(t *testing.T) {
	a, st := testApp(t)
	m := newTUIModel(a)
	m = send(t, m, key("tab"))
	if m.focus != focusTranscript {
		t.Fatalf("focus = %d", m.focus)
	}

	for _, k := range []string{"h", "i", "enter", "y", "o", "backspace"} {
		m = send(t, m, key(k))
	}
	if m.state.Transcript != "hi\ny" {
		t.Errorf("Transcript = %q", m.state.Transcript)
	}
	if v, _ := st.Get(store.KeyTranscript); v != "hi\ny" {
		t.Errorf("persisted %q", v)
	}

	// digits are text while the transcript has focus
	m = send(t, m, key("1"))
	if m.state.Translating || m.state.Transcript != "hi\ny1" {
		t.Errorf("state = %+v", m.state)
	}

	m = send(t, m, key("ctrl+x"))
	if m.state.Transcript != "" {
		t.Errorf("reset left %q", m.state.Transcript)
	}
}

func TestTUICredentialIsMasked(t *testing.T) {
	a, st := testApp(t)
	m := newTUIModel(a)
	m = send(t, m, key("tab"))
	m = send(t, m, key("tab"))
	if m.focus != focusCredential {
		t.Fatalf("focus = %d", m.focus)
	}
	m = send(t, m, key("X"))

	if got := a.p.Credential(); got != "VALIDKEYX" {
		t.Errorf("credential = %q", got)
	}
	if v, _ := st.Get(store.KeyCredential); v != "VALIDKEYX" {
		t.Errorf("persisted %q", v)
	}
	m.width, m.height = 100, 40
	if strings.Contains(m.View(), "VALIDKEY") {
		t.Error("credential rendered in clear text")
	}
}

func TestTUIFocusReleasesMicrophone(t *testing.T) {
	a, _ := testApp(t, "x")
	fake := a.audioCtx.(*audio.FakeContext)
	m := send(t, newTUIModel(a), key("ctrl+r"))

	m = send(t, m, tea.BlurMsg{})
	if m.state.Recording || fake.Open() != 0 {
		t.Errorf("recording=%v open=%d", m.state.Recording, fake.Open())
	}
	send(t, m, tea.FocusMsg{})
	if fake.Open() != 1 {
		t.Errorf("open = %d after focus", fake.Open())
	}
}

func TestTUIEditTranscriptMidText(t *testing.T) {
	a, st := testApp(t)
	st.Set(store.KeyTranscript, "helo")
	m := newTUIModel(a)
	m = send(t, m, key("tab"))
	m = send(t, m, tea.KeyMsg{Type: tea.KeyLeft})
	m = send(t, m, key("l"))
	if m.state.Transcript != "hello" {
		t.Errorf("Transcript = %q", m.state.Transcript)
	}
}

func TestTUITranscriptFollowsPipeline(t *testing.T) {
	a, _ := testApp(t, "from the microphone")
	m := newTUIModel(a)
	m = send(t, m, key("ctrl+r"))
	m = send(t, m, key("ctrl+r"))
	if got := m.transcript.Value(); got != "from the microphone" {
		t.Errorf("editor shows %q", got)
	}
	m = send(t, m, key("ctrl+x"))
	if got := m.transcript.Value(); got != "" {
		t.Errorf("editor shows %q after reset", got)
	}
}

func TestTUILevelFromTick(t *testing.T) {
	a, _ := testApp(t)
	m := newTUIModel(a)
	m.state.Recording = true
	m.level.store(0.5)

	next, _ := m.Update(tickMsg(time.Now()))
	m = next.(tuiModel)
	if m.peakLevel != 0.5 || m.audioLevel <= 0 {
		t.Errorf("peak=%v level=%v", m.peakLevel, m.audioLevel)
	}
}

// The capture callback keeps firing while Update stops the recording; the
// event loop must keep running through many start/stop cycles.
func TestTUIRecordStopWhileCapturing(t *testing.T) {
	a, _ := testAppWith(t, audio.NewFakeContextPCM(tonePCM(5), true))
	prog := tea.NewProgram(newTUIModel(a),
		tea.WithInput(nil), tea.WithOutput(io.Discard), tea.WithoutRenderer(), tea.WithoutSignalHandler())
	done := make(chan error, 1)
	go func() {
		_, err := prog.Run()
		done <- err
	}()

	cycles := make(chan struct{})
	go func() {
		defer close(cycles)
		for i := range 100 {
			prog.Send(key("ctrl+r"))
			prog.Send(tea.WindowSizeMsg{Width: 80, Height: 24})
			time.Sleep(time.Duration(i%5) * time.Millisecond)
			prog.Send(key("ctrl+r"))
		}
	}()

	select {
	case <-cycles:
	case <-time.After(20 * time.Second):
		prog.Kill()
		t.Fatal("event loop stopped responding during record/stop cycles")
	}
	prog.Quit()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestDescribeErr(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{audio.ErrPermissionDenied, "denied"},
		{audio.ErrDeviceUnavailable, "No microphone"},
		{netclient.MissingCredential("gemini"), "Credential"},
		{netclient.Network("google", errors.New("dial tcp")), "Network"},
		{netclient.NoText("gemini"), "no text"},
		{&netclient.Error{Kind: netclient.ErrService, Service: "google", StatusCode: 500}, "500"},
		{errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		if got := describeErr(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("describeErr(%v) = %q, want it to contain %q", tt.err, got, tt.want)
		}
	}
}

func TestLevelMeter(t *testing.T) {
	if got := strings.Count(levelMeter(1), "▮"); got != 20 {
		t.Errorf("full meter = %d bars", got)
	}
	if got := strings.Count(levelMeter(0), "▮"); got != 0 {
		t.Errorf("empty meter = %d bars", got)
	}
}
