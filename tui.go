package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tolk/audio"
	"tolk/clipboard"
	"tolk/language"
	"tolk/netclient"
	"tolk/pipeline"
)

// TUI message types
type eventMsg struct{ ev pipeline.Event }
type copiedMsg struct{ err error }
type tickMsg time.Time

// levelTap holds the latest RMS from the capture callback. The callback
// runs on the audio thread and must not wait on the event loop, which may
// itself be waiting in Recorder.Stop for that callback to return.
type levelTap struct{ bits atomic.Uint64 }

func (l *levelTap) store(rms float64) { l.bits.Store(math.Float64bits(rms)) }
func (l *levelTap) load() float64     { return math.Float64frombits(l.bits.Load()) }

type focusArea int

const (
	focusControls focusArea = iota
	focusTranscript
	focusCredential
	focusCount
)

type tuiModel struct {
	p     *pipeline.Pipeline
	ctx   context.Context
	state pipeline.State

	focus         focusArea
	transcript    textarea.Model
	credential    textinput.Model
	level         *levelTap
	width, height int
	audioLevel    float64
	peakLevel     float64
	recStart      time.Time
	recDuration   time.Duration
	status        string // result of the last local action (copy)
	modeLine      string
	deviceLine    string
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	recStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	busyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	meterStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1)
	focusedStyle = boxStyle.BorderForeground(lipgloss.Color("63"))
)

func newTUIModel(a *app) tuiModel {
	state := a.p.Load()

	ta := textarea.New()
	ta.Prompt = ""
	ta.Placeholder = "Press ctrl+r and speak."
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.MaxHeight = 0
	ta.SetHeight(6)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.Cursor.SetMode(cursor.CursorStatic)
	ta.SetValue(state.Transcript)

	ti := textinput.New()
	ti.Prompt = ""
	ti.Placeholder = "(not set)"
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '•'
	ti.Cursor.SetMode(cursor.CursorStatic)
	ti.SetValue(a.p.Credential())

	level := &levelTap{}
	a.rec.OnLevel(level.store)

	return tuiModel{
		p:          a.p,
		ctx:        context.Background(),
		state:      state,
		transcript: ta,
		credential: ti,
		level:      level,
		modeLine:   modeLineText(a),
		deviceLine: deviceLineText(a),
	}
}

func newTUIProgram(a *app) *tea.Program {
	return tea.NewProgram(newTUIModel(a), tea.WithAltScreen(), tea.WithReportFocus())
}

func tuiTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

// run installs next as the current state and turns task into a command
// whose completion comes back as an eventMsg.
func (m *tuiModel) run(next pipeline.State, task pipeline.Task) tea.Cmd {
	wasRecording := m.state.Recording
	m.state = next
	if next.Recording && !wasRecording {
		m.recStart = time.Now()
		m.recDuration = 0
		m.audioLevel, m.peakLevel = 0, 0
		m.level.store(0)
	}
	if m.transcript.Value() != next.Transcript {
		m.transcript.SetValue(next.Transcript)
	}
	if !next.Recording {
		m.audioLevel = 0
	}
	if task == nil {
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		ev := task(ctx)
		if ev == nil {
			return nil
		}
		return eventMsg{ev}
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		inner := max(m.width-4, 20) - 2
		m.transcript.SetWidth(inner)
		m.credential.Width = inner

	case tea.FocusMsg:
		cmd := m.run(m.p.FocusGained(m.state))
		return m, cmd

	case tea.BlurMsg:
		cmd := m.run(m.p.FocusLost(m.state))
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		cmd := m.run(m.p.Apply(m.state, msg.ev))
		return m, cmd

	case copiedMsg:
		if msg.err != nil {
			m.status = "copy failed: " + msg.err.Error()
		} else {
			m.status = "Translation copied."
		}

	case tickMsg:
		if m.state.Recording {
			m.recDuration = time.Since(m.recStart)
			rms := m.level.load()
			m.audioLevel = m.audioLevel*0.6 + rms*0.4
			m.peakLevel = max(m.peakLevel, rms)
		}
		return m, tuiTick()
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "tab":
		cmd := m.setFocus((m.focus + 1) % focusCount)
		return m, cmd
	case "shift+tab":
		cmd := m.setFocus((m.focus + focusCount - 1) % focusCount)
		return m, cmd
	case "ctrl+s":
		m.status = ""
		cmd := m.run(m.p.Save(m.state))
		return m, cmd
	case "ctrl+x":
		m.status = ""
		cmd := m.run(m.p.Reset(m.state))
		return m, cmd
	case "ctrl+r":
		m.status = ""
		cmd := m.run(m.p.ToggleRecording(m.state))
		return m, cmd
	case "ctrl+y":
		return m, copyTranslation(m.state.Translation)
	}

	switch m.focus {
	case focusTranscript:
		before := m.transcript.Value()
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.Update(msg)
		if text := m.transcript.Value(); text != before {
			edit := m.run(m.p.EditTranscript(m.state, text))
			return m, tea.Batch(cmd, edit)
		}
		return m, cmd

	case focusCredential:
		before := m.credential.Value()
		var cmd tea.Cmd
		m.credential, cmd = m.credential.Update(msg)
		if cred := m.credential.Value(); cred != before {
			set := m.run(m.p.SetCredential(m.state, cred))
			return m, tea.Batch(cmd, set)
		}
		return m, cmd
	}

	m.status = ""
	switch msg.String() {
	case "1", "2", "3":
		lang := language.All[msg.String()[0]-'1']
		cmd := m.run(m.p.Translate(m.state, lang))
		return m, cmd
	case "p":
		cmd := m.run(m.p.TogglePlayback(m.state))
		return m, cmd
	case "r", " ":
		cmd := m.run(m.p.ToggleRecording(m.state))
		return m, cmd
	}
	return m, nil
}

func (m *tuiModel) setFocus(f focusArea) tea.Cmd {
	m.focus = f
	m.transcript.Blur()
	m.credential.Blur()
	switch f {
	case focusTranscript:
		return m.transcript.Focus()
	case focusCredential:
		return m.credential.Focus()
	}
	return nil
}

func copyTranslation(text string) tea.Cmd {
	return func() tea.Msg {
		if strings.TrimSpace(text) == "" {
			return copiedMsg{err: errors.New("nothing to copy")}
		}
		return copiedMsg{err: clipboard.Copy(text)}
	}
}

// describeErr turns a pipeline failure into one status line.
func describeErr(err error) string {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return "Microphone access denied. Allow microphone access and try again."
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return "No microphone available."
	case errors.Is(err, netclient.ErrAuth):
		return "Credential rejected or missing. Check the API key."
	case errors.Is(err, netclient.ErrNetwork):
		return "Network error. Check your connection."
	case errors.Is(err, netclient.ErrNoText):
		return "The service returned no text."
	case errors.Is(err, netclient.ErrService):
		return "Service error: " + err.Error()
	}
	return "Error: " + err.Error()
}

func levelMeter(level float64) string {
	const width = 20
	n := min(int(level*width*4), width)
	return meterStyle.Render(strings.Repeat("▮", n)) + dimStyle.Render(strings.Repeat("▯", width-n))
}

func (m tuiModel) box(title, body string, focused bool, width int) string {
	style := boxStyle
	if focused {
		style = focusedStyle
	}
	return style.Width(width).Render(dimStyle.Render(title) + "\n" + body)
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	width := max(m.width-4, 20)
	s := m.state

	var b strings.Builder
	b.WriteString(titleStyle.Render("tolk") + " " + dimStyle.Render(m.modeLine) + "\n")
	b.WriteString(dimStyle.Render(m.deviceLine) + "\n")

	b.WriteString(m.box("Credential", m.credential.View(), m.focus == focusCredential, width) + "\n")
	b.WriteString(m.box("Transcript", m.transcript.View(), m.focus == focusTranscript, width) + "\n")

	title := "Translation"
	if !s.Language.IsZero() {
		title += " [" + s.Language.Code + "]"
	}
	translation := s.Translation
	if translation == "" {
		translation = dimStyle.Render("Press 1, 2 or 3 to translate.")
	}
	b.WriteString(m.box(title, translation, m.focus == focusControls, width) + "\n")

	var flags []string
	if s.Recording {
		flags = append(flags, recStyle.Render(fmt.Sprintf("● REC %.1fs", m.recDuration.Seconds()))+" "+levelMeter(m.audioLevel))
		if m.recDuration > time.Second && m.peakLevel < 0.02 {
			flags = append(flags, errStyle.Render("⚠ no voice detected"))
		}
	}
	if s.Transcribing {
		flags = append(flags, busyStyle.Render("transcribing…"))
	}
	if s.Translating {
		flags = append(flags, busyStyle.Render("translating…"))
	}
	if s.Playing {
		flags = append(flags, busyStyle.Render("♪ playing"))
	}
	if len(flags) == 0 {
		flags = append(flags, dimStyle.Render("○ ready"))
	}
	b.WriteString(strings.Join(flags, "  ") + "\n")

	switch {
	case s.Err != nil:
		b.WriteString(errStyle.Render(describeErr(s.Err)) + "\n")
	case s.Notice != "":
		b.WriteString(noticeStyle.Render(s.Notice) + "\n")
	case m.status != "":
		b.WriteString(noticeStyle.Render(m.status) + "\n")
	default:
		b.WriteString("\n")
	}

	help := []string{
		keyStyle.Render("1/2/3") + helpStyle.Render(" CN/EN/JP"),
		keyStyle.Render("p") + helpStyle.Render(" play/stop"),
		keyStyle.Render("ctrl+r") + helpStyle.Render(" record"),
		keyStyle.Render("ctrl+s") + helpStyle.Render(" save"),
		keyStyle.Render("ctrl+x") + helpStyle.Render(" reset"),
		keyStyle.Render("ctrl+y") + helpStyle.Render(" copy"),
		keyStyle.Render("tab") + helpStyle.Render(" focus"),
		keyStyle.Render("ctrl+c") + helpStyle.Render(" quit"),
	}
	b.WriteString(strings.Join(help, helpStyle.Render(" · ")) + "\n")
	b.WriteString(helpStyle.Render("tolk " + version))
	return b.String()
}
