package doctor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"tolk/audio"
	"tolk/config"
	"tolk/language"
	"tolk/shutdown"
	"tolk/speech"
	"tolk/store"
	"tolk/transcriber"
	"tolk/translator"
)

const (
	recordFor    = 3 * time.Second
	callTimeout  = 30 * time.Second
	fallbackText = "Hello, this is a test of the translator."
)

// env carries what one check hands to the next.
type env struct {
	cfg        *config.Config
	in         *bufio.Reader
	credential string
	asset      *audio.Asset
	transcript string
}

type check struct {
	title string
	run   func(*env) bool
}

var checks = []check{
	{"Credential", checkCredential},
	{"Microphone", checkMicrophone},
	{"Transcription", checkTranscription},
	{"Translation", checkTranslation},
	{"Speech synthesis", checkSpeech},
	{"Clipboard", checkClipboard},
}

// Run executes interactive diagnostic checks and returns an exit code (0=all pass, 1=any fail).
// Each check depends on the previous one, so the first failure ends the run.
func Run(cfg *config.Config) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("tolk doctor - interactive system diagnostics")
	fmt.Println("============================================")

	e := &env{cfg: cfg, in: bufio.NewReader(os.Stdin)}
	allPass := true
	for i, c := range checks {
		fmt.Println()
		fmt.Printf("[%d/%d] %s\n", i+1, len(checks), c.title)
		if !c.run(e) {
			allPass = false
			break
		}
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func setupInterruptHandler() {
	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		resetTerminal()
		fmt.Println("\nInterrupted")
		os.Exit(1)
	}()
}

func (e *env) confirm(question string) bool {
	fmt.Printf("%s [y/n]: ", question)
	answer, _ := e.in.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}

func checkCredential(e *env) bool {
	path := e.cfg.Store.Path
	if path == "" {
		var err error
		if path, err = store.DefaultPath(); err != nil {
			fmt.Printf("  FAIL: no config directory: %v\n", err)
			return false
		}
	}
	st, err := store.Open(path)
	if err != nil {
		fmt.Printf("  FAIL: cannot read %s: %v\n", path, err)
		return false
	}
	if cred, _ := st.Get(store.KeyCredential); cred != "" {
		e.credential = cred
		fmt.Printf("  PASS: credential found in %s (%d characters)\n", path, len(cred))
		return true
	}
	if e.cfg.Credential != "" {
		e.credential = e.cfg.Credential
		fmt.Println("  PASS: credential taken from configuration")
		return true
	}

	fmt.Print("No stored credential. Enter API key: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fmt.Printf("  FAIL: reading key: %v\n", err)
		return false
	}
	e.credential = strings.TrimSpace(string(raw))
	if e.credential == "" {
		fmt.Println("  FAIL: API key required")
		return false
	}
	fmt.Println("  PASS: credential entered (not saved)")
	return true
}

func checkMicrophone(e *env) bool {
	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return false
	}
	defer ctx.Close()

	devices, err := ctx.Devices()
	if err != nil {
		fmt.Printf("  FAIL: cannot list devices: %v\n", err)
		return false
	}
	if len(devices) == 0 {
		fmt.Println("  FAIL: no capture devices found")
		return false
	}

	device, ok := e.pickDevice(devices)
	if !ok {
		return false
	}

	rec := audio.NewRecorder(ctx, device, e.cfg.Audio.Format)
	defer rec.Close()
	var mu sync.Mutex
	var peak float64
	rec.OnLevel(func(rms float64) {
		mu.Lock()
		peak = max(peak, rms)
		mu.Unlock()
	})

	fmt.Println()
	fmt.Printf("Press Enter and speak for %d seconds...", int(recordFor.Seconds()))
	e.in.ReadString('\n')

	if err := rec.Start(); err != nil {
		fmt.Printf("  FAIL: recording error: %v\n", err)
		return false
	}
	fmt.Print("  Recording")
	deadline := time.After(recordFor)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
wait:
	for {
		select {
		case <-deadline:
			break wait
		case <-ticker.C:
			fmt.Print(".")
		}
	}
	fmt.Println(" done")

	asset, err := rec.Stop()
	if err != nil {
		fmt.Printf("  FAIL: recording error: %v\n", err)
		return false
	}
	if asset == nil {
		fmt.Println("  FAIL: no audio captured")
		return false
	}
	e.asset = asset

	mu.Lock()
	p := peak
	mu.Unlock()
	fmt.Printf("  Recorded %.1fs, %.1f KB %s from %s\n",
		asset.Duration.Seconds(), float64(len(asset.Data))/1024, asset.Format, rec.DeviceName())
	if p < 0.02 {
		fmt.Printf("  Warning: very quiet input (peak level %.3f)\n", p)
	}
	fmt.Println("  PASS: microphone captured audio")
	return true
}

func (e *env) pickDevice(devices []audio.DeviceInfo) (*audio.DeviceInfo, bool) {
	if len(devices) == 1 {
		fmt.Printf("Using device: %s\n", devices[0].Name)
		return &devices[0], true
	}
	fmt.Println()
	fmt.Println("Select input device:")
	for i, d := range devices {
		fmt.Printf("  %d. %s\n", i+1, d.Name)
	}
	fmt.Printf("Choice [1-%d]: ", len(devices))

	choice, _ := e.in.ReadString('\n')
	choice = strings.TrimSpace(choice)
	idx := 0
	if choice != "" {
		fmt.Sscanf(choice, "%d", &idx)
		idx--
	}
	if idx < 0 || idx >= len(devices) {
		fmt.Printf("  FAIL: invalid choice\n")
		return nil, false
	}
	fmt.Printf("Selected: %s\n", devices[idx].Name)
	return &devices[idx], true
}

func checkTranscription(e *env) bool {
	tr, err := transcriber.New(transcriber.Config{
		Provider: e.cfg.Transcriber.Provider,
		Language: e.cfg.Transcriber.Language,
		Endpoint: e.cfg.Transcriber.Endpoint,
		Model:    e.cfg.Transcriber.Model,
	})
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	fmt.Printf("  Transcribing with %s...\n", tr.Name())

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	res, err := tr.Transcribe(ctx, e.asset, e.credential)
	if err != nil {
		fmt.Printf("  FAIL: transcription error: %v\n", err)
		return false
	}
	for _, line := range transcriber.FormatMetrics(e.asset, res) {
		fmt.Printf("    %s\n", line)
	}

	if res.NoSpeech {
		fmt.Println("\n  Transcribed text: (no speech detected)")
		fmt.Println("  PASS: service reachable, no speech in the recording")
		e.transcript = fallbackText
		return true
	}
	fmt.Printf("\n  Transcribed text: %s\n\n", res.Text)
	e.transcript = res.Text
	if !e.confirm("Is this correct?") {
		fmt.Println("  FAIL: transcription not confirmed")
		return false
	}
	fmt.Println("  PASS: transcription verified by user")
	return true
}

func checkTranslation(e *env) bool {
	tl, err := translator.New(translator.Config{
		Provider: e.cfg.Translator.Provider,
		Model:    e.cfg.Translator.Model,
		Endpoint: e.cfg.Translator.Endpoint,
	})
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	fmt.Printf("  Translating with %s (%s)...\n", tl.Name(), tl.Model())

	for _, lang := range language.All {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		res, err := tl.Translate(ctx, e.transcript, lang, e.credential)
		cancel()
		if err != nil {
			fmt.Printf("  FAIL: %s: %v\n", lang.Code, err)
			return false
		}
		fmt.Printf("    %s (%dms): %s\n", lang.Code, res.Elapsed.Milliseconds(), res.Text)
	}
	fmt.Println("  PASS: translation round trip")
	return true
}

func checkSpeech(e *env) bool {
	var engine speech.Engine
	switch e.cfg.Speech.Engine {
	case "cloud":
		player, err := audio.NewPlayer()
		if err != nil {
			fmt.Printf("  FAIL: no audio output: %v\n", err)
			return false
		}
		engine = speech.NewCloud(e.cfg.Speech.Endpoint, player, func() string { return e.credential }, e.cfg.Speech.SpeakingRate)
	default:
		native, err := speech.NewNative()
		if err != nil {
			fmt.Printf("  FAIL: %v\n", err)
			return false
		}
		engine = native
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	voices, err := engine.Voices(ctx)
	if err != nil {
		fmt.Printf("  FAIL: listing voices: %v\n", err)
		return false
	}
	fmt.Printf("  Engine %s, %d voices\n", engine.Name(), len(voices))
	for _, lang := range language.All {
		if v, ok := speech.MatchVoice(voices, lang.Locale); ok {
			fmt.Printf("    %s -> %s\n", lang.Code, v.Name)
		} else {
			fmt.Printf("    %s -> (default voice)\n", lang.Code)
		}
	}

	ctrl := speech.NewController(engine)
	fmt.Println("  Speaking a test sentence...")
	pb, err := ctrl.Speak(fallbackText, language.English)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	if err := pb.Wait(ctx); err != nil {
		fmt.Printf("  FAIL: playback: %v\n", err)
		return false
	}

	resetTerminal()
	if !e.confirm("Did you hear it?") {
		fmt.Println("  FAIL: speech not confirmed")
		return false
	}
	fmt.Println("  PASS: speech verified by user")
	return true
}
