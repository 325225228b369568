package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"tolk/audio"
	"tolk/config"
	"tolk/language"
	"tolk/log"
	"tolk/pipeline"
	"tolk/speech"
	"tolk/store"
)

// runTestMode drives the pipeline from stdin with audio taken from a WAV
// file. Speech output goes to a fake player, so no sound is made.
func runTestMode(cfg *config.Config, wavPath string) int {
	fakeCtx, err := audio.NewFakeContext(wavPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		return 1
	}

	player := &audio.FakePlayer{Duration: 200 * time.Millisecond}
	opts := appOptions{audioCtx: fakeCtx, player: player}
	if cfg.Speech.Engine != "cloud" {
		opts.engine = &speech.FakeEngine{Duration: 300 * time.Millisecond}
	}
	if cfg.Store.Path == "" {
		opts.store = store.NewMemory()
	}

	a, err := newApp(cfg, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	a.beeper.Disable()
	defer a.close()
	a.logSessionStart()

	r := pipeline.NewRunner(a.p, a.p.Load())
	defer r.Close()

	if err := drive(r, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	r.Wait()
	return 0
}

// drive executes one command per line until QUIT or end of input.
//
//	KEYDOWN | KEYUP          start / stop recording
//	WAIT                     wait for every in-flight task
//	TRANSLATE <CN|EN|JP>     translate the transcript
//	PLAY | STOP              start / stop playback
//	RESET | SAVE             clear everything / save the transcript
//	EDIT <text>              replace the transcript (\n for newlines)
//	CRED <value>             set the credential
//	BLUR | FOCUS             window focus change
//	SLEEP <ms>
//	PRINT                    write the state to out
//	QUIT
func drive(r *pipeline.Runner, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "KEYDOWN":
			report(r.StartRecording())
		case "KEYUP":
			report(r.StopRecording())
		case "WAIT":
			r.Wait()
		case "TRANSLATE":
			lang, err := language.Parse(arg)
			if err != nil {
				return err
			}
			r.Translate(lang)
		case "PLAY":
			report(r.Play())
		case "STOP":
			r.StopPlayback()
		case "RESET":
			r.Reset()
		case "SAVE":
			report(r.Save())
		case "EDIT":
			report(r.EditTranscript(strings.ReplaceAll(arg, `\n`, "\n")))
		case "CRED":
			report(r.SetCredential(arg))
		case "BLUR":
			r.FocusLost()
		case "FOCUS":
			r.FocusGained()
		case "SLEEP":
			ms, err := strconv.Atoi(arg)
			if err != nil {
				return fmt.Errorf("SLEEP %q: %w", arg, err)
			}
			time.Sleep(time.Duration(ms) * time.Millisecond)
		case "PRINT":
			printState(out, r.State())
		case "QUIT":
			return nil
		default:
			return fmt.Errorf("unknown command %q", cmd)
		}
	}
	return scanner.Err()
}

func report(s pipeline.State) {
	if s.Notice != "" {
		log.Info("notice: " + s.Notice)
	}
}

func printState(w io.Writer, s pipeline.State) {
	errText := ""
	if s.Err != nil {
		errText = describeErr(s.Err)
	}
	fmt.Fprintf(w, "transcript=%q translation=%q lang=%s recording=%t transcribing=%t translating=%t playing=%t notice=%q err=%q\n",
		s.Transcript, s.Translation, s.Language.Code,
		s.Recording, s.Transcribing, s.Translating, s.Playing, s.Notice, errText)
}
