package speech

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// command describes how a platform speech tool is driven.
type command struct {
	name        string
	bin         string
	voicesArgs  []string
	parseVoices func(out []byte) []Voice
	// speakArgs returns the argv and the text fed on stdin.
	speakArgs func(text string, v Voice) (argv []string, stdin string)
}

// runFunc executes argv and returns stdout. Cancelling ctx kills the
// process.
type runFunc func(ctx context.Context, argv []string, stdin string) ([]byte, error)

func execRun(ctx context.Context, argv []string, stdin string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", argv[0], err, msg)
		}
		return nil, fmt.Errorf("%s: %w", argv[0], err)
	}
	return out, nil
}

// Native speaks through the operating system's speech command.
type Native struct {
	cmd command
	run runFunc
}

func newNative(cmd command) *Native {
	return &Native{cmd: cmd, run: execRun}
}

func (n *Native) Name() string { return "native/" + n.cmd.name }

func (n *Native) Voices(ctx context.Context) ([]Voice, error) {
	if n.cmd.voicesArgs == nil {
		return nil, nil
	}
	out, err := n.run(ctx, n.cmd.voicesArgs, "")
	if err != nil {
		return nil, fmt.Errorf("listing voices: %w", err)
	}
	return n.cmd.parseVoices(out), nil
}

func (n *Native) Speak(ctx context.Context, text string, voice Voice) error {
	argv, stdin := n.cmd.speakArgs(text, voice)
	_, err := n.run(ctx, argv, stdin)
	return err
}

// espeak-ng --voices:
//
//	Pty Language       Age/Gender VoiceName          File                 Other Languages
//	 5  en-us            --/M      English_(America)  gmw/en-US            (en 2)
var espeak = command{
	name:       "espeak-ng",
	bin:        "espeak-ng",
	voicesArgs: []string{"espeak-ng", "--voices"},
	parseVoices: func(out []byte) []Voice {
		var voices []Voice
		sc := bufio.NewScanner(bytes.NewReader(out))
		for sc.Scan() {
			f := strings.Fields(sc.Text())
			if len(f) < 4 || f[0] == "Pty" {
				continue
			}
			voices = append(voices, Voice{Name: f[1], Locale: f[1]})
		}
		return voices
	},
	speakArgs: func(text string, v Voice) ([]string, string) {
		argv := []string{"espeak-ng", "--stdin"}
		switch {
		case v.Name != "":
			argv = append(argv, "-v", v.Name)
		case v.Locale != "":
			argv = append(argv, "-v", strings.ToLower(v.Locale))
		}
		return argv, text
	},
}

// spd-say -L:
//
//	NAME                 LANGUAGE   VARIANT
//	Chinese_(Mandarin)   cmn        none
var spdSay = command{
	name:       "spd-say",
	bin:        "spd-say",
	voicesArgs: []string{"spd-say", "-L"},
	parseVoices: func(out []byte) []Voice {
		var voices []Voice
		sc := bufio.NewScanner(bytes.NewReader(out))
		for sc.Scan() {
			f := strings.Fields(sc.Text())
			if len(f) < 2 || f[0] == "NAME" {
				continue
			}
			voices = append(voices, Voice{Name: f[0], Locale: f[1]})
		}
		return voices
	},
	speakArgs: func(text string, v Voice) ([]string, string) {
		argv := []string{"spd-say", "-w"}
		if v.Locale != "" {
			lang, _, _ := strings.Cut(normLocale(v.Locale), "-")
			argv = append(argv, "-l", lang)
		}
		if v.Name != "" {
			argv = append(argv, "-y", v.Name)
		}
		return append(argv, "--", text), ""
	},
}

// say -v '?':
//
//	Kyoko               ja_JP    # こんにちは、私の名前はKyokoです。
//	Bad News            en_US    # The light you see at the end of the tunnel...
var sayVoiceLine = regexp.MustCompile(`^(.+?)\s+([a-z]{2,3}[_-][A-Za-z0-9]+)\s+#`)

var say = command{
	name:       "say",
	bin:        "say",
	voicesArgs: []string{"say", "-v", "?"},
	parseVoices: func(out []byte) []Voice {
		var voices []Voice
		sc := bufio.NewScanner(bytes.NewReader(out))
		for sc.Scan() {
			m := sayVoiceLine.FindStringSubmatch(sc.Text())
			if m == nil {
				continue
			}
			voices = append(voices, Voice{Name: strings.TrimSpace(m[1]), Locale: m[2]})
		}
		return voices
	},
	speakArgs: func(text string, v Voice) ([]string, string) {
		argv := []string{"say"}
		if v.Name != "" {
			argv = append(argv, "-v", v.Name)
		}
		return append(argv, "-f", "-"), text
	},
}

const psPrelude = `Add-Type -AssemblyName System.Speech; $s = New-Object System.Speech.Synthesis.SpeechSynthesizer; `

// PowerShell voice list, one "name|culture" per line.
var systemSpeech = command{
	name: "System.Speech",
	bin:  "powershell",
	voicesArgs: []string{"powershell", "-NoProfile", "-NonInteractive", "-Command",
		psPrelude + `$s.GetInstalledVoices() | ForEach-Object { $_.VoiceInfo.Name + '|' + $_.VoiceInfo.Culture.Name }`},
	parseVoices: func(out []byte) []Voice {
		var voices []Voice
		sc := bufio.NewScanner(bytes.NewReader(out))
		for sc.Scan() {
			name, locale, ok := strings.Cut(strings.TrimSpace(sc.Text()), "|")
			if !ok || name == "" {
				continue
			}
			voices = append(voices, Voice{Name: name, Locale: locale})
		}
		return voices
	},
	speakArgs: func(text string, v Voice) ([]string, string) {
		script := psPrelude
		if v.Name != "" {
			script += fmt.Sprintf("$s.SelectVoice('%s'); ", strings.ReplaceAll(v.Name, "'", "''"))
		}
		script += `$s.Speak([Console]::In.ReadToEnd())`
		return []string{"powershell", "-NoProfile", "-NonInteractive", "-Command", script}, text
	},
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// firstAvailable returns the first command whose binary is on PATH.
func firstAvailable(cmds ...command) (*Native, error) {
	var names []string
	for _, c := range cmds {
		if _, err := lookPath(c.bin); err == nil {
			return newNative(c), nil
		}
		names = append(names, c.name)
	}
	return nil, fmt.Errorf("no speech command found (tried %s)", strings.Join(names, ", "))
}
