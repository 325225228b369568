package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("GOOGLE_API_KEY", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transcriber.Provider != "google" || cfg.Transcriber.Language != "en-US" {
		t.Errorf("transcriber = %+v", cfg.Transcriber)
	}
	if cfg.Translator.Provider != "gemini" || cfg.Translator.Model != "gemini-2.0-flash-exp" {
		t.Errorf("translator = %+v", cfg.Translator)
	}
	if cfg.Speech.Engine != "native" || cfg.Speech.SpeakingRate != 1.0 {
		t.Errorf("speech = %+v", cfg.Speech)
	}
	if cfg.Audio.Format != "flac" || !cfg.Audio.Beep {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Credential != "" {
		t.Errorf("credential = %q", cfg.Credential)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "custom.yaml", `
transcriber:
  provider: groq
  language: ja-JP
translator:
  provider: openai
  model: gpt-4o-mini
speech:
  engine: cloud
  speaking_rate: 1.25
audio:
  format: wav
  beep: false
store:
  path: /tmp/tolk-state.json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transcriber.Provider != "groq" || cfg.Transcriber.Language != "ja-JP" {
		t.Errorf("transcriber = %+v", cfg.Transcriber)
	}
	if cfg.Translator.Model != "gpt-4o-mini" {
		t.Errorf("translator = %+v", cfg.Translator)
	}
	if cfg.Speech.Engine != "cloud" || cfg.Speech.SpeakingRate != 1.25 {
		t.Errorf("speech = %+v", cfg.Speech)
	}
	if cfg.Audio.Format != "wav" || cfg.Audio.Beep {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Store.Path != "/tmp/tolk-state.json" {
		t.Errorf("store = %+v", cfg.Store)
	}
}

func TestLoadSearchesWorkingDir(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	writeFile(t, dir, "tolk.yaml", "translator:\n  model: gemini-1.5-flash\n")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Translator.Model != "gemini-1.5-flash" {
		t.Errorf("model = %q", cfg.Translator.Model)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "tolk.yaml", "speech:\n  engine: cloud\n")
	t.Setenv("TOLK_SPEECH_ENGINE", "native")
	t.Setenv("TOLK_TRANSCRIBER_LANGUAGE", "zh-CN")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Speech.Engine != "native" {
		t.Errorf("engine = %q", cfg.Speech.Engine)
	}
	if cfg.Transcriber.Language != "zh-CN" {
		t.Errorf("language = %q", cfg.Transcriber.Language)
	}
}

func TestDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("TOLK_CREDENTIAL", "")
	os.Unsetenv("TOLK_CREDENTIAL")
	writeFile(t, dir, ".env", "TOLK_CREDENTIAL=from-dotenv\n")
	t.Cleanup(func() { os.Unsetenv("TOLK_CREDENTIAL") })

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Credential != "from-dotenv" {
		t.Errorf("credential = %q", cfg.Credential)
	}
}

func TestCredentialFallbacks(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	t.Setenv("GOOGLE_API_KEY", "google-key")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Credential != "google-key" {
		t.Errorf("credential = %q", cfg.Credential)
	}

	t.Setenv("MY_KEY", "referenced")
	t.Setenv("TOLK_CREDENTIAL", "${MY_KEY}")
	cfg, err = Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Credential != "referenced" {
		t.Errorf("credential = %q", cfg.Credential)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name, body, want string
	}{
		{"format", "audio:\n  format: mp3\n", "audio.format"},
		{"engine", "speech:\n  engine: festival\n", "speech.engine"},
		{"rate", "speech:\n  speaking_rate: 9\n", "speaking_rate"},
		{"yaml", "speech: [\n", "reading config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)
			path := writeFile(t, dir, "tolk.yaml", tt.body)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
