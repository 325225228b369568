// Package config loads tolk's settings from defaults, an optional
// tolk.yaml, a .env file and TOLK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"tolk/encoder"
)

type Config struct {
	Transcriber TranscriberConfig `mapstructure:"transcriber"`
	Translator  TranslatorConfig  `mapstructure:"translator"`
	Speech      SpeechConfig      `mapstructure:"speech"`
	Audio       AudioConfig       `mapstructure:"audio"`
	Store       StoreConfig       `mapstructure:"store"`

	// Credential seeds the store when no credential has been saved yet.
	Credential string `mapstructure:"credential"`
}

type TranscriberConfig struct {
	Provider string `mapstructure:"provider"` // google, groq, openai
	Language string `mapstructure:"language"` // BCP-47 code of the spoken language
	Endpoint string `mapstructure:"endpoint"`
	Model    string `mapstructure:"model"`
}

type TranslatorConfig struct {
	Provider string `mapstructure:"provider"` // gemini, openai, groq
	Model    string `mapstructure:"model"`
	Endpoint string `mapstructure:"endpoint"`
}

type SpeechConfig struct {
	Engine       string  `mapstructure:"engine"` // native or cloud
	Endpoint     string  `mapstructure:"endpoint"`
	SpeakingRate float64 `mapstructure:"speaking_rate"`
}

type AudioConfig struct {
	Format string `mapstructure:"format"` // flac or wav
	Device string `mapstructure:"device"` // capture device name, empty for system default
	Beep   bool   `mapstructure:"beep"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transcriber.provider", "google")
	v.SetDefault("transcriber.language", "en-US")
	v.SetDefault("transcriber.endpoint", "")
	v.SetDefault("transcriber.model", "")
	v.SetDefault("translator.provider", "gemini")
	v.SetDefault("translator.model", "gemini-2.0-flash-exp")
	v.SetDefault("translator.endpoint", "")
	v.SetDefault("speech.engine", "native")
	v.SetDefault("speech.endpoint", "")
	v.SetDefault("speech.speaking_rate", 1.0)
	v.SetDefault("audio.format", encoder.FormatFLAC)
	v.SetDefault("audio.device", "")
	v.SetDefault("audio.beep", true)
	v.SetDefault("store.path", "")
	v.SetDefault("credential", "")
}

// Load reads the configuration. If configFile is empty the search order
// is ./tolk.yaml, $XDG_CONFIG_HOME/tolk/tolk.yaml, /etc/tolk/tolk.yaml, and
// a missing file is not an error. A .env in the working directory is
// loaded first; variables already set in the environment win.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("tolk")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "tolk"))
		}
		v.AddConfigPath("/etc/tolk")
	}

	// TOLK_TRANSCRIBER_PROVIDER, TOLK_SPEECH_ENGINE, ...
	v.SetEnvPrefix("TOLK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if cfg.Credential == "" {
		cfg.Credential = os.Getenv("GOOGLE_API_KEY")
	}
	cfg.Credential = resolveEnvRef(cfg.Credential)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the rest of the program cannot act on.
func (c *Config) Validate() error {
	switch c.Audio.Format {
	case encoder.FormatFLAC, encoder.FormatWAV:
	default:
		return fmt.Errorf("audio.format: unknown format %q (want flac or wav)", c.Audio.Format)
	}
	switch c.Speech.Engine {
	case "native", "cloud":
	default:
		return fmt.Errorf("speech.engine: unknown engine %q (want native or cloud)", c.Speech.Engine)
	}
	if c.Speech.SpeakingRate < 0.25 || c.Speech.SpeakingRate > 4.0 {
		return fmt.Errorf("speech.speaking_rate: %.2f out of range [0.25, 4.0]", c.Speech.SpeakingRate)
	}
	return nil
}

// resolveEnvRef replaces a "${VAR_NAME}" value with that variable.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		return os.Getenv(val[2 : len(val)-1])
	}
	return val
}
