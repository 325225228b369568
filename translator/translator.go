// Package translator asks a hosted language model to translate the
// transcript into one target language.
package translator

import (
	"context"
	"fmt"
	"time"

	"tolk/language"
	"tolk/netclient"
)

type Result struct {
	Text     string
	Language language.Target
	Model    string
	Elapsed  time.Duration
	Metrics  *netclient.NetworkMetrics
}

// Translator sends one request per call. Responses are returned verbatim;
// a response without text is netclient.ErrNoText.
type Translator interface {
	Name() string
	Model() string
	Translate(ctx context.Context, text string, target language.Target, credential string) (*Result, error)
}

// Prompt is the single-turn instruction sent for every translation.
func Prompt(text string, target language.Target) string {
	return fmt.Sprintf("You are a professional translator. Translate the following text to %s. "+
		"Only reply the best translation without other words.\n Text: \"%s\"", target.Name, text)
}

type Config struct {
	Provider string // gemini, openai or groq
	Model    string
	Endpoint string
}

func New(cfg Config) (Translator, error) {
	switch cfg.Provider {
	case "", "gemini":
		return NewGemini(cfg.Endpoint, cfg.Model), nil
	case "openai":
		return NewChat("openai", withDefault(cfg.Endpoint, openaiBaseURL), withDefault(cfg.Model, openaiModel)), nil
	case "groq":
		return NewChat("groq", withDefault(cfg.Endpoint, groqBaseURL), withDefault(cfg.Model, groqModel)), nil
	default:
		return nil, fmt.Errorf("unknown translation provider %q", cfg.Provider)
	}
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
