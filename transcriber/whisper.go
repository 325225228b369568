package transcriber

import (
	"bytes"
	"context"
	"strings"

	"github.com/sashabaranov/go-openai"

	"tolk/audio"
	"tolk/netclient"
)

const (
	groqBaseURL   = "https://api.groq.com/openai/v1"
	groqModel     = "whisper-large-v3-turbo"
	openaiBaseURL = "https://api.openai.com/v1"
	openaiModel   = openai.Whisper1
)

// Whisper talks to any OpenAI compatible audio/transcriptions endpoint.
type Whisper struct {
	name    string
	baseURL string
	model   string
	lang    string
	client  *netclient.TracedClient
}

func NewWhisper(name, baseURL, model, lang string) *Whisper {
	return &Whisper{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		lang:    lang,
		client:  netclient.New(baseURL),
	}
}

func (w *Whisper) Name() string { return w.name }

func (w *Whisper) Warm() { w.client.Warm() }

// isoLanguage reduces a BCP-47 tag to the ISO-639-1 code Whisper wants.
func isoLanguage(tag string) string {
	lang, _, _ := strings.Cut(tag, "-")
	return strings.ToLower(lang)
}

func (w *Whisper) Transcribe(ctx context.Context, asset *audio.Asset, credential string) (*Result, error) {
	if credential == "" {
		return nil, netclient.MissingCredential(w.name)
	}

	var metrics *netclient.NetworkMetrics
	cfg := openai.DefaultConfig(credential)
	cfg.BaseURL = w.baseURL
	cfg.HTTPClient = w.client.Doer(func(m *netclient.NetworkMetrics) { metrics = m })
	client := openai.NewClientWithConfig(cfg)

	resp, err := client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: "audio." + asset.Format,
		Reader:   bytes.NewReader(asset.Data),
		Language: isoLanguage(w.lang),
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, netclient.FromOpenAI(w.name, err)
	}

	var segments []Segment
	for _, seg := range resp.Segments {
		segments = append(segments, Segment{
			Text:         seg.Text,
			NoSpeechProb: seg.NoSpeechProb,
			AvgLogProb:   seg.AvgLogprob,
			Start:        seg.Start,
			End:          seg.End,
		})
	}

	h := resp.Header()
	remaining := netclient.FirstNonEmpty(h, "x-ratelimit-remaining-requests")
	limit := netclient.FirstNonEmpty(h, "x-ratelimit-limit-requests")

	return finish(&Result{
		Text:      resp.Text,
		Language:  resp.Language,
		Duration:  resp.Duration,
		RateLimit: remaining + "/" + limit,
		Segments:  segments,
		Metrics:   metrics,
	}), nil
}
