package transcriber

import (
	"context"
	"fmt"
	"strings"

	"tolk/audio"
	"tolk/netclient"
)

type Segment struct {
	Text         string
	NoSpeechProb float64
	AvgLogProb   float64
	Start        float64
	End          float64
}

type Result struct {
	Text       string
	NoSpeech   bool
	Confidence float64
	Language   string
	Duration   float64 // audio length reported by the service, seconds
	RateLimit  string
	Segments   []Segment
	Metrics    *netclient.NetworkMetrics
}

// Transcriber turns one recorded asset into text. Implementations send a
// single request per call and never retry.
type Transcriber interface {
	Name() string
	// Warm opens a connection ahead of the first request.
	Warm()
	Transcribe(ctx context.Context, asset *audio.Asset, credential string) (*Result, error)
}

type Config struct {
	Provider string // google, groq or openai
	Language string // BCP-47, e.g. en-US
	Endpoint string // overrides the provider's default URL
	Model    string
}

func New(cfg Config) (Transcriber, error) {
	switch cfg.Provider {
	case "", "google":
		return NewGoogle(cfg.Endpoint, cfg.Language), nil
	case "groq":
		return NewWhisper("groq", withDefault(cfg.Endpoint, groqBaseURL), withDefault(cfg.Model, groqModel), cfg.Language), nil
	case "openai":
		return NewWhisper("openai", withDefault(cfg.Endpoint, openaiBaseURL), withDefault(cfg.Model, openaiModel), cfg.Language), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.Provider)
	}
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// finish trims the text and marks empty results as no-speech.
func finish(r *Result) *Result {
	r.Text = strings.TrimSpace(r.Text)
	r.NoSpeech = r.Text == ""
	return r
}

// FormatMetrics renders the per-request report shown after a transcription.
func FormatMetrics(asset *audio.Asset, r *Result) []string {
	rawSize := asset.Frames * 2
	encodedSize := uint64(len(asset.Data))
	compressionPct := 0.0
	if rawSize > 0 {
		compressionPct = (1.0 - float64(encodedSize)/float64(rawSize)) * 100
	}

	lines := []string{
		fmt.Sprintf("audio:      %.1fs | %.1f KB → %.1f KB (%.0f%% smaller)",
			asset.Duration.Seconds(), float64(rawSize)/1024, float64(encodedSize)/1024, compressionPct),
		fmt.Sprintf("format:     %s", asset.Format),
		fmt.Sprintf("encode:     %dms (concurrent)", asset.EncodeTime.Milliseconds()),
	}
	if m := r.Metrics; m != nil {
		reusedStatus := ""
		if m.ConnReused {
			reusedStatus = " (reused)"
		}
		lines = append(lines,
			fmt.Sprintf("conn_wait:  %dms%s", m.ConnWait.Milliseconds(), reusedStatus),
			fmt.Sprintf("dns:        %dms", m.DNS.Milliseconds()),
			fmt.Sprintf("tcp:        %dms", m.TCP.Milliseconds()),
			fmt.Sprintf("tls:        %dms", m.TLS.Milliseconds()),
			fmt.Sprintf("ttfb:       %dms", m.TTFB.Milliseconds()),
			fmt.Sprintf("total:      %dms", m.Total.Milliseconds()),
		)
	}
	if r.Duration > 0 {
		lines = append(lines, fmt.Sprintf("api_dur:    %.2fs", r.Duration))
	}
	if r.Confidence > 0 {
		lines = append(lines, fmt.Sprintf("confidence: %.4f", r.Confidence))
	}
	return lines
}
