package transcriber

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"tolk/audio"
	"tolk/encoder"
	"tolk/netclient"
)

const googleURL = "https://speech.googleapis.com/v1/speech:recognize"

// Google calls the synchronous Speech-to-Text recognize method.
type Google struct {
	client *netclient.TracedClient
	apiURL string
	lang   string
}

func NewGoogle(apiURL, lang string) *Google {
	if apiURL == "" {
		apiURL = googleURL
	}
	if lang == "" {
		lang = "en-US"
	}
	return &Google{
		client: netclient.New(apiURL),
		apiURL: apiURL,
		lang:   lang,
	}
}

func (g *Google) Name() string { return "google" }

func (g *Google) Warm() { g.client.Warm() }

type googleRequest struct {
	Config struct {
		Encoding        string `json:"encoding"`
		SampleRateHertz int    `json:"sampleRateHertz"`
		LanguageCode    string `json:"languageCode"`
	} `json:"config"`
	Audio struct {
		Content string `json:"content"`
	} `json:"audio"`
}

type googleResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
		LanguageCode string `json:"languageCode"`
	} `json:"results"`
	TotalBilledTime string `json:"totalBilledTime"`
}

func googleEncoding(format string) string {
	if format == encoder.FormatWAV {
		return "LINEAR16"
	}
	return "FLAC"
}

func (g *Google) Transcribe(ctx context.Context, asset *audio.Asset, credential string) (*Result, error) {
	if credential == "" {
		return nil, netclient.MissingCredential(g.Name())
	}

	var body googleRequest
	body.Config.Encoding = googleEncoding(asset.Format)
	body.Config.SampleRateHertz = asset.SampleRate
	body.Config.LanguageCode = g.lang
	body.Audio.Content = base64.StdEncoding.EncodeToString(asset.Data)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", credential)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, netclient.Network(g.Name(), err)
	}
	if err := netclient.FromStatus(g.Name(), resp.StatusCode, resp.Body); err != nil {
		return nil, err
	}

	var gResp googleResponse
	if err := json.Unmarshal(resp.Body, &gResp); err != nil {
		return nil, fmt.Errorf("google response parse error: %w", err)
	}

	// each result covers a consecutive stretch of audio; take the best
	// alternative of each
	var parts []string
	var confSum float64
	var confN int
	lang := g.lang
	for _, r := range gResp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		best := r.Alternatives[0]
		if t := strings.TrimSpace(best.Transcript); t != "" {
			parts = append(parts, t)
		}
		if best.Confidence > 0 {
			confSum += best.Confidence
			confN++
		}
		if r.LanguageCode != "" {
			lang = r.LanguageCode
		}
	}
	var confidence float64
	if confN > 0 {
		confidence = confSum / float64(confN)
	}

	return finish(&Result{
		Text:       strings.Join(parts, " "),
		Confidence: confidence,
		Language:   lang,
		Metrics:    resp.Metrics,
	}), nil
}
