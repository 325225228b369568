package translator

import (
	"context"
	"strings"
	"time"

	"google.golang.org/genai"

	"tolk/language"
	"tolk/netclient"
)

const (
	geminiBaseURL    = "https://generativelanguage.googleapis.com/"
	geminiAPIVersion = "v1beta"
	DefaultModel     = "gemini-2.0-flash-exp"
)

// Gemini calls models/{model}:generateContent through the genai SDK.
// baseURL is the service root; the API version is appended by the SDK.
type Gemini struct {
	client  *netclient.TracedClient
	baseURL string
	model   string
}

func NewGemini(baseURL, model string) *Gemini {
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{
		client:  netclient.New(baseURL),
		baseURL: strings.TrimRight(baseURL, "/") + "/",
		model:   model,
	}
}

func (g *Gemini) Name() string  { return "gemini" }
func (g *Gemini) Model() string { return g.model }

// Translate builds a client per call: the credential may change between
// calls, the pooled connections do not.
func (g *Gemini) Translate(ctx context.Context, text string, target language.Target, credential string) (*Result, error) {
	if credential == "" {
		return nil, netclient.MissingCredential(g.Name())
	}
	start := time.Now()

	var metrics *netclient.NetworkMetrics
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     credential,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.client.HTTPClient(func(m *netclient.NetworkMetrics) { metrics = m }),
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    g.baseURL,
			APIVersion: geminiAPIVersion,
		},
	})
	if err != nil {
		return nil, err
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(Prompt(text, target)), nil)
	if err != nil {
		return nil, netclient.FromGenAI(g.Name(), err)
	}
	// concatenation of the first candidate's text parts
	out := resp.Text()
	if out == "" {
		return nil, netclient.NoText(g.Name())
	}

	return &Result{
		Text:     out,
		Language: target,
		Model:    g.model,
		Elapsed:  time.Since(start),
		Metrics:  metrics,
	}, nil
}
