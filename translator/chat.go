package translator

import (
	"context"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"tolk/language"
	"tolk/netclient"
)

const (
	openaiBaseURL = "https://api.openai.com/v1"
	openaiModel   = openai.GPT4oMini
	groqBaseURL   = "https://api.groq.com/openai/v1"
	groqModel     = "llama-3.3-70b-versatile"
)

// Chat translates through an OpenAI compatible chat completions API.
type Chat struct {
	name    string
	baseURL string
	model   string
	client  *netclient.TracedClient
}

func NewChat(name, baseURL, model string) *Chat {
	return &Chat{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  netclient.New(baseURL),
	}
}

func (c *Chat) Name() string  { return c.name }
func (c *Chat) Model() string { return c.model }

func (c *Chat) Translate(ctx context.Context, text string, target language.Target, credential string) (*Result, error) {
	if credential == "" {
		return nil, netclient.MissingCredential(c.name)
	}
	start := time.Now()

	var metrics *netclient.NetworkMetrics
	cfg := openai.DefaultConfig(credential)
	cfg.BaseURL = c.baseURL
	cfg.HTTPClient = c.client.Doer(func(m *netclient.NetworkMetrics) { metrics = m })
	client := openai.NewClientWithConfig(cfg)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: Prompt(text, target)},
		},
	})
	if err != nil {
		return nil, netclient.FromOpenAI(c.name, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, netclient.NoText(c.name)
	}

	return &Result{
		Text:     resp.Choices[0].Message.Content,
		Language: target,
		Model:    c.model,
		Elapsed:  time.Since(start),
		Metrics:  metrics,
	}, nil
}
