package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"

	"tolk/audio"
	"tolk/netclient"
)

const cloudURL = "https://texttospeech.googleapis.com/v1/text:synthesize"

// CloudVoices are the WaveNet voices used per target locale.
var CloudVoices = []Voice{
	{Name: "cmn-CN-Wavenet-B", Locale: "zh-CN"},
	{Name: "en-US-Wavenet-D", Locale: "en-US"},
	{Name: "ja-JP-Wavenet-B", Locale: "ja-JP"},
}

// Cloud synthesizes with Google Text-to-Speech and plays the returned
// LINEAR16 audio locally.
type Cloud struct {
	client       *netclient.TracedClient
	apiURL       string
	player       audio.Player
	credential   func() string
	speakingRate float64
}

func NewCloud(apiURL string, player audio.Player, credential func() string, speakingRate float64) *Cloud {
	if apiURL == "" {
		apiURL = cloudURL
	}
	if speakingRate <= 0 {
		speakingRate = 1.0
	}
	return &Cloud{
		client:       netclient.New(apiURL),
		apiURL:       apiURL,
		player:       player,
		credential:   credential,
		speakingRate: speakingRate,
	}
}

func (c *Cloud) Name() string { return "cloud" }

func (c *Cloud) Voices(context.Context) ([]Voice, error) {
	return CloudVoices, nil
}

type synthesizeRequest struct {
	Input struct {
		SSML string `json:"ssml"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name,omitempty"`
		SSMLGender   string `json:"ssmlGender"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string  `json:"audioEncoding"`
		SpeakingRate  float64 `json:"speakingRate"`
	} `json:"audioConfig"`
}

func ssml(text string) string {
	var b bytes.Buffer
	b.WriteString("<speak>")
	xml.EscapeText(&b, []byte(text))
	b.WriteString("</speak>")
	return b.String()
}

// Synthesize returns the decoded audio for text without playing it.
func (c *Cloud) Synthesize(ctx context.Context, text string, voice Voice) (*audio.PCM, error) {
	cred := ""
	if c.credential != nil {
		cred = c.credential()
	}
	if cred == "" {
		return nil, netclient.MissingCredential(c.Name())
	}

	var body synthesizeRequest
	body.Input.SSML = ssml(text)
	body.Voice.LanguageCode = voice.Locale
	body.Voice.Name = voice.Name
	body.Voice.SSMLGender = "NEUTRAL"
	body.AudioConfig.AudioEncoding = "LINEAR16"
	body.AudioConfig.SpeakingRate = c.speakingRate

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", cred)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, netclient.Network(c.Name(), err)
	}
	if err := netclient.FromStatus(c.Name(), resp.StatusCode, resp.Body); err != nil {
		return nil, err
	}

	var out struct {
		AudioContent string `json:"audioContent"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("cloud tts response parse error: %w", err)
	}
	if out.AudioContent == "" {
		return nil, netclient.NoText(c.Name())
	}
	data, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("cloud tts audio: %w", err)
	}
	pcm, err := audio.ParseWAV(data)
	if err != nil {
		return nil, fmt.Errorf("cloud tts audio: %w", err)
	}
	return pcm, nil
}

func (c *Cloud) Speak(ctx context.Context, text string, voice Voice) error {
	pcm, err := c.Synthesize(ctx, text, voice)
	if err != nil {
		return err
	}
	return c.player.Play(ctx, pcm.Samples, pcm.SampleRate, pcm.Channels)
}
