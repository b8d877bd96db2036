package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type ElevenLabsConfig struct {
	APIKey       string
	BaseURL      string
	WSBaseURL    string
	OutputFormat string
	Timeout      time.Duration
}

func (c ElevenLabsConfig) withDefaults() ElevenLabsConfig {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = "https://api.elevenlabs.io"
	}
	if strings.TrimSpace(c.WSBaseURL) == "" {
		c.WSBaseURL = "wss://api.elevenlabs.io"
	}
	if strings.TrimSpace(c.OutputFormat) == "" {
		c.OutputFormat = "mp3_44100_128"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	c.WSBaseURL = strings.TrimRight(c.WSBaseURL, "/")
	return c
}

// ElevenLabsREST synthesizes one phrase per POST /v1/text-to-speech/{voice}.
type ElevenLabsREST struct {
	cfg    ElevenLabsConfig
	client *http.Client
}

func NewElevenLabsREST(cfg ElevenLabsConfig) *ElevenLabsREST {
	cfg = cfg.withDefaults()
	return &ElevenLabsREST{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type ttsPayload struct {
	Text          string               `json:"text"`
	ModelID       string               `json:"model_id"`
	VoiceSettings voiceSettingsPayload `json:"voice_settings"`
}

const maxAudioBytes = 16 << 20

func (p *ElevenLabsREST) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if strings.TrimSpace(req.VoiceID) == "" {
		return Audio{}, fmt.Errorf("voice_id is required")
	}
	format := req.OutputFormat
	if format == "" {
		format = p.cfg.OutputFormat
	}

	payload, err := json.Marshal(ttsPayload{
		Text:          req.Text,
		ModelID:       req.ModelID,
		VoiceSettings: settingsPayload(req.Settings),
	})
	if err != nil {
		return Audio{}, fmt.Errorf("marshal tts request: %w", err)
	}

	u := p.cfg.BaseURL + "/v1/text-to-speech/" + url.PathEscape(req.VoiceID) + "?output_format=" + url.QueryEscape(format)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return Audio{}, fmt.Errorf("create tts request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", ContentType(format))
	httpReq.Header.Set("xi-api-key", p.cfg.APIKey)

	res, err := p.client.Do(httpReq)
	if err != nil {
		return Audio{}, fmt.Errorf("send tts request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Audio{}, &StatusError{Provider: "elevenlabs", Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, maxAudioBytes))
	if err != nil {
		return Audio{}, fmt.Errorf("read tts audio: %w", err)
	}
	return Audio{
		Data:    data,
		Format:  ContentType(format),
		ModelID: req.ModelID,
		VoiceID: req.VoiceID,
	}, nil
}
