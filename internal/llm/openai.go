package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wenmoon/mascot/internal/reliability"
)

// OpenAIClient talks to an OpenAI-compatible /v1/chat/completions endpoint.
type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  zerolog.Logger

	retryBase time.Duration
	retryCap  time.Duration
}

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func NewOpenAIClient(cfg OpenAIConfig, logger zerolog.Logger) *OpenAIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &OpenAIClient{
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		client:    &http.Client{Timeout: timeout},
		logger:    logger.With().Str("component", "llm_openai").Logger(),
		retryBase: 250 * time.Millisecond,
		retryCap:  2 * time.Second,
	}
}

type chatPayload struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type streamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

type completion struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *OpenAIClient) Stream(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	res, err := c.send(ctx, req, true)
	if err != nil {
		return Response{}, err
	}
	defer res.Body.Close()
	return consumeSSE(res.Body, onDelta)
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	res, err := c.send(ctx, req, false)
	if err != nil {
		return Response{}, err
	}
	defer res.Body.Close()

	var out completion
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("decode completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return Response{Model: out.Model}, nil
	}
	return Response{
		Text:         out.Choices[0].Message.Content,
		Model:        out.Model,
		FinishReason: out.Choices[0].FinishReason,
	}, nil
}

// send posts the request and retries once on a retryable status. Nothing has been
// streamed to the caller at that point, so the retry is invisible to it.
func (c *OpenAIClient) send(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	payload, err := json.Marshal(chatPayload{
		Model:       c.model,
		Messages:    toChatMessages(req.Messages),
		Stream:      stream,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	const maxAttempts = 2
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			wait := reliability.ExponentialBackoff(attempt-1, c.retryBase, c.retryCap)
			c.logger.Warn().Err(lastErr).Dur("backoff", wait).Msg("retrying chat completion")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		if stream {
			httpReq.Header.Set("Accept", "text/event-stream")
		}

		res, err := c.client.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("send request: %w", err)
		}
		if res.StatusCode >= 200 && res.StatusCode < 300 {
			return res, nil
		}
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		res.Body.Close()
		lastErr = &StatusError{Provider: "openai", Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
		if !reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func toChatMessages(msgs []Message) []chatMessage {
	out := make([]chatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.ImageURL == "" {
			out = append(out, chatMessage{Role: string(m.Role), Content: m.Content})
			continue
		}
		out = append(out, chatMessage{
			Role: string(m.Role),
			Content: []contentPart{
				{Type: "text", Text: m.Content},
				{Type: "image_url", ImageURL: &imageURL{URL: m.ImageURL}},
			},
		})
	}
	return out
}

// consumeSSE reads `data:` lines until [DONE]. Lines that fail to parse are skipped
// rather than aborting the reply.
func consumeSSE(body io.Reader, onDelta DeltaHandler) (Response, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		out  strings.Builder
		resp Response
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			resp.Skipped++
			continue
		}
		if chunk.Model != "" {
			resp.Model = chunk.Model
		}
		for _, choice := range chunk.Choices {
			if choice.FinishReason != nil {
				resp.FinishReason = *choice.FinishReason
			}
			delta := choice.Delta.Content
			if delta == "" {
				continue
			}
			out.WriteString(delta)
			if onDelta != nil {
				if err := onDelta(delta); err != nil {
					resp.Text = out.String()
					return resp, err
				}
			}
		}
	}
	resp.Text = out.String()
	if err := scanner.Err(); err != nil {
		return resp, fmt.Errorf("stream read: %w", err)
	}
	return resp, nil
}
