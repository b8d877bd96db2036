package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoClient adapts an eino chat model, such as Volcengine Ark, to Client.
type EinoClient struct {
	model model.BaseChatModel
	name  string
}

func NewEinoClient(m model.BaseChatModel, name string) *EinoClient {
	return &EinoClient{model: m, name: name}
}

type ArkConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
}

func NewArkClient(ctx context.Context, cfg ArkConfig) (*EinoClient, error) {
	maxTokens := cfg.MaxTokens
	temperature := cfg.Temperature
	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("create ark chat model: %w", err)
	}
	return NewEinoClient(chatModel, cfg.Model), nil
}

func (c *EinoClient) Stream(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	stream, err := c.model.Stream(ctx, toSchemaMessages(req.Messages), requestOptions(req)...)
	if err != nil {
		return Response{}, fmt.Errorf("eino stream: %w", err)
	}
	defer stream.Close()

	var out strings.Builder
	resp := Response{Model: c.name}
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			resp.Text = out.String()
			return resp, fmt.Errorf("eino stream recv: %w", err)
		}
		if chunk == nil {
			continue
		}
		if chunk.ResponseMeta != nil && chunk.ResponseMeta.FinishReason != "" {
			resp.FinishReason = chunk.ResponseMeta.FinishReason
		}
		if chunk.Content == "" {
			continue
		}
		out.WriteString(chunk.Content)
		if onDelta != nil {
			if err := onDelta(chunk.Content); err != nil {
				resp.Text = out.String()
				return resp, err
			}
		}
	}
	resp.Text = out.String()
	return resp, nil
}

func (c *EinoClient) Complete(ctx context.Context, req Request) (Response, error) {
	msg, err := c.model.Generate(ctx, toSchemaMessages(req.Messages), requestOptions(req)...)
	if err != nil {
		return Response{}, fmt.Errorf("eino generate: %w", err)
	}
	resp := Response{Text: msg.Content, Model: c.name}
	if msg.ResponseMeta != nil {
		resp.FinishReason = msg.ResponseMeta.FinishReason
	}
	return resp, nil
}

func requestOptions(req Request) []model.Option {
	opts := []model.Option{model.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	return opts
}

func toSchemaMessages(msgs []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, schema.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		default:
			if m.ImageURL == "" {
				out = append(out, schema.UserMessage(m.Content))
				continue
			}
			out = append(out, &schema.Message{
				Role: schema.User,
				MultiContent: []schema.ChatMessagePart{
					{Type: schema.ChatMessagePartTypeText, Text: m.Content},
					{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{URL: m.ImageURL}},
				},
			})
		}
	}
	return out
}
