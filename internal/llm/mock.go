package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MockClient streams a deterministic reply word by word for local runs and tests.
type MockClient struct {
	// Delay is slept between deltas to mimic token pacing.
	Delay time.Duration
}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Stream(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	text := buildMockReply(req)
	words := strings.SplitAfter(text, " ")
	var out strings.Builder
	for _, w := range words {
		select {
		case <-ctx.Done():
			return Response{Text: out.String(), Model: "mock"}, ctx.Err()
		default:
		}
		if c.Delay > 0 {
			select {
			case <-ctx.Done():
				return Response{Text: out.String(), Model: "mock"}, ctx.Err()
			case <-time.After(c.Delay):
			}
		}
		out.WriteString(w)
		if onDelta != nil {
			if err := onDelta(w); err != nil {
				return Response{Text: out.String(), Model: "mock"}, err
			}
		}
	}
	return Response{Text: out.String(), Model: "mock", FinishReason: "stop"}, nil
}

func (c *MockClient) Complete(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}
	return Response{Text: buildMockReply(req), Model: "mock", FinishReason: "stop"}, nil
}

func buildMockReply(req Request) string {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			last = strings.TrimSpace(req.Messages[i].Content)
			break
		}
	}
	if last == "" {
		return "gm fren! I am listening."
	}
	return fmt.Sprintf("gm fren! You said: %s. Wen moon? Soon.", last)
}
