package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/wenmoon/mascot/internal/reliability"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat entry; ImageURL attaches a still frame to a user message.
type Message struct {
	Role     Role
	Content  string
	ImageURL string
}

type Request struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

type Response struct {
	Text         string
	Model        string
	FinishReason string
	// Skipped counts stream lines that could not be parsed.
	Skipped int
}

// DeltaHandler receives streamed text fragments. Returning an error aborts the stream.
type DeltaHandler func(delta string) error

// Client is a chat-completion backend.
type Client interface {
	Stream(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error)
	Complete(ctx context.Context, req Request) (Response, error)
}

// StatusError is a non-2xx reply from a vendor.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s http status %d: %s", e.Provider, e.Code, e.Body)
}

func (e *StatusError) Retryable() bool {
	return reliability.IsRetryableHTTPStatus(e.Code)
}

func IsRetryable(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Retryable()
}

// Unconfigured stands in for a provider whose credentials are missing.
type Unconfigured struct {
	Err error
}

func (u *Unconfigured) Stream(context.Context, Request, DeltaHandler) (Response, error) {
	return Response{}, u.Err
}

func (u *Unconfigured) Complete(context.Context, Request) (Response, error) {
	return Response{}, u.Err
}

func (u *Unconfigured) ConfigError() error { return u.Err }

// CheckConfigured reports the configuration error of a client that cannot serve requests.
func CheckConfigured(c Client) error {
	if c == nil {
		return errors.New("llm client is not configured")
	}
	if cc, ok := c.(interface{ ConfigError() error }); ok {
		return cc.ConfigError()
	}
	return nil
}
