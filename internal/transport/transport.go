package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/wenmoon/mascot/internal/protocol"
)

var ErrClosed = errors.New("transport closed")

// Transport carries user messages to the server and turn events back. Events of a
// superseded turn may still arrive after a newer Send; callers filter by turn id.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg protocol.UserMessage) error
	// Cancel asks the server to stop the session's running turn.
	Cancel(ctx context.Context) error
	Receive(ctx context.Context) (protocol.Event, error)
	Close() error
}

// Mode selects how Dial connects.
type Mode string

const (
	ModeAuto Mode = "auto"
	ModeWS   Mode = "ws"
	ModeREST Mode = "rest"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeWS, "websocket":
		return ModeWS, nil
	case ModeREST, "sse", "http":
		return ModeREST, nil
	default:
		return "", fmt.Errorf("unknown transport %q", raw)
	}
}

const (
	wsPath     = "/v1/chat/ws"
	streamPath = "/v1/chat/stream"

	dialTimeout  = 5 * time.Second
	writeTimeout = 5 * time.Second
	eventBuffer  = 64
)

// Dial picks the transport once, at session start. In auto mode the websocket is
// used when the server accepts it and REST streaming otherwise.
func Dial(ctx context.Context, baseURL, sessionID string, mode Mode) (Transport, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", baseURL)
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("session id is required")
	}

	switch mode {
	case ModeREST:
		return NewREST(base.String(), sessionID, nil), nil
	case ModeWS:
		return DialWebSocket(ctx, base.String(), sessionID)
	default:
		ws, err := DialWebSocket(ctx, base.String(), sessionID)
		if err == nil {
			return ws, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return NewREST(base.String(), sessionID, nil), nil
	}
}

func userMessage(sessionID string, msg protocol.UserMessage) protocol.UserMessage {
	msg.Type = protocol.TypeUserMessage
	if msg.SessionID == "" {
		msg.SessionID = sessionID
	}
	return msg
}
