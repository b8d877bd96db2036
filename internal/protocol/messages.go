package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies payload variants on the SSE stream and the websocket.
type MessageType string

const (
	TypeUserMessage   MessageType = "user_message"
	TypeClientControl MessageType = "client_control"

	TypeState           MessageType = "state"
	TypeDelta           MessageType = "delta"
	TypeAudio           MessageType = "audio"
	TypeSpeakingStarted MessageType = "speaking_started"
	TypeSpeakingEnded   MessageType = "speaking_ended"
	TypeDone            MessageType = "done"
	TypeError           MessageType = "error"
)

// Client control actions.
const (
	ActionCancel = "cancel"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// UserMessage starts a turn. Empty mood/trend/stage are derived server-side.
type UserMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
	Mood      string      `json:"mood,omitempty"`
	Trend     string      `json:"trend,omitempty"`
	Stage     string      `json:"stage,omitempty"`
	ImageURL  string      `json:"image_url,omitempty"`
	Speak     *bool       `json:"speak,omitempty"`
}

// SpeakEnabled reports whether audio was requested. Audio is on unless disabled.
func (m UserMessage) SpeakEnabled() bool {
	return m.Speak == nil || *m.Speak
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
}

// Event is one server-to-client message. Fields unused by a type are omitted.
type Event struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	TurnID    string      `json:"turn_id,omitempty"`

	State string `json:"state,omitempty"`
	Mood  string `json:"mood,omitempty"`
	Trend string `json:"trend,omitempty"`
	Stage string `json:"stage,omitempty"`

	Text string `json:"text,omitempty"`

	Seq         int    `json:"seq,omitempty"`
	Format      string `json:"format,omitempty"`
	ModelID     string `json:"model_id,omitempty"`
	AudioBase64 string `json:"audio_base64,omitempty"`

	Code         string `json:"code,omitempty"`
	Message      string `json:"message,omitempty"`
	FallbackText string `json:"fallback_text,omitempty"`
}

// Terminal reports whether no further events follow for the turn. A failed turn
// ends with its error event, which follows the failed state.
func (e Event) Terminal() bool {
	if e.Type == TypeDone || e.Type == TypeError {
		return true
	}
	return e.Type == TypeState && e.State == "canceled"
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeUserMessage:
		var msg UserMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Text) == "" && strings.TrimSpace(msg.ImageURL) == "" {
			return nil, errors.New("invalid user_message: text or image_url is required")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Action != ActionCancel {
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// ParseEvent decodes a server event received by a client.
func ParseEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("invalid event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, errors.New("invalid event: missing type")
	}
	return ev, nil
}
