package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wenmoon/mascot/internal/conversation"
	"github.com/wenmoon/mascot/internal/lifecycle"
	"github.com/wenmoon/mascot/internal/llm"
	"github.com/wenmoon/mascot/internal/memory"
	"github.com/wenmoon/mascot/internal/mood"
	"github.com/wenmoon/mascot/internal/observability"
	"github.com/wenmoon/mascot/internal/protocol"
	"github.com/wenmoon/mascot/internal/sentiment"
	"github.com/wenmoon/mascot/internal/voice"
)

var (
	ErrEmptyMessage   = errors.New("message text or image is required")
	ErrTurnSuperseded = errors.New("turn superseded by a newer message")
	ErrTurnCanceled   = errors.New("turn canceled by client")
	errSinkClosed     = errors.New("event sink closed")
)

// State is a step of the per-turn state machine.
type State string

const (
	StateIdle            State = "idle"
	StateStreamRequested State = "stream_requested"
	StateStreaming       State = "streaming"
	StateDraining        State = "draining"
	StateComplete        State = "complete"
	StateFailed          State = "failed"
	StateCanceled        State = "canceled"
)

// Request is one user message. Zero mood, trend and stage are derived.
type Request struct {
	SessionID string
	Text      string
	Mood      mood.Mood
	Trend     mood.Trend
	Stage     lifecycle.Stage
	ImageURL  string
	Speak     bool
}

type Result struct {
	SessionID    string          `json:"session_id"`
	TurnID       string          `json:"turn_id"`
	Text         string          `json:"text"`
	Mood         mood.Mood       `json:"mood"`
	Trend        mood.Trend      `json:"trend"`
	Stage        lifecycle.Stage `json:"stage"`
	State        State           `json:"state"`
	Phrases      int             `json:"phrases"`
	FallbackText string          `json:"fallback_text,omitempty"`
}

// SpeakRequest synthesizes one standalone line in the mascot's voice.
type SpeakRequest struct {
	Text  string
	Mood  mood.Mood
	Trend mood.Trend
	Stage lifecycle.Stage
}

// TurnError is a turn that failed after it started streaming. Partial holds the
// text streamed before the failure.
type TurnError struct {
	Source       string
	Err          error
	Partial      string
	FallbackText string
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Source, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// Sink receives the events of one turn. The orchestrator serializes calls.
// An error from Emit ends the turn as canceled.
type Sink interface {
	Emit(ev protocol.Event) error
}

type SinkFunc func(ev protocol.Event) error

func (f SinkFunc) Emit(ev protocol.Event) error { return f(ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(protocol.Event) error { return nil })

type Deps struct {
	LLM         llm.Client
	TTS         voice.Synthesizer
	Sentiment   sentiment.Classifier
	History     conversation.Store
	Transcripts memory.Store
	Clock       *lifecycle.Clock
	Voices      lifecycle.Voices
	Metrics     *observability.Metrics
	Logger      zerolog.Logger
}

type Options struct {
	Temperature       float32
	MaxTokens         int
	HistoryMaxEntries int
	TurnTimeout       time.Duration
	PhraseMinChars    int
	PhraseMaxChars    int
	TTSModelID        string
	OutputFormat      string
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 220
	}
	if o.HistoryMaxEntries <= 0 {
		o.HistoryMaxEntries = conversation.DefaultMaxEntries
	}
	if o.TTSModelID == "" {
		o.TTSModelID = "eleven_v3"
	}
	if o.OutputFormat == "" {
		o.OutputFormat = "mp3_44100_128"
	}
	return o
}
