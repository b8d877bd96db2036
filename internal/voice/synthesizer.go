package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wenmoon/mascot/internal/mood"
	"github.com/wenmoon/mascot/internal/reliability"
)

// Request is one phrase to synthesize.
type Request struct {
	Text         string
	VoiceID      string
	ModelID      string
	Settings     mood.VoiceSettings
	OutputFormat string
}

// Audio is a synthesized phrase, tagged with the model and voice that produced it.
type Audio struct {
	Data    []byte
	Format  string
	ModelID string
	VoiceID string
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Audio, error)
}

// StatusError is a non-2xx reply from a TTS vendor.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s tts status %d: %s", e.Provider, e.Code, e.Body)
}

func (e *StatusError) Retryable() bool {
	return reliability.IsRetryableHTTPStatus(e.Code)
}

// StreamError is an error message received on a realtime TTS socket.
type StreamError struct {
	Code      string
	Detail    string
	Retryable bool
}

func (e *StreamError) Error() string {
	if e.Code == "" {
		return "tts stream error: " + e.Detail
	}
	return fmt.Sprintf("tts stream error %s: %s", e.Code, e.Detail)
}

// Unconfigured stands in for a synthesizer whose credentials are missing.
type Unconfigured struct {
	Err error
}

func (u *Unconfigured) Synthesize(context.Context, Request) (Audio, error) {
	return Audio{}, u.Err
}

func (u *Unconfigured) ConfigError() error { return u.Err }

func CheckConfigured(s Synthesizer) error {
	if s == nil {
		return errors.New("tts synthesizer is not configured")
	}
	if cc, ok := s.(interface{ ConfigError() error }); ok {
		return cc.ConfigError()
	}
	return nil
}

// ContentType maps an ElevenLabs output_format onto a MIME type.
func ContentType(outputFormat string) string {
	f := strings.ToLower(strings.TrimSpace(outputFormat))
	switch {
	case f == "", strings.HasPrefix(f, "mp3"):
		return "audio/mpeg"
	case strings.HasPrefix(f, "pcm"):
		if _, rate, ok := strings.Cut(f, "_"); ok && rate != "" {
			return "audio/pcm;rate=" + rate
		}
		return "audio/pcm"
	case strings.HasPrefix(f, "ulaw"):
		return "audio/basic"
	case strings.HasPrefix(f, "opus"):
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

type voiceSettingsPayload struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// settingsPayload snaps stability onto the discrete levels the expressive model accepts.
func settingsPayload(s mood.VoiceSettings) voiceSettingsPayload {
	return voiceSettingsPayload{
		Stability:       snapStability(s.Stability),
		SimilarityBoost: clamp01(s.SimilarityBoost),
		Style:           clamp01(s.Style),
		UseSpeakerBoost: s.UseSpeakerBoost,
	}
}

func snapStability(v float64) float64 {
	best := mood.StabilityLevels[0]
	for _, level := range mood.StabilityLevels[1:] {
		if abs(v-level) < abs(v-best) {
			best = level
		}
	}
	return best
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
