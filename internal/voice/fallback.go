package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/wenmoon/mascot/internal/mood"
)

// Fallback prefers the expressive primary model and retries a failed phrase once on a
// simpler model and voice. The fallback model would read audio tags aloud, so they are
// stripped before the retry.
type Fallback struct {
	primary         Synthesizer
	fallback        Synthesizer
	fallbackVoiceID string
	fallbackModelID string
	logger          zerolog.Logger

	fallbacks atomic.Int64
}

func NewFallback(primary, fallback Synthesizer, fallbackVoiceID, fallbackModelID string, logger zerolog.Logger) *Fallback {
	if fallback == nil {
		fallback = primary
	}
	return &Fallback{
		primary:         primary,
		fallback:        fallback,
		fallbackVoiceID: strings.TrimSpace(fallbackVoiceID),
		fallbackModelID: strings.TrimSpace(fallbackModelID),
		logger:          logger.With().Str("component", "tts_fallback").Logger(),
	}
}

func (f *Fallback) Synthesize(ctx context.Context, req Request) (Audio, error) {
	audio, prErr := f.primary.Synthesize(ctx, req)
	if prErr == nil {
		return audio, nil
	}
	if errors.Is(prErr, context.Canceled) || errors.Is(prErr, context.DeadlineExceeded) || ctx.Err() != nil {
		return Audio{}, prErr
	}

	fbReq := f.fallbackRequest(req)
	f.fallbacks.Add(1)
	f.logger.Warn().
		Err(prErr).
		Str("model_id", req.ModelID).
		Str("fallback_model_id", fbReq.ModelID).
		Msg("primary tts failed; retrying on fallback model")

	audio, fbErr := f.fallback.Synthesize(ctx, fbReq)
	if fbErr != nil {
		return Audio{}, fmt.Errorf("tts primary failed: %v; tts fallback failed: %w", prErr, fbErr)
	}
	audio.ModelID = fbReq.ModelID
	audio.VoiceID = fbReq.VoiceID
	return audio, nil
}

// Fallbacks reports how many phrases needed the degraded path.
func (f *Fallback) Fallbacks() int64 {
	return f.fallbacks.Load()
}

func (f *Fallback) ConfigError() error {
	return CheckConfigured(f.primary)
}

func (f *Fallback) fallbackRequest(req Request) Request {
	out := req
	out.Text = mood.StripTags(req.Text)
	if f.fallbackVoiceID != "" {
		out.VoiceID = f.fallbackVoiceID
	}
	if f.fallbackModelID != "" {
		out.ModelID = f.fallbackModelID
	}
	return out
}
