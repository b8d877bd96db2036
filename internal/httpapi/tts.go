package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/wenmoon/mascot/internal/audio"
	"github.com/wenmoon/mascot/internal/chat"
	"github.com/wenmoon/mascot/internal/lifecycle"
	"github.com/wenmoon/mascot/internal/mood"
	"github.com/wenmoon/mascot/internal/sentiment"
)

type ttsRequest struct {
	Text  string `json:"text"`
	Mood  string `json:"mood"`
	Trend string `json:"trend"`
	Stage string `json:"stage"`
}

// handleTTS speaks one line in the mascot's current voice. X-TTS-Model names the
// model that produced the audio, which differs from the configured one after a fallback.
// Raw PCM is returned as WAV.
func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "chat is not configured")
		return
	}
	var req ttsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}

	sr := chat.SpeakRequest{Text: req.Text}
	if raw := strings.TrimSpace(req.Mood); raw != "" {
		m, ok := mood.Parse(raw)
		if !ok {
			m = mood.Confident
		}
		sr.Mood = m
	}
	if strings.TrimSpace(req.Trend) != "" {
		sr.Trend = mood.ParseTrend(req.Trend)
	}
	if stage, ok := lifecycle.Parse(req.Stage); ok {
		sr.Stage = stage
	}

	speech, err := s.chat.Speak(r.Context(), sr)
	if err != nil {
		status, code := turnErrorStatus(err)
		if status == http.StatusInternalServerError {
			status, code = http.StatusBadGateway, "tts_error"
		}
		respondError(w, status, code, err.Error())
		return
	}
	format := speech.Format
	if format == "" {
		format = "audio/mpeg"
	}
	data, contentType := audio.Playable(speech.Data, format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-TTS-Model", speech.ModelID)
	w.Header().Set("X-TTS-Voice", speech.VoiceID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type sentimentRequest struct {
	Text  string `json:"text"`
	Trend string `json:"trend"`
}

type sentimentResponse struct {
	Sentiment sentiment.Label `json:"sentiment"`
	Mood      mood.Mood       `json:"mood"`
	Trend     mood.Trend      `json:"trend"`
}

// handleSentiment classifies text and reports the mood it would produce.
func (s *Server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	var req sentimentRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	label, err := s.sentiment.Classify(r.Context(), req.Text)
	if err != nil {
		s.logger.Debug().Err(err).Msg("sentiment classifier failed, using keywords")
		label = sentiment.ClassifyKeywords(req.Text)
	}
	trend := mood.ParseTrend(req.Trend)
	respondJSON(w, http.StatusOK, sentimentResponse{
		Sentiment: label,
		Mood:      mood.Derive(string(label), trend, req.Text),
		Trend:     trend,
	})
}

func (s *Server) handleLifecycle(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.clock.Snapshot())
}
