package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/wenmoon/mascot/internal/chat"
	"github.com/wenmoon/mascot/internal/lifecycle"
	"github.com/wenmoon/mascot/internal/mood"
	"github.com/wenmoon/mascot/internal/protocol"
	"github.com/wenmoon/mascot/internal/session"
)

type chatResponse struct {
	chat.Result
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// handleChat runs a text-only turn and returns the whole reply.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	msg, ok := s.decodeUserMessage(w, r)
	if !ok {
		return
	}
	msg.Speak = new(bool)
	if err := s.chat.CheckReady(false); err != nil {
		respondTurnError(w, err)
		return
	}
	sessionID, err := s.ensureSession(msg.SessionID, session.TransportREST)
	if err != nil {
		respondTurnError(w, err)
		return
	}
	msg.SessionID = sessionID

	res, err := s.runTurn(r.Context(), msg, chat.Discard)
	if err != nil {
		var te *chat.TurnError
		if errors.As(err, &te) {
			status, code := turnErrorStatus(err)
			respondJSON(w, status, chatResponse{Result: res, Error: err.Error(), Code: code})
			return
		}
		respondTurnError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, chatResponse{Result: res})
}

// handleChatStream runs a turn and streams its events as server-sent events.
// Errors found before the first event are plain JSON responses.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	msg, ok := s.decodeUserMessage(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming unsupported")
		return
	}
	if err := s.chat.CheckReady(msg.SpeakEnabled()); err != nil {
		respondTurnError(w, err)
		return
	}
	sessionID, err := s.ensureSession(msg.SessionID, session.TransportSSE)
	if err != nil {
		respondTurnError(w, err)
		return
	}
	msg.SessionID = sessionID

	started := false
	sink := chat.SinkFunc(func(ev protocol.Event) error {
		if !started {
			started = true
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.Header().Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
		}
		if err := writeSSE(w, ev); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})

	_, err = s.runTurn(r.Context(), msg, sink)
	if err != nil && !started {
		respondTurnError(w, err)
	}
}

func writeSSE(w http.ResponseWriter, ev protocol.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

func (s *Server) decodeUserMessage(w http.ResponseWriter, r *http.Request) (protocol.UserMessage, bool) {
	if s.chat == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "chat is not configured")
		return protocol.UserMessage{}, false
	}
	var msg protocol.UserMessage
	if err := decodeJSON(r, &msg); err != nil {
		if errors.Is(err, errEmptyBody) {
			respondError(w, http.StatusBadRequest, "invalid_request", "request body is required")
			return msg, false
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return msg, false
	}
	if strings.TrimSpace(msg.Text) == "" && strings.TrimSpace(msg.ImageURL) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text or image_url is required")
		return msg, false
	}
	msg.Type = protocol.TypeUserMessage
	return msg, true
}

// ensureSession returns the id a turn runs under. An empty id opens a new session;
// an unknown one is registered as given.
func (s *Server) ensureSession(id string, transport session.Transport) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		sess := s.sessions.Create("anonymous", transport)
		s.observeSession("created")
		return sess.ID, nil
	}
	sess, created, err := s.sessions.Ensure(id, transport)
	if err != nil {
		return "", err
	}
	if created {
		s.observeSession("created")
	}
	return sess.ID, nil
}

func (s *Server) observeSession(event string) {
	if s.metrics == nil {
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues(event).Inc()
}

// runTurn streams one turn and mirrors its lifetime onto the session registry.
func (s *Server) runTurn(ctx context.Context, msg protocol.UserMessage, sink chat.Sink) (chat.Result, error) {
	tracker := &turnTracker{sessions: s.sessions, sessionID: msg.SessionID, next: sink}
	res, err := s.chat.Stream(ctx, s.chatRequest(msg), tracker)
	tracker.finish()
	return res, err
}

func (s *Server) chatRequest(msg protocol.UserMessage) chat.Request {
	req := chat.Request{
		SessionID: msg.SessionID,
		Text:      msg.Text,
		ImageURL:  msg.ImageURL,
		Speak:     msg.SpeakEnabled(),
	}
	if raw := strings.TrimSpace(msg.Mood); raw != "" {
		m, ok := mood.Parse(raw)
		if !ok {
			s.logger.Debug().Str("mood", raw).Msg("unknown mood, using confident")
			m = mood.Confident
		}
		req.Mood = m
	}
	if strings.TrimSpace(msg.Trend) != "" {
		req.Trend = mood.ParseTrend(msg.Trend)
	}
	if stage, ok := lifecycle.Parse(msg.Stage); ok {
		req.Stage = stage
	}
	return req
}

// turnTracker registers the turn with the session on its first event.
type turnTracker struct {
	sessions  *session.Manager
	sessionID string
	next      chat.Sink

	once   sync.Once
	turnID string
}

func (t *turnTracker) Emit(ev protocol.Event) error {
	t.once.Do(func() {
		t.turnID = ev.TurnID
		_, _ = t.sessions.StartTurn(t.sessionID, ev.TurnID)
	})
	return t.next.Emit(ev)
}

func (t *turnTracker) finish() {
	if t.turnID != "" {
		_ = t.sessions.EndTurn(t.sessionID, t.turnID)
	}
}
