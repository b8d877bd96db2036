package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wenmoon/mascot/internal/memory"
	"github.com/wenmoon/mascot/internal/session"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = "anonymous"
	}

	sess := s.sessions.Create(req.UserID, session.ParseTransport(string(req.Transport)))
	s.observeSession("created")

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		UserID:          sess.UserID,
		Status:          sess.Status,
		Transport:       sess.Transport,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.sessions.InactivityTimeout().Milliseconds(),
	})
}

// handleEndSession stops any running turn and drops the conversation history.
// The transcript mirror is kept.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if s.chat != nil {
		if err := s.chat.Forget(r.Context(), id); err != nil {
			s.logger.Warn().Err(err).Str("session_id", id).Msg("forget conversation failed")
		}
	}
	s.observeSession("ended")
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if s.transcripts == nil {
		respondError(w, http.StatusNotFound, "transcripts_disabled", "transcript store is not configured")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.transcripts.Transcript(r.Context(), id, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "transcript_error", err.Error())
		return
	}
	if records == nil {
		records = []memory.TurnRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"mode":       s.transcripts.Mode(),
		"records":    records,
	})
}
