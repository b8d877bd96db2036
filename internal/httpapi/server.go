package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/wenmoon/mascot/internal/chat"
	"github.com/wenmoon/mascot/internal/config"
	"github.com/wenmoon/mascot/internal/lifecycle"
	"github.com/wenmoon/mascot/internal/memory"
	"github.com/wenmoon/mascot/internal/observability"
	"github.com/wenmoon/mascot/internal/sentiment"
	"github.com/wenmoon/mascot/internal/session"
	"github.com/wenmoon/mascot/internal/voice"
)

// Chat is the turn runner behind the chat, TTS and session routes.
type Chat interface {
	Stream(ctx context.Context, req chat.Request, sink chat.Sink) (chat.Result, error)
	Reply(ctx context.Context, req chat.Request) (chat.Result, error)
	Speak(ctx context.Context, req chat.SpeakRequest) (voice.Audio, error)
	Cancel(sessionID string) bool
	Forget(ctx context.Context, sessionID string) error
	CheckReady(speak bool) error
}

type Deps struct {
	Sessions    *session.Manager
	Chat        Chat
	Sentiment   sentiment.Classifier
	Clock       *lifecycle.Clock
	Transcripts memory.Store
	Metrics     *observability.Metrics
	Logger      zerolog.Logger
}

type Server struct {
	cfg         config.Config
	sessions    *session.Manager
	chat        Chat
	sentiment   sentiment.Classifier
	clock       *lifecycle.Clock
	transcripts memory.Store
	metrics     *observability.Metrics
	logger      zerolog.Logger
	upgrader    websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	if deps.Sessions == nil {
		deps.Sessions = session.NewManager(cfg.SessionInactivityTimeout)
	}
	if deps.Sentiment == nil {
		deps.Sentiment = sentiment.KeywordClassifier{}
	}
	if deps.Clock == nil {
		deps.Clock = lifecycle.NewClock(nil)
	}
	return &Server{
		cfg:         cfg,
		sessions:    deps.Sessions,
		chat:        deps.Chat,
		sentiment:   deps.Sentiment,
		clock:       deps.Clock,
		transcripts: deps.Transcripts,
		metrics:     deps.Metrics,
		logger:      deps.Logger.With().Str("component", "httpapi").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return sameOrigin(cfg, r) },
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Post("/v1/sessions", s.handleCreateSession)
	r.Delete("/v1/sessions/{id}", s.handleEndSession)
	r.Get("/v1/sessions/{id}/transcript", s.handleTranscript)

	r.Post("/v1/chat", s.handleChat)
	r.Post("/v1/chat/stream", s.handleChatStream)
	r.Get("/v1/chat/ws", s.handleChatWS)

	r.Post("/v1/tts", s.handleTTS)
	r.Post("/v1/sentiment", s.handleSentiment)
	r.Get("/v1/lifecycle", s.handleLifecycle)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.sessions.ActiveCount(),
		"transcript_mode": s.transcriptMode(),
	})
}

// handleReady reports 503 while a required provider credential is missing.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	checks := map[string]string{"llm": "ok", "tts": "ok"}
	status := http.StatusOK
	if s.chat == nil {
		checks["llm"], checks["tts"] = "missing", "missing"
		status = http.StatusServiceUnavailable
	} else {
		if err := s.chat.CheckReady(false); err != nil {
			checks["llm"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := s.chat.CheckReady(true); err != nil && checks["llm"] == "ok" {
			checks["tts"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	respondJSON(w, status, map[string]any{
		"status":          state,
		"checks":          checks,
		"transcript_mode": s.transcriptMode(),
	})
}

func (s *Server) transcriptMode() string {
	if s.transcripts == nil {
		return "disabled"
	}
	return s.transcripts.Mode()
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.cfg.AllowAnyOrigin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sameOrigin only lets browsers on the serving origin open the chat socket unless
// APP_ALLOW_ANY_ORIGIN is set.
func sameOrigin(cfg config.Config, r *http.Request) bool {
	if cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		// Non-browser clients often omit Origin.
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondTurnError maps errors returned before a turn produced output.
func respondTurnError(w http.ResponseWriter, err error) {
	status, code := turnErrorStatus(err)
	respondError(w, status, code, err.Error())
}

func turnErrorStatus(err error) (int, string) {
	var te *chat.TurnError
	switch {
	case config.IsCredentialError(err):
		return http.StatusServiceUnavailable, "config_error"
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrMissingSession):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, session.ErrInvalidID):
		return http.StatusBadRequest, "invalid_session_id"
	case errors.Is(err, session.ErrEnded):
		return http.StatusGone, "session_ended"
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, chat.ErrTurnSuperseded):
		return http.StatusConflict, "superseded"
	case errors.Is(err, chat.ErrTurnCanceled), errors.Is(err, context.Canceled):
		return 499, "canceled"
	case errors.As(err, &te):
		return http.StatusBadGateway, te.Source + "_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
