package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Transport names how a client reaches the session.
type Transport string

const (
	TransportWebSocket Transport = "ws"
	TransportSSE       Transport = "sse"
	TransportREST      Transport = "rest"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrEnded     = errors.New("session ended")
	ErrInvalidID = errors.New("invalid session id")
)

const maxIDLength = 128

type Session struct {
	ID             string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Status         Status    `json:"status"`
	Transport      Transport `json:"transport"`
	ActiveTurnID   string    `json:"active_turn_id"`
	TurnCount      int       `json:"turn_count"`
	SupersedeCount int       `json:"supersede_count"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Manager is the registry of client sessions. Conversation history lives elsewhere;
// the expire hook lets its owner evict it when a session times out.
type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	inactivityTimeout time.Duration
	onExpire          func(*Session)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 10 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) InactivityTimeout() time.Duration {
	return m.inactivityTimeout
}

func (m *Manager) Create(userID string, transport Transport) *Session {
	s := newSession(uuid.NewString(), userID, transport)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return clone(s)
}

// Ensure returns the active session with id, registering it when the client
// brings its own id. An empty id creates a fresh session.
func (m *Manager) Ensure(id string, transport Transport) (*Session, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return m.Create("", transport), true, nil
	}
	if len(id) > maxIDLength || strings.ContainsAny(id, " \t\r\n/") {
		return nil, false, ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		if s.Status != StatusActive {
			return nil, false, ErrEnded
		}
		s.LastActivityAt = time.Now().UTC()
		if transport != "" {
			s.Transport = transport
		}
		return clone(s), false, nil
	}
	s := newSession(id, "", transport)
	m.sessions[id] = s
	return clone(s), true, nil
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// StartTurn records turnID as the session's active turn. It reports whether a
// previous turn was still running and is being superseded.
func (m *Manager) StartTurn(sessionID, turnID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return false, ErrNotFound
	}
	superseded := s.ActiveTurnID != ""
	if superseded {
		s.SupersedeCount++
	}
	s.ActiveTurnID = turnID
	s.LastActivityAt = time.Now().UTC()
	return superseded, nil
}

// EndTurn clears the active turn if it is still turnID.
func (m *Manager) EndTurn(sessionID, turnID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if s.ActiveTurnID == turnID {
		s.ActiveTurnID = ""
	}
	s.TurnCount++
	s.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	s.Status = StatusEnded
	s.ActiveTurnID = ""
	s.LastActivityAt = time.Now().UTC()
	return clone(s), nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

// expireInactive ends idle sessions and forgets sessions that ended more than one
// timeout ago.
func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		idle := now.Sub(s.LastActivityAt)
		if s.Status != StatusActive {
			if idle >= m.inactivityTimeout {
				delete(m.sessions, id)
			}
			continue
		}
		if idle < m.inactivityTimeout || s.ActiveTurnID != "" {
			continue
		}
		s.Status = StatusEnded
		s.LastActivityAt = now
		expired = append(expired, clone(s))
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func newSession(id, userID string, transport Transport) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:             id,
		UserID:         userID,
		Status:         StatusActive,
		Transport:      transport,
		StartedAt:      now,
		LastActivityAt: now,
	}
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
