package session

import "time"

// CreateRequest defines payload for creating a new session.
type CreateRequest struct {
	UserID    string    `json:"user_id"`
	Transport Transport `json:"transport"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	Status          Status    `json:"status"`
	Transport       Transport `json:"transport"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}

func ParseTransport(raw string) Transport {
	switch Transport(raw) {
	case TransportWebSocket, TransportSSE, TransportREST:
		return Transport(raw)
	default:
		return TransportREST
	}
}
