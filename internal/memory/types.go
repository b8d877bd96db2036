package memory

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidRecord = errors.New("invalid transcript record")

// TurnRecord stores a single user or assistant message of a completed turn.
type TurnRecord struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	TurnID      string    `json:"turn_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	Mood        string    `json:"mood,omitempty"`
	Stage       string    `json:"stage,omitempty"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store mirrors chat transcripts outside the bounded in-memory history.
type Store interface {
	SaveTurn(ctx context.Context, record TurnRecord) error
	Transcript(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Mode() string
	Close() error
}

func prepare(record *TurnRecord, newID func() string) error {
	if record.SessionID == "" || record.Role == "" {
		return ErrInvalidRecord
	}
	if record.ID == "" {
		record.ID = newID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	return nil
}
