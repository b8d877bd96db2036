package session

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestManagerCreateGetEnd(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("u1", TransportWebSocket)
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.UserID != "u1" || got.Transport != TransportWebSocket || got.Status != StatusActive {
		t.Fatalf("unexpected session state: %+v", got)
	}

	ended, err := m.End(s.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded {
		t.Fatalf("ended status = %q, want %q", ended.Status, StatusEnded)
	}
	if _, _, err := m.Ensure(s.ID, TransportSSE); !errors.Is(err, ErrEnded) {
		t.Fatalf("Ensure(ended) error = %v, want ErrEnded", err)
	}
}

func TestManagerEnsureRegistersClientID(t *testing.T) {
	m := NewManager(time.Minute)
	s, created, err := m.Ensure("client-abc", TransportSSE)
	if err != nil || !created {
		t.Fatalf("Ensure() = %+v, %v, %v; want created", s, created, err)
	}
	again, created, err := m.Ensure("client-abc", TransportREST)
	if err != nil || created {
		t.Fatalf("second Ensure() created = %v, err = %v", created, err)
	}
	if again.Transport != TransportREST {
		t.Fatalf("Transport = %q, want %q", again.Transport, TransportREST)
	}
	if m.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", m.ActiveCount())
	}

	if _, _, err := m.Ensure(strings.Repeat("x", 200), TransportREST); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("Ensure(long id) error = %v, want ErrInvalidID", err)
	}
	fresh, created, err := m.Ensure("", TransportREST)
	if err != nil || !created || fresh.ID == "" {
		t.Fatalf("Ensure(\"\") = %+v, %v, %v", fresh, created, err)
	}
}

func TestManagerStartTurnReportsSupersede(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("", TransportSSE)

	superseded, err := m.StartTurn(s.ID, "turn-1")
	if err != nil || superseded {
		t.Fatalf("StartTurn(turn-1) = %v, %v; want false, nil", superseded, err)
	}
	superseded, _ = m.StartTurn(s.ID, "turn-2")
	if !superseded {
		t.Fatalf("StartTurn(turn-2) superseded = false, want true")
	}
	// A late EndTurn from the superseded turn must not clear the newer one.
	if err := m.EndTurn(s.ID, "turn-1"); err != nil {
		t.Fatalf("EndTurn() error = %v", err)
	}

	got, _ := m.Get(s.ID)
	if got.ActiveTurnID != "turn-2" {
		t.Fatalf("ActiveTurnID = %q, want turn-2", got.ActiveTurnID)
	}
	if got.SupersedeCount != 1 {
		t.Fatalf("SupersedeCount = %d, want 1", got.SupersedeCount)
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	s := m.Create("u1", TransportWebSocket)

	var hooked atomic.Int32
	m.SetExpireHook(func(expired *Session) {
		if expired.ID == s.ID {
			hooked.Add(1)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after purge error = %v, want ErrNotFound", err)
	}
	if hooked.Load() != 1 {
		t.Fatalf("expire hook calls = %d, want 1", hooked.Load())
	}
}

func TestManagerJanitorSkipsBusySessions(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	s := m.Create("", TransportSSE)
	if _, err := m.StartTurn(s.ID, "long-turn"); err != nil {
		t.Fatalf("StartTurn() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	m.expireInactive()

	got, err := m.Get(s.ID)
	if err != nil || got.Status != StatusActive {
		t.Fatalf("busy session expired: %+v, %v", got, err)
	}
}
