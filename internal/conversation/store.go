package conversation

import (
	"context"
	"errors"
	"sync"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultMaxEntries bounds a history: the system entry plus the 19 newest turns.
const DefaultMaxEntries = 20

var ErrNotFound = errors.New("conversation not found")

type Message struct {
	Role     Role   `json:"role"`
	Content  string `json:"content"`
	ImageURL string `json:"image_url,omitempty"`
}

// Store keeps per-session chat history whose first entry is always the system entry.
type Store interface {
	GetOrCreate(ctx context.Context, id, systemContent string) ([]Message, error)
	UpdateSystemEntry(ctx context.Context, id, content string) error
	Append(ctx context.Context, id string, msgs ...Message) error
	Prune(ctx context.Context, id string, maxEntries int) error
	History(ctx context.Context, id string) ([]Message, error)
	Delete(ctx context.Context, id string) error
	Len() int
}

type history struct {
	mu       sync.Mutex
	messages []Message
}

// InMemoryStore guards the session map with one lock and each history with its own,
// so concurrent sessions never wait on each other's appends.
type InMemoryStore struct {
	mu        sync.RWMutex
	histories map[string]*history
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{histories: make(map[string]*history)}
}

func (s *InMemoryStore) lookup(id string) (*history, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.histories[id]
	return h, ok
}

func (s *InMemoryStore) GetOrCreate(_ context.Context, id, systemContent string) ([]Message, error) {
	h, ok := s.lookup(id)
	if !ok {
		s.mu.Lock()
		h, ok = s.histories[id]
		if !ok {
			h = &history{messages: []Message{{Role: RoleSystem, Content: systemContent}}}
			s.histories[id] = h
		}
		s.mu.Unlock()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return cloneMessages(h.messages), nil
}

func (s *InMemoryStore) UpdateSystemEntry(_ context.Context, id, content string) error {
	h, ok := s.lookup(id)
	if !ok {
		return ErrNotFound
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.messages) == 0 || h.messages[0].Role != RoleSystem {
		h.messages = append([]Message{{Role: RoleSystem}}, h.messages...)
	}
	h.messages[0].Content = content
	return nil
}

func (s *InMemoryStore) Append(_ context.Context, id string, msgs ...Message) error {
	h, ok := s.lookup(id)
	if !ok {
		return ErrNotFound
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msgs...)
	return nil
}

func (s *InMemoryStore) Prune(_ context.Context, id string, maxEntries int) error {
	h, ok := s.lookup(id)
	if !ok {
		return ErrNotFound
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = PruneMessages(h.messages, maxEntries)
	return nil
}

func (s *InMemoryStore) History(_ context.Context, id string) ([]Message, error) {
	h, ok := s.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return cloneMessages(h.messages), nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.histories[id]; !ok {
		return ErrNotFound
	}
	delete(s.histories, id)
	return nil
}

func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.histories)
}

// PruneMessages keeps entry 0 plus the newest maxEntries-1 entries in their original order.
func PruneMessages(messages []Message, maxEntries int) []Message {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if len(messages) <= maxEntries {
		return messages
	}
	if maxEntries == 1 {
		return messages[:1:1]
	}
	out := make([]Message, 0, maxEntries)
	out = append(out, messages[0])
	out = append(out, messages[len(messages)-(maxEntries-1):]...)
	return out
}

func cloneMessages(in []Message) []Message {
	out := make([]Message, len(in))
	copy(out, in)
	return out
}
