package conversation

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// MemoryStore keeps conversations in process. Used by tests and local runs.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Conversation
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Conversation)}
}

// Get returns a copy of the stored conversation.
func (s *MemoryStore) Get(_ context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return conv.Clone(), nil
}

// PutIfVersion stores conv when the version matches.
func (s *MemoryStore) PutIfVersion(_ context.Context, conv *Conversation, expected int64) (*Conversation, error) {
	if conv == nil || conv.ID == "" {
		return nil, errors.New("conversation: conversation id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.items[conv.ID]
	switch {
	case expected == 0 && ok:
		return nil, ErrVersionConflict
	case expected != 0 && (!ok || existing.Version != expected):
		return nil, ErrVersionConflict
	}
	stored := conv.Clone()
	stored.Version = expected + 1
	s.items[conv.ID] = stored
	return stored.Clone(), nil
}

// List returns the newest conversations first.
func (s *MemoryStore) List(_ context.Context, limit int) ([]*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Conversation, 0, len(s.items))
	for _, conv := range s.items {
		out = append(out, conv.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
