package subscription

import (
	"context"
	"strings"
	"sync"
)

// MemoryStorage is the in-process Storage used when no database is
// configured.
type MemoryStorage struct {
	mu   sync.RWMutex
	subs map[int64]*Subscription
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{subs: make(map[int64]*Subscription)}
}

var _ Storage = (*MemoryStorage)(nil)

func (s *MemoryStorage) Upsert(_ context.Context, sub *Subscription) error {
	cp := *sub
	cp.Types = append([]string(nil), sub.Types...)

	s.mu.Lock()
	s.subs[sub.UserID] = &cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) Get(_ context.Context, userID int64) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sub
	cp.Types = append([]string(nil), sub.Types...)
	return &cp, nil
}

func (s *MemoryStorage) Deactivate(_ context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[userID]
	if !ok || !sub.IsActive {
		return false, nil
	}
	sub.IsActive = false
	return true, nil
}

func (s *MemoryStorage) ActiveByEmail(_ context.Context, email string) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Subscription
	for _, sub := range s.subs {
		if sub.IsActive && strings.EqualFold(sub.Email, email) {
			cp := *sub
			cp.Types = append([]string(nil), sub.Types...)
			out = append(out, cp)
		}
	}
	return out, nil
}
