package order

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
)

// Store keeps one order-in-progress per user. Update is an atomic
// read-modify-write scoped to a single user; operations for different
// users never block each other.
type Store interface {
	Get(ctx context.Context, userID int64) (*OrderSession, error)
	Create(ctx context.Context, userID int64) (*OrderSession, error)
	Update(ctx context.Context, userID int64, mutate func(*OrderSession) error) (*OrderSession, error)
	Clear(ctx context.Context, userID int64) (bool, error)
	Sweep(ctx context.Context, maxIdle time.Duration) ([]int64, error)
}

type memoryEntry struct {
	mu   sync.Mutex
	sess *OrderSession
}

// MemoryStore is the in-process Store. The map mutex is held only for
// lookup and insert/delete; mutation serializes on the per-user entry.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[int64]*memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[int64]*memoryEntry),
		now:     time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Get(_ context.Context, userID int64) (*OrderSession, error) {
	s.mu.RLock()
	e, ok := s.entries[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return nil, ErrSessionNotFound
	}
	return e.sess.clone(), nil
}

func (s *MemoryStore) Create(_ context.Context, userID int64) (*OrderSession, error) {
	now := s.now()
	sess := &OrderSession{
		UserID:      userID,
		Step:        StepServiceSelection,
		PhoneStatus: PhoneUnset,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[userID]; ok && e.sess != nil {
		return nil, ErrSessionExists
	}
	s.entries[userID] = &memoryEntry{sess: sess}
	return sess.clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, userID int64, mutate func(*OrderSession) error) (*OrderSession, error) {
	s.mu.RLock()
	e, ok := s.entries[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return nil, ErrSessionNotFound
	}

	// Mutate a copy so a failed mutator leaves the session untouched.
	next := e.sess.clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now()
	e.sess = next
	return next.clone(), nil
}

func (s *MemoryStore) Clear(_ context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	e, ok := s.entries[userID]
	if ok {
		delete(s.entries, userID)
	}
	s.mu.Unlock()
	if !ok {
		return false, nil
	}

	e.mu.Lock()
	existed := e.sess != nil
	e.sess = nil
	e.mu.Unlock()
	return existed, nil
}

// Sweep removes sessions idle longer than maxIdle and returns their
// user ids. Run periodically by the owner of the store.
func (s *MemoryStore) Sweep(_ context.Context, maxIdle time.Duration) ([]int64, error) {
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []int64
	for userID, e := range s.entries {
		e.mu.Lock()
		stale := e.sess != nil && e.sess.UpdatedAt.Before(cutoff)
		if stale {
			e.sess = nil
		}
		e.mu.Unlock()
		if stale {
			delete(s.entries, userID)
			removed = append(removed, userID)
		}
	}
	return removed, nil
}

// Len reports the number of active sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
