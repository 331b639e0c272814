package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"nordlayer-bot/internal/order"
	"nordlayer-bot/pkg/redis"
)

const keyPrefix = "session:"

// kv is the slice of the Redis wrapper the store uses.
type kv interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// Store keeps order sessions in Redis so they survive restarts. Each
// session lives under its own key with a TTL matching the idle limit,
// so Redis expires abandoned sessions on its own; Sweep exists for
// backends restored from snapshots where TTLs may be gone.
//
// Read-modify-write is serialized per user with a process-local lock.
// The bot is the only writer of its sessions, so no cross-process
// locking is needed.
type Store struct {
	client kv
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

var _ order.Store = (*Store)(nil)

// New pings Redis with exponential backoff before returning, the same
// way the database connector does, so a bot started before Redis comes
// up waits instead of crashing.
func New(ctx context.Context, client *redis.Client, ttl time.Duration, logger *zap.Logger) (*Store, error) {
	operation := func() error {
		return client.Ping(ctx)
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("redis not reachable: %w", err)
	}

	return &Store{
		client: client,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		locks:  make(map[int64]*sync.Mutex),
	}, nil
}

func sessionKey(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

func (s *Store) userLock(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *Store) load(ctx context.Context, userID int64) (*order.OrderSession, error) {
	data, err := s.client.Get(ctx, sessionKey(userID))
	if err != nil {
		if redis.IsNil(err) {
			return nil, order.ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var sess order.OrderSession
	if err := json.Unmarshal(data, &sess); err != nil {
		// A corrupt session is unrecoverable; drop it.
		s.logger.Error("corrupt session dropped",
			zap.Int64("user_id", userID),
			zap.Error(err))
		if _, derr := s.client.Del(ctx, sessionKey(userID)); derr != nil {
			s.logger.Warn("failed to delete corrupt session", zap.Error(derr))
		}
		return nil, order.ErrSessionNotFound
	}
	return &sess, nil
}

func (s *Store) save(ctx context.Context, sess *order.OrderSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sess.UserID), data, s.ttl); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, userID int64) (*order.OrderSession, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()
	return s.load(ctx, userID)
}

func (s *Store) Create(ctx context.Context, userID int64) (*order.OrderSession, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	if _, err := s.load(ctx, userID); err == nil {
		return nil, order.ErrSessionExists
	} else if !errors.Is(err, order.ErrSessionNotFound) {
		return nil, err
	}

	now := s.now()
	sess := &order.OrderSession{
		UserID:      userID,
		Step:        order.StepServiceSelection,
		PhoneStatus: order.PhoneUnset,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) Update(ctx context.Context, userID int64, mutate func(*order.OrderSession) error) (*order.OrderSession, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	sess, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := mutate(sess); err != nil {
		return nil, err
	}
	sess.UpdatedAt = s.now()
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) Clear(ctx context.Context, userID int64) (bool, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	// The lock entry stays: dropping it while another goroutine waits
	// on the mutex would let a third obtain a fresh mutex and break
	// per-user serialization. The map is bounded by user count.
	n, err := s.client.Del(ctx, sessionKey(userID))
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}

// Sweep removes sessions idle beyond maxIdle. Normally key TTLs handle
// this; the scan catches sessions whose TTL was lost.
func (s *Store) Sweep(ctx context.Context, maxIdle time.Duration) ([]int64, error) {
	keys, err := s.client.Keys(ctx, keyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}

	cutoff := s.now().Add(-maxIdle)
	var removed []int64
	for _, key := range keys {
		userID, err := strconv.ParseInt(strings.TrimPrefix(key, keyPrefix), 10, 64)
		if err != nil {
			continue
		}

		data, err := s.client.Get(ctx, key)
		if err != nil {
			continue
		}
		var sess order.OrderSession
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		if !sess.UpdatedAt.Before(cutoff) {
			continue
		}

		if _, err := s.client.Del(ctx, key); err != nil {
			s.logger.Warn("failed to sweep session", zap.String("key", key), zap.Error(err))
			continue
		}
		removed = append(removed, userID)
	}
	return removed, nil
}
