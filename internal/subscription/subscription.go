package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Notification categories a user can opt into.
const (
	TypeStatusChange = "status_change"
	TypeOrderReady   = "order_ready"
)

// DefaultTypes is what a plain /subscribe opts into.
var DefaultTypes = []string{TypeStatusChange, TypeOrderReady}

var (
	ErrNotFound     = errors.New("subscription not found")
	ErrInvalidEmail = errors.New("invalid email")
)

// Subscription ties a chat user to an email whose order updates they
// want. Unsubscribing deactivates rather than deletes, so re-subscribing
// restores history.
type Subscription struct {
	UserID    int64     `db:"user_id" json:"user_id"`
	Email     string    `db:"email" json:"email"`
	Types     []string  `db:"-" json:"notification_types"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Wants reports whether this subscription covers an order entering the
// given status. order_ready-only subscribers hear about readiness and
// nothing else.
func (s *Subscription) Wants(status string) bool {
	ready := strings.EqualFold(status, "ready")
	for _, t := range s.Types {
		switch t {
		case TypeStatusChange:
			return true
		case TypeOrderReady:
			if ready {
				return true
			}
		}
	}
	return false
}

// Storage persists subscriptions keyed by user id.
type Storage interface {
	Upsert(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, userID int64) (*Subscription, error)
	Deactivate(ctx context.Context, userID int64) (bool, error)
	ActiveByEmail(ctx context.Context, email string) ([]Subscription, error)
}

// Manager applies the subscription rules on top of a Storage backend.
type Manager struct {
	storage Storage
	logger  *zap.Logger
	now     func() time.Time
}

func NewManager(storage Storage, logger *zap.Logger) *Manager {
	return &Manager{
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
}

// Subscribe opts a user into notifications for an email. Re-subscribing
// updates the email and types and reactivates a soft-deleted record.
func (m *Manager) Subscribe(ctx context.Context, userID int64, email string, types []string) (*Subscription, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}
	if len(types) == 0 {
		types = DefaultTypes
	}

	now := m.now()
	sub := &Subscription{
		UserID:    userID,
		Email:     email,
		Types:     append([]string(nil), types...),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, err := m.storage.Get(ctx, userID); err == nil {
		sub.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load subscription: %w", err)
	}

	if err := m.storage.Upsert(ctx, sub); err != nil {
		return nil, fmt.Errorf("save subscription: %w", err)
	}

	m.logger.Info("subscription saved",
		zap.Int64("user_id", userID),
		zap.String("email", email),
		zap.Strings("types", types))
	return sub, nil
}

// Unsubscribe deactivates the user's subscription. Returns false when
// there was nothing active to deactivate.
func (m *Manager) Unsubscribe(ctx context.Context, userID int64) (bool, error) {
	deactivated, err := m.storage.Deactivate(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("deactivate subscription: %w", err)
	}
	if deactivated {
		m.logger.Info("subscription deactivated", zap.Int64("user_id", userID))
	}
	return deactivated, nil
}

// Get returns the user's subscription, active or not.
func (m *Manager) Get(ctx context.Context, userID int64) (*Subscription, error) {
	return m.storage.Get(ctx, userID)
}

// ActiveByEmail lists active subscriptions matching an email,
// case-insensitively.
func (m *Manager) ActiveByEmail(ctx context.Context, email string) ([]Subscription, error) {
	subs, err := m.storage.ActiveByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("lookup subscribers: %w", err)
	}
	return subs, nil
}

func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}
