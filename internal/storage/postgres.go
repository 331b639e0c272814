package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"nordlayer-bot/internal/subscription"
)

// Connect opens Postgres with exponential backoff so the bot tolerates
// the database starting after it.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*sqlx.DB, error) {
	var db *sqlx.DB
	operation := func() error {
		var err error
		db, err = sqlx.ConnectContext(ctx, "postgres", dsn)
		if err != nil {
			logger.Warn("postgres not ready, retrying", zap.Error(err))
			return err
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// DSN assembles a lib/pq connection string.
func DSN(host string, port int, user, password, name string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, name)
}

// SubscriptionStorage is the Postgres subscription.Storage.
type SubscriptionStorage struct {
	db *sqlx.DB
}

func NewSubscriptionStorage(db *sqlx.DB) *SubscriptionStorage {
	return &SubscriptionStorage{db: db}
}

var _ subscription.Storage = (*SubscriptionStorage)(nil)

type subscriptionRow struct {
	UserID    int64          `db:"user_id"`
	Email     string         `db:"email"`
	Types     pq.StringArray `db:"notification_types"`
	IsActive  bool           `db:"is_active"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r subscriptionRow) toSubscription() subscription.Subscription {
	return subscription.Subscription{
		UserID:    r.UserID,
		Email:     r.Email,
		Types:     append([]string(nil), r.Types...),
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (s *SubscriptionStorage) Upsert(ctx context.Context, sub *subscription.Subscription) error {
	const query = `
		INSERT INTO subscriptions (user_id, email, notification_types, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			email              = EXCLUDED.email,
			notification_types = EXCLUDED.notification_types,
			is_active          = EXCLUDED.is_active,
			updated_at         = EXCLUDED.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		sub.UserID, sub.Email, pq.StringArray(sub.Types),
		sub.IsActive, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionStorage) Get(ctx context.Context, userID int64) (*subscription.Subscription, error) {
	const query = `
		SELECT user_id, email, notification_types, is_active, created_at, updated_at
		FROM subscriptions WHERE user_id = $1`

	var row subscriptionRow
	if err := s.db.GetContext(ctx, &row, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, subscription.ErrNotFound
		}
		return nil, fmt.Errorf("select subscription: %w", err)
	}
	sub := row.toSubscription()
	return &sub, nil
}

func (s *SubscriptionStorage) Deactivate(ctx context.Context, userID int64) (bool, error) {
	const query = `
		UPDATE subscriptions SET is_active = FALSE, updated_at = now()
		WHERE user_id = $1 AND is_active`

	res, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("deactivate subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SubscriptionStorage) ActiveByEmail(ctx context.Context, email string) ([]subscription.Subscription, error) {
	const query = `
		SELECT user_id, email, notification_types, is_active, created_at, updated_at
		FROM subscriptions WHERE lower(email) = lower($1) AND is_active
		ORDER BY user_id`

	var rows []subscriptionRow
	if err := s.db.SelectContext(ctx, &rows, query, email); err != nil {
		return nil, fmt.Errorf("select subscribers: %w", err)
	}

	subs := make([]subscription.Subscription, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.toSubscription())
	}
	return subs, nil
}
