package subscription

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager() *Manager {
	return NewManager(NewMemoryStorage(), zap.NewNop())
}

func TestSubscribeDefaults(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	sub, err := m.Subscribe(ctx, 1, "Ann@Example.COM", nil)
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", sub.Email)
	assert.Equal(t, DefaultTypes, sub.Types)
	assert.True(t, sub.IsActive)
}

func TestSubscribeRejectsBadEmail(t *testing.T) {
	m := newTestManager()
	_, err := m.Subscribe(context.Background(), 1, "not-an-email", nil)
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestResubscribeReactivatesAndKeepsCreatedAt(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	first, err := m.Subscribe(ctx, 1, "ann@x.com", nil)
	require.NoError(t, err)

	ok, err := m.Unsubscribe(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	sub, err := m.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, sub.IsActive)

	second, err := m.Subscribe(ctx, 1, "new@x.com", []string{TypeOrderReady})
	require.NoError(t, err)
	assert.True(t, second.IsActive)
	assert.Equal(t, "new@x.com", second.Email)
	assert.Equal(t, []string{TypeOrderReady}, second.Types)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestUnsubscribeIsIdempotentlyFalse(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	ok, err := m.Unsubscribe(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.Subscribe(ctx, 1, "ann@x.com", nil)
	require.NoError(t, err)

	ok, err = m.Unsubscribe(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Unsubscribe(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestActiveByEmailIsCaseInsensitive(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	_, err := m.Subscribe(ctx, 1, "ann@x.com", nil)
	require.NoError(t, err)
	_, err = m.Subscribe(ctx, 2, "ANN@X.COM", nil)
	require.NoError(t, err)
	_, err = m.Subscribe(ctx, 3, "bob@x.com", nil)
	require.NoError(t, err)

	ok, err := m.Unsubscribe(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	subs, err := m.ActiveByEmail(ctx, "Ann@X.com")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, int64(1), subs[0].UserID)
}

func TestWants(t *testing.T) {
	both := &Subscription{Types: []string{TypeStatusChange, TypeOrderReady}}
	assert.True(t, both.Wants("in_production"))
	assert.True(t, both.Wants("ready"))

	readyOnly := &Subscription{Types: []string{TypeOrderReady}}
	assert.False(t, readyOnly.Wants("in_production"))
	assert.True(t, readyOnly.Wants("ready"))
	assert.True(t, readyOnly.Wants("READY"))

	none := &Subscription{}
	assert.False(t, none.Wants("ready"))
}
