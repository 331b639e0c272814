package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nordlayer-bot/internal/subscription"
)

type recordingSender struct {
	sent    map[int64][]string
	failFor map[int64]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{
		sent:    make(map[int64][]string),
		failFor: make(map[int64]bool),
	}
}

func (s *recordingSender) SendMessage(_ context.Context, chatID int64, text string) error {
	if s.failFor[chatID] {
		return errors.New("chat blocked")
	}
	s.sent[chatID] = append(s.sent[chatID], text)
	return nil
}

func setup(t *testing.T) (*Dispatcher, *subscription.Manager, *recordingSender) {
	t.Helper()
	subs := subscription.NewManager(subscription.NewMemoryStorage(), zap.NewNop())
	sender := newRecordingSender()
	return NewDispatcher(subs, sender, zap.NewNop()), subs, sender
}

func TestDispatchToSubscribers(t *testing.T) {
	d, subs, sender := setup(t)
	ctx := context.Background()

	_, err := subs.Subscribe(ctx, 1, "ann@x.com", nil)
	require.NoError(t, err)
	_, err = subs.Subscribe(ctx, 2, "ANN@x.com", nil)
	require.NoError(t, err)
	_, err = subs.Subscribe(ctx, 3, "bob@x.com", nil)
	require.NoError(t, err)

	n, err := d.Dispatch(ctx, StatusEvent{OrderID: 42, CustomerEmail: "Ann@X.com", NewStatus: "ready"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, sender.sent[1][0], "№42")
	assert.Contains(t, sender.sent[1][0], "готов")
	assert.Empty(t, sender.sent[3])
}

func TestReadyOnlySubscriberFiltersStatuses(t *testing.T) {
	d, subs, sender := setup(t)
	ctx := context.Background()

	_, err := subs.Subscribe(ctx, 1, "ann@x.com", []string{subscription.TypeOrderReady})
	require.NoError(t, err)

	n, err := d.Dispatch(ctx, StatusEvent{OrderID: 7, CustomerEmail: "ann@x.com", NewStatus: "in_production"})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, sender.sent[1])

	n, err = d.Dispatch(ctx, StatusEvent{OrderID: 7, CustomerEmail: "ann@x.com", NewStatus: "ready"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDeliveryFailureDoesNotBlockOthers(t *testing.T) {
	d, subs, sender := setup(t)
	ctx := context.Background()

	_, err := subs.Subscribe(ctx, 1, "ann@x.com", nil)
	require.NoError(t, err)
	_, err = subs.Subscribe(ctx, 2, "ann@x.com", nil)
	require.NoError(t, err)
	sender.failFor[1] = true

	n, err := d.Dispatch(ctx, StatusEvent{OrderID: 9, CustomerEmail: "ann@x.com", NewStatus: "confirmed"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, sender.sent[2], 1)
}

func TestDispatchRequiresEmail(t *testing.T) {
	d, _, _ := setup(t)
	_, err := d.Dispatch(context.Background(), StatusEvent{OrderID: 1, NewStatus: "ready"})
	assert.Error(t, err)
}

func TestUnknownStatusGetsGenericText(t *testing.T) {
	d, subs, sender := setup(t)
	ctx := context.Background()

	_, err := subs.Subscribe(ctx, 1, "ann@x.com", nil)
	require.NoError(t, err)

	n, err := d.Dispatch(ctx, StatusEvent{OrderID: 3, CustomerEmail: "ann@x.com", NewStatus: "on_hold"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, sender.sent[1][0], "on_hold")
}
