package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"nordlayer-bot/internal/subscription"
)

// StatusEvent is one order status change received from the backend.
type StatusEvent struct {
	OrderID       int64  `json:"order_id"`
	CustomerEmail string `json:"customer_email"`
	NewStatus     string `json:"new_status"`
}

// Sender delivers one chat message. Implemented by the bot transport.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Dispatcher fans a status event out to every subscriber of the order's
// email. One failed delivery never blocks the rest.
type Dispatcher struct {
	subs   *subscription.Manager
	sender Sender
	logger *zap.Logger
}

func NewDispatcher(subs *subscription.Manager, sender Sender, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		subs:   subs,
		sender: sender,
		logger: logger,
	}
}

// Dispatch notifies subscribers about the event and returns the number
// of messages delivered.
func (d *Dispatcher) Dispatch(ctx context.Context, ev StatusEvent) (int, error) {
	if ev.CustomerEmail == "" {
		return 0, fmt.Errorf("status event without customer email")
	}

	subs, err := d.subs.ActiveByEmail(ctx, ev.CustomerEmail)
	if err != nil {
		return 0, fmt.Errorf("resolve recipients: %w", err)
	}
	if len(subs) == 0 {
		d.logger.Debug("no subscribers for status event",
			zap.Int64("order_id", ev.OrderID),
			zap.String("status", ev.NewStatus))
		return 0, nil
	}

	text := statusMessage(ev)
	delivered := 0
	for _, sub := range subs {
		if !sub.Wants(ev.NewStatus) {
			continue
		}
		if err := d.sender.SendMessage(ctx, sub.UserID, text); err != nil {
			d.logger.Warn("notification delivery failed",
				zap.Int64("user_id", sub.UserID),
				zap.Int64("order_id", ev.OrderID),
				zap.Error(err))
			continue
		}
		delivered++
	}

	d.logger.Info("status event dispatched",
		zap.Int64("order_id", ev.OrderID),
		zap.String("status", ev.NewStatus),
		zap.Int("delivered", delivered),
		zap.Int("subscribers", len(subs)))
	return delivered, nil
}

var statusTexts = map[string]string{
	"new":           "🆕 Заказ №%d принят и ожидает подтверждения.",
	"confirmed":     "✅ Заказ №%d подтверждён и скоро уйдёт в работу.",
	"in_production": "🖨️ Заказ №%d отправлен в печать.",
	"ready":         "🎉 Заказ №%d готов! Можно забирать.",
	"shipped":       "🚚 Заказ №%d передан в доставку.",
	"completed":     "✨ Заказ №%d выполнен. Спасибо, что выбрали нас!",
	"cancelled":     "❌ Заказ №%d отменён. Напишите нам, если это ошибка.",
}

func statusMessage(ev StatusEvent) string {
	if tpl, ok := statusTexts[ev.NewStatus]; ok {
		return fmt.Sprintf(tpl, ev.OrderID)
	}
	return fmt.Sprintf("📦 Заказ №%d: новый статус «%s».", ev.OrderID, ev.NewStatus)
}
