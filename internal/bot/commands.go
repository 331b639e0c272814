package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"nordlayer-bot/internal/export"
	"nordlayer-bot/internal/order"
)

func (b *Bot) handleCommand(ctx context.Context, chatID int64, command, args string) {
	b.logger.Debug("command received",
		zap.Int64("chat_id", chatID),
		zap.String("command", command))

	// A command always leaves the email-prompt mode.
	b.setPending(chatID, pendingNone)

	switch command {
	case "start":
		b.sendMainMenu(chatID)
	case "help":
		b.sendHelp(chatID)
	case "order":
		b.handleEvent(ctx, chatID, order.StartOrder{})
	case "services":
		b.sendServiceCatalog(ctx, chatID)
	case "track":
		b.startTracking(ctx, chatID, args)
	case "subscribe":
		b.startSubscribe(ctx, chatID, args)
	case "unsubscribe":
		b.handleUnsubscribe(ctx, chatID)
	case "cancel":
		b.handleEvent(ctx, chatID, order.Cancel{})
	case "export":
		b.handleExport(ctx, chatID, args)
	default:
		b.send(tgbotapi.NewMessage(chatID, "Неизвестная команда. Посмотрите /help."))
	}
}

func (b *Bot) sendMainMenu(chatID int64) {
	text := "👋 Привет! Я бот студии 3D-печати.\n\n" +
		"Помогу оформить заказ, подскажу статус и напомню, когда он будет готов."
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🛍️ Оформить заказ", order.CBStartOrder),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📋 Услуги", order.CBShowServices),
			tgbotapi.NewInlineKeyboardButtonData("📦 Мои заказы", order.CBTrackOrder),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔔 Подписаться", order.CBSubscribe),
			tgbotapi.NewInlineKeyboardButtonData("❓ Помощь", order.CBHelp),
		),
	)
	b.send(msg)
}

func (b *Bot) sendHelp(chatID int64) {
	text := `❓ <b>Команды</b>

/order — оформить заказ на 3D-печать
/services — список услуг
/track — статус ваших заказов
/subscribe — уведомления о заказах на email
/unsubscribe — отключить уведомления
/cancel — отменить текущий заказ

Во время оформления можно прикреплять файлы моделей (.stl, .obj, .3mf, до 50 МБ).`
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	b.send(msg)
}

// sendServiceCatalog shows the read-only service list, outside the
// order flow.
func (b *Bot) sendServiceCatalog(ctx context.Context, chatID int64) {
	services, err := b.api.ListServices(ctx, true)
	if err != nil {
		b.logger.Error("service list failed", zap.Int64("chat_id", chatID), zap.Error(err))
		b.sendError(chatID, "Не удалось получить список услуг. Попробуйте позже.")
		return
	}
	if len(services) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "😔 Сейчас нет доступных услуг."))
		return
	}

	var sb strings.Builder
	sb.WriteString("📋 <b>Наши услуги</b>\n\n")
	for _, svc := range services {
		sb.WriteString(fmt.Sprintf("• <b>%s</b>", svc.Name))
		if svc.Description != "" {
			sb.WriteString("\n  " + svc.Description)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nОформить заказ: /order")

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🛍️ Оформить заказ", order.CBStartOrder),
		),
	)
	b.send(msg)
}

func (b *Bot) startTracking(ctx context.Context, chatID int64, args string) {
	email := strings.TrimSpace(args)
	if email != "" {
		b.showOrdersByEmail(ctx, chatID, email)
		return
	}

	b.setPending(chatID, pendingTrackEmail)
	msg := tgbotapi.NewMessage(chatID, "📦 Введите email, указанный при оформлении заказа:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", order.CBCancelTracking),
		),
	)
	b.send(msg)
}

func (b *Bot) showOrdersByEmail(ctx context.Context, chatID int64, email string) {
	if !order.ValidEmail(email) {
		b.sendError(chatID, "Это не похоже на email. Попробуйте ещё раз: /track")
		return
	}

	orders, err := b.api.OrdersByEmail(ctx, email)
	if err != nil {
		b.logger.Error("order lookup failed",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		b.sendError(chatID, "Не удалось получить заказы. Попробуйте позже.")
		return
	}
	if len(orders) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "По этому email заказов не найдено."))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📦 <b>Заказы для %s</b>\n\n", email))
	for _, o := range orders {
		sb.WriteString(fmt.Sprintf("№%d — %s", o.ID, statusLabel(o.Status)))
		if o.ServiceName != "" {
			sb.WriteString(" · " + o.ServiceName)
		}
		if o.TotalPrice > 0 {
			sb.WriteString(fmt.Sprintf(" · %.0f ₽", o.TotalPrice))
		}
		sb.WriteString("\n")
	}

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ParseMode = tgbotapi.ModeHTML
	b.send(msg)
}

var statusLabels = map[string]string{
	"new":           "🆕 новый",
	"confirmed":     "✅ подтверждён",
	"in_production": "🖨️ в печати",
	"ready":         "🎉 готов",
	"shipped":       "🚚 в доставке",
	"completed":     "✨ выполнен",
	"cancelled":     "❌ отменён",
}

func statusLabel(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}

func (b *Bot) startSubscribe(ctx context.Context, chatID int64, args string) {
	email := strings.TrimSpace(args)
	if email != "" {
		b.doSubscribe(ctx, chatID, email)
		return
	}

	b.setPending(chatID, pendingSubscribeEmail)
	msg := tgbotapi.NewMessage(chatID,
		"🔔 Введите email, о заказах которого присылать уведомления:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", order.CBCancelSubscribe),
		),
	)
	b.send(msg)
}

func (b *Bot) doSubscribe(ctx context.Context, chatID int64, email string) {
	sub, err := b.subs.Subscribe(ctx, chatID, email, nil)
	if err != nil {
		b.logger.Warn("subscribe failed",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		b.sendError(chatID, "Не удалось оформить подписку. Проверьте email и попробуйте снова: /subscribe")
		return
	}
	b.send(tgbotapi.NewMessage(chatID,
		fmt.Sprintf("🔔 Готово! Буду присылать уведомления о заказах на %s.\nОтключить: /unsubscribe", sub.Email)))
}

func (b *Bot) handleUnsubscribe(ctx context.Context, chatID int64) {
	ok, err := b.subs.Unsubscribe(ctx, chatID)
	if err != nil {
		b.logger.Error("unsubscribe failed", zap.Int64("chat_id", chatID), zap.Error(err))
		b.sendError(chatID, "Не удалось отключить уведомления. Попробуйте позже.")
		return
	}
	if !ok {
		b.send(tgbotapi.NewMessage(chatID, "У вас нет активной подписки."))
		return
	}
	b.send(tgbotapi.NewMessage(chatID, "🔕 Уведомления отключены. Включить снова: /subscribe"))
}

// handleExport sends an xlsx with a customer's orders. Admin only.
func (b *Bot) handleExport(ctx context.Context, chatID int64, args string) {
	if !b.isAdmin(chatID) {
		b.send(tgbotapi.NewMessage(chatID, "Эта команда доступна только администраторам."))
		return
	}

	email := strings.TrimSpace(args)
	if !order.ValidEmail(email) {
		b.send(tgbotapi.NewMessage(chatID, "Использование: /export customer@example.com"))
		return
	}

	orders, err := b.api.OrdersByEmail(ctx, email)
	if err != nil {
		b.logger.Error("export lookup failed", zap.String("email", email), zap.Error(err))
		b.sendError(chatID, "Не удалось получить заказы для экспорта.")
		return
	}

	data, err := export.OrdersToExcel(orders)
	if err != nil {
		b.logger.Error("export build failed", zap.String("email", email), zap.Error(err))
		b.sendError(chatID, "Не удалось сформировать файл экспорта.")
		return
	}

	filename := fmt.Sprintf("orders_%s.xlsx", time.Now().Format("2006-01-02"))
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: filename, Bytes: data})
	doc.Caption = fmt.Sprintf("Заказы %s: %d шт.", email, len(orders))
	if _, err := b.bot.Send(doc); err != nil {
		b.logger.Error("export send failed", zap.Int64("chat_id", chatID), zap.Error(err))
		b.sendError(chatID, "Не удалось отправить файл.")
	}
}
