package bot

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"nordlayer-bot/internal/config"
	"nordlayer-bot/internal/order"
	"nordlayer-bot/internal/subscription"
	"nordlayer-bot/pkg/api"
)

// pendingInput marks a user we asked for free text outside an order
// flow (an email for tracking or subscribing).
type pendingInput int

const (
	pendingNone pendingInput = iota
	pendingTrackEmail
	pendingSubscribeEmail
)

// Bot is the Telegram transport: it classifies updates into order
// events, renders replies, and handles the commands that live outside
// the order flow.
type Bot struct {
	bot      *tgbotapi.BotAPI
	machine  *order.Machine
	sessions order.Store
	subs     *subscription.Manager
	api      *api.Client
	cfg      *config.Config
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[int64]pendingInput
}

func New(
	cfg *config.Config,
	machine *order.Machine,
	sessions order.Store,
	subs *subscription.Manager,
	apiClient *api.Client,
	logger *zap.Logger,
) (*Bot, error) {
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create bot API: %w", err)
	}

	logger.Info("bot authorized",
		zap.String("username", botAPI.Self.UserName),
		zap.Int64("id", botAPI.Self.ID))

	return &Bot{
		bot:      botAPI,
		machine:  machine,
		sessions: sessions,
		subs:     subs,
		api:      apiClient,
		cfg:      cfg,
		logger:   logger,
		pending:  make(map[int64]pendingInput),
	}, nil
}

// Start consumes updates until the context is cancelled. Each update is
// handled on its own goroutine; the session store serializes work per
// user.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("starting update loop")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.bot.GetUpdatesChan(u)

	b.runUpdates(ctx, updates)
	b.bot.StopReceivingUpdates()
	return nil
}

// runUpdates dispatches updates until ctx is cancelled, then waits for
// in-flight handlers so shutdown does not abandon a submission midway.
func (b *Bot) runUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("stopping update loop")
			wg.Wait()
			return

		case update := <-updates:
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic while handling update",
				zap.Any("panic", r),
				zap.Int("update_id", update.UpdateID))
		}
	}()

	switch {
	case update.Message != nil:
		b.processMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.processCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) processMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		b.handleCommand(ctx, chatID, msg.Command(), msg.CommandArguments())
		return
	}
	if msg.Document != nil {
		b.processDocument(ctx, chatID, msg.Document)
		return
	}
	if msg.Text != "" {
		b.processText(ctx, chatID, msg.Text)
	}
}

func (b *Bot) processCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	// Stop the client-side spinner whatever happens next.
	if _, err := b.bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Debug("callback ack failed", zap.Error(err))
	}

	b.logger.Debug("callback received",
		zap.Int64("chat_id", chatID),
		zap.String("data", cb.Data))
	b.dispatchCallback(ctx, chatID, cb.Data)
}

func (b *Bot) setPending(chatID int64, p pendingInput) {
	b.mu.Lock()
	if p == pendingNone {
		delete(b.pending, chatID)
	} else {
		b.pending[chatID] = p
	}
	b.mu.Unlock()
}

func (b *Bot) takePending(chatID int64) pendingInput {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.pending[chatID]
	delete(b.pending, chatID)
	return p
}

// handleEvent runs one event through the state machine and sends the
// resulting reply.
func (b *Bot) handleEvent(ctx context.Context, chatID int64, ev order.Event) {
	reply, err := b.machine.Handle(ctx, chatID, ev)
	if err != nil {
		b.logger.Error("event handling failed",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		b.sendError(chatID, "Ошибка при обработке запроса. Попробуйте ещё раз.")
		return
	}
	b.sendReply(chatID, reply)
}

func (b *Bot) sendReply(chatID int64, reply order.Reply) {
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	if len(reply.Keyboard) > 0 {
		msg.ReplyMarkup = toInlineKeyboard(reply.Keyboard)
	}
	b.send(msg)
}

func (b *Bot) send(msg tgbotapi.MessageConfig) {
	if _, err := b.bot.Send(msg); err != nil {
		b.logger.Error("failed to send message",
			zap.Int64("chat_id", msg.ChatID),
			zap.Error(err))
	}
}

func (b *Bot) sendError(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, "❌ "+text))
}

// SendMessage delivers a notification; it implements the dispatcher's
// sender contract.
func (b *Bot) SendMessage(_ context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.bot.Send(msg); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

func toInlineKeyboard(rows [][]order.Button) tgbotapi.InlineKeyboardMarkup {
	markup := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, r := range rows {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
		for _, btn := range r {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Data))
		}
		markup = append(markup, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(markup...)
}

func (b *Bot) isAdmin(chatID int64) bool {
	for _, id := range b.cfg.AdminIDs {
		if id == chatID {
			return true
		}
	}
	return false
}
