package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"nordlayer-bot/internal/order"
)

// dispatchCallback translates button presses into order events or
// bot-level actions.
func (b *Bot) dispatchCallback(ctx context.Context, chatID int64, data string) {
	// Prefixed callbacks carry a payload after the prefix.
	switch {
	case strings.HasPrefix(data, order.CBSelectServicePfx):
		id, err := strconv.Atoi(strings.TrimPrefix(data, order.CBSelectServicePfx))
		if err != nil {
			b.sendError(chatID, "Некорректный выбор услуги.")
			return
		}
		b.handleEvent(ctx, chatID, order.SelectService{ID: id})
		return

	case strings.HasPrefix(data, order.CBSelectMaterialPfx):
		b.handleEvent(ctx, chatID, order.SelectMaterial{
			Material: strings.TrimPrefix(data, order.CBSelectMaterialPfx),
		})
		return

	case strings.HasPrefix(data, order.CBSelectQualityPfx):
		b.handleEvent(ctx, chatID, order.SelectQuality{
			Quality: strings.TrimPrefix(data, order.CBSelectQualityPfx),
		})
		return

	case strings.HasPrefix(data, order.CBSelectInfillPfx):
		infill, err := strconv.Atoi(strings.TrimPrefix(data, order.CBSelectInfillPfx))
		if err != nil {
			b.sendError(chatID, "Некорректный вариант заполнения.")
			return
		}
		b.handleEvent(ctx, chatID, order.SelectInfill{Infill: infill})
		return
	}

	switch data {
	case order.CBStartOrder:
		b.setPending(chatID, pendingNone)
		b.handleEvent(ctx, chatID, order.StartOrder{})
	case order.CBSkipPhone:
		b.handleEvent(ctx, chatID, order.SkipPhone{})
	case order.CBContinueFiles:
		b.handleEvent(ctx, chatID, order.ContinueToSpecs{})
	case order.CBRemoveLastFile:
		b.handleEvent(ctx, chatID, order.RemoveLastFile{})
	case order.CBDeliveryPickup:
		b.handleEvent(ctx, chatID, order.ChooseDelivery{Shipping: false})
	case order.CBDeliveryShipping:
		b.handleEvent(ctx, chatID, order.ChooseDelivery{Shipping: true})
	case order.CBConfirm:
		b.handleEvent(ctx, chatID, order.Confirm{})
	case order.CBEditMenu:
		b.handleEvent(ctx, chatID, order.ShowEditMenu{})
	case order.CBCancel:
		b.handleEvent(ctx, chatID, order.Cancel{})

	case order.CBBackToServices:
		b.handleEvent(ctx, chatID, order.NavigateBack{Target: order.StepServiceSelection})
	case order.CBBackToContacts:
		b.handleEvent(ctx, chatID, order.NavigateBack{Target: order.StepContactInfo})
	case order.CBBackToFiles:
		b.handleEvent(ctx, chatID, order.NavigateBack{Target: order.StepFileUpload})
	case order.CBBackToSpecs:
		b.handleEvent(ctx, chatID, order.NavigateBack{Target: order.StepSpecifications})
	case order.CBBackToDelivery:
		b.handleEvent(ctx, chatID, order.NavigateBack{Target: order.StepDelivery})

	case order.CBMainMenu:
		b.setPending(chatID, pendingNone)
		b.sendMainMenu(chatID)
	case order.CBShowServices:
		b.sendServiceCatalog(ctx, chatID)
	case order.CBTrackOrder:
		b.startTracking(ctx, chatID, "")
	case order.CBHelp:
		b.sendHelp(chatID)
	case order.CBSubscribe:
		b.startSubscribe(ctx, chatID, "")
	case order.CBUnsubscribe:
		b.handleUnsubscribe(ctx, chatID)
	case order.CBCancelTracking, order.CBCancelSubscribe:
		b.setPending(chatID, pendingNone)
		b.send(tgbotapi.NewMessage(chatID, "Хорошо, отменил."))

	default:
		b.logger.Warn("unknown callback data", zap.String("data", data))
		b.sendError(chatID, "Эта кнопка устарела. Начните заново: /start")
	}
}
