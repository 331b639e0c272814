package order

import (
	"errors"
	"fmt"
	"strings"

	"nordlayer-bot/pkg/api"
)

// Keyboard option order is fixed so buttons do not reshuffle between
// messages.
var (
	materialOrder = []string{"pla", "petg", "abs", "tpu"}
	qualityOrder  = []string{"draft", "standard", "high"}
	infillOrder   = []int{15, 30, 50, 100}
)

const msgUnknownOption = "❌ Неизвестный вариант. Выберите один из предложенных ниже."

func catalogReply(services []api.Service, outcome Outcome) Reply {
	var b strings.Builder
	if outcome == OutcomeInvalidSelection {
		b.WriteString("❌ Эта услуга недоступна. Выберите из актуального списка:\n\n")
	} else {
		b.WriteString("🛍️ <b>Оформление заказа</b>\n\nВыберите услугу:\n\n")
	}

	keyboard := make([][]Button, 0, len(services)+1)
	for _, svc := range services {
		label := svc.Name
		if len([]rune(label)) > 30 {
			label = string([]rune(label)[:30]) + "…"
		}
		keyboard = append(keyboard, row(Button{
			Label: label,
			Data:  fmt.Sprintf("%s%d", CBSelectServicePfx, svc.ID),
		}))
		b.WriteString(fmt.Sprintf("• <b>%s</b>", svc.Name))
		if svc.Description != "" {
			b.WriteString(" — " + svc.Description)
		}
		b.WriteString("\n")
	}
	keyboard = append(keyboard, row(cancelButton))

	return Reply{Text: b.String(), Keyboard: keyboard, Outcome: outcome}
}

func noServicesReply() Reply {
	return Reply{
		Text:     "😔 Сейчас нет доступных услуг. Попробуйте позже.",
		Keyboard: [][]Button{row(Button{Label: "🏠 Главное меню", Data: CBMainMenu})},
		Outcome:  OutcomeOK,
	}
}

func noSessionReply() Reply {
	return Reply{
		Text: "У вас нет активного заказа. Начните оформление командой /order.",
		Keyboard: [][]Button{
			row(Button{Label: "🛍️ Оформить заказ", Data: CBStartOrder}),
			row(Button{Label: "🏠 Главное меню", Data: CBMainMenu}),
		},
		Outcome: OutcomeNoSession,
	}
}

// guidanceReply tells the user what the current step expects when an
// action arrives out of order.
func guidanceReply(step Step) Reply {
	var text string
	switch step {
	case StepServiceSelection:
		text = "Сначала выберите услугу из списка выше."
	case StepContactInfo:
		text = "Сейчас я собираю контактные данные. Ответьте на вопрос выше."
	case StepFileUpload:
		text = "Сейчас можно прикрепить файлы моделей или продолжить без них."
	case StepSpecifications:
		text = "Выберите параметры печати кнопками выше."
	case StepDelivery:
		text = "Выберите способ получения заказа кнопками выше."
	case StepConfirmation:
		text = "Проверьте данные заказа и подтвердите или отредактируйте их."
	default:
		text = "Это действие сейчас недоступно. Используйте /order, чтобы начать заказ."
	}
	return Reply{
		Text:     text,
		Keyboard: [][]Button{row(cancelButton)},
		Outcome:  OutcomeInvalidSelection,
	}
}

func upstreamReply(err error) Reply {
	text := "⚠️ Сервис временно недоступен. Попробуйте через пару минут."
	var se *api.StatusError
	if !errors.As(err, &se) && !errors.Is(err, api.ErrUnavailable) {
		text = "⚠️ Что-то пошло не так. Попробуйте ещё раз."
	}
	return Reply{
		Text:     text,
		Keyboard: [][]Button{row(Button{Label: "🏠 Главное меню", Data: CBMainMenu})},
		Outcome:  OutcomeUpstreamError,
	}
}

func namePrompt(serviceName string) Reply {
	text := "📝 <b>Контактные данные</b>\n\nКак к вам обращаться? Введите имя:"
	if serviceName != "" {
		text = fmt.Sprintf("✅ Услуга: <b>%s</b>\n\n%s", serviceName, text)
	}
	return Reply{
		Text: text,
		Keyboard: [][]Button{
			row(Button{Label: "⬅️ К выбору услуги", Data: CBBackToServices}),
			row(cancelButton),
		},
		Outcome: OutcomeOK,
	}
}

func invalidNameReply() Reply {
	return Reply{
		Text:     "❌ Имя должно быть от 2 до 50 символов и содержать только буквы, пробелы и дефисы. Попробуйте ещё раз:",
		Keyboard: [][]Button{row(cancelButton)},
		Outcome:  OutcomeValidationError,
	}
}

func emailPrompt(name string) Reply {
	return Reply{
		Text:     fmt.Sprintf("Приятно познакомиться, %s! 👋\n\nТеперь введите email для связи:", name),
		Keyboard: [][]Button{row(cancelButton)},
		Outcome:  OutcomeOK,
	}
}

func invalidEmailReply() Reply {
	return Reply{
		Text:     "❌ Это не похоже на email. Введите адрес в формате name@example.com:",
		Keyboard: [][]Button{row(cancelButton)},
		Outcome:  OutcomeValidationError,
	}
}

func phonePrompt(email string) Reply {
	return Reply{
		Text: fmt.Sprintf("✅ Email: %s\n\nВведите номер телефона или пропустите этот шаг:", email),
		Keyboard: [][]Button{
			row(Button{Label: "⏭️ Пропустить", Data: CBSkipPhone}),
			row(cancelButton),
		},
		Outcome: OutcomeOK,
	}
}

func invalidPhoneReply() Reply {
	return Reply{
		Text: "❌ Неверный формат телефона. Введите номер в международном формате, например +79161234567, или пропустите шаг:",
		Keyboard: [][]Button{
			row(Button{Label: "⏭️ Пропустить", Data: CBSkipPhone}),
			row(cancelButton),
		},
		Outcome: OutcomeValidationError,
	}
}

func contactsCollectedReply() Reply {
	return Reply{
		Text:     "Контактные данные уже собраны. Продолжайте оформление кнопками выше.",
		Keyboard: [][]Button{row(cancelButton)},
		Outcome:  OutcomeOK,
	}
}

func fileUploadPrompt(sess *OrderSession) Reply {
	var b strings.Builder
	b.WriteString("📎 <b>Файлы моделей</b>\n\n")
	b.WriteString(fmt.Sprintf("Прикрепите файлы для печати (%s, до 50 МБ каждый) или продолжите без файлов.\n",
		strings.Join(AllowedExtensions(), ", ")))
	writeFileList(&b, sess.Files)

	return Reply{Text: b.String(), Keyboard: fileKeyboard(len(sess.Files)), Outcome: OutcomeOK}
}

func writeFileList(b *strings.Builder, files []FileRef) {
	if len(files) == 0 {
		return
	}
	b.WriteString("\nЗагружено:\n")
	for i, f := range files {
		b.WriteString(fmt.Sprintf("%d. %s (%s)\n", i+1, f.Name, formatSize(f.Size)))
	}
}

func fileKeyboard(fileCount int) [][]Button {
	continueLabel := "➡️ Продолжить без файлов"
	if fileCount > 0 {
		continueLabel = "➡️ Продолжить"
	}
	keyboard := [][]Button{row(Button{Label: continueLabel, Data: CBContinueFiles})}
	if fileCount > 0 {
		keyboard = append(keyboard, row(Button{Label: "🗑️ Удалить последний файл", Data: CBRemoveLastFile}))
	}
	keyboard = append(keyboard,
		row(Button{Label: "⬅️ К контактам", Data: CBBackToContacts}),
		row(cancelButton),
	)
	return keyboard
}

func fileRejectedReply(file FileRef, outcome Outcome) Reply {
	var text string
	switch outcome {
	case OutcomeUnsupportedFormat:
		text = fmt.Sprintf("❌ Формат файла «%s» не поддерживается.\n\nПринимаются: %s",
			file.Name, strings.Join(AllowedExtensions(), ", "))
	case OutcomeFileTooLarge:
		text = fmt.Sprintf("❌ Файл «%s» слишком большой (%s). Максимальный размер — 50 МБ.",
			file.Name, formatSize(file.Size))
	default:
		text = "❌ Не удалось принять файл."
	}
	return Reply{Text: text, Outcome: outcome}
}

// standaloneFileReply acknowledges a model file sent outside an order.
func standaloneFileReply(file FileRef) Reply {
	return Reply{
		Text: fmt.Sprintf("📁 Получил файл «%s». Чтобы заказать печать, начните оформление:", file.Name),
		Keyboard: [][]Button{
			row(Button{Label: "🛍️ Оформить заказ", Data: CBStartOrder}),
		},
		Outcome: OutcomeOK,
	}
}

func fileAcceptedReply(file FileRef, total int) Reply {
	return Reply{
		Text: fmt.Sprintf("✅ Файл «%s» (%s) добавлен. Всего файлов: %d.\n\nМожно прикрепить ещё или продолжить.",
			file.Name, formatSize(file.Size), total),
		Keyboard: fileKeyboard(total),
		Outcome:  OutcomeOK,
	}
}

func nothingToRemoveReply() Reply {
	return Reply{
		Text:     "❌ Нет файлов для удаления.",
		Keyboard: fileKeyboard(0),
		Outcome:  OutcomeNothingToRemove,
	}
}

func fileRemovedReply(removed FileRef, remaining int) Reply {
	return Reply{
		Text:     fmt.Sprintf("🗑️ Файл «%s» удалён. Осталось файлов: %d.", removed.Name, remaining),
		Keyboard: fileKeyboard(remaining),
		Outcome:  OutcomeOK,
	}
}

func materialPrompt() Reply {
	return Reply{
		Text:     "⚙️ <b>Параметры печати</b>\n\nВыберите материал:",
		Keyboard: materialKeyboard(),
		Outcome:  OutcomeOK,
	}
}

func materialKeyboard() [][]Button {
	keyboard := make([][]Button, 0, len(materialOrder)+2)
	for _, m := range materialOrder {
		keyboard = append(keyboard, row(Button{Label: materials[m], Data: CBSelectMaterialPfx + m}))
	}
	keyboard = append(keyboard,
		row(Button{Label: "⬅️ К файлам", Data: CBBackToFiles}),
		row(cancelButton),
	)
	return keyboard
}

func qualityPrompt(material string) Reply {
	return Reply{
		Text:     fmt.Sprintf("✅ Материал: %s\n\nВыберите качество печати:", materials[material]),
		Keyboard: qualityKeyboard(),
		Outcome:  OutcomeOK,
	}
}

func qualityKeyboard() [][]Button {
	keyboard := make([][]Button, 0, len(qualityOrder)+2)
	for _, q := range qualityOrder {
		keyboard = append(keyboard, row(Button{Label: qualities[q], Data: CBSelectQualityPfx + q}))
	}
	keyboard = append(keyboard,
		row(Button{Label: "⬅️ К параметрам", Data: CBBackToSpecs}),
		row(cancelButton),
	)
	return keyboard
}

func infillPrompt(quality string) Reply {
	return Reply{
		Text:     fmt.Sprintf("✅ Качество: %s\n\nВыберите заполнение модели:", qualities[quality]),
		Keyboard: infillKeyboard(),
		Outcome:  OutcomeOK,
	}
}

func infillKeyboard() [][]Button {
	keyboard := make([][]Button, 0, len(infillOrder)+2)
	for _, i := range infillOrder {
		keyboard = append(keyboard, row(Button{
			Label: infills[i],
			Data:  fmt.Sprintf("%s%d", CBSelectInfillPfx, i),
		}))
	}
	keyboard = append(keyboard,
		row(Button{Label: "⬅️ К параметрам", Data: CBBackToSpecs}),
		row(cancelButton),
	)
	return keyboard
}

func deliveryPrompt() Reply {
	return Reply{
		Text: "🚚 <b>Получение заказа</b>\n\nКак вы хотите получить заказ?",
		Keyboard: [][]Button{
			row(Button{Label: "🏢 Самовывоз", Data: CBDeliveryPickup}),
			row(Button{Label: "🚚 Доставка", Data: CBDeliveryShipping}),
			row(Button{Label: "⬅️ К параметрам", Data: CBBackToSpecs}),
			row(cancelButton),
		},
		Outcome: OutcomeOK,
	}
}

func addressPrompt() Reply {
	return Reply{
		Text: "📍 Введите адрес доставки (город, улица, дом):",
		Keyboard: [][]Button{
			row(Button{Label: "⬅️ К способу получения", Data: CBBackToDelivery}),
			row(cancelButton),
		},
		Outcome: OutcomeOK,
	}
}

func invalidAddressReply() Reply {
	return Reply{
		Text: "❌ Адрес слишком короткий. Укажите город, улицу и дом:",
		Keyboard: [][]Button{
			row(Button{Label: "⬅️ К способу получения", Data: CBBackToDelivery}),
			row(cancelButton),
		},
		Outcome: OutcomeValidationError,
	}
}

func summaryReply(sess *OrderSession) Reply {
	var b strings.Builder
	b.WriteString("📋 <b>Проверьте заказ</b>\n\n")
	b.WriteString(fmt.Sprintf("🛍️ Услуга: %s\n", sess.ServiceName))
	b.WriteString(fmt.Sprintf("👤 Имя: %s\n", sess.CustomerName))
	b.WriteString(fmt.Sprintf("📧 Email: %s\n", sess.CustomerEmail))
	if sess.PhoneStatus == PhoneProvided {
		b.WriteString(fmt.Sprintf("📱 Телефон: %s\n", sess.CustomerPhone))
	} else {
		b.WriteString("📱 Телефон: не указан\n")
	}

	if len(sess.Files) == 0 {
		b.WriteString("📎 Файлы: без файлов\n")
	} else {
		b.WriteString(fmt.Sprintf("📎 Файлы: %d шт.\n", len(sess.Files)))
		for i, f := range sess.Files {
			b.WriteString(fmt.Sprintf("   %d. %s (%s)\n", i+1, f.Name, formatSize(f.Size)))
		}
	}

	b.WriteString(fmt.Sprintf("⚙️ Материал: %s\n", materials[sess.Specs.Material]))
	b.WriteString(fmt.Sprintf("✨ Качество: %s\n", qualities[sess.Specs.Quality]))
	b.WriteString(fmt.Sprintf("🔲 Заполнение: %d%%\n", sess.Specs.Infill))

	if sess.DeliveryNeeded != nil && *sess.DeliveryNeeded {
		b.WriteString(fmt.Sprintf("🚚 Доставка: %s\n", sess.DeliveryAddress))
	} else {
		b.WriteString("🏢 Получение: самовывоз\n")
	}
	b.WriteString("\nВсё верно?")

	return Reply{
		Text: b.String(),
		Keyboard: [][]Button{
			row(Button{Label: "✅ Подтвердить заказ", Data: CBConfirm}),
			row(Button{Label: "✏️ Редактировать", Data: CBEditMenu}),
			row(cancelButton),
		},
		Outcome: OutcomeOK,
	}
}

func editMenuReply() Reply {
	return Reply{
		Text: "✏️ Что нужно изменить?",
		Keyboard: [][]Button{
			row(Button{Label: "🛍️ Услугу", Data: CBBackToServices}),
			row(Button{Label: "👤 Контакты", Data: CBBackToContacts}),
			row(Button{Label: "📎 Файлы", Data: CBBackToFiles}),
			row(Button{Label: "⚙️ Параметры печати", Data: CBBackToSpecs}),
			row(Button{Label: "🚚 Получение", Data: CBBackToDelivery}),
			row(cancelButton),
		},
		Outcome: OutcomeOK,
	}
}

var missingFieldNames = map[string]string{
	"service":          "услуга",
	"name":             "имя",
	"email":            "email",
	"phone":            "телефон",
	"specifications":   "параметры печати",
	"delivery":         "способ получения",
	"delivery_address": "адрес доставки",
}

func incompleteOrderReply(missing string) Reply {
	name := missingFieldNames[missing]
	if name == "" {
		name = missing
	}
	return Reply{
		Text:     fmt.Sprintf("❌ Заказ ещё не заполнен: не хватает поля «%s». Вернитесь к этому шагу.", name),
		Keyboard: [][]Button{row(Button{Label: "✏️ Редактировать", Data: CBEditMenu}), row(cancelButton)},
		Outcome:  OutcomeValidationError,
	}
}

func submissionFailedReply(err error) Reply {
	text := "😔 Не удалось отправить заказ. Данные сохранены, попробуйте ещё раз."
	if api.IsRejected(err) {
		text = "😔 Сервис отклонил заказ. Проверьте данные и попробуйте снова."
	}
	return Reply{
		Text: text,
		Keyboard: [][]Button{
			row(Button{Label: "🔄 Повторить", Data: CBConfirm}),
			row(Button{Label: "✏️ Редактировать", Data: CBEditMenu}),
			row(cancelButton),
		},
		Outcome: OutcomeSubmissionFailed,
	}
}

func submittedReply(orderID int64, sess *OrderSession) Reply {
	return Reply{
		Text: fmt.Sprintf(
			"🎉 <b>Заказ №%d оформлен!</b>\n\nМы свяжемся с вами по адресу %s.\nОтслеживать статус: /track",
			orderID, sess.CustomerEmail),
		Keyboard: [][]Button{
			row(Button{Label: "📦 Отследить заказ", Data: CBTrackOrder}),
			row(Button{Label: "🏠 Главное меню", Data: CBMainMenu}),
		},
		Outcome: OutcomeSubmitted,
	}
}

func cancelledReply() Reply {
	return Reply{
		Text: "❌ Заказ отменён. Данные удалены.",
		Keyboard: [][]Button{
			row(Button{Label: "🛍️ Оформить заказ", Data: CBStartOrder}),
			row(Button{Label: "🏠 Главное меню", Data: CBMainMenu}),
		},
		Outcome: OutcomeCancelled,
	}
}

func nothingToCancelReply() Reply {
	return Reply{
		Text:     "У вас нет активного заказа.",
		Keyboard: [][]Button{row(Button{Label: "🏠 Главное меню", Data: CBMainMenu})},
		Outcome:  OutcomeNoSession,
	}
}

func formatSize(size int64) string {
	switch {
	case size >= 1024*1024:
		return fmt.Sprintf("%.1f МБ", float64(size)/(1024*1024))
	case size >= 1024:
		return fmt.Sprintf("%.1f КБ", float64(size)/1024)
	}
	return fmt.Sprintf("%d Б", size)
}
