package bot

import (
	"context"
	"errors"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"nordlayer-bot/internal/order"
)

// processText routes free text. An email prompt (tracking or
// subscribing) takes priority over any order session; otherwise the
// session step decides what the text means.
func (b *Bot) processText(ctx context.Context, chatID int64, text string) {
	switch b.takePending(chatID) {
	case pendingTrackEmail:
		b.showOrdersByEmail(ctx, chatID, text)
		return
	case pendingSubscribeEmail:
		b.doSubscribe(ctx, chatID, text)
		return
	}

	sess, err := b.sessions.Get(ctx, chatID)
	if err != nil {
		if errors.Is(err, order.ErrSessionNotFound) {
			b.sendMainMenu(chatID)
			return
		}
		b.logger.Error("session lookup failed", zap.Int64("chat_id", chatID), zap.Error(err))
		b.sendError(chatID, "Ошибка при обработке запроса. Попробуйте ещё раз.")
		return
	}

	if sess.Step == order.StepDelivery {
		b.handleEvent(ctx, chatID, order.DeliveryAddressText{Text: text})
		return
	}
	b.handleEvent(ctx, chatID, order.ContactText{Text: text})
}

// processDocument accepts model files. During the upload step the file
// is mirrored to the backend first, so the session only ever references
// files the backend knows about.
func (b *Bot) processDocument(ctx context.Context, chatID int64, doc *tgbotapi.Document) {
	file := order.FileRef{
		Name: doc.FileName,
		Size: int64(doc.FileSize),
	}

	// Rejected files and files outside an upload step never leave
	// Telegram.
	if order.CheckFile(file) != order.OutcomeOK || !b.awaitingFiles(ctx, chatID) {
		b.handleEvent(ctx, chatID, order.FileUploaded{File: file})
		return
	}

	remoteID, err := b.mirrorFile(ctx, doc)
	if err != nil {
		b.logger.Error("file mirror failed",
			zap.Int64("chat_id", chatID),
			zap.String("filename", doc.FileName),
			zap.Error(err))
		b.sendError(chatID, "Не удалось загрузить файл. Попробуйте отправить его ещё раз.")
		return
	}
	file.RemoteID = remoteID

	b.handleEvent(ctx, chatID, order.FileUploaded{File: file})
}

func (b *Bot) awaitingFiles(ctx context.Context, chatID int64) bool {
	sess, err := b.sessions.Get(ctx, chatID)
	return err == nil && sess.Step == order.StepFileUpload
}

// mirrorFile downloads a document from Telegram and re-uploads it to
// the backend, returning the backend's file id.
func (b *Bot) mirrorFile(ctx context.Context, doc *tgbotapi.Document) (string, error) {
	url, err := b.bot.GetFileDirectURL(doc.FileID)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, order.MaxFileSize+1))
	if err != nil {
		return "", err
	}

	result, err := b.api.UploadFile(ctx, doc.FileName, data, doc.MimeType)
	if err != nil {
		return "", err
	}
	return result.ID, nil
}
