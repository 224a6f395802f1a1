package handlers

import (
	"bytes"
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewImageHandler returns the handler for the /image command.
func NewImageHandler(deps HandlerDeps) bot.HandlerFunc {
	return imageHandler{deps}.Handle
}

type imageHandler struct {
	deps HandlerDeps
}

func (h imageHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "image")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Image handler received update with nil message or sender", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID

	prompt := strings.TrimSpace(strings.TrimPrefix(update.Message.Text, "/image"))
	if prompt == "" {
		_, err := b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      msgImageUsage,
			ParseMode: models.ParseModeMarkdown,
		})
		if err != nil {
			log.ErrorContext(ctx, "Failed to send image usage", "error", err, "chat_id", chatID)
		}
		return
	}

	_, err := b.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: chatID,
		Action: models.ChatActionUploadPhoto,
	})
	if err != nil {
		log.DebugContext(ctx, "Failed to send chat action", "error", err, "chat_id", chatID)
	}

	img, _, err := h.deps.Controller.GenerateImage(ctx, userID, prompt)
	if err != nil {
		log.ErrorContext(ctx, "Image generation failed", "error", err, "user_id", userID)
		sendText(ctx, b, log, chatID, msgImageError)
		return
	}

	log.InfoContext(ctx, "Image generated", "user_id", userID, "bytes", len(img))
	_, err = b.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:  chatID,
		Photo:   &models.InputFileUpload{Filename: "mia.png", Data: bytes.NewReader(img)},
		Caption: prompt,
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send photo", "error", err, "chat_id", chatID)
		sendText(ctx, b, log, chatID, msgImageError)
	}
}
