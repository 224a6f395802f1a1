package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewNewDialogHandler returns the handler for the /new command.
func NewNewDialogHandler(deps HandlerDeps) bot.HandlerFunc {
	return newDialogHandler{deps}.Handle
}

type newDialogHandler struct {
	deps HandlerDeps
}

func (h newDialogHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "new")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "New-dialog handler received update with nil message or sender", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID

	mode, err := h.deps.Controller.StartNew(ctx, userID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to start new conversation", "error", err, "user_id", userID)
		sendText(ctx, b, log, chatID, msgGeneralError)
		return
	}

	log.InfoContext(ctx, "Started new conversation", "user_id", userID, "mode", mode.Key)
	_, err = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      fmt.Sprintf("🔄 ¡Nueva conversación iniciada!\nModo: *%s* %s", mode.Name, mode.Emoji),
		ParseMode: models.ParseModeMarkdown,
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send confirmation", "error", err, "chat_id", chatID)
	}
}
