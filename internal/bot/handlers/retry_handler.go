package handlers

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/miabot/mia/internal/chat"
)

// NewRetryHandler returns the handler for the /retry command, which redoes
// the last completed turn with a fresh provider call.
func NewRetryHandler(deps HandlerDeps) bot.HandlerFunc {
	return retryHandler{deps}.Handle
}

type retryHandler struct {
	deps HandlerDeps
}

func (h retryHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "retry")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Retry handler received update with nil message or sender", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID

	placeholder, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: msgThinking})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send placeholder", "error", err, "chat_id", chatID)
		return
	}

	answer, err := h.deps.Controller.Retry(ctx, userID)
	switch {
	case errors.Is(err, chat.ErrNothingToRetry):
		editText(ctx, b, log, chatID, placeholder.ID, msgNothingRetry)
	case err != nil:
		log.ErrorContext(ctx, "Retry failed", "error", err, "user_id", userID)
		editText(ctx, b, log, chatID, placeholder.ID, msgGeneralError)
	default:
		editText(ctx, b, log, chatID, placeholder.ID, answer)
	}
}
