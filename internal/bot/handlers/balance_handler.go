package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewBalanceHandler returns the handler for the /balance command.
func NewBalanceHandler(deps HandlerDeps) bot.HandlerFunc {
	return balanceHandler{deps}.Handle
}

type balanceHandler struct {
	deps HandlerDeps
}

func (h balanceHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "balance")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Balance handler received update with nil message or sender", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID

	usage, err := h.deps.Controller.GetUsage(ctx, userID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to get usage", "error", err, "user_id", userID)
		sendText(ctx, b, log, chatID, msgGeneralError)
		return
	}

	text := fmt.Sprintf(
		"📊 *Tu uso con Mia*\n\n"+
			"🔢 Tokens usados: *%d*\n"+
			"💰 Costo estimado: *$%.4f*",
		usage.TotalTokens, usage.EstimatedCost,
	)
	_, err = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeMarkdown,
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send balance", "error", err, "chat_id", chatID)
	}
}
