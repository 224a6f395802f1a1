package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewSettingsHandler returns the handler for the /settings command, which
// shows the active mode and the configured models.
func NewSettingsHandler(deps HandlerDeps) bot.HandlerFunc {
	return settingsHandler{deps}.Handle
}

type settingsHandler struct {
	deps HandlerDeps
}

func (h settingsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "settings")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Settings handler received update with nil message or sender", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID

	mode, err := h.deps.Controller.CurrentMode(ctx, userID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to resolve current mode", "error", err, "user_id", userID)
		sendText(ctx, b, log, chatID, msgGeneralError)
		return
	}

	text := fmt.Sprintf(
		"⚙️ *Configuración*\n\n"+
			"🎭 Modo actual: %s *%s*\n"+
			"🧠 Modelo de texto: `%s`\n"+
			"🎨 Modelo de imagen: `%s`\n\n"+
			"Usa /mode para cambiar de modo.",
		mode.Emoji, mode.Name, h.deps.Config.AI.Model, h.deps.Config.AI.ImageModel,
	)
	_, err = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeMarkdown,
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send settings", "error", err, "chat_id", chatID)
	}
}
