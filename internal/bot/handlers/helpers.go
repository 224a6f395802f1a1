package handlers

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// sendText sends a plain text message and logs a send failure.
func sendText(ctx context.Context, b *bot.Bot, log *slog.Logger, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send message", "error", err, "chat_id", chatID)
	}
}

// answerCallback acknowledges a callback query so the client spinner stops.
func answerCallback(ctx context.Context, b *bot.Bot, log *slog.Logger, queryID string) {
	_, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: queryID})
	if err != nil {
		log.ErrorContext(ctx, "Failed to answer callback query", "error", err)
	}
}

// callbackMessageRef extracts the chat and message IDs of the message a
// callback query originated from. Returns ok=false for inaccessible messages
// (too old or deleted), which cannot be edited.
func callbackMessageRef(query *models.CallbackQuery) (chatID int64, messageID int, ok bool) {
	if query.Message.Message == nil {
		return 0, 0, false
	}
	return query.Message.Message.Chat.ID, query.Message.Message.ID, true
}

// editText edits a previously sent message with Markdown formatting, falling
// back to plain text when Telegram rejects the markup (model output is not
// guaranteed to be valid Markdown).
func editText(ctx context.Context, b *bot.Bot, log *slog.Logger, chatID int64, messageID int, text string) {
	_, err := b.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
		ParseMode: models.ParseModeMarkdown,
	})
	if err == nil {
		return
	}
	log.DebugContext(ctx, "Markdown edit rejected, retrying as plain text", "error", err)

	_, err = b.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to edit message", "error", err, "chat_id", chatID, "message_id", messageID)
	}
}
