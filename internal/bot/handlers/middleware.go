package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// AllowedOnly creates a middleware that rejects updates from users outside
// the allow-list. Message senders get a visible rejection; callback queries
// are answered silently so the client spinner stops.
func AllowedOnly(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			log := deps.Logger.With("middleware", "allowed_only")

			switch {
			case update.Message != nil && update.Message.From != nil:
				if deps.Controller.Allowed(update.Message.From.ID) {
					next(ctx, b, update)
					return
				}
				log.WarnContext(ctx, "Unauthorized user rejected",
					"user_id", update.Message.From.ID, "chat_id", update.Message.Chat.ID)
				_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
					ChatID: update.Message.Chat.ID,
					Text:   msgNotAuthorized,
				})
				if err != nil {
					log.ErrorContext(ctx, "Failed to send unauthorized message", "error", err)
				}

			case update.CallbackQuery != nil:
				if deps.Controller.Allowed(update.CallbackQuery.From.ID) {
					next(ctx, b, update)
					return
				}
				log.WarnContext(ctx, "Unauthorized callback rejected", "user_id", update.CallbackQuery.From.ID)
				_, err := b.AnswerCallbackQuery(ctx, &tgbot.AnswerCallbackQueryParams{
					CallbackQueryID: update.CallbackQuery.ID,
					Text:            msgNotAuthorized,
				})
				if err != nil {
					log.ErrorContext(ctx, "Failed to answer unauthorized callback", "error", err)
				}

			default:
				next(ctx, b, update)
			}
		}
	}
}
