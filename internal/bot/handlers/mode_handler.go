package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/miabot/mia/internal/modes"
)

// NewModeHandler returns the handler for the /mode command, which renders
// the first page of the mode-selection keyboard.
func NewModeHandler(deps HandlerDeps) bot.HandlerFunc {
	return modeHandler{deps}.Handle
}

type modeHandler struct {
	deps HandlerDeps
}

func (h modeHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "mode")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Mode handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	markup := modesKeyboard(h.deps.Registry, 0, h.deps.Config.Modes.PageSize)
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      update.Message.Chat.ID,
		Text:        msgPickMode,
		ParseMode:   models.ParseModeMarkdown,
		ReplyMarkup: markup,
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send mode keyboard", "error", err, "chat_id", update.Message.Chat.ID)
	}
}

// NewSetModeCallbackHandler returns the handler for "set_mode|<key>"
// callbacks: it switches the persona, starts a fresh conversation, and
// replaces the keyboard message with the mode's welcome text.
func NewSetModeCallbackHandler(deps HandlerDeps) bot.HandlerFunc {
	return setModeCallbackHandler{deps}.Handle
}

type setModeCallbackHandler struct {
	deps HandlerDeps
}

func (h setModeCallbackHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "set_mode")

	query := update.CallbackQuery
	if query == nil {
		return
	}
	answerCallback(ctx, b, log, query.ID)

	chatID, messageID, ok := callbackMessageRef(query)
	if !ok {
		log.WarnContext(ctx, "Set-mode callback without accessible message", "user_id", query.From.ID)
		return
	}

	modeKey := strings.TrimPrefix(query.Data, callbackSetMode)
	mode, err := h.deps.Controller.SwitchMode(ctx, query.From.ID, modeKey)
	if err != nil {
		log.ErrorContext(ctx, "Failed to switch mode", "error", err, "user_id", query.From.ID, "mode", modeKey)
		editText(ctx, b, log, chatID, messageID, msgGeneralError)
		return
	}

	log.InfoContext(ctx, "Mode selected", "user_id", query.From.ID, "mode", mode.Key)
	editText(ctx, b, log, chatID, messageID,
		fmt.Sprintf("%s Modo *%s* activado.\n\n_%s_", mode.Emoji, mode.Name, mode.Welcome))
}

// NewModePageCallbackHandler returns the handler for "mode_page|<n>"
// callbacks, which page the keyboard in place.
func NewModePageCallbackHandler(deps HandlerDeps) bot.HandlerFunc {
	return modePageCallbackHandler{deps}.Handle
}

type modePageCallbackHandler struct {
	deps HandlerDeps
}

func (h modePageCallbackHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "mode_page")

	query := update.CallbackQuery
	if query == nil {
		return
	}
	answerCallback(ctx, b, log, query.ID)

	chatID, messageID, ok := callbackMessageRef(query)
	if !ok {
		log.WarnContext(ctx, "Mode-page callback without accessible message", "user_id", query.From.ID)
		return
	}

	page, err := strconv.Atoi(strings.TrimPrefix(query.Data, callbackModePage))
	if err != nil || page < 0 {
		log.WarnContext(ctx, "Invalid mode page in callback data", "data", query.Data)
		return
	}

	markup := modesKeyboard(h.deps.Registry, page, h.deps.Config.Modes.PageSize)
	_, err = b.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        msgPickMode,
		ParseMode:   models.ParseModeMarkdown,
		ReplyMarkup: markup,
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to page mode keyboard", "error", err, "chat_id", chatID)
	}
}

// modesKeyboard renders one registry page as an inline keyboard: two mode
// buttons per row plus a prev/next navigation row when there are more pages.
func modesKeyboard(registry *modes.Registry, page, pageSize int) *models.InlineKeyboardMarkup {
	p := registry.GetPage(page, pageSize)

	var keyboard [][]models.InlineKeyboardButton
	var row []models.InlineKeyboardButton
	for _, m := range p.Modes {
		row = append(row, models.InlineKeyboardButton{
			Text:         fmt.Sprintf("%s %s", m.Emoji, m.Name),
			CallbackData: callbackSetMode + m.Key,
		})
		if len(row) == 2 {
			keyboard = append(keyboard, row)
			row = nil
		}
	}
	if len(row) > 0 {
		keyboard = append(keyboard, row)
	}

	var nav []models.InlineKeyboardButton
	if p.HasPrev {
		nav = append(nav, models.InlineKeyboardButton{
			Text:         "⬅️ Anterior",
			CallbackData: callbackModePage + strconv.Itoa(page-1),
		})
	}
	if p.HasNext {
		nav = append(nav, models.InlineKeyboardButton{
			Text:         "Siguiente ➡️",
			CallbackData: callbackModePage + strconv.Itoa(page+1),
		})
	}
	if len(nav) > 0 {
		keyboard = append(keyboard, nav)
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: keyboard}
}
