package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/miabot/mia/internal/chat"
)

// maxVoiceDownloadBytes bounds voice note downloads; Telegram bot API files
// are capped at 20 MB anyway.
const maxVoiceDownloadBytes = 20 << 20

// NewMessageHandler returns the default handler for plain messages: text
// runs a conversation turn, voice notes are transcribed first.
func NewMessageHandler(deps HandlerDeps) bot.HandlerFunc {
	return messageHandler{deps}.Handle
}

type messageHandler struct {
	deps HandlerDeps
}

func (h messageHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "message")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	if !h.deps.Controller.Allowed(update.Message.From.ID) {
		log.WarnContext(ctx, "Unauthorized user rejected", "user_id", update.Message.From.ID)
		sendText(ctx, b, log, update.Message.Chat.ID, msgNotAuthorized)
		return
	}

	if update.Message.Voice != nil {
		h.handleVoice(ctx, b, log, update)
		return
	}
	h.handleText(ctx, b, log, update)
}

func (h messageHandler) handleText(ctx context.Context, b *bot.Bot, log *slog.Logger, update *models.Update) {
	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID
	text := update.Message.Text

	// Unknown commands fall through to the default handler; they are not
	// conversation input.
	if strings.HasPrefix(strings.TrimSpace(text), "/") {
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	h.sendTyping(ctx, b, chatID)
	placeholder, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: msgThinking})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send placeholder", "error", err, "chat_id", chatID)
		return
	}

	answer, err := h.deps.Controller.RunTurn(ctx, userID, text)
	if err != nil {
		log.ErrorContext(ctx, "Turn failed", "error", err, "user_id", userID)
		editText(ctx, b, log, chatID, placeholder.ID, msgGeneralError)
		return
	}
	editText(ctx, b, log, chatID, placeholder.ID, answer)
}

func (h messageHandler) handleVoice(ctx context.Context, b *bot.Bot, log *slog.Logger, update *models.Update) {
	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID
	voice := update.Message.Voice

	h.sendTyping(ctx, b, chatID)

	audio, err := h.downloadVoice(ctx, b, voice.FileID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to download voice note", "error", err, "user_id", userID)
		sendText(ctx, b, log, chatID, msgVoiceError)
		return
	}

	mimeType := voice.MimeType
	if mimeType == "" {
		mimeType = "audio/ogg"
	}

	transcript, answer, err := h.deps.Controller.VoiceTurn(ctx, userID, audio, mimeType)
	switch {
	case errors.Is(err, chat.ErrTranscriptionEmpty):
		sendText(ctx, b, log, chatID, msgVoiceEmpty)
		return
	case err != nil:
		log.ErrorContext(ctx, "Voice turn failed", "error", err, "user_id", userID)
		sendText(ctx, b, log, chatID, msgVoiceError)
		return
	}

	_, err = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      fmt.Sprintf("🎤 *Escuché:* _%s_", transcript),
		ParseMode: models.ParseModeMarkdown,
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to echo transcript", "error", err, "chat_id", chatID)
	}
	sendText(ctx, b, log, chatID, answer)
}

// downloadVoice fetches the raw audio of a Telegram voice note.
func (h messageHandler) downloadVoice(ctx context.Context, b *bot.Bot, fileID string) ([]byte, error) {
	file, err := b.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.FileDownloadLink(file), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected download status: %s", resp.Status)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxVoiceDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read file body: %w", err)
	}
	return audio, nil
}

func (h messageHandler) sendTyping(ctx context.Context, b *bot.Bot, chatID int64) {
	_, err := b.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: chatID,
		Action: models.ChatActionTyping,
	})
	if err != nil {
		h.deps.Logger.DebugContext(ctx, "Failed to send chat action", "error", err, "chat_id", chatID)
	}
}
