package handlers

import (
	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Callback data prefixes for the mode-selection keyboard.
const (
	callbackSetMode  = "set_mode|"
	callbackModePage = "mode_page|"
)

// RegisteredHandler represents a handler with its registration pattern and
// middleware. It encapsulates all information needed to register a command.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

// RegisterAllCommands initializes and returns a map of all bot handlers,
// configured with the access-gate middleware.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	allowed := []tgbot.Middleware{AllowedOnly(deps)}

	command := func(pattern string, h tgbot.HandlerFunc) RegisteredHandler {
		return RegisteredHandler{
			HandlerType: tgbot.HandlerTypeMessageText,
			Pattern:     pattern,
			Handler:     h,
			MatchType:   tgbot.MatchTypeCommandStartOnly,
			Middleware:  allowed,
		}
	}

	hs := make(map[string]RegisteredHandler)
	hs["/start"] = command("start", NewStartHandler(deps))
	hs["/help"] = command("help", NewStartHandler(deps))
	hs["/new"] = command("new", NewNewDialogHandler(deps))
	hs["/mode"] = command("mode", NewModeHandler(deps))
	hs["/retry"] = command("retry", NewRetryHandler(deps))
	hs["/balance"] = command("balance", NewBalanceHandler(deps))
	hs["/settings"] = command("settings", NewSettingsHandler(deps))
	hs["/image"] = command("image", NewImageHandler(deps))

	hs["cb:set_mode"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeCallbackQueryData,
		Pattern:     callbackSetMode,
		Handler:     NewSetModeCallbackHandler(deps),
		MatchType:   tgbot.MatchTypePrefix,
		Middleware:  allowed,
	}
	hs["cb:mode_page"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeCallbackQueryData,
		Pattern:     callbackModePage,
		Handler:     NewModePageCallbackHandler(deps),
		MatchType:   tgbot.MatchTypePrefix,
		Middleware:  allowed,
	}

	return hs
}

// CommandMenu returns the command list published to Telegram clients.
func CommandMenu() []models.BotCommand {
	return []models.BotCommand{
		{Command: "new", Description: "🔄 Nueva conversación"},
		{Command: "mode", Description: "🎭 Cambiar modo de chat"},
		{Command: "image", Description: "🎨 Generar imagen"},
		{Command: "retry", Description: "🔁 Reintentar última respuesta"},
		{Command: "balance", Description: "📊 Ver uso de tokens"},
		{Command: "settings", Description: "⚙️ Ver configuración"},
		{Command: "help", Description: "❓ Ayuda"},
	}
}
