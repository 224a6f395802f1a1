// Package handlers contains Telegram bot command, callback, and message
// handlers, along with their registration logic and middleware.
package handlers

import (
	"log/slog"

	"github.com/miabot/mia/internal/chat"
	"github.com/miabot/mia/internal/config"
	"github.com/miabot/mia/internal/modes"
)

// HandlerDeps provides dependencies for Telegram handlers.
type HandlerDeps struct {
	Logger     *slog.Logger
	Config     *config.Config
	Controller *chat.Controller
	Registry   *modes.Registry
}
