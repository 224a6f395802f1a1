// Package tasks implements the bot's scheduled background tasks.
package tasks

import (
	"log/slog"

	"github.com/miabot/mia/internal/database"
)

// TaskDeps contains all dependencies available to scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
}
