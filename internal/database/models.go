package database

import (
	"database/sql"
	"time"
)

// Message roles as sent to the completion provider. A dialog always
// alternates user/assistant starting with user.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User represents a bot user and their conversation state.
// Rows are created lazily on first touch with default values.
type User struct {
	UserID          int64         `db:"user_id"`
	ChatMode        string        `db:"chat_mode"`
	CurrentDialogID sql.NullInt64 `db:"current_dialog_id"`
	TotalTokens     int64         `db:"total_tokens"`
	LastSeen        time.Time     `db:"last_seen"`
	CreatedAt       time.Time     `db:"created_at"`
}

// Dialog represents one conversation. A user has at most one active dialog;
// superseded dialogs are kept for history.
type Dialog struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
}

// Message is a single dialog entry with a provider role and text content.
type Message struct {
	Role    string `db:"role"`
	Content string `db:"content"`
}
