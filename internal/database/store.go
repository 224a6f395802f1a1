package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNoActiveDialog is returned by SetDialogMessages when the user has no
// active dialog. Reads never return it because they auto-start a dialog.
var ErrNoActiveDialog = errors.New("user has no active dialog")

// Store defines the interface for session state operations. All methods
// auto-create the user row with defaults on first touch, so lookups never
// fail with a not-found error for a valid user ID.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// GetOrCreateUser fetches a user row, creating it with defaults if absent.
	GetOrCreateUser(ctx context.Context, userID int64) (*User, error)

	// SetChatMode sets the user's active chat mode key. The key is not
	// validated here; unknown keys fall back to the default mode at lookup.
	SetChatMode(ctx context.Context, userID int64, mode string) error

	// AddTokenUsage increments the user's cumulative token counter.
	AddTokenUsage(ctx context.Context, userID int64, tokens int64) error

	// TouchLastSeen updates the user's last-seen timestamp.
	TouchLastSeen(ctx context.Context, userID int64) error

	// StartNewDialog allocates a fresh empty dialog and makes it the user's
	// active one. Any previously active dialog is superseded, not deleted.
	StartNewDialog(ctx context.Context, userID int64) (int64, error)

	// DialogMessages returns the active dialog's messages in order,
	// starting a new dialog first if none is active.
	DialogMessages(ctx context.Context, userID int64) ([]Message, error)

	// SetDialogMessages replaces the active dialog's messages wholesale,
	// atomically. Returns ErrNoActiveDialog if no dialog is active.
	SetDialogMessages(ctx context.Context, userID int64, messages []Message) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ensureUser inserts the default user row if it does not exist yet.
func (s *sqlxStore) ensureUser(ctx context.Context, q sqlx.ExtContext, userID int64) error {
	now := time.Now().UTC()
	_, err := q.ExecContext(ctx,
		`INSERT INTO users (user_id, chat_mode, total_tokens, last_seen, created_at)
		 VALUES (?, 'assistant', 0, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, now, now)
	if err != nil {
		return fmt.Errorf("failed to ensure user %d: %w", userID, err)
	}
	return nil
}

func (s *sqlxStore) GetOrCreateUser(ctx context.Context, userID int64) (*User, error) {
	if err := s.ensureUser(ctx, s.db, userID); err != nil {
		return nil, err
	}

	var user User
	if err := s.db.GetContext(ctx, &user, `SELECT * FROM users WHERE user_id = ?`, userID); err != nil {
		return nil, fmt.Errorf("failed to fetch user %d: %w", userID, err)
	}
	return &user, nil
}

func (s *sqlxStore) SetChatMode(ctx context.Context, userID int64, mode string) error {
	if err := s.ensureUser(ctx, s.db, userID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `UPDATE users SET chat_mode = ? WHERE user_id = ?`, mode, userID)
	if err != nil {
		return fmt.Errorf("failed to set chat mode for user %d: %w", userID, err)
	}
	return nil
}

func (s *sqlxStore) AddTokenUsage(ctx context.Context, userID int64, tokens int64) error {
	if tokens < 0 {
		return fmt.Errorf("token usage must be non-negative, got %d", tokens)
	}
	if err := s.ensureUser(ctx, s.db, userID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET total_tokens = total_tokens + ? WHERE user_id = ?`, tokens, userID)
	if err != nil {
		return fmt.Errorf("failed to add token usage for user %d: %w", userID, err)
	}
	return nil
}

func (s *sqlxStore) TouchLastSeen(ctx context.Context, userID int64) error {
	if err := s.ensureUser(ctx, s.db, userID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_seen = ? WHERE user_id = ?`, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to touch last seen for user %d: %w", userID, err)
	}
	return nil
}

func (s *sqlxStore) StartNewDialog(ctx context.Context, userID int64) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.ErrorContext(ctx, "Failed to rollback transaction", "error", rollbackErr)
			}
		}
	}()

	if err := s.ensureUser(ctx, tx, userID); err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO dialogs (user_id, created_at) VALUES (?, ?)`, userID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to create dialog for user %d: %w", userID, err)
	}
	dialogID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get new dialog id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET current_dialog_id = ? WHERE user_id = ?`, dialogID, userID); err != nil {
		return 0, fmt.Errorf("failed to activate dialog %d for user %d: %w", dialogID, userID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit new dialog: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Started new dialog", "user_id", userID, "dialog_id", dialogID)
	return dialogID, nil
}

func (s *sqlxStore) DialogMessages(ctx context.Context, userID int64) ([]Message, error) {
	user, err := s.GetOrCreateUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	dialogID := user.CurrentDialogID.Int64
	if !user.CurrentDialogID.Valid {
		dialogID, err = s.StartNewDialog(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	var messages []Message
	err = s.db.SelectContext(ctx, &messages,
		`SELECT role, content FROM dialog_messages WHERE dialog_id = ? ORDER BY position ASC`,
		dialogID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages for dialog %d: %w", dialogID, err)
	}
	return messages, nil
}

func (s *sqlxStore) SetDialogMessages(ctx context.Context, userID int64, messages []Message) error {
	user, err := s.GetOrCreateUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.CurrentDialogID.Valid {
		return ErrNoActiveDialog
	}
	dialogID := user.CurrentDialogID.Int64

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.ErrorContext(ctx, "Failed to rollback transaction", "error", rollbackErr)
			}
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM dialog_messages WHERE dialog_id = ?`, dialogID); err != nil {
		return fmt.Errorf("failed to clear dialog %d: %w", dialogID, err)
	}

	now := time.Now().UTC()
	for i, m := range messages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dialog_messages (dialog_id, position, role, content, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			dialogID, i, m.Role, m.Content, now); err != nil {
			return fmt.Errorf("failed to insert message %d into dialog %d: %w", i, dialogID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dialog messages: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Replaced dialog messages", "user_id", userID, "dialog_id", dialogID, "count", len(messages))
	return nil
}

// RunSQLMaintenance performs VACUUM and ANALYZE to keep the SQLite file healthy.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Running SQL maintenance (VACUUM, ANALYZE)...")
	start := time.Now()

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("analyze failed: %w", err)
	}

	s.logger.InfoContext(ctx, "SQL maintenance finished", "duration", time.Since(start))
	return nil
}
