// Package chat contains the conversation core: the access gate and the
// controller that orchestrates turns over the session store, the mode
// registry, and the completion provider.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/miabot/mia/internal/ai"
	"github.com/miabot/mia/internal/database"
	"github.com/miabot/mia/internal/modes"
)

// Usage is the result of a balance query.
type Usage struct {
	TotalTokens   int64
	EstimatedCost float64
}

// Controller orchestrates conversation turns as state transitions over the
// session store. It never retries provider calls; a failed turn requires an
// explicit user-initiated retry.
type Controller struct {
	logger     *slog.Logger
	store      database.Store
	registry   *modes.Registry
	client     ai.Client
	gate       *Gate
	pricePer1K float64
	locks      *userLocks
}

// NewController wires the conversation core from its collaborators.
func NewController(
	logger *slog.Logger,
	store database.Store,
	registry *modes.Registry,
	client ai.Client,
	gate *Gate,
	pricePer1K float64,
) *Controller {
	return &Controller{
		logger:     logger.With("component", "controller"),
		store:      store,
		registry:   registry,
		client:     client,
		gate:       gate,
		pricePer1K: pricePer1K,
		locks:      newUserLocks(),
	}
}

// Allowed reports whether the user passes the access gate.
func (c *Controller) Allowed(userID int64) bool {
	return c.gate.Allowed(userID)
}

// CurrentMode returns the user's active mode, falling back to the default
// assistant for unset or unknown keys.
func (c *Controller) CurrentMode(ctx context.Context, userID int64) (modes.Mode, error) {
	user, err := c.store.GetOrCreateUser(ctx, userID)
	if err != nil {
		return modes.Mode{}, err
	}
	return c.registry.Get(user.ChatMode), nil
}

// RunTurn executes one conversation turn: it builds the provider context
// from the active mode's prompt plus the dialog history, calls the provider,
// and persists the user/assistant pair atomically. Empty input is a no-op
// signalled as ErrEmptyInput; provider failures leave the dialog and the
// token counter untouched.
func (c *Controller) RunTurn(ctx context.Context, userID int64, text string) (string, error) {
	if !c.gate.Allowed(userID) {
		return "", ErrAccessDenied
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyInput
	}

	lock := c.locks.get(userID)
	lock.Lock()
	defer lock.Unlock()

	return c.runTurnLocked(ctx, userID, text)
}

// touchLastSeen records user activity; failures are logged, not surfaced.
func (c *Controller) touchLastSeen(ctx context.Context, userID int64) {
	if err := c.store.TouchLastSeen(ctx, userID); err != nil {
		c.logger.WarnContext(ctx, "Failed to touch last seen", "user_id", userID, "error", err)
	}
}

// runTurnLocked is RunTurn after gate/input checks, with the user's turn
// lock held by the caller.
func (c *Controller) runTurnLocked(ctx context.Context, userID int64, text string) (string, error) {
	c.touchLastSeen(ctx, userID)

	history, err := c.store.DialogMessages(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load dialog: %w", err)
	}
	mode, err := c.CurrentMode(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve mode: %w", err)
	}

	answer, tokens, err := c.client.Complete(ctx, mode.Prompt, history, text)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompletionFailed, err)
	}

	// Persist the turn as one atomic pair: build the full new sequence
	// locally and replace wholesale, never append one side at a time.
	next := make([]database.Message, 0, len(history)+2)
	next = append(next, history...)
	next = append(next,
		database.Message{Role: database.RoleUser, Content: text},
		database.Message{Role: database.RoleAssistant, Content: answer},
	)
	if err := c.store.SetDialogMessages(ctx, userID, next); err != nil {
		return "", fmt.Errorf("failed to persist turn: %w", err)
	}

	if err := c.store.AddTokenUsage(ctx, userID, tokens); err != nil {
		// The turn itself is persisted; losing one usage increment is
		// preferable to failing the reply.
		c.logger.WarnContext(ctx, "Failed to record token usage", "user_id", userID, "tokens", tokens, "error", err)
	}

	c.logger.InfoContext(ctx, "Turn completed", "user_id", userID, "mode", mode.Key, "tokens", tokens, "dialog_len", len(next))
	return answer, nil
}

// StartNew abandons the active conversation and starts a fresh one. The old
// dialog is retained for history. Returns the active mode for confirmation
// messaging.
func (c *Controller) StartNew(ctx context.Context, userID int64) (modes.Mode, error) {
	if !c.gate.Allowed(userID) {
		return modes.Mode{}, ErrAccessDenied
	}

	lock := c.locks.get(userID)
	lock.Lock()
	defer lock.Unlock()

	c.touchLastSeen(ctx, userID)
	if _, err := c.store.StartNewDialog(ctx, userID); err != nil {
		return modes.Mode{}, fmt.Errorf("failed to start new dialog: %w", err)
	}
	return c.CurrentMode(ctx, userID)
}

// SwitchMode sets the user's active mode and starts a new conversation so
// turns from different personas never mix. The key is stored as given;
// unknown keys fall back to the default mode at lookup time. Returns the
// selected mode (or the fallback) for welcome messaging.
func (c *Controller) SwitchMode(ctx context.Context, userID int64, modeKey string) (modes.Mode, error) {
	if !c.gate.Allowed(userID) {
		return modes.Mode{}, ErrAccessDenied
	}

	lock := c.locks.get(userID)
	lock.Lock()
	defer lock.Unlock()

	c.touchLastSeen(ctx, userID)
	if err := c.store.SetChatMode(ctx, userID, modeKey); err != nil {
		return modes.Mode{}, fmt.Errorf("failed to set mode: %w", err)
	}
	if _, err := c.store.StartNewDialog(ctx, userID); err != nil {
		return modes.Mode{}, fmt.Errorf("failed to start new dialog: %w", err)
	}

	c.logger.InfoContext(ctx, "Mode switched", "user_id", userID, "mode", modeKey)
	return c.registry.Get(modeKey), nil
}

// Retry redoes the last completed turn. The retried user/assistant pair is
// removed and the truncation persisted before the replay, so a failed replay
// leaves the dialog in the truncated state rather than the stale-failed one.
func (c *Controller) Retry(ctx context.Context, userID int64) (string, error) {
	if !c.gate.Allowed(userID) {
		return "", ErrAccessDenied
	}

	lock := c.locks.get(userID)
	lock.Lock()
	defer lock.Unlock()

	history, err := c.store.DialogMessages(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load dialog: %w", err)
	}
	if len(history) == 0 || history[len(history)-1].Role != database.RoleAssistant {
		return "", ErrNothingToRetry
	}

	var lastUserText string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == database.RoleUser {
			lastUserText = history[i].Content
			break
		}
	}
	if lastUserText == "" {
		return "", ErrNothingToRetry
	}

	if err := c.store.SetDialogMessages(ctx, userID, history[:len(history)-2]); err != nil {
		return "", fmt.Errorf("failed to truncate dialog: %w", err)
	}

	return c.runTurnLocked(ctx, userID, lastUserText)
}

// GetUsage returns the user's cumulative token count and its estimated cost
// at the configured per-1000-tokens rate.
func (c *Controller) GetUsage(ctx context.Context, userID int64) (Usage, error) {
	if !c.gate.Allowed(userID) {
		return Usage{}, ErrAccessDenied
	}

	user, err := c.store.GetOrCreateUser(ctx, userID)
	if err != nil {
		return Usage{}, err
	}
	return Usage{
		TotalTokens:   user.TotalTokens,
		EstimatedCost: float64(user.TotalTokens) / 1000 * c.pricePer1K,
	}, nil
}

// VoiceTurn transcribes audio and runs the transcript as a normal text turn.
// It returns the transcript together with the assistant answer so the
// transport can echo what was heard. Empty transcripts surface
// ErrTranscriptionEmpty without invoking a turn.
func (c *Controller) VoiceTurn(ctx context.Context, userID int64, audio []byte, mimeType string) (transcript, answer string, err error) {
	if !c.gate.Allowed(userID) {
		return "", "", ErrAccessDenied
	}

	transcript, err = c.client.Transcribe(ctx, audio, mimeType)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrCompletionFailed, err)
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", "", ErrTranscriptionEmpty
	}

	answer, err = c.RunTurn(ctx, userID, transcript)
	if err != nil {
		return transcript, "", err
	}
	return transcript, answer, nil
}

// GenerateImage renders an image for the prompt. Image calls are not
// metered against the user's token total.
func (c *Controller) GenerateImage(ctx context.Context, userID int64, prompt string) ([]byte, string, error) {
	if !c.gate.Allowed(userID) {
		return nil, "", ErrAccessDenied
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, "", ErrEmptyInput
	}

	c.touchLastSeen(ctx, userID)

	img, mimeType, err := c.client.GenerateImage(ctx, prompt)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrCompletionFailed, err)
	}
	return img, mimeType, nil
}
