// Package chat_test tests the conversation controller against in-memory
// fakes of the session store and the completion provider.
package chat_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/miabot/mia/internal/chat"
	"github.com/miabot/mia/internal/database"
	"github.com/miabot/mia/internal/modes"
)

// fakeStore is an in-memory Store that mimics the auto-create and
// dialog-supersession semantics of the SQLite implementation. It is safe for
// concurrent use so tests can run turns in parallel.
type fakeStore struct {
	mu         sync.Mutex
	users      map[int64]*database.User
	dialogs    map[int64][]database.Message
	nextDialog int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[int64]*database.User),
		dialogs: make(map[int64][]database.Message),
	}
}

// ensure must be called with s.mu held.
func (s *fakeStore) ensure(userID int64) *database.User {
	if u, ok := s.users[userID]; ok {
		return u
	}
	u := &database.User{UserID: userID, ChatMode: "assistant"}
	s.users[userID] = u
	return u
}

// startNewDialogLocked must be called with s.mu held.
func (s *fakeStore) startNewDialogLocked(userID int64) int64 {
	u := s.ensure(userID)
	s.nextDialog++
	u.CurrentDialogID = sql.NullInt64{Int64: s.nextDialog, Valid: true}
	s.dialogs[s.nextDialog] = nil
	return s.nextDialog
}

func (s *fakeStore) Ping(context.Context) error { return nil }

func (s *fakeStore) GetOrCreateUser(_ context.Context, userID int64) (*database.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.ensure(userID)
	copied := *u
	return &copied, nil
}

func (s *fakeStore) SetChatMode(_ context.Context, userID int64, mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(userID).ChatMode = mode
	return nil
}

func (s *fakeStore) AddTokenUsage(_ context.Context, userID int64, tokens int64) error {
	if tokens < 0 {
		return fmt.Errorf("token usage must be non-negative, got %d", tokens)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(userID).TotalTokens += tokens
	return nil
}

func (s *fakeStore) TouchLastSeen(context.Context, int64) error { return nil }

func (s *fakeStore) StartNewDialog(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startNewDialogLocked(userID), nil
}

func (s *fakeStore) DialogMessages(_ context.Context, userID int64) ([]database.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.ensure(userID)
	if !u.CurrentDialogID.Valid {
		s.startNewDialogLocked(userID)
	}
	msgs := s.dialogs[u.CurrentDialogID.Int64]
	out := make([]database.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *fakeStore) SetDialogMessages(_ context.Context, userID int64, messages []database.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.ensure(userID)
	if !u.CurrentDialogID.Valid {
		return database.ErrNoActiveDialog
	}
	stored := make([]database.Message, len(messages))
	copy(stored, messages)
	s.dialogs[u.CurrentDialogID.Int64] = stored
	return nil
}

func (s *fakeStore) RunSQLMaintenance(context.Context) error { return nil }

// activeDialog returns the user's active dialog contents for assertions.
func (s *fakeStore) activeDialog(userID int64) []database.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || !u.CurrentDialogID.Valid {
		return nil
	}
	return s.dialogs[u.CurrentDialogID.Int64]
}

// totalTokens returns the user's token counter for assertions.
func (s *fakeStore) totalTokens(userID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		return u.TotalTokens
	}
	return 0
}

// chatMode returns the user's stored mode key for assertions.
func (s *fakeStore) chatMode(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		return u.ChatMode
	}
	return ""
}

// fakeClient is a scriptable completion provider. When entered and release
// are set, the first Complete call signals entered and then blocks until
// release is closed, so tests can hold a turn mid-flight.
type fakeClient struct {
	mu           sync.Mutex
	answer       string
	tokens       int64
	completeErr  error
	completeN    int
	historyLens  []int
	lastSystem   string
	lastHistory  []database.Message
	lastUserText string

	entered chan struct{}
	release chan struct{}

	transcript    string
	transcribeErr error

	image    []byte
	imageErr error
}

func (c *fakeClient) Complete(_ context.Context, systemPrompt string, history []database.Message, userText string) (string, int64, error) {
	c.mu.Lock()
	c.completeN++
	call := c.completeN
	c.historyLens = append(c.historyLens, len(history))
	c.lastSystem = systemPrompt
	c.lastHistory = history
	c.lastUserText = userText
	answer, tokens, err := c.answer, c.tokens, c.completeErr
	c.mu.Unlock()

	if call == 1 && c.entered != nil {
		close(c.entered)
		<-c.release
	}

	if err != nil {
		return "", 0, err
	}
	return answer, tokens, nil
}

func (c *fakeClient) calls() (int, []int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lens := make([]int, len(c.historyLens))
	copy(lens, c.historyLens)
	return c.completeN, lens
}

func (c *fakeClient) GenerateImage(context.Context, string) ([]byte, string, error) {
	if c.imageErr != nil {
		return nil, "", c.imageErr
	}
	return c.image, "image/png", nil
}

func (c *fakeClient) Transcribe(context.Context, []byte, string) (string, error) {
	if c.transcribeErr != nil {
		return "", c.transcribeErr
	}
	return c.transcript, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(store database.Store, client *fakeClient, allowed []string) *chat.Controller {
	registry := modes.NewRegistry(modes.Defaults())
	return chat.NewController(testLogger(), store, registry, client, chat.NewGate(allowed), 0.03)
}

func TestRunTurn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success appends user and assistant pair", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		client := &fakeClient{answer: "hola", tokens: 42}
		c := newTestController(store, client, nil)

		answer, err := c.RunTurn(ctx, 1, "hi")
		if err != nil {
			t.Fatalf("RunTurn returned error: %v", err)
		}
		if answer != "hola" {
			t.Errorf("answer = %q, want %q", answer, "hola")
		}

		dialog := store.activeDialog(1)
		if len(dialog) != 2 {
			t.Fatalf("dialog has %d messages, want 2", len(dialog))
		}
		if dialog[0].Role != database.RoleUser || dialog[0].Content != "hi" {
			t.Errorf("first message = %+v, want user/hi", dialog[0])
		}
		if dialog[1].Role != database.RoleAssistant || dialog[1].Content != "hola" {
			t.Errorf("second message = %+v, want assistant/hola", dialog[1])
		}
		if got := store.totalTokens(1); got != 42 {
			t.Errorf("total tokens = %d, want 42", got)
		}
	})

	t.Run("provider failure leaves state untouched", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		client := &fakeClient{answer: "ok", tokens: 10}
		c := newTestController(store, client, nil)

		if _, err := c.RunTurn(ctx, 1, "first"); err != nil {
			t.Fatalf("setup turn failed: %v", err)
		}

		client.completeErr = errors.New("boom")
		_, err := c.RunTurn(ctx, 1, "second")
		if !errors.Is(err, chat.ErrCompletionFailed) {
			t.Fatalf("error = %v, want ErrCompletionFailed", err)
		}

		dialog := store.activeDialog(1)
		if len(dialog) != 2 {
			t.Errorf("dialog has %d messages after failed turn, want 2", len(dialog))
		}
		if got := store.totalTokens(1); got != 10 {
			t.Errorf("total tokens = %d after failed turn, want 10", got)
		}
	})

	t.Run("empty input is a silent no-op", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		client := &fakeClient{answer: "ok"}
		c := newTestController(store, client, nil)

		_, err := c.RunTurn(ctx, 1, "   \n\t ")
		if !errors.Is(err, chat.ErrEmptyInput) {
			t.Fatalf("error = %v, want ErrEmptyInput", err)
		}
		if client.completeN != 0 {
			t.Errorf("provider called %d times for empty input, want 0", client.completeN)
		}
	})

	t.Run("gate rejects users outside the allow-list", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		client := &fakeClient{answer: "ok"}
		c := newTestController(store, client, []string{"42"})

		if _, err := c.RunTurn(ctx, 7, "hi"); !errors.Is(err, chat.ErrAccessDenied) {
			t.Fatalf("error = %v, want ErrAccessDenied", err)
		}
		if _, err := c.RunTurn(ctx, 42, "hi"); err != nil {
			t.Fatalf("allowed user rejected: %v", err)
		}
	})

	t.Run("history and mode prompt reach the provider", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		client := &fakeClient{answer: "a1", tokens: 1}
		c := newTestController(store, client, nil)

		if _, err := c.RunTurn(ctx, 1, "u1"); err != nil {
			t.Fatalf("first turn failed: %v", err)
		}
		if _, err := c.RunTurn(ctx, 1, "u2"); err != nil {
			t.Fatalf("second turn failed: %v", err)
		}

		if len(client.lastHistory) != 2 {
			t.Errorf("provider saw %d history messages, want 2", len(client.lastHistory))
		}
		if client.lastUserText != "u2" {
			t.Errorf("provider saw user text %q, want %q", client.lastUserText, "u2")
		}
		if client.lastSystem == "" {
			t.Error("provider saw empty system prompt, want the default mode prompt")
		}
	})
}

func TestRunTurnSerialization(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("same user turns never interleave", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		client := &fakeClient{
			answer:  "a",
			tokens:  1,
			entered: make(chan struct{}),
			release: make(chan struct{}),
		}
		c := newTestController(store, client, nil)

		first := make(chan error, 1)
		go func() {
			_, err := c.RunTurn(ctx, 1, "u1")
			first <- err
		}()

		// The first turn is now inside the provider call, holding the
		// user's lock with nothing persisted yet.
		<-client.entered

		second := make(chan error, 1)
		go func() {
			_, err := c.RunTurn(ctx, 1, "u2")
			second <- err
		}()

		close(client.release)
		if err := <-first; err != nil {
			t.Fatalf("first turn failed: %v", err)
		}
		if err := <-second; err != nil {
			t.Fatalf("second turn failed: %v", err)
		}

		// The second turn must have read the dialog only after the first
		// pair was persisted, never a half-written state.
		n, lens := client.calls()
		if n != 2 {
			t.Fatalf("provider called %d times, want 2", n)
		}
		if lens[0] != 0 || lens[1] != 2 {
			t.Errorf("provider saw history lengths %v, want [0 2]", lens)
		}

		dialog := store.activeDialog(1)
		if len(dialog) != 4 {
			t.Fatalf("dialog has %d messages, want 4", len(dialog))
		}
		want := []database.Message{
			{Role: database.RoleUser, Content: "u1"},
			{Role: database.RoleAssistant, Content: "a"},
			{Role: database.RoleUser, Content: "u2"},
			{Role: database.RoleAssistant, Content: "a"},
		}
		for i := range want {
			if dialog[i] != want[i] {
				t.Errorf("message %d = %+v, want %+v", i, dialog[i], want[i])
			}
		}
	})

	t.Run("different users do not contend", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		client := &fakeClient{
			answer:  "a",
			tokens:  1,
			entered: make(chan struct{}),
			release: make(chan struct{}),
		}
		c := newTestController(store, client, nil)

		blocked := make(chan error, 1)
		go func() {
			_, err := c.RunTurn(ctx, 1, "u1")
			blocked <- err
		}()
		<-client.entered

		// While user 1's turn is held mid-flight, user 2's turn must
		// complete independently.
		other := make(chan error, 1)
		go func() {
			_, err := c.RunTurn(ctx, 2, "hola")
			other <- err
		}()
		select {
		case err := <-other:
			if err != nil {
				t.Fatalf("other user's turn failed: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("turn for a different user blocked behind another user's in-flight turn")
		}

		close(client.release)
		if err := <-blocked; err != nil {
			t.Fatalf("first user's turn failed: %v", err)
		}

		if dialog := store.activeDialog(2); len(dialog) != 2 {
			t.Errorf("user 2 dialog has %d messages, want 2", len(dialog))
		}
	})
}

func TestRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// seed runs two turns so the dialog ends [u1 a1 u2 a2].
	seed := func(t *testing.T, c *chat.Controller) {
		t.Helper()
		for _, text := range []string{"u1", "u2"} {
			if _, err := c.RunTurn(ctx, 1, text); err != nil {
				t.Fatalf("seed turn %q failed: %v", text, err)
			}
		}
	}

	t.Run("replays the last user message", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		client := &fakeClient{answer: "a", tokens: 1}
		c := newTestController(store, client, nil)
		seed(t, c)

		client.answer = "a2-retried"
		answer, err := c.Retry(ctx, 1)
		if err != nil {
			t.Fatalf("Retry returned error: %v", err)
		}
		if answer != "a2-retried" {
			t.Errorf("answer = %q, want %q", answer, "a2-retried")
		}
		if client.lastUserText != "u2" {
			t.Errorf("retried text = %q, want %q", client.lastUserText, "u2")
		}

		dialog := store.activeDialog(1)
		if len(dialog) != 4 {
			t.Fatalf("dialog has %d messages after retry, want 4", len(dialog))
		}
		if dialog[3].Content != "a2-retried" {
			t.Errorf("last message = %q, want the retried answer", dialog[3].Content)
		}
	})

	t.Run("truncation persists when the replay fails", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		client := &fakeClient{answer: "a", tokens: 1}
		c := newTestController(store, client, nil)
		seed(t, c)

		client.completeErr = errors.New("boom")
		if _, err := c.Retry(ctx, 1); !errors.Is(err, chat.ErrCompletionFailed) {
			t.Fatalf("error = %v, want ErrCompletionFailed", err)
		}

		dialog := store.activeDialog(1)
		if len(dialog) != 2 {
			t.Fatalf("dialog has %d messages after failed retry, want the truncated 2", len(dialog))
		}
		if dialog[1].Role != database.RoleAssistant {
			t.Errorf("truncated dialog ends with role %q, want assistant", dialog[1].Role)
		}
	})

	t.Run("empty dialog has nothing to retry", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		c := newTestController(store, &fakeClient{}, nil)

		if _, err := c.Retry(ctx, 1); !errors.Is(err, chat.ErrNothingToRetry) {
			t.Fatalf("error = %v, want ErrNothingToRetry", err)
		}
	})

	t.Run("dialog ending in a user message has nothing to retry", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		c := newTestController(store, &fakeClient{}, nil)

		if _, err := store.StartNewDialog(ctx, 1); err != nil {
			t.Fatal(err)
		}
		if err := store.SetDialogMessages(ctx, 1, []database.Message{
			{Role: database.RoleUser, Content: "pending"},
		}); err != nil {
			t.Fatal(err)
		}

		if _, err := c.Retry(ctx, 1); !errors.Is(err, chat.ErrNothingToRetry) {
			t.Fatalf("error = %v, want ErrNothingToRetry", err)
		}
	})
}

func TestSwitchMode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("switching starts a fresh dialog", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		client := &fakeClient{answer: "a", tokens: 1}
		c := newTestController(store, client, nil)

		if _, err := c.RunTurn(ctx, 1, "hi"); err != nil {
			t.Fatalf("setup turn failed: %v", err)
		}

		mode, err := c.SwitchMode(ctx, 1, "english_tutor")
		if err != nil {
			t.Fatalf("SwitchMode returned error: %v", err)
		}
		if mode.Key != "english_tutor" {
			t.Errorf("mode key = %q, want english_tutor", mode.Key)
		}
		if got := store.chatMode(1); got != "english_tutor" {
			t.Errorf("stored mode = %q, want english_tutor", got)
		}
		if dialog := store.activeDialog(1); len(dialog) != 0 {
			t.Errorf("dialog has %d messages after mode switch, want 0", len(dialog))
		}
	})

	t.Run("unknown key falls back to the default mode", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		c := newTestController(store, &fakeClient{}, nil)

		mode, err := c.SwitchMode(ctx, 1, "no_such_mode")
		if err != nil {
			t.Fatalf("SwitchMode returned error: %v", err)
		}
		if mode.Key != modes.DefaultKey {
			t.Errorf("fallback mode key = %q, want %q", mode.Key, modes.DefaultKey)
		}
	})
}

func TestGetUsage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newFakeStore()
	c := newTestController(store, &fakeClient{}, nil)

	if err := store.AddTokenUsage(ctx, 1, 2500); err != nil {
		t.Fatal(err)
	}

	usage, err := c.GetUsage(ctx, 1)
	if err != nil {
		t.Fatalf("GetUsage returned error: %v", err)
	}
	if usage.TotalTokens != 2500 {
		t.Errorf("total tokens = %d, want 2500", usage.TotalTokens)
	}
	if want := 2500.0 / 1000 * 0.03; usage.EstimatedCost != want {
		t.Errorf("estimated cost = %v, want %v", usage.EstimatedCost, want)
	}
}

func TestVoiceTurn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("transcript runs as a normal turn", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		client := &fakeClient{answer: "respuesta", tokens: 5, transcript: "hola mia"}
		c := newTestController(store, client, nil)

		transcript, answer, err := c.VoiceTurn(ctx, 1, []byte{1, 2}, "audio/ogg")
		if err != nil {
			t.Fatalf("VoiceTurn returned error: %v", err)
		}
		if transcript != "hola mia" {
			t.Errorf("transcript = %q, want %q", transcript, "hola mia")
		}
		if answer != "respuesta" {
			t.Errorf("answer = %q, want %q", answer, "respuesta")
		}
		if dialog := store.activeDialog(1); len(dialog) != 2 {
			t.Errorf("dialog has %d messages, want 2", len(dialog))
		}
	})

	t.Run("empty transcript skips the turn", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		client := &fakeClient{transcript: "  \n "}
		c := newTestController(store, client, nil)

		_, _, err := c.VoiceTurn(ctx, 1, []byte{1}, "audio/ogg")
		if !errors.Is(err, chat.ErrTranscriptionEmpty) {
			t.Fatalf("error = %v, want ErrTranscriptionEmpty", err)
		}
		if client.completeN != 0 {
			t.Errorf("provider called %d times for empty transcript, want 0", client.completeN)
		}
	})

	t.Run("transcription failure wraps ErrCompletionFailed", func(t *testing.T) {
		t.Parallel()
		client := &fakeClient{transcribeErr: errors.New("boom")}
		c := newTestController(newFakeStore(), client, nil)

		_, _, err := c.VoiceTurn(ctx, 1, []byte{1}, "audio/ogg")
		if !errors.Is(err, chat.ErrCompletionFailed) {
			t.Fatalf("error = %v, want ErrCompletionFailed", err)
		}
	})
}

func TestGenerateImage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("returns provider image bytes", func(t *testing.T) {
		t.Parallel()
		client := &fakeClient{image: []byte{0x89, 0x50}}
		c := newTestController(newFakeStore(), client, nil)

		img, mimeType, err := c.GenerateImage(ctx, 1, "un gato")
		if err != nil {
			t.Fatalf("GenerateImage returned error: %v", err)
		}
		if len(img) != 2 || mimeType != "image/png" {
			t.Errorf("got %d bytes / %q, want 2 bytes / image/png", len(img), mimeType)
		}
	})

	t.Run("empty prompt is rejected", func(t *testing.T) {
		t.Parallel()
		c := newTestController(newFakeStore(), &fakeClient{}, nil)

		if _, _, err := c.GenerateImage(ctx, 1, "  "); !errors.Is(err, chat.ErrEmptyInput) {
			t.Fatalf("error = %v, want ErrEmptyInput", err)
		}
	})
}
