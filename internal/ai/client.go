// Package ai implements the completion provider client on top of Google's
// genai SDK. It covers the three flows the bot needs: chat completion with
// token accounting, image generation, and speech transcription.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/miabot/mia/internal/config"
	"github.com/miabot/mia/internal/database"
)

// ErrProvider marks opaque upstream failures (transport, quota, model).
// Callers wrap it into their own taxonomy.
var ErrProvider = errors.New("provider error")

// Client defines the provider operations consumed by the conversation core.
// The client owns retry/backoff for transient provider failures; callers
// never retry on their own.
type Client interface {
	// Complete sends the system prompt, the prior dialog, and the new user
	// text, and returns the assistant reply plus total tokens used.
	Complete(ctx context.Context, systemPrompt string, history []database.Message, userText string) (string, int64, error)

	// GenerateImage renders an image for the prompt and returns its bytes
	// and MIME type.
	GenerateImage(ctx context.Context, prompt string) ([]byte, string, error)

	// Transcribe converts audio to text. An empty result means the audio
	// carried no usable speech; that is not an error.
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

type sdkClient struct {
	genaiClient *genai.Client
	log         *slog.Logger
	cfg         config.AIConfig
}

// NewClient creates a new provider client from the AI configuration.
func NewClient(ctx context.Context, cfg config.AIConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ai API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	logger := log.With("component", "ai_client")
	logger.Info("AI client initialized", "model", cfg.Model, "image_model", cfg.ImageModel)
	return &sdkClient{
		genaiClient: gi,
		log:         logger,
		cfg:         cfg,
	}, nil
}

// withTimeout bounds a provider call with the configured timeout.
func (c *sdkClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

// generateContentWithRetries retries the call on retriable provider codes
// (500/503) up to cfg.MaxRetries times with a fixed delay.
func (c *sdkClient) generateContentWithRetries(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= c.cfg.MaxRetries; i++ {
		resp, err = c.genaiClient.Models.GenerateContent(ctx, model, contents, cfg)
		if err == nil {
			return resp, nil
		}

		var apiErr *genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503) && i < c.cfg.MaxRetries {
			c.log.WarnContext(ctx, "Retriable provider error, retrying",
				"attempt", i+1, "max_retries", c.cfg.MaxRetries, "code", apiErr.Code, "delay", c.cfg.RetryDelay)
			select {
			case <-time.After(c.cfg.RetryDelay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrProvider, ctx.Err())
			}
			continue
		}

		c.log.ErrorContext(ctx, "Provider call failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	return nil, fmt.Errorf("%w: %w", ErrProvider, err)
}

func (c *sdkClient) Complete(ctx context.Context, systemPrompt string, history []database.Message, userText string) (string, int64, error) {
	c.log.DebugContext(ctx, "Generating completion", "history_len", len(history))

	// Order is fixed: prior dialog in sequence, then the new user message.
	// The system prompt travels as the request's system instruction.
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		role := genai.Role(genai.RoleUser)
		if m.Role == database.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(userText, genai.RoleUser))

	genCfg := &genai.GenerateContentConfig{
		Temperature:     &c.cfg.Temperature,
		MaxOutputTokens: c.cfg.MaxOutputTokens,
	}
	if systemPrompt != "" {
		genCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}}
	}

	resp, err := c.generateContentWithRetries(ctx, c.cfg.Model, contents, genCfg)
	if err != nil {
		return "", 0, err
	}

	text, err := extractText(resp)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	var tokens int64
	if resp.UsageMetadata != nil {
		tokens = int64(resp.UsageMetadata.TotalTokenCount)
	}
	return text, tokens, nil
}

func (c *sdkClient) GenerateImage(ctx context.Context, prompt string) ([]byte, string, error) {
	c.log.DebugContext(ctx, "Generating image", "prompt_len", len(prompt))
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.genaiClient.Models.GenerateImages(ctx, c.cfg.ImageModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		c.log.ErrorContext(ctx, "Image generation failed", "error", err)
		return nil, "", fmt.Errorf("%w: %w", ErrProvider, err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil || len(resp.GeneratedImages[0].Image.ImageBytes) == 0 {
		return nil, "", fmt.Errorf("%w: image generation returned no image", ErrProvider)
	}

	img := resp.GeneratedImages[0].Image
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}
	return img.ImageBytes, mimeType, nil
}

const transcribeInstruction = "Transcribe this audio verbatim. Reply with the transcript text only, " +
	"in the language spoken. If there is no intelligible speech, reply with an empty message."

func (c *sdkClient) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	c.log.DebugContext(ctx, "Transcribing audio", "audio_size", len(audio), "mime_type", mimeType)
	if len(audio) == 0 || mimeType == "" {
		return "", fmt.Errorf("%w: audio data and MIME type are required", ErrProvider)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(audio, mimeType),
			genai.NewPartFromText(transcribeInstruction),
		}, genai.RoleUser),
	}

	resp, err := c.generateContentWithRetries(ctx, c.cfg.Model, contents, &genai.GenerateContentConfig{})
	if err != nil {
		return "", err
	}

	// An empty transcript is a valid outcome for silent or unintelligible
	// audio, so do not treat extraction failure on empty content as fatal.
	text, err := extractText(resp)
	if err != nil {
		c.log.InfoContext(ctx, "Transcription yielded no text", "reason", err)
		return "", nil
	}
	return strings.TrimSpace(text), nil
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reason := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reason = resp.PromptFeedback.BlockReasonMessage
		}
		return "", fmt.Errorf("request blocked by safety filter: %s", reason)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		return "", fmt.Errorf("response has no content, finish reason: %s", finishReason)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("response text is empty")
	}
	return text, nil
}
