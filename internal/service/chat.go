package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/mediahub/internal/apperror"
	"github.com/sakif/mediahub/internal/chat"
)

// NoResponse is the reply shown when the provider returns no choices.
const NoResponse = "No response!"

// MaxPromptBytes bounds a single prompt.
const MaxPromptBytes = 32 << 10

// Sanitizer cleans provider output before it reaches a browser.
type Sanitizer interface {
	Sanitize(string) string
}

// ChatService forwards prompts to the chat provider. A nil provider means
// chat is not configured; Ask then reports apperror.ErrUnavailable.
type ChatService struct {
	provider  chat.Provider
	sanitizer Sanitizer
	logger    *slog.Logger
}

func NewChatService(provider chat.Provider, sanitizer Sanitizer, logger *slog.Logger) *ChatService {
	return &ChatService{provider: provider, sanitizer: sanitizer, logger: logger}
}

// Enabled reports whether a provider is configured.
func (s *ChatService) Enabled() bool {
	return s.provider != nil
}

// Ask sends prompt and returns the sanitised reply.
//
// Provider failures are not retried. They come back as apperror.ErrUpstream
// with a generic message; the cause is only logged.
func (s *ChatService) Ask(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", apperror.ValidationFailed("prompt", "Empty prompt!")
	}
	if len(prompt) > MaxPromptBytes {
		return "", apperror.ValidationFailed("prompt", "Prompt is too long")
	}
	if s.provider == nil {
		return "", apperror.Unavailable("Chat is not configured")
	}

	start := time.Now()
	reply, err := s.provider.Complete(ctx, prompt)
	if err != nil {
		s.logger.Error("chat request failed",
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return "", apperror.Upstream("chat", err)
	}

	if strings.TrimSpace(reply) == "" {
		return NoResponse, nil
	}
	return s.sanitizer.Sanitize(reply), nil
}
