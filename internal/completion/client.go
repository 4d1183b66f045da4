// Package completion talks to the language-model provider that answers chat
// prompts. A Client turns a rendered transcript into a single reply.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/edgard/transcriptbot/internal/config"
)

// ErrNoAnswer reports a provider reply with nothing usable in it.
var ErrNoAnswer = errors.New("completion provider returned no answer")

// Client completes a transcript prompt.
type Client interface {
	// Complete returns a non-empty answer for prompt, or ErrNoAnswer.
	Complete(ctx context.Context, prompt string) (string, error)
}

// New creates the Client for cfg.Provider. The provider is guarded by a
// circuit breaker, and empty answers are retried cfg.EmptyResponseRetries
// times.
func New(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (Client, error) {
	var (
		client Client
		err    error
	)

	switch cfg.Provider {
	case "gemini":
		client, err = NewGeminiClient(ctx, cfg, logger)
	case "openai":
		client, err = NewOpenAIClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported completion provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	client = WithCircuitBreaker(client, cfg.BreakerFailures, cfg.BreakerCooldown, logger)
	return WithEmptyRetries(client, cfg.EmptyResponseRetries, logger), nil
}
