package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/edgard/transcriptbot/internal/config"
	"github.com/edgard/transcriptbot/internal/text"
)

type openAIClient struct {
	client      *openai.Client
	log         *slog.Logger
	model       string
	system      string
	maxTokens   int
	temperature float32
	maxRetries  int
	retryDelay  time.Duration
}

// NewOpenAIClient creates a Client on the OpenAI chat completions API or
// any compatible endpoint named by cfg.BaseURL.
func NewOpenAIClient(cfg config.AIConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	logger := log.With("component", "openai_client")
	logger.Info("OpenAI client initialized successfully", "model", cfg.Model)
	return &openAIClient{
		client:      openai.NewClientWithConfig(clientConfig),
		log:         logger,
		model:       cfg.Model,
		system:      cfg.SystemInstruction,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
	}, nil
}

func (c *openAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	c.log.DebugContext(ctx, "Requesting completion", "prompt_length", len(prompt))

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if c.system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: c.system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages:    messages,
	}

	var resp openai.ChatCompletionResponse
	err := callWithRetries(ctx, c.log, c.maxRetries, c.retryDelay, openAIRetryable, func() error {
		var err error
		resp, err = c.client.CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		c.log.ErrorContext(ctx, "OpenAI completion failed", "error", err)
		return "", fmt.Errorf("openai API call failed: %w", err)
	}

	for _, choice := range resp.Choices {
		if answer := text.Sanitize(choice.Message.Content); answer != "" {
			return answer, nil
		}
	}

	c.log.WarnContext(ctx, "OpenAI response has no usable choice", "choices", len(resp.Choices))
	return "", ErrNoAnswer
}

func openAIRetryable(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
			return apiErr.HTTPStatusCode, true
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode >= 500 {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}
