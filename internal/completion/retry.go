package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
)

type emptyRetryClient struct {
	next    Client
	retries int
	log     *slog.Logger
}

// WithEmptyRetries asks next again, up to retries more times, while it
// answers ErrNoAnswer. Other errors are returned at once.
func WithEmptyRetries(next Client, retries int, logger *slog.Logger) Client {
	if retries <= 0 {
		return next
	}
	return &emptyRetryClient{
		next:    next,
		retries: retries,
		log:     logger.With("component", "completion_retry"),
	}
}

func (c *emptyRetryClient) Complete(ctx context.Context, prompt string) (string, error) {
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		var answer string
		answer, err = c.next.Complete(ctx, prompt)
		if !errors.Is(err, ErrNoAnswer) {
			return answer, err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.log.WarnContext(ctx, "Completion returned no answer", "attempt", attempt+1, "max_attempts", c.retries+1)
	}
	return "", err
}

// callWithRetries runs call until it succeeds, fails with an error that
// retryable rejects, or maxRetries retries are spent. The delay doubles
// after each attempt.
func callWithRetries(ctx context.Context, log *slog.Logger, maxRetries int, delay time.Duration, retryable func(error) (int, bool), call func() error) error {
	err := retry.Do(
		call,
		retry.Context(ctx),
		retry.Attempts(uint(maxRetries)+1),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			_, ok := retryable(err)
			return ok
		}),
		retry.OnRetry(func(n uint, err error) {
			code, _ := retryable(err)
			log.InfoContext(ctx, "Retrying completion call", "attempt", n+1, "max_retries", maxRetries, "code", code)
		}),
	)
	if err != nil {
		if code, ok := retryable(err); ok && maxRetries > 0 {
			return fmt.Errorf("giving up after %d retries (code %d): %w", maxRetries, code, err)
		}
		return err
	}
	return nil
}
