package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("completion provider temporarily unavailable")

type breakerClient struct {
	next Client
	cb   *gobreaker.CircuitBreaker
}

// WithCircuitBreaker stops calling next for cooldown after failures
// consecutive provider errors. ErrNoAnswer and caller cancellations do not
// count as failures. A failures value of zero disables the breaker.
func WithCircuitBreaker(next Client, failures int, cooldown time.Duration, logger *slog.Logger) Client {
	if failures <= 0 {
		return next
	}
	log := logger.With("component", "completion_breaker")

	settings := gobreaker.Settings{
		Name:        "completion",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoAnswer) ||
				errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &breakerClient{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (c *breakerClient) Complete(ctx context.Context, prompt string) (string, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.next.Complete(ctx, prompt)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err != nil {
		return "", err
	}
	return res.(string), nil
}
