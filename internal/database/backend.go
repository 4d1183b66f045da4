// Package database provides the key-value backends that persist conversation
// transcripts and the leases used to lock them. Three engines are supported
// behind one Backend interface: Redis, SQLite and bbolt.
package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/edgard/transcriptbot/internal/config"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("key not found")

// Backend defines the key-value operations the transcript store needs.
// Methods accept context.Context for cancellation and timeouts.
type Backend interface {
	// Ping checks the backend connection.
	Ping(ctx context.Context) error

	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set overwrites the value stored at key in full.
	Set(ctx context.Context, key string, value []byte) error

	// AcquireLease takes the lease at key for token if nobody else holds an
	// unexpired one. It reports whether the lease was taken.
	AcquireLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// ExtendLease pushes the expiry of a lease still held by token.
	// It reports false when the lease was lost.
	ExtendLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// ReleaseLease drops the lease at key if token still holds it.
	ReleaseLease(ctx context.Context, key, token string) error

	// PurgeExpiredLeases removes leases whose holders never released them.
	PurgeExpiredLeases(ctx context.Context) (int64, error)

	// RunMaintenance performs engine specific housekeeping.
	RunMaintenance(ctx context.Context) error

	// Close releases the underlying connection or file.
	Close() error
}

// Open creates the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	switch cfg.Driver {
	case "redis":
		return NewRedisBackend(ctx, cfg, logger)
	case "sqlite":
		db, err := NewDB(cfg.Path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteBackend(db, logger), nil
	case "bolt":
		return NewBoltBackend(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// CloseBackend closes the backend, logging the outcome.
func CloseBackend(b Backend) {
	if b == nil {
		return
	}
	if err := b.Close(); err != nil {
		slog.Error("Error closing database backend", "error", err)
	} else {
		slog.Info("Database backend closed successfully.")
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
