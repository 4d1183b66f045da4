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

// sqliteBackend implements Backend on the kv_entries and leases tables.
type sqliteBackend struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewSQLiteBackend creates a Backend on a migrated sqlx.DB.
func NewSQLiteBackend(db *sqlx.DB, logger *slog.Logger) Backend {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqliteBackend{
		db:     db,
		logger: logger.With("component", "store", "driver", "sqlite"),
	}
}

func (s *sqliteBackend) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var value []byte
	err := s.db.GetContext(ctx, &value, `SELECT value FROM kv_entries WHERE key = ?`, key)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound

	case isContextErr(err):
		s.logger.WarnContext(ctx, "Context timeout or cancellation while reading key", "key", key, "error", err)
		return nil, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error reading key", "key", key, "error", err)
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	return value, nil
}

func (s *sqliteBackend) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	now := time.Now().UTC()

	query := `
        INSERT INTO kv_entries (key, value, created_at, updated_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;
    `
	if _, err := s.db.ExecContext(ctx, query, key, value, now, now); err != nil {
		if isContextErr(err) {
			s.logger.WarnContext(ctx, "Context timeout or cancellation while writing key", "key", key, "error", err)
			return err
		}
		s.logger.ErrorContext(ctx, "Error writing key", "key", key, "error", err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	s.logger.DebugContext(ctx, "Key written", "key", key, "bytes", len(value))
	return nil
}

func (s *sqliteBackend) AcquireLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	now := time.Now()

	// The upsert only replaces a row whose lease already expired.
	query := `
        INSERT INTO leases (key, token, expires_at)
        VALUES (?, ?, ?)
        ON CONFLICT (key) DO UPDATE SET token = excluded.token, expires_at = excluded.expires_at
        WHERE leases.expires_at <= ?;
    `
	result, err := s.db.ExecContext(ctx, query, key, token, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		if isContextErr(err) {
			return false, err
		}
		s.logger.ErrorContext(ctx, "Error acquiring lease", "key", key, "error", err)
		return false, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read lease acquisition result: %w", err)
	}
	return affected == 1, nil
}

func (s *sqliteBackend) ExtendLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE leases SET expires_at = ? WHERE key = ? AND token = ?`,
		time.Now().Add(ttl).UnixMilli(), key, token)
	if err != nil {
		if isContextErr(err) {
			return false, err
		}
		return false, fmt.Errorf("failed to extend lease %s: %w", key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read lease extension result: %w", err)
	}
	return affected == 1, nil
}

func (s *sqliteBackend) ReleaseLease(ctx context.Context, key, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM leases WHERE key = ? AND token = ?`, key, token); err != nil {
		if isContextErr(err) {
			return err
		}
		return fmt.Errorf("failed to release lease %s: %w", key, err)
	}
	return nil
}

func (s *sqliteBackend) PurgeExpiredLeases(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM leases WHERE expires_at <= ?`, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired leases: %w", err)
	}

	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read purge result: %w", err)
	}
	return purged, nil
}

// RunMaintenance executes a VACUUM command on the SQLite database.
func (s *sqliteBackend) RunMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case isContextErr(err):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)

	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}

func (s *sqliteBackend) Close() error {
	return s.db.Close()
}
