package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	kvBucket    = []byte("kv")
	leaseBucket = []byte("leases")
)

type boltLease struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// boltBackend implements Backend on a single bbolt file.
type boltBackend struct {
	db     *bolt.DB
	logger *slog.Logger
}

// NewBoltBackend opens (or creates) the bbolt file at path.
func NewBoltBackend(path string, logger *slog.Logger) (Backend, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{kvBucket, leaseBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("Bolt database opened", "path", path)
	return &boltBackend{
		db:     db,
		logger: logger.With("component", "store", "driver", "bolt"),
	}, nil
}

func (b *boltBackend) Ping(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return b.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(kvBucket) == nil {
			return fmt.Errorf("bucket %s missing", kvBucket)
		}
		return nil
	})
}

func (b *boltBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(kvBucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// v is only valid for the life of the transaction.
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (b *boltBackend) Set(ctx context.Context, key string, value []byte) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if value == nil {
		value = []byte{}
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(kvBucket).Put([]byte(key), value)
	})
	if err != nil {
		b.logger.ErrorContext(ctx, "Error writing key", "key", key, "error", err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (b *boltBackend) AcquireLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	acquired := false
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(leaseBucket)
		now := time.Now()

		if raw := bucket.Get([]byte(key)); raw != nil {
			var current boltLease
			if err := json.Unmarshal(raw, &current); err != nil {
				return fmt.Errorf("failed to decode lease %s: %w", key, err)
			}
			if current.ExpiresAt > now.UnixMilli() {
				return nil
			}
		}

		acquired = true
		return putLease(bucket, key, boltLease{Token: token, ExpiresAt: now.Add(ttl).UnixMilli()})
	})
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	return acquired, nil
}

func (b *boltBackend) ExtendLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	extended := false
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(leaseBucket)
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return nil
		}

		var current boltLease
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("failed to decode lease %s: %w", key, err)
		}
		if current.Token != token {
			return nil
		}

		extended = true
		current.ExpiresAt = time.Now().Add(ttl).UnixMilli()
		return putLease(bucket, key, current)
	})
	if err != nil {
		return false, fmt.Errorf("failed to extend lease %s: %w", key, err)
	}
	return extended, nil
}

func (b *boltBackend) ReleaseLease(ctx context.Context, key, token string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(leaseBucket)
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return nil
		}

		var current boltLease
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("failed to decode lease %s: %w", key, err)
		}
		if current.Token != token {
			return nil
		}
		return bucket.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to release lease %s: %w", key, err)
	}
	return nil
}

func (b *boltBackend) PurgeExpiredLeases(ctx context.Context) (int64, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	var purged int64
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(leaseBucket)
		now := time.Now().UnixMilli()

		var expired [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var current boltLease
			if err := json.Unmarshal(v, &current); err != nil || current.ExpiresAt <= now {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		// Deleting inside ForEach invalidates the cursor.
		for _, k := range expired {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			purged++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired leases: %w", err)
	}
	return purged, nil
}

// RunMaintenance is a no-op: bbolt reuses freed pages on its own.
func (b *boltBackend) RunMaintenance(ctx context.Context) error {
	b.logger.DebugContext(ctx, "No maintenance needed for bolt backend")
	return nil
}

func (b *boltBackend) Close() error {
	return b.db.Close()
}

func putLease(bucket *bolt.Bucket, key string, lease boltLease) error {
	raw, err := json.Marshal(lease)
	if err != nil {
		return fmt.Errorf("failed to encode lease %s: %w", key, err)
	}
	return bucket.Put([]byte(key), raw)
}
