package database

import (
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/transcriptbot/internal/config"
)

type backendHarness struct {
	backend Backend
	// elapse lets lease TTLs run out, using fake time where the engine has it.
	elapse func(d time.Duration)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func backendFactories() map[string]func(t *testing.T) backendHarness {
	return map[string]func(t *testing.T) backendHarness{
		"sqlite": func(t *testing.T) backendHarness {
			db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
			require.NoError(t, err)
			b := NewSQLiteBackend(db, discardLogger())
			t.Cleanup(func() { _ = b.Close() })
			return backendHarness{backend: b, elapse: time.Sleep}
		},
		"bolt": func(t *testing.T) backendHarness {
			b, err := NewBoltBackend(filepath.Join(t.TempDir(), "test.bolt"), discardLogger())
			require.NoError(t, err)
			t.Cleanup(func() { _ = b.Close() })
			return backendHarness{backend: b, elapse: time.Sleep}
		},
		"redis": func(t *testing.T) backendHarness {
			mr := miniredis.RunT(t)
			b := newRedisBackend(redis.NewClient(&redis.Options{Addr: mr.Addr()}), discardLogger())
			t.Cleanup(func() { _ = b.Close() })
			return backendHarness{backend: b, elapse: mr.FastForward}
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, h backendHarness)) {
	t.Helper()
	for name, factory := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			fn(t, factory(t))
		})
	}
}

func TestBackendGetSet(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, h backendHarness) {
		ctx := t.Context()

		_, err := h.backend.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, h.backend.Set(ctx, "k", []byte(`{"a":1}`)))
		got, err := h.backend.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, string(got))

		require.NoError(t, h.backend.Set(ctx, "k", []byte(`{"a":2}`)))
		got, err = h.backend.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, `{"a":2}`, string(got), "set must overwrite in full")

		require.NoError(t, h.backend.Ping(ctx))
		require.NoError(t, h.backend.RunMaintenance(ctx))
	})
}

func TestBackendLeaseExclusive(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, h backendHarness) {
		ctx := t.Context()

		ok, err := h.backend.AcquireLease(ctx, "k:lock", "a", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = h.backend.AcquireLease(ctx, "k:lock", "b", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok, "held lease must not be taken")

		// A foreign token cannot release or extend the lease.
		require.NoError(t, h.backend.ReleaseLease(ctx, "k:lock", "b"))
		ok, err = h.backend.ExtendLease(ctx, "k:lock", "b", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = h.backend.ExtendLease(ctx, "k:lock", "a", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, h.backend.ReleaseLease(ctx, "k:lock", "a"))
		ok, err = h.backend.AcquireLease(ctx, "k:lock", "b", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "released lease must be free")
	})
}

func TestBackendLeaseExpiry(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, h backendHarness) {
		ctx := t.Context()

		ok, err := h.backend.AcquireLease(ctx, "k:lock", "a", 50*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)

		h.elapse(100 * time.Millisecond)

		ok, err = h.backend.AcquireLease(ctx, "k:lock", "b", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "expired lease must be taken over")

		ok, err = h.backend.ExtendLease(ctx, "k:lock", "a", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok, "previous holder lost the lease")
	})
}

func TestBackendPurgeExpiredLeases(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, h backendHarness) {
		ctx := t.Context()

		_, err := h.backend.AcquireLease(ctx, "old:lock", "a", 50*time.Millisecond)
		require.NoError(t, err)
		_, err = h.backend.AcquireLease(ctx, "live:lock", "b", time.Hour)
		require.NoError(t, err)

		h.elapse(100 * time.Millisecond)

		_, err = h.backend.PurgeExpiredLeases(ctx)
		require.NoError(t, err)

		ok, err := h.backend.AcquireLease(ctx, "live:lock", "c", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok, "purge must keep live leases")
	})
}

func TestBackendConcurrentAcquire(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, h backendHarness) {
		ctx := t.Context()

		const contenders = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
		)
		for i := range contenders {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := h.backend.AcquireLease(ctx, "race:lock", string(rune('a'+i)), time.Minute)
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, winners)
	})
}

func TestOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     config.DatabaseConfig
		wantErr bool
	}{
		{name: "sqlite", cfg: config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "open.db")}},
		{name: "bolt", cfg: config.DatabaseConfig{Driver: "bolt", Path: filepath.Join(t.TempDir(), "open.bolt")}},
		{name: "unknown driver", cfg: config.DatabaseConfig{Driver: "mysql"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := Open(t.Context(), tt.cfg, discardLogger())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer CloseBackend(b)
			assert.NoError(t, b.Ping(t.Context()))
		})
	}
}

func TestOpenRedis(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	b, err := Open(t.Context(), config.DatabaseConfig{
		Driver:           "redis",
		RedisHost:        mr.Host(),
		RedisPort:        port,
		OperationTimeout: time.Second,
	}, discardLogger())
	require.NoError(t, err)
	defer CloseBackend(b)

	require.NoError(t, b.Set(t.Context(), "k", []byte("v")))
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestExtractDBNameFromPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{input: "bot.db", expected: "bot.db"},
		{input: "file:bot.db?cache=shared", expected: "bot.db"},
		{input: "file:my%20bot.db", expected: "my bot.db"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, ExtractDBNameFromPath(tt.input))
		})
	}
}
