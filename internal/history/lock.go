package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// keyedMutex serializes holders of the same key inside this process so that
// only one goroutine polls the backend lease for a given conversation.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*keyedEntry)}
}

func (k *keyedMutex) lock(ctx context.Context, key string) error {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.drop(key, e)
		return ctx.Err()
	}
}

func (k *keyedMutex) unlock(key string) {
	k.mu.Lock()
	e := k.entries[key]
	k.mu.Unlock()

	<-e.ch
	k.drop(key, e)
}

func (k *keyedMutex) drop(key string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// ErrLockLost is returned by Verify once the backend lease has passed to
// another holder.
var ErrLockLost = errors.New("conversation lock lost")

// Lock is a held conversation lock. It must be released with Unlock.
type Lock struct {
	store *Store
	key   string
	token string
	lost  atomic.Bool

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Lock blocks until the caller holds the lock for owner or ctx ends.
// The lease in the backend is kept alive until Unlock.
func (s *Store) Lock(ctx context.Context, owner int64) (*Lock, error) {
	key := s.LockKey(owner)

	if err := s.local.lock(ctx, key); err != nil {
		return nil, fmt.Errorf("waiting for lock %s: %w", key, err)
	}

	token := uuid.NewString()
	if err := s.acquireLease(ctx, key, token); err != nil {
		s.local.unlock(key)
		return nil, err
	}

	l := &Lock{
		store: s,
		key:   key,
		token: token,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.keepAlive()

	s.logger.DebugContext(ctx, "Conversation lock acquired", "key", key)
	return l, nil
}

func (s *Store) acquireLease(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
		ok, err := s.backend.AcquireLease(opCtx, key, token, s.lockTTL)
		cancel()
		if err != nil {
			return fmt.Errorf("acquiring lease %s: %w", key, err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for lease %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *Lock) keepAlive() {
	defer close(l.done)

	ticker := time.NewTicker(l.store.lockTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.store.opTimeout)
			ok, err := l.store.backend.ExtendLease(ctx, l.key, l.token, l.store.lockTTL)
			cancel()

			switch {
			case err != nil:
				l.store.logger.Warn("Failed to extend conversation lock", "key", l.key, "error", err)
			case !ok:
				l.lost.Store(true)
				l.store.logger.Error("Conversation lock lost before release", "key", l.key)
				return
			}
		}
	}
}

// Verify confirms the lease is still held by renewing it. Writes made
// under the lock must be preceded by a successful Verify.
func (l *Lock) Verify(ctx context.Context) error {
	if l.lost.Load() {
		return fmt.Errorf("%s: %w", l.key, ErrLockLost)
	}

	opCtx, cancel := context.WithTimeout(ctx, l.store.opTimeout)
	defer cancel()

	ok, err := l.store.backend.ExtendLease(opCtx, l.key, l.token, l.store.lockTTL)
	if err != nil {
		return fmt.Errorf("verifying lease %s: %w", l.key, err)
	}
	if !ok {
		l.lost.Store(true)
		l.store.logger.ErrorContext(ctx, "Conversation lock lost before write", "key", l.key)
		return fmt.Errorf("%s: %w", l.key, ErrLockLost)
	}
	return nil
}

// Unlock releases the lock. Calling it more than once is a no-op.
func (l *Lock) Unlock(ctx context.Context) {
	l.once.Do(func() {
		close(l.stop)
		<-l.done

		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.store.opTimeout)
		defer cancel()

		if err := l.store.backend.ReleaseLease(releaseCtx, l.key, l.token); err != nil {
			// The lease expires on its own after the TTL.
			l.store.logger.WarnContext(ctx, "Failed to release conversation lock", "key", l.key, "error", err)
		}
		l.store.local.unlock(l.key)

		l.store.logger.DebugContext(ctx, "Conversation lock released", "key", l.key)
	})
}

// WithLock runs fn while holding the lock for owner. The lock is released
// on every exit path, including a panic inside fn.
func (s *Store) WithLock(ctx context.Context, owner int64, fn func(ctx context.Context) error) error {
	l, err := s.Lock(ctx, owner)
	if err != nil {
		return err
	}
	defer l.Unlock(ctx)

	return fn(ctx)
}
