package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/edgard/transcriptbot/internal/config"
	"github.com/edgard/transcriptbot/internal/database"
)

const (
	keyPrefix  = "conversation-history:interacting-user-id:"
	lockSuffix = ":lock"

	defaultLockTTL      = 5 * time.Minute
	defaultPollInterval = 100 * time.Millisecond
	defaultOpTimeout    = 5 * time.Second
)

// Store persists conversations in a database.Backend, one key per owner,
// and hands out the per-owner locks that guard their read-modify-write.
type Store struct {
	backend  database.Backend
	resolver Resolver
	logger   *slog.Logger
	local    *keyedMutex

	lockTTL      time.Duration
	pollInterval time.Duration
	opTimeout    time.Duration
}

// NewStore creates a Store. Zero durations in cfg fall back to defaults.
func NewStore(backend database.Backend, resolver Resolver, cfg config.DatabaseConfig, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if resolver == nil {
		resolver = NullResolver{}
	}

	s := &Store{
		backend:      backend,
		resolver:     resolver,
		logger:       logger.With("component", "history"),
		local:        newKeyedMutex(),
		lockTTL:      cfg.LockTTL,
		pollInterval: cfg.LockPollInterval,
		opTimeout:    cfg.OperationTimeout,
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	if s.opTimeout <= 0 {
		s.opTimeout = defaultOpTimeout
	}
	return s
}

// ConversationKey is the backend key holding owner's transcript.
func (s *Store) ConversationKey(owner int64) string {
	return keyPrefix + strconv.FormatInt(owner, 10)
}

// LockKey is the backend key of the lease guarding owner's transcript.
func (s *Store) LockKey(owner int64) string {
	return s.ConversationKey(owner) + lockSuffix
}

// Get loads owner's conversation. An owner never seen before gets an empty one.
func (s *Store) Get(ctx context.Context, owner int64) (*Conversation, error) {
	key := s.ConversationKey(owner)

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	raw, err := s.backend.Get(opCtx, key)
	if errors.Is(err, database.ErrNotFound) {
		return NewConversation(owner), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", key, err)
	}

	conv := NewConversation(owner)
	if err := json.Unmarshal(raw, conv); err != nil {
		return nil, fmt.Errorf("decoding conversation %s: %w", key, err)
	}
	if conv.Messages == nil {
		conv.Messages = []Message{}
	}
	conv.OwnerID = owner
	return conv, nil
}

// Save overwrites the stored conversation with c in full.
func (s *Store) Save(ctx context.Context, c *Conversation) error {
	key := s.ConversationKey(c.OwnerID)

	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding conversation %s: %w", key, err)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.backend.Set(opCtx, key, raw); err != nil {
		return fmt.Errorf("saving conversation %s: %w", key, err)
	}

	s.logger.DebugContext(ctx, "Conversation saved", "owner_id", c.OwnerID, "messages", c.Len())
	return nil
}

// SaveHeld saves c after confirming l still holds the lease. Nothing is
// written when the lock was lost.
func (s *Store) SaveHeld(ctx context.Context, l *Lock, c *Conversation) error {
	if err := l.Verify(ctx); err != nil {
		return err
	}
	return s.Save(ctx, c)
}

// Clear empties owner's conversation under its lock.
func (s *Store) Clear(ctx context.Context, owner int64) error {
	l, err := s.Lock(ctx, owner)
	if err != nil {
		return err
	}
	defer l.Unlock(ctx)

	conv, err := s.Get(ctx, owner)
	if err != nil {
		return err
	}
	conv.Clear()
	return s.SaveHeld(ctx, l, conv)
}

// Render formats c with the store's resolver.
func (s *Store) Render(ctx context.Context, c *Conversation) (string, error) {
	return Render(ctx, c, s.resolver)
}

// Trim applies the character budget to c with the store's resolver.
func (s *Store) Trim(ctx context.Context, c *Conversation, maxChars int) (int, error) {
	evicted, err := Trim(ctx, c, s.resolver, maxChars)
	if err != nil {
		return 0, err
	}
	if evicted > 0 {
		s.logger.DebugContext(ctx, "Conversation trimmed", "owner_id", c.OwnerID, "evicted", evicted, "budget", maxChars)
	}
	return evicted, nil
}

// Resolve returns the display name of userID.
func (s *Store) Resolve(ctx context.Context, userID int64) (string, error) {
	return s.resolver.Resolve(ctx, userID)
}
