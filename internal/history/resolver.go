package history

import (
	"context"
	"fmt"
	"sync"
)

// Resolver maps a user identifier to the display name used in transcripts.
type Resolver interface {
	Resolve(ctx context.Context, userID int64) (string, error)
}

// UserLookup fetches a display name from the messaging platform.
type UserLookup interface {
	LookupDisplayName(ctx context.Context, userID int64) (string, error)
}

// NotFoundError reports a user the platform could not resolve.
type NotFoundError struct {
	UserID int64
	Err    error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("user %d not found: %v", e.UserID, e.Err)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// CachingResolver resolves names through a UserLookup and remembers every
// successful answer for the life of the process.
type CachingResolver struct {
	lookup UserLookup

	mu    sync.RWMutex
	names map[int64]string
}

// NewCachingResolver creates a resolver backed by lookup.
func NewCachingResolver(lookup UserLookup) *CachingResolver {
	return &CachingResolver{
		lookup: lookup,
		names:  make(map[int64]string),
	}
}

// Resolve returns the cached name for userID, asking the platform on a miss.
// A failed lookup is not cached and yields a *NotFoundError.
func (r *CachingResolver) Resolve(ctx context.Context, userID int64) (string, error) {
	r.mu.RLock()
	name, ok := r.names[userID]
	r.mu.RUnlock()
	if ok {
		return name, nil
	}

	name, err := r.lookup.LookupDisplayName(ctx, userID)
	if err != nil {
		return "", &NotFoundError{UserID: userID, Err: err}
	}

	r.Remember(userID, name)
	return name, nil
}

// Remember stores a name seen elsewhere, such as on an incoming message.
func (r *CachingResolver) Remember(userID int64, name string) {
	if name == "" {
		return
	}
	r.mu.Lock()
	r.names[userID] = name
	r.mu.Unlock()
}

// NullResolver renders every author without a name.
type NullResolver struct{}

func (NullResolver) Resolve(context.Context, int64) (string, error) {
	return "", nil
}
