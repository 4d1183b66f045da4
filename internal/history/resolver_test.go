package history

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLookup struct {
	calls atomic.Int32
	names map[int64]string
}

func (c *countingLookup) LookupDisplayName(_ context.Context, id int64) (string, error) {
	c.calls.Add(1)
	name, ok := c.names[id]
	if !ok {
		return "", errors.New("chat not found")
	}
	return name, nil
}

func TestCachingResolver(t *testing.T) {
	t.Parallel()

	lookup := &countingLookup{names: map[int64]string{1: "alice"}}
	r := NewCachingResolver(lookup)

	for range 3 {
		name, err := r.Resolve(t.Context(), 1)
		require.NoError(t, err)
		assert.Equal(t, "alice", name)
	}
	assert.Equal(t, int32(1), lookup.calls.Load(), "hits must come from the cache")
}

func TestCachingResolverNotFound(t *testing.T) {
	t.Parallel()

	lookup := &countingLookup{names: map[int64]string{}}
	r := NewCachingResolver(lookup)

	_, err := r.Resolve(t.Context(), 404)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, int64(404), nf.UserID)
	assert.Contains(t, err.Error(), "404")

	_, err = r.Resolve(t.Context(), 404)
	require.Error(t, err)
	assert.Equal(t, int32(2), lookup.calls.Load(), "failures must not be cached")
}

func TestCachingResolverRemember(t *testing.T) {
	t.Parallel()

	lookup := &countingLookup{names: map[int64]string{}}
	r := NewCachingResolver(lookup)
	r.Remember(5, "carol")
	r.Remember(6, "")

	name, err := r.Resolve(t.Context(), 5)
	require.NoError(t, err)
	assert.Equal(t, "carol", name)
	assert.Zero(t, lookup.calls.Load())

	_, err = r.Resolve(t.Context(), 6)
	assert.Error(t, err, "empty names are not remembered")
}

func TestCachingResolverConcurrent(t *testing.T) {
	t.Parallel()

	lookup := &countingLookup{names: map[int64]string{1: "a", 2: "b", 3: "c"}}
	r := NewCachingResolver(lookup)

	var wg sync.WaitGroup
	for i := range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Resolve(t.Context(), int64(i%3+1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
