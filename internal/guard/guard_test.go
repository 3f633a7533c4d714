package guard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGuard(maxPerMinute int, dupTTL time.Duration) (*Guard, *MemoryStore, *time.Time) {
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	g := New(store, maxPerMinute, dupTTL)
	g.now = func() time.Time { return now }
	return g, store, &now
}

func TestRateLimitWithinMinute(t *testing.T) {
	g, _, _ := newTestGuard(3, 30*time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.False(t, g.RateLimited(ctx, 7), "message %d should pass", i+1)
	}
	assert.True(t, g.RateLimited(ctx, 7))
}

func TestRateLimitResetsNextMinute(t *testing.T) {
	g, _, now := newTestGuard(1, 30*time.Second)
	ctx := context.Background()

	assert.False(t, g.RateLimited(ctx, 7))
	assert.True(t, g.RateLimited(ctx, 7))

	*now = now.Add(time.Minute)
	assert.False(t, g.RateLimited(ctx, 7))
}

func TestRateLimitPerUser(t *testing.T) {
	g, _, _ := newTestGuard(1, 30*time.Second)
	ctx := context.Background()

	assert.False(t, g.RateLimited(ctx, 1))
	assert.True(t, g.RateLimited(ctx, 1))
	assert.False(t, g.RateLimited(ctx, 2))
}

func TestDuplicateSuppression(t *testing.T) {
	g, _, now := newTestGuard(100, 30*time.Second)
	ctx := context.Background()

	assert.False(t, g.IsDuplicate(ctx, 7, "hello"))
	assert.True(t, g.IsDuplicate(ctx, 7, "hello"))
	assert.True(t, g.IsDuplicate(ctx, 7, "  hello  "), "whitespace does not defeat the fingerprint")

	// Different text and different user both pass.
	assert.False(t, g.IsDuplicate(ctx, 7, "other"))
	assert.False(t, g.IsDuplicate(ctx, 8, "hello"))

	// TTL expiry reopens the window.
	*now = now.Add(31 * time.Second)
	assert.False(t, g.IsDuplicate(ctx, 7, "hello"))
}

func TestEmptyTextNeverDuplicate(t *testing.T) {
	g, _, _ := newTestGuard(100, 30*time.Second)
	ctx := context.Background()

	assert.False(t, g.IsDuplicate(ctx, 7, ""))
	assert.False(t, g.IsDuplicate(ctx, 7, "   "))
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("store down")
}
func (failingStore) SetNX(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("store down")
}

func TestGuardFailsOpen(t *testing.T) {
	g := New(failingStore{}, 1, time.Second)
	ctx := context.Background()

	assert.False(t, g.RateLimited(ctx, 7))
	assert.False(t, g.IsDuplicate(ctx, 7, "hello"))
}

func TestMemoryStoreConcurrent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Incr(ctx, "k", time.Minute)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	count, err := store.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(51), count)
}
