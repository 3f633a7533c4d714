// Package guard holds the chat anti-abuse checks: a per-user sliding-minute
// rate counter and a short-TTL duplicate-message fingerprint. Both run over a
// pluggable keyed store so multi-instance deployments share state through
// redis while a single instance can fall back to an in-process map. The
// contract is identical either way; only restart blast radius differs.
package guard

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Store is a TTL-bearing keyed store. Incr bumps a counter, setting the TTL
// when the key is created. SetNX records membership and reports whether the
// key was newly set.
type Store interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type Guard struct {
	store        Store
	maxPerMinute int
	duplicateTTL time.Duration
	now          func() time.Time
}

func New(store Store, maxPerMinute int, duplicateTTL time.Duration) *Guard {
	return &Guard{
		store:        store,
		maxPerMinute: maxPerMinute,
		duplicateTTL: duplicateTTL,
		now:          time.Now,
	}
}

// RateLimited reports whether the user exceeded the per-minute message cap.
// Store failures fail open: a broken guard must never block processing.
func (g *Guard) RateLimited(ctx context.Context, userID uint) bool {
	minute := g.now().Unix() / 60
	key := fmt.Sprintf("rate:%d:%d", userID, minute)

	count, err := g.store.Incr(ctx, key, 60*time.Second)
	if err != nil {
		log.Printf("Rate limit store error for user %d: %v", userID, err)
		return false
	}
	return count > int64(g.maxPerMinute)
}

// IsDuplicate reports whether the same text was already seen from the user
// inside the TTL window. The first sighting records the fingerprint.
func (g *Guard) IsDuplicate(ctx context.Context, userID uint, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	key := fmt.Sprintf("anti:%d:%d", userID, xxhash.Sum64String(text))

	fresh, err := g.store.SetNX(ctx, key, g.duplicateTTL)
	if err != nil {
		log.Printf("Duplicate store error for user %d: %v", userID, err)
		return false
	}
	return !fresh
}
