package relevance

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/agentbus/agentbus/internal/agent"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewCache(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func TestCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	if _, ok := cache.Get(ctx, "act-1"); ok {
		t.Error("empty cache must miss")
	}

	cache.Set(ctx, "act-1", true, time.Minute)
	relevant, ok := cache.Get(ctx, "act-1")
	if !ok || !relevant {
		t.Errorf("get = (%v, %v), want (true, true)", relevant, ok)
	}

	cache.Set(ctx, "act-2", false, time.Minute)
	relevant, ok = cache.Get(ctx, "act-2")
	if !ok || relevant {
		t.Errorf("get = (%v, %v), want (false, true)", relevant, ok)
	}
}

func TestCacheExpiry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "act-1", true, time.Minute)
	mr.FastForward(2 * time.Minute)

	if _, ok := cache.Get(ctx, "act-1"); ok {
		t.Error("entry must expire with its TTL")
	}
}

func TestCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "act-1", true, time.Minute)
	cache.Invalidate(ctx, "act-1")
	if _, ok := cache.Get(ctx, "act-1"); ok {
		t.Error("invalidated entry must miss")
	}
}

func TestStillRelevantUsesCache(t *testing.T) {
	cache, _ := newTestCache(t)
	contacts := &fakeContacts{contact: activeContact()}
	v := New(nil, contacts, Options{Cache: cache})

	action := localAction()
	if !v.StillRelevant(context.Background(), action, "c-1", "") {
		t.Fatal("fresh action with unchanged context should be relevant")
	}

	// Flip the contact to a terminal state; the cached verdict must win
	// until it expires or is invalidated.
	contacts.contact = &agent.ContactContext{ContactID: "c-1", RelationshipState: "churned"}
	if !v.StillRelevant(context.Background(), action, "c-1", "") {
		t.Error("second call should come from the cache")
	}

	cache.Invalidate(context.Background(), action.ID)
	if v.StillRelevant(context.Background(), action, "c-1", "") {
		t.Error("after invalidation the terminal state must be seen")
	}
}

func TestStillRelevantWithoutCache(t *testing.T) {
	v := New(nil, &fakeContacts{contact: activeContact()}, Options{})

	if !v.StillRelevant(context.Background(), localAction(), "c-1", "") {
		t.Error("fast path must work with no cache configured")
	}
}
