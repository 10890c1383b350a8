package redisx

import (
	"context"
	"testing"
	"time"
)

func TestMemoryGuardDropsFastReposts(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g := &memoryGuard{last: make(map[string]memoryEntry), now: func() time.Time { return now }}
	ctx := context.Background()

	if g.SeenRecently(ctx, "alice", "buy my course") {
		t.Fatalf("first post must pass")
	}
	now = now.Add(2 * time.Second)
	if !g.SeenRecently(ctx, "alice", "buy my course") {
		t.Fatalf("identical repost inside the window must be flagged")
	}
}

func TestMemoryGuardWindowExpires(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g := &memoryGuard{last: make(map[string]memoryEntry), now: func() time.Time { return now }}
	ctx := context.Background()

	g.SeenRecently(ctx, "alice", "gm")
	now = now.Add(DedupeWindow + time.Second)
	if g.SeenRecently(ctx, "alice", "gm") {
		t.Fatalf("repost after the window must pass")
	}
}

func TestMemoryGuardScopesByAuthorAndText(t *testing.T) {
	g := NewMemoryDedupeGuard()
	ctx := context.Background()

	g.SeenRecently(ctx, "alice", "hello")
	if g.SeenRecently(ctx, "bob", "hello") {
		t.Fatalf("other authors are unaffected")
	}
	if g.SeenRecently(ctx, "alice", "different text") {
		t.Fatalf("different text from the same author must pass")
	}
}

func TestContentKeyStable(t *testing.T) {
	a := contentKey("alice", "hello")
	b := contentKey("alice", "hello")
	if a != b {
		t.Fatalf("key not stable: %q vs %q", a, b)
	}
	if a == contentKey("alice", "hello!") {
		t.Fatalf("different text must hash to a different key")
	}
}
