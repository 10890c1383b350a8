// Package redisx holds the optional Redis-backed pieces of the pipeline.
package redisx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/quirylabs/quiry-backend/internal/platform/logger"
)

// DedupeWindow is how long an identical repost from the same author is
// considered spam and dropped at ingest.
const DedupeWindow = 10 * time.Second

// DedupeGuard reports whether an author already posted identical text inside
// the window. Implementations fail open: a guard error never blocks ingest.
type DedupeGuard interface {
	SeenRecently(ctx context.Context, authorID, text string) bool
}

func contentKey(authorID, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "dedupe:" + authorID + ":" + hex.EncodeToString(sum[:8])
}

// -------------------- Redis-backed guard --------------------

type redisGuard struct {
	log *logger.Logger
	rdb *goredis.Client
}

// NewDedupeGuard connects to Redis and verifies it with a ping. Callers fall
// back to NewMemoryDedupeGuard when the address is unset or unreachable.
func NewDedupeGuard(log *logger.Logger, addr string) (DedupeGuard, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing Redis address")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisGuard{
		log: log.With("service", "RedisDedupeGuard"),
		rdb: rdb,
	}, nil
}

func (g *redisGuard) SeenRecently(ctx context.Context, authorID, text string) bool {
	ok, err := g.rdb.SetNX(ctx, contentKey(authorID, text), 1, DedupeWindow).Result()
	if err != nil {
		g.log.Warn("Dedupe check failed; letting message through", "error", err)
		return false
	}
	return !ok
}

// -------------------- In-memory guard --------------------

type memoryEntry struct {
	text string
	at   time.Time
}

type memoryGuard struct {
	mu   sync.Mutex
	last map[string]memoryEntry
	now  func() time.Time
}

// NewMemoryDedupeGuard tracks only each author's most recent message, which is
// all the window semantics need for a single process.
func NewMemoryDedupeGuard() DedupeGuard {
	return &memoryGuard{last: make(map[string]memoryEntry), now: time.Now}
}

func (g *memoryGuard) SeenRecently(_ context.Context, authorID, text string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	prev, ok := g.last[authorID]
	g.last[authorID] = memoryEntry{text: text, at: now}
	return ok && prev.text == text && now.Sub(prev.at) < DedupeWindow
}
