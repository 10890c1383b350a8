// Package chunker groups temporally contiguous messages per channel into
// conversation chunks, the atomic unit of dense retrieval.
package chunker

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quirylabs/quiry-backend/internal/events"
	"github.com/quirylabs/quiry-backend/internal/platform/logger"
)

const (
	MaxChunkSize     = 12
	MinChunkSize     = 3
	TimeGap          = 15 * time.Minute
	SummaryThreshold = 2000
)

// Sink receives finalized chunks. An error means the chunk was dropped; the
// chunker logs it and moves on (the per-message embedder is the safety net).
type Sink interface {
	EmitChunk(ctx context.Context, chunk events.MessageChunk) error
}

type buffer struct {
	mu              sync.Mutex
	messages        []events.MessageEvent
	lastMessageTime time.Time
}

// Manager holds one buffer per (guild|dm, channel) key. Buffers are created
// lazily and never deleted; idle ones are cheap.
type Manager struct {
	log  *logger.Logger
	sink Sink

	mu      sync.Mutex
	buffers map[string]*buffer
}

func NewManager(log *logger.Logger, sink Sink) *Manager {
	return &Manager{
		log:     log.With("service", "ChunkManager"),
		sink:    sink,
		buffers: make(map[string]*buffer),
	}
}

func bufferKey(m events.MessageEvent) string {
	guild := m.GuildID
	if guild == "" {
		guild = "dm"
	}
	return guild + "/" + m.ChannelID
}

func (mgr *Manager) bufferFor(key string) *buffer {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	b, ok := mgr.buffers[key]
	if !ok {
		b = &buffer{}
		mgr.buffers[key] = b
	}
	return b
}

// ProcessMessage runs the flush decision for the message's channel buffer,
// then appends the message. The decision runs before the append, so a flush
// triggered by m never includes m itself.
func (mgr *Manager) ProcessMessage(ctx context.Context, m events.MessageEvent) {
	key := bufferKey(m)
	b := mgr.bufferFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	t, terr := m.Time()
	if terr != nil {
		mgr.log.Warn("Unparseable message timestamp",
			"message_id", m.ID,
			"timestamp", m.Timestamp,
			"error", terr,
		)
	}

	if len(b.messages) > 0 {
		switch {
		case len(b.messages) >= MaxChunkSize:
			mgr.flushLocked(ctx, key, b, false)
		case t.Sub(b.lastMessageTime) > TimeGap:
			mgr.flushLocked(ctx, key, b, false)
		}
	}

	b.messages = append(b.messages, m)
	if terr == nil {
		b.lastMessageTime = t
	}

	if len(b.messages) >= MaxChunkSize {
		mgr.flushLocked(ctx, key, b, false)
	}
}

// FlushAll drains every non-empty buffer regardless of the minimum size.
// Used on graceful shutdown.
func (mgr *Manager) FlushAll(ctx context.Context) {
	mgr.mu.Lock()
	keys := make([]string, 0, len(mgr.buffers))
	bufs := make([]*buffer, 0, len(mgr.buffers))
	for k, b := range mgr.buffers {
		keys = append(keys, k)
		bufs = append(bufs, b)
	}
	mgr.mu.Unlock()

	for i, b := range bufs {
		b.mu.Lock()
		mgr.flushLocked(ctx, keys[i], b, true)
		b.mu.Unlock()
	}
}

// flushLocked emits the buffer as a chunk when it holds at least
// MinChunkSize messages (or unconditionally when forced). A skipped flush
// leaves the buffer intact so it keeps accumulating.
func (mgr *Manager) flushLocked(ctx context.Context, key string, b *buffer, force bool) {
	if len(b.messages) == 0 {
		return
	}
	if !force && len(b.messages) < MinChunkSize {
		return
	}

	chunk := buildChunk(b.messages)
	b.messages = nil
	b.lastMessageTime = time.Time{}

	if err := mgr.sink.EmitChunk(ctx, chunk); err != nil {
		mgr.log.Warn("Chunk dropped",
			"buffer", key,
			"chunk_id", chunk.ChunkID,
			"message_count", chunk.MessageCount,
			"error", err,
		)
	}
}

func buildChunk(msgs []events.MessageEvent) events.MessageChunk {
	first, last := msgs[0], msgs[len(msgs)-1]

	authorSet := make(map[string]struct{}, len(msgs))
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		authorSet[m.AuthorID] = struct{}{}
		lines = append(lines, m.AuthorID+": "+m.Text)
	}
	authors := make([]string, 0, len(authorSet))
	for a := range authorSet {
		authors = append(authors, a)
	}
	sort.Strings(authors)

	return events.MessageChunk{
		ChunkID:        uuid.NewString(),
		GuildID:        first.GuildID,
		ChannelID:      first.ChannelID,
		FirstMsgID:     first.ID,
		LastMsgID:      last.ID,
		FirstTimestamp: first.Timestamp,
		LastTimestamp:  last.Timestamp,
		MessageCount:   len(msgs),
		Authors:        authors,
		FullText:       strings.Join(lines, "\n"),
	}
}
