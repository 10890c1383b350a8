// Package embedder maintains the per-message vector layer: one vector per
// message, keyed by the message id. It exists as a fallback for queries whose
// best semantic match is a single utterance rather than a conversation chunk.
package embedder

import (
	"context"
	"time"

	"github.com/quirylabs/quiry-backend/internal/events"
	"github.com/quirylabs/quiry-backend/internal/metrics"
	"github.com/quirylabs/quiry-backend/internal/platform/cohere"
	"github.com/quirylabs/quiry-backend/internal/platform/logger"
	"github.com/quirylabs/quiry-backend/internal/platform/pinecone"
)

type Embedder struct {
	log     *logger.Logger
	co      cohere.Client
	store   pinecone.VectorStore
	metrics *metrics.Metrics
}

func New(log *logger.Logger, co cohere.Client, store pinecone.VectorStore, m *metrics.Metrics) *Embedder {
	return &Embedder{
		log:     log.With("worker", "embedder"),
		co:      co,
		store:   store,
		metrics: m,
	}
}

func (e *Embedder) HandleMessage(ctx context.Context, m events.MessageEvent) {
	start := time.Now()
	vectors, err := e.co.Embed(ctx, []string{m.Text}, cohere.InputSearchDocument)
	e.metrics.EmbedDuration.Observe(time.Since(start).Seconds())
	if err != nil || len(vectors) != 1 {
		e.metrics.MessagesFailed.WithLabelValues("embedder").Inc()
		e.log.Error("Per-message embed failed", "message_id", m.ID, "error", err)
		return
	}

	md := map[string]any{
		"channel_id": m.ChannelID,
		"author_id":  m.AuthorID,
		"timestamp":  m.Timestamp,
		"text":       m.Text,
	}
	if m.GuildID != "" {
		md["guild_id"] = m.GuildID
	}
	if m.Category != "" {
		md["category"] = m.Category
	}

	start = time.Now()
	err = e.store.Upsert(ctx, []pinecone.Vector{{
		ID:       m.ID,
		Values:   vectors[0],
		Metadata: md,
	}})
	e.metrics.UpsertDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.MessagesFailed.WithLabelValues("embedder").Inc()
		e.log.Error("Per-message upsert failed", "message_id", m.ID, "error", err)
		return
	}
	e.metrics.MessagesProcessed.WithLabelValues("embedder").Inc()
}
