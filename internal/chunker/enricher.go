package chunker

import (
	"context"
	"fmt"
	"time"

	"github.com/quirylabs/quiry-backend/internal/events"
	"github.com/quirylabs/quiry-backend/internal/metrics"
	"github.com/quirylabs/quiry-backend/internal/platform/cohere"
	"github.com/quirylabs/quiry-backend/internal/platform/logger"
	"github.com/quirylabs/quiry-backend/internal/platform/pinecone"
)

// Enricher turns an emitted chunk into a vector store record: optional
// summary, then embedding, then upsert. Summary failure degrades to embedding
// the full text; embedding or upsert failure drops the chunk.
type Enricher struct {
	log     *logger.Logger
	co      cohere.Client
	store   pinecone.VectorStore
	metrics *metrics.Metrics
}

func NewEnricher(log *logger.Logger, co cohere.Client, store pinecone.VectorStore, m *metrics.Metrics) *Enricher {
	return &Enricher{
		log:     log.With("service", "ChunkEnricher"),
		co:      co,
		store:   store,
		metrics: m,
	}
}

func (e *Enricher) EmitChunk(ctx context.Context, chunk events.MessageChunk) error {
	if len(chunk.FullText) > SummaryThreshold {
		summary, err := e.co.Summarize(ctx, chunk.FullText)
		if err != nil {
			e.log.Warn("Summary failed; embedding full text instead",
				"chunk_id", chunk.ChunkID,
				"error", err,
			)
		} else if summary != "" {
			chunk.Summary = summary
			chunk.HasSummary = true
		}
	}

	source := chunk.FullText
	if chunk.HasSummary {
		source = chunk.Summary
	}

	start := time.Now()
	vectors, err := e.co.Embed(ctx, []string{source}, cohere.InputSearchDocument)
	e.metrics.EmbedDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("embed chunk: %w", err)
	}
	if len(vectors) != 1 {
		return fmt.Errorf("embed chunk: expected 1 vector, got %d", len(vectors))
	}

	start = time.Now()
	err = e.store.Upsert(ctx, []pinecone.Vector{{
		ID:       chunk.VectorID(),
		Values:   vectors[0],
		Metadata: chunkMetadata(chunk),
	}})
	e.metrics.UpsertDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("upsert chunk: %w", err)
	}

	e.metrics.ChunksEmitted.Inc()
	e.log.Debug("Chunk stored",
		"chunk_id", chunk.ChunkID,
		"message_count", chunk.MessageCount,
		"has_summary", chunk.HasSummary,
	)
	return nil
}

func chunkMetadata(chunk events.MessageChunk) map[string]any {
	md := map[string]any{
		"type":            "chunk",
		"chunk_id":        chunk.ChunkID,
		"channel_id":      chunk.ChannelID,
		"first_msg_id":    chunk.FirstMsgID,
		"last_msg_id":     chunk.LastMsgID,
		"first_timestamp": chunk.FirstTimestamp,
		"last_timestamp":  chunk.LastTimestamp,
		"message_count":   chunk.MessageCount,
		"authors":         chunk.Authors,
		"full_text":       chunk.FullText,
		"has_summary":     chunk.HasSummary,
	}
	if chunk.GuildID != "" {
		md["guild_id"] = chunk.GuildID
	}
	if chunk.HasSummary {
		md["summary"] = chunk.Summary
	}
	return md
}
