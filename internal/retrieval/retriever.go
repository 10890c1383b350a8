// Package retrieval answers natural-language questions over the ingested
// history by fusing dense chunk search with keyword search and handing the
// top results to the chat model.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/quirylabs/quiry-backend/internal/events"
	"github.com/quirylabs/quiry-backend/internal/metrics"
	"github.com/quirylabs/quiry-backend/internal/platform/cohere"
	"github.com/quirylabs/quiry-backend/internal/platform/elastic"
	"github.com/quirylabs/quiry-backend/internal/platform/logger"
	"github.com/quirylabs/quiry-backend/internal/platform/pinecone"
)

// NoResultsResponse is returned verbatim when neither chunk nor per-message
// search finds anything.
const NoResultsResponse = "I couldn't find any relevant messages in the history to answer your question."

const (
	chunkTopK   = 3
	messageTopK = 5
	keywordSize = 5
)

// Query is one question with its optional scope restrictions. An empty
// GuildID scopes the search to direct messages.
type Query struct {
	Question  string
	GuildID   string
	ChannelID string
	AuthorID  string
}

// Retriever is stateless and safe for concurrent use. The keyword client may
// be nil, in which case retrieval runs dense-only (degraded mode).
type Retriever struct {
	log     *logger.Logger
	co      cohere.Client
	store   pinecone.VectorStore
	keyword elastic.Client
	metrics *metrics.Metrics
}

func New(log *logger.Logger, co cohere.Client, store pinecone.VectorStore, keyword elastic.Client, m *metrics.Metrics) *Retriever {
	return &Retriever{
		log:     log.With("service", "Retriever"),
		co:      co,
		store:   store,
		keyword: keyword,
		metrics: m,
	}
}

func (r *Retriever) Answer(ctx context.Context, q Query) (string, error) {
	if q.Question == "" {
		return "", fmt.Errorf("empty question")
	}

	start := time.Now()
	hits, err := r.retrieve(ctx, q)
	r.metrics.SearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return NoResultsResponse, nil
	}

	answer, err := r.co.Chat(ctx, buildMessage(q.Question, hits), answerPreamble)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return answer, nil
}

func (r *Retriever) retrieve(ctx context.Context, q Query) ([]rankedHit, error) {
	vectors, err := r.co.Embed(ctx, []string{q.Question}, cohere.InputSearchQuery)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed question: expected 1 vector, got %d", len(vectors))
	}
	qv := vectors[0]

	chunks, err := r.queryChunks(ctx, qv, q.GuildID)
	if err != nil {
		return nil, fmt.Errorf("chunk search: %w", err)
	}

	if r.keyword != nil {
		keywords, err := r.keyword.Search(ctx, q.Question, elastic.Filters{
			GuildID:   q.GuildID,
			ChannelID: q.ChannelID,
			AuthorID:  q.AuthorID,
		}, keywordSize)
		if err != nil {
			// Keyword search failing at query time degrades to dense-only,
			// same as the index being absent at boot.
			r.log.Warn("Keyword search failed; serving dense-only", "error", err)
		} else if len(chunks) > 0 && len(keywords) > 0 {
			return fuseResults(chunks, keywords), nil
		} else if len(chunks) == 0 && len(keywords) > 0 {
			return fuseResults(nil, keywords), nil
		}
	}

	if len(chunks) > 0 {
		return chunksAsHits(chunks), nil
	}

	// Dense-empty fallback: per-message vectors.
	msgs, err := r.queryMessages(ctx, qv, q.GuildID)
	if err != nil {
		return nil, fmt.Errorf("message search: %w", err)
	}
	return messagesAsHits(msgs), nil
}

func (r *Retriever) queryChunks(ctx context.Context, qv []float32, guildID string) ([]events.ChunkQueryResult, error) {
	matches, err := r.store.QueryMatches(ctx, qv, chunkTopK, pinecone.ChunkFilter(guildID))
	if err != nil {
		return nil, err
	}
	out := make([]events.ChunkQueryResult, 0, len(matches))
	for _, m := range matches {
		out = append(out, chunkResultFromMatch(m))
	}
	return out, nil
}

func (r *Retriever) queryMessages(ctx context.Context, qv []float32, guildID string) ([]events.QueryResult, error) {
	matches, err := r.store.QueryMatches(ctx, qv, messageTopK, pinecone.GuildFilter(guildID))
	if err != nil {
		return nil, err
	}
	out := make([]events.QueryResult, 0, len(matches))
	for _, m := range matches {
		out = append(out, events.QueryResult{
			Text:      mdString(m.Metadata, "text"),
			AuthorID:  mdString(m.Metadata, "author_id"),
			Timestamp: mdString(m.Metadata, "timestamp"),
			Score:     m.Score,
		})
	}
	return out, nil
}

func chunkResultFromMatch(m pinecone.Match) events.ChunkQueryResult {
	c := events.ChunkQueryResult{
		ChunkID:        mdString(m.Metadata, "chunk_id"),
		Text:           mdString(m.Metadata, "full_text"),
		Summary:        mdString(m.Metadata, "summary"),
		Authors:        mdStrings(m.Metadata, "authors"),
		FirstTimestamp: mdString(m.Metadata, "first_timestamp"),
		LastTimestamp:  mdString(m.Metadata, "last_timestamp"),
		Score:          m.Score,
	}
	if n, ok := m.Metadata["message_count"].(float64); ok {
		c.MessageCount = int(n)
	}
	return c
}

func mdString(md map[string]any, key string) string {
	s, _ := md[key].(string)
	return s
}

func mdStrings(md map[string]any, key string) []string {
	raw, ok := md[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
