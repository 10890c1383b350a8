package pinecone

import (
	"context"
	"fmt"

	"github.com/quirylabs/quiry-backend/internal/platform/logger"
)

// VectorStore is the namespaced view of one Pinecone index that the pipeline
// writes chunks and per-message vectors into.
type VectorStore interface {
	Upsert(ctx context.Context, vectors []Vector) error
	// QueryMatches returns scored matches with their metadata (higher is better).
	QueryMatches(ctx context.Context, q []float32, topK int, filter map[string]any) ([]Match, error)
}

type Match struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

type vectorStore struct {
	log       *logger.Logger
	pc        Client
	indexName string
	namespace string
}

func NewVectorStore(log *logger.Logger, pc Client, indexName, namespace string) (VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if pc == nil {
		return nil, fmt.Errorf("pinecone client required")
	}
	if indexName == "" {
		return nil, fmt.Errorf("index name required")
	}
	if namespace == "" {
		namespace = "default"
	}
	return &vectorStore{
		log:       log.With("service", "PineconeVectorStore", "index", indexName, "namespace", namespace),
		pc:        pc,
		indexName: indexName,
		namespace: namespace,
	}, nil
}

func (s *vectorStore) Upsert(ctx context.Context, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	_, err := s.pc.UpsertVectors(ctx, UpsertRequest{
		Namespace: s.namespace,
		Vectors:   vectors,
	})
	return err
}

func (s *vectorStore) QueryMatches(ctx context.Context, q []float32, topK int, filter map[string]any) ([]Match, error) {
	resp, err := s.pc.Query(ctx, QueryRequest{
		Namespace:       s.namespace,
		Vector:          q,
		TopK:            topK,
		Filter:          filter,
		IncludeValues:   false,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m.ID == "" {
			continue
		}
		out = append(out, Match{ID: m.ID, Score: m.Score, Metadata: m.Metadata})
	}
	return out, nil
}

// GuildFilter restricts a query to one guild, or to DM records when the guild
// id is empty (DM vectors carry no guild_id field at all).
func GuildFilter(guildID string) map[string]any {
	if guildID != "" {
		return map[string]any{"guild_id": map[string]any{"$eq": guildID}}
	}
	return map[string]any{"guild_id": map[string]any{"$exists": false}}
}

// ChunkFilter narrows a guild filter to chunk records.
func ChunkFilter(guildID string) map[string]any {
	f := GuildFilter(guildID)
	f["type"] = map[string]any{"$eq": "chunk"}
	return f
}
