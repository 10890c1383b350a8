package app

import (
	"fmt"

	"github.com/quirylabs/quiry-backend/internal/archive"
	"github.com/quirylabs/quiry-backend/internal/clients/redisx"
	"github.com/quirylabs/quiry-backend/internal/metrics"
	"github.com/quirylabs/quiry-backend/internal/platform/cohere"
	"github.com/quirylabs/quiry-backend/internal/platform/elastic"
	"github.com/quirylabs/quiry-backend/internal/platform/kafkabus"
	"github.com/quirylabs/quiry-backend/internal/platform/logger"
	"github.com/quirylabs/quiry-backend/internal/platform/pinecone"
)

// Clients holds every external collaborator. Cohere and the vector store are
// required; the rest are capability handles that may be nil, selecting the
// corresponding degraded path.
type Clients struct {
	Cohere      cohere.Client
	PineconeAPI pinecone.Client
	Vectors     pinecone.VectorStore

	Keyword  elastic.Client     // nil: dense-only retrieval, no indexer worker
	Producer *kafkabus.Producer // nil: inline processing, no consumer workers
	Archive  *archive.Store     // nil: no relational archive
	Dedupe   redisx.DedupeGuard // never nil; in-memory fallback
}

func buildClients(log *logger.Logger, cfg Config, m *metrics.Metrics) (Clients, error) {
	log.Info("Wiring clients...")

	pc, err := pinecone.New(log, pinecone.Config{
		APIKey:  cfg.PineconeAPIKey,
		Host:    cfg.PineconeHost,
		Timeout: cfg.RequestTimeout,
	})
	if err != nil {
		return Clients{}, fmt.Errorf("init pinecone client: %w", err)
	}
	vectors, err := pinecone.NewVectorStore(log, pc, cfg.PineconeIndex, cfg.PineconeNamespace)
	if err != nil {
		return Clients{}, fmt.Errorf("init vector store: %w", err)
	}

	co, err := cohere.New(log, cohere.Config{
		APIKey:  cfg.CohereAPIKey,
		Timeout: cfg.RequestTimeout,
	})
	if err != nil {
		return Clients{}, fmt.Errorf("init cohere client: %w", err)
	}

	clients := Clients{Cohere: co, PineconeAPI: pc, Vectors: vectors}

	if cfg.ElasticURL != "" {
		es, err := elastic.New(log, elastic.Config{
			BaseURL: cfg.ElasticURL,
			Index:   cfg.ElasticIndex,
			Timeout: cfg.RequestTimeout,
		})
		if err != nil {
			log.Warn("Keyword index unavailable; continuing without it", "error", err)
		} else {
			clients.Keyword = es
		}
	}

	producer, err := kafkabus.NewProducer(log, kafkabus.Config{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
	})
	if err != nil {
		log.Warn("Durable log unavailable; messages will be processed inline", "error", err)
	} else {
		clients.Producer = producer
	}

	if cfg.RedisAddr != "" {
		guard, err := redisx.NewDedupeGuard(log, cfg.RedisAddr)
		if err != nil {
			log.Warn("Redis unavailable; using in-memory dedupe guard", "error", err)
		} else {
			clients.Dedupe = guard
		}
	}
	if clients.Dedupe == nil {
		clients.Dedupe = redisx.NewMemoryDedupeGuard()
	}

	if cfg.PostgresDSN != "" {
		store, err := archive.Open(log, cfg.PostgresDSN, m)
		if err != nil {
			log.Warn("Message archive unavailable; continuing without it", "error", err)
		} else {
			clients.Archive = store
		}
	}

	return clients, nil
}
