// Package indexer writes every consumed message into the keyword index.
// Best-effort: failures are logged and the record is acknowledged anyway;
// re-delivery is idempotent because the document key is the message id.
package indexer

import (
	"context"
	"time"

	"github.com/quirylabs/quiry-backend/internal/events"
	"github.com/quirylabs/quiry-backend/internal/metrics"
	"github.com/quirylabs/quiry-backend/internal/platform/elastic"
	"github.com/quirylabs/quiry-backend/internal/platform/logger"
)

type Indexer struct {
	log     *logger.Logger
	es      elastic.Client
	metrics *metrics.Metrics
}

func New(log *logger.Logger, es elastic.Client, m *metrics.Metrics) (*Indexer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := es.EnsureIndex(ctx); err != nil {
		return nil, err
	}
	return &Indexer{
		log:     log.With("worker", "indexer"),
		es:      es,
		metrics: m,
	}, nil
}

func (i *Indexer) HandleMessage(ctx context.Context, m events.MessageEvent) {
	start := time.Now()
	err := i.es.IndexMessage(ctx, m)
	i.metrics.IndexDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		i.metrics.MessagesFailed.WithLabelValues("indexer").Inc()
		i.log.Error("Keyword index write failed", "message_id", m.ID, "error", err)
		return
	}
	i.metrics.MessagesProcessed.WithLabelValues("indexer").Inc()
}
