// Package ingest is the entry point for new messages: spam-guard them, then
// publish an envelope to the durable log, falling back to inline processing
// when the log is unavailable or rejects the write.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/quirylabs/quiry-backend/internal/clients/redisx"
	"github.com/quirylabs/quiry-backend/internal/events"
	"github.com/quirylabs/quiry-backend/internal/metrics"
	"github.com/quirylabs/quiry-backend/internal/platform/logger"
)

const publishTimeout = 10 * time.Second

// Publisher is the log-producer capability. Nil means the log was absent at
// boot and every message is processed inline.
type Publisher interface {
	Publish(ctx context.Context, env events.LogEnvelope) error
}

// MessageHandler is one inline processing step (chunker, indexer, embedder,
// archiver). Handlers own their error handling; inline processing mirrors the
// log consumers' log-and-continue behavior.
type MessageHandler func(ctx context.Context, m events.MessageEvent)

type Service struct {
	log       *logger.Logger
	publisher Publisher
	dedupe    redisx.DedupeGuard
	inline    []MessageHandler
	metrics   *metrics.Metrics
}

func NewService(log *logger.Logger, publisher Publisher, dedupe redisx.DedupeGuard, inline []MessageHandler, m *metrics.Metrics) *Service {
	return &Service{
		log:       log.With("service", "Ingest"),
		publisher: publisher,
		dedupe:    dedupe,
		inline:    inline,
		metrics:   m,
	}
}

// Submit accepts one message. Returns an error only for invalid input;
// downstream failures are absorbed by the fallback path.
func (s *Service) Submit(ctx context.Context, m events.MessageEvent) error {
	if m.ID == "" || m.ChannelID == "" || m.AuthorID == "" {
		return fmt.Errorf("message requires id, channel_id and author_id")
	}
	if _, err := m.Time(); err != nil {
		return fmt.Errorf("bad timestamp %q: %w", m.Timestamp, err)
	}

	if s.dedupe != nil && s.dedupe.SeenRecently(ctx, m.AuthorID, m.Text) {
		s.metrics.MessagesDeduped.Inc()
		s.log.Debug("Duplicate message dropped", "author_id", m.AuthorID, "message_id", m.ID)
		return nil
	}

	if s.publisher != nil {
		env, err := events.NewMessageEnvelope(m)
		if err != nil {
			return err
		}
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		err = s.publisher.Publish(pubCtx, env)
		cancel()
		if err == nil {
			s.metrics.KafkaOut.Inc()
			return nil
		}
		s.log.Warn("Publish failed; processing inline", "message_id", m.ID, "error", err)
	}

	for _, handle := range s.inline {
		handle(ctx, m)
	}
	return nil
}
