package kafkabus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/quirylabs/quiry-backend/internal/events"
	"github.com/quirylabs/quiry-backend/internal/platform/logger"
)

// Handler processes one decoded envelope. Handlers never fail the stream: a
// per-record error is logged by the handler itself and the offset advances
// regardless (at-least-once ingest, best-effort processing).
type Handler func(ctx context.Context, env events.LogEnvelope)

// Consumer is one consumer-group member reading the envelope topic. Workers
// that must each see every record (chunker, indexer, embedder) run separate
// consumers with distinct group ids.
type Consumer struct {
	log    *logger.Logger
	reader *kafka.Reader
}

func NewConsumer(log *logger.Logger, cfg Config) (*Consumer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic required")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("group id required")
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.GroupID,
		Topic:             cfg.Topic,
		MinBytes:          1,
		MaxBytes:          10 << 20,
		MaxWait:           time.Second,
		StartOffset:       kafka.FirstOffset,
		CommitInterval:    5 * time.Second,
		SessionTimeout:    30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
	})

	return &Consumer{
		log:    log.With("service", "KafkaConsumer", "topic", cfg.Topic, "group_id", cfg.GroupID),
		reader: r,
	}, nil
}

// Run pulls envelopes until ctx is cancelled, dispatching on event type.
// Records of unknown type and records that fail to deserialize are logged and
// dropped; neither aborts the stream.
func (c *Consumer) Run(ctx context.Context, handlers map[events.EventType]Handler) error {
	defer c.reader.Close()
	c.log.Info("Consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				c.log.Info("Consumer stopping", "reason", err)
				return nil
			}
			c.log.Error("Read failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		var env events.LogEnvelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			c.log.Warn("Dropping undecodable record",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}

		handle, ok := handlers[env.EventType]
		if !ok {
			c.log.Debug("Dropping record of unhandled type", "event_type", env.EventType)
			continue
		}
		handle(ctx, env)
	}
}
