// Package kafkabus wraps the durable log. Envelopes are JSON records on a
// single topic, keyed by partition key so one guild's (or one DM channel's)
// traffic stays strictly ordered.
package kafkabus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/quirylabs/quiry-backend/internal/events"
	"github.com/quirylabs/quiry-backend/internal/platform/logger"
)

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

type Producer struct {
	log     *logger.Logger
	writer  *kafka.Writer
	brokers []string
}

// NewProducer builds the log producer and verifies broker reachability, so the
// supervisor can detect an absent log at boot and fall back to inline
// processing.
func NewProducer(log *logger.Logger, cfg Config) (*Producer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic required")
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := kafka.DialContext(dialCtx, "tcp", cfg.Brokers[0])
	if err != nil {
		return nil, fmt.Errorf("kafka dial %s: %w", cfg.Brokers[0], err)
	}
	_ = conn.Close()

	// kafka-go's Writer has no idempotent-producer mode, so a retried write
	// can append a duplicate record. Consumers absorb that: every downstream
	// write is keyed by message id (vector upsert, keyword doc, archive row).
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            4,
		WriteTimeout:           10 * time.Second,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		log:     log.With("service", "KafkaProducer", "topic", cfg.Topic),
		writer:  w,
		brokers: cfg.Brokers,
	}, nil
}

// Publish appends one envelope and waits for the broker ack, so callers can
// fall back to inline processing when the log rejects the write.
func (p *Producer) Publish(ctx context.Context, env events.LogEnvelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	key := events.PartitionKey(env.GuildID, env.ChannelID)
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
}

func (p *Producer) Ping(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return err
	}
	return conn.Close()
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
