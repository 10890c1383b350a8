package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quirylabs/quiry-backend/internal/chunker"
	"github.com/quirylabs/quiry-backend/internal/embedder"
	"github.com/quirylabs/quiry-backend/internal/events"
	"github.com/quirylabs/quiry-backend/internal/indexer"
	"github.com/quirylabs/quiry-backend/internal/ingest"
	"github.com/quirylabs/quiry-backend/internal/metrics"
	"github.com/quirylabs/quiry-backend/internal/platform/kafkabus"
	"github.com/quirylabs/quiry-backend/internal/platform/logger"
	"github.com/quirylabs/quiry-backend/internal/retrieval"
)

// messageHandler adapts a per-message worker step to the envelope stream:
// count the record, decode the payload, log-and-drop on failure.
func messageHandler(log *logger.Logger, m *metrics.Metrics, worker string, handle ingest.MessageHandler) kafkabus.Handler {
	return func(ctx context.Context, env events.LogEnvelope) {
		m.KafkaIn.Inc()
		ev, err := env.DecodeMessage()
		if err != nil {
			m.MessagesFailed.WithLabelValues(worker).Inc()
			log.Warn("Dropping malformed envelope", "worker", worker, "message_id", env.MessageID, "error", err)
			return
		}
		handle(ctx, ev)
	}
}

// chunkerHandler feeds one message to the channel buffers and counts it. The
// inline path and the log consumer share this step so the counter stays
// accurate either way.
func chunkerHandler(mgr *chunker.Manager, m *metrics.Metrics) ingest.MessageHandler {
	return func(ctx context.Context, ev events.MessageEvent) {
		mgr.ProcessMessage(ctx, ev)
		m.MessagesProcessed.WithLabelValues("chunker").Inc()
	}
}

// Run wires the whole pipeline and blocks until shutdown. Fatal only for
// config errors; absent optional collaborators select degraded paths instead.
func Run(log *logger.Logger) error {
	cfg, err := LoadConfig(log)
	if err != nil {
		return err
	}

	shutdownTracing := initTracing(log)
	m := metrics.New()

	clients, err := buildClients(log, cfg, m)
	if err != nil {
		return err
	}

	// Workers.
	enricher := chunker.NewEnricher(log, clients.Cohere, clients.Vectors, m)
	chunkMgr := chunker.NewManager(log, enricher)

	var idx *indexer.Indexer
	if clients.Keyword != nil {
		idx, err = indexer.New(log, clients.Keyword, m)
		if err != nil {
			log.Warn("Keyword index bootstrap failed; disabling it", "error", err)
			clients.Keyword = nil
		}
	}

	var emb *embedder.Embedder
	if cfg.PerMessageVectors {
		emb = embedder.New(log, clients.Cohere, clients.Vectors, m)
	}

	retriever := retrieval.New(log, clients.Cohere, clients.Vectors, clients.Keyword, m)

	inline := []ingest.MessageHandler{chunkerHandler(chunkMgr, m)}
	if idx != nil {
		inline = append(inline, idx.HandleMessage)
	}
	if emb != nil {
		inline = append(inline, emb.HandleMessage)
	}
	if clients.Archive != nil {
		inline = append(inline, clients.Archive.HandleMessage)
	}

	var publisher ingest.Publisher
	if clients.Producer != nil {
		publisher = clients.Producer
	}
	ingestSvc := ingest.NewService(log, publisher, clients.Dedupe, inline, m)

	hc := newHealthChecker(cfg, clients)
	router := wireRouter(log, m, hc, ingestSvc, retriever)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	if clients.Producer != nil {
		startConsumer := func(worker string, handle ingest.MessageHandler) error {
			consumer, err := kafkabus.NewConsumer(log, kafkabus.Config{
				Brokers: cfg.KafkaBrokers,
				Topic:   cfg.KafkaTopic,
				GroupID: cfg.ConsumerGroupID(worker),
			})
			if err != nil {
				return fmt.Errorf("init %s consumer: %w", worker, err)
			}
			g.Go(func() error {
				m.ActiveConsumers.Inc()
				defer m.ActiveConsumers.Dec()
				return consumer.Run(gctx, map[events.EventType]kafkabus.Handler{
					events.EventDiscordMessage: messageHandler(log, m, worker, handle),
				})
			})
			return nil
		}

		if err := startConsumer("chunker", chunkerHandler(chunkMgr, m)); err != nil {
			return err
		}
		if idx != nil {
			if err := startConsumer("indexer", idx.HandleMessage); err != nil {
				return err
			}
		}
		if emb != nil {
			if err := startConsumer("embedder", emb.HandleMessage); err != nil {
				return err
			}
		}
		if clients.Archive != nil {
			if err := startConsumer("archiver", clients.Archive.HandleMessage); err != nil {
				return err
			}
		}
	} else {
		log.Warn("Running without the durable log; messages are processed inline on arrival")
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}
	g.Go(func() error {
		log.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()

	// Graceful drain: emit whatever the buffers still hold, minimum ignored.
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	chunkMgr.FlushAll(drainCtx)
	cancel()

	if clients.Producer != nil {
		if err := clients.Producer.Close(); err != nil {
			log.Warn("Producer close failed", "error", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	shutdownTracing(shutdownCtx)
	cancel()

	return runErr
}
