// Package metrics is the process-global metrics registry. It is constructed
// once at startup and passed by reference to every worker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	MessagesProcessed *prometheus.CounterVec
	MessagesFailed    *prometheus.CounterVec
	MessagesDeduped   prometheus.Counter
	KafkaIn           prometheus.Counter
	KafkaOut          prometheus.Counter
	ChunksEmitted     prometheus.Counter
	ActiveConsumers   prometheus.Gauge

	EmbedDuration  prometheus.Histogram
	UpsertDuration prometheus.Histogram
	IndexDuration  prometheus.Histogram
	SearchDuration prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	durationBuckets := prometheus.ExponentialBuckets(0.005, 2, 14)

	m := &Metrics{
		registry: reg,
		MessagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiry_messages_processed_total",
			Help: "Messages handled, by worker.",
		}, []string{"worker"}),
		MessagesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiry_messages_failed_total",
			Help: "Per-record failures that were logged and skipped, by worker.",
		}, []string{"worker"}),
		MessagesDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiry_messages_deduped_total",
			Help: "Messages dropped by the duplicate guard at ingest.",
		}),
		KafkaIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiry_kafka_records_in_total",
			Help: "Envelopes consumed from the log.",
		}),
		KafkaOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiry_kafka_records_out_total",
			Help: "Envelopes published to the log.",
		}),
		ChunksEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiry_chunks_emitted_total",
			Help: "Conversation chunks finalized by the chunker.",
		}),
		ActiveConsumers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quiry_active_consumers",
			Help: "Running log consumer workers.",
		}),
		EmbedDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quiry_embed_duration_seconds",
			Help:    "Embedding request latency.",
			Buckets: durationBuckets,
		}),
		UpsertDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quiry_vector_upsert_duration_seconds",
			Help:    "Vector store upsert latency.",
			Buckets: durationBuckets,
		}),
		IndexDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quiry_keyword_index_duration_seconds",
			Help:    "Keyword index document write latency.",
			Buckets: durationBuckets,
		}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quiry_search_duration_seconds",
			Help:    "Retrieval query latency, dense and keyword combined.",
			Buckets: durationBuckets,
		}),
	}

	reg.MustRegister(
		m.MessagesProcessed,
		m.MessagesFailed,
		m.MessagesDeduped,
		m.KafkaIn,
		m.KafkaOut,
		m.ChunksEmitted,
		m.ActiveConsumers,
		m.EmbedDuration,
		m.UpsertDuration,
		m.IndexDuration,
		m.SearchDuration,
	)
	return m
}

// Handler serves the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
