package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/quirylabs/quiry-backend/internal/platform/envutil"
	"github.com/quirylabs/quiry-backend/internal/platform/logger"
)

type Config struct {
	DiscordToken string

	CohereAPIKey string

	PineconeAPIKey    string
	PineconeHost      string
	PineconeIndex     string
	PineconeNamespace string

	KafkaBrokers []string
	KafkaGroupID string
	KafkaTopic   string

	// Optional capabilities: empty disables the feature.
	ElasticURL   string
	ElasticIndex string
	RedisAddr    string
	PostgresDSN  string

	Port              int
	RequestTimeout    time.Duration
	PerMessageVectors bool
}

// LoadConfig reads the environment. Missing required variables are an error;
// the supervisor treats that as fatal.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		DiscordToken:      strings.TrimSpace(os.Getenv("DISCORD_TOKEN")),
		CohereAPIKey:      strings.TrimSpace(os.Getenv("COHERE_API_KEY")),
		PineconeAPIKey:    strings.TrimSpace(os.Getenv("PINECONE_API_KEY")),
		PineconeHost:      strings.TrimSpace(os.Getenv("PINECONE_HOST")),
		PineconeIndex:     strings.TrimSpace(os.Getenv("PINECONE_INDEX")),
		PineconeNamespace: envutil.Str("PINECONE_NAMESPACE", "default"),
		KafkaGroupID:      envutil.Str("KAFKA_GROUP_ID", "quiry-bot"),
		KafkaTopic:        envutil.Str("KAFKA_TOPIC", "discord-messages"),
		ElasticURL:        strings.TrimSpace(os.Getenv("ELASTICSEARCH_URL")),
		ElasticIndex:      envutil.Str("ELASTICSEARCH_INDEX", "discord-messages"),
		RedisAddr:         strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		PostgresDSN:       strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
		Port:              envutil.Int("PORT", 8083),
		RequestTimeout:    30 * time.Second,
		PerMessageVectors: envutil.Bool("PER_MESSAGE_VECTORS", true),
	}

	for _, broker := range strings.Split(envutil.Str("KAFKA_BROKERS", "localhost:9092"), ",") {
		if b := strings.TrimSpace(broker); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}

	missing := []string{}
	for name, val := range map[string]string{
		"COHERE_API_KEY":   cfg.CohereAPIKey,
		"PINECONE_API_KEY": cfg.PineconeAPIKey,
		"PINECONE_HOST":    cfg.PineconeHost,
		"PINECONE_INDEX":   cfg.PineconeIndex,
	} {
		if val == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment: %s", strings.Join(missing, ", "))
	}

	if cfg.ElasticURL == "" {
		log.Warn("ELASTICSEARCH_URL not set; keyword index disabled, retrieval will be dense-only")
	}
	return cfg, nil
}

// ConsumerGroupID derives a distinct consumer group per worker so each worker
// sees every envelope.
func (c Config) ConsumerGroupID(worker string) string {
	return c.KafkaGroupID + "-" + worker
}
