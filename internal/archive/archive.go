// Package archive appends every consumed message to a relational table. It is
// an optional collaborator: without a DSN the worker is simply not started.
package archive

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/quirylabs/quiry-backend/internal/events"
	"github.com/quirylabs/quiry-backend/internal/metrics"
	"github.com/quirylabs/quiry-backend/internal/platform/logger"
)

type Message struct {
	ID        string `gorm:"primaryKey;size:64"`
	GuildID   string `gorm:"index;size:64"`
	ChannelID string `gorm:"index;size:64"`
	AuthorID  string `gorm:"size:64"`
	Category  string `gorm:"size:128"`
	Text      string
	SentAt    time.Time
	CreatedAt time.Time
}

func (Message) TableName() string { return "messages" }

type Store struct {
	log     *logger.Logger
	db      *gorm.DB
	metrics *metrics.Metrics
}

func Open(log *logger.Logger, dsn string, m *metrics.Metrics) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("missing Postgres DSN")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&Message{}); err != nil {
		return nil, fmt.Errorf("migrate messages table: %w", err)
	}
	return &Store{
		log:     log.With("worker", "archiver"),
		db:      db,
		metrics: m,
	}, nil
}

// HandleMessage appends one message. Re-delivered envelopes are no-ops
// thanks to the primary key.
func (s *Store) HandleMessage(ctx context.Context, m events.MessageEvent) {
	row := Message{
		ID:        m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		AuthorID:  m.AuthorID,
		Category:  m.Category,
		Text:      m.Text,
	}
	if t, err := m.Time(); err == nil {
		row.SentAt = t
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		s.metrics.MessagesFailed.WithLabelValues("archiver").Inc()
		s.log.Error("Archive write failed", "message_id", m.ID, "error", err)
		return
	}
	s.metrics.MessagesProcessed.WithLabelValues("archiver").Inc()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
