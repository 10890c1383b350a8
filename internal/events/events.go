// Package events holds the canonical record types shared by the ingest
// pipeline, the durable log, and the retrieval layer.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageEvent is a single posted chat message. Immutable once published.
// An empty GuildID denotes a direct message.
type MessageEvent struct {
	ID        string `json:"id"`
	GuildID   string `json:"guild_id,omitempty"`
	ChannelID string `json:"channel_id"`
	AuthorID  string `json:"author_id"`
	Category  string `json:"category,omitempty"`
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
}

// Time parses the RFC 3339 timestamp.
func (m MessageEvent) Time() (time.Time, error) {
	return time.Parse(time.RFC3339, m.Timestamp)
}

// MessageChunk is a finalized window of contiguous messages from one channel.
type MessageChunk struct {
	ChunkID        string   `json:"chunk_id"`
	GuildID        string   `json:"guild_id,omitempty"`
	ChannelID      string   `json:"channel_id"`
	FirstMsgID     string   `json:"first_msg_id"`
	LastMsgID      string   `json:"last_msg_id"`
	FirstTimestamp string   `json:"first_timestamp"`
	LastTimestamp  string   `json:"last_timestamp"`
	MessageCount   int      `json:"message_count"`
	Authors        []string `json:"authors"`
	FullText       string   `json:"full_text"`
	Summary        string   `json:"summary,omitempty"`
	HasSummary     bool     `json:"has_summary"`
}

// VectorID returns the chunk's key in the vector store. The "chunk_" prefix
// keeps chunk keys disjoint from per-message keys, which use the raw
// MessageEvent.ID.
func (c MessageChunk) VectorID() string {
	return "chunk_" + c.ChunkID
}

type EventType string

const (
	EventDiscordMessage   EventType = "DiscordMessage"
	EventMessageChunk     EventType = "MessageChunk"
	EventEmbeddingRequest EventType = "EmbeddingRequest"
	EventVectorUpsert     EventType = "VectorUpsert"
	EventQueryRequest     EventType = "QueryRequest"
)

// LogEnvelope is the wire record on the durable log. The routing headers are
// denormalized from the payload so consumers can filter without decoding it.
type LogEnvelope struct {
	EventType EventType       `json:"event_type"`
	MessageID string          `json:"message_id"`
	GuildID   string          `json:"guild_id,omitempty"`
	ChannelID string          `json:"channel_id"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func NewMessageEnvelope(m MessageEvent) (LogEnvelope, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return LogEnvelope{}, fmt.Errorf("encode message payload: %w", err)
	}
	return LogEnvelope{
		EventType: EventDiscordMessage,
		MessageID: m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Timestamp: m.Timestamp,
		Payload:   payload,
	}, nil
}

// DecodeMessage unpacks a DiscordMessage payload.
func (e LogEnvelope) DecodeMessage() (MessageEvent, error) {
	if e.EventType != EventDiscordMessage {
		return MessageEvent{}, fmt.Errorf("envelope is %q, not %q", e.EventType, EventDiscordMessage)
	}
	var m MessageEvent
	if err := json.Unmarshal(e.Payload, &m); err != nil {
		return MessageEvent{}, fmt.Errorf("decode message payload: %w", err)
	}
	return m, nil
}

// PartitionKey routes all of a guild's traffic (or all of a DM channel's
// traffic) to one log partition so consumption order matches publish order.
// Guild ids and "dm:" keys are treated as disjoint keyspaces by convention.
func PartitionKey(guildID, channelID string) string {
	if guildID != "" {
		return guildID
	}
	return "dm:" + channelID
}

// QueryResult is one hit from per-message vector search.
type QueryResult struct {
	Text      string  `json:"text"`
	AuthorID  string  `json:"author_id"`
	Timestamp string  `json:"timestamp"`
	Score     float64 `json:"score"`
}

// ChunkQueryResult is one hit from chunk vector search.
type ChunkQueryResult struct {
	ChunkID        string   `json:"chunk_id"`
	Text           string   `json:"text"`
	Summary        string   `json:"summary,omitempty"`
	Authors        []string `json:"authors"`
	MessageCount   int      `json:"message_count"`
	FirstTimestamp string   `json:"first_timestamp"`
	LastTimestamp  string   `json:"last_timestamp"`
	Score          float64  `json:"score"`
}

// KeywordResult is one hit from the keyword index.
type KeywordResult struct {
	Text      string  `json:"text"`
	AuthorID  string  `json:"author_id"`
	ChannelID string  `json:"channel_id"`
	Timestamp string  `json:"timestamp"`
	GuildID   string  `json:"guild_id,omitempty"`
	Score     float64 `json:"score"`
}
