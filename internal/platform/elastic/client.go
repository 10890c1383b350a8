// Package elastic is a thin adapter over the keyword index's HTTP API. It
// covers the three operations the pipeline needs: ensure the index exists,
// index one message document, and run the hybrid keyword query.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quirylabs/quiry-backend/internal/events"
	"github.com/quirylabs/quiry-backend/internal/platform/httpx"
	"github.com/quirylabs/quiry-backend/internal/platform/logger"
)

type Client interface {
	Ping(ctx context.Context) error
	EnsureIndex(ctx context.Context) error
	IndexMessage(ctx context.Context, m events.MessageEvent) error
	Search(ctx context.Context, query string, f Filters, size int) ([]events.KeywordResult, error)
}

// Filters are optional term restrictions on the keyword query.
type Filters struct {
	GuildID   string
	ChannelID string
	AuthorID  string
}

type Config struct {
	BaseURL string
	Index   string
	Timeout time.Duration
}

type client struct {
	log        *logger.Logger
	cfg        Config
	http       *http.Client
	maxRetries int
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("missing Elasticsearch URL")
	}
	if strings.TrimSpace(cfg.Index) == "" {
		return nil, fmt.Errorf("missing Elasticsearch index")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &client{
		log:        log.With("client", "ElasticClient", "index", cfg.Index),
		cfg:        cfg,
		http:       &http.Client{Timeout: cfg.Timeout},
		maxRetries: 3,
	}, nil
}

func (c *client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.cfg.BaseURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpx.StatusError{Service: "elasticsearch", Code: resp.StatusCode, Body: resp.Status}
	}
	return nil
}

var indexDefinition = map[string]any{
	"settings": map[string]any{
		"number_of_shards":   1,
		"number_of_replicas": 0,
		"analysis": map[string]any{
			"analyzer": map[string]any{
				"default": map[string]any{
					"type":      "standard",
					"stopwords": "_english_",
				},
			},
		},
	},
	"mappings": map[string]any{
		"properties": map[string]any{
			"message_id": map[string]any{"type": "keyword"},
			"guild_id":   map[string]any{"type": "keyword"},
			"channel_id": map[string]any{"type": "keyword"},
			"author_id":  map[string]any{"type": "keyword"},
			"text": map[string]any{
				"type": "text",
				"fields": map[string]any{
					"raw": map[string]any{"type": "keyword", "ignore_above": 8191},
				},
			},
			"timestamp":  map[string]any{"type": "date"},
			"created_at": map[string]any{"type": "date"},
		},
	},
}

// EnsureIndex creates the index with the message mapping when it does not
// exist yet. Safe to call on every boot.
func (c *client) EnsureIndex(ctx context.Context) error {
	head, err := http.NewRequestWithContext(ctx, "HEAD", c.indexURL(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(head)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode != http.StatusNotFound:
		return &httpx.StatusError{Service: "elasticsearch exists", Code: resp.StatusCode, Body: resp.Status}
	}

	c.log.Info("Keyword index missing; creating it")
	_, err = c.doJSON(ctx, "PUT", c.indexURL(), indexDefinition)
	return err
}

func (c *client) IndexMessage(ctx context.Context, m events.MessageEvent) error {
	doc := map[string]any{
		"message_id": m.ID,
		"channel_id": m.ChannelID,
		"author_id":  m.AuthorID,
		"text":       m.Text,
		"timestamp":  m.Timestamp,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	if m.GuildID != "" {
		doc["guild_id"] = m.GuildID
	}
	if m.Category != "" {
		doc["category"] = m.Category
	}
	_, err := c.doJSON(ctx, "PUT", c.indexURL()+"/_doc/"+m.ID, doc)
	return err
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64 `json:"_score"`
			Source struct {
				Text      string `json:"text"`
				AuthorID  string `json:"author_id"`
				ChannelID string `json:"channel_id"`
				GuildID   string `json:"guild_id"`
				Timestamp string `json:"timestamp"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (c *client) Search(ctx context.Context, query string, f Filters, size int) ([]events.KeywordResult, error) {
	if size <= 0 {
		size = 5
	}

	must := []any{
		map[string]any{
			"multi_match": map[string]any{
				"query":     query,
				"fields":    []string{"text^2", "text.raw"},
				"type":      "best_fields",
				"fuzziness": "AUTO",
			},
		},
	}
	for field, value := range map[string]string{
		"guild_id":   f.GuildID,
		"channel_id": f.ChannelID,
		"author_id":  f.AuthorID,
	} {
		if value != "" {
			must = append(must, map[string]any{"term": map[string]any{field: value}})
		}
	}

	body := map[string]any{
		"query": map[string]any{"bool": map[string]any{"must": must}},
		"size":  size,
		"sort": []any{
			map[string]any{"_score": map[string]any{"order": "desc"}},
			map[string]any{"timestamp": map[string]any{"order": "desc"}},
		},
	}

	raw, err := c.doJSON(ctx, "POST", c.indexURL()+"/_search", body)
	if err != nil {
		return nil, err
	}
	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("elasticsearch decode search: %w", err)
	}

	out := make([]events.KeywordResult, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, events.KeywordResult{
			Text:      h.Source.Text,
			AuthorID:  h.Source.AuthorID,
			ChannelID: h.Source.ChannelID,
			GuildID:   h.Source.GuildID,
			Timestamp: h.Source.Timestamp,
			Score:     h.Score,
		})
	}
	return out, nil
}

func (c *client) indexURL() string {
	return c.cfg.BaseURL + "/" + c.cfg.Index
}

func (c *client) doJSON(ctx context.Context, method, url string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
	}

	backoff := time.Second
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err == nil {
			raw, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				err = readErr
			} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				err = &httpx.StatusError{
					Service:    "elasticsearch",
					Code:       resp.StatusCode,
					Body:       strings.TrimSpace(string(raw)),
					RetryAfter: httpx.ParseRetryAfter(resp.Header),
				}
			} else {
				return raw, nil
			}
		}

		lastErr = err
		if ctx.Err() != nil || !httpx.IsRetryableError(err) {
			return nil, err
		}
		if attempt == c.maxRetries {
			break
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(err, backoff, 10*time.Second))
		c.log.Warn("Elasticsearch request failed; retrying",
			"url", url,
			"attempt", attempt+1,
			"sleep", sleepFor.String(),
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleepFor):
		}
		backoff *= 2
	}
	return nil, lastErr
}
