package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quirylabs/quiry-backend/internal/platform/httpx"
	"github.com/quirylabs/quiry-backend/internal/platform/logger"
)

type Client interface {
	DescribeIndex(ctx context.Context, indexName string) (*IndexDescription, error)
	UpsertVectors(ctx context.Context, req UpsertRequest) (*UpsertResponse, error)
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)
}

type Config struct {
	APIKey     string
	Host       string
	APIVersion string
	ControlURL string
	Timeout    time.Duration
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
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing Pinecone API key")
	}
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("missing Pinecone host")
	}
	cfg.Host = normalizeHost(cfg.Host)
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = "2025-01"
	}
	if strings.TrimSpace(cfg.ControlURL) == "" {
		cfg.ControlURL = "https://api.pinecone.io"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &client{
		log:        log.With("client", "PineconeClient"),
		cfg:        cfg,
		http:       &http.Client{Timeout: cfg.Timeout},
		maxRetries: 3,
	}, nil
}

func normalizeHost(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "https://" + host
}

// -------------------- Control plane --------------------

type IndexDescription struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Status    struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

func (c *client) DescribeIndex(ctx context.Context, indexName string) (*IndexDescription, error) {
	indexName = strings.TrimSpace(indexName)
	if indexName == "" {
		return nil, fmt.Errorf("indexName required")
	}

	u := strings.TrimRight(c.cfg.ControlURL, "/") + "/indexes/" + indexName
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Api-Key", c.cfg.APIKey)
	req.Header.Set("X-Pinecone-Api-Version", c.cfg.APIVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpx.StatusError{Service: "pinecone describe_index", Code: resp.StatusCode, Body: string(raw)}
	}

	var out IndexDescription
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("pinecone describe_index decode: %w", err)
	}
	return &out, nil
}

// -------------------- Data plane --------------------

type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type UpsertRequest struct {
	Vectors   []Vector `json:"vectors"`
	Namespace string   `json:"namespace,omitempty"`
}

type UpsertResponse struct {
	UpsertedCount int64 `json:"upsertedCount"`
}

func (c *client) UpsertVectors(ctx context.Context, req UpsertRequest) (*UpsertResponse, error) {
	if len(req.Vectors) == 0 {
		return &UpsertResponse{UpsertedCount: 0}, nil
	}
	return doJSON[UpsertResponse](c, ctx, c.cfg.Host+"/vectors/upsert", req)
}

type QueryRequest struct {
	Namespace       string         `json:"namespace,omitempty"`
	Vector          []float32      `json:"vector,omitempty"`
	TopK            int            `json:"topK"`
	Filter          map[string]any `json:"filter,omitempty"`
	IncludeValues   bool           `json:"includeValues"`
	IncludeMetadata bool           `json:"includeMetadata"`
}

type QueryMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type QueryResponse struct {
	Matches []QueryMatch `json:"matches"`
}

func (c *client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if req.TopK <= 0 {
		req.TopK = 10
	}
	if len(req.Vector) == 0 {
		return nil, fmt.Errorf("query vector required")
	}
	return doJSON[QueryResponse](c, ctx, c.cfg.Host+"/query", req)
}

// -------------------- helpers --------------------

func doJSON[T any](c *client, ctx context.Context, url string, body any) (*T, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	backoff := time.Second
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Api-Key", c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Pinecone-Api-Version", c.cfg.APIVersion)

		resp, err := c.http.Do(req)
		if err == nil {
			respBody, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				err = readErr
			} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				err = &httpx.StatusError{
					Service:    "pinecone",
					Code:       resp.StatusCode,
					Body:       strings.TrimSpace(string(respBody)),
					RetryAfter: httpx.ParseRetryAfter(resp.Header),
				}
			} else {
				var out T
				if unmarshalErr := json.Unmarshal(respBody, &out); unmarshalErr != nil {
					return nil, fmt.Errorf("pinecone decode: %w", unmarshalErr)
				}
				return &out, nil
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
		c.log.Warn("Pinecone request failed; retrying",
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
