package cohere

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

const (
	embedModel = "embed-english-v3.0"
	chatModel  = "command-r-08-2024"

	// InputSearchDocument embeds text for storage; InputSearchQuery embeds a
	// user question. The model treats the two asymmetrically.
	InputSearchDocument = "search_document"
	InputSearchQuery    = "search_query"

	chatMaxTokens    = 300
	chatTemperature  = 0.7
	summaryMaxTokens = 150
	summaryTemp      = 0.3
)

const summaryPreamble = "Summarize the following chat conversation in a few sentences. " +
	"Keep the topics discussed and who raised them. Do not add commentary."

// Client covers the three model operations the pipeline needs.
type Client interface {
	Embed(ctx context.Context, texts []string, inputType string) ([][]float32, error)
	Chat(ctx context.Context, message, preamble string) (string, error)
	Summarize(ctx context.Context, text string) (string, error)
}

type Config struct {
	APIKey  string
	BaseURL string
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
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing Cohere API key")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.cohere.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &client{
		log:        log.With("client", "CohereClient"),
		cfg:        cfg,
		http:       &http.Client{Timeout: cfg.Timeout},
		maxRetries: 3,
	}, nil
}

type embedRequest struct {
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
	Texts     []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (c *client) Embed(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if inputType == "" {
		inputType = InputSearchDocument
	}

	clean := make([]string, len(texts))
	for i := range texts {
		s := strings.TrimSpace(texts[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}

	var resp embedResponse
	if err := c.do(ctx, "/v1/embed", embedRequest{
		Model:     embedModel,
		InputType: inputType,
		Texts:     clean,
	}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(clean) {
		return nil, fmt.Errorf("cohere embed: requested=%d returned=%d", len(clean), len(resp.Embeddings))
	}
	return resp.Embeddings, nil
}

type chatRequest struct {
	Model       string  `json:"model"`
	Message     string  `json:"message"`
	Preamble    string  `json:"preamble,omitempty"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type chatResponse struct {
	Text string `json:"text"`
}

func (c *client) Chat(ctx context.Context, message, preamble string) (string, error) {
	return c.chat(ctx, message, preamble, chatMaxTokens, chatTemperature)
}

func (c *client) Summarize(ctx context.Context, text string) (string, error) {
	return c.chat(ctx, text, summaryPreamble, summaryMaxTokens, summaryTemp)
}

func (c *client) chat(ctx context.Context, message, preamble string, maxTokens int, temperature float64) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("cohere chat: empty message")
	}
	var resp chatResponse
	if err := c.do(ctx, "/v1/chat", chatRequest{
		Model:       chatModel,
		Message:     message,
		Preamble:    preamble,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

func (c *client) do(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	backoff := time.Second
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+path, bytes.NewReader(raw))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err == nil {
			respBody, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				err = readErr
			} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				err = &httpx.StatusError{
					Service:    "cohere",
					Code:       resp.StatusCode,
					Body:       strings.TrimSpace(string(respBody)),
					RetryAfter: httpx.ParseRetryAfter(resp.Header),
				}
			} else {
				if unmarshalErr := json.Unmarshal(respBody, out); unmarshalErr != nil {
					return fmt.Errorf("cohere decode %s: %w", path, unmarshalErr)
				}
				return nil
			}
		}

		lastErr = err
		if ctx.Err() != nil || !httpx.IsRetryableError(err) {
			return err
		}
		if attempt == c.maxRetries {
			break
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(err, backoff, 10*time.Second))
		c.log.Warn("Cohere request failed; retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepFor):
		}
		backoff *= 2
	}
	return lastErr
}
