package cohere

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quirylabs/quiry-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(logger.NewNop(), Config{APIKey: "co-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, srv
}

func TestEmbedRequestShape(t *testing.T) {
	var gotReq embedRequest
	var gotAuth string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embed" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0.1, 0.2}}})
	})

	vectors, err := c.Embed(context.Background(), []string{"  hello  "}, InputSearchQuery)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 1 || len(vectors[0]) != 2 {
		t.Fatalf("vectors: %v", vectors)
	}
	if gotAuth != "Bearer co-key" {
		t.Fatalf("auth header: got %q", gotAuth)
	}
	if gotReq.Model != embedModel || gotReq.InputType != InputSearchQuery {
		t.Fatalf("request: %+v", gotReq)
	}
	if gotReq.Texts[0] != "hello" {
		t.Fatalf("text not trimmed: %q", gotReq.Texts[0])
	}
}

func TestEmbedCountMismatch(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{}})
	})
	if _, err := c.Embed(context.Background(), []string{"one"}, ""); err == nil {
		t.Fatalf("want error when embedding count differs from input count")
	}
}

func TestEmbedEmptyInputSkipsRequest(t *testing.T) {
	c, _ := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Errorf("no request expected for empty input")
	})
	vectors, err := c.Embed(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 0 {
		t.Fatalf("vectors: %v", vectors)
	}
}

func TestChatUsesAnswerBudget(t *testing.T) {
	var gotReq chatRequest
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(chatResponse{Text: "  the answer \n"})
	})

	answer, err := c.Chat(context.Background(), "what happened?", "be terse")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "the answer" {
		t.Fatalf("answer not trimmed: %q", answer)
	}
	if gotReq.Model != chatModel || gotReq.MaxTokens != chatMaxTokens || gotReq.Temperature != chatTemperature {
		t.Fatalf("request: %+v", gotReq)
	}
	if gotReq.Preamble != "be terse" {
		t.Fatalf("preamble: %q", gotReq.Preamble)
	}
}

func TestSummarizeUsesSummaryBudget(t *testing.T) {
	var gotReq chatRequest
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(chatResponse{Text: "they talked about lunch"})
	})

	if _, err := c.Summarize(context.Background(), "alice: lunch?\nbob: sure"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotReq.MaxTokens != summaryMaxTokens || gotReq.Temperature != summaryTemp {
		t.Fatalf("summary budget: %+v", gotReq)
	}
	if gotReq.Preamble != summaryPreamble {
		t.Fatalf("summary preamble: %q", gotReq.Preamble)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	c, _ := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Errorf("no request expected")
	})
	if _, err := c.Chat(context.Background(), "   ", ""); err == nil {
		t.Fatalf("want error for empty message")
	}
}

func TestNonRetryableStatusFailsFast(t *testing.T) {
	var calls int
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	})
	if _, err := c.Embed(context.Background(), []string{"x"}, ""); err == nil {
		t.Fatalf("want error")
	}
	if calls != 1 {
		t.Fatalf("a 401 must not be retried, got %d calls", calls)
	}
}

func TestRetryableStatusIsRetried(t *testing.T) {
	var calls int
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0.1}}})
	})

	vectors, err := c.Embed(context.Background(), []string{"x"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("vectors: %v", vectors)
	}
	if calls != 2 {
		t.Fatalf("calls: want=2 got=%d", calls)
	}
}
