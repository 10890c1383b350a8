package pinecone

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quirylabs/quiry-backend/internal/platform/logger"
)

func TestNormalizeHost(t *testing.T) {
	cases := map[string]string{
		"index-abc.svc.pinecone.io":          "https://index-abc.svc.pinecone.io",
		"https://index-abc.svc.pinecone.io/": "https://index-abc.svc.pinecone.io",
		"http://127.0.0.1:8080":              "http://127.0.0.1:8080",
	}
	for in, want := range cases {
		if got := normalizeHost(in); got != want {
			t.Fatalf("normalizeHost(%q): want=%q got=%q", in, want, got)
		}
	}
}

func TestUpsertVectors(t *testing.T) {
	var gotReq UpsertRequest
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vectors/upsert" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		gotKey = r.Header.Get("Api-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(UpsertResponse{UpsertedCount: 2})
	}))
	defer srv.Close()

	c, err := New(logger.NewNop(), Config{APIKey: "pc-key", Host: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	resp, err := c.UpsertVectors(context.Background(), UpsertRequest{
		Namespace: "default",
		Vectors: []Vector{
			{ID: "chunk_1", Values: []float32{0.1, 0.2}},
			{ID: "m1", Values: []float32{0.3, 0.4}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.UpsertedCount != 2 {
		t.Fatalf("upserted: want=2 got=%d", resp.UpsertedCount)
	}
	if gotKey != "pc-key" {
		t.Fatalf("api key header: got %q", gotKey)
	}
	if gotReq.Namespace != "default" || len(gotReq.Vectors) != 2 {
		t.Fatalf("request body: %+v", gotReq)
	}
}

func TestUpsertVectorsEmptyIsNoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Errorf("no request expected for an empty upsert")
	}))
	defer srv.Close()

	c, _ := New(logger.NewNop(), Config{APIKey: "k", Host: srv.URL})
	resp, err := c.UpsertVectors(context.Background(), UpsertRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.UpsertedCount != 0 {
		t.Fatalf("upserted: want=0 got=%d", resp.UpsertedCount)
	}
}

func TestQueryParsesMatches(t *testing.T) {
	var gotReq QueryRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(QueryResponse{Matches: []QueryMatch{
			{ID: "chunk_1", Score: 0.87, Metadata: map[string]any{"full_text": "hello"}},
		}})
	}))
	defer srv.Close()

	c, _ := New(logger.NewNop(), Config{APIKey: "k", Host: srv.URL})
	resp, err := c.Query(context.Background(), QueryRequest{
		Vector: []float32{0.1},
		TopK:   3,
		Filter: map[string]any{"type": map[string]any{"$eq": "chunk"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Matches) != 1 || resp.Matches[0].ID != "chunk_1" {
		t.Fatalf("matches: %+v", resp.Matches)
	}
	if gotReq.TopK != 3 {
		t.Fatalf("topK: want=3 got=%d", gotReq.TopK)
	}
	if gotReq.Filter == nil {
		t.Fatalf("filter not forwarded")
	}
}

func TestQueryRequiresVector(t *testing.T) {
	c, _ := New(logger.NewNop(), Config{APIKey: "k", Host: "example.invalid"})
	if _, err := c.Query(context.Background(), QueryRequest{TopK: 3}); err == nil {
		t.Fatalf("want error for missing query vector")
	}
}

func TestNonRetryableStatusFailsFast(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c, _ := New(logger.NewNop(), Config{APIKey: "k", Host: srv.URL})
	_, err := c.Query(context.Background(), QueryRequest{Vector: []float32{0.1}})
	if err == nil {
		t.Fatalf("want error")
	}
	if calls != 1 {
		t.Fatalf("a 422 must not be retried, got %d calls", calls)
	}
}

func TestGuildFilterShapes(t *testing.T) {
	f := GuildFilter("g1")
	eq, _ := f["guild_id"].(map[string]any)
	if eq["$eq"] != "g1" {
		t.Fatalf("guild filter: %v", f)
	}

	dm := GuildFilter("")
	exists, _ := dm["guild_id"].(map[string]any)
	if exists["$exists"] != false {
		t.Fatalf("dm filter: %v", dm)
	}

	cf := ChunkFilter("g1")
	typeEq, _ := cf["type"].(map[string]any)
	if typeEq["$eq"] != "chunk" {
		t.Fatalf("chunk filter: %v", cf)
	}
	if _, ok := cf["guild_id"]; !ok {
		t.Fatalf("chunk filter must keep the guild restriction: %v", cf)
	}
}
