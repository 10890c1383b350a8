package elastic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quirylabs/quiry-backend/internal/events"
	"github.com/quirylabs/quiry-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(logger.NewNop(), Config{BaseURL: srv.URL, Index: "discord-messages"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestEnsureIndexCreatesWhenMissing(t *testing.T) {
	var created bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "HEAD" && r.URL.Path == "/discord-messages":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == "PUT" && r.URL.Path == "/discord-messages":
			var def map[string]any
			if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
				t.Errorf("decode definition: %v", err)
			}
			if _, ok := def["mappings"]; !ok {
				t.Errorf("index definition missing mappings: %v", def)
			}
			created = true
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	if err := c.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatalf("index was not created")
	}
}

func TestEnsureIndexNoopWhenPresent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "HEAD" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	})
	if err := c.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIndexMessageDocument(t *testing.T) {
	var doc map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PUT" || r.URL.Path != "/discord-messages/_doc/m1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			t.Errorf("decode doc: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	})

	err := c.IndexMessage(context.Background(), events.MessageEvent{
		ID:        "m1",
		GuildID:   "g1",
		ChannelID: "c1",
		AuthorID:  "alice",
		Timestamp: "2025-03-01T12:00:00Z",
		Text:      "hello there",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc["text"] != "hello there" || doc["guild_id"] != "g1" || doc["author_id"] != "alice" {
		t.Fatalf("doc: %v", doc)
	}
	if _, ok := doc["created_at"]; !ok {
		t.Fatalf("doc missing created_at: %v", doc)
	}
}

func TestIndexMessageDMOmitsGuild(t *testing.T) {
	var doc map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&doc)
		w.WriteHeader(http.StatusCreated)
	})

	err := c.IndexMessage(context.Background(), events.MessageEvent{
		ID:        "m2",
		ChannelID: "c1",
		AuthorID:  "alice",
		Timestamp: "2025-03-01T12:00:00Z",
		Text:      "psst",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := doc["guild_id"]; ok {
		t.Fatalf("guild_id present on a DM doc: %v", doc)
	}
}

func TestSearchQueryShapeAndParsing(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/discord-messages/_search" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode query: %v", err)
		}
		w.Write([]byte(`{
			"hits": {"hits": [
				{"_score": 7.5, "_source": {"text": "the deploy broke", "author_id": "alice", "channel_id": "c1", "guild_id": "g1", "timestamp": "2025-03-01T12:00:00Z"}}
			]}
		}`))
	})

	results, err := c.Search(context.Background(), "deploy", Filters{GuildID: "g1", AuthorID: "alice"}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results: want=1 got=%d", len(results))
	}
	r := results[0]
	if r.Text != "the deploy broke" || r.AuthorID != "alice" || r.Score != 7.5 {
		t.Fatalf("result: %+v", r)
	}

	if body["size"] != float64(5) {
		t.Fatalf("size: got %v", body["size"])
	}
	boolQuery := body["query"].(map[string]any)["bool"].(map[string]any)
	must := boolQuery["must"].([]any)
	// multi_match plus one term clause per set filter.
	if len(must) != 3 {
		t.Fatalf("must clauses: want=3 got=%d (%v)", len(must), must)
	}
	mm, ok := must[0].(map[string]any)["multi_match"].(map[string]any)
	if !ok {
		t.Fatalf("first clause is not multi_match: %v", must[0])
	}
	if mm["query"] != "deploy" || mm["fuzziness"] != "AUTO" {
		t.Fatalf("multi_match: %v", mm)
	}
}

func TestSearchTransientStatusIsRetried(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"hits": {"hits": []}}`))
	})

	results, err := c.Search(context.Background(), "q", Filters{}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results: want=0 got=%d", len(results))
	}
	if calls != 2 {
		t.Fatalf("a transient 503 must be retried: calls=%d", calls)
	}
}

func TestSearchNonRetryableStatusFailsFast(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	})
	if _, err := c.Search(context.Background(), "q", Filters{}, 5); err == nil {
		t.Fatalf("want error on 400")
	}
	if calls != 1 {
		t.Fatalf("a 400 must not be retried, got %d calls", calls)
	}
}

func TestPing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	})
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
