package elasticsearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/mfenderov/wikibot/pkg/models"
)

func skipIfNoES(t *testing.T) {
	if os.Getenv("SKIP_ES_TESTS") == "1" {
		t.Skip("Skipping ES tests (SKIP_ES_TESTS=1)")
	}

	// Try to connect to ES
	client, err := New(Config{
		Addresses: []string{"http://localhost:9200"},
		Index:     "test-skip-check",
	})
	if err != nil {
		t.Skipf("Skipping ES tests: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !client.Ping(ctx) {
		t.Skip("Skipping ES tests: Elasticsearch not available")
	}
}

// fakeES answers like an Elasticsearch node, including the product header
// the client checks for.
func fakeES(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{Addresses: []string{server.URL}, Index: "wiki-test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestNew_RequiresIndex(t *testing.T) {
	if _, err := New(Config{Addresses: []string{"http://localhost:9200"}}); err == nil {
		t.Error("expected error for missing index")
	}
}

func TestNewDocument(t *testing.T) {
	page := models.WikiPage{
		Title:           "Combat Training Guide",
		URL:             "https://wiki.example.org/wiki/Combat_Training_Guide",
		Content:         "Train melee on cows.",
		SectionHeadings: []string{"Melee"},
	}

	doc := NewDocument(page, "https://wiki.example.org/wiki")
	if doc.ID != models.GenerateDocumentID(page.Title) {
		t.Errorf("ID = %q, want hash of title", doc.ID)
	}
	if doc.SourceBaseURL != "https://wiki.example.org/wiki" {
		t.Errorf("SourceBaseURL = %q", doc.SourceBaseURL)
	}

	back := doc.Page()
	if back.Title != page.Title || back.Content != page.Content || back.URL != page.URL {
		t.Errorf("Page() = %+v, want %+v", back, page)
	}
}

func TestClient_Search_Fake(t *testing.T) {
	var query map[string]any
	client := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wiki-test/_search" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&query)
		w.Write([]byte(`{"hits": {"hits": [
			{"_source": {"id": "a", "title": "Fishing", "url": "https://w/Fishing", "content": "Catch shrimp."}}
		]}}`))
	})

	pages, err := client.Search(t.Context(), "shrimp", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(pages) != 1 || pages[0].Title != "Fishing" {
		t.Fatalf("Search() = %+v", pages)
	}
	if pages[0].SectionHeadings == nil {
		t.Error("SectionHeadings should never be nil")
	}
	if size, _ := query["size"].(float64); size != 5 {
		t.Errorf("size = %v, want 5", query["size"])
	}
}

func TestClient_GetPage_NotFound(t *testing.T) {
	client := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"_index": "wiki-test", "found": false}`))
	})

	page, err := client.GetPage(t.Context(), "Missing")
	if err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}
	if page != nil {
		t.Errorf("GetPage() = %+v, want nil", page)
	}
}

func TestClient_IndexDocument_Error(t *testing.T) {
	client := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"type": "mapper_parsing_exception"}, "status": 400}`))
	})

	err := client.IndexDocument(t.Context(), NewDocument(models.WikiPage{Title: "A", Content: "a"}, ""))
	if err == nil {
		t.Error("expected error for rejected document")
	}
}

func TestClient_Connect(t *testing.T) {
	skipIfNoES(t)

	client, err := New(Config{
		Addresses: []string{"http://localhost:9200"},
		Index:     "wikibot-test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !client.Ping(context.Background()) {
		t.Error("Ping() should return true for running ES")
	}
}

func TestClient_CreateIndex(t *testing.T) {
	skipIfNoES(t)

	client, err := New(Config{
		Addresses: []string{"http://localhost:9200"},
		Index:     "wikibot-test-create",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	client.DeleteIndex(ctx)

	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}
	// Creating again should not error (idempotent)
	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() second call error = %v", err)
	}

	client.DeleteIndex(ctx)
}

func TestClient_IndexAndSearch(t *testing.T) {
	skipIfNoES(t)

	client, err := New(Config{
		Addresses: []string{"http://localhost:9200"},
		Index:     "wikibot-test-search",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	client.DeleteIndex(ctx)
	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}

	pages := []models.WikiPage{
		{Title: "Combat Training Guide", URL: "https://w/Combat_Training_Guide", Content: "Train attack and strength on cows."},
		{Title: "Fishing", URL: "https://w/Fishing", Content: "Catch shrimp at the lake."},
		{Title: "Server Rules", URL: "https://w/Server_Rules", Content: "No botting allowed."},
	}
	for _, p := range pages {
		if err := client.IndexDocument(ctx, NewDocument(p, "https://w")); err != nil {
			t.Fatalf("IndexDocument() error = %v", err)
		}
	}
	client.Refresh(ctx)

	results, err := client.Search(ctx, "combat training", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) == 0 || results[0].Title != "Combat Training Guide" {
		t.Errorf("Search('combat training') = %v, want Combat Training Guide first", results)
	}

	got, err := client.GetPage(ctx, "Fishing")
	if err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}
	if got == nil || got.Content != "Catch shrimp at the lake." {
		t.Errorf("GetPage() = %+v", got)
	}

	client.DeleteIndex(ctx)
}
