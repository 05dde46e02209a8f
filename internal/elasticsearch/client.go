package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/mfenderov/wikibot/pkg/models"
)

// Config holds Elasticsearch client configuration.
type Config struct {
	Addresses []string
	Index     string
	Username  string
	Password  string
}

// Client wraps the Elasticsearch client with wiki page operations.
type Client struct {
	es    *elasticsearch.Client
	index string
}

// New creates a new Elasticsearch client.
func New(config Config) (*Client, error) {
	if config.Index == "" {
		return nil, fmt.Errorf("index is required")
	}

	cfg := elasticsearch.Config{
		Addresses: config.Addresses,
		Username:  config.Username,
		Password:  config.Password,
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}

	return &Client{
		es:    es,
		index: config.Index,
	}, nil
}

// Index returns the index name.
func (c *Client) Index() string {
	return c.index
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) bool {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return !res.IsError()
}

// indexMapping defines the ES index mapping for wiki pages.
var indexMapping = `{
	"mappings": {
		"properties": {
			"id": { "type": "keyword" },
			"title": { "type": "text", "fields": { "keyword": { "type": "keyword" } } },
			"url": { "type": "keyword" },
			"content": { "type": "text", "analyzer": "english" },
			"section_headings": { "type": "text", "analyzer": "english" },
			"fetched_at": { "type": "date" },
			"source_base_url": { "type": "keyword" }
		}
	}
}`

// Document is a wiki page as stored in the index.
type Document struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	URL             string    `json:"url"`
	Content         string    `json:"content"`
	SectionHeadings []string  `json:"section_headings"`
	FetchedAt       time.Time `json:"fetched_at"`
	SourceBaseURL   string    `json:"source_base_url,omitempty"`
}

// NewDocument builds the indexed form of a page. The document ID is derived
// from the title, so re-indexing a snapshot overwrites pages in place.
func NewDocument(page models.WikiPage, sourceBaseURL string) Document {
	return Document{
		ID:              models.GenerateDocumentID(page.Title),
		Title:           page.Title,
		URL:             page.URL,
		Content:         page.Content,
		SectionHeadings: page.SectionHeadings,
		FetchedAt:       page.FetchedAt,
		SourceBaseURL:   sourceBaseURL,
	}
}

// Page converts the document back into a wiki page.
func (d Document) Page() models.WikiPage {
	headings := d.SectionHeadings
	if headings == nil {
		headings = []string{}
	}
	return models.WikiPage{
		Title:           d.Title,
		URL:             d.URL,
		Content:         d.Content,
		SectionHeadings: headings,
		FetchedAt:       d.FetchedAt,
	}
}

// CreateIndex creates the index with proper mapping.
func (c *Client) CreateIndex(ctx context.Context) error {
	// Check if index exists
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		return nil
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error creating index: %s", res.String())
	}

	return nil
}

// DeleteIndex removes the index (for testing/cleanup).
func (c *Client) DeleteIndex(ctx context.Context) error {
	res, err := c.es.Indices.Delete([]string{c.index}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

// IndexDocument indexes a single document.
func (c *Client) IndexDocument(ctx context.Context, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	res, err := c.es.Index(
		c.index,
		bytes.NewReader(data),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(doc.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing document (status %d): %s", res.StatusCode, res.String())
	}

	return nil
}

// Refresh forces an index refresh.
func (c *Client) Refresh(ctx context.Context) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithContext(ctx),
		c.es.Indices.Refresh.WithIndex(c.index),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

// searchResponse represents ES search response structure.
type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchQuery builds the multi_match query used by Search. Titles and
// headings weigh more than body text.
func SearchQuery(query string, limit int) map[string]any {
	return map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  query,
				"fields": []string{"title^3", "section_headings^2", "content"},
			},
		},
		"size": limit,
	}
}

// Search performs a BM25 text search on titles, headings and content.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]models.WikiPage, error) {
	data, err := json.Marshal(SearchQuery(query, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	pages := make([]models.WikiPage, len(sr.Hits.Hits))
	for i, hit := range sr.Hits.Hits {
		pages[i] = hit.Source.Page()
	}

	return pages, nil
}

// getResponse represents ES get response structure.
type getResponse struct {
	Found  bool     `json:"found"`
	Source Document `json:"_source"`
}

// GetPage retrieves a page by title. It returns nil when the page is not
// indexed.
func (c *Client) GetPage(ctx context.Context, title string) (*models.WikiPage, error) {
	res, err := c.es.Get(
		c.index,
		models.GenerateDocumentID(title),
		c.es.Get.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil, nil
	}

	if res.IsError() {
		return nil, fmt.Errorf("get error: %s", res.String())
	}

	var gr getResponse
	if err := json.NewDecoder(res.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if !gr.Found {
		return nil, nil
	}

	page := gr.Source.Page()
	return &page, nil
}
