package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mfenderov/wikibot/internal/elasticsearch"
	"github.com/mfenderov/wikibot/internal/events"
	"github.com/mfenderov/wikibot/pkg/models"
)

// Indexer stores documents in a search index.
type Indexer interface {
	CreateIndex(ctx context.Context) error
	IndexDocument(ctx context.Context, doc elasticsearch.Document) error
	Refresh(ctx context.Context) error
}

// SnapshotSource fetches published snapshots.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, key string) (*models.Snapshot, error)
}

// Engine indexes snapshot pages into Elasticsearch.
type Engine struct {
	indexer Indexer
	source  SnapshotSource // nil when snapshots are only read from disk
}

// New creates a new ingestion engine.
func New(indexer Indexer, source SnapshotSource) *Engine {
	return &Engine{
		indexer: indexer,
		source:  source,
	}
}

// Ingest indexes every page of snap. Pages that fail to index are recorded in
// the result and do not stop the run.
func (e *Engine) Ingest(ctx context.Context, name string, snap *models.Snapshot) (*events.IngestionCompleteEvent, error) {
	start := time.Now()
	result := &events.IngestionCompleteEvent{Source: name}

	slog.Info("starting ingestion", "source", name, "pages", snap.Len())

	// Ensure ES index exists
	if err := e.indexer.CreateIndex(ctx); err != nil {
		return nil, err
	}

	for _, page := range snap.Pages {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, "context cancelled")
			break
		}

		doc := elasticsearch.NewDocument(page, snap.SourceBaseURL)
		if err := e.indexer.IndexDocument(ctx, doc); err != nil {
			slog.Error("failed to index page", "title", page.Title, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", page.Title, err))
			continue
		}
		slog.Debug("page indexed", "id", doc.ID, "title", page.Title)
		result.DocsIndexed++
	}

	// Refresh index to make documents searchable immediately
	if err := e.indexer.Refresh(ctx); err != nil {
		slog.Warn("failed to refresh index", "error", err)
	}

	result.Duration = time.Since(start)
	slog.Info("ingestion complete",
		"source", name,
		"docs_indexed", result.DocsIndexed,
		"duration", result.Duration,
		"errors", len(result.Errors))

	return result, nil
}

// IngestKey downloads the snapshot stored at key and indexes it.
func (e *Engine) IngestKey(ctx context.Context, key string) (*events.IngestionCompleteEvent, error) {
	if e.source == nil {
		return nil, fmt.Errorf("no snapshot storage configured")
	}
	snap, err := e.source.GetSnapshot(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.Ingest(ctx, key, snap)
}
