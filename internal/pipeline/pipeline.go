package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mfenderov/wikibot/internal/events"
	"github.com/mfenderov/wikibot/internal/harvester"
	"github.com/mfenderov/wikibot/internal/snapshot"
	"github.com/mfenderov/wikibot/pkg/models"
)

// Harvester produces a snapshot of a wiki.
type Harvester interface {
	Harvest(ctx context.Context, baseURL string) (*harvester.Result, error)
}

// Publisher uploads snapshots to object storage.
type Publisher interface {
	PutSnapshot(ctx context.Context, snap *models.Snapshot) (string, error)
	Bucket() string
}

// Ingester indexes snapshots for search.
type Ingester interface {
	Ingest(ctx context.Context, name string, snap *models.Snapshot) (*events.IngestionCompleteEvent, error)
}

// Config holds pipeline configuration.
type Config struct {
	BaseURL    string
	OutputPath string
}

// Result holds pipeline execution results.
type Result struct {
	Harvest   *harvester.Result
	Key       string // S3 archive key, empty when publishing is off
	Ingestion *events.IngestionCompleteEvent
	Duration  time.Duration
	Errors    []error // publish and ingest failures; the snapshot was still written
}

// Pipeline runs harvest, save, publish and ingest as one refresh.
type Pipeline struct {
	config    Config
	harvester Harvester
	publisher Publisher // nil if publishing disabled
	ingester  Ingester  // nil if indexing disabled
	notify    chan<- events.HarvestCompleteEvent
}

// Option configures optional pipeline stages.
type Option func(*Pipeline)

// WithPublisher uploads every snapshot after it is saved.
func WithPublisher(p Publisher) Option {
	return func(pl *Pipeline) { pl.publisher = p }
}

// WithIngester indexes every snapshot after it is saved.
func WithIngester(i Ingester) Option {
	return func(pl *Pipeline) { pl.ingester = i }
}

// WithNotify sends a HarvestCompleteEvent on ch after each successful run.
func WithNotify(ch chan<- events.HarvestCompleteEvent) Option {
	return func(pl *Pipeline) { pl.notify = ch }
}

// New creates a new Pipeline with the given configuration.
func New(config Config, h Harvester, opts ...Option) (*Pipeline, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if config.OutputPath == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if h == nil {
		return nil, fmt.Errorf("harvester is required")
	}

	p := &Pipeline{config: config, harvester: h}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run executes one refresh. Harvest and save failures are fatal; publish and
// ingest failures are collected in Result.Errors.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	harvested, err := p.harvester.Harvest(ctx, p.config.BaseURL)
	if err != nil {
		return nil, err
	}
	result.Harvest = harvested
	snap := harvested.Snapshot

	if err := snapshot.Save(p.config.OutputPath, snap); err != nil {
		return nil, err
	}
	slog.Info("snapshot written", "path", p.config.OutputPath, "pages", snap.Len(), "skipped", len(harvested.Warnings))

	event := events.HarvestCompleteEvent{
		Path:      p.config.OutputPath,
		SourceURL: snap.SourceBaseURL,
		PageCount: snap.Len(),
		Skipped:   len(harvested.Warnings),
		Timestamp: snap.GeneratedAt,
	}

	if p.publisher != nil {
		key, err := p.publisher.PutSnapshot(ctx, snap)
		if err != nil {
			slog.Warn("failed to publish snapshot", "error", err)
			result.Errors = append(result.Errors, err)
		} else {
			result.Key = key
			event.Bucket = p.publisher.Bucket()
			event.Key = key
			slog.Info("snapshot published", "bucket", event.Bucket, "key", key)
		}
	}

	if p.ingester != nil {
		ingested, err := p.ingester.Ingest(ctx, p.config.OutputPath, snap)
		if err != nil {
			slog.Warn("failed to index snapshot", "error", err)
			result.Errors = append(result.Errors, err)
		} else {
			result.Ingestion = ingested
		}
	}

	if p.notify != nil {
		select {
		case p.notify <- event:
		case <-ctx.Done():
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}
