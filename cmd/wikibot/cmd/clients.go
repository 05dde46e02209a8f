package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mfenderov/wikibot/internal/config"
	"github.com/mfenderov/wikibot/internal/elasticsearch"
	"github.com/mfenderov/wikibot/internal/events"
	"github.com/mfenderov/wikibot/internal/harvester"
	"github.com/mfenderov/wikibot/internal/ingestion"
	"github.com/mfenderov/wikibot/internal/pipeline"
	"github.com/mfenderov/wikibot/internal/storage"
)

func newStorage(ctx context.Context, cfg config.Config) (*storage.Client, error) {
	client, err := storage.New(storage.Config{
		Endpoint:        cfg.Storage.Endpoint,
		Bucket:          cfg.Storage.Bucket,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		UseSSL:          cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket: %w", err)
	}
	return client, nil
}

func newElasticsearch(cfg config.Config) (*elasticsearch.Client, error) {
	client, err := elasticsearch.New(elasticsearch.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Index:     cfg.Elasticsearch.Index,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}
	return client, nil
}

// newIngestion builds the ingestion engine. store may be nil.
func newIngestion(cfg config.Config, store *storage.Client) (*ingestion.Engine, error) {
	es, err := newElasticsearch(cfg)
	if err != nil {
		return nil, err
	}
	var source ingestion.SnapshotSource
	if store != nil {
		source = store
	}
	return ingestion.New(es, source), nil
}

func harvesterConfig(cfg config.Config) harvester.Config {
	return harvester.Config{
		RequestDelay:    cfg.Harvester.RequestDelay(),
		Concurrency:     cfg.Harvester.Concurrency,
		MaxRetries:      cfg.Harvester.MaxRetries,
		RetryBaseDelay:  cfg.Harvester.RetryBaseDelay,
		Timeout:         cfg.Harvester.Timeout,
		UserAgent:       cfg.Harvester.UserAgent,
		MinContentChars: cfg.Harvester.MinContentChars,
		Namespace:       cfg.Harvester.Namespace,
	}
}

// newPipeline wires a refresh pipeline writing to outputPath, publishing and
// indexing when storage and Elasticsearch are enabled.
func newPipeline(ctx context.Context, cfg config.Config, outputPath string, notify chan<- events.HarvestCompleteEvent) (*pipeline.Pipeline, error) {
	var opts []pipeline.Option

	var store *storage.Client
	if cfg.Storage.Enabled {
		var err error
		store, err = newStorage(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithPublisher(store))
		slog.Debug("snapshot publishing enabled", "bucket", store.Bucket())
	}

	if cfg.Elasticsearch.Enabled {
		engine, err := newIngestion(cfg, store)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithIngester(engine))
		slog.Debug("snapshot indexing enabled", "index", cfg.Elasticsearch.Index)
	}

	if notify != nil {
		opts = append(opts, pipeline.WithNotify(notify))
	}

	return pipeline.New(pipeline.Config{
		BaseURL:    cfg.Harvester.BaseURL,
		OutputPath: outputPath,
	}, harvester.New(harvesterConfig(cfg)), opts...)
}
