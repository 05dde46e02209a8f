package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/mfenderov/wikibot/internal/events"
	"github.com/mfenderov/wikibot/internal/snapshot"
	"github.com/mfenderov/wikibot/internal/storage"
	"github.com/spf13/cobra"
)

var (
	indexSnapshot string
	indexKey      string
	indexLatest   bool
	indexRecreate bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index a snapshot into Elasticsearch",
	Long: `Index the pages of a snapshot into Elasticsearch for 'wikibot search
--backend elasticsearch'. The snapshot is read from disk by default, or from
object storage with --key or --latest.

Examples:
  # Index the local snapshot
  wikibot index

  # Index the newest published snapshot, rebuilding the index
  wikibot index --latest --recreate

  # Index an archived snapshot
  wikibot index --key snapshots/wiki.example.org/2025-03-01T02-00-00Z.json`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)

	indexCmd.Flags().StringVar(&indexSnapshot, "snapshot", "", "snapshot file (default snapshot.path)")
	indexCmd.Flags().StringVar(&indexKey, "key", "", "object storage key of a published snapshot")
	indexCmd.Flags().BoolVar(&indexLatest, "latest", false, "index the newest published snapshot")
	indexCmd.Flags().BoolVar(&indexRecreate, "recreate", false, "delete the index before indexing")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	slog.Debug("index command starting", "key", indexKey, "latest", indexLatest)

	var store *storage.Client
	if indexKey != "" || indexLatest {
		var err error
		store, err = newStorage(ctx, cfg)
		if err != nil {
			return err
		}
		if indexLatest {
			indexKey = storage.LatestKey(cfg.Harvester.BaseURL)
		}
	}

	engine, err := newIngestion(cfg, store)
	if err != nil {
		return err
	}

	if indexRecreate {
		esClient, err := newElasticsearch(cfg)
		if err != nil {
			return err
		}
		if err := esClient.DeleteIndex(ctx); err != nil {
			return fmt.Errorf("failed to delete index: %w", err)
		}
	}

	var result *events.IngestionCompleteEvent
	if indexKey != "" {
		fmt.Printf("Indexing: s3://%s/%s\n", store.Bucket(), indexKey)
		result, err = engine.IngestKey(ctx, indexKey)
	} else {
		path := cfg.Snapshot.Path
		if indexSnapshot != "" {
			path = indexSnapshot
		}
		fmt.Printf("Indexing: %s\n", path)

		snap, loadErr := snapshot.Load(path)
		if loadErr != nil {
			return loadErr
		}
		result, err = engine.Ingest(ctx, path, snap)
	}
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Printf("  Docs indexed: %d, Duration: %v\n", result.DocsIndexed, result.Duration)
	for _, e := range result.Errors {
		fmt.Printf("  Warning: %s\n", e)
	}
	return nil
}
