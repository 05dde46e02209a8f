package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	harvestURL    string
	harvestOutput string
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Harvest the wiki into a snapshot file",
	Long: `List every page of the wiki, fetch and strip each one, and write the
result atomically to the snapshot file. Pages that cannot be fetched are
skipped and reported; the run only fails when the page listing itself is
unreachable.

When storage or Elasticsearch are enabled in the config, the snapshot is
also published to the bucket and indexed.

Examples:
  # Harvest the configured wiki
  wikibot harvest

  # Harvest a specific wiki into a specific file
  wikibot harvest --url https://wiki.example.org/wiki --output wiki.json`,
	RunE: runHarvest,
}

func init() {
	rootCmd.AddCommand(harvestCmd)

	harvestCmd.Flags().StringVar(&harvestURL, "url", "", "wiki base URL (overrides harvester.base_url)")
	harvestCmd.Flags().StringVar(&harvestOutput, "output", "", "snapshot path (overrides harvester.output_path)")
}

func runHarvest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	if harvestURL != "" {
		cfg.Harvester.BaseURL = harvestURL
	}
	if harvestOutput != "" {
		cfg.Harvester.OutputPath = harvestOutput
	}
	if err := cfg.ValidateHarvest(); err != nil {
		return err
	}
	slog.Debug("harvest command starting", "url", cfg.Harvester.BaseURL, "output", cfg.Harvester.OutputPath)

	p, err := newPipeline(ctx, cfg, cfg.Harvester.OutputPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	fmt.Printf("Harvesting: %s\n", cfg.Harvester.BaseURL)

	result, err := p.Run(ctx)
	if err != nil {
		return fmt.Errorf("harvest failed: %w", err)
	}

	h := result.Harvest
	fmt.Printf("  Pages: %d of %d listed, Skipped: %d, Duration: %v\n",
		h.Snapshot.Len(), h.Listed, h.Listed-h.Snapshot.Len(), h.Duration)
	fmt.Printf("  Snapshot: %s\n", cfg.Harvester.OutputPath)
	if result.Key != "" {
		fmt.Printf("  Published: %s\n", result.Key)
	}
	if result.Ingestion != nil {
		fmt.Printf("  Docs indexed: %d\n", result.Ingestion.DocsIndexed)
	}

	for _, w := range h.Warnings {
		fmt.Printf("  Warning: %v\n", w)
	}
	for _, e := range result.Errors {
		fmt.Printf("  Warning: %v\n", e)
	}

	return nil
}
