package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List snapshots published to object storage",
	Long: `List the archived snapshots of the configured wiki, oldest first.

Example:
  wikibot snapshots`,
	RunE: runSnapshots,
}

func init() {
	rootCmd.AddCommand(snapshotsCmd)
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	store, err := newStorage(ctx, cfg)
	if err != nil {
		return err
	}

	keys, err := store.ListSnapshots(ctx, cfg.Harvester.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}
	if len(keys) == 0 {
		fmt.Println("No snapshots published.")
		return nil
	}

	for _, key := range keys {
		fmt.Println(key)
	}
	return nil
}
