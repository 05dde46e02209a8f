package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/mfenderov/wikibot/internal/corpus"
	"github.com/mfenderov/wikibot/internal/mcp"
	"github.com/mfenderov/wikibot/internal/snapshot"
	"github.com/mfenderov/wikibot/pkg/models"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the snapshot as MCP tools over stdio",
	Long: `Start an MCP server for the wiki snapshot.

The server communicates via stdio and provides two tools:
  - search_wiki: Find the pages most relevant to a question
  - get_page: Get a page by title

Example:
  wikibot mcp`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()

	initial, err := corpus.Load(cfg.Snapshot.Path, false)
	if err != nil {
		return err
	}
	holder := corpus.NewHolder(initial)

	if cfg.Snapshot.Watch {
		go snapshot.Watch(ctx, cfg.Snapshot.Path, snapshot.DefaultDebounce, func(snap *models.Snapshot) {
			holder.Swap(snap)
		})
	}

	server, err := mcp.NewServer(mcp.Config{
		Name:    cfg.MCP.Name,
		Version: cfg.MCP.Version,
	}, holder)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	fmt.Fprintln(cmd.ErrOrStderr(), "Starting MCP server...")

	return server.ServeStdio()
}
