package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/mfenderov/wikibot/internal/corpus"
	"github.com/mfenderov/wikibot/pkg/models"
	"github.com/spf13/cobra"
)

var (
	searchLimit   int
	searchFormat  string
	searchBackend string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the snapshot or the Elasticsearch index",
	Long: `Show the pages the bot would use as context for a question.

The local backend ranks the snapshot pages exactly like the bot does.
The elasticsearch backend queries the index built by 'wikibot index'.

Examples:
  # Pages the bot would pick
  wikibot search "how do I train combat" --limit 2

  # Query Elasticsearch, JSON output for scripting
  wikibot search "smithing" --backend elasticsearch --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntVar(&searchLimit, "limit", 5, "Maximum number of results")
	searchCmd.Flags().StringVar(&searchFormat, "format", "text", "Output format: text or json")
	searchCmd.Flags().StringVar(&searchBackend, "backend", "local", "Search backend: local or elasticsearch")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	query := args[0]
	cfg := GetConfig()

	var pages []models.WikiPage
	switch searchBackend {
	case "local":
		c, err := corpus.Load(cfg.Snapshot.Path, false)
		if err != nil {
			return err
		}
		pages = c.Select(query, searchLimit)

	case "elasticsearch":
		esClient, err := newElasticsearch(cfg)
		if err != nil {
			return err
		}
		pages, err = esClient.Search(ctx, query, searchLimit)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

	default:
		return fmt.Errorf("unknown backend %q (use local or elasticsearch)", searchBackend)
	}

	if len(pages) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	if searchFormat == "json" {
		output, err := json.MarshalIndent(pages, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Found %d results:\n\n", len(pages))
	for i, page := range pages {
		fmt.Printf("─── Result %d ───\n", i+1)
		fmt.Printf("Title:   %s\n", page.Title)
		fmt.Printf("URL:     %s\n", page.URL)

		content := []rune(page.Content)
		if len(content) > 500 {
			content = append(content[:500], []rune("...")...)
		}
		fmt.Printf("Content:\n%s\n\n", string(content))
	}

	return nil
}
