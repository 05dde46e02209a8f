package cmd

import (
	"fmt"

	"github.com/mfenderov/wikibot/internal/snapshot"
	"github.com/mfenderov/wikibot/internal/sqldump"
	"github.com/spf13/cobra"
)

var (
	importFile    string
	importOutput  string
	importBaseURL string
)

var importSQLCmd = &cobra.Command{
	Use:   "import-sql",
	Short: "Build a snapshot from a MediaWiki SQL dump",
	Long: `Read the page, revision and text tables of a mysqldump and write the
latest revision of every main-namespace page as a snapshot. Wikitext markup
is stripped; redirects and system pages are left out. Files ending in .gz
are decompressed.

Example:
  wikibot import-sql --file wiki.sql --output wiki.json`,
	RunE: runImportSQL,
}

func init() {
	rootCmd.AddCommand(importSQLCmd)

	importSQLCmd.Flags().StringVar(&importFile, "file", "", "SQL dump to read (required)")
	importSQLCmd.Flags().StringVar(&importOutput, "output", "", "snapshot path (overrides harvester.output_path)")
	importSQLCmd.Flags().StringVar(&importBaseURL, "base-url", "", "wiki base URL for page links (overrides harvester.base_url)")
	importSQLCmd.MarkFlagRequired("file")
}

func runImportSQL(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	output := cfg.Harvester.OutputPath
	if importOutput != "" {
		output = importOutput
	}
	baseURL := cfg.Harvester.BaseURL
	if importBaseURL != "" {
		baseURL = importBaseURL
	}

	fmt.Printf("Importing: %s\n", importFile)

	snap, stats, err := sqldump.ImportFile(importFile, baseURL)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	if err := snapshot.Save(output, snap); err != nil {
		return err
	}

	fmt.Printf("  Pages: %d imported of %d, System: %d, Redirects: %d, Empty: %d\n",
		stats.Imported, stats.Pages, stats.System, stats.Redirects, stats.Empty)
	fmt.Printf("  Snapshot: %s\n", output)
	return nil
}
