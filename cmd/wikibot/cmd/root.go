package cmd

import (
	"log/slog"
	"os"

	"github.com/mfenderov/wikibot/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	cfg     config.Config
)

// GetConfig returns the loaded configuration.
func GetConfig() config.Config {
	return cfg
}

var rootCmd = &cobra.Command{
	Use:   "wikibot",
	Short: "wikibot: answers Discord questions from a MediaWiki",
	Long: `wikibot harvests a MediaWiki into a JSON snapshot and answers Discord
questions with a language model, using the most relevant wiki pages as context.

Commands:
  harvest     Harvest the wiki into a snapshot file
  import-sql  Build a snapshot from a MediaWiki SQL dump
  serve       Run the Discord bot
  search      Search the snapshot or the Elasticsearch index
  index       Index a snapshot into Elasticsearch
  snapshots   List snapshots published to object storage
  mcp         Serve the snapshot as MCP tools over stdio`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initLogger()
		return initConfig()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

func initLogger() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func initConfig() error {
	loaded, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded
	return nil
}
