package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mfenderov/wikibot/internal/answer"
	"github.com/mfenderov/wikibot/internal/bot"
	"github.com/mfenderov/wikibot/internal/config"
	"github.com/mfenderov/wikibot/internal/corpus"
	"github.com/mfenderov/wikibot/internal/events"
	"github.com/mfenderov/wikibot/internal/httpapi"
	"github.com/mfenderov/wikibot/internal/llm"
	"github.com/mfenderov/wikibot/internal/pipeline"
	"github.com/mfenderov/wikibot/internal/retry"
	"github.com/mfenderov/wikibot/internal/snapshot"
	"github.com/mfenderov/wikibot/pkg/models"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Discord bot",
	Long: `Load the snapshot and answer Discord messages with the completion API.

The bot answers direct messages and mentions by default. !wikihelp and
!wikistats are answered anywhere. A missing snapshot starts the bot with an
empty corpus; a malformed one stops it.

The corpus is replaced without a restart when:
  - schedule.daily_at is set together with harvester.base_url (daily re-harvest)
  - snapshot.watch is on and the snapshot file is rewritten

Example:
  WIKIBOT_DISCORD_TOKEN=... WIKIBOT_LLM_API_KEY=... wikibot serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	if cfg.Snapshot.FetchOnStart {
		fetchLatestSnapshot(ctx, cfg)
	}

	initial, err := corpus.Load(cfg.Snapshot.Path, true)
	if err != nil {
		return err
	}
	holder := corpus.NewHolder(initial)

	llmClient, err := llm.New(llm.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		Retry: retry.Policy{
			MaxRetries: cfg.LLM.MaxRetries,
			BaseDelay:  500 * time.Millisecond,
			MaxDelay:   10 * time.Second,
		},
	})
	if err != nil {
		return &config.ConfigError{Problems: []string{err.Error()}}
	}

	answers, err := answer.New(answer.Config{
		SystemPrompt:      cfg.Answer.SystemPrompt,
		MaxContextPages:   cfg.Answer.MaxContextPages,
		MaxPageChars:      cfg.Answer.MaxPageChars,
		MaxPromptChars:    cfg.Answer.MaxPromptChars,
		FallbackReply:     cfg.Answer.FallbackReply,
		CompletionTimeout: cfg.Answer.CompletionTimeout,
	}, holder, llmClient)
	if err != nil {
		return &config.ConfigError{Problems: []string{"answer: " + err.Error()}}
	}

	discordBot, err := bot.New(bot.Config{
		Token: cfg.Discord.Token,
		Trigger: answer.Trigger{
			RespondToDirect:   cfg.Bot.RespondToDirect,
			RespondToMentions: cfg.Bot.RespondToMentions,
			Prefix:            cfg.Bot.Prefix,
			CommandPrefix:     cfg.Bot.CommandPrefix,
		},
		MaxConcurrent: cfg.Bot.MaxConcurrent,
		TypingRefresh: cfg.Bot.TypingRefresh,
	}, answers, holder)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Schedule.DailyAt != "" && cfg.Harvester.BaseURL != "" {
		reloads := make(chan events.HarvestCompleteEvent, 1)
		p, err := newPipeline(ctx, cfg, cfg.Snapshot.Path, reloads)
		if err != nil {
			return fmt.Errorf("failed to create pipeline: %w", err)
		}

		g.Go(func() error {
			return pipeline.Schedule(gctx, cfg.Schedule.DailyAt, func(ctx context.Context) error {
				_, err := p.Run(ctx)
				return err
			})
		})
		g.Go(func() error {
			reloadOnHarvest(gctx, holder, reloads)
			return nil
		})
	}

	if cfg.Snapshot.Watch {
		g.Go(func() error {
			return snapshot.Watch(gctx, cfg.Snapshot.Path, snapshot.DefaultDebounce, func(snap *models.Snapshot) {
				holder.Swap(snap)
			})
		})
	}

	if cfg.HTTP.Addr != "" {
		g.Go(func() error {
			return httpapi.New(holder).ListenAndServe(gctx, cfg.HTTP.Addr)
		})
	}

	g.Go(func() error {
		return discordBot.Run(gctx)
	})

	return g.Wait()
}

// reloadOnHarvest swaps in each snapshot the scheduled refresh writes.
func reloadOnHarvest(ctx context.Context, holder *corpus.Holder, reloads <-chan events.HarvestCompleteEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-reloads:
			snap, err := snapshot.Load(event.Path)
			if err != nil {
				slog.Warn("failed to reload snapshot, keeping previous corpus", "path", event.Path, "error", err)
				continue
			}
			holder.Swap(snap)
		}
	}
}

// fetchLatestSnapshot downloads the newest published snapshot over the local
// file. Failures leave the local file as it is.
func fetchLatestSnapshot(ctx context.Context, cfg config.Config) {
	store, err := newStorage(ctx, cfg)
	if err != nil {
		slog.Warn("snapshot fetch skipped", "error", err)
		return
	}

	snap, err := store.GetLatest(ctx, cfg.Harvester.BaseURL)
	if err != nil {
		slog.Warn("failed to fetch latest snapshot", "bucket", store.Bucket(), "error", err)
		return
	}
	if err := snapshot.Save(cfg.Snapshot.Path, snap); err != nil {
		slog.Warn("failed to write fetched snapshot", "path", cfg.Snapshot.Path, "error", err)
		return
	}
	slog.Info("fetched latest snapshot", "bucket", store.Bucket(), "pages", snap.Len())
}
