// Package bot connects the answer service to Discord.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/semaphore"

	"github.com/mfenderov/wikibot/internal/answer"
	"github.com/mfenderov/wikibot/internal/corpus"
	"github.com/mfenderov/wikibot/pkg/models"
)

// Answerer produces a reply for a question. It must not fail.
type Answerer interface {
	HandleMessage(ctx context.Context, msg models.IncomingMessage) string
	FallbackReply() string
}

// Source provides the corpus for the stats command.
type Source interface {
	Current() *corpus.Corpus
}

// Sender is the part of a Discord session used to reply.
type Sender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

// Config holds bot configuration.
type Config struct {
	Token         string
	Trigger       answer.Trigger
	MaxConcurrent int64         // messages answered at the same time
	TypingRefresh time.Duration // how often the typing indicator is renewed
}

// Bot dispatches Discord messages to the answer service.
type Bot struct {
	config   Config
	answerer Answerer
	source   Source
	sem      *semaphore.Weighted

	mu      sync.Mutex // guards stopped and wg.Add
	stopped bool
	wg      sync.WaitGroup
}

// New creates a new Bot.
func New(config Config, answerer Answerer, source Source) (*Bot, error) {
	if answerer == nil {
		return nil, fmt.Errorf("answerer is required")
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}
	if config.TypingRefresh <= 0 {
		config.TypingRefresh = 8 * time.Second
	}
	return &Bot{
		config:   config,
		answerer: answerer,
		source:   source,
		sem:      semaphore.NewWeighted(config.MaxConcurrent),
	}, nil
}

// Run connects to the Discord gateway and answers messages until ctx is
// done. In-flight messages are finished before Run returns.
func (b *Bot) Run(ctx context.Context) error {
	if b.config.Token == "" {
		return fmt.Errorf("discord token is required")
	}
	token := b.config.Token
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}

	session, err := discordgo.New(token)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("connected to discord", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	removeHandler := session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Message == nil || m.Author == nil || s.State == nil || s.State.User == nil {
			return
		}
		b.Dispatch(ctx, s, FromDiscord(m.Message, s.State.User.ID))
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	slog.Info("bot started")

	<-ctx.Done()
	slog.Info("shutting down bot")

	removeHandler()
	closeErr := session.Close()
	// Replies go over REST, so in-flight messages still finish.
	b.Stop()
	if closeErr != nil {
		return fmt.Errorf("failed to close discord session: %w", closeErr)
	}
	return nil
}

// FromDiscord converts a Discord message. selfID is the bot's own user id;
// mentions of it are removed from the text.
func FromDiscord(m *discordgo.Message, selfID string) models.IncomingMessage {
	msg := models.IncomingMessage{
		Text:     m.Content,
		Origin:   m.ChannelID,
		IsDirect: m.GuildID == "",
	}
	if m.Author != nil {
		msg.Author = m.Author.Username
		msg.FromSelf = m.Author.ID == selfID
	}
	for _, u := range m.Mentions {
		if u != nil && u.ID == selfID {
			msg.Mentioned = true
			break
		}
	}
	if msg.Mentioned {
		msg.Text = strings.NewReplacer("<@"+selfID+">", "", "<@!"+selfID+">", "").Replace(msg.Text)
		msg.Text = strings.TrimSpace(msg.Text)
	}
	return msg
}

// Dispatch handles one message. Commands and questions are answered on
// their own goroutine; at most MaxConcurrent are in flight.
func (b *Bot) Dispatch(ctx context.Context, out Sender, msg models.IncomingMessage) {
	if msg.FromSelf {
		return
	}

	if reply, ok := b.command(msg.Text); ok {
		b.spawn(ctx, msg, out, func(context.Context) string { return reply })
		return
	}

	question, ok := answer.ShouldRespond(b.config.Trigger, msg)
	if !ok {
		return
	}
	msg.Text = question

	b.spawn(ctx, msg, out, func(ctx context.Context) string {
		stop := b.typing(ctx, out, msg.Origin)
		defer stop()
		return b.answerer.HandleMessage(ctx, msg)
	})
}

// Wait blocks until all dispatched messages are handled. It must not be
// called while Dispatch may still run; use Stop for that.
func (b *Bot) Wait() {
	b.wg.Wait()
}

// Stop makes later Dispatch calls drop their message and waits for the
// ones already dispatched.
func (b *Bot) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bot) spawn(ctx context.Context, msg models.IncomingMessage, out Sender, handle func(context.Context) string) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		slog.Debug("bot stopped, dropping message", "origin", msg.Origin)
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()

		if err := b.sem.Acquire(ctx, 1); err != nil {
			slog.Warn("dropping message", "origin", msg.Origin, "error", err)
			return
		}
		defer b.sem.Release(1)

		reply := b.safeHandle(ctx, msg, handle)
		b.send(out, msg.Origin, reply)
	}()
}

func (b *Bot) safeHandle(ctx context.Context, msg models.IncomingMessage, handle func(context.Context) string) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("message handler panicked", "origin", msg.Origin, "panic", r)
			reply = b.answerer.FallbackReply()
		}
	}()
	return handle(ctx)
}

func (b *Bot) send(out Sender, channelID, reply string) {
	for _, chunk := range SplitReply(reply) {
		if _, err := out.ChannelMessageSend(channelID, chunk); err != nil {
			slog.Error("failed to send reply", "origin", channelID, "error", err)
			return
		}
	}
}

// typing shows the typing indicator until the returned func is called.
func (b *Bot) typing(ctx context.Context, out Sender, channelID string) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(b.config.TypingRefresh)
		defer ticker.Stop()
		for {
			if err := out.ChannelTyping(channelID); err != nil {
				slog.Debug("failed to send typing indicator", "origin", channelID, "error", err)
			}
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}
