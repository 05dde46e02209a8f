// Package answer turns a chat message into a reply grounded in the wiki
// corpus.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mfenderov/wikibot/internal/corpus"
	"github.com/mfenderov/wikibot/internal/llm"
	"github.com/mfenderov/wikibot/pkg/models"
)

// DefaultFallbackReply is sent when no answer could be produced.
const DefaultFallbackReply = "Sorry, there was an error generating the response. Please try again."

// Completer produces a completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Source provides the corpus to answer from.
type Source interface {
	Current() *corpus.Corpus
}

// Config holds answer service configuration.
type Config struct {
	SystemPrompt      string
	MaxContextPages   int
	MaxPageChars      int
	MaxPromptChars    int
	FallbackReply     string
	CompletionTimeout time.Duration
}

// Service answers questions from the current corpus.
type Service struct {
	config    Config
	source    Source
	completer Completer
}

// New creates a new answer service.
func New(config Config, source Source, completer Completer) (*Service, error) {
	if source == nil {
		return nil, fmt.Errorf("corpus source is required")
	}
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if config.MaxContextPages < 0 {
		return nil, fmt.Errorf("max context pages must not be negative")
	}
	if config.MaxPromptChars < 0 {
		return nil, fmt.Errorf("max prompt chars must not be negative")
	}
	if minChars := MinPromptChars(config.SystemPrompt); config.MaxPromptChars > 0 && config.MaxPromptChars < minChars {
		return nil, fmt.Errorf("max prompt chars %d cannot hold the system prompt and a question, need at least %d",
			config.MaxPromptChars, minChars)
	}
	if config.FallbackReply == "" {
		config.FallbackReply = DefaultFallbackReply
	}
	return &Service{config: config, source: source, completer: completer}, nil
}

// FallbackReply returns the reply used when answering fails.
func (s *Service) FallbackReply() string {
	return s.config.FallbackReply
}

// HandleMessage answers msg. It never fails: completion errors and panics
// are logged and turned into the fallback reply.
func (s *Service) HandleMessage(ctx context.Context, msg models.IncomingMessage) (reply string) {
	requestID := uuid.NewString()
	log := slog.With("request_id", requestID, "origin", msg.Origin)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("answering message panicked", "panic", r)
			reply = s.config.FallbackReply
		}
	}()

	c := s.source.Current()
	pages := c.Select(msg.Text, s.config.MaxContextPages)
	titles := make([]string, len(pages))
	for i, p := range pages {
		titles[i] = p.Title
	}

	messages := BuildPrompt(s.config.SystemPrompt, msg.Text, pages, PromptLimits{
		MaxPageChars:   s.config.MaxPageChars,
		MaxPromptChars: s.config.MaxPromptChars,
	})
	log.Debug("prompt built", "pages", titles, "chars", PromptChars(messages))

	if s.config.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.CompletionTimeout)
		defer cancel()
	}

	text, err := s.completer.Complete(ctx, messages)
	if err != nil {
		log.Error("completion failed", "author", msg.Author, "error", err, "duration", time.Since(start))
		return s.config.FallbackReply
	}
	if text == "" {
		log.Error("completion was empty", "author", msg.Author)
		return s.config.FallbackReply
	}

	log.Info("answered message", "pages", len(pages), "chars", len(text), "duration", time.Since(start))
	return text
}
