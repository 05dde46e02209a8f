package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mfenderov/wikibot/internal/retry"
)

// Message roles.
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Config holds LLM client configuration.
type Config struct {
	APIKey      string
	BaseURL     string // OpenAI-compatible endpoint; empty means api.openai.com
	Model       string // Model name (e.g., "gpt-3.5-turbo")
	MaxTokens   int    // Limit response length; 0 means provider default
	Temperature float32
	Timeout     time.Duration // per HTTP request
	Retry       retry.Policy
}

// Message is one chat message of a prompt.
type Message struct {
	Role    string
	Content string
}

// CompletionError is returned when no answer could be obtained from the
// completion API.
type CompletionError struct {
	Model string
	Err   error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion with model %s failed: %v", e.Model, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// Client wraps an OpenAI-compatible chat completions API.
type Client struct {
	client *openai.Client
	config Config
}

// New creates a new LLM client.
func New(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	cfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: config.Timeout}

	return &Client{
		client: openai.NewClientWithConfig(cfg),
		config: config,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.config.Model
}

// Complete sends the messages to the completion API and returns the trimmed
// response text. Rate limits, server errors and transport failures are
// retried according to the client's policy. Every failure is a
// *CompletionError.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
	}
	for i, msg := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	var text string
	err := retry.Do(ctx, c.config.Retry, func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			err = fmt.Errorf("create chat completion: %w", err)
			if !Retryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		if len(resp.Choices) == 0 {
			return retry.Permanent(fmt.Errorf("chat completion returned no choices"))
		}
		text = strings.TrimSpace(resp.Choices[0].Message.Content)
		slog.Debug("completion received",
			"model", resp.Model,
			"prompt_tokens", resp.Usage.PromptTokens,
			"completion_tokens", resp.Usage.CompletionTokens)
		return nil
	})
	if err != nil {
		return "", &CompletionError{Model: c.config.Model, Err: err}
	}
	if text == "" {
		return "", &CompletionError{Model: c.config.Model, Err: fmt.Errorf("empty completion")}
	}
	return text, nil
}

// Retryable reports whether a completion error is worth another attempt.
// API errors are retried for 429 and 5xx; errors without an HTTP status are
// transport failures and always retried.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return status == 0 || status == http.StatusTooManyRequests || status >= 500
}
