package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. WIKIBOT_DISCORD_TOKEN.
const EnvPrefix = "WIKIBOT"

// Config holds all application configuration.
type Config struct {
	Harvester     Harvester     `mapstructure:"harvester"`
	Snapshot      Snapshot      `mapstructure:"snapshot"`
	Discord       Discord       `mapstructure:"discord"`
	LLM           LLM           `mapstructure:"llm"`
	Answer        Answer        `mapstructure:"answer"`
	Bot           Bot           `mapstructure:"bot"`
	Schedule      Schedule      `mapstructure:"schedule"`
	Storage       Storage       `mapstructure:"storage"`
	Elasticsearch Elasticsearch `mapstructure:"elasticsearch"`
	MCP           MCP           `mapstructure:"mcp"`
	HTTP          HTTP          `mapstructure:"http"`
}

// Harvester holds wiki harvesting configuration.
type Harvester struct {
	BaseURL         string        `mapstructure:"base_url"`
	OutputPath      string        `mapstructure:"output_path"`
	RequestDelayMS  int           `mapstructure:"request_delay_ms"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"`
	Concurrency     int           `mapstructure:"concurrency"`
	Timeout         time.Duration `mapstructure:"timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
	MinContentChars int           `mapstructure:"min_content_chars"`
	Namespace       int           `mapstructure:"namespace"`
}

// RequestDelay returns the configured pause between requests.
func (h Harvester) RequestDelay() time.Duration {
	return time.Duration(h.RequestDelayMS) * time.Millisecond
}

// Snapshot holds snapshot file configuration for the answer service.
type Snapshot struct {
	Path         string `mapstructure:"path"`
	Watch        bool   `mapstructure:"watch"`
	FetchOnStart bool   `mapstructure:"fetch_on_start"` // download latest.json from storage before loading
}

// Discord holds chat platform credentials.
type Discord struct {
	Token string `mapstructure:"token"`
}

// LLM holds completion API configuration.
type LLM struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// Answer holds prompt and reply configuration.
type Answer struct {
	SystemPrompt      string        `mapstructure:"system_prompt"`
	MaxContextPages   int           `mapstructure:"max_context_pages"`
	MaxPageChars      int           `mapstructure:"max_page_chars"`
	MaxPromptChars    int           `mapstructure:"max_prompt_chars"`
	FallbackReply     string        `mapstructure:"fallback_reply"`
	CompletionTimeout time.Duration `mapstructure:"completion_timeout"`
}

// Bot holds message trigger and dispatch configuration.
type Bot struct {
	RespondToDirect   bool          `mapstructure:"respond_to_direct"`
	RespondToMentions bool          `mapstructure:"respond_to_mentions"`
	Prefix            string        `mapstructure:"prefix"`         // questions starting with this are answered anywhere
	CommandPrefix     string        `mapstructure:"command_prefix"` // wikihelp, wikistats
	MaxConcurrent     int64         `mapstructure:"max_concurrent"`
	TypingRefresh     time.Duration `mapstructure:"typing_refresh"`
}

// Schedule holds the in-process refresh schedule.
type Schedule struct {
	DailyAt string `mapstructure:"daily_at"` // HH:MM local time, empty disables
}

// Storage holds S3/MinIO storage configuration.
type Storage struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// Elasticsearch holds ES connection configuration.
type Elasticsearch struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// MCP holds MCP server configuration.
type MCP struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// HTTP holds the optional HTTP API configuration.
type HTTP struct {
	Addr string `mapstructure:"addr"` // empty disables the server
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Harvester: Harvester{
			OutputPath:      "wiki.json",
			RequestDelayMS:  500,
			MaxRetries:      3,
			RetryBaseDelay:  time.Second,
			Concurrency:     2,
			Timeout:         30 * time.Second,
			UserAgent:       "wikibot/1.0",
			MinContentChars: 50,
		},
		Snapshot: Snapshot{
			Path: "wiki.json",
		},
		LLM: LLM{
			Model:       "gpt-3.5-turbo",
			MaxTokens:   300,
			Temperature: 0.7,
			Timeout:     60 * time.Second,
			MaxRetries:  2,
		},
		Answer: Answer{
			MaxContextPages:   2,
			MaxPageChars:      2000,
			MaxPromptChars:    6000,
			CompletionTimeout: 90 * time.Second,
		},
		Bot: Bot{
			RespondToDirect:   true,
			RespondToMentions: true,
			CommandPrefix:     "!",
			MaxConcurrent:     4,
			TypingRefresh:     8 * time.Second,
		},
		Schedule: Schedule{
			DailyAt: "02:00",
		},
		Storage: Storage{
			Endpoint:        "localhost:9002",
			Bucket:          "wikibot",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
		},
		Elasticsearch: Elasticsearch{
			Addresses: []string{"http://localhost:9200"},
			Index:     "wikibot-pages",
		},
		MCP: MCP{
			Name:    "wikibot",
			Version: "1.0.0",
		},
	}
}

// envKeys are the nested keys that can be overridden from the environment.
var envKeys = []string{
	"harvester.base_url",
	"harvester.output_path",
	"harvester.request_delay_ms",
	"harvester.max_retries",
	"harvester.concurrency",
	"harvester.timeout",
	"harvester.user_agent",
	"snapshot.path",
	"snapshot.watch",
	"snapshot.fetch_on_start",
	"discord.token",
	"llm.api_key",
	"llm.base_url",
	"llm.model",
	"llm.max_tokens",
	"llm.temperature",
	"answer.system_prompt",
	"answer.max_context_pages",
	"answer.max_prompt_chars",
	"answer.fallback_reply",
	"bot.prefix",
	"bot.command_prefix",
	"schedule.daily_at",
	"storage.enabled",
	"storage.endpoint",
	"storage.bucket",
	"storage.access_key_id",
	"storage.secret_access_key",
	"storage.use_ssl",
	"elasticsearch.enabled",
	"elasticsearch.addresses",
	"elasticsearch.index",
	"elasticsearch.username",
	"elasticsearch.password",
	"http.addr",
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load merges Defaults, the config file and WIKIBOT_* environment variables.
// When cfgFile is empty, config.yaml is looked up in ./config, /etc/wikibot
// and the working directory; a missing file is not an error.
func Load(v *viper.Viper, cfgFile string) (Config, error) {
	cfg := Defaults()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/wikibot")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range envKeys {
		if err := v.BindEnv(key, EnvName(key)); err != nil {
			return cfg, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return cfg, &ConfigError{Problems: []string{fmt.Sprintf("config file: %v", err)}}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, &ConfigError{Problems: []string{fmt.Sprintf("failed to parse config: %v", err)}}
	}

	// Comma-separated list from the environment.
	if addrs := os.Getenv(EnvName("elasticsearch.addresses")); addrs != "" {
		cfg.Elasticsearch.Addresses = strings.Split(addrs, ",")
	}

	return cfg, nil
}

// ConfigError lists every problem found in a configuration.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

type checker struct {
	problems []string
}

func (c *checker) check(ok bool, format string, args ...any) {
	if !ok {
		c.problems = append(c.problems, fmt.Sprintf(format, args...))
	}
}

func (c *checker) err() error {
	if len(c.problems) == 0 {
		return nil
	}
	return &ConfigError{Problems: c.problems}
}

// ValidateHarvest checks what a harvest run needs.
func (c Config) ValidateHarvest() error {
	var ch checker
	c.checkHarvester(&ch)
	return ch.err()
}

// ValidateServe checks what the answer service needs before it may start.
func (c Config) ValidateServe() error {
	var ch checker
	ch.check(c.Snapshot.Path != "", "snapshot.path is required")
	ch.check(c.Discord.Token != "", "discord.token is required (%s)", EnvName("discord.token"))
	ch.check(c.LLM.APIKey != "", "llm.api_key is required (%s)", EnvName("llm.api_key"))
	ch.check(c.LLM.Model != "", "llm.model is required")
	ch.check(c.LLM.MaxTokens >= 0, "llm.max_tokens must not be negative")
	ch.check(c.Answer.MaxContextPages >= 0, "answer.max_context_pages must not be negative")
	ch.check(c.Answer.MaxPromptChars >= 0, "answer.max_prompt_chars must not be negative")
	ch.check(c.Answer.MaxPageChars >= 0, "answer.max_page_chars must not be negative")
	ch.check(c.Bot.RespondToDirect || c.Bot.RespondToMentions || c.Bot.Prefix != "",
		"bot: at least one of respond_to_direct, respond_to_mentions or prefix must be set")
	if c.Schedule.DailyAt != "" && c.Harvester.BaseURL != "" {
		_, err := time.Parse("15:04", c.Schedule.DailyAt)
		ch.check(err == nil, "schedule.daily_at must be HH:MM, got %q", c.Schedule.DailyAt)
		c.checkHarvester(&ch)
	}
	if c.Snapshot.FetchOnStart {
		ch.check(c.Storage.Enabled, "snapshot.fetch_on_start needs storage.enabled")
	}
	c.checkStorage(&ch)
	return ch.err()
}

func (c Config) checkHarvester(ch *checker) {
	u, err := url.Parse(c.Harvester.BaseURL)
	ch.check(err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "",
		"harvester.base_url must be an absolute http(s) URL, got %q", c.Harvester.BaseURL)
	ch.check(c.Harvester.OutputPath != "", "harvester.output_path is required")
	ch.check(c.Harvester.RequestDelayMS >= 0, "harvester.request_delay_ms must not be negative")
	ch.check(c.Harvester.MaxRetries >= 0, "harvester.max_retries must not be negative")
}

func (c Config) checkStorage(ch *checker) {
	if !c.Storage.Enabled {
		return
	}
	ch.check(c.Storage.Endpoint != "", "storage.endpoint is required when storage is enabled")
	ch.check(c.Storage.Bucket != "", "storage.bucket is required when storage is enabled")
}
