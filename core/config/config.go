package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram transport settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file"`
	// Rotation settings for the file sink; zero values keep lumberjack defaults.
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// ResponderConfig selects and tunes the text generation backend.
type ResponderConfig struct {
	Kind           string   `yaml:"kind" envconfig:"RESPONDER_KIND"`
	BaseURL        string   `yaml:"base_url" envconfig:"RESPONDER_BASE_URL"`
	APIKey         string   `yaml:"api_key" envconfig:"DEEPSEEK_API_KEY"`
	Model          string   `yaml:"model" envconfig:"RESPONDER_MODEL"`
	SystemPrompt   string   `yaml:"system_prompt"`
	MaxTokens      int      `yaml:"max_tokens"`
	// Temperature is nil when unset; an explicit 0 is kept.
	Temperature    *float64 `yaml:"temperature"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// SamplingTemperature returns the configured temperature or the default when unset.
func (rc ResponderConfig) SamplingTemperature() float64 {
	if rc.Temperature == nil {
		return DefaultTemperature
	}
	return *rc.Temperature
}

// SessionConfig configures where conversation sessions live between turns.
type SessionConfig struct {
	Backend       string `yaml:"backend" envconfig:"SESSION_BACKEND"`
	RedisAddr     string `yaml:"redis_addr" envconfig:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" envconfig:"REDIS_DB"`
	TTLSeconds    int    `yaml:"ttl_seconds"`
	// HistoryWindow bounds how many history lines are folded into prompts. An explicit 0 disables
	// history; unset means DefaultHistoryWindow.
	HistoryWindow *int `yaml:"history_window"`
}

// Window returns the history window, DefaultHistoryWindow when unset.
func (sc SessionConfig) Window() int {
	if sc.HistoryWindow == nil {
		return DefaultHistoryWindow
	}
	return *sc.HistoryWindow
}

// HTTPConfig configures the JSON API and metrics listener. Empty Listen disables it.
type HTTPConfig struct {
	Listen string `yaml:"listen" envconfig:"HTTP_LISTEN"`
}

// BotConfig names the bot row this process serves.
type BotConfig struct {
	Name        string `yaml:"name" envconfig:"BOT_NAME"`
	Description string `yaml:"description"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// ResponderStub selects the offline keyword responder.
	ResponderStub = "stub"
	// ResponderLive selects the chat-completions responder.
	ResponderLive = "live"
)

const (
	// SessionMemory keeps sessions in process memory.
	SessionMemory = "memory"
	// SessionRedis keeps sessions in Redis.
	SessionRedis = "redis"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

// Responder defaults mirror the upstream deployment the bots were tuned against.
const (
	DefaultResponderBaseURL = "https://api.deepseek.com"
	DefaultResponderModel   = "deepseek-chat"
	DefaultSystemPrompt     = "Ты полезный ассистент. Отвечай на русском языке."
	DefaultMaxTokens        = 500
	DefaultTemperature      = 0.7
	DefaultResponderTimeout = 30
	DefaultHistoryWindow    = 10
	DefaultBotName          = "scenariobot"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Responder ResponderConfig `yaml:"responder"`
	Session   SessionConfig   `yaml:"session"`
	HTTP      HTTPConfig      `yaml:"http"`
	Bot       BotConfig       `yaml:"bot"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode fills target from the YAML file at path and then from the environment.
// Applications embedding Config use it to load their own wrapper struct.
func Decode(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", target); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	if err := NormalizeResponder(&cfg.Responder); err != nil {
		return err
	}
	if err := normalizeSession(&cfg.Session); err != nil {
		return err
	}

	cfg.HTTP.Listen = strings.TrimSpace(cfg.HTTP.Listen)
	cfg.Bot.Name = strings.TrimSpace(cfg.Bot.Name)
	if cfg.Bot.Name == "" {
		cfg.Bot.Name = DefaultBotName
	}
	return nil
}

// NormalizeResponder validates the responder section and fills defaults.
// A missing API key is not an error: the live responder degrades to its apology reply.
func NormalizeResponder(rc *ResponderConfig) error {
	kind := strings.ToLower(strings.TrimSpace(rc.Kind))
	if kind == "" {
		kind = ResponderStub
	}
	switch kind {
	case ResponderStub, ResponderLive:
	case "deepseek", "openai": // accept provider names
		kind = ResponderLive
	default:
		return fmt.Errorf("invalid responder.kind %q; allowed: stub, live", rc.Kind)
	}
	rc.Kind = kind

	rc.BaseURL = strings.TrimRight(strings.TrimSpace(rc.BaseURL), "/")
	if rc.BaseURL == "" {
		rc.BaseURL = DefaultResponderBaseURL
	}
	if strings.TrimSpace(rc.Model) == "" {
		rc.Model = DefaultResponderModel
	}
	if strings.TrimSpace(rc.SystemPrompt) == "" {
		rc.SystemPrompt = DefaultSystemPrompt
	}
	if rc.MaxTokens < 0 {
		return fmt.Errorf("responder.max_tokens must be >= 0")
	}
	if rc.MaxTokens == 0 {
		rc.MaxTokens = DefaultMaxTokens
	}
	if rc.Temperature == nil {
		t := DefaultTemperature
		rc.Temperature = &t
	}
	if *rc.Temperature < 0 || *rc.Temperature > 2 {
		return fmt.Errorf("responder.temperature must be within [0, 2]")
	}
	if rc.TimeoutSeconds < 0 {
		return fmt.Errorf("responder.timeout_seconds must be >= 0")
	}
	if rc.TimeoutSeconds == 0 {
		rc.TimeoutSeconds = DefaultResponderTimeout
	}
	return nil
}

func normalizeSession(sc *SessionConfig) error {
	backend := strings.ToLower(strings.TrimSpace(sc.Backend))
	if backend == "" {
		backend = SessionMemory
	}
	switch backend {
	case SessionMemory:
	case SessionRedis:
		if strings.TrimSpace(sc.RedisAddr) == "" {
			return fmt.Errorf("session.redis_addr is required when session.backend is 'redis'")
		}
	default:
		return fmt.Errorf("invalid session.backend %q; allowed: memory, redis", sc.Backend)
	}
	sc.Backend = backend
	if sc.TTLSeconds < 0 {
		return fmt.Errorf("session.ttl_seconds must be >= 0")
	}
	if sc.HistoryWindow == nil {
		w := DefaultHistoryWindow
		sc.HistoryWindow = &w
	}
	if *sc.HistoryWindow < 0 {
		return fmt.Errorf("session.history_window must be >= 0")
	}
	return nil
}
