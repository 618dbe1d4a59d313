package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config keeps runtime settings for the bot and the HTTP API.
type Config struct {
	TelegramToken      string        `yaml:"telegram_token"`
	TelegramWebhookURL string        `yaml:"telegram_webhook_url"`
	TelegramDebug      bool          `yaml:"telegram_debug"`
	DatabaseURL        string        `yaml:"database_url"`
	EncryptionKey      string        `yaml:"encryption_key"`
	HTTPAddr           string        `yaml:"http_addr"`
	DefaultUserID      uint          `yaml:"default_user_id"`
	DefaultCurrency    string        `yaml:"default_currency"`
	AllowedChatID      int64         `yaml:"allowed_chat_id"`
	AllowedUserIDs     []int64       `yaml:"allowed_user_ids"`
	PendingStorePath   string        `yaml:"pending_store_path"`
	ReportInterval     time.Duration `yaml:"-"`
	ReportIntervalHrs  int           `yaml:"report_interval_hours"`
	ReportTime         string        `yaml:"report_time"`
	Verbose            bool          `yaml:"verbose"`
	JSONLogs           bool          `yaml:"json_logs"`

	AI AIConfig `yaml:"ai"`
	S3 S3Config `yaml:"s3"`
}

// AIConfig selects and configures the extraction backend.
type AIConfig struct {
	Provider        string `yaml:"provider"`
	GroqAPIKey      string `yaml:"groq_api_key"`
	GroqBaseURL     string `yaml:"groq_base_url"`
	GroqTextModel   string `yaml:"groq_text_model"`
	GroqVisionModel string `yaml:"groq_vision_model"`
	GroqSpeechModel string `yaml:"groq_whisper_model"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"`
}

// S3Config enables archiving of receipt media when Bucket is set.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

const (
	ProviderGroq      = "groq"
	ProviderAnthropic = "anthropic"
)

// Load reads an optional YAML file named by CONFIG_FILE, then lets environment
// variables override it and fills the remaining defaults.
func Load() (Config, error) {
	var cfg Config
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)

	if cfg.EncryptionKey == "" {
		return cfg, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	switch cfg.AI.Provider {
	case ProviderGroq, ProviderAnthropic:
	default:
		return cfg, fmt.Errorf("unknown AI_PROVIDER %q", cfg.AI.Provider)
	}
	if cfg.ReportTime != "" {
		if _, err := buildDailyTime(cfg.ReportTime); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.TelegramToken, "TELEGRAM_TOKEN")
	setString(&cfg.TelegramWebhookURL, "TELEGRAM_WEBHOOK_URL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.EncryptionKey, "ENCRYPTION_KEY")
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.DefaultCurrency, "DEFAULT_CURRENCY")
	setString(&cfg.PendingStorePath, "PENDING_STORE_PATH")
	setString(&cfg.ReportTime, "REPORT_TIME")
	setString(&cfg.AI.Provider, "AI_PROVIDER")
	setString(&cfg.AI.GroqAPIKey, "GROQ_API_KEY")
	setString(&cfg.AI.GroqBaseURL, "GROQ_BASE_URL")
	setString(&cfg.AI.GroqTextModel, "GROQ_TEXT_MODEL")
	setString(&cfg.AI.GroqVisionModel, "GROQ_VISION_MODEL")
	setString(&cfg.AI.GroqSpeechModel, "GROQ_WHISPER_MODEL")
	setString(&cfg.AI.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.AI.AnthropicModel, "ANTHROPIC_MODEL")
	setString(&cfg.S3.Bucket, "S3_BUCKET")
	setString(&cfg.S3.Region, "S3_REGION")
	setString(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setString(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setString(&cfg.S3.SecretKey, "S3_SECRET_KEY")

	setBool(&cfg.TelegramDebug, "TELEGRAM_DEBUG")
	setBool(&cfg.Verbose, "VERBOSE")
	setBool(&cfg.JSONLogs, "JSON_LOGS")

	if raw := env("DEFAULT_USER_ID"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("DEFAULT_USER_ID: %w", err)
		}
		cfg.DefaultUserID = uint(id)
	}
	if raw := env("ALLOWED_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("ALLOWED_CHAT_ID: %w", err)
		}
		cfg.AllowedChatID = id
	}
	if raw := env("ALLOWED_USER_IDS"); raw != "" {
		ids, err := parseIDList(raw)
		if err != nil {
			return fmt.Errorf("ALLOWED_USER_IDS: %w", err)
		}
		cfg.AllowedUserIDs = ids
	}
	if raw := env("REPORT_INTERVAL_HOURS"); raw != "" {
		cfg.ReportInterval = parseInterval(raw)
	} else if cfg.ReportIntervalHrs > 0 {
		cfg.ReportInterval = time.Duration(cfg.ReportIntervalHrs) * time.Hour
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "expense_bot.db"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "MDL"
	}
	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = ProviderGroq
	}
	if cfg.AI.GroqBaseURL == "" {
		cfg.AI.GroqBaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.AI.GroqTextModel == "" {
		cfg.AI.GroqTextModel = "llama-3.3-70b-versatile"
	}
	if cfg.AI.GroqVisionModel == "" {
		cfg.AI.GroqVisionModel = "meta-llama/llama-4-scout-17b-16e-instruct"
	}
	if cfg.AI.GroqSpeechModel == "" {
		cfg.AI.GroqSpeechModel = "whisper-large-v3"
	}
	if cfg.AI.AnthropicModel == "" {
		cfg.AI.AnthropicModel = "claude-sonnet-4-5"
	}
	if cfg.S3.Region == "" {
		cfg.S3.Region = "us-east-1"
	}
}

// IsUserAllowed reports whether a Telegram user may talk to the bot.
// An empty allow list admits everyone.
func (c Config) IsUserAllowed(telegramID int64) bool {
	if len(c.AllowedUserIDs) == 0 {
		return true
	}
	for _, id := range c.AllowedUserIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

// IsChatAllowed restricts group chats to AllowedChatID when it is set.
// Private chats are governed by the user allow list only.
func (c Config) IsChatAllowed(chatID int64, private bool) bool {
	if private || c.AllowedChatID == 0 {
		return true
	}
	return chatID == c.AllowedChatID
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setString(dst *string, key string) {
	if v := env(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := env(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			*dst = b
		}
	}
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}

func buildDailyTime(raw string) (time.Time, error) {
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return t, fmt.Errorf("REPORT_TIME %q, expected HH:MM", raw)
	}
	return t, nil
}
