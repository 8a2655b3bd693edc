package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	ConnpassAPIKey string `yaml:"connpass_api_key"`
	Prefecture     string `yaml:"prefecture"`
	MonthsAhead    int    `yaml:"months_ahead"`
	FetchTimeout   int    `yaml:"fetch_timeout_secs"`

	Keywords         []string `yaml:"keywords"`
	ExcludeKeywords  []string `yaml:"exclude_keywords"`
	InterestPrompt   string   `yaml:"interest_prompt"`
	PopularThreshold int      `yaml:"popular_threshold"`

	LLMEnabled  bool   `yaml:"llm_enabled"`
	LLMProvider string `yaml:"llm_provider"`
	LLMAPIKey   string `yaml:"llm_api_key"`
	LLMModel    string `yaml:"llm_model"`

	CalendarEnabled bool   `yaml:"calendar_enabled"`
	CalendarID      string `yaml:"calendar_id"`
	CredentialsPath string `yaml:"credentials_path"`
	TokenPath       string `yaml:"token_path"`
	SpeakerColorID  string `yaml:"speaker_color_id"`
	PopularColorID  string `yaml:"popular_color_id"`

	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`

	Schedule    string `yaml:"schedule"`
	Timezone    string `yaml:"timezone"`
	MetricsAddr string `yaml:"metrics_addr"`
	DBPath      string `yaml:"db_path"`
	LogLevel    string `yaml:"log_level"`
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// GetConfigPath returns the config file path from environment or default.
func GetConfigPath() string {
	if path := os.Getenv("EVENTSYNC_CONFIG"); path != "" {
		return path
	}
	return "./config.yaml"
}

func applyDefaults(cfg *Config) {
	if cfg.MonthsAhead == 0 {
		cfg.MonthsAhead = 2
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 30
	}
	if cfg.PopularThreshold == 0 {
		cfg.PopularThreshold = 50
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "gemini"
	}
	if cfg.TokenPath == "" {
		cfg.TokenPath = "./token.json"
	}
	if cfg.CredentialsPath == "" {
		cfg.CredentialsPath = "./credentials.json"
	}
	if cfg.SpeakerColorID == "" {
		cfg.SpeakerColorID = "11"
	}
	if cfg.PopularColorID == "" {
		cfg.PopularColorID = "5"
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 */6 * * *"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Asia/Tokyo"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./eventsync.db"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func applyEnvironmentOverrides(cfg *Config) {
	if dbPath := os.Getenv("EVENTSYNC_DB"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if key := os.Getenv("CONNPASS_API_KEY"); key != "" {
		cfg.ConnpassAPIKey = key
	}
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		cfg.LLMAPIKey = key
	}
}

func validate(cfg *Config) error {
	if cfg.ConnpassAPIKey == "" {
		return fmt.Errorf("connpass_api_key is required")
	}
	if cfg.LLMEnabled && cfg.LLMAPIKey == "" {
		return fmt.Errorf("llm_api_key is required when llm_enabled is true")
	}
	if cfg.CalendarEnabled && cfg.CalendarID == "" {
		return fmt.Errorf("calendar_id is required when calendar_enabled is true")
	}
	if cfg.MonthsAhead < 1 || cfg.MonthsAhead > 12 {
		return fmt.Errorf("months_ahead must be between 1 and 12, got %d", cfg.MonthsAhead)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	return nil
}

// Months returns the year-month strings (YYYYMM) for the query window,
// starting at the current month.
func (cfg *Config) Months(now time.Time) []string {
	if loc, err := time.LoadLocation(cfg.Timezone); err == nil {
		now = now.In(loc)
	}

	months := make([]string, 0, cfg.MonthsAhead)
	for i := 0; i < cfg.MonthsAhead; i++ {
		months = append(months, now.AddDate(0, i, 0).Format("200601"))
	}
	return months
}
