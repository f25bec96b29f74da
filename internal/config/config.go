package config

import (
	"fmt"
	"log"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

type Config struct {
	TelegramBotToken string  `env:"TELEGRAM_BOT_TOKEN"`
	Operators        []int64 `env:"OPERATORS" envSeparator:":"`

	// Tracker store
	TrackerStoreBackend string `env:"TRACKER_STORE_BACKEND" envDefault:"file"`
	TrackerStorePath    string `env:"TRACKER_STORE_PATH" envDefault:"data/rasa_conversations.json"`
	OperatorsFilePath   string `env:"OPERATORS_FILE_PATH" envDefault:"data/operators.json"`

	// LLM settings
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string      `env:"OPENAI_BASE_URL"`
	OpenAIModel      string      `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Dialogue
	SystemPromptPath string   `env:"SYSTEM_PROMPT_PATH" envDefault:"prompts/system_prompt.txt"`
	Intents          []string `env:"INTENTS" envSeparator:":" envDefault:"greet:goodbye:check_order_status:return_item:return_policy:contact_support:request_human:out_of_scope"`
	NLUThreshold     float64  `env:"NLU_THRESHOLD" envDefault:"0.6"`
	Workers          int      `env:"WORKERS" envDefault:"8"`

	// Reports
	ReportCron string `env:"REPORT_CRON" envDefault:"0 21 * * *"`

	// Admin HTTP API, disabled when empty
	AdminHTTPAddr string `env:"ADMIN_HTTP_ADDR"`

	// Handoff e-mail via Gmail, disabled unless credentials and recipient are set
	GmailCredentialsPath string `env:"GMAIL_CREDENTIALS_JSON_PATH"`
	GmailRefreshToken    string `env:"GMAIL_REFRESH_TOKEN"`
	HandoffEmailTo       string `env:"HANDOFF_EMAIL_TO"`
	HandoffEmailFrom     string `env:"HANDOFF_EMAIL_FROM" envDefault:"me"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.NLUThreshold < 0 || cfg.NLUThreshold > 1 {
		return nil, fmt.Errorf("NLU_THRESHOLD must be within [0,1], got %v", cfg.NLUThreshold)
	}
	return cfg, nil
}

func New() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

// GmailEnabled reports whether handoff tickets should also be e-mailed.
func (c *Config) GmailEnabled() bool {
	return c.GmailCredentialsPath != "" && c.GmailRefreshToken != "" && c.HandoffEmailTo != ""
}
