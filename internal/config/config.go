package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	PagerDuty PagerDutyConfig
	DB        DBConfig
	API       APIConfig
	Analytics AnalyticsConfig
	Kafka     KafkaConfig
	Telegram  TelegramConfig
	Email     EmailConfig
	Logging   LoggingConfig
}

type PagerDutyConfig struct {
	APIKey      string
	BaseURL     string
	PageLimit   int
	HTTPTimeout time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	MaxDelay    time.Duration
}

type DBConfig struct {
	DSN string
}

type APIConfig struct {
	Port     string
	BasePath string
}

type AnalyticsConfig struct {
	LookbackDays  int
	LookaheadDays int
}

type KafkaConfig struct {
	Broker  string
	Topic   string
	GroupID string
}

type TelegramConfig struct {
	BotToken string
	ChatIDs  []int64
}

type EmailConfig struct {
	SMTPServer string
	SMTPPort   int
	Username   string
	Password   string
	Recipient  string
}

type LoggingConfig struct {
	Dir   string
	Level string
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	// PagerDuty settings
	cfg.PagerDuty.APIKey = os.Getenv("PAGERDUTY_API_KEY")
	cfg.PagerDuty.BaseURL = os.Getenv("PAGERDUTY_BASE_URL")
	if n, err := strconv.Atoi(os.Getenv("PAGERDUTY_PAGE_LIMIT")); err == nil {
		cfg.PagerDuty.PageLimit = n
	}
	if d, err := time.ParseDuration(os.Getenv("PAGERDUTY_HTTP_TIMEOUT")); err == nil {
		cfg.PagerDuty.HTTPTimeout = d
	}
	if n, err := strconv.Atoi(os.Getenv("PAGERDUTY_MAX_RETRIES")); err == nil {
		cfg.PagerDuty.MaxRetries = n
	}
	if d, err := time.ParseDuration(os.Getenv("PAGERDUTY_RETRY_DELAY")); err == nil {
		cfg.PagerDuty.RetryDelay = d
	}
	if d, err := time.ParseDuration(os.Getenv("PAGERDUTY_MAX_RETRY_DELAY")); err == nil {
		cfg.PagerDuty.MaxDelay = d
	}

	// Database DSN
	cfg.DB.DSN = os.Getenv("DB_DSN")

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	// Analytics settings
	if n, err := strconv.Atoi(os.Getenv("INACTIVE_LOOKBACK_DAYS")); err == nil {
		cfg.Analytics.LookbackDays = n
	}
	if n, err := strconv.Atoi(os.Getenv("INACTIVE_LOOKAHEAD_DAYS")); err == nil {
		cfg.Analytics.LookaheadDays = n
	}

	// Kafka settings (optional, sync trigger topic)
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	// Telegram settings (optional, run notifications)
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	for _, raw := range strings.Split(os.Getenv("TELEGRAM_CHAT_IDS"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TELEGRAM_CHAT_IDS entry %q: %w", raw, err)
		}
		cfg.Telegram.ChatIDs = append(cfg.Telegram.ChatIDs, id)
	}

	// Email settings (optional, run notifications)
	cfg.Email.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	if p, err := strconv.Atoi(os.Getenv("EMAIL_SMTP_PORT")); err == nil {
		cfg.Email.SMTPPort = p
	}
	cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.Recipient = os.Getenv("EMAIL_RECIPIENT")

	// Logging settings
	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Validate required settings
	missing := []string{}
	if cfg.PagerDuty.APIKey == "" {
		missing = append(missing, "PAGERDUTY_API_KEY")
	}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.PagerDuty.BaseURL == "" {
		cfg.PagerDuty.BaseURL = "https://api.pagerduty.com"
	}
	if cfg.PagerDuty.PageLimit == 0 {
		cfg.PagerDuty.PageLimit = 25
	}
	if cfg.PagerDuty.HTTPTimeout == 0 {
		cfg.PagerDuty.HTTPTimeout = 30 * time.Second
	}
	if cfg.PagerDuty.MaxRetries == 0 {
		cfg.PagerDuty.MaxRetries = 5
	}
	if cfg.PagerDuty.RetryDelay == 0 {
		cfg.PagerDuty.RetryDelay = time.Second
	}
	if cfg.PagerDuty.MaxDelay == 0 {
		cfg.PagerDuty.MaxDelay = 30 * time.Second
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v1"
	}
	if cfg.Analytics.LookbackDays == 0 {
		cfg.Analytics.LookbackDays = 30
	}
	if cfg.Analytics.LookaheadDays == 0 {
		cfg.Analytics.LookaheadDays = 30
	}

	return cfg, nil
}
