package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken string `envconfig:"BOT_TOKEN" required:"true"`

	DatabaseDSN string `envconfig:"DATABASE_DSN" required:"true"`
	DBPoolMin   int    `envconfig:"DB_POOL_MIN" default:"1"`
	DBPoolMax   int    `envconfig:"DB_POOL_MAX" default:"5"`

	DefaultTZ       string        `envconfig:"DEFAULT_TZ" default:"Europe/Moscow"`
	RemindBeforeMin int           `envconfig:"REMIND_BEFORE_MINUTES" default:"10"`
	SnoozeMinutes   int           `envconfig:"SNOOZE_MINUTES" default:"15"`
	MaxReminders    int           `envconfig:"MAX_REMINDERS" default:"5"` // 0 = no cap
	LowStockDays    int           `envconfig:"LOW_STOCK_DAYS" default:"3"`
	SummaryHour     int           `envconfig:"SUMMARY_HOUR" default:"21"`
	PollInterval    time.Duration `envconfig:"POLL_INTERVAL" default:"1m"`

	// Operational alerts go to this chat; zero disables alerting.
	AdminChatID int64 `envconfig:"ADMIN_CHAT_ID" default:"0"`

	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"` // healthz + metrics
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`  // debug|info|warn|error
}

// Load reads an optional .env file and then environment variables into Config.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
