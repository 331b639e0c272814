package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
)

type Config struct {
	TelegramToken string  `env:"TELEGRAM_TOKEN,required,notEmpty"`
	AdminIDs      []int64 `env:"ADMIN_IDS" envSeparator:","`

	APIBaseURL string        `env:"API_BASE_URL,required,notEmpty"`
	APITimeout time.Duration `env:"API_TIMEOUT" envDefault:"30s"`

	SessionBackend     string        `env:"SESSION_BACKEND" envDefault:"memory"`
	SessionMaxIdle     time.Duration `env:"SESSION_MAX_IDLE" envDefault:"24h"`
	SessionSweepPeriod time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1h"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	SubscriptionBackend string `env:"SUBSCRIPTION_BACKEND" envDefault:"memory"`
	DBHost              string `env:"DB_HOST"`
	DBPort              int    `env:"DB_PORT" envDefault:"5432"`
	DBUser              string `env:"DB_USER"`
	DBPassword          string `env:"DB_PASSWORD"`
	DBName              string `env:"DB_NAME"`

	WebhookHost string `env:"WEBHOOK_HOST" envDefault:"0.0.0.0"`
	WebhookPort int    `env:"WEBHOOK_PORT" envDefault:"8081"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.SessionBackend == "redis" && cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required when SESSION_BACKEND=redis")
	}
	if cfg.SubscriptionBackend == "postgres" && cfg.DBHost == "" {
		return nil, fmt.Errorf("DB_HOST is required when SUBSCRIPTION_BACKEND=postgres")
	}

	return &cfg, nil
}
