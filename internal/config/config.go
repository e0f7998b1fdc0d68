// Package config содержит логику чтения конфигурации процессов витрины.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// DefaultWebhookCIDRs — диапазоны адресов, с которых ЮKassa присылает уведомления.
var DefaultWebhookCIDRs = []string{
	"185.71.76.0/27",
	"185.71.77.0/27",
	"77.75.153.0/25",
	"77.75.156.11",
	"77.75.156.35",
	"77.75.154.128/25",
	"2a02:5180::/32",
}

// RedisConfig описывает подключение к шине уведомлений.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	Password string `env:"REDIS_PASSWORD"`
	Channel  string `env:"NOTIFICATION_CHANNEL" envDefault:"notifications"`
}

// Config содержит параметры конфигурации HTTP API.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	Redis       RedisConfig

	YooKassaShopID    string        `env:"YOOKASSA_SHOP_ID"`
	YooKassaSecretKey string        `env:"YOOKASSA_SECRET_KEY"`
	YooKassaAPIURL    string        `env:"YOOKASSA_API_URL" envDefault:"https://api.yookassa.ru/v3"`
	GatewayTimeout    time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`
	NotifyTimeout     time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"3s"`

	JWTSecretKey string `env:"JWT_SECRET_KEY"`

	WebhookAllowedCIDRs []string `env:"WEBHOOK_ALLOWED_CIDRS" envSeparator:","`
	AllowProxy          bool     `env:"ALLOW_PROXY" envDefault:"false"`
	AllowedProxyCIDRs   []string `env:"ALLOWED_PROXY_CIDRS" envSeparator:","`
}

// Parse считывает конфигурацию API из флагов командной строки и переменных окружения.
// Значения из окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRedisAddr := cfg.Redis.Addr

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.Redis.Addr, "r", "localhost:6379", "redis address for the notification bus")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRedisAddr != "" {
		cfg.Redis.Addr = envRedisAddr
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if len(cfg.WebhookAllowedCIDRs) == 0 {
		cfg.WebhookAllowedCIDRs = append([]string(nil), DefaultWebhookCIDRs...)
	}

	return cfg, nil
}

// NotifierConfig содержит параметры процесса доставки уведомлений в Telegram.
type NotifierConfig struct {
	Redis          RedisConfig
	TelegramToken  string        `env:"TG_API_TOKEN"`
	TelegramAPIURL string        `env:"TG_API_URL" envDefault:"https://api.telegram.org"`
	SendTimeout    time.Duration `env:"SEND_TIMEOUT" envDefault:"5s"`
}

// ParseNotifier считывает конфигурацию процесса уведомлений.
func ParseNotifier() (*NotifierConfig, error) {
	cfg := &NotifierConfig{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRedisAddr := cfg.Redis.Addr
	envToken := cfg.TelegramToken

	flag.StringVar(&cfg.Redis.Addr, "r", "localhost:6379", "redis address for the notification bus")
	flag.StringVar(&cfg.TelegramToken, "t", "", "telegram bot token")

	flag.Parse()

	if envRedisAddr != "" {
		cfg.Redis.Addr = envRedisAddr
	}
	if envToken != "" {
		cfg.TelegramToken = envToken
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	return cfg, nil
}
