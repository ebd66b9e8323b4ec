package myconfig

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Port               string `env:"PORT" envDefault:"8080"`
	GoogleCloudProject string `env:"GOOGLE_CLOUD_PROJECT"`
	LogLevel           string `env:"LOG_LEVEL" envDefault:"info"`
	BaseURL            string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	ClientURL          string `env:"CLIENT_URL" envDefault:"http://localhost:3000"`
	DefaultCurrency    string `env:"DEFAULT_CURRENCY" envDefault:"usd"`
	RabbitMQURL        string `env:"RABBITMQ_URL"`

	Stripe    Stripe    `envPrefix:"STRIPE_"`
	Journal   Journal   `envPrefix:"JOURNAL_"`
	RateLimit RateLimit `envPrefix:"CHECKOUT_RATE_LIMIT_"`
}

type Stripe struct {
	SecretKey         string `env:"SECRET_KEY"`
	WebhookSecret     string `env:"WEBHOOK_SECRET"`
	MaxNetworkRetries int64  `env:"MAX_NETWORK_RETRIES" envDefault:"2"`
}

type Journal struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"`
	DSN    string `env:"DSN" envDefault:"webhook_journal.db"`
}

type RateLimit struct {
	PerMinute      int           `env:"PER_MINUTE" envDefault:"10"`
	Burst          int           `env:"BURST" envDefault:"10"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" envDefault:"10m"`
	TrustedProxies int           `env:"TRUSTED_PROXIES" envDefault:"0"`
}

func Load() (Config, error) {
	cfg := Config{}
	err := env.Parse(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("error parsing environment: %s", err)
	}

	err = cfg.validate()
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.Journal.Driver != "sqlite" && c.Journal.Driver != "mysql" {
		return fmt.Errorf("unsupported journal driver %q", c.Journal.Driver)
	}
	if c.RateLimit.PerMinute <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("checkout rate limit must be positive")
	}
	if c.RateLimit.TrustedProxies < 0 {
		return fmt.Errorf("trusted proxies must not be negative")
	}
	return nil
}
