package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingConfig marks configuration that prevents a component from starting.
var ErrMissingConfig = errors.New("missing configuration")

type Config struct {
	Port        string `mapstructure:"PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	SchemaPath  string `mapstructure:"SCHEMA_PATH"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`

	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	StripeProPriceID    string `mapstructure:"STRIPE_PRO_PRICE_ID"`
	StripeAPIURL        string `mapstructure:"STRIPE_API_URL"`
	FrontendURL         string `mapstructure:"FRONTEND_URL"`

	SendGridAPIKey string `mapstructure:"SENDGRID_API_KEY"`
	EmailFrom      string `mapstructure:"EMAIL_FROM"`
	EmailFromName  string `mapstructure:"EMAIL_FROM_NAME"`
	EmailWorkers   int    `mapstructure:"EMAIL_WORKERS"`

	SlackWebhookURL string `mapstructure:"SLACK_WEBHOOK_URL"`

	LogLevel           string `mapstructure:"LOG_LEVEL"`
	LogFormat          string `mapstructure:"LOG_FORMAT"`
	LogRetentionDays   int    `mapstructure:"LOG_RETENTION_DAYS"`
	LogCleanupSchedule string `mapstructure:"LOG_CLEANUP_SCHEDULE"`

	StoreTimeout    time.Duration `mapstructure:"STORE_TIMEOUT"`
	ProviderTimeout time.Duration `mapstructure:"PROVIDER_TIMEOUT"`

	Features Features `mapstructure:"-"`
}

var keys = []string{
	"PORT", "DATABASE_URL", "SCHEMA_PATH", "JWT_SECRET",
	"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "STRIPE_PRO_PRICE_ID", "STRIPE_API_URL", "FRONTEND_URL",
	"SENDGRID_API_KEY", "EMAIL_FROM", "EMAIL_FROM_NAME", "EMAIL_WORKERS",
	"SLACK_WEBHOOK_URL",
	"LOG_LEVEL", "LOG_FORMAT", "LOG_RETENTION_DAYS", "LOG_CLEANUP_SCHEDULE",
	"STORE_TIMEOUT", "PROVIDER_TIMEOUT",
	"AUTH_ENABLED", "BILLING_ENABLED", "EMAIL_ENABLED",
}

// Load reads configuration from the environment, after merging an optional
// .env file from the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return loadFrom(viper.New())
}

func loadFrom(v *viper.Viper) (*Config, error) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("SCHEMA_PATH", "schema.sql")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("EMAIL_FROM", "noreply@example.com")
	v.SetDefault("EMAIL_FROM_NAME", "Media Platform")
	v.SetDefault("EMAIL_WORKERS", 2)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_RETENTION_DAYS", 90)
	v.SetDefault("LOG_CLEANUP_SCHEDULE", "0 3 * * *")
	v.SetDefault("STORE_TIMEOUT", "5s")
	v.SetDefault("PROVIDER_TIMEOUT", "10s")
	v.SetDefault("AUTH_ENABLED", true)
	v.SetDefault("BILLING_ENABLED", true)
	v.SetDefault("EMAIL_ENABLED", false)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Features = featuresFrom(v)
	return &cfg, nil
}

// Validate reports settings the process cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Features.AuthEnabled && c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.Features.BillingEnabled {
		if c.StripeSecretKey == "" {
			missing = append(missing, "STRIPE_SECRET_KEY")
		}
		if c.StripeWebhookSecret == "" {
			missing = append(missing, "STRIPE_WEBHOOK_SECRET")
		}
	}
	if c.Features.EmailEnabled && c.SendGridAPIKey == "" {
		missing = append(missing, "SENDGRID_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}
	if c.StoreTimeout <= 0 || c.ProviderTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrMissingConfig)
	}
	return nil
}
