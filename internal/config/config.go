package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/factuurly/factuurly/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment   DeploymentConfig   `validate:"required"`
	Server       ServerConfig       `validate:"required"`
	Logging      LoggingConfig      `validate:"required"`
	Postgres     PostgresConfig     `validate:"required"`
	Auth         AuthConfig         `validate:"required"`
	Providers    ProvidersConfig    `validate:"required"`
	Polling      PollingConfig      `validate:"required"`
	Notification NotificationConfig `validate:"required"`
	Cache        CacheConfig
	Sentry       SentryConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type ServerConfig struct {
	Address string `validate:"required"`
	// RedirectBaseURL is where providers send the payer back after checkout
	RedirectBaseURL string `mapstructure:"redirect_base_url"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type AuthConfig struct {
	// APIKey authenticates internal callers (UI, poller status checks)
	APIKey APIKeyConfig `mapstructure:"api_key"`
	// Secret signs and validates bearer tokens
	Secret string
}

type APIKeyConfig struct {
	Header string
	// Keys maps a raw API key to its tenant and user identity
	Keys map[string]APIKeyIdentity
}

type APIKeyIdentity struct {
	TenantID string `mapstructure:"tenant_id"`
	UserID   string `mapstructure:"user_id"`
}

// ProvidersConfig holds per-rail merchant credentials and webhook secrets.
// A rail with an empty credential block is treated as not activated for this
// merchant; creating a payment against it fails with a configuration error.
type ProvidersConfig struct {
	Stripe StripeConfig
	Tikkie TikkieConfig
	Mollie MollieConfig
	PayPal PayPalConfig
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type TikkieConfig struct {
	APIKey        string `mapstructure:"api_key"`
	AppToken      string `mapstructure:"app_token"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	BaseURL       string `mapstructure:"base_url"`
	Sandbox       bool
}

type MollieConfig struct {
	APIKey        string `mapstructure:"api_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	BaseURL       string `mapstructure:"base_url"`
}

type PayPalConfig struct {
	ClientID      string `mapstructure:"client_id"`
	ClientSecret  string `mapstructure:"client_secret"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	BaseURL       string `mapstructure:"base_url"`
}

// PollingConfig tunes the correctness backstop for missed webhooks.
// BurstInterval/BurstAttempts give a short fast cadence right after a payment
// request is created, tapering to Interval afterwards.
type PollingConfig struct {
	Interval      time.Duration `validate:"required"`
	BurstInterval time.Duration `mapstructure:"burst_interval"`
	BurstAttempts int           `mapstructure:"burst_attempts"`
	// MaxConcurrent bounds the provider status calls in flight per cycle
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// RequestTimeout bounds each outbound provider call
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type NotificationConfig struct {
	// CoolDown suppresses repeated paid notifications for the same invoice
	CoolDown time.Duration `mapstructure:"cool_down"`
}

type CacheConfig struct {
	Enabled bool
}

type SentryConfig struct {
	Enabled     bool
	DSN         string
	Environment string
	SampleRate  float64 `mapstructure:"sample_rate"`
}

func NewConfig() (*Configuration, error) {
	// local development: pick up FACTUURLY_* vars from a .env file if present
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/factuurly")

	v.SetEnvPrefix("FACTUURLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", string(types.ModeLocal))
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", string(types.LogLevelInfo))
	v.SetDefault("auth.api_key.header", "x-api-key")
	v.SetDefault("polling.interval", 30*time.Second)
	v.SetDefault("polling.burst_interval", 5*time.Second)
	v.SetDefault("polling.burst_attempts", 24)
	v.SetDefault("polling.max_concurrent", 8)
	v.SetDefault("polling.request_timeout", 15*time.Second)
	v.SetDefault("notification.cool_down", 5*time.Minute)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("providers.tikkie.base_url", "https://api.abnamro.com/v2/tikkie")
	v.SetDefault("providers.mollie.base_url", "https://api.mollie.com/v2")
	v.SetDefault("providers.paypal.base_url", "https://api-m.paypal.com")
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts or tests without a config file
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Server:     ServerConfig{Address: ":8080"},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Polling: PollingConfig{
			Interval:       30 * time.Second,
			BurstInterval:  5 * time.Second,
			BurstAttempts:  24,
			MaxConcurrent:  8,
			RequestTimeout: 15 * time.Second,
		},
		Notification: NotificationConfig{CoolDown: 5 * time.Minute},
		Cache:        CacheConfig{Enabled: true},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
