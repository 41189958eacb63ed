package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/env"
)

type Config struct {
	Primary  Primary        `koanf:"primary"`
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Provider ProviderConfig `koanf:"provider"`
	Worker   WorkerConfig   `koanf:"worker"`
	Admin    AdminConfig    `koanf:"admin"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Logger   LoggerConfig   `koanf:"logger"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port         string        `koanf:"port" validate:"required"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"required"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"required"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" validate:"required"`
}

type DatabaseConfig struct {
	Host             string        `koanf:"host" validate:"required"`
	Port             int           `koanf:"port" validate:"required"`
	User             string        `koanf:"user" validate:"required"`
	Password         string        `koanf:"password" validate:"required"`
	Name             string        `koanf:"name" validate:"required"`
	SSLMode          string        `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns     int           `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns     int           `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime  time.Duration `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime  time.Duration `koanf:"conn_max_idle_time" validate:"required"`
	StatementTimeout time.Duration `koanf:"statement_timeout"`
}

type ProviderConfig struct {
	APIKey string `koanf:"api_key" validate:"required"`
	// WebhookSecret and WebhookSecretPrevious are tried in order so secret
	// rotation never drops deliveries mid-rollover.
	WebhookSecret         string        `koanf:"webhook_secret" validate:"required"`
	WebhookSecretPrevious string        `koanf:"webhook_secret_previous"`
	SignatureTolerance    time.Duration `koanf:"signature_tolerance"`
	SuccessURL            string        `koanf:"success_url" validate:"required"`
	CancelURL             string        `koanf:"cancel_url" validate:"required"`
}

// WebhookSecrets returns the ordered candidate secrets, current first.
func (p ProviderConfig) WebhookSecrets() []string {
	secrets := []string{p.WebhookSecret}
	if p.WebhookSecretPrevious != "" {
		secrets = append(secrets, p.WebhookSecretPrevious)
	}
	return secrets
}

type WorkerConfig struct {
	Interval   time.Duration `koanf:"interval" validate:"required"`
	BatchSize  int           `koanf:"batch_size" validate:"required"`
	ClaimLease time.Duration `koanf:"claim_lease" validate:"required"`
}

type AdminConfig struct {
	// RetrySecret authenticates the manual retry trigger endpoint.
	RetrySecret string `koanf:"retry_secret" validate:"required"`
}

type MetricsConfig struct {
	Port string `koanf:"port" validate:"required"`
}

type LoggerConfig struct {
	Level string `koanf:"level"`
}

// NewLogger builds the process-wide slog logger at the configured level.
func (c LoggerConfig) NewLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func LoadConfig() (*Config, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	k := koanf.New(".")

	err := k.Load(env.Provider("MEETPAY_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "MEETPAY_")),
			"__",
			".",
		)
	}), nil)
	if err != nil {
		logger.Error("failed to load environment variables", "error", err)
		return nil, err
	}

	mainConfig := &Config{}

	err = k.Unmarshal("", mainConfig)
	if err != nil {
		logger.Error("could not unmarshal main config", "error", err)
		return nil, err
	}

	validate := validator.New()

	err = validate.Struct(mainConfig)
	if err != nil {
		logger.Error("config validation failed", "error", err)
		return nil, err
	}

	return mainConfig, nil
}
