// Package config manages application configuration from default values,
// an optional config.yaml file, and BOT_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// TelegramConfig holds the chat transport settings.
type TelegramConfig struct {
	Token string `mapstructure:"token" validate:"required"`

	// AllowedUserIDs is the access allow-list, matched against the decimal
	// form of the Telegram user ID. Empty means unrestricted.
	AllowedUserIDs []string `mapstructure:"allowed_user_ids"`
}

// AIConfig holds the completion provider settings.
type AIConfig struct {
	APIKey          string        `mapstructure:"api_key"           validate:"required"`
	Model           string        `mapstructure:"model"             validate:"required"`
	ImageModel      string        `mapstructure:"image_model"       validate:"required"`
	Temperature     float32       `mapstructure:"temperature"       validate:"min=0,max=2"`
	MaxOutputTokens int32         `mapstructure:"max_output_tokens" validate:"min=1"`
	Timeout         time.Duration `mapstructure:"timeout"           validate:"min=1s,max=10m"`
	MaxRetries      int           `mapstructure:"max_retries"       validate:"min=0,max=10"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"       validate:"min=0"`
}

// UsageConfig holds usage metering settings.
type UsageConfig struct {
	// PricePer1KTokens is the token-to-cost rate used by the balance query.
	PricePer1KTokens float64 `mapstructure:"price_per_1k_tokens" validate:"min=0"`
}

// ModesConfig holds chat-mode registry settings.
type ModesConfig struct {
	// Path points to an optional YAML modes file; empty uses the built-ins.
	Path     string `mapstructure:"path"`
	PageSize int    `mapstructure:"page_size" validate:"min=1"`
}

// DatabaseConfig holds the SQLite session store settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

// TaskConfig configures one scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig holds scheduled task settings keyed by task name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// Config is the full application configuration, read once at startup.
type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	AI        AIConfig        `mapstructure:"ai"`
	Usage     UsageConfig     `mapstructure:"usage"`
	Modes     ModesConfig     `mapstructure:"modes"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Health    HealthConfig    `mapstructure:"health"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// Load loads and validates configuration from:
// 1. Default values
// 2. config.yaml file (optional)
// 3. BOT_* environment variables
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow missing config file; env and defaults still apply.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Keys without a real default still need registering so AutomaticEnv
	// picks them up during Unmarshal.
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.allowed_user_ids", []string{})
	v.SetDefault("ai.api_key", "")

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)

	v.SetDefault("database.path", DefaultDBPath)

	v.SetDefault("ai.model", DefaultAIModel)
	v.SetDefault("ai.image_model", DefaultAIImageModel)
	v.SetDefault("ai.temperature", DefaultAITemperature)
	v.SetDefault("ai.max_output_tokens", DefaultAIMaxOutputTokens)
	v.SetDefault("ai.timeout", DefaultAITimeout)
	v.SetDefault("ai.max_retries", DefaultAIMaxRetries)
	v.SetDefault("ai.retry_delay", DefaultAIRetryDelay)

	v.SetDefault("usage.price_per_1k_tokens", DefaultPricePer1KTokens)

	v.SetDefault("modes.path", "")
	v.SetDefault("modes.page_size", DefaultModesPageSize)

	v.SetDefault("health.addr", DefaultHealthAddr)
}
