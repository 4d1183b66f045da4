// Package config provides configuration loading, validation, and management
// for the bot. It handles reading from a YAML file, BOT_* environment
// overrides, default values, and validation of every section.
package config

import (
	"time"

	"github.com/go-telegram/bot/models"
)

// Config defines the application configuration for all components.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	AI        AIConfig        `mapstructure:"ai"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Messages  MessagesConfig  `mapstructure:"messages"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig controls the slog handler.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the messaging platform settings.
type TelegramConfig struct {
	Token string `mapstructure:"token" validate:"required"`

	// AllowedChatID restricts every command to a single chat when non-zero.
	AllowedChatID int64 `mapstructure:"allowed_chat_id"`

	MaxMessageLength int           `mapstructure:"max_message_length" validate:"min=1,max=4096"`
	SendInterval     time.Duration `mapstructure:"send_interval"      validate:"min=0"`
	SendBurst        int           `mapstructure:"send_burst"         validate:"min=1"`

	// BotInfo is filled at startup from getMe and is never read from file.
	BotInfo *models.User `mapstructure:"-"`
}

// AIConfig configures the completion provider and the prompt budget.
type AIConfig struct {
	Provider          string        `mapstructure:"provider"           validate:"oneof=gemini openai"`
	APIKey            string        `mapstructure:"api_key"            validate:"required"`
	BaseURL           string        `mapstructure:"base_url"           validate:"omitempty,url"`
	Model             string        `mapstructure:"model"              validate:"required"`
	Temperature       float32       `mapstructure:"temperature"        validate:"min=0,max=2"`
	MaxTokens         int           `mapstructure:"max_tokens"         validate:"min=0"`
	SystemInstruction string        `mapstructure:"system_instruction"`
	Timeout           time.Duration `mapstructure:"timeout"            validate:"min=1s,max=10m"`
	MaxRetries        int           `mapstructure:"max_retries"        validate:"min=0,max=10"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"        validate:"min=0"`

	// EmptyResponseRetries is how many extra attempts are made when the
	// provider answers with nothing usable. Zero disables retrying.
	EmptyResponseRetries int `mapstructure:"empty_response_retries" validate:"min=0,max=10"`

	// BreakerFailures consecutive provider errors open the circuit for
	// BreakerCooldown. Zero disables the breaker.
	BreakerFailures int           `mapstructure:"breaker_failures" validate:"min=0"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown" validate:"min=0"`

	MaxPromptLength    int `mapstructure:"max_prompt_length"   validate:"min=1"`
	ReservedCharacters int `mapstructure:"reserved_characters" validate:"min=0"`
}

// DatabaseConfig selects and configures the key-value backend holding
// conversation transcripts and their locks.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=redis sqlite bolt"`

	// Path is the database file for the sqlite and bolt drivers.
	Path string `mapstructure:"path" validate:"required_unless=Driver redis"`

	RedisHost     string `mapstructure:"redis_host"     validate:"required_if=Driver redis"`
	RedisPort     int    `mapstructure:"redis_port"     validate:"min=0,max=65535"`
	RedisDB       int    `mapstructure:"redis_db"       validate:"min=0"`
	RedisPassword string `mapstructure:"redis_password"`

	OperationTimeout time.Duration `mapstructure:"operation_timeout"  validate:"min=100ms"`
	LockTTL          time.Duration `mapstructure:"lock_ttl"           validate:"min=1s"`
	LockPollInterval time.Duration `mapstructure:"lock_poll_interval" validate:"min=1ms"`
}

// MessagesConfig holds every user-visible text the bot sends.
type MessagesConfig struct {
	Welcome         string `mapstructure:"welcome"          validate:"required"`
	Help            string `mapstructure:"help"             validate:"required"`
	GeneralError    string `mapstructure:"general_error"    validate:"required"`
	WrongChat       string `mapstructure:"wrong_chat"       validate:"required"`
	PromptEmpty     string `mapstructure:"prompt_empty"     validate:"required"`
	PromptTooLong   string `mapstructure:"prompt_too_long"  validate:"required"`
	NoAnswer        string `mapstructure:"no_answer"        validate:"required"`
	HistoryCleared  string `mapstructure:"history_cleared"  validate:"required"`
	TranscriptEmpty string `mapstructure:"transcript_empty" validate:"required"`
}

// SchedulerConfig lists the scheduled tasks by registry name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig configures one scheduled task. Schedule is a cron expression
// with a leading seconds field.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}
