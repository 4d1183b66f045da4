package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrConfiguration marks every error returned by LoadConfig.
var ErrConfiguration = errors.New("configuration error")

// LoadConfig loads and validates configuration from:
// 1. Default values
// 2. the YAML file at path (optional, missing file means defaults only)
// 3. BOT_* environment variables (e.g. BOT_TELEGRAM_TOKEN, BOT_AI_API_KEY)
func LoadConfig(path string) (*Config, error) {
	startTime := time.Now()
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: failed to read config file %s: %v", ErrConfiguration, path, err)
		}
		slog.Info("Configuration file not found, using defaults and environment", "path", path)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	slog.Info("Configuration loaded successfully",
		"ai_provider", cfg.AI.Provider,
		"ai_model", cfg.AI.Model,
		"database_driver", cfg.Database.Driver,
		"allowed_chat_id", cfg.Telegram.AllowedChatID,
		"duration_ms", time.Since(startTime).Milliseconds())

	return cfg, nil
}

// setDefaults registers a default for every key, which also makes every key
// overridable from the environment.
func setDefaults(v *viper.Viper) {
	// Logger defaults
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", DefaultLogJSON)

	// Telegram defaults
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.allowed_chat_id", 0)
	v.SetDefault("telegram.max_message_length", DefaultTelegramMaxMessageLength)
	v.SetDefault("telegram.send_interval", DefaultTelegramSendInterval)
	v.SetDefault("telegram.send_burst", DefaultTelegramSendBurst)

	// AI defaults
	v.SetDefault("ai.provider", DefaultAIProvider)
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.model", DefaultAIModel)
	v.SetDefault("ai.temperature", DefaultAITemperature)
	v.SetDefault("ai.max_tokens", DefaultAIMaxTokens)
	v.SetDefault("ai.system_instruction", DefaultAISystemInstruction)
	v.SetDefault("ai.timeout", DefaultAITimeout)
	v.SetDefault("ai.max_retries", DefaultAIMaxRetries)
	v.SetDefault("ai.retry_delay", DefaultAIRetryDelay)
	v.SetDefault("ai.empty_response_retries", DefaultAIEmptyResponseRetries)
	v.SetDefault("ai.breaker_failures", DefaultAIBreakerFailures)
	v.SetDefault("ai.breaker_cooldown", DefaultAIBreakerCooldown)
	v.SetDefault("ai.max_prompt_length", DefaultAIMaxPromptLength)
	v.SetDefault("ai.reserved_characters", DefaultAIReservedCharacters)

	// Database defaults
	v.SetDefault("database.driver", DefaultDatabaseDriver)
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("database.redis_host", DefaultDatabaseRedisHost)
	v.SetDefault("database.redis_port", DefaultDatabaseRedisPort)
	v.SetDefault("database.redis_db", DefaultDatabaseRedisDB)
	v.SetDefault("database.redis_password", "")
	v.SetDefault("database.operation_timeout", DefaultDatabaseOperationTimeout)
	v.SetDefault("database.lock_ttl", DefaultDatabaseLockTTL)
	v.SetDefault("database.lock_poll_interval", DefaultDatabaseLockPollInterval)

	// Messages defaults
	v.SetDefault("messages.welcome", DefaultMessages.Welcome)
	v.SetDefault("messages.help", DefaultMessages.Help)
	v.SetDefault("messages.general_error", DefaultMessages.GeneralError)
	v.SetDefault("messages.wrong_chat", DefaultMessages.WrongChat)
	v.SetDefault("messages.prompt_empty", DefaultMessages.PromptEmpty)
	v.SetDefault("messages.prompt_too_long", DefaultMessages.PromptTooLong)
	v.SetDefault("messages.no_answer", DefaultMessages.NoAnswer)
	v.SetDefault("messages.history_cleared", DefaultMessages.HistoryCleared)
	v.SetDefault("messages.transcript_empty", DefaultMessages.TranscriptEmpty)

	// Scheduler defaults
	tasks := make(map[string]any, len(DefaultTasks))
	for name, task := range DefaultTasks {
		tasks[name] = map[string]any{"enabled": task.Enabled, "schedule": task.Schedule}
	}
	v.SetDefault("scheduler.tasks", tasks)
}
