package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks every section against its validate tags and the
// cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.AI.ReservedCharacters >= c.AI.MaxPromptLength {
		return fmt.Errorf("ai.reserved_characters (%d) must be lower than ai.max_prompt_length (%d)",
			c.AI.ReservedCharacters, c.AI.MaxPromptLength)
	}

	if !strings.Contains(c.Messages.PromptTooLong, "%d") {
		return fmt.Errorf("messages.prompt_too_long must contain a %%d placeholder for the limit")
	}

	for name, task := range c.Scheduler.Tasks {
		if task.Enabled && strings.TrimSpace(task.Schedule) == "" {
			return fmt.Errorf("scheduler task %q is enabled but has an empty schedule", name)
		}
	}

	return nil
}

// IsChatAllowed reports whether commands may be served in chatID.
// Every chat is allowed when no restriction is configured.
func (c *Config) IsChatAllowed(chatID int64) bool {
	return c.Telegram.AllowedChatID == 0 || c.Telegram.AllowedChatID == chatID
}

// RedisAddr returns the host:port address of the redis backend.
func (c DatabaseConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}
