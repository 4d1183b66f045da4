package config

import "time"

// Default values for configuration
const (
	// Logger defaults
	DefaultLogLevel = "info"
	DefaultLogJSON  = true

	// Telegram defaults
	DefaultTelegramMaxMessageLength = 4096 // Telegram's maximum message length
	DefaultTelegramSendInterval     = time.Second
	DefaultTelegramSendBurst        = 3

	// AI defaults
	DefaultAIProvider             = "gemini"
	DefaultAIModel                = "gemini-2.0-flash"
	DefaultAITemperature          = 0.7
	DefaultAIMaxTokens            = 2048
	DefaultAITimeout              = 2 * time.Minute
	DefaultAIMaxRetries           = 2
	DefaultAIRetryDelay           = 2 * time.Second
	DefaultAIEmptyResponseRetries = 5
	DefaultAIBreakerFailures      = 5
	DefaultAIBreakerCooldown      = 30 * time.Second
	DefaultAIMaxPromptLength      = 4096
	DefaultAIReservedCharacters   = 0
	DefaultAISystemInstruction    = "You are a friendly assistant in a group chat. Continue the conversation transcript by writing your next reply. Reply with the message text only, without a name prefix."

	// Database defaults
	DefaultDatabaseDriver           = "redis"
	DefaultDatabasePath             = "storage.db"
	DefaultDatabaseRedisHost        = "redis"
	DefaultDatabaseRedisPort        = 6379
	DefaultDatabaseRedisDB          = 0
	DefaultDatabaseOperationTimeout = 5 * time.Second
	DefaultDatabaseLockTTL          = 5 * time.Minute
	DefaultDatabaseLockPollInterval = 100 * time.Millisecond
)

// DefaultMessages holds the default user-visible texts.
var DefaultMessages = MessagesConfig{
	Welcome:         "👋 Hi! I'm @botname. Use /chat followed by your message to talk to me.",
	Help:            "/chat <message> - talk to the AI, it remembers your recent conversation\n/transcript - show what it remembers\n/clear - forget your conversation",
	GeneralError:    "❌ An unexpected error occurred. Please try again later.",
	WrongChat:       "🚫 I only answer in the configured chat.",
	PromptEmpty:     "ℹ️ Please provide a message with your command.",
	PromptTooLong:   "📝 Your message exceeds the maximum length of %d characters.",
	NoAnswer:        "🤖 The AI did not know what to say.",
	HistoryCleared:  "🔄 Your conversation history has been cleared.",
	TranscriptEmpty: "No conversation history.",
}

// DefaultTasks holds the default scheduler task configuration.
var DefaultTasks = map[string]TaskConfig{
	"backend_maintenance": {Enabled: true, Schedule: "0 0 4 * * *"},
	"lease_cleanup":       {Enabled: true, Schedule: "0 */10 * * * *"},
}
