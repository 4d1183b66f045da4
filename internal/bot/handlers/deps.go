package handlers

import (
	"log/slog"

	"github.com/edgard/transcriptbot/internal/chat"
	"github.com/edgard/transcriptbot/internal/config"
)

// UserDirectory records the display names of users seen in updates.
type UserDirectory interface {
	Remember(userID int64, name string)
}

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger *slog.Logger
	Config *config.Config
	Chat   *chat.Service
	Users  UserDirectory
	Sender *Sender
}
