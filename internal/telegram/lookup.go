package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const lookupTimeout = 10 * time.Second

// UserLookup resolves display names with the Bot API getChat method. It
// only succeeds for users who have talked to the bot.
type UserLookup struct {
	b *bot.Bot
}

// NewUserLookup creates a UserLookup on b.
func NewUserLookup(b *bot.Bot) *UserLookup {
	return &UserLookup{b: b}
}

// LookupDisplayName returns the user's full name, or the username when no
// name is set.
func (l *UserLookup) LookupDisplayName(ctx context.Context, userID int64) (string, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	info, err := l.b.GetChat(lookupCtx, &bot.GetChatParams{ChatID: userID})
	if err != nil {
		return "", fmt.Errorf("getChat %d: %w", userID, err)
	}

	name := strings.TrimSpace(info.FirstName + " " + info.LastName)
	if name == "" {
		name = info.Username
	}
	if name == "" {
		return "", fmt.Errorf("user %d has no display name", userID)
	}
	return name, nil
}

// BotName is the display name the bot signs its transcript lines with.
func BotName(me *models.User) string {
	name := strings.TrimSpace(me.FirstName + " " + me.LastName)
	if name == "" {
		name = me.Username
	}
	return name
}
