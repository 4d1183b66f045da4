// Package handlers contains Telegram bot command handlers, along with their
// registration logic and middleware.
package handlers

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Recover catches a panic escaping the handler chain and logs it. Unless
// the user was already answered, it sends the general error message. A
// failure to send it is logged and dropped.
func Recover(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			ctx, out := withOutcome(ctx)

			defer func() {
				r := recover()
				if r == nil {
					return
				}

				log := deps.Logger.With("middleware", "Recover")
				log.ErrorContext(ctx, "Handler panicked", "panic", fmt.Sprint(r), "update_id", update.ID, "replied", out.replied.Load())

				if update.Message == nil || out.replied.Load() {
					return
				}
				_, err := bot.SendMessage(ctx, &tgbot.SendMessageParams{
					ChatID: update.Message.Chat.ID,
					Text:   deps.Config.Messages.GeneralError,
				})
				if err != nil {
					log.ErrorContext(ctx, "Failed to send general error message", "error", err, "chat_id", update.Message.Chat.ID)
				}
			}()

			next(ctx, bot, update)
		}
	}
}

// ChatOnly rejects messages from chats other than the configured one. It
// runs before any handler acknowledges the message.
func ChatOnly(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			if update.Message == nil {
				next(ctx, bot, update)
				return
			}

			chatID := update.Message.Chat.ID
			if !deps.Config.IsChatAllowed(chatID) {
				log := deps.Logger.With("middleware", "ChatOnly")
				log.InfoContext(ctx, "Rejected command from unauthorized chat", "chat_id", chatID)

				_, err := bot.SendMessage(ctx, &tgbot.SendMessageParams{
					ChatID: chatID,
					Text:   deps.Config.Messages.WrongChat,
				})
				if err != nil {
					log.ErrorContext(ctx, "Failed to send wrong chat message", "error", err, "chat_id", chatID)
				} else {
					markReplied(ctx)
				}
				return
			}

			next(ctx, bot, update)
		}
	}
}

// ObserveUsers records the sender's display name so transcripts can render
// it without asking Telegram.
func ObserveUsers(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			if deps.Users != nil && update.Message != nil && update.Message.From != nil {
				deps.Users.Remember(update.Message.From.ID, displayName(update.Message.From))
			}
			next(ctx, bot, update)
		}
	}
}
